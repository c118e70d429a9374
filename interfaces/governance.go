package interfaces

// Capability is a registry-level right checked at the top of gated operations.
type Capability int

const (
	// CapContractOwner is held only by the deployment-time contract owner.
	CapContractOwner Capability = iota
	// CapCertifier is held by every address in the authorized certifier set.
	CapCertifier
)

// String returns the capability name.
func (c Capability) String() string {
	switch c {
	case CapContractOwner:
		return "contract-owner"
	case CapCertifier:
		return "certifier"
	default:
		return "unknown"
	}
}

// AuthorizationLedger tracks the contract owner and the authorized certifier set.
type AuthorizationLedger interface {
	ContractOwner(env Env) (Identity, error)
	IsContractOwner(env Env, who Identity) (bool, error)
	IsAuthorizedCertifier(env Env, who Identity) (bool, error)
	AddAuthorizedCertifier(env Env, certifier Identity) error
	RemoveAuthorizedCertifier(env Env, certifier Identity) error

	// Require returns nil if the caller of env holds cap, ErrForbidden otherwise.
	Require(env Env, cap Capability) error
}
