package interfaces

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Identity is the authenticated address of a caller, owner, certifier or provider.
type Identity = common.Address

// EmptyIdentity is the zero address. No record is ever owned by it.
var EmptyIdentity Identity

// NewIdentityFromHex parses a 40-char hex address, with or without 0x prefix.
func NewIdentityFromHex(addr string) (Identity, error) {
	clean := strings.TrimSpace(addr)
	if !strings.HasPrefix(clean, "0x") && !strings.HasPrefix(clean, "0X") {
		clean = "0x" + clean
	}
	if !common.IsHexAddress(clean) {
		return Identity{}, fmt.Errorf("%w: invalid address %q", ErrInvalidArgument, addr)
	}
	return common.HexToAddress(clean), nil
}

// IdentityKey is the storage key for an identity: lower-case hex without prefix.
func IdentityKey(id Identity) string {
	return strings.ToLower(strings.TrimPrefix(id.Hex(), "0x"))
}

// EquipmentID identifies an equipment record. Ids are dense and start at 1.
type EquipmentID uint64

// ParseEquipmentID parses a decimal equipment id.
func ParseEquipmentID(s string) (EquipmentID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid equipment id %q", ErrInvalidArgument, s)
	}
	return EquipmentID(v), nil
}

// String returns the decimal form, which is also the storage key.
func (id EquipmentID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// EquipmentRecord is the descriptive record of a tokenized piece of equipment.
// Only LastMaintenanceDate and Owner ever change after registration.
type EquipmentRecord struct {
	ID                  EquipmentID `json:"id"`
	Name                string      `json:"name"`
	Manufacturer        string      `json:"manufacturer"`
	Model               string      `json:"model"`
	SerialNumber        string      `json:"serial_number"`
	ManufactureDate     uint64      `json:"manufacture_date"`
	LastMaintenanceDate uint64      `json:"last_maintenance_date"`
	Owner               Identity    `json:"owner"`
}

// ProviderRecord is the credential record of a service provider, keyed by its identity.
type ProviderRecord struct {
	Provider            Identity `json:"provider"`
	Name                string   `json:"name"`
	Certification       string   `json:"certification"`
	Specialization      string   `json:"specialization"`
	CertificationExpiry uint64   `json:"certification_expiry"`
	IsActive            bool     `json:"is_active"`
}

// Verified reports whether the provider is active and its certification has
// not expired at the given clock value. It is never stored.
func (p ProviderRecord) Verified(clock uint64) bool {
	return p.IsActive && p.CertificationExpiry > clock
}

var (
	// ErrNotFound is returned when an operation references an id or provider with no stored record.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the caller is not the current owner of an equipment record.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller lacks registry-level authorization
	// (contract owner or authorized certifier).
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidArgument is returned for arguments that can never be valid, such as the zero address as recipient.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyDeployed is returned when the registry owner is initialized twice.
	ErrAlreadyDeployed = errors.New("registry already deployed")

	// ErrNotDeployed is returned when governance is consulted before deployment.
	ErrNotDeployed = errors.New("registry not deployed")

	// ErrNonceMismatch is returned when a signed request carries a nonce other
	// than the caller's next one, which covers replayed requests.
	ErrNonceMismatch = errors.New("nonce already used or out of order")
)

// ErrorKind maps an error to the kind reported to callers. Failures carry no
// payload beyond this kind.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrAlreadyDeployed):
		return "already_deployed"
	case errors.Is(err, ErrNotDeployed):
		return "not_deployed"
	case errors.Is(err, ErrNonceMismatch):
		return "bad_nonce"
	default:
		return "internal"
	}
}
