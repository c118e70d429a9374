// Package governance implements the authorization ledger: the contract owner
// fixed at deployment and the set of certifiers it authorizes.
//
// Every gated registry operation calls Require once, before touching any state.
package governance

import (
	"errors"
	"fmt"

	"github.com/ruteri/equipment-registry/codec"
	"github.com/ruteri/equipment-registry/interfaces"
)

const (
	governanceCollection = "governance"
	certifiersCollection = "certifiers"
	ownerKey             = "owner"
)

var memberMarker = []byte{1}

// Ledger implements interfaces.AuthorizationLedger over the transaction Env.
// It holds no state of its own.
type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Deploy records owner as the contract owner. It succeeds once per registry.
func (l *Ledger) Deploy(env interfaces.Env, owner interfaces.Identity) error {
	if owner == interfaces.EmptyIdentity {
		return fmt.Errorf("%w: contract owner cannot be the zero address", interfaces.ErrInvalidArgument)
	}
	_, err := l.ContractOwner(env)
	switch {
	case err == nil:
		return interfaces.ErrAlreadyDeployed
	case !errors.Is(err, interfaces.ErrNotDeployed):
		return err
	}

	if err := env.Set(governanceCollection, ownerKey, codec.EncodeIdentity(owner)); err != nil {
		return err
	}
	env.Emit(interfaces.Event{
		Kind:       interfaces.EventRegistryDeployed,
		Attributes: map[string]string{"owner": owner.Hex()},
	})
	return nil
}

// ContractOwner returns the owner recorded at deployment, or ErrNotDeployed.
func (l *Ledger) ContractOwner(env interfaces.Env) (interfaces.Identity, error) {
	data, err := env.Get(governanceCollection, ownerKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return interfaces.Identity{}, interfaces.ErrNotDeployed
	}
	if err != nil {
		return interfaces.Identity{}, err
	}
	return codec.DecodeIdentity(data)
}

// IsContractOwner compares who against the stored owner. Before deployment
// nobody is the owner.
func (l *Ledger) IsContractOwner(env interfaces.Env, who interfaces.Identity) (bool, error) {
	owner, err := l.ContractOwner(env)
	if errors.Is(err, interfaces.ErrNotDeployed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return owner == who, nil
}

func (l *Ledger) IsAuthorizedCertifier(env interfaces.Env, who interfaces.Identity) (bool, error) {
	_, err := env.Get(certifiersCollection, interfaces.IdentityKey(who))
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddAuthorizedCertifier grants certifier authority. Adding a present certifier is a no-op.
func (l *Ledger) AddAuthorizedCertifier(env interfaces.Env, certifier interfaces.Identity) error {
	if err := l.Require(env, interfaces.CapContractOwner); err != nil {
		return err
	}
	if err := env.Set(certifiersCollection, interfaces.IdentityKey(certifier), memberMarker); err != nil {
		return err
	}
	env.Emit(interfaces.Event{
		Kind:       interfaces.EventCertifierAdded,
		Attributes: map[string]string{"certifier": certifier.Hex()},
	})
	return nil
}

// RemoveAuthorizedCertifier revokes certifier authority. Removing an absent certifier is a no-op.
func (l *Ledger) RemoveAuthorizedCertifier(env interfaces.Env, certifier interfaces.Identity) error {
	if err := l.Require(env, interfaces.CapContractOwner); err != nil {
		return err
	}
	if err := env.Delete(certifiersCollection, interfaces.IdentityKey(certifier)); err != nil {
		return err
	}
	env.Emit(interfaces.Event{
		Kind:       interfaces.EventCertifierRemoved,
		Attributes: map[string]string{"certifier": certifier.Hex()},
	})
	return nil
}

// Require returns nil if the caller of env holds cap and ErrForbidden otherwise.
func (l *Ledger) Require(env interfaces.Env, cap interfaces.Capability) error {
	var (
		held bool
		err  error
	)
	switch cap {
	case interfaces.CapContractOwner:
		held, err = l.IsContractOwner(env, env.Caller())
	case interfaces.CapCertifier:
		held, err = l.IsAuthorizedCertifier(env, env.Caller())
	default:
		return fmt.Errorf("%w: unknown capability %d", interfaces.ErrForbidden, cap)
	}
	if err != nil {
		return err
	}
	if !held {
		return fmt.Errorf("%w: %s lacks %s", interfaces.ErrForbidden, env.Caller().Hex(), cap)
	}
	return nil
}

var _ interfaces.AuthorizationLedger = (*Ledger)(nil)

// RequireOwner returns nil if caller is owner and ErrUnauthorized otherwise.
// It is the per-record counterpart of Require.
func RequireOwner(caller, owner interfaces.Identity) error {
	if caller != owner {
		return fmt.Errorf("%w: %s is not the owner", interfaces.ErrUnauthorized, caller.Hex())
	}
	return nil
}
