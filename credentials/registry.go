// Package credentials implements the service-provider credential registry.
//
// Only authorized certifiers may write provider records. Whether a provider
// is verified is never stored: it is recomputed from the record and the
// transaction's clock height on every read.
package credentials

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ruteri/equipment-registry/codec"
	"github.com/ruteri/equipment-registry/interfaces"
)

const providersCollection = "providers"

// Registry implements interfaces.CredentialRegistry. Authorization is
// delegated to the ledger.
type Registry struct {
	ledger interfaces.AuthorizationLedger
}

func NewRegistry(ledger interfaces.AuthorizationLedger) *Registry {
	return &Registry{ledger: ledger}
}

// RegisterServiceProvider creates or overwrites the record of provider as active.
func (r *Registry) RegisterServiceProvider(env interfaces.Env, provider interfaces.Identity, name, certification, specialization string, certificationExpiry uint64) error {
	if err := r.ledger.Require(env, interfaces.CapCertifier); err != nil {
		return err
	}

	rec := interfaces.ProviderRecord{
		Provider:            provider,
		Name:                name,
		Certification:       certification,
		Specialization:      specialization,
		CertificationExpiry: certificationExpiry,
		IsActive:            true,
	}
	if err := r.store(env, rec); err != nil {
		return err
	}

	env.Emit(interfaces.Event{
		Kind: interfaces.EventProviderRegistered,
		Attributes: map[string]string{
			"provider": provider.Hex(),
			"expiry":   strconv.FormatUint(certificationExpiry, 10),
		},
	})
	return nil
}

// UpdateProviderStatus sets the active flag of an existing provider.
func (r *Registry) UpdateProviderStatus(env interfaces.Env, provider interfaces.Identity, isActive bool) error {
	if err := r.ledger.Require(env, interfaces.CapCertifier); err != nil {
		return err
	}

	rec, err := r.load(env, provider)
	if err != nil {
		return err
	}
	rec.IsActive = isActive
	if err := r.store(env, rec); err != nil {
		return err
	}

	env.Emit(interfaces.Event{
		Kind: interfaces.EventProviderStatus,
		Attributes: map[string]string{
			"provider":  provider.Hex(),
			"is_active": strconv.FormatBool(isActive),
		},
	})
	return nil
}

func (r *Registry) GetServiceProvider(env interfaces.Env, provider interfaces.Identity) (interfaces.ProviderRecord, error) {
	return r.load(env, provider)
}

// IsVerifiedProvider reports whether provider is active and unexpired at the
// current height. Unknown providers are not verified.
func (r *Registry) IsVerifiedProvider(env interfaces.Env, provider interfaces.Identity) (bool, error) {
	rec, err := r.load(env, provider)
	if errors.Is(err, interfaces.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Verified(env.Height()), nil
}

func (r *Registry) load(env interfaces.Env, provider interfaces.Identity) (interfaces.ProviderRecord, error) {
	data, err := env.Get(providersCollection, interfaces.IdentityKey(provider))
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return interfaces.ProviderRecord{}, fmt.Errorf("%w: provider %s", interfaces.ErrNotFound, provider.Hex())
	}
	if err != nil {
		return interfaces.ProviderRecord{}, err
	}
	return codec.DecodeProvider(data)
}

func (r *Registry) store(env interfaces.Env, rec interfaces.ProviderRecord) error {
	data, err := codec.EncodeProvider(rec)
	if err != nil {
		return err
	}
	return env.Set(providersCollection, interfaces.IdentityKey(rec.Provider), data)
}

var _ interfaces.CredentialRegistry = (*Registry)(nil)
