// Package equipment implements the equipment asset registry.
//
// Each piece of equipment is a descriptive record plus a tokenized ownership
// binding in the host's ownership ledger under the "equipment" asset class.
// The ledger is authoritative; the Owner field of the record is kept equal to
// it by every operation that changes ownership.
package equipment

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ruteri/equipment-registry/allocator"
	"github.com/ruteri/equipment-registry/codec"
	"github.com/ruteri/equipment-registry/governance"
	"github.com/ruteri/equipment-registry/interfaces"
)

const (
	// AssetClass names equipment tokens in the ownership ledger.
	AssetClass = "equipment"

	recordsCollection = "equipment"
)

type Registry struct{}

func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterEquipment creates a record owned by the caller and returns its id.
// Descriptive fields are stored as given.
func (r *Registry) RegisterEquipment(env interfaces.Env, name, manufacturer, model, serialNumber string, manufactureDate uint64) (interfaces.EquipmentID, error) {
	caller := env.Caller()
	if caller == interfaces.EmptyIdentity {
		return 0, fmt.Errorf("%w: caller cannot be the zero address", interfaces.ErrInvalidArgument)
	}

	id, err := allocator.NextID(env)
	if err != nil {
		return 0, err
	}
	if err := env.Mint(AssetClass, uint64(id), caller); err != nil {
		return 0, fmt.Errorf("mint equipment %d: %w", id, err)
	}

	rec := interfaces.EquipmentRecord{
		ID:                  id,
		Name:                name,
		Manufacturer:        manufacturer,
		Model:               model,
		SerialNumber:        serialNumber,
		ManufactureDate:     manufactureDate,
		LastMaintenanceDate: 0,
		Owner:               caller,
	}
	if err := r.store(env, rec); err != nil {
		return 0, err
	}

	env.Emit(interfaces.Event{
		Kind: interfaces.EventEquipmentRegistered,
		Attributes: map[string]string{
			"id":    id.String(),
			"owner": caller.Hex(),
		},
	})
	return id, nil
}

// TransferEquipment hands the equipment to recipient. Only the current owner
// may transfer; a transfer to oneself succeeds without changing anything.
func (r *Registry) TransferEquipment(env interfaces.Env, id interfaces.EquipmentID, recipient interfaces.Identity) error {
	rec, err := r.load(env, id)
	if err != nil {
		return err
	}
	if err := governance.RequireOwner(env.Caller(), rec.Owner); err != nil {
		return err
	}
	if recipient == interfaces.EmptyIdentity {
		return fmt.Errorf("%w: recipient cannot be the zero address", interfaces.ErrInvalidArgument)
	}

	if err := env.TransferOwnership(AssetClass, uint64(id), rec.Owner, recipient); err != nil {
		return fmt.Errorf("transfer equipment %d: %w", id, err)
	}
	from := rec.Owner
	rec.Owner = recipient
	if err := r.store(env, rec); err != nil {
		return err
	}

	env.Emit(interfaces.Event{
		Kind: interfaces.EventEquipmentTransferred,
		Attributes: map[string]string{
			"id":   id.String(),
			"from": from.Hex(),
			"to":   recipient.Hex(),
		},
	})
	return nil
}

func (r *Registry) GetEquipmentDetails(env interfaces.Env, id interfaces.EquipmentID) (interfaces.EquipmentRecord, error) {
	return r.load(env, id)
}

func (r *Registry) EquipmentExists(env interfaces.Env, id interfaces.EquipmentID) (bool, error) {
	_, err := r.load(env, id)
	if errors.Is(err, interfaces.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EquipmentOwner returns the holder recorded in the ownership ledger.
func (r *Registry) EquipmentOwner(env interfaces.Env, id interfaces.EquipmentID) (interfaces.Identity, error) {
	owner, err := env.OwnerOf(AssetClass, uint64(id))
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return interfaces.Identity{}, fmt.Errorf("%w: equipment %d", interfaces.ErrNotFound, id)
	}
	return owner, err
}

// UpdateLastMaintenanceDate sets the maintenance date. Only the owner may
// update it, and repeating an update with the same date is harmless.
func (r *Registry) UpdateLastMaintenanceDate(env interfaces.Env, id interfaces.EquipmentID, date uint64) error {
	rec, err := r.load(env, id)
	if err != nil {
		return err
	}
	if err := governance.RequireOwner(env.Caller(), rec.Owner); err != nil {
		return err
	}

	rec.LastMaintenanceDate = date
	if err := r.store(env, rec); err != nil {
		return err
	}

	env.Emit(interfaces.Event{
		Kind: interfaces.EventMaintenanceUpdated,
		Attributes: map[string]string{
			"id":   id.String(),
			"date": strconv.FormatUint(date, 10),
		},
	})
	return nil
}

// LastEquipmentID returns the highest id issued so far, 0 if none.
func (r *Registry) LastEquipmentID(env interfaces.Env) (interfaces.EquipmentID, error) {
	next, err := allocator.Peek(env)
	if err != nil {
		return 0, err
	}
	return next - 1, nil
}

func (r *Registry) load(env interfaces.Env, id interfaces.EquipmentID) (interfaces.EquipmentRecord, error) {
	data, err := env.Get(recordsCollection, id.String())
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return interfaces.EquipmentRecord{}, fmt.Errorf("%w: equipment %d", interfaces.ErrNotFound, id)
	}
	if err != nil {
		return interfaces.EquipmentRecord{}, err
	}
	return codec.DecodeEquipment(data)
}

func (r *Registry) store(env interfaces.Env, rec interfaces.EquipmentRecord) error {
	data, err := codec.EncodeEquipment(rec)
	if err != nil {
		return err
	}
	return env.Set(recordsCollection, rec.ID.String(), data)
}

var _ interfaces.EquipmentRegistry = (*Registry)(nil)
