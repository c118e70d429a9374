package equipment

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/equipment-registry/events"
	"github.com/ruteri/equipment-registry/hostenv"
	"github.com/ruteri/equipment-registry/interfaces"
	"github.com/ruteri/equipment-registry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x000000000000000000000000000000000000ca10")
)

type fixture struct {
	host     *hostenv.Host
	registry *Registry
	sink     *events.MemorySink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := events.NewMemorySink()
	return &fixture{
		host:     hostenv.NewHost(storage.NewMemoryStore(log), hostenv.NewFixedClock(10), log, sink),
		registry: NewRegistry(),
		sink:     sink,
	}
}

func (f *fixture) register(t *testing.T, caller interfaces.Identity, serial string) interfaces.EquipmentID {
	t.Helper()
	var id interfaces.EquipmentID
	require.NoError(t, f.host.Execute(context.Background(), "register", caller, func(env interfaces.Env) error {
		var err error
		id, err = f.registry.RegisterEquipment(env, "Chiller", "Acme", "C-200", serial, 50)
		return err
	}))
	return id
}

func (f *fixture) transfer(caller interfaces.Identity, id interfaces.EquipmentID, to interfaces.Identity) error {
	return f.host.Execute(context.Background(), "transfer", caller, func(env interfaces.Env) error {
		return f.registry.TransferEquipment(env, id, to)
	})
}

func (f *fixture) maintain(caller interfaces.Identity, id interfaces.EquipmentID, date uint64) error {
	return f.host.Execute(context.Background(), "maintenance", caller, func(env interfaces.Env) error {
		return f.registry.UpdateLastMaintenanceDate(env, id, date)
	})
}

func (f *fixture) details(t *testing.T, id interfaces.EquipmentID) interfaces.EquipmentRecord {
	t.Helper()
	var rec interfaces.EquipmentRecord
	require.NoError(t, f.host.View(context.Background(), interfaces.EmptyIdentity, func(env interfaces.Env) error {
		var err error
		rec, err = f.registry.GetEquipmentDetails(env, id)
		return err
	}))
	return rec
}

func (f *fixture) ledgerOwner(t *testing.T, id interfaces.EquipmentID) interfaces.Identity {
	t.Helper()
	var owner interfaces.Identity
	require.NoError(t, f.host.View(context.Background(), interfaces.EmptyIdentity, func(env interfaces.Env) error {
		var err error
		owner, err = f.registry.EquipmentOwner(env, id)
		return err
	}))
	return owner
}

func TestRegisterEquipment(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, alice, "SN-1")
	assert.Equal(t, interfaces.EquipmentID(1), id)

	assert.Equal(t, interfaces.EquipmentRecord{
		ID:                  1,
		Name:                "Chiller",
		Manufacturer:        "Acme",
		Model:               "C-200",
		SerialNumber:        "SN-1",
		ManufactureDate:     50,
		LastMaintenanceDate: 0,
		Owner:               alice,
	}, f.details(t, id))
	assert.Equal(t, alice, f.ledgerOwner(t, id))

	evs := f.sink.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, interfaces.EventEquipmentRegistered, evs[0].Kind)
	assert.Equal(t, "1", evs[0].Attributes["id"])
	assert.Equal(t, uint64(10), evs[0].Height)
}

func TestRegisterAllowsDuplicateDescriptions(t *testing.T) {
	f := newFixture(t)
	first := f.register(t, alice, "SN-1")
	second := f.register(t, alice, "SN-1")
	assert.NotEqual(t, first, second)
}

func TestIDsAreDenseAcrossInterleavedOperations(t *testing.T) {
	f := newFixture(t)

	var ids []interfaces.EquipmentID
	ids = append(ids, f.register(t, alice, "a"))
	require.NoError(t, f.transfer(alice, 1, bob))
	ids = append(ids, f.register(t, bob, "b"))
	assert.ErrorIs(t, f.transfer(alice, 1, carol), interfaces.ErrUnauthorized)
	assert.ErrorIs(t, f.maintain(alice, 99, 5), interfaces.ErrNotFound)
	ids = append(ids, f.register(t, carol, "c"))
	require.NoError(t, f.maintain(bob, 2, 70))
	ids = append(ids, f.register(t, alice, "d"))

	assert.Equal(t, []interfaces.EquipmentID{1, 2, 3, 4}, ids)

	require.NoError(t, f.host.View(context.Background(), alice, func(env interfaces.Env) error {
		last, err := f.registry.LastEquipmentID(env)
		require.NoError(t, err)
		assert.Equal(t, interfaces.EquipmentID(4), last)
		return nil
	}))
}

func TestTransferEquipment(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, alice, "SN-1")
	require.NoError(t, f.maintain(alice, id, 77))
	before := f.details(t, id)

	require.NoError(t, f.transfer(alice, id, bob))

	after := f.details(t, id)
	assert.Equal(t, bob, after.Owner)
	assert.Equal(t, bob, f.ledgerOwner(t, id))

	// Everything but the owner is unchanged
	after.Owner = before.Owner
	assert.Equal(t, before, after)

	// The previous owner lost control
	assert.ErrorIs(t, f.transfer(alice, id, alice), interfaces.ErrUnauthorized)
	assert.ErrorIs(t, f.maintain(alice, id, 80), interfaces.ErrUnauthorized)
	require.NoError(t, f.transfer(bob, id, carol))
	assert.Equal(t, carol, f.details(t, id).Owner)
}

func TestTransferChecks(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, alice, "SN-1")

	assert.ErrorIs(t, f.transfer(bob, 42, bob), interfaces.ErrNotFound, "existence is checked before ownership")
	assert.ErrorIs(t, f.transfer(bob, id, bob), interfaces.ErrUnauthorized)
	assert.ErrorIs(t, f.transfer(alice, id, interfaces.EmptyIdentity), interfaces.ErrInvalidArgument)
	assert.Equal(t, alice, f.details(t, id).Owner)
	assert.Equal(t, alice, f.ledgerOwner(t, id))
}

func TestTransferToSelf(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, alice, "SN-1")
	before := f.details(t, id)

	require.NoError(t, f.transfer(alice, id, alice))
	assert.Equal(t, before, f.details(t, id))
	assert.Equal(t, alice, f.ledgerOwner(t, id))
}

func TestUpdateLastMaintenanceDate(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, alice, "SN-1")
	before := f.details(t, id)

	require.NoError(t, f.maintain(alice, id, 120))
	after := f.details(t, id)
	assert.Equal(t, uint64(120), after.LastMaintenanceDate)

	after.LastMaintenanceDate = before.LastMaintenanceDate
	assert.Equal(t, before, after)

	// Idempotent
	require.NoError(t, f.maintain(alice, id, 120))
	assert.Equal(t, uint64(120), f.details(t, id).LastMaintenanceDate)

	// The date is not required to move forward
	require.NoError(t, f.maintain(alice, id, 90))
	assert.Equal(t, uint64(90), f.details(t, id).LastMaintenanceDate)
}

func TestUpdateLastMaintenanceDateChecks(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, alice, "SN-1")

	assert.ErrorIs(t, f.maintain(alice, 2, 1), interfaces.ErrNotFound)
	assert.ErrorIs(t, f.maintain(bob, 2, 1), interfaces.ErrNotFound)
	assert.ErrorIs(t, f.maintain(bob, id, 1), interfaces.ErrUnauthorized)
	assert.Zero(t, f.details(t, id).LastMaintenanceDate)
}

func TestReadsOfMissingEquipment(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, alice, "SN-1")

	require.NoError(t, f.host.View(context.Background(), bob, func(env interfaces.Env) error {
		exists, err := f.registry.EquipmentExists(env, id)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = f.registry.EquipmentExists(env, id+1)
		require.NoError(t, err)
		assert.False(t, exists)

		exists, err = f.registry.EquipmentExists(env, 0)
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = f.registry.GetEquipmentDetails(env, id+1)
		assert.ErrorIs(t, err, interfaces.ErrNotFound)

		_, err = f.registry.EquipmentOwner(env, id+1)
		assert.ErrorIs(t, err, interfaces.ErrNotFound)
		return nil
	}))
}

func TestLastEquipmentIDBeforeAnyRegistration(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.host.View(context.Background(), alice, func(env interfaces.Env) error {
		last, err := f.registry.LastEquipmentID(env)
		require.NoError(t, err)
		assert.Zero(t, last)
		return nil
	}))
}

func TestRejectedOperationsEmitNothing(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, alice, "SN-1")

	assert.Error(t, f.transfer(bob, id, bob))
	assert.Error(t, f.maintain(bob, id, 1))
	assert.Error(t, f.transfer(alice, id+1, bob))

	assert.Equal(t, []interfaces.EventKind{interfaces.EventEquipmentRegistered}, f.sink.Kinds())
}

// Caller A registers twice and receives 1 then 2; caller B cannot take id 1.
func TestOwnershipScenario(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, interfaces.EquipmentID(1), f.register(t, alice, "first"))
	assert.Equal(t, interfaces.EquipmentID(2), f.register(t, alice, "second"))

	assert.ErrorIs(t, f.transfer(bob, 1, bob), interfaces.ErrUnauthorized)
	assert.Equal(t, alice, f.details(t, 1).Owner)
	assert.Equal(t, alice, f.ledgerOwner(t, 1))
}
