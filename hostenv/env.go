package hostenv

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ruteri/equipment-registry/codec"
	"github.com/ruteri/equipment-registry/interfaces"
)

const (
	countersCollection = "counters"
	ownershipPrefix    = "ownership/"
)

type stagedKey struct {
	collection string
	key        string
}

type stagedValue struct {
	value   []byte
	deleted bool
}

// txEnv is the interfaces.Env of a single transaction. Writes go to an
// overlay; reads see the overlay first and the store second.
type txEnv struct {
	ctx      context.Context
	store    interfaces.StateStore
	caller   interfaces.Identity
	height   uint64
	readOnly bool

	staged map[stagedKey]stagedValue
	order  []stagedKey
	events []interfaces.Event
}

func newTxEnv(ctx context.Context, store interfaces.StateStore, caller interfaces.Identity, height uint64, readOnly bool) *txEnv {
	return &txEnv{
		ctx:      ctx,
		store:    store,
		caller:   caller,
		height:   height,
		readOnly: readOnly,
		staged:   make(map[stagedKey]stagedValue),
	}
}

func (e *txEnv) Caller() interfaces.Identity {
	return e.caller
}

func (e *txEnv) Height() uint64 {
	return e.height
}

func (e *txEnv) Get(collection, key string) ([]byte, error) {
	if sv, ok := e.staged[stagedKey{collection, key}]; ok {
		if sv.deleted {
			return nil, interfaces.ErrKeyNotFound
		}
		out := make([]byte, len(sv.value))
		copy(out, sv.value)
		return out, nil
	}
	return e.store.Get(e.ctx, collection, key)
}

func (e *txEnv) Set(collection, key string, value []byte) error {
	if e.readOnly {
		return interfaces.ErrReadOnly
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	e.stage(stagedKey{collection, key}, stagedValue{value: stored})
	return nil
}

func (e *txEnv) Delete(collection, key string) error {
	if e.readOnly {
		return interfaces.ErrReadOnly
	}
	e.stage(stagedKey{collection, key}, stagedValue{deleted: true})
	return nil
}

func (e *txEnv) stage(k stagedKey, v stagedValue) {
	if _, ok := e.staged[k]; !ok {
		e.order = append(e.order, k)
	}
	e.staged[k] = v
}

func (e *txEnv) Counter(name string) (uint64, bool, error) {
	data, err := e.Get(countersCollection, name)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	v, err := codec.DecodeUint64(data)
	if err != nil {
		return 0, false, fmt.Errorf("counter %s: %w", name, err)
	}
	return v, true, nil
}

func (e *txEnv) SetCounter(name string, value uint64) error {
	return e.Set(countersCollection, name, codec.EncodeUint64(value))
}

func (e *txEnv) Mint(assetClass string, id uint64, owner interfaces.Identity) error {
	if owner == interfaces.EmptyIdentity {
		return fmt.Errorf("%w: mint %s/%d to empty owner", interfaces.ErrInvalidArgument, assetClass, id)
	}
	_, err := e.OwnerOf(assetClass, id)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s/%d", interfaces.ErrTokenExists, assetClass, id)
	case !errors.Is(err, interfaces.ErrKeyNotFound):
		return err
	}
	return e.Set(ownershipPrefix+assetClass, strconv.FormatUint(id, 10), codec.EncodeIdentity(owner))
}

func (e *txEnv) TransferOwnership(assetClass string, id uint64, from, to interfaces.Identity) error {
	if to == interfaces.EmptyIdentity {
		return fmt.Errorf("%w: transfer %s/%d to empty owner", interfaces.ErrInvalidArgument, assetClass, id)
	}
	holder, err := e.OwnerOf(assetClass, id)
	if err != nil {
		return err
	}
	if holder != from {
		return fmt.Errorf("%w: %s/%d is held by %s", interfaces.ErrOwnershipMismatch, assetClass, id, holder.Hex())
	}
	return e.Set(ownershipPrefix+assetClass, strconv.FormatUint(id, 10), codec.EncodeIdentity(to))
}

func (e *txEnv) OwnerOf(assetClass string, id uint64) (interfaces.Identity, error) {
	data, err := e.Get(ownershipPrefix+assetClass, strconv.FormatUint(id, 10))
	if err != nil {
		return interfaces.Identity{}, err
	}
	return codec.DecodeIdentity(data)
}

func (e *txEnv) Emit(event interfaces.Event) {
	event.Height = e.height
	event.Caller = e.caller
	e.events = append(e.events, event)
}

// mutations returns the staged writes in first-write order.
func (e *txEnv) mutations() []interfaces.Mutation {
	out := make([]interfaces.Mutation, 0, len(e.order))
	for _, k := range e.order {
		sv := e.staged[k]
		mut := interfaces.Mutation{Collection: k.collection, Key: k.key}
		if !sv.deleted {
			mut.Value = sv.value
		}
		out = append(out, mut)
	}
	return out
}
