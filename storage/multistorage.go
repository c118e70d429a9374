package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/equipment-registry/interfaces"
)

// ReplicatedStore writes every mutation to a primary store and mirrors it to
// replicas. The primary is authoritative: a write fails only if the primary
// fails, and replicas are read only while the primary is unreachable.
type ReplicatedStore struct {
	primary  interfaces.StateStore
	replicas []interfaces.StateStore
	log      *slog.Logger
}

// NewReplicatedStore creates a replicated store over primary and replicas.
func NewReplicatedStore(primary interfaces.StateStore, replicas []interfaces.StateStore, logger *slog.Logger) *ReplicatedStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &ReplicatedStore{
		primary:  primary,
		replicas: replicas,
		log:      logger,
	}
}

func (m *ReplicatedStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	data, err := m.primary.Get(ctx, collection, key)
	if err == nil || errors.Is(err, interfaces.ErrKeyNotFound) {
		return data, err
	}

	m.log.Warn("Primary store read failed, trying replicas",
		slog.String("store_name", m.primary.Name()),
		slog.String("collection", collection),
		"err", err)

	errs := []error{fmt.Errorf("%s: %w", m.primary.Name(), err)}
	for _, replica := range m.replicas {
		if !replica.Available(ctx) {
			m.log.Debug("Replica unavailable", slog.String("store_name", replica.Name()))
			continue
		}

		data, err := replica.Get(ctx, collection, key)
		if err == nil || errors.Is(err, interfaces.ErrKeyNotFound) {
			return data, err
		}
		errs = append(errs, fmt.Errorf("%s: %w", replica.Name(), err))
	}

	return nil, fmt.Errorf("%w: all stores failed to read %s/%s: %v", interfaces.ErrBackendUnavailable, collection, key, errs)
}

func (m *ReplicatedStore) Set(ctx context.Context, collection, key string, value []byte) error {
	return m.WriteBatch(ctx, []interfaces.Mutation{{Collection: collection, Key: key, Value: value}})
}

func (m *ReplicatedStore) Delete(ctx context.Context, collection, key string) error {
	return m.WriteBatch(ctx, []interfaces.Mutation{{Collection: collection, Key: key}})
}

// WriteBatch commits to the primary in one atomic batch, then mirrors to every
// available replica. Replica failures are logged and do not fail the write.
func (m *ReplicatedStore) WriteBatch(ctx context.Context, mutations []interfaces.Mutation) error {
	start := time.Now()

	if err := CommitBatch(ctx, m.primary, mutations); err != nil {
		m.log.Error("Primary store failed to apply mutations",
			slog.String("store_name", m.primary.Name()),
			slog.Int("mutations", len(mutations)),
			"err", err)
		return err
	}

	for _, replica := range m.replicas {
		if !replica.Available(ctx) {
			m.log.Warn("Replica unavailable, skipping mirror", slog.String("store_name", replica.Name()))
			continue
		}
		if err := ApplyMutations(ctx, replica, mutations); err != nil {
			m.log.Warn("Failed to mirror mutations to replica",
				slog.String("store_name", replica.Name()),
				"err", err)
		}
	}

	m.log.Debug("Replicated mutations",
		slog.Int("mutations", len(mutations)),
		slog.Int("replicas", len(m.replicas)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Available reports whether the primary is available.
func (m *ReplicatedStore) Available(ctx context.Context) bool {
	return m.primary.Available(ctx)
}

func (m *ReplicatedStore) Name() string {
	return "replicated-storage"
}

func (m *ReplicatedStore) LocationURI() string {
	locations := []string{m.primary.LocationURI()}
	for _, replica := range m.replicas {
		locations = append(locations, replica.LocationURI())
	}
	return "replicated:[" + strings.Join(locations, ",") + "]"
}

// Close closes the primary and all replicas, returning the first error.
func (m *ReplicatedStore) Close() error {
	var firstErr error
	for _, store := range append([]interfaces.StateStore{m.primary}, m.replicas...) {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CommitBatch writes mutations to store as one atomic batch. Stores that do not
// implement interfaces.BatchWriter are refused with interfaces.ErrNotAtomic
// before anything is written.
func CommitBatch(ctx context.Context, store interfaces.StateStore, mutations []interfaces.Mutation) error {
	if len(mutations) == 0 {
		return nil
	}
	bw, ok := store.(interfaces.BatchWriter)
	if !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrNotAtomic, store.Name())
	}
	return bw.WriteBatch(ctx, mutations)
}

// IsAtomic reports whether store can commit a transaction in one step.
func IsAtomic(store interfaces.StateStore) bool {
	_, ok := store.(interfaces.BatchWriter)
	return ok
}

// ApplyMutations writes mutations to store, in one batch if the store
// implements interfaces.BatchWriter and key by key otherwise. It is only used
// to mirror already committed batches to replicas.
func ApplyMutations(ctx context.Context, store interfaces.StateStore, mutations []interfaces.Mutation) error {
	if len(mutations) == 0 {
		return nil
	}
	if bw, ok := store.(interfaces.BatchWriter); ok {
		return bw.WriteBatch(ctx, mutations)
	}

	for _, mut := range mutations {
		var err error
		if mut.Value == nil {
			err = store.Delete(ctx, mut.Collection, mut.Key)
		} else {
			err = store.Set(ctx, mut.Collection, mut.Key, mut.Value)
		}
		if err != nil {
			return fmt.Errorf("%s: apply %s/%s: %w", store.Name(), mut.Collection, mut.Key, err)
		}
	}
	return nil
}
