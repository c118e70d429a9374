package storage

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ruteri/equipment-registry/interfaces"
)

// MemoryStore is an in-memory state store. All mutations, including batches,
// are applied under a single lock.
type MemoryStore struct {
	mutex sync.RWMutex
	data  map[string]map[string][]byte
	log   *slog.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(log *slog.Logger) *MemoryStore {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryStore{
		data: make(map[string]map[string][]byte),
		log:  log,
	}
}

func (m *MemoryStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	value, ok := m.data[collection][key]
	if !ok {
		return nil, interfaces.ErrKeyNotFound
	}
	// Return a copy to prevent modification of internal state
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *MemoryStore) Set(ctx context.Context, collection, key string, value []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.set(collection, key, value)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.data[collection], key)
	return nil
}

// WriteBatch applies all mutations atomically with respect to readers.
func (m *MemoryStore) WriteBatch(ctx context.Context, mutations []interfaces.Mutation) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, mut := range mutations {
		if mut.Value == nil {
			delete(m.data[mut.Collection], mut.Key)
			continue
		}
		m.set(mut.Collection, mut.Key, mut.Value)
	}
	m.log.Debug("Applied batch to memory store", slog.Int("mutations", len(mutations)))
	return nil
}

func (m *MemoryStore) set(collection, key string, value []byte) {
	coll, ok := m.data[collection]
	if !ok {
		coll = make(map[string][]byte)
		m.data[collection] = coll
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	coll[key] = stored
}

func (m *MemoryStore) Available(ctx context.Context) bool {
	return true
}

func (m *MemoryStore) Name() string {
	return "memory"
}

func (m *MemoryStore) LocationURI() string {
	return "memory://"
}

func (m *MemoryStore) Close() error {
	return nil
}
