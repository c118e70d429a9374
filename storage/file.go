package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ruteri/equipment-registry/interfaces"
)

// FileStore implements a state store as a single JSON snapshot on the local file system.
// Every write rewrites the snapshot through a temporary file and an atomic rename,
// so a batch is either fully on disk or not at all.
type FileStore struct {
	mutex       sync.RWMutex
	path        string
	data        map[string]map[string][]byte
	log         *slog.Logger
	locationURI string
}

type fileSnapshot struct {
	Collections map[string]map[string][]byte `json:"collections"`
}

// NewFileStore opens or creates the snapshot at path.
func NewFileStore(path string, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	store := &FileStore{
		path:        path,
		data:        make(map[string]map[string][]byte),
		log:         log,
		locationURI: fmt.Sprintf("file://%s", path),
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Debug("Creating new state snapshot", slog.String("path", path))
	case err != nil:
		return nil, fmt.Errorf("failed to read state snapshot: %w", err)
	default:
		var snap fileSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("failed to parse state snapshot: %w", err)
		}
		if snap.Collections != nil {
			store.data = snap.Collections
		}
	}

	return store, nil
}

func (b *FileStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	value, ok := b.data[collection][key]
	if !ok {
		return nil, interfaces.ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (b *FileStore) Set(ctx context.Context, collection, key string, value []byte) error {
	return b.WriteBatch(ctx, []interfaces.Mutation{{Collection: collection, Key: key, Value: value}})
}

func (b *FileStore) Delete(ctx context.Context, collection, key string) error {
	return b.WriteBatch(ctx, []interfaces.Mutation{{Collection: collection, Key: key}})
}

// WriteBatch applies mutations to a copy of the state and persists it. The
// in-memory state is replaced only after the snapshot reached disk.
func (b *FileStore) WriteBatch(ctx context.Context, mutations []interfaces.Mutation) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	next := make(map[string]map[string][]byte, len(b.data))
	for coll, values := range b.data {
		cp := make(map[string][]byte, len(values))
		for k, v := range values {
			cp[k] = v
		}
		next[coll] = cp
	}

	for _, mut := range mutations {
		if mut.Value == nil {
			delete(next[mut.Collection], mut.Key)
			continue
		}
		coll, ok := next[mut.Collection]
		if !ok {
			coll = make(map[string][]byte)
			next[mut.Collection] = coll
		}
		stored := make([]byte, len(mut.Value))
		copy(stored, mut.Value)
		coll[mut.Key] = stored
	}

	if err := b.persist(next); err != nil {
		return err
	}
	b.data = next

	b.log.Debug("Persisted state snapshot",
		slog.String("path", b.path),
		slog.Int("mutations", len(mutations)))
	return nil
}

func (b *FileStore) persist(state map[string]map[string][]byte) error {
	raw, err := json.Marshal(fileSnapshot{Collections: state})
	if err != nil {
		return fmt.Errorf("failed to encode state snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Available checks if the directory holding the snapshot exists.
func (b *FileStore) Available(ctx context.Context) bool {
	_, err := os.Stat(filepath.Dir(b.path))
	if err != nil {
		b.log.Debug("File store unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this store.
func (b *FileStore) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.path))
}

// LocationURI returns the URI that identifies this store.
func (b *FileStore) LocationURI() string {
	return b.locationURI
}

func (b *FileStore) Close() error {
	return nil
}
