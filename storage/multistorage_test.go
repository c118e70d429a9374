package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/ruteri/equipment-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestReplicatedStore_Get(t *testing.T) {
	testData := []byte("test data")
	testErr := errors.New("connection refused")

	tests := []struct {
		name          string
		setupMocks    func() (*MockStateStore, []*MockStateStore)
		expectedData  []byte
		expectedError error
	}{
		{
			name: "primary successful",
			setupMocks: func() (*MockStateStore, []*MockStateStore) {
				primary := &MockStateStore{StoreName: "primary"}
				primary.On("Get", mock.Anything, "equipment", "1").Return(testData, nil)

				// Replica should not be consulted
				replica := &MockStateStore{StoreName: "replica"}
				return primary, []*MockStateStore{replica}
			},
			expectedData: testData,
		},
		{
			name: "primary not found is authoritative",
			setupMocks: func() (*MockStateStore, []*MockStateStore) {
				primary := &MockStateStore{StoreName: "primary"}
				primary.On("Get", mock.Anything, "equipment", "1").Return(nil, interfaces.ErrKeyNotFound)

				replica := &MockStateStore{StoreName: "replica"}
				return primary, []*MockStateStore{replica}
			},
			expectedError: interfaces.ErrKeyNotFound,
		},
		{
			name: "primary fails, replica serves",
			setupMocks: func() (*MockStateStore, []*MockStateStore) {
				primary := &MockStateStore{StoreName: "primary"}
				primary.On("Get", mock.Anything, "equipment", "1").Return(nil, testErr)

				down := &MockStateStore{StoreName: "down"}
				down.On("Available", mock.Anything).Return(false)

				replica := &MockStateStore{StoreName: "replica"}
				replica.On("Available", mock.Anything).Return(true)
				replica.On("Get", mock.Anything, "equipment", "1").Return(testData, nil)
				return primary, []*MockStateStore{down, replica}
			},
			expectedData: testData,
		},
		{
			name: "all stores fail",
			setupMocks: func() (*MockStateStore, []*MockStateStore) {
				primary := &MockStateStore{StoreName: "primary"}
				primary.On("Get", mock.Anything, "equipment", "1").Return(nil, testErr)

				replica := &MockStateStore{StoreName: "replica"}
				replica.On("Available", mock.Anything).Return(true)
				replica.On("Get", mock.Anything, "equipment", "1").Return(nil, testErr)
				return primary, []*MockStateStore{replica}
			},
			expectedError: interfaces.ErrBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary, replicaMocks := tt.setupMocks()
			var replicas []interfaces.StateStore
			for _, r := range replicaMocks {
				replicas = append(replicas, r)
			}
			store := NewReplicatedStore(primary, replicas, discardLogger())

			data, err := store.Get(context.Background(), "equipment", "1")
			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedData, data)

			primary.AssertExpectations(t)
			for _, r := range replicaMocks {
				r.AssertExpectations(t)
			}
		})
	}
}

func TestReplicatedStore_WriteBatch(t *testing.T) {
	ctx := context.Background()
	mutations := []interfaces.Mutation{
		{Collection: "equipment", Key: "1", Value: []byte("record")},
		{Collection: "certifiers", Key: "aa"},
	}

	t.Run("mirrors to replicas", func(t *testing.T) {
		primary := NewMemoryStore(discardLogger())
		mirror := NewMemoryStore(discardLogger())

		replica := &MockStateStore{StoreName: "per-key"}
		replica.On("Available", mock.Anything).Return(true)
		replica.On("Set", mock.Anything, "equipment", "1", []byte("record")).Return(nil)
		replica.On("Delete", mock.Anything, "certifiers", "aa").Return(nil)

		store := NewReplicatedStore(primary, []interfaces.StateStore{mirror, replica}, discardLogger())
		require.NoError(t, store.WriteBatch(ctx, mutations))

		for _, s := range []interfaces.StateStore{primary, mirror} {
			value, err := s.Get(ctx, "equipment", "1")
			require.NoError(t, err)
			assert.Equal(t, []byte("record"), value)
		}
		replica.AssertExpectations(t)
	})

	t.Run("replica failure does not fail the write", func(t *testing.T) {
		primary := NewMemoryStore(discardLogger())

		replica := &MockStateStore{StoreName: "broken"}
		replica.On("Available", mock.Anything).Return(true)
		replica.On("Set", mock.Anything, "equipment", "1", []byte("record")).Return(errors.New("disk full"))

		store := NewReplicatedStore(primary, []interfaces.StateStore{replica}, discardLogger())
		require.NoError(t, store.WriteBatch(ctx, mutations))
		replica.AssertExpectations(t)
	})

	t.Run("primary failure fails the write", func(t *testing.T) {
		primary := &MockBatchStateStore{MockStateStore: MockStateStore{StoreName: "primary"}}
		primary.On("WriteBatch", mock.Anything, mutations).Return(interfaces.ErrBackendUnavailable)

		replica := &MockStateStore{StoreName: "replica"}

		store := NewReplicatedStore(primary, []interfaces.StateStore{replica}, discardLogger())
		err := store.WriteBatch(ctx, mutations)
		assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
		primary.AssertExpectations(t)
		replica.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("per-key primary is refused before any write", func(t *testing.T) {
		primary := &MockStateStore{StoreName: "per-key"}
		replica := &MockStateStore{StoreName: "replica"}

		store := NewReplicatedStore(primary, []interfaces.StateStore{replica}, discardLogger())
		err := store.WriteBatch(ctx, mutations)
		assert.ErrorIs(t, err, interfaces.ErrNotAtomic)
		primary.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		primary.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
		replica.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCommitBatch(t *testing.T) {
	ctx := context.Background()
	mutations := []interfaces.Mutation{{Collection: "counters", Key: "equipment-id-counter", Value: []byte{2}}}

	perKey := &MockStateStore{StoreName: "per-key"}
	assert.ErrorIs(t, CommitBatch(ctx, perKey, mutations), interfaces.ErrNotAtomic)
	perKey.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.NoError(t, CommitBatch(ctx, perKey, nil))

	memory := NewMemoryStore(discardLogger())
	require.NoError(t, CommitBatch(ctx, memory, mutations))
	value, err := memory.Get(ctx, "counters", "equipment-id-counter")
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, value)
}

func TestReplicatedStore_Available(t *testing.T) {
	primary := &MockStateStore{StoreName: "primary"}
	primary.On("Available", mock.Anything).Return(false)
	replica := NewMemoryStore(discardLogger())

	store := NewReplicatedStore(primary, []interfaces.StateStore{replica}, discardLogger())
	assert.False(t, store.Available(context.Background()))
	assert.Equal(t, "replicated:[mock://primary,memory://]", store.LocationURI())
}
