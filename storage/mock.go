package storage

import (
	"context"

	"github.com/ruteri/equipment-registry/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockStateStore implements interfaces.StateStore for testing.
type MockStateStore struct {
	mock.Mock
	StoreName string
}

func (m *MockStateStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	args := m.Called(ctx, collection, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStateStore) Set(ctx context.Context, collection, key string, value []byte) error {
	args := m.Called(ctx, collection, key, value)
	return args.Error(0)
}

func (m *MockStateStore) Delete(ctx context.Context, collection, key string) error {
	args := m.Called(ctx, collection, key)
	return args.Error(0)
}

func (m *MockStateStore) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockStateStore) Name() string {
	if m.StoreName == "" {
		return "mock"
	}
	return m.StoreName
}

func (m *MockStateStore) LocationURI() string {
	return "mock://" + m.Name()
}

func (m *MockStateStore) Close() error {
	return nil
}

// MockBatchStateStore is a MockStateStore that also implements
// interfaces.BatchWriter.
type MockBatchStateStore struct {
	MockStateStore
}

func (m *MockBatchStateStore) WriteBatch(ctx context.Context, mutations []interfaces.Mutation) error {
	args := m.Called(ctx, mutations)
	return args.Error(0)
}
