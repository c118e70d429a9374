package storage

import (
	"path/filepath"
	"testing"

	"github.com/ruteri/equipment-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStoreFor(t *testing.T) {
	dir := t.TempDir()
	factory := NewStateStoreFactory(discardLogger())

	tests := []struct {
		name     string
		uri      string
		wantType interface{}
		wantErr  bool
	}{
		{name: "memory", uri: "memory://", wantType: &MemoryStore{}},
		{name: "file", uri: "file://" + filepath.Join(dir, "state.json"), wantType: &FileStore{}},
		{name: "sqlite", uri: "sqlite://" + filepath.Join(dir, "registry.db"), wantType: &SQLiteStore{}},
		{name: "redis", uri: "redis://:secret@localhost:6379/2?prefix=reg:", wantType: &RedisStore{}},
		{name: "s3", uri: "s3://key:secret@bucket/registry?region=eu-west-1", wantType: &S3Store{}},
		{name: "vault", uri: "vault://vault.local:8200/secret/registry?token=t&tls=false", wantType: &VaultStore{}},
		{name: "unsupported scheme", uri: "ipfs://localhost:5001", wantErr: true},
		{name: "bad redis db", uri: "redis://localhost:6379/zero", wantErr: true},
		{name: "empty file path", uri: "file://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := factory.StateStoreForURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			assert.IsType(t, tt.wantType, store)
		})
	}
}

func TestStateStoreForParsesRedisLocation(t *testing.T) {
	store, err := NewStateStoreFactory(discardLogger()).StateStoreForURI("redis://:secret@localhost:6379/3")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	redisStore := store.(*RedisStore)
	assert.Equal(t, "registry:", redisStore.prefix)
	assert.Equal(t, "redis://localhost:6379/3", redisStore.LocationURI())
	assert.Equal(t, "secret", redisStore.client.Options().Password)
}

func TestStateStoreLocationRedactsCredentials(t *testing.T) {
	store, err := NewStateStoreFactory(discardLogger()).StateStoreForURI("s3://AKIA:topsecret@bucket/prefix")
	require.NoError(t, err)
	assert.NotContains(t, store.LocationURI(), "topsecret")
	assert.Equal(t, "s3://AKIA:***@bucket/prefix?region=us-east-1", store.LocationURI())

	assert.Equal(t, "redis://***@localhost:6379/0", redactURI("redis://:pw@localhost:6379/0"))
	assert.Equal(t, "memory://", redactURI("memory://"))
}

func TestCreateReplicatedStore(t *testing.T) {
	dir := t.TempDir()
	factory := NewStateStoreFactory(discardLogger())

	single, err := factory.CreateReplicatedStore("memory://", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, single)

	replicated, err := factory.CreateReplicatedStore(
		"sqlite://"+filepath.Join(dir, "primary.db"),
		[]string{"file://" + filepath.Join(dir, "mirror.json"), "bogus://nowhere"},
	)
	require.NoError(t, err)
	t.Cleanup(func() { replicated.Close() })

	rs, ok := replicated.(*ReplicatedStore)
	require.True(t, ok)
	assert.Len(t, rs.replicas, 1, "invalid replica URIs are skipped")

	_, err = factory.CreateReplicatedStore("bogus://nowhere", nil)
	assert.Error(t, err)
}

func TestCreateReplicatedStoreRequiresAtomicPrimary(t *testing.T) {
	factory := NewStateStoreFactory(discardLogger())

	for _, uri := range []string{
		"s3://key:secret@bucket/registry?region=eu-west-1",
		"vault://vault.local:8200/secret/registry?token=t&tls=false",
	} {
		_, err := factory.CreateReplicatedStore(uri, nil)
		assert.ErrorIs(t, err, interfaces.ErrNotAtomic, uri)
	}

	replicated, err := factory.CreateReplicatedStore("memory://", []string{"s3://key:secret@bucket/registry?region=eu-west-1"})
	require.NoError(t, err)
	t.Cleanup(func() { replicated.Close() })
	assert.Len(t, replicated.(*ReplicatedStore).replicas, 1)
}
