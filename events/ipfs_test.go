package events

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/ruteri/equipment-registry/interfaces"
	"github.com/ruteri/equipment-registry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIPFSArchiveUnavailable(t *testing.T) {
	ctx := context.Background()
	heads := storage.NewMemoryStore(discardLogger())
	require.NoError(t, heads.Set(ctx, "meta", "ipfs-head", []byte("QmPrevious")))

	archive := NewIPFSArchive("127.0.0.1:1", heads, discardLogger())
	require.NoError(t, archive.Resume(ctx))
	assert.Equal(t, "QmPrevious", archive.Head())

	err := archive.Ingest(ctx, []interfaces.Event{{Kind: interfaces.EventEquipmentRegistered}})
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	assert.Equal(t, "QmPrevious", archive.Head())

	stored, err := heads.Get(ctx, "meta", "ipfs-head")
	require.NoError(t, err)
	assert.Equal(t, []byte("QmPrevious"), stored)
}

func TestIPFSArchiveResume(t *testing.T) {
	ctx := context.Background()

	fresh := NewIPFSArchive("127.0.0.1:1", storage.NewMemoryStore(discardLogger()), discardLogger())
	require.NoError(t, fresh.Resume(ctx))
	assert.Empty(t, fresh.Head())

	unpersisted := NewIPFSArchive("127.0.0.1:1", nil, discardLogger())
	require.NoError(t, unpersisted.Resume(ctx))
	assert.Empty(t, unpersisted.Head())
}

func TestIPFSArchiveHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	archive := NewIPFSArchive("127.0.0.1:1", nil, discardLogger())
	err := archive.Ingest(ctx, []interfaces.Event{{Kind: interfaces.EventEquipmentRegistered}})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = archive.Fetch(ctx, "QmPrevious")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIPFSArchiveChain(t *testing.T) {
	addr := os.Getenv("REGISTRY_TEST_IPFS_ADDR")
	if addr == "" {
		t.Skip("REGISTRY_TEST_IPFS_ADDR not set")
	}
	ctx := context.Background()
	heads := storage.NewMemoryStore(discardLogger())
	archive := NewIPFSArchive(addr, heads, discardLogger())

	first := []interfaces.Event{{Kind: interfaces.EventRegistryDeployed, Height: 1}}
	second := []interfaces.Event{{Kind: interfaces.EventCertifierAdded, Height: 2, Attributes: map[string]string{"certifier": "0xc1"}}}

	require.NoError(t, archive.Ingest(ctx, first))
	firstCID := archive.Head()

	// A restarted archive continues the persisted chain
	restarted := NewIPFSArchive(addr, heads, discardLogger())
	require.NoError(t, restarted.Resume(ctx))
	require.Equal(t, firstCID, restarted.Head())
	require.NoError(t, restarted.Ingest(ctx, second))
	require.NotEqual(t, firstCID, restarted.Head())

	batch, err := restarted.Fetch(ctx, restarted.Head())
	require.NoError(t, err)
	assert.Equal(t, firstCID, batch.Previous)
	assert.Equal(t, second, batch.Events)

	batch, err = restarted.Fetch(ctx, batch.Previous)
	require.NoError(t, err)
	assert.Empty(t, batch.Previous)
	assert.Equal(t, first, batch.Events)
}
