package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/equipment-registry/interfaces"
)

// ArchivedBatch is the document stored in IPFS for one committed transaction.
// Previous is the CID of the batch archived before it, empty for the first,
// so the archive can be walked backwards from Head.
type ArchivedBatch struct {
	Previous string             `json:"previous,omitempty"`
	Events   []interfaces.Event `json:"events"`
}

const (
	metaCollection = "meta"
	ipfsHeadKey    = "ipfs-head"
)

// IPFSArchive appends committed events to IPFS as a hash-linked chain of
// batches. The head of the chain is kept in a state store under
// meta/ipfs-head, so a restarted server continues the same chain.
type IPFSArchive struct {
	shell *shell.Shell
	addr  string
	heads interfaces.StateStore
	log   *slog.Logger

	mu   sync.Mutex
	head string
}

// NewIPFSArchive connects to the IPFS API at addr (host:port). heads persists
// the chain head and may be nil, in which case every process starts a new
// chain. Call Resume to continue a persisted chain.
func NewIPFSArchive(addr string, heads interfaces.StateStore, log *slog.Logger) *IPFSArchive {
	return &IPFSArchive{
		shell: shell.NewShell(addr),
		addr:  addr,
		heads: heads,
		log:   log,
	}
}

// Resume loads the persisted chain head.
func (a *IPFSArchive) Resume(ctx context.Context) error {
	if a.heads == nil {
		return nil
	}
	data, err := a.heads.Get(ctx, metaCollection, ipfsHeadKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load archive head: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.head = string(data)
	a.log.Info("Resuming event archive", slog.String("head", a.head))
	return nil
}

func (a *IPFSArchive) Ingest(ctx context.Context, events []interfaces.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.shell.IsUp() {
		a.log.Warn("IPFS node unavailable", slog.String("addr", a.addr))
		return interfaces.ErrBackendUnavailable
	}

	data, err := json.Marshal(ArchivedBatch{Previous: a.head, Events: events})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cid, err := a.shell.Add(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to add events to IPFS: %w", err)
	}

	a.log.Debug("Archived events", slog.String("cid", cid), slog.Int("events", len(events)))
	a.head = cid
	if a.heads != nil {
		if err := a.heads.Set(ctx, metaCollection, ipfsHeadKey, []byte(cid)); err != nil {
			return fmt.Errorf("failed to persist archive head %s: %w", cid, err)
		}
	}
	return nil
}

// Head returns the CID of the most recently archived batch.
func (a *IPFSArchive) Head() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.head
}

// Fetch reads an archived batch by CID.
func (a *IPFSArchive) Fetch(ctx context.Context, cid string) (ArchivedBatch, error) {
	var batch ArchivedBatch
	if err := ctx.Err(); err != nil {
		return batch, err
	}
	reader, err := a.shell.Cat(cid)
	if err != nil {
		return batch, fmt.Errorf("failed to fetch %s from IPFS: %w", cid, err)
	}
	defer reader.Close()

	if err := json.NewDecoder(reader).Decode(&batch); err != nil {
		return batch, fmt.Errorf("failed to decode archived batch %s: %w", cid, err)
	}
	return batch, nil
}
