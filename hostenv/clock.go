package hostenv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/equipment-registry/codec"
	"github.com/ruteri/equipment-registry/interfaces"
	"go.uber.org/atomic"
)

const (
	metaCollection = "meta"
	heightKey      = "height"
)

// ErrClockRegression is returned when a clock would move backwards.
var ErrClockRegression = errors.New("clock height cannot decrease")

// LocalClock is a height counter persisted in the state store under meta/height.
// It only moves forward, by Advance.
type LocalClock struct {
	mu    sync.Mutex
	store interfaces.StateStore
}

func NewLocalClock(store interfaces.StateStore) *LocalClock {
	return &LocalClock{store: store}
}

// Height returns the persisted height, 0 if the clock never advanced.
func (c *LocalClock) Height(ctx context.Context) (uint64, error) {
	data, err := c.store.Get(ctx, metaCollection, heightKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return codec.DecodeUint64(data)
}

// Advance moves the clock forward by n and returns the new height.
func (c *LocalClock) Advance(ctx context.Context, n uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.Height(ctx)
	if err != nil {
		return 0, err
	}
	next := current + n
	if next < current {
		return 0, fmt.Errorf("%w: overflow advancing %d by %d", ErrClockRegression, current, n)
	}
	if err := c.store.Set(ctx, metaCollection, heightKey, codec.EncodeUint64(next)); err != nil {
		return 0, err
	}
	return next, nil
}

// AdvanceTo moves the clock to height. Moving to a lower height fails.
func (c *LocalClock) AdvanceTo(ctx context.Context, height uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.Height(ctx)
	if err != nil {
		return err
	}
	if height < current {
		return fmt.Errorf("%w: %d < %d", ErrClockRegression, height, current)
	}
	return c.store.Set(ctx, metaCollection, heightKey, codec.EncodeUint64(height))
}

// EthClock uses the latest block number of an Ethereum node as the height.
type EthClock struct {
	client ethereum.BlockNumberReader
	log    *slog.Logger
}

func NewEthClock(client ethereum.BlockNumberReader, log *slog.Logger) *EthClock {
	return &EthClock{client: client, log: log}
}

// DialEthClock connects to the RPC endpoint at rpcAddr.
func DialEthClock(ctx context.Context, rpcAddr string, log *slog.Logger) (*EthClock, error) {
	client, err := ethclient.DialContext(ctx, rpcAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC %s: %w", rpcAddr, err)
	}
	return NewEthClock(client, log), nil
}

func (c *EthClock) Height(ctx context.Context) (uint64, error) {
	n, err := c.client.BlockNumber(ctx)
	if err != nil {
		c.log.Warn("Failed to fetch block number", "err", err)
		return 0, err
	}
	return n, nil
}

// WallClock uses unix seconds as the height. It never reports a value lower
// than one it already returned, even if the system time steps back.
type WallClock struct {
	now  func() time.Time
	last atomic.Uint64
}

func NewWallClock() *WallClock {
	return &WallClock{now: time.Now}
}

func (c *WallClock) Height(ctx context.Context) (uint64, error) {
	t := c.now().Unix()
	if t < 0 {
		t = 0
	}
	for {
		last := c.last.Load()
		next := uint64(t)
		if next < last {
			return last, nil
		}
		if c.last.CompareAndSwap(last, next) {
			return next, nil
		}
	}
}

// FixedClock returns a height set explicitly. Intended for tests and replay.
type FixedClock struct {
	height atomic.Uint64
}

func NewFixedClock(height uint64) *FixedClock {
	c := &FixedClock{}
	c.height.Store(height)
	return c
}

func (c *FixedClock) Height(ctx context.Context) (uint64, error) {
	return c.height.Load(), nil
}

// Set moves the clock to height. Lower heights are rejected.
func (c *FixedClock) Set(height uint64) error {
	for {
		current := c.height.Load()
		if height < current {
			return fmt.Errorf("%w: %d < %d", ErrClockRegression, height, current)
		}
		if c.height.CompareAndSwap(current, height) {
			return nil
		}
	}
}
