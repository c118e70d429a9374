// Package hostenv implements the transactional host the registries run in.
//
// The Host totally orders transactions, pins the clock height for the
// duration of each one, stages all writes and commits them in a single batch
// only when the operation returns without error. Events emitted by a
// transaction reach the configured sinks only after its commit.
package hostenv

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/equipment-registry/interfaces"
	"github.com/ruteri/equipment-registry/metrics"
	"github.com/ruteri/equipment-registry/storage"
)

// Operation runs against the Env of a single transaction.
type Operation func(env interfaces.Env) error

// Host executes registry operations as serialized, all-or-nothing transactions.
type Host struct {
	mu    sync.Mutex
	store interfaces.StateStore
	clock interfaces.Clock
	sinks []interfaces.EventSink
	log   *slog.Logger
}

// NewHost creates a host over store, reading heights from clock.
func NewHost(store interfaces.StateStore, clock interfaces.Clock, log *slog.Logger, sinks ...interfaces.EventSink) *Host {
	if log == nil {
		log = slog.Default()
	}
	return &Host{
		store: store,
		clock: clock,
		sinks: sinks,
		log:   log,
	}
}

// Execute runs fn as one transaction on behalf of caller. Writes staged by fn
// are committed only if fn returns nil; otherwise nothing is persisted and
// fn's error is returned unchanged. The store must implement
// interfaces.BatchWriter, otherwise the commit fails with
// interfaces.ErrNotAtomic and nothing is written.
func (h *Host) Execute(ctx context.Context, op string, caller interfaces.Identity, fn Operation) error {
	return h.run(ctx, op, caller, nil, fn)
}

// ExecuteSigned runs fn like Execute for a request the caller signed with
// nonce. nonce must equal the caller's next nonce, otherwise the transaction
// fails with interfaces.ErrNonceMismatch before fn runs. The nonce is consumed
// even when fn fails, so a signed request takes effect at most once.
func (h *Host) ExecuteSigned(ctx context.Context, op string, caller interfaces.Identity, nonce uint64, fn Operation) error {
	return h.run(ctx, op, caller, &nonce, fn)
}

// Nonce returns the nonce the next signed request of who must carry.
func (h *Host) Nonce(ctx context.Context, who interfaces.Identity) (uint64, error) {
	var next uint64
	err := h.View(ctx, who, func(env interfaces.Env) error {
		var err error
		next, _, err = env.Counter(nonceCounter(who))
		return err
	})
	return next, err
}

func nonceCounter(caller interfaces.Identity) string {
	return "nonce/" + interfaces.IdentityKey(caller)
}

// useNonce checks nonce against the caller's counter and advances it.
func useNonce(env interfaces.Env, nonce uint64) error {
	name := nonceCounter(env.Caller())
	next, _, err := env.Counter(name)
	if err != nil {
		return err
	}
	if nonce != next {
		return fmt.Errorf("%w: got %d, expected %d", interfaces.ErrNonceMismatch, nonce, next)
	}
	return env.SetCounter(name, next+1)
}

func (h *Host) run(ctx context.Context, op string, caller interfaces.Identity, nonce *uint64, fn Operation) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordTransaction(op, outcome(err), time.Since(start))
	}()

	h.mu.Lock()
	defer h.mu.Unlock()

	env, err := h.begin(ctx, caller, false)
	if err != nil {
		return err
	}

	if nonce != nil {
		if err := useNonce(env, *nonce); err != nil {
			h.log.Debug("Rejected signed request", slog.String("operation", op), slog.String("caller", caller.Hex()), "err", err)
			return err
		}
	}

	if err := fn(env); err != nil {
		h.log.Debug("Transaction rejected",
			slog.String("operation", op),
			slog.String("caller", caller.Hex()),
			slog.String("kind", interfaces.ErrorKind(err)),
			"err", err)
		if nonce != nil {
			h.consumeNonce(ctx, op, caller, env.height, *nonce)
		}
		return err
	}

	mutations := env.mutations()
	if err := storage.CommitBatch(ctx, h.store, mutations); err != nil {
		h.log.Error("Failed to commit transaction",
			slog.String("operation", op),
			slog.String("store", h.store.Name()),
			slog.Int("mutations", len(mutations)),
			"err", err)
		return fmt.Errorf("commit %s: %w", op, err)
	}

	h.log.Debug("Transaction committed",
		slog.String("operation", op),
		slog.String("caller", caller.Hex()),
		slog.Uint64("height", env.height),
		slog.Int("mutations", len(mutations)),
		slog.Duration("duration", time.Since(start)))

	h.publish(ctx, env.events)
	return nil
}

// View runs fn as a read-only transaction. Any write attempted by fn fails with
// interfaces.ErrReadOnly.
func (h *Host) View(ctx context.Context, caller interfaces.Identity, fn Operation) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	env, err := h.begin(ctx, caller, true)
	if err != nil {
		return err
	}
	return fn(env)
}

// Height returns the current clock value.
func (h *Host) Height(ctx context.Context) (uint64, error) {
	height, err := h.clock.Height(ctx)
	if err != nil {
		return 0, fmt.Errorf("read clock: %w", err)
	}
	metrics.SetClockHeight(height)
	return height, nil
}

// Available reports whether the backing store is reachable.
func (h *Host) Available(ctx context.Context) bool {
	return h.store.Available(ctx)
}

// Store returns the backing state store.
func (h *Host) Store() interfaces.StateStore {
	return h.store
}

// consumeNonce commits only the nonce advance of a rejected signed request.
func (h *Host) consumeNonce(ctx context.Context, op string, caller interfaces.Identity, height uint64, nonce uint64) {
	env := newTxEnv(ctx, h.store, caller, height, false)
	err := useNonce(env, nonce)
	if err == nil {
		err = storage.CommitBatch(ctx, h.store, env.mutations())
	}
	if err != nil {
		h.log.Error("Failed to consume nonce of rejected request",
			slog.String("operation", op),
			slog.String("caller", caller.Hex()),
			"err", err)
	}
}

func (h *Host) begin(ctx context.Context, caller interfaces.Identity, readOnly bool) (*txEnv, error) {
	height, err := h.Height(ctx)
	if err != nil {
		h.log.Error("Failed to read clock", "err", err)
		return nil, err
	}
	return newTxEnv(ctx, h.store, caller, height, readOnly), nil
}

func (h *Host) publish(ctx context.Context, events []interfaces.Event) {
	if len(events) == 0 {
		return
	}
	for _, ev := range events {
		metrics.RecordEvent(string(ev.Kind))
	}
	for _, sink := range h.sinks {
		if err := sink.Ingest(ctx, events); err != nil {
			h.log.Warn("Event sink failed", slog.Int("events", len(events)), "err", err)
		}
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return interfaces.ErrorKind(err)
}
