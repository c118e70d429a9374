// Package events provides sinks for events of committed registry transactions.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ruteri/equipment-registry/interfaces"
)

// MemorySink keeps every ingested event in memory, in commit order.
type MemorySink struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Ingest(ctx context.Context, events []interfaces.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// Events returns a copy of all events received so far.
func (s *MemorySink) Events() []interfaces.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]interfaces.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Kinds returns the kinds of all events received so far.
func (s *MemorySink) Kinds() []interfaces.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]interfaces.EventKind, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

// LogSink writes each event as a structured log line.
type LogSink struct {
	log   *slog.Logger
	level slog.Level
}

func NewLogSink(log *slog.Logger, level slog.Level) *LogSink {
	return &LogSink{log: log, level: level}
}

func (s *LogSink) Ingest(ctx context.Context, events []interfaces.Event) error {
	for _, ev := range events {
		attrs := []any{
			slog.String("kind", string(ev.Kind)),
			slog.Uint64("height", ev.Height),
			slog.String("caller", ev.Caller.Hex()),
		}
		for k, v := range ev.Attributes {
			attrs = append(attrs, slog.String(k, v))
		}
		s.log.Log(ctx, s.level, "Registry event", attrs...)
	}
	return nil
}
