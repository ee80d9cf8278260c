package events

import (
	"context"
	"log/slog"
	"sync"
)

// SlogSink writes each event as one structured log record.
type SlogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogSink logs at level through logger, or slog.Default when nil.
func NewSlogSink(logger *slog.Logger, level slog.Level) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger, level: level}
}

// Append logs the envelope.
func (s *SlogSink) Append(ctx context.Context, e Envelope) error {
	s.logger.LogAttrs(ctx, s.level, "lifecycle event",
		slog.String("event_id", e.ID),
		slog.String("type", e.Type),
		slog.String("source", e.Source),
		slog.String("subject_id", e.SubjectID),
		slog.String("idempotency_key", e.IdempotencyKey),
		slog.Time("occurred_at", e.Timestamp),
		slog.String("workflow_id", e.WorkflowID),
		slog.String("payload", string(e.Payload)),
	)
	return nil
}

// MemorySink keeps appended envelopes in order and drops repeated
// idempotency keys. Used by tests and local runs.
type MemorySink struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	events []Envelope
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[string]struct{})}
}

// Append records e unless its idempotency key was already recorded.
func (m *MemorySink) Append(_ context.Context, e Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.IdempotencyKey != "" {
		if _, dup := m.seen[e.IdempotencyKey]; dup {
			return nil
		}
		m.seen[e.IdempotencyKey] = struct{}{}
	}
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of the recorded envelopes.
func (m *MemorySink) Events() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Envelope(nil), m.events...)
}

// Types returns the recorded event types in order.
func (m *MemorySink) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}
