// Package events provides the generic event infrastructure for lifecycle
// event emission. It defines the Envelope type that wraps a domain payload
// with routing and deduplication metadata, and the EventSink interface that
// delivers envelopes downstream.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the envelope version stamped on events emitted by this module.
const SchemaVersion = "1.0.0"

// Envelope wraps a domain event with consistent metadata.
//
// The envelope pattern enables:
// - Schema evolution through versioning
// - Event deduplication via idempotency keys
// - Workflow execution tracking.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event for routing.
	// Examples: "answer.started", "answer.review_finalized"
	Type string `json:"type"`

	// Source identifies the component that emitted this event.
	// Examples: "assessment-service", "attempt-activity"
	Source string `json:"source"`

	// Version of the envelope schema.
	Version string `json:"version"`

	// Timestamp records when the underlying operation was applied.
	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey is stable across retries of the same operation.
	IdempotencyKey string `json:"idempotency_key"`

	// SubjectID identifies the aggregate the event is about (the answer).
	SubjectID string `json:"subject_id"`

	// WorkflowID and RunID identify the Temporal execution that emitted the
	// event, when there is one.
	WorkflowID string `json:"workflow_id,omitempty"`
	RunID      string `json:"run_id,omitempty"`

	// Payload contains the event data as JSON. Its schema varies by Type.
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope stamps a fresh ID and the current schema version.
func NewEnvelope(eventType, source, subjectID, idempotencyKey string, at time.Time, payload json.RawMessage) Envelope {
	return Envelope{
		ID:             uuid.NewString(),
		Type:           eventType,
		Source:         source,
		Version:        SchemaVersion,
		Timestamp:      at,
		IdempotencyKey: idempotencyKey,
		SubjectID:      subjectID,
		Payload:        payload,
	}
}

// EventSink delivers events to downstream consumers: an outbox table, a
// message queue or the log.
type EventSink interface {
	// Append adds an event with best-effort delivery. Implementations treat
	// a repeated idempotency key as a no-op.
	//
	// Callers must not fail their primary operation because Append failed;
	// the state change is already persisted when events are emitted.
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards every event.
type NoOpEventSink struct{}

// Append implements EventSink.Append with no-op behavior.
func (n *NoOpEventSink) Append(_ context.Context, _ Envelope) error {
	return nil
}

// NewNoOpEventSink creates a new no-op event sink.
func NewNoOpEventSink() EventSink {
	return &NoOpEventSink{}
}
