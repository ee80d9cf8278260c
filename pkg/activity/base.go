// Package activity provides common infrastructure for Temporal activity
// implementations: workflow context extraction, safe logging and best-effort
// event emission that work both inside a Temporal activity and in plain tests.
package activity

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/ahrav/go-examen/pkg/events"
)

// Emission retry policy.
const (
	emitAttempts   = 2
	emitRetryDelay = 200 * time.Millisecond
)

// WorkflowContext contains metadata extracted from the Temporal activity context.
type WorkflowContext struct {
	WorkflowID string
	RunID      string
	ActivityID string
}

// InActivity reports whether the context came from a real activity execution.
func (w WorkflowContext) InActivity() bool { return w.WorkflowID != "" }

// BaseActivities provides event emission and context helpers to activity types.
type BaseActivities struct {
	eventSink events.EventSink
}

// NewBaseActivities creates a BaseActivities with the given sink. A nil sink
// disables emission.
func NewBaseActivities(sink events.EventSink) BaseActivities {
	return BaseActivities{eventSink: sink}
}

// GetWorkflowContext extracts workflow execution details. Outside an activity
// (where activity.GetInfo panics) it returns the zero WorkflowContext.
func (b *BaseActivities) GetWorkflowContext(ctx context.Context) WorkflowContext {
	var wfCtx WorkflowContext

	func() {
		defer func() {
			if r := recover(); r != nil {
				wfCtx = WorkflowContext{}
			}
		}()

		info := activity.GetInfo(ctx)
		wfCtx.WorkflowID = info.WorkflowExecution.ID
		wfCtx.RunID = info.WorkflowExecution.RunID
		wfCtx.ActivityID = info.ActivityID
	}()

	return wfCtx
}

// EmitEventSafe stamps the envelope with the workflow execution and appends
// it, retrying once after a short delay. Failures are logged, never returned:
// the state change the event describes is already persisted.
func (b *BaseActivities) EmitEventSafe(ctx context.Context, envelope events.Envelope, description string) {
	if b.eventSink == nil {
		return
	}

	if wf := b.GetWorkflowContext(ctx); wf.InActivity() {
		if envelope.WorkflowID == "" {
			envelope.WorkflowID = wf.WorkflowID
		}
		if envelope.RunID == "" {
			envelope.RunID = wf.RunID
		}
	}

	var lastErr error
	for attempt := 0; attempt < emitAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(emitRetryDelay):
			case <-ctx.Done():
				SafeLogError(ctx, fmt.Sprintf("Event emission cancelled: %s", description),
					"event_type", envelope.Type)
				return
			}
		}

		if err := b.eventSink.Append(ctx, envelope); err != nil {
			lastErr = err
			continue
		}

		SafeLog(ctx, fmt.Sprintf("Event emitted: %s", description),
			"event_type", envelope.Type,
			"idempotency_key", envelope.IdempotencyKey)
		return
	}

	SafeLogError(ctx, fmt.Sprintf("Failed to emit %s after %d attempts", description, emitAttempts),
		"event_type", envelope.Type,
		"error", lastErr)
}

// Sink exposes EmitEventSafe as an events.EventSink so that services invoked
// from an activity emit through the same retrying, execution-stamped path.
// Its Append never fails.
func (b *BaseActivities) Sink() events.EventSink { return safeSink{b: b} }

type safeSink struct{ b *BaseActivities }

func (s safeSink) Append(ctx context.Context, e events.Envelope) error {
	s.b.EmitEventSafe(ctx, e, e.Type)
	return nil
}

// RecordHeartbeat safely records a heartbeat in the Temporal activity context.
func (b *BaseActivities) RecordHeartbeat(ctx context.Context, details ...any) {
	RecordHeartbeat(ctx, details...)
}

// SafeLog logs through the activity logger, and does nothing outside an activity.
func SafeLog(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Info(msg, keyvals...)
}

// SafeLogError is SafeLog at error level.
func SafeLogError(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Error(msg, keyvals...)
}

// RecordHeartbeat records activity progress, and does nothing outside an activity.
func RecordHeartbeat(ctx context.Context, details ...any) {
	defer func() { _ = recover() }()
	activity.RecordHeartbeat(ctx, details...)
}
