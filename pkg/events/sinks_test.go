package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-examen/pkg/events"
)

func TestNewEnvelope(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	e := events.NewEnvelope("answer.started", "test", "subject", "key-1", at, json.RawMessage(`{"a":1}`))

	_, err := uuid.Parse(e.ID)
	require.NoError(t, err)
	assert.Equal(t, events.SchemaVersion, e.Version)
	assert.Equal(t, at, e.Timestamp)
	assert.Equal(t, "subject", e.SubjectID)

	other := events.NewEnvelope("answer.started", "test", "subject", "key-1", at, nil)
	assert.NotEqual(t, e.ID, other.ID)
}

func TestMemorySink_DropsRepeatedIdempotencyKeys(t *testing.T) {
	ctx := context.Background()
	sink := events.NewMemorySink()
	at := time.Now()

	require.NoError(t, sink.Append(ctx, events.NewEnvelope("answer.assigned", "test", "s", "k1", at, nil)))
	require.NoError(t, sink.Append(ctx, events.NewEnvelope("answer.assigned", "test", "s", "k1", at, nil)))
	require.NoError(t, sink.Append(ctx, events.NewEnvelope("answer.started", "test", "s", "k2", at, nil)))
	require.NoError(t, sink.Append(ctx, events.NewEnvelope("answer.started", "test", "s", "", at, nil)))
	require.NoError(t, sink.Append(ctx, events.NewEnvelope("answer.started", "test", "s", "", at, nil)))

	assert.Equal(t, []string{"answer.assigned", "answer.started", "answer.started", "answer.started"}, sink.Types())
	assert.Len(t, sink.Events(), 4)
}

func TestSlogSink_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sink := events.NewSlogSink(logger, slog.LevelInfo)

	e := events.NewEnvelope("answer.finished", "test", "ans-1", "k", time.Now(), json.RawMessage(`{"points":3}`))
	require.NoError(t, sink.Append(context.Background(), e))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "lifecycle event", rec["msg"])
	assert.Equal(t, "answer.finished", rec["type"])
	assert.Equal(t, "ans-1", rec["subject_id"])
	assert.Equal(t, `{"points":3}`, rec["payload"])
}

func TestNoOpEventSink(t *testing.T) {
	assert.NoError(t, events.NewNoOpEventSink().Append(context.Background(), events.Envelope{}))
}
