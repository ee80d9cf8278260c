package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stream defaults.
const (
	DefaultStream    = "examen:events"
	DefaultMaxLen    = 100_000
	DefaultDedupeTTL = 24 * time.Hour
)

// appendOnce adds an entry to the stream unless the idempotency key was seen
// within the dedupe window.
//
// KEYS[1] = dedupe key ("" idempotency key skips the check)
// KEYS[2] = stream
// ARGV[1] = dedupe TTL in milliseconds
// ARGV[2] = approximate max stream length, 0 for unbounded
// ARGV[3] = event type
// ARGV[4] = envelope JSON
//
// Returns the entry ID, or false when the event is a duplicate.
var appendOnce = redis.NewScript(`
	if KEYS[1] ~= '' then
		if redis.call('SET', KEYS[1], '1', 'NX', 'PX', ARGV[1]) == false then
			return false
		end
	end
	if tonumber(ARGV[2]) > 0 then
		return redis.call('XADD', KEYS[2], 'MAXLEN', '~', ARGV[2], '*', 'type', ARGV[3], 'envelope', ARGV[4])
	end
	return redis.call('XADD', KEYS[2], '*', 'type', ARGV[3], 'envelope', ARGV[4])
`)

// RedisStreamSink appends envelopes to a Redis stream. Each entry carries the
// event type and the JSON envelope. Envelopes with an idempotency key are
// written at most once per dedupe window.
type RedisStreamSink struct {
	client    redis.Cmdable
	stream    string
	maxLen    int64
	dedupeTTL time.Duration
}

// RedisStreamOption configures a RedisStreamSink.
type RedisStreamOption func(*RedisStreamSink)

// WithStream sets the stream key.
func WithStream(stream string) RedisStreamOption {
	return func(s *RedisStreamSink) { s.stream = stream }
}

// WithMaxLen caps the stream at roughly n entries. Zero leaves it unbounded.
func WithMaxLen(n int64) RedisStreamOption {
	return func(s *RedisStreamSink) { s.maxLen = n }
}

// WithDedupeTTL sets how long an idempotency key suppresses duplicates.
func WithDedupeTTL(d time.Duration) RedisStreamOption {
	return func(s *RedisStreamSink) { s.dedupeTTL = d }
}

// NewRedisStreamSink creates a sink writing to client.
func NewRedisStreamSink(client redis.Cmdable, opts ...RedisStreamOption) *RedisStreamSink {
	s := &RedisStreamSink{
		client:    client,
		stream:    DefaultStream,
		maxLen:    DefaultMaxLen,
		dedupeTTL: DefaultDedupeTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append writes e to the stream.
func (s *RedisStreamSink) Append(ctx context.Context, e Envelope) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode envelope %s: %w", e.ID, err)
	}

	dedupeKey := ""
	if e.IdempotencyKey != "" {
		dedupeKey = s.stream + ":seen:" + e.IdempotencyKey
	}

	err = appendOnce.Run(ctx, s.client, []string{dedupeKey, s.stream},
		s.dedupeTTL.Milliseconds(), s.maxLen, e.Type, string(body)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to append %s to %s: %w", e.Type, s.stream, err)
	}
	return nil
}
