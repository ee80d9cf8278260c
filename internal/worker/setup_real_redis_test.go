//go:build integration

package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redisContainer "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/ahrav/go-examen/internal/configuration"
	"github.com/ahrav/go-examen/internal/store/guard"
	"github.com/ahrav/go-examen/internal/store/redisstore"
	"github.com/ahrav/go-examen/pkg/events"
)

func TestOpenBackend_Redis(t *testing.T) {
	ctx := context.Background()
	container, err := redisContainer.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	cfg := configuration.DefaultConfig()
	cfg.Store.Backend = "redis"
	cfg.Redis.Addr = endpoint

	b, err := OpenBackend(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	assert.IsType(t, &guard.Store{}, b.Store)
	require.NotNil(t, b.Breaker)
	assert.Equal(t, guard.StateClosed, b.Breaker.State())
	require.NotNil(t, b.Client)
	assert.NoError(t, b.Client.Ping(ctx).Err())
}

func TestOpenBackend_RedisWithoutBreaker(t *testing.T) {
	ctx := context.Background()
	container, err := redisContainer.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	cfg := configuration.DefaultConfig()
	cfg.Store.Backend = "redis"
	cfg.Redis.Addr = endpoint
	cfg.Breaker.Enabled = false

	b, err := OpenBackend(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	assert.IsType(t, &redisstore.Store{}, b.Store)
	assert.Nil(t, b.Breaker)
}

func TestOpenBackend_RedisSinkWithMemoryStore(t *testing.T) {
	ctx := context.Background()
	container, err := redisContainer.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	cfg := configuration.DefaultConfig()
	cfg.Redis.Addr = endpoint
	cfg.Events.Sink = "redis"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	b, err := OpenBackend(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	require.NotNil(t, b.Client, "the sink needs a connection even with the memory store")

	sink, err := b.EventSink(cfg.Events, logger)
	require.NoError(t, err)
	assert.IsType(t, &events.RedisStreamSink{}, sink)
}

func TestOpenBackend_RedisUnreachable(t *testing.T) {
	cfg := configuration.DefaultConfig()
	cfg.Store.Backend = "redis"
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := OpenBackend(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
