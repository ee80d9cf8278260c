// Package worker provides initialization and setup utilities for Temporal workers.
// This package contains initialization logic that should be executed during
// worker startup, keeping activity packages focused on pure activity logic.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-examen/internal/configuration"
	"github.com/ahrav/go-examen/internal/domain"
	"github.com/ahrav/go-examen/internal/store/guard"
	"github.com/ahrav/go-examen/internal/store/memory"
	"github.com/ahrav/go-examen/internal/store/redisstore"
	"github.com/ahrav/go-examen/pkg/events"
)

// Store is the persistence surface the assessment service runs on. Both
// backends implement all three ports.
type Store interface {
	domain.ExamRepository
	domain.AnswerRepository
	domain.ApplicantDirectory
}

// Registrar adds applicants to the directory. Registration belongs to the
// identity side of the system, so it is not part of the domain ports.
type Registrar interface {
	RegisterApplicant(ctx context.Context, applicantID domain.ID) error
}

type memoryRegistrar struct{ store *memory.Store }

func (r memoryRegistrar) RegisterApplicant(_ context.Context, applicantID domain.ID) error {
	r.store.RegisterApplicant(applicantID)
	return nil
}

// Backend is an opened store plus the Redis client and circuit breaker
// behind it, when there are any.
type Backend struct {
	Store      Store
	Applicants Registrar
	Client     *redis.Client
	Breaker    *guard.Breaker
}

// Close releases the Redis connection pool.
func (b *Backend) Close() error {
	if b.Client == nil {
		return nil
	}
	return b.Client.Close()
}

// OpenBackend builds the store selected by cfg.Store.Backend. When any
// component uses Redis it pings the server first, so that a bad address fails
// startup rather than the first activity. A Redis store is put behind a
// circuit breaker when enabled.
func OpenBackend(ctx context.Context, cfg *configuration.Config, logger *slog.Logger) (*Backend, error) {
	b := &Backend{}
	if cfg.UsesRedis() {
		b.Client = redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err := b.Client.Ping(ctx).Err(); err != nil {
			_ = b.Client.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
	}

	switch cfg.Store.Backend {
	case "memory":
		mem := memory.New()
		b.Store, b.Applicants = mem, memoryRegistrar{store: mem}

	case "redis":
		rs := redisstore.New(b.Client,
			redisstore.WithPrefix(cfg.Store.Prefix),
			redisstore.WithLogger(logger),
		)
		b.Store, b.Applicants = rs, rs
		if cfg.Breaker.Enabled {
			b.Breaker = guard.NewBreaker(guard.Config{
				FailureThreshold: cfg.Breaker.FailureThreshold,
				SuccessThreshold: cfg.Breaker.SuccessThreshold,
				OpenTimeout:      cfg.Breaker.OpenTimeout,
				HalfOpenProbes:   cfg.Breaker.HalfOpenProbes,
			}, guard.WithLogger(logger))
			b.Store = guard.New(b.Store, b.Breaker)
		}

	default:
		_ = b.Close()
		return nil, fmt.Errorf("%w: unknown store backend %q", configuration.ErrInvalidConfig, cfg.Store.Backend)
	}
	return b, nil
}

// EventSink builds the sink selected by cfg.Events.Sink.
func (b *Backend) EventSink(cfg configuration.EventsConfig, logger *slog.Logger) (events.EventSink, error) {
	switch cfg.Sink {
	case "none":
		return events.NewNoOpEventSink(), nil
	case "log":
		return events.NewSlogSink(logger, slog.LevelInfo), nil
	case "redis":
		if b.Client == nil {
			return nil, fmt.Errorf("%w: redis event sink without a redis connection", configuration.ErrInvalidConfig)
		}
		return events.NewRedisStreamSink(b.Client,
			events.WithStream(cfg.Stream),
			events.WithMaxLen(cfg.MaxLen),
			events.WithDedupeTTL(cfg.DedupeTTL),
		), nil
	default:
		return nil, fmt.Errorf("%w: unknown event sink %q", configuration.ErrInvalidConfig, cfg.Sink)
	}
}
