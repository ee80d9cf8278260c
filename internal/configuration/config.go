// Package configuration defines the worker configuration, its defaults, and
// loading from an optional YAML file overlaid by EXAMEN_* environment
// variables.
package configuration

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig wraps every validation failure returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete worker configuration.
type Config struct {
	// Logging configuration
	Log LogConfig `mapstructure:"log" json:"log"`

	// Storage backend selection
	Store StoreConfig `mapstructure:"store" json:"store"`

	// Redis connection, used when Store.Backend is "redis"
	Redis RedisConfig `mapstructure:"redis" json:"redis"`

	// Circuit breaker in front of the Redis store
	Breaker BreakerConfig `mapstructure:"breaker" json:"breaker"`

	// Temporal connection and task queue
	Temporal TemporalConfig `mapstructure:"temporal" json:"temporal"`

	// Attempt workflow timing
	Attempt AttemptConfig `mapstructure:"attempt" json:"attempt"`

	// Per-answer submission throttle
	Submit SubmitLimitConfig `mapstructure:"submit" json:"submit"`

	// Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" json:"metrics"`

	// Lifecycle event delivery
	Events EventsConfig `mapstructure:"events" json:"events"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" json:"format" validate:"oneof=json text"`
}

// StoreConfig selects the persistence adapter.
type StoreConfig struct {
	Backend string `mapstructure:"backend" json:"backend" validate:"oneof=memory redis"`
	Prefix  string `mapstructure:"prefix" json:"prefix" validate:"required,max=64"`
}

// RedisConfig holds connection settings for the Redis store.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr" json:"addr" validate:"required,hostname_port"`
	Password    string        `mapstructure:"password" json:"-"` // Sensitive
	DB          int           `mapstructure:"db" json:"db" validate:"min=0,max=15"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" json:"dial_timeout" validate:"gt=0"`
}

// BreakerConfig guards the Redis store. The memory store is never guarded.
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled" json:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold" json:"failure_threshold" validate:"min=1"`
	SuccessThreshold int           `mapstructure:"success_threshold" json:"success_threshold" validate:"min=1"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout" json:"open_timeout" validate:"gt=0"`
	HalfOpenProbes   int           `mapstructure:"half_open_probes" json:"half_open_probes" validate:"min=1"`
}

// TemporalConfig holds the Temporal client and worker settings.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port" json:"host_port" validate:"required,hostname_port"`
	Namespace string `mapstructure:"namespace" json:"namespace" validate:"required"`
	TaskQueue string `mapstructure:"task_queue" json:"task_queue" validate:"required"`
}

// AttemptConfig controls the attempt workflow.
type AttemptConfig struct {
	// TimeLimit auto-finishes an attempt this long after it starts. Zero
	// disables the limit.
	TimeLimit time.Duration `mapstructure:"time_limit" json:"time_limit" validate:"min=0"`

	// ActivityTimeout bounds each lifecycle activity.
	ActivityTimeout time.Duration `mapstructure:"activity_timeout" json:"activity_timeout" validate:"gt=0"`

	// MaxActivityAttempts bounds retries of collaborator failures.
	MaxActivityAttempts int32 `mapstructure:"max_activity_attempts" json:"max_activity_attempts" validate:"min=1,max=20"`
}

// SubmitLimitConfig is the token bucket applied per answer. A zero rate
// disables throttling.
type SubmitLimitConfig struct {
	PerSecond float64       `mapstructure:"per_second" json:"per_second" validate:"min=0"`
	Burst     int           `mapstructure:"burst" json:"burst" validate:"min=1"`
	IdleTTL   time.Duration `mapstructure:"idle_ttl" json:"idle_ttl" validate:"gt=0"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Addr    string `mapstructure:"addr" json:"addr" validate:"required_if=Enabled true"`
}

// EventsConfig selects where lifecycle events go. The redis sink appends to a
// stream on the configured Redis server, whatever the store backend.
type EventsConfig struct {
	Sink      string        `mapstructure:"sink" json:"sink" validate:"oneof=none log redis"`
	Stream    string        `mapstructure:"stream" json:"stream" validate:"required_if=Sink redis"`
	MaxLen    int64         `mapstructure:"max_len" json:"max_len" validate:"min=0"` // 0 is unbounded
	DedupeTTL time.Duration `mapstructure:"dedupe_ttl" json:"dedupe_ttl" validate:"gt=0"`
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Store.Backend == "redis" || c.Events.Sink == "redis"
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints. Redis settings are
// only checked when some component uses Redis.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		for _, fe := range verrs {
			if !c.UsesRedis() && isRedisField(fe) {
				continue
			}
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, fe.Namespace(), fe.Tag())
		}
	}
	return nil
}

func isRedisField(fe validator.FieldError) bool {
	const prefix = "Config.Redis."
	ns := fe.Namespace()
	return len(ns) > len(prefix) && ns[:len(prefix)] == prefix
}
