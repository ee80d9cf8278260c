package configuration

import "time"

// Logging and storage constants.
const (
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
	DefaultStoreBackend = "memory"
	DefaultStorePrefix  = "examen"
)

// Redis constants.
const (
	DefaultRedisAddr   = "localhost:6379"
	DefaultDialTimeout = 5 * time.Second
)

// Store circuit breaker constants.
const (
	DefaultBreakerFailures  = 5
	DefaultBreakerSuccesses = 2
	DefaultBreakerTimeout   = 30 * time.Second
	DefaultBreakerProbes    = 1
)

// Temporal constants.
const (
	DefaultTemporalHostPort = "localhost:7233"
	DefaultNamespace        = "default"
	DefaultTaskQueue        = "examen-attempts"
)

// Attempt and throttle constants.
const (
	DefaultTimeLimit           = 90 * time.Minute
	DefaultActivityTimeout     = 30 * time.Second
	DefaultMaxActivityAttempts = 5
	DefaultSubmitPerSecond     = 5.0
	DefaultSubmitBurst         = 10
	DefaultSubmitIdleTTL       = 10 * time.Minute
	DefaultMetricsAddr         = ":9090"
)

// Event delivery constants.
const (
	DefaultEventSink      = "log"
	DefaultEventStream    = "examen:events"
	DefaultEventMaxLen    = 100_000
	DefaultEventDedupeTTL = 24 * time.Hour
)

// DefaultConfig returns a configuration that runs a single worker against a
// local Temporal server with the in-memory store.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Store: StoreConfig{
			Backend: DefaultStoreBackend,
			Prefix:  DefaultStorePrefix,
		},
		Redis: RedisConfig{
			Addr:        DefaultRedisAddr,
			DialTimeout: DefaultDialTimeout,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: DefaultBreakerFailures,
			SuccessThreshold: DefaultBreakerSuccesses,
			OpenTimeout:      DefaultBreakerTimeout,
			HalfOpenProbes:   DefaultBreakerProbes,
		},
		Temporal: TemporalConfig{
			HostPort:  DefaultTemporalHostPort,
			Namespace: DefaultNamespace,
			TaskQueue: DefaultTaskQueue,
		},
		Attempt: AttemptConfig{
			TimeLimit:           DefaultTimeLimit,
			ActivityTimeout:     DefaultActivityTimeout,
			MaxActivityAttempts: DefaultMaxActivityAttempts,
		},
		Submit: SubmitLimitConfig{
			PerSecond: DefaultSubmitPerSecond,
			Burst:     DefaultSubmitBurst,
			IdleTTL:   DefaultSubmitIdleTTL,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    DefaultMetricsAddr,
		},
		Events: EventsConfig{
			Sink:      DefaultEventSink,
			Stream:    DefaultEventStream,
			MaxLen:    DefaultEventMaxLen,
			DedupeTTL: DefaultEventDedupeTTL,
		},
	}
}
