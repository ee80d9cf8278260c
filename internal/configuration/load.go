package configuration

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EXAMEN_REDIS_ADDR.
const EnvPrefix = "EXAMEN"

// Load builds the configuration from DefaultConfig, then the YAML file at
// path (skipped when path is empty), then EXAMEN_* environment variables,
// and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can override keys
// that the file does not mention.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.prefix", d.Store.Prefix)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.dial_timeout", d.Redis.DialTimeout)

	v.SetDefault("breaker.enabled", d.Breaker.Enabled)
	v.SetDefault("breaker.failure_threshold", d.Breaker.FailureThreshold)
	v.SetDefault("breaker.success_threshold", d.Breaker.SuccessThreshold)
	v.SetDefault("breaker.open_timeout", d.Breaker.OpenTimeout)
	v.SetDefault("breaker.half_open_probes", d.Breaker.HalfOpenProbes)

	v.SetDefault("temporal.host_port", d.Temporal.HostPort)
	v.SetDefault("temporal.namespace", d.Temporal.Namespace)
	v.SetDefault("temporal.task_queue", d.Temporal.TaskQueue)

	v.SetDefault("attempt.time_limit", d.Attempt.TimeLimit)
	v.SetDefault("attempt.activity_timeout", d.Attempt.ActivityTimeout)
	v.SetDefault("attempt.max_activity_attempts", d.Attempt.MaxActivityAttempts)

	v.SetDefault("submit.per_second", d.Submit.PerSecond)
	v.SetDefault("submit.burst", d.Submit.Burst)
	v.SetDefault("submit.idle_ttl", d.Submit.IdleTTL)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetDefault("events.sink", d.Events.Sink)
	v.SetDefault("events.stream", d.Events.Stream)
	v.SetDefault("events.max_len", d.Events.MaxLen)
	v.SetDefault("events.dedupe_ttl", d.Events.DedupeTTL)
}
