// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with AIGUARD_.
//
// Configuration priority: Environment variables > Config file > Defaults
//
// Environment variables with special bindings:
//   - MYSQL_DSN or AIGUARD_DATA_DATABASE_SOURCE: usage ledger connection string
//   - REDIS_URL or AIGUARD_DATA_REDIS_ADDR: Redis address
//   - AI_API_KEY or AIGUARD_AI_PROVIDER_API_KEY: upstream API key
//
// An empty configPath loads defaults and environment only.
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AIGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "AIGUARD_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "REDIS_URL", "AIGUARD_DATA_REDIS_ADDR")
	_ = v.BindEnv("ai.provider.api_key", "AI_API_KEY", "AIGUARD_AI_PROVIDER_API_KEY")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			HTTP: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
			GRPC: &Server_GRPC{
				Network: v.GetString("server.grpc.network"),
				Addr:    v.GetString("server.grpc.addr"),
				Timeout: durationpb.New(v.GetDuration("server.grpc.timeout")),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				Password:     v.GetString("data.redis.password"),
				DB:           v.GetInt("data.redis.db"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
		AI: &AI{
			Provider: &AI_Provider{
				Kind:           v.GetString("ai.provider.kind"),
				BaseURL:        v.GetString("ai.provider.base_url"),
				APIKey:         v.GetString("ai.provider.api_key"),
				ProxyURL:       v.GetString("ai.provider.proxy_url"),
				Timeout:        durationpb.New(v.GetDuration("ai.provider.timeout")),
				MaxConcurrency: v.GetInt("ai.provider.max_concurrency"),
			},
			CircuitBreaker: &AI_CircuitBreaker{
				FailureThreshold:  v.GetInt("ai.circuit_breaker.failure_threshold"),
				RecoveryTimeout:   durationpb.New(v.GetDuration("ai.circuit_breaker.recovery_timeout")),
				HalfOpenMaxProbes: v.GetInt("ai.circuit_breaker.half_open_max_probes"),
			},
			Retry: &AI_Retry{
				MaxRetries:      v.GetInt("ai.retry.max_retries"),
				BaseDelay:       durationpb.New(v.GetDuration("ai.retry.base_delay")),
				MaxDelay:        durationpb.New(v.GetDuration("ai.retry.max_delay")),
				ExponentialBase: v.GetFloat64("ai.retry.exponential_base"),
				Jitter:          v.GetBool("ai.retry.jitter"),
			},
			Quota: &AI_Quota{
				MaxTokensPerTask:         v.GetInt64("ai.quota.max_tokens_per_task"),
				DailyTokensPerCaller:     v.GetInt64("ai.quota.daily_tokens_per_caller"),
				DailyTokensPerRepository: v.GetInt64("ai.quota.daily_tokens_per_repository"),
				MonthlyTokensPerCaller:   v.GetInt64("ai.quota.monthly_tokens_per_caller"),
				MonthlyTokensPerOrg:      v.GetInt64("ai.quota.monthly_tokens_per_org"),
			},
			Router: &AI_Router{
				DefaultModel:           v.GetString("ai.router.default_model"),
				MidModel:               v.GetString("ai.router.mid_model"),
				CapableModel:           v.GetString("ai.router.capable_model"),
				SimpleThreshold:        v.GetFloat64("ai.router.simple_threshold"),
				ComplexThreshold:       v.GetFloat64("ai.router.complex_threshold"),
				GuardUpgradeThreshold:  v.GetFloat64("ai.router.guard_upgrade_threshold"),
				LargeRequestTokens:     v.GetInt("ai.router.large_request_tokens"),
				SplitContextPercentage: v.GetFloat64("ai.router.split_context_percentage"),
			},
			Cache: &AI_Cache{
				Size: v.GetInt("ai.cache.size"),
				TTL:  durationpb.New(v.GetDuration("ai.cache.ttl")),
			},
			CounterStore: v.GetString("ai.counter_store"),
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 2*time.Minute)

	v.SetDefault("server.grpc.network", "tcp")
	v.SetDefault("server.grpc.addr", ":9000")
	v.SetDefault("server.grpc.timeout", 10*time.Second)

	// Data defaults
	// Note: data.database.source (MYSQL_DSN) is optional, the ledger is disabled without it
	v.SetDefault("data.database.driver", "mysql")

	v.SetDefault("data.redis.network", "tcp")
	// data.redis.addr (REDIS_URL) is optional, counters stay in memory without it
	v.SetDefault("data.redis.addr", "")
	v.SetDefault("data.redis.db", 0)
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Upstream provider
	v.SetDefault("ai.provider.kind", "fake")
	v.SetDefault("ai.provider.timeout", 60*time.Second)
	v.SetDefault("ai.provider.max_concurrency", 8)

	// Circuit breaker
	v.SetDefault("ai.circuit_breaker.failure_threshold", 5)
	v.SetDefault("ai.circuit_breaker.recovery_timeout", 60*time.Second)
	v.SetDefault("ai.circuit_breaker.half_open_max_probes", 3)

	// Retry
	v.SetDefault("ai.retry.max_retries", 3)
	v.SetDefault("ai.retry.base_delay", 1*time.Second)
	v.SetDefault("ai.retry.max_delay", 30*time.Second)
	v.SetDefault("ai.retry.exponential_base", 2.0)
	v.SetDefault("ai.retry.jitter", true)

	// Quota
	v.SetDefault("ai.quota.max_tokens_per_task", 32000)
	v.SetDefault("ai.quota.daily_tokens_per_caller", 100000)
	v.SetDefault("ai.quota.daily_tokens_per_repository", 500000)
	v.SetDefault("ai.quota.monthly_tokens_per_caller", 2000000)
	v.SetDefault("ai.quota.monthly_tokens_per_org", 10000000)

	// Router
	v.SetDefault("ai.router.default_model", "gemini-1.5-flash")
	v.SetDefault("ai.router.mid_model", "gemini-1.5-pro")
	v.SetDefault("ai.router.capable_model", "gemini-2.5-pro")
	v.SetDefault("ai.router.simple_threshold", 0.3)
	v.SetDefault("ai.router.complex_threshold", 0.7)
	v.SetDefault("ai.router.guard_upgrade_threshold", 0.8)
	v.SetDefault("ai.router.large_request_tokens", 50000)
	v.SetDefault("ai.router.split_context_percentage", 0.5)

	// Response cache
	v.SetDefault("ai.cache.size", 512)
	v.SetDefault("ai.cache.ttl", 10*time.Minute)

	v.SetDefault("ai.counter_store", "memory")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing every invalid field.
func Validate(bc *Bootstrap) error {
	var invalid []string

	if bc.AI == nil || bc.AI.Provider == nil {
		invalid = append(invalid, "ai.provider")
	} else {
		switch bc.AI.Provider.Kind {
		case "fake":
		case "http":
			if bc.AI.Provider.BaseURL == "" {
				invalid = append(invalid, "ai.provider.base_url (required for kind=http)")
			}
			if bc.AI.Provider.APIKey == "" {
				invalid = append(invalid, "ai.provider.api_key (AI_API_KEY)")
			}
		default:
			invalid = append(invalid, fmt.Sprintf("ai.provider.kind (unknown %q)", bc.AI.Provider.Kind))
		}
	}

	if bc.AI != nil {
		switch bc.AI.CounterStore {
		case "memory", "redis":
		default:
			invalid = append(invalid, fmt.Sprintf("ai.counter_store (unknown %q)", bc.AI.CounterStore))
		}

		if cb := bc.AI.CircuitBreaker; cb != nil && cb.FailureThreshold <= 0 {
			invalid = append(invalid, "ai.circuit_breaker.failure_threshold (must be > 0)")
		}

		if r := bc.AI.Retry; r != nil && r.MaxRetries < 0 {
			invalid = append(invalid, "ai.retry.max_retries (must be >= 0)")
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration fields: %s", strings.Join(invalid, ", "))
	}

	return nil
}
