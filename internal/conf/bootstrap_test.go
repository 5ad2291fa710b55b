package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestNewBootstrap_Defaults(t *testing.T) {
	configPath := writeConfig(t, `server:
  http:
    addr: :8080
data:
  redis:
    addr: 127.0.0.1:6379
`)

	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)
	require.NotNil(t, bc)

	// Server
	assert.Equal(t, ":8080", bc.Server.HTTP.Addr)
	assert.Equal(t, "tcp", bc.Server.HTTP.Network)
	assert.Equal(t, 2*time.Minute, bc.Server.HTTP.Timeout.AsDuration())
	assert.Equal(t, ":9000", bc.Server.GRPC.Addr)

	// Data
	assert.Equal(t, "mysql", bc.Data.Database.Driver)
	assert.Empty(t, bc.Data.Database.Source)
	assert.Equal(t, "127.0.0.1:6379", bc.Data.Redis.Addr)
	assert.Equal(t, 200*time.Millisecond, bc.Data.Redis.ReadTimeout.AsDuration())

	// Log
	assert.Equal(t, "info", bc.Log.Level)
	assert.Equal(t, "json", bc.Log.Format)

	// Circuit breaker
	assert.Equal(t, 5, bc.AI.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, bc.AI.CircuitBreaker.RecoveryTimeout.AsDuration())
	assert.Equal(t, 3, bc.AI.CircuitBreaker.HalfOpenMaxProbes)

	// Retry
	assert.Equal(t, 3, bc.AI.Retry.MaxRetries)
	assert.Equal(t, time.Second, bc.AI.Retry.BaseDelay.AsDuration())
	assert.Equal(t, 30*time.Second, bc.AI.Retry.MaxDelay.AsDuration())
	assert.Equal(t, 2.0, bc.AI.Retry.ExponentialBase)
	assert.True(t, bc.AI.Retry.Jitter)

	// Quota
	assert.Equal(t, int64(32000), bc.AI.Quota.MaxTokensPerTask)
	assert.Equal(t, int64(100000), bc.AI.Quota.DailyTokensPerCaller)
	assert.Equal(t, int64(500000), bc.AI.Quota.DailyTokensPerRepository)
	assert.Equal(t, int64(2000000), bc.AI.Quota.MonthlyTokensPerCaller)
	assert.Equal(t, int64(10000000), bc.AI.Quota.MonthlyTokensPerOrg)

	// Router
	assert.Equal(t, "gemini-1.5-flash", bc.AI.Router.DefaultModel)
	assert.Equal(t, "gemini-1.5-pro", bc.AI.Router.MidModel)
	assert.Equal(t, "gemini-2.5-pro", bc.AI.Router.CapableModel)
	assert.Equal(t, 50000, bc.AI.Router.LargeRequestTokens)

	assert.Equal(t, "fake", bc.AI.Provider.Kind)
	assert.Equal(t, "memory", bc.AI.CounterStore)
	assert.Equal(t, 512, bc.AI.Cache.Size)
}

func TestNewBootstrap_NoFile(t *testing.T) {
	bc, err := NewBootstrap("")
	require.NoError(t, err)
	assert.Equal(t, "fake", bc.AI.Provider.Kind)
}

func TestNewBootstrap_MissingFile(t *testing.T) {
	_, err := NewBootstrap(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestNewBootstrap_EnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, bc *Bootstrap)
	}{
		{
			name:    "override_http_addr",
			envVars: map[string]string{"AIGUARD_SERVER_HTTP_ADDR": ":9999"},
			check: func(t *testing.T, bc *Bootstrap) {
				assert.Equal(t, ":9999", bc.Server.HTTP.Addr)
			},
		},
		{
			name:    "mysql_dsn_alias",
			envVars: map[string]string{"MYSQL_DSN": "user:pass@tcp(localhost:3306)/ledger"},
			check: func(t *testing.T, bc *Bootstrap) {
				assert.Equal(t, "user:pass@tcp(localhost:3306)/ledger", bc.Data.Database.Source)
			},
		},
		{
			name:    "failure_threshold",
			envVars: map[string]string{"AIGUARD_AI_CIRCUIT_BREAKER_FAILURE_THRESHOLD": "3"},
			check: func(t *testing.T, bc *Bootstrap) {
				assert.Equal(t, 3, bc.AI.CircuitBreaker.FailureThreshold)
			},
		},
		{
			name: "http_provider",
			envVars: map[string]string{
				"AIGUARD_AI_PROVIDER_KIND":     "http",
				"AIGUARD_AI_PROVIDER_BASE_URL": "https://llm.internal",
				"AI_API_KEY":                   "sk-test-123456789",
			},
			check: func(t *testing.T, bc *Bootstrap) {
				assert.Equal(t, "http", bc.AI.Provider.Kind)
				assert.Equal(t, "sk-test-123456789", bc.AI.Provider.APIKey)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			bc, err := NewBootstrap("")
			require.NoError(t, err)
			tt.check(t, bc)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Bootstrap {
		return &Bootstrap{AI: &AI{
			Provider:       &AI_Provider{Kind: "fake"},
			CircuitBreaker: &AI_CircuitBreaker{FailureThreshold: 5},
			Retry:          &AI_Retry{MaxRetries: 3},
			CounterStore:   "memory",
		}}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, Validate(valid()))
	})

	t.Run("http provider without base url and key", func(t *testing.T) {
		bc := valid()
		bc.AI.Provider.Kind = "http"
		err := Validate(bc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ai.provider.base_url")
		assert.Contains(t, err.Error(), "ai.provider.api_key")
	})

	t.Run("unknown counter store", func(t *testing.T) {
		bc := valid()
		bc.AI.CounterStore = "etcd"
		err := Validate(bc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ai.counter_store")
	})

	t.Run("zero failure threshold", func(t *testing.T) {
		bc := valid()
		bc.AI.CircuitBreaker.FailureThreshold = 0
		assert.Error(t, Validate(bc))
	})

	t.Run("missing ai section", func(t *testing.T) {
		assert.Error(t, Validate(&Bootstrap{}))
	})
}
