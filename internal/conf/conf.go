package conf

import (
	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the root configuration of the service.
type Bootstrap struct {
	Server *Server
	Data   *Data
	Log    *Log
	AI     *AI
}

// Server holds transport settings.
type Server struct {
	HTTP *Server_HTTP
	GRPC *Server_GRPC
}

// Server_HTTP configures the Kratos HTTP server.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Server_GRPC configures the Kratos gRPC server (health service only).
type Server_GRPC struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds storage settings.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database configures the usage ledger database. An empty Source
// disables the ledger and usage records are only logged.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis configures the Redis client used by the counter store and
// the shared response cache tier.
type Data_Redis struct {
	Network      string
	Addr         string
	Password     string
	DB           int
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Log configures zap.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}

// AI groups every tunable of the resilience and quota layer.
type AI struct {
	Provider       *AI_Provider
	CircuitBreaker *AI_CircuitBreaker
	Retry          *AI_Retry
	Quota          *AI_Quota
	Router         *AI_Router
	Cache          *AI_Cache
	CounterStore   string // "memory" or "redis"
}

// AI_Provider selects and configures the upstream provider.
type AI_Provider struct {
	Kind           string // "fake" or "http"
	BaseURL        string
	APIKey         string
	ProxyURL       string
	Timeout        *durationpb.Duration
	MaxConcurrency int
}

// AI_CircuitBreaker configures the breaker in front of the upstream.
type AI_CircuitBreaker struct {
	FailureThreshold  int
	RecoveryTimeout   *durationpb.Duration
	HalfOpenMaxProbes int
}

// AI_Retry configures the backoff policy.
type AI_Retry struct {
	MaxRetries      int
	BaseDelay       *durationpb.Duration
	MaxDelay        *durationpb.Duration
	ExponentialBase float64
	Jitter          bool
}

// AI_Quota holds token limits. A limit <= 0 disables that check.
type AI_Quota struct {
	MaxTokensPerTask         int64
	DailyTokensPerCaller     int64
	DailyTokensPerRepository int64
	MonthlyTokensPerCaller   int64
	MonthlyTokensPerOrg      int64
}

// AI_Router configures model selection.
type AI_Router struct {
	DefaultModel           string
	MidModel               string
	CapableModel           string
	SimpleThreshold        float64
	ComplexThreshold       float64
	GuardUpgradeThreshold  float64
	LargeRequestTokens     int
	SplitContextPercentage float64
}

// AI_Cache configures the response cache.
type AI_Cache struct {
	Size int
	TTL  *durationpb.Duration
}
