package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/offersplus/backend/internal/scheduler"
	"github.com/offersplus/backend/internal/secrets"
)

// Source kinds for H1B_SOURCE.
const (
	SourcePostgres = "postgres"
	SourceREST     = "rest"
	SourceMemory   = "memory"
)

// Cache backend kinds for CACHE_BACKEND.
const (
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port string `env:"PORT" envDefault:"8000"`
	Env  string `env:"ENV" envDefault:"development"`

	// Remote H1B data source
	SourceKind         string        `env:"H1B_SOURCE" envDefault:"postgres"`
	DatabaseURL        string        `env:"DATABASE_URL"`
	DBStatementTimeout time.Duration `env:"DB_STATEMENT_TIMEOUT" envDefault:"25s"`
	RestURL            string        `env:"H1B_REST_URL"`
	RestAPIKey         string        `env:"H1B_REST_API_KEY"`
	Table              string        `env:"H1B_TABLE" envDefault:"h1b_applications"`
	SeedFile           string        `env:"H1B_SEED_FILE"`

	// Outbound HTTP
	HTTPMaxRetries int           `env:"HTTP_MAX_RETRIES" envDefault:"3"`
	HTTPRetryBase  time.Duration `env:"HTTP_RETRY_BASE" envDefault:"300ms"`
	HTTPTimeout    time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
	LogHTTPRetries bool          `env:"LOG_HTTP_RETRIES" envDefault:"false"`

	// Circuit breaker around the data source
	BreakerFailureThreshold int           `env:"BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	BreakerTimeout          time.Duration `env:"BREAKER_TIMEOUT" envDefault:"60s"`

	// Cache store
	CacheBackend        string `env:"CACHE_BACKEND" envDefault:"bolt"`
	CachePath           string `env:"CACHE_PATH" envDefault:"data/h1b-cache.db"`
	CacheName           string `env:"CACHE_NAME" envDefault:"H1BFilterCache"`
	CacheVersion        int    `env:"CACHE_VERSION" envDefault:"1"`
	CacheCollection     string `env:"CACHE_COLLECTION" envDefault:"filterResults"`
	CacheHotTierMB      int64  `env:"CACHE_HOT_TIER_MB" envDefault:"64"`
	CacheHotTierEntries int64  `env:"CACHE_HOT_TIER_ENTRIES" envDefault:"10000"`
	RedisAddr           string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword       string `env:"REDIS_PASSWORD"`
	RedisDB             int    `env:"REDIS_DB" envDefault:"0"`

	// Per-operation TTLs
	TTLFiltered   time.Duration `env:"CACHE_TTL_FILTERED" envDefault:"5m"`
	TTLUnique     time.Duration `env:"CACHE_TTL_UNIQUE" envDefault:"30m"`
	TTLStatistics time.Duration `env:"CACHE_TTL_STATISTICS" envDefault:"10m"`
	TTLExport     time.Duration `env:"CACHE_TTL_EXPORT" envDefault:"2m"`
	TTLPrefetch   time.Duration `env:"CACHE_TTL_PREFETCH" envDefault:"10m"`

	// Background jobs
	CleanupSchedule        string `env:"CACHE_CLEANUP_SCHEDULE" envDefault:"@every 30m"`
	MetricsRefreshSchedule string `env:"METRICS_REFRESH_SCHEDULE" envDefault:"@every 30s"`

	// Prefetch
	PrefetchEnabled     bool          `env:"PREFETCH_ENABLED" envDefault:"true"`
	PrefetchDelay       time.Duration `env:"PREFETCH_DELAY" envDefault:"2s"`
	PrefetchTargetsFile string        `env:"PREFETCH_TARGETS_FILE"`

	// Query caps
	StatisticsSampleLimit int `env:"STATISTICS_SAMPLE_LIMIT" envDefault:"10000"`
	ExportLimit           int `env:"EXPORT_LIMIT" envDefault:"50000"`

	// Live filter sessions
	LiveDebounce      time.Duration `env:"LIVE_DEBOUNCE" envDefault:"300ms"`
	LiveStatsInterval time.Duration `env:"LIVE_STATS_INTERVAL" envDefault:"30s"`

	// Admin API token for gating admin endpoints (Bearer token)
	AdminAPIToken string `env:"ADMIN_API_TOKEN"`

	// Security settings
	RateLimitGlobal      float64  `env:"RATE_LIMIT_GLOBAL" envDefault:"100"`
	RateLimitGlobalBurst int      `env:"RATE_LIMIT_GLOBAL_BURST" envDefault:"200"`
	RateLimitPerIP       float64  `env:"RATE_LIMIT_PER_IP" envDefault:"10"`
	RateLimitPerIPBurst  int      `env:"RATE_LIMIT_PER_IP_BURST" envDefault:"20"`
	EnableRateLimit      bool     `env:"ENABLE_RATE_LIMIT" envDefault:"true"`
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:3000"`

	// Observability settings
	LogLevel          string  `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat         string  `env:"LOG_FORMAT"`
	OTELEnabled       bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint      string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELSampleRate    float64 `env:"OTEL_TRACE_SAMPLE_RATE" envDefault:"0.1"`
	SentryDSN         string  `env:"SENTRY_DSN"`
	SentryEnvironment string  `env:"SENTRY_ENVIRONMENT"`
	SentryRelease     string  `env:"SENTRY_RELEASE"`
	SentrySampleRate  float64 `env:"SENTRY_SAMPLE_RATE" envDefault:"1.0"`
}

var cached *Config

// LoadDotEnv reads .env files into the process environment if present.
// Existing variables win.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		slog.Debug("no .env file loaded, using process environment", "error", err)
	}
}

// Load reads env vars once and caches them. Unparseable values are logged
// and the defaults are used instead.
func Load() *Config {
	if cached != nil {
		return cached
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		slog.Warn("invalid configuration value, falling back to defaults", "error", err)
		cfg, _ = env.ParseAsWithOptions[Config](env.Options{Environment: map[string]string{}})
	}
	cfg.normalize()
	cached = &cfg
	return cached
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }

func (c *Config) normalize() {
	c.SourceKind = strings.ToLower(strings.TrimSpace(c.SourceKind))
	c.CacheBackend = strings.ToLower(strings.TrimSpace(c.CacheBackend))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.AdminAPIToken = strings.TrimSpace(c.AdminAPIToken)
	c.RestURL = strings.TrimRight(strings.TrimSpace(c.RestURL), "/")
	if c.SentryEnvironment == "" {
		c.SentryEnvironment = c.Env
	}
	origins := c.CORSAllowedOrigins[:0]
	for _, o := range c.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSAllowedOrigins = origins
}

// Validate checks that the settings required by the selected source and
// cache backend are present.
func (c *Config) Validate() error {
	return secrets.Validate(
		secrets.Requirement{Name: "H1B_SOURCE", Value: c.SourceKind, Required: true,
			Check: secrets.OneOf(SourcePostgres, SourceREST, SourceMemory)},
		secrets.Requirement{Name: "CACHE_BACKEND", Value: c.CacheBackend, Required: true,
			Check: secrets.OneOf(BackendBolt, BackendRedis, BackendMemory)},
		secrets.Requirement{Name: "DATABASE_URL", Value: c.DatabaseURL, Required: c.SourceKind == SourcePostgres},
		secrets.Requirement{Name: "H1B_REST_URL", Value: c.RestURL, Required: c.SourceKind == SourceREST,
			Check: secrets.HTTPURL},
		secrets.Requirement{Name: "H1B_REST_API_KEY", Value: c.RestAPIKey, Required: c.SourceKind == SourceREST},
		secrets.Requirement{Name: "CACHE_PATH", Value: c.CachePath, Required: c.CacheBackend == BackendBolt},
		secrets.Requirement{Name: "REDIS_ADDR", Value: c.RedisAddr, Required: c.CacheBackend == BackendRedis},
		secrets.Requirement{Name: "CACHE_CLEANUP_SCHEDULE", Value: c.CleanupSchedule, Required: true,
			Check: scheduler.ValidateCronExpression},
		secrets.Requirement{Name: "METRICS_REFRESH_SCHEDULE", Value: c.MetricsRefreshSchedule, Required: true,
			Check: scheduler.ValidateCronExpression},
	)
}

// LogValue masks credentials when the config is logged.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("source", c.SourceKind),
		slog.String("database_url", secrets.MaskURL(c.DatabaseURL)),
		slog.String("rest_url", secrets.MaskURL(c.RestURL)),
		slog.String("rest_api_key", secrets.Mask(c.RestAPIKey)),
		slog.String("cache_backend", c.CacheBackend),
		slog.String("cache_path", c.CachePath),
		slog.String("redis_addr", c.RedisAddr),
		slog.Bool("prefetch", c.PrefetchEnabled),
		slog.String("admin_token", secrets.Mask(c.AdminAPIToken)),
	)
}
