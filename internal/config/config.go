package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/medusa2112/HealiosHealth-sub005/pkg/config"
)

const defaultSessionSecret = "change-this-to-a-secure-secret--"

// Config holds all configuration for the auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"AUTH_HTTP_PORT" envDefault:"8010"`

	// Sessions. One signing secret covers both realms; the realm name is
	// bound into every signature, so the realms stay cryptographically
	// disjoint regardless.
	SessionSecret string `env:"SESSION_SECRET" envDefault:"change-this-to-a-secure-secret--"`
	CookieSecure  bool   `env:"COOKIE_SECURE" envDefault:"false"`

	SessionIdleTTL          time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
	SessionAbsoluteTTL      time.Duration `env:"SESSION_ABSOLUTE_TTL" envDefault:"24h"`
	AdminSessionIdleTTL     time.Duration `env:"ADMIN_SESSION_IDLE_TTL" envDefault:"15m"`
	AdminSessionAbsoluteTTL time.Duration `env:"ADMIN_SESSION_ABSOLUTE_TTL" envDefault:"8h"`

	// CSRF
	CSRFTokenTTL time.Duration `env:"CSRF_TOKEN_TTL" envDefault:"12h"`

	// Admin policy
	AdminAllowlist            []string `env:"ADMIN_ALLOWLIST" envSeparator:","`
	AdminSecondFactorRequired bool     `env:"ADMIN_SECOND_FACTOR_REQUIRED" envDefault:"false"`

	// PIN login
	PinTTL time.Duration `env:"PIN_TTL" envDefault:"10m"`

	// Notification delivery for PIN codes. Empty means log-only delivery
	// (development).
	NotifyURL string `env:"NOTIFY_URL"`

	// Backing stores: "memory" or "redis".
	SessionBackend string `env:"SESSION_BACKEND" envDefault:"memory"`
	PinBackend     string `env:"PIN_BACKEND" envDefault:"memory"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"storefront_secret"`
	PostgresDB   string `env:"AUTH_DB_NAME" envDefault:"auth_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// PostgreSQL pool tuning
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINS" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINS" envDefault:"15"`

	// Kafka audit events. Empty broker list disables publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Response security
	CSPReportURI       string   `env:"CSP_REPORT_URI"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// Per-IP request throttle across the API surface.
	APIThrottleRPS   float64 `env:"API_THROTTLE_RPS" envDefault:"50"`
	APIThrottleBurst int     `env:"API_THROTTLE_BURST" envDefault:"100"`
}

// Load reads configuration from environment variables and validates the
// security-sensitive settings.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}

	switch cfg.SessionBackend {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("invalid SESSION_BACKEND %q: must be memory or redis", cfg.SessionBackend)
	}
	switch cfg.PinBackend {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("invalid PIN_BACKEND %q: must be memory or redis", cfg.PinBackend)
	}

	// Outside development the session secret must be explicitly set and
	// strong, cookies must be Secure, and the admin surface must have an
	// owner.
	if cfg.Environment != "development" {
		if cfg.SessionSecret == defaultSessionSecret {
			return nil, fmt.Errorf("SESSION_SECRET must be explicitly set via environment variable in %q mode", cfg.Environment)
		}
		if len(cfg.SessionSecret) < 32 {
			return nil, fmt.Errorf("SESSION_SECRET must be at least 32 characters long, got %d", len(cfg.SessionSecret))
		}
		if !cfg.CookieSecure {
			return nil, fmt.Errorf("COOKIE_SECURE must be true in %q mode", cfg.Environment)
		}
		if len(cfg.AdminAllowlist) == 0 {
			return nil, fmt.Errorf("ADMIN_ALLOWLIST must not be empty in %q mode", cfg.Environment)
		}
	}

	return cfg, nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}
