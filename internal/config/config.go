package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"crm-api/internal/validation"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	EntityBackendPostgres = "postgres"
	EntityBackendBaaS     = "baas"
)

// Config holds all application configuration
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Database
	DatabaseURL      string `env:"DATABASE_URL,required"`
	DBMaxConns       int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns       int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	DBSimpleProtocol bool   `env:"DB_SIMPLE_PROTOCOL" envDefault:"false"` // PgBouncer em transaction mode

	// Redis (rate limiting). Vazio desliga o limiter.
	RedisURL string `env:"REDIS_URL"`

	// JWT Configuration
	JWTHS256Secret      string `env:"JWT_HS256_SECRET,required"`    // Base64-encoded HMAC secret
	JWTAllowedIssuers   string `env:"JWT_ALLOWED_ISSUERS,required"` // CSV, e.g. "crm-web,crm-mobile"
	JWTAudience         string `env:"JWT_AUDIENCE,required"`
	JWTClockSkewSeconds int    `env:"JWT_CLOCK_SKEW_SECONDS" envDefault:"60"`
	JWTPublicKeyRS256   string `env:"JWT_PUBLIC_KEY_RS256"` // PEM
	JWTRS256Issuer      string `env:"JWT_RS256_ISSUER"`     // issuer verified with the RS256 key instead of HS256

	// Sessions
	SuperuserEmails  string        `env:"SUPERUSER_EMAILS"`
	SessionCacheSize int           `env:"SESSION_CACHE_SIZE" envDefault:"1024"`
	SessionCacheTTL  time.Duration `env:"SESSION_CACHE_TTL" envDefault:"5m"`

	// Password policy
	PasswordMinLength        int  `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	PasswordRequireUppercase bool `env:"PASSWORD_REQUIRE_UPPERCASE" envDefault:"true"`
	PasswordRequireLowercase bool `env:"PASSWORD_REQUIRE_LOWERCASE" envDefault:"true"`
	PasswordRequireNumber    bool `env:"PASSWORD_REQUIRE_NUMBER" envDefault:"true"`
	PasswordRequireSpecial   bool `env:"PASSWORD_REQUIRE_SPECIAL" envDefault:"false"`

	// Entity backend
	EntityBackend string        `env:"ENTITY_BACKEND" envDefault:"postgres"`
	BaaSURL       string        `env:"BAAS_URL"`
	BaaSAPIKey    string        `env:"BAAS_API_KEY"`
	BaaSTimeout   time.Duration `env:"BAAS_TIMEOUT" envDefault:"10s"`

	// Events
	KafkaBrokers     string `env:"KAFKA_BROKERS"` // CSV. Vazio usa o publisher noop
	KafkaEventsTopic string `env:"KAFKA_EVENTS_TOPIC" envDefault:"crm.events"`

	// OpenTelemetry
	OTELEnabled          bool    `env:"OTEL_ENABLED" envDefault:"true"`
	OTELExporterEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELServiceName      string  `env:"OTEL_SERVICE_NAME" envDefault:"crm-api"`
	OTELSamplingRatio    float64 `env:"OTEL_SAMPLING_RATIO" envDefault:"0.1"`

	// Server
	Port         string `env:"PORT" envDefault:"3002"`
	MetricsToken string `env:"METRICS_TOKEN"`

	// Rate Limiting
	RateLimitPerUserPerMin int `env:"RATE_LIMIT_PER_USER_PER_MIN" envDefault:"100"`
}

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return parse()
}

func parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate performs custom validation on the configuration
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWTHS256Secret == "" {
		return fmt.Errorf("JWT_HS256_SECRET is required")
	}

	if len(c.GetAllowedIssuers()) == 0 {
		return fmt.Errorf("JWT_ALLOWED_ISSUERS must contain at least one valid issuer")
	}

	if c.JWTAudience == "" {
		return fmt.Errorf("JWT_AUDIENCE is required")
	}

	if c.JWTClockSkewSeconds < 0 {
		return fmt.Errorf("JWT_CLOCK_SKEW_SECONDS must be non-negative")
	}

	if c.JWTRS256Issuer != "" {
		if c.JWTPublicKeyRS256 == "" {
			return fmt.Errorf("JWT_PUBLIC_KEY_RS256 is required when JWT_RS256_ISSUER is set")
		}
		if !contains(c.GetAllowedIssuers(), c.JWTRS256Issuer) {
			return fmt.Errorf("JWT_RS256_ISSUER %q is not in JWT_ALLOWED_ISSUERS", c.JWTRS256Issuer)
		}
	}

	if c.SessionCacheSize <= 0 {
		return fmt.Errorf("SESSION_CACHE_SIZE must be positive")
	}

	if c.SessionCacheTTL < 0 {
		return fmt.Errorf("SESSION_CACHE_TTL must be non-negative")
	}

	if c.PasswordMinLength < 1 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be at least 1")
	}

	switch c.EntityBackend {
	case EntityBackendPostgres:
	case EntityBackendBaaS:
		if c.BaaSURL == "" {
			return fmt.Errorf("BAAS_URL is required when ENTITY_BACKEND=baas")
		}
	default:
		return fmt.Errorf("ENTITY_BACKEND must be %q or %q, got %q", EntityBackendPostgres, EntityBackendBaaS, c.EntityBackend)
	}

	if len(c.GetKafkaBrokers()) > 0 && c.KafkaEventsTopic == "" {
		return fmt.Errorf("KAFKA_EVENTS_TOPIC is required when KAFKA_BROKERS is set")
	}

	if c.OTELSamplingRatio < 0 || c.OTELSamplingRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATIO must be between 0 and 1")
	}

	if c.RateLimitPerUserPerMin <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_USER_PER_MIN must be positive")
	}

	return nil
}

// GetAllowedIssuers returns the list of allowed JWT issuers
func (c *Config) GetAllowedIssuers() []string {
	return splitCSV(c.JWTAllowedIssuers)
}

// GetSuperuserEmails returns the superuser allow-list, lowercased.
func (c *Config) GetSuperuserEmails() []string {
	emails := splitCSV(c.SuperuserEmails)
	for i, e := range emails {
		emails[i] = strings.ToLower(e)
	}
	return emails
}

func (c *Config) GetKafkaBrokers() []string {
	return splitCSV(c.KafkaBrokers)
}

func (c *Config) PasswordPolicy() validation.PasswordPolicy {
	return validation.PasswordPolicy{
		MinLength:        c.PasswordMinLength,
		RequireUppercase: c.PasswordRequireUppercase,
		RequireLowercase: c.PasswordRequireLowercase,
		RequireNumber:    c.PasswordRequireNumber,
		RequireSpecial:   c.PasswordRequireSpecial,
	}
}

// TelemetryEnabled reports whether OTLP export should be started.
func (c *Config) TelemetryEnabled() bool {
	return c.OTELEnabled && c.OTELExporterEndpoint != ""
}

func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
