package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/observability"
)

// Environment names
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds all application configuration
type Config struct {
	// Environment is "development" or "production". Production tightens the
	// signing-key rules: no ephemeral keys, vault failures are fatal.
	Environment string `yaml:"environment"`

	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Tokens        TokenConfig         `yaml:"tokens"`
	Secrets       SecretsConfig       `yaml:"secrets"`
	Cache         CacheConfig         `yaml:"cache"`
	Events        EventsConfig        `yaml:"events"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// EventsConfig controls outbound domain event delivery. With no webhook URL,
// events only go to the structured log.
type EventsConfig struct {
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string        `yaml:"url"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"`
}

// RedisConfig holds Redis configuration for the replay guard and the
// permission cache
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// TokenConfig holds issuance and exchange-validation parameters
type TokenConfig struct {
	Issuer          string        `yaml:"issuer"`
	Audience        string        `yaml:"audience"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`

	// Signing key resolution chain, first match wins
	SigningKeyVaultSecret string `yaml:"signing_key_vault_secret"`
	SigningKeyPEM         string `yaml:"signing_key_pem"`
	SigningKeyPEMPath     string `yaml:"signing_key_pem_path"`

	// Exchange assertion trust parameters (distinct from our own issuer)
	ExchangeIssuer     string        `yaml:"exchange_issuer"`
	ExchangeAudience   string        `yaml:"exchange_audience"`
	ExchangeKeyPEM     string        `yaml:"exchange_key_pem"`
	ExchangeKeyPEMPath string        `yaml:"exchange_key_pem_path"`
	ExchangeKeyVault   string        `yaml:"exchange_key_vault_secret"`
	ExchangeJWKSURL    string        `yaml:"exchange_jwks_url"`
	ReplayWindow       time.Duration `yaml:"replay_window"`
}

// SecretsConfig selects the secret backend
type SecretsConfig struct {
	// Backend is "aws" or "env"
	Backend string `yaml:"backend"`
	Region  string `yaml:"region"`
	Prefix  string `yaml:"prefix"`
}

// CacheConfig holds permission cache settings
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	L1Size  int           `yaml:"l1_size"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel     observability.LogLevel `yaml:"-"`
	LogLevelName string                 `yaml:"log_level"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	// SecurityLogDir, when set, additionally persists security events to
	// rotated files in that directory.
	SecurityLogDir string `yaml:"security_log_dir"`

	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// LoadConfig builds the configuration: defaults, then the optional YAML file
// named by MERIDIAN_CONFIG_FILE, then environment overrides, then validation.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("MERIDIAN_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.Observability.LogLevel = parseLogLevel(cfg.Observability.LogLevelName)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			ConnLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Tokens: TokenConfig{
			Issuer:          "https://identity.meridian.local/",
			Audience:        "meridian-platform",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 30 * 24 * time.Hour,
			ReplayWindow:    2 * time.Minute,
		},
		Secrets: SecretsConfig{
			Backend: "env",
			Prefix:  "MERIDIAN_SECRET_",
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     time.Minute,
			L1Size:  4096,
		},
		Observability: ObservabilityConfig{
			LogLevelName:       "info",
			MetricsEnabled:     true,
			OTelEnabled:        false,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "meridian-identity",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Environment = getEnv("MERIDIAN_ENV", cfg.Environment)

	cfg.Server.Host = getEnv("MERIDIAN_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("MERIDIAN_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("MERIDIAN_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("MERIDIAN_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvDuration("MERIDIAN_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("MERIDIAN_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.HealthPort = getEnv("MERIDIAN_HEALTH_PORT", cfg.Server.HealthPort)

	cfg.Database.URL = getEnv("MERIDIAN_POSTGRES_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = getEnvInt("MERIDIAN_POSTGRES_MAX_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("MERIDIAN_POSTGRES_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnLifetime = getEnvDuration("MERIDIAN_POSTGRES_CONN_LIFETIME", cfg.Database.ConnLifetime)

	cfg.Redis.Addr = getEnv("MERIDIAN_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("MERIDIAN_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("MERIDIAN_REDIS_DB", cfg.Redis.DB)
	cfg.Redis.PoolSize = getEnvInt("MERIDIAN_REDIS_POOL_SIZE", cfg.Redis.PoolSize)

	cfg.Tokens.Issuer = getEnv("MERIDIAN_TOKEN_ISSUER", cfg.Tokens.Issuer)
	cfg.Tokens.Audience = getEnv("MERIDIAN_TOKEN_AUDIENCE", cfg.Tokens.Audience)
	cfg.Tokens.AccessTokenTTL = getEnvDuration("MERIDIAN_ACCESS_TOKEN_TTL", cfg.Tokens.AccessTokenTTL)
	cfg.Tokens.RefreshTokenTTL = getEnvDuration("MERIDIAN_REFRESH_TOKEN_TTL", cfg.Tokens.RefreshTokenTTL)
	cfg.Tokens.SigningKeyVaultSecret = getEnv("MERIDIAN_SIGNING_KEY_VAULT_SECRET", cfg.Tokens.SigningKeyVaultSecret)
	cfg.Tokens.SigningKeyPEM = getEnv("MERIDIAN_SIGNING_KEY_PEM", cfg.Tokens.SigningKeyPEM)
	cfg.Tokens.SigningKeyPEMPath = getEnv("MERIDIAN_SIGNING_KEY_PEM_PATH", cfg.Tokens.SigningKeyPEMPath)
	cfg.Tokens.ExchangeIssuer = getEnv("MERIDIAN_EXCHANGE_ISSUER", cfg.Tokens.ExchangeIssuer)
	cfg.Tokens.ExchangeAudience = getEnv("MERIDIAN_EXCHANGE_AUDIENCE", cfg.Tokens.ExchangeAudience)
	cfg.Tokens.ExchangeKeyPEM = getEnv("MERIDIAN_EXCHANGE_KEY_PEM", cfg.Tokens.ExchangeKeyPEM)
	cfg.Tokens.ExchangeKeyPEMPath = getEnv("MERIDIAN_EXCHANGE_KEY_PEM_PATH", cfg.Tokens.ExchangeKeyPEMPath)
	cfg.Tokens.ExchangeKeyVault = getEnv("MERIDIAN_EXCHANGE_KEY_VAULT_SECRET", cfg.Tokens.ExchangeKeyVault)
	cfg.Tokens.ExchangeJWKSURL = getEnv("MERIDIAN_EXCHANGE_JWKS_URL", cfg.Tokens.ExchangeJWKSURL)
	cfg.Tokens.ReplayWindow = getEnvDuration("MERIDIAN_REPLAY_WINDOW", cfg.Tokens.ReplayWindow)

	cfg.Secrets.Backend = getEnv("MERIDIAN_SECRETS_BACKEND", cfg.Secrets.Backend)
	cfg.Secrets.Region = getEnv("MERIDIAN_SECRETS_REGION", cfg.Secrets.Region)
	cfg.Secrets.Prefix = getEnv("MERIDIAN_SECRETS_PREFIX", cfg.Secrets.Prefix)
	cfg.Events.WebhookURL = getEnv("MERIDIAN_EVENTS_WEBHOOK_URL", cfg.Events.WebhookURL)
	cfg.Events.WebhookSecret = getEnv("MERIDIAN_EVENTS_WEBHOOK_SECRET", cfg.Events.WebhookSecret)

	cfg.Cache.Enabled = getEnvBool("MERIDIAN_PERM_CACHE_ENABLED", cfg.Cache.Enabled)
	cfg.Cache.TTL = getEnvDuration("MERIDIAN_PERM_CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.L1Size = getEnvInt("MERIDIAN_PERM_CACHE_L1_SIZE", cfg.Cache.L1Size)

	cfg.Observability.LogLevelName = getEnv("MERIDIAN_LOG_LEVEL", cfg.Observability.LogLevelName)
	cfg.Observability.MetricsEnabled = getEnvBool("MERIDIAN_METRICS_ENABLED", cfg.Observability.MetricsEnabled)
	cfg.Observability.SecurityLogDir = getEnv("MERIDIAN_SECURITY_LOG_DIR", cfg.Observability.SecurityLogDir)
	cfg.Observability.OTelEnabled = getEnvBool("MERIDIAN_OTEL_ENABLED", cfg.Observability.OTelEnabled)
	cfg.Observability.OTelEndpoint = getEnv("MERIDIAN_OTEL_ENDPOINT", cfg.Observability.OTelEndpoint)
	cfg.Observability.OTelServiceName = getEnv("MERIDIAN_OTEL_SERVICE_NAME", cfg.Observability.OTelServiceName)
	cfg.Observability.OTelServiceVersion = getEnv("MERIDIAN_OTEL_SERVICE_VERSION", cfg.Observability.OTelServiceVersion)
	cfg.Observability.OTelInsecure = getEnvBool("MERIDIAN_OTEL_INSECURE", cfg.Observability.OTelInsecure)
}

// IsProduction reports whether the service runs with production hardening
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Environment != EnvDevelopment && !c.IsProduction() {
		return fmt.Errorf("invalid environment: %s (must be development or production)", c.Environment)
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Tokens.Issuer == "" {
		return fmt.Errorf("token issuer is required")
	}
	if c.Tokens.Audience == "" {
		return fmt.Errorf("token audience is required")
	}
	if c.Tokens.AccessTokenTTL <= 0 {
		return fmt.Errorf("access token TTL must be positive")
	}
	if c.Tokens.RefreshTokenTTL <= c.Tokens.AccessTokenTTL {
		return fmt.Errorf("refresh token TTL must exceed access token TTL")
	}

	if c.IsProduction() {
		if c.Database.URL == "" {
			return fmt.Errorf("postgres URL is required in production")
		}
		if c.Tokens.SigningKeyVaultSecret == "" && c.Tokens.SigningKeyPEM == "" && c.Tokens.SigningKeyPEMPath == "" {
			return fmt.Errorf("a signing key source is required in production")
		}
		if c.Tokens.ExchangeIssuer == "" || c.Tokens.ExchangeAudience == "" {
			return fmt.Errorf("exchange issuer and audience are required in production")
		}
	}

	switch c.Secrets.Backend {
	case "env", "aws":
	default:
		return fmt.Errorf("invalid secrets backend: %s (must be env or aws)", c.Secrets.Backend)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
