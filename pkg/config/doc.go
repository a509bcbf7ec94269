// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration with sensible defaults for
// all settings. An optional YAML file (MERIDIAN_CONFIG_FILE) is overlaid
// first; environment variables always win.
//
// # Configuration Structure
//
// Server settings:
//
//	MERIDIAN_HOST="0.0.0.0"
//	MERIDIAN_PORT="8080"
//	MERIDIAN_HEALTH_PORT="9090"
//	MERIDIAN_READ_TIMEOUT="15s"
//	MERIDIAN_WRITE_TIMEOUT="15s"
//
// Store settings:
//
//	MERIDIAN_POSTGRES_URL="postgres://localhost/meridian_identity"
//	MERIDIAN_POSTGRES_MAX_CONNS="25"
//	MERIDIAN_REDIS_ADDR="localhost:6379"
//
// Token settings:
//
//	MERIDIAN_TOKEN_ISSUER="https://identity.example.com/"
//	MERIDIAN_TOKEN_AUDIENCE="meridian-platform"
//	MERIDIAN_SIGNING_KEY_VAULT_SECRET="identity/signing-key"
//	MERIDIAN_EXCHANGE_ISSUER="https://sso.example.com/"
//	MERIDIAN_EXCHANGE_JWKS_URL="https://sso.example.com/.well-known/jwks.json"
//
// Observability settings:
//
//	MERIDIAN_LOG_LEVEL="info"  # debug, info, warn, error
//	MERIDIAN_METRICS_ENABLED="true"
//	MERIDIAN_OTEL_ENABLED="true"
//	MERIDIAN_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Issuer: %s\n", cfg.Tokens.Issuer)
//
// # Related Packages
//
//   - pkg/tokens: Uses token and signing-key configuration
//   - pkg/observability: Uses observability configuration
package config
