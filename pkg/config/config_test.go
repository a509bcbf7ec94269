package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	os.Setenv("TEST_DURATION", "45s")
	defer os.Unsetenv("TEST_DURATION")

	if got := getEnvDuration("TEST_DURATION", time.Minute); got != 45*time.Second {
		t.Errorf("getEnvDuration() = %v, want 45s", got)
	}
	if got := getEnvDuration("TEST_DURATION_UNSET", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration() default = %v, want 1m", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("default port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Server.HealthPort != "9090" {
		t.Errorf("default health port = %q, want 9090", cfg.Server.HealthPort)
	}
	if cfg.Tokens.AccessTokenTTL != 15*time.Minute {
		t.Errorf("default access token TTL = %v, want 15m", cfg.Tokens.AccessTokenTTL)
	}
	if cfg.Tokens.RefreshTokenTTL != 30*24*time.Hour {
		t.Errorf("default refresh token TTL = %v, want 720h", cfg.Tokens.RefreshTokenTTL)
	}
	if cfg.Observability.LogLevel != observability.InfoLevel {
		t.Errorf("default log level = %v, want info", cfg.Observability.LogLevel)
	}
	if cfg.IsProduction() {
		t.Error("default environment should not be production")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	os.Setenv("MERIDIAN_PORT", "8181")
	os.Setenv("MERIDIAN_ACCESS_TOKEN_TTL", "5m")
	os.Setenv("MERIDIAN_PERM_CACHE_ENABLED", "false")
	defer func() {
		os.Unsetenv("MERIDIAN_PORT")
		os.Unsetenv("MERIDIAN_ACCESS_TOKEN_TTL")
		os.Unsetenv("MERIDIAN_PERM_CACHE_ENABLED")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8181" {
		t.Errorf("port = %q, want 8181", cfg.Server.Port)
	}
	if cfg.Tokens.AccessTokenTTL != 5*time.Minute {
		t.Errorf("access token TTL = %v, want 5m", cfg.Tokens.AccessTokenTTL)
	}
	if cfg.Cache.Enabled {
		t.Error("cache should be disabled")
	}
}

func TestLoadConfigYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: "9999"
tokens:
  issuer: https://id.example.com
  audience: example-api
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	os.Setenv("MERIDIAN_CONFIG_FILE", path)
	defer os.Unsetenv("MERIDIAN_CONFIG_FILE")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("port = %q, want 9999", cfg.Server.Port)
	}
	if cfg.Tokens.Issuer != "https://id.example.com" {
		t.Errorf("issuer = %q", cfg.Tokens.Issuer)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name: "refresh TTL not longer than access TTL",
			mutate: func(c *Config) {
				c.Tokens.RefreshTokenTTL = c.Tokens.AccessTokenTTL
			},
		},
		{
			name: "health port equals API port",
			mutate: func(c *Config) {
				c.Server.HealthPort = c.Server.Port
			},
		},
		{
			name: "production without postgres",
			mutate: func(c *Config) {
				c.Environment = EnvProduction
				c.Database.URL = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Observability.LogLevel = observability.InfoLevel
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should have failed")
			}
		})
	}
}
