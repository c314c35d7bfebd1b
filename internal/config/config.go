// Package config loads server configuration. Plain settings come from an
// optional YAML file; anything sensitive (DSNs, the vault key, OAuth client
// secrets) is read from the environment only and never appears in the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// OAuthEndpoint configures one tool's token endpoint. ClientSecretEnv names
// the environment variable holding the secret; the secret itself never lives
// in the file.
type OAuthEndpoint struct {
	TokenURL        string `yaml:"token_url"`
	ClientID        string `yaml:"client_id"`
	ClientSecretEnv string `yaml:"client_secret_env"`
}

// ToolConfig holds per-integration plain settings.
type ToolConfig struct {
	BaseURL string `yaml:"base_url"`
}

// Config is the full server configuration.
type Config struct {
	HTTPPort string `yaml:"http_port"`
	LogLevel string `yaml:"log_level"`

	AuthCacheTTL   time.Duration `yaml:"auth_cache_ttl"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`

	// DevAuth accepts any well-formed key without a database lookup.
	DevAuth bool `yaml:"dev_auth"`

	Tools map[string]ToolConfig    `yaml:"tools"`
	OAuth map[string]OAuthEndpoint `yaml:"oauth"`

	// Environment-only fields.
	PostgresDSN   string `yaml:"-"`
	ClickHouseDSN string `yaml:"-"`
	VaultKey      string `yaml:"-"` // base64-encoded 32-byte key
}

// Load reads configuration: .env (if present), then the YAML file at path
// (if non-empty), then environment overrides on top.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:       "8080",
		LogLevel:       "info",
		AuthCacheTTL:   30 * time.Second,
		CallTimeout:    30 * time.Second,
		RefreshTimeout: 15 * time.Second,
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ACTIONS_HTTP_PORT"); v != "" {
		cfg.HTTPPort = v
	}
	if v := os.Getenv("ACTIONS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ACTIONS_AUTH_CACHE_TTL_S"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			cfg.AuthCacheTTL = time.Duration(s) * time.Second
		}
	}
	if v := os.Getenv("ACTIONS_CALL_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.CallTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("ACTIONS_REFRESH_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.RefreshTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("ACTIONS_DEV_AUTH"); v != "" {
		cfg.DevAuth = v == "1" || v == "true"
	}

	cfg.PostgresDSN = os.Getenv("POSTGRES_DSN")
	cfg.ClickHouseDSN = os.Getenv("CLICKHOUSE_DSN")
	cfg.VaultKey = os.Getenv("ACTIONS_VAULT_KEY")
}

// ClientSecret resolves one OAuth endpoint's client secret from the
// environment variable the file names.
func (e OAuthEndpoint) ClientSecret() string {
	if e.ClientSecretEnv == "" {
		return ""
	}
	return os.Getenv(e.ClientSecretEnv)
}
