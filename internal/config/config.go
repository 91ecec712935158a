// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads and validates the server configuration.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/webauthn"
	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	TLS       TLSConfig       `yaml:"tls"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Storage   StorageConfig   `yaml:"storage"`
	WebAuthn  WebAuthnConfig  `yaml:"webauthn"`

	// Users seeds the in-memory user directory of the standalone server.
	// Deployments embedding the library plug in their own directory instead.
	Users []UserEntry `yaml:"users,omitempty"`
}

// UserEntry is one seeded user account.
type UserEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
}

// WebAuthnConfig is the YAML-facing relying party policy. Durations are
// strings ("60s", "5m") and converted when building the webauthn.Config.
type WebAuthnConfig struct {
	RPID                    string   `yaml:"id"`
	RPDisplayName           string   `yaml:"display_name"`
	RPOrigins               []string `yaml:"origins"`
	RelatedOrigins          []string `yaml:"related_origins"`
	Algorithms              []int64  `yaml:"algorithms"`
	Timeout                 string   `yaml:"timeout"`
	ChallengeTTL            string   `yaml:"challenge_ttl"`
	UserVerification        string   `yaml:"user_verification"`
	ResidentKey             string   `yaml:"resident_key"`
	AuthenticatorAttachment string   `yaml:"authenticator_attachment"`
	AttestationPreference   string   `yaml:"attestation"`
	PasswordlessLogin       bool     `yaml:"passwordless_login"`
	Debug                   bool     `yaml:"debug"`
}

// RelyingParty converts the YAML section into the policy consumed by the
// ceremony service. Defaults are applied; the result is validated.
func (w WebAuthnConfig) RelyingParty() (*webauthn.Config, error) {
	cfg := &webauthn.Config{
		RPID:                    w.RPID,
		RPDisplayName:           w.RPDisplayName,
		RPOrigins:               w.RPOrigins,
		RelatedOrigins:          w.RelatedOrigins,
		Algorithms:              w.Algorithms,
		UserVerification:        w.UserVerification,
		ResidentKey:             w.ResidentKey,
		AuthenticatorAttachment: w.AuthenticatorAttachment,
		AttestationPreference:   w.AttestationPreference,
		PasswordlessLogin:       w.PasswordlessLogin,
		Debug:                   w.Debug,
	}
	if w.Timeout != "" {
		timeout, err := time.ParseDuration(w.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid webauthn timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	if w.ChallengeTTL != "" {
		ttl, err := time.ParseDuration(w.ChallengeTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid webauthn challenge_ttl: %w", err)
		}
		cfg.ChallengeTTL = ttl
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TLSConfig controls TLS settings. WebAuthn requires a secure context, so
// production deployments terminate TLS here or at a proxy in front.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AuthConfig controls post-authentication session tokens
type AuthConfig struct {
	// JWTSecret signs session tokens. Supports ${ENV_VAR} expansion so the
	// secret stays out of config files. Empty disables token issuance.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is the session token lifetime as a duration string
	// ("12h", "30m"). Defaults to 12h.
	TokenTTL string `yaml:"token_ttl"`
}

// SessionTTL parses the configured token lifetime. Zero means use the
// issuer default.
func (a AuthConfig) SessionTTL() time.Duration {
	ttl, err := time.ParseDuration(a.TokenTTL)
	if err != nil {
		return 0
	}
	return ttl
}

// RateLimitConfig controls rate limiting
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// MetricsConfig controls the metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StorageConfig selects the credential store backend
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the SQLite database path, required for the sqlite backend.
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.Auth.JWTSecret = expandEnv(cfg.Auth.JWTSecret)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration defaults applied before YAML decoding.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8443,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 60,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("PASSKEY_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portEnv := os.Getenv("PASSKEY_PORT"); portEnv != "" {
		port, err := strconv.Atoi(portEnv)
		if err != nil {
			log.Printf("Warning: invalid PASSKEY_PORT value %q, using default %d: %v",
				portEnv, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid PASSKEY_PORT value %q (out of range 1-65535), using default %d",
				portEnv, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	if level := os.Getenv("PASSKEY_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("PASSKEY_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	if backend := os.Getenv("PASSKEY_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if path := os.Getenv("PASSKEY_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}

	if secret := os.Getenv("PASSKEY_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
}

// expandEnv resolves a ${ENV_VAR} reference in a config value.
func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}"))
	}
	return value
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}

	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory or sqlite)", c.Storage.Backend)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin < 1 {
		return fmt.Errorf("ratelimit requests_per_min must be positive when enabled")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth jwt_secret must be at least 32 bytes")
	}
	if c.Auth.TokenTTL != "" {
		if _, err := time.ParseDuration(c.Auth.TokenTTL); err != nil {
			return fmt.Errorf("invalid auth token_ttl: %w", err)
		}
	}

	for i, u := range c.Users {
		if u.ID == "" || u.Name == "" {
			return fmt.Errorf("users[%d]: id and name are required", i)
		}
	}

	// The relying party policy has its own validation; surface it here so
	// startup fails before any listener opens.
	if _, err := c.WebAuthn.RelyingParty(); err != nil {
		return fmt.Errorf("webauthn: %w", err)
	}

	return nil
}
