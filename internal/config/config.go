// Package config loads relay configuration from environment variables,
// with an optional YAML overlay for file-based deployments.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all relay configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`

	// Storage
	DBPath string `envconfig:"DB_PATH" default:"relay.db"`

	// Message TTL bounds. A send may carry its own TTL; it is clamped
	// to [SendTTLMin, SendTTLMax]. Zero means SendTTLDefault.
	SendTTLDefault time.Duration `envconfig:"SEND_TTL_DEFAULT" default:"5m"`
	SendTTLMin     time.Duration `envconfig:"SEND_TTL_MIN" default:"5s"`
	SendTTLMax     time.Duration `envconfig:"SEND_TTL_MAX" default:"1h"`

	// Presence
	ViewerHeartbeat time.Duration `envconfig:"VIEWER_HEARTBEAT" default:"10s"`

	// Cleanup
	SessionMaxAge time.Duration `envconfig:"SESSION_MAX_AGE" default:"24h"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`

	// HTTP
	CORSOrigins    string `envconfig:"CORS_ORIGINS"`
	RateLimitRPS   int    `envconfig:"RATE_LIMIT_RPS" default:"0"`
	RateLimitBurst int    `envconfig:"RATE_LIMIT_BURST" default:"0"`

	// Auth for the admin surface (viewers display, config read).
	// "none" skips all checks; "token" requires a login-issued JWT.
	AuthMode   string        `envconfig:"AUTH_MODE" default:"none"`
	AuthSecret string        `envconfig:"AUTH_SECRET"`
	TokenTTL   time.Duration `envconfig:"TOKEN_TTL" default:"12h"`

	// ConfigFile points at an optional YAML overlay (see file.go).
	ConfigFile string `envconfig:"CONFIG_FILE"`
}

// Load reads configuration from the environment and applies the YAML
// overlay when CONFIG_FILE is set.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if cfg.ConfigFile != "" {
		if err := applyFile(&cfg, cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that envconfig defaults cannot express.
func (c *Config) Validate() error {
	if c.SendTTLMin <= 0 || c.SendTTLMax <= 0 || c.SendTTLDefault <= 0 {
		return fmt.Errorf("config: TTL values must be positive")
	}
	if c.SendTTLMin > c.SendTTLMax {
		return fmt.Errorf("config: SEND_TTL_MIN (%s) exceeds SEND_TTL_MAX (%s)", c.SendTTLMin, c.SendTTLMax)
	}
	if c.SendTTLDefault < c.SendTTLMin || c.SendTTLDefault > c.SendTTLMax {
		return fmt.Errorf("config: SEND_TTL_DEFAULT (%s) outside [%s, %s]", c.SendTTLDefault, c.SendTTLMin, c.SendTTLMax)
	}
	if c.ViewerHeartbeat <= 0 {
		return fmt.Errorf("config: VIEWER_HEARTBEAT must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("config: SWEEP_INTERVAL must be positive")
	}
	if c.AuthMode != "none" && c.AuthMode != "token" {
		return fmt.Errorf("config: unknown AUTH_MODE %q", c.AuthMode)
	}
	if c.AuthMode == "token" && c.AuthSecret == "" {
		return fmt.Errorf("config: AUTH_MODE=token requires AUTH_SECRET")
	}
	return nil
}
