package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// duration wraps time.Duration so YAML values can use the "5m" / "30s"
// notation instead of raw nanoseconds.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

// fileConfig mirrors Config for the YAML overlay. Only fields present in
// the file override the environment-derived values, so every field is a
// pointer or a zero-checked scalar.
type fileConfig struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	ListenAddr  string `yaml:"listen_addr"`
	DBPath      string `yaml:"db_path"`

	SendTTLDefault duration `yaml:"send_ttl_default"`
	SendTTLMin     duration `yaml:"send_ttl_min"`
	SendTTLMax     duration `yaml:"send_ttl_max"`

	ViewerHeartbeat duration `yaml:"viewer_heartbeat"`
	SessionMaxAge   duration `yaml:"session_max_age"`
	SweepInterval   duration `yaml:"sweep_interval"`

	CORSOrigins    string `yaml:"cors_origins"`
	RateLimitRPS   *int   `yaml:"rate_limit_rps"`
	RateLimitBurst *int   `yaml:"rate_limit_burst"`

	AuthMode   string   `yaml:"auth_mode"`
	AuthSecret string   `yaml:"auth_secret"`
	TokenTTL   duration `yaml:"token_ttl"`
}

// Matches ${VAR} or $VAR in YAML values.
var envVarPattern = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}|\$[A-Za-z_][A-Za-z0-9_]*`)

// applyFile overlays values from a YAML file onto cfg. Env var references
// in values are expanded before parsing, so secrets can stay out of the file.
func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := expandEnvVars(string(raw))

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if fc.Environment != "" {
		cfg.Environment = fc.Environment
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.SendTTLDefault != 0 {
		cfg.SendTTLDefault = time.Duration(fc.SendTTLDefault)
	}
	if fc.SendTTLMin != 0 {
		cfg.SendTTLMin = time.Duration(fc.SendTTLMin)
	}
	if fc.SendTTLMax != 0 {
		cfg.SendTTLMax = time.Duration(fc.SendTTLMax)
	}
	if fc.ViewerHeartbeat != 0 {
		cfg.ViewerHeartbeat = time.Duration(fc.ViewerHeartbeat)
	}
	if fc.SessionMaxAge != 0 {
		cfg.SessionMaxAge = time.Duration(fc.SessionMaxAge)
	}
	if fc.SweepInterval != 0 {
		cfg.SweepInterval = time.Duration(fc.SweepInterval)
	}
	if fc.CORSOrigins != "" {
		cfg.CORSOrigins = fc.CORSOrigins
	}
	if fc.RateLimitRPS != nil {
		cfg.RateLimitRPS = *fc.RateLimitRPS
	}
	if fc.RateLimitBurst != nil {
		cfg.RateLimitBurst = *fc.RateLimitBurst
	}
	if fc.AuthMode != "" {
		cfg.AuthMode = fc.AuthMode
	}
	if fc.AuthSecret != "" {
		cfg.AuthSecret = fc.AuthSecret
	}
	if fc.TokenTTL != 0 {
		cfg.TokenTTL = time.Duration(fc.TokenTTL)
	}

	return nil
}

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")
		return os.Getenv(name)
	})
}
