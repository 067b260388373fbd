package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ksefmcp/ksef-mcp/pkg/ksef"
	"github.com/ksefmcp/ksef-mcp/pkg/models"
)

// Environment variables that override file values.
const (
	EnvBaseURL      = "KSEF_BASE_URL"
	EnvSessionToken = "KSEF_SESSION_TOKEN"
	EnvLogLevel     = "KSEF_LOG_LEVEL"
)

// Config holds all ksef-mcp configuration.
type Config struct {
	BaseURL      string             `yaml:"base_url"`
	SessionToken string             `yaml:"session_token"`
	HTTP         HTTPConfig         `yaml:"http"`
	Log          LogConfig          `yaml:"log"`
	Audit        models.AuditConfig `yaml:"audit"`
}

// HTTPConfig controls the outbound KSeF client.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// LogConfig controls stderr logging. Format is "text" (default) or "json".
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		BaseURL: ksef.DefaultBaseURL,
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "ksef-mcp",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Audit: models.AuditConfig{
			Enabled:       false,
			DBPath:        "ksef-mcp-audit.db",
			RetentionDays: 30,
			MaxErrorSize:  4096,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads the first existing file among paths into the process
// environment without overriding variables that are already set. It returns
// the path loaded, or "" if none existed.
func LoadDotEnv(paths ...string) (string, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return "", fmt.Errorf("load %s: %w", p, err)
		}
		return p, nil
	}
	return "", nil
}

// ApplyEnv overrides file values with non-empty KSEF_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvSessionToken); v != "" {
		c.SessionToken = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate reports every invalid setting, joined.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url %q must be an absolute http(s) URL", c.BaseURL))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("http.timeout must be positive, got %s", c.HTTP.Timeout))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if c.Audit.Enabled && c.Audit.DBPath == "" {
		errs = append(errs, errors.New("audit.db_path is required when audit is enabled"))
	}
	if c.Audit.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("audit.retention_days must not be negative, got %d", c.Audit.RetentionDays))
	}
	return errors.Join(errs...)
}
