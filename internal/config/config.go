// Package config loads and validates the tabx configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// TokenEnv is the environment variable consulted for the API bearer token.
// It takes precedence over the token configured in the file.
const TokenEnv = "TABX_TOKEN"

// Config is the top-level tabx configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Export  ExportConfig  `yaml:"export"`
	History HistoryConfig `yaml:"history"`
	Notify  NotifyConfig  `yaml:"notify"`
	Logging LoggingConfig `yaml:"logging"`

	// Demo selects the embedded demo catalog instead of the remote API.
	// Demo mode is an explicit choice, never a fallback triggered by errors.
	Demo bool `yaml:"demo"`
}

// APIConfig holds Data API connection settings.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`   // e.g. https://console.example.com
	Token     string        `yaml:"token"`      // bearer token; TABX_TOKEN overrides
	TokenFile string        `yaml:"token_file"` // optional file holding the token
	Timeout   time.Duration `yaml:"timeout"`    // per-request timeout (default: 30s)
}

// ExportConfig holds export workflow settings.
type ExportConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"` // between status polls (default: 2s)
	PollAttempts int           `yaml:"poll_attempts"` // attempt budget (default: 30)
	OutputDir    string        `yaml:"output_dir"`    // download destination (default: ".")
	Format       string        `yaml:"format"`        // default export format (default: csv)
	RowLimit     int           `yaml:"row_limit"`     // default row limit (default: 10000)
}

// HistoryConfig holds the local run-history database settings.
type HistoryConfig struct {
	Path     string `yaml:"path"`     // default: ~/.tabx/history.db
	Disabled bool   `yaml:"disabled"` // skip recording runs
}

// NotifyConfig holds webhook notification settings.
type NotifyConfig struct {
	Slack *SlackConfig `yaml:"slack"`
}

// SlackConfig configures Slack webhook notifications for export outcomes.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // text or json (default: text)
}

// LoadOptions adjusts config loading.
type LoadOptions struct {
	// ForceDemo enables demo mode regardless of the file, so the
	// --demo flag works before validation runs.
	ForceDemo bool
}

// Load reads, defaults, and validates a configuration file.
// A missing file is not an error: defaults apply, so tabx works with
// flags and environment variables alone.
func Load(path string) (*Config, error) {
	return LoadWithOptions(path, LoadOptions{})
}

// LoadWithOptions is Load with explicit load behavior.
func LoadWithOptions(path string, opts LoadOptions) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to defaults
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if opts.ForceDemo {
		cfg.Demo = true
	}

	cfg.applyDefaults()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.API.Timeout <= 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.Export.PollInterval <= 0 {
		c.Export.PollInterval = 2 * time.Second
	}
	if c.Export.PollAttempts <= 0 {
		c.Export.PollAttempts = 30
	}
	if c.Export.OutputDir == "" {
		c.Export.OutputDir = "."
	}
	if c.Export.Format == "" {
		c.Export.Format = "csv"
	}
	if c.Export.RowLimit <= 0 {
		c.Export.RowLimit = 10000
	}
	if c.History.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.History.Path = filepath.Join(home, ".tabx", "history.db")
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// applyEnv applies environment overrides. Secrets belong in the
// environment or a token file, not in the config file.
func (c *Config) applyEnv() error {
	if tok := os.Getenv(TokenEnv); tok != "" {
		c.API.Token = tok
	}
	return nil
}

func (c *Config) validate() error {
	if !c.Demo && c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required (or enable demo mode)")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if c.Export.PollAttempts > 1000 {
		return fmt.Errorf("export.poll_attempts too large: %d", c.Export.PollAttempts)
	}
	return nil
}
