package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds runtime settings for the schemadiagram client.
type Config struct {
	ServerURL    string
	PollInterval time.Duration
	WaitTimeout  time.Duration
	Name         string
	Email        string
	Title        string
	OutputDir    string

	// Args are the positional arguments left after flags: the command
	// and its operands.
	Args []string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.PollInterval = 2 * time.Second
	c.WaitTimeout = 10 * time.Minute
	c.OutputDir = "."
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: bad server url %q", c.ServerURL)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll interval must be positive")
	}
	return nil
}

// LoadConfig constructs a Config, applies defaults, then overlays the
// environment, a JSON file (if present) and command-line flags. Later
// sources take precedence over earlier ones.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	if err := parseJson(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
