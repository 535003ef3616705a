package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/schemadiagram/internal/flagx"
	"github.com/dmitrijs2005/schemadiagram/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It is seeded
// from the current Config so keys missing from the file keep their values.
type JsonConfig struct {
	ServerURL    string         `json:"server_url"`
	PollInterval timex.Duration `json:"poll_interval"`
	WaitTimeout  timex.Duration `json:"wait_timeout"`
	Name         string         `json:"name"`
	Email        string         `json:"email"`
	OutputDir    string         `json:"output_dir"`
}

// parseJson overlays Config with values loaded from a JSON file named by
// -c/-config or SCHEMADIAGRAM_CLIENT_CONFIG.
func parseJson(cfg *Config) error {
	jsonConfigFile := flagx.ConfigFile(EnvPrefix + "CONFIG")
	if jsonConfigFile == "" {
		return nil
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	jc := JsonConfig{
		ServerURL:    cfg.ServerURL,
		PollInterval: timex.Duration{Duration: cfg.PollInterval},
		WaitTimeout:  timex.Duration{Duration: cfg.WaitTimeout},
		Name:         cfg.Name,
		Email:        cfg.Email,
		OutputDir:    cfg.OutputDir,
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", jsonConfigFile, err)
	}

	cfg.ServerURL = jc.ServerURL
	cfg.PollInterval = jc.PollInterval.Duration
	cfg.WaitTimeout = jc.WaitTimeout.Duration
	cfg.Name = jc.Name
	cfg.Email = jc.Email
	cfg.OutputDir = jc.OutputDir
	return nil
}
