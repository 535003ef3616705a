package config

import (
	"os"
	"time"
)

const EnvPrefix = "SCHEMADIAGRAM_CLIENT_"

// parseEnv overlays string settings and well-formed durations; malformed
// durations are ignored.
func parseEnv(cfg *Config) {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("SERVER_URL", &cfg.ServerURL)
	str("NAME", &cfg.Name)
	str("EMAIL", &cfg.Email)
	str("OUTPUT_DIR", &cfg.OutputDir)
	dur("POLL_INTERVAL", &cfg.PollInterval)
	dur("WAIT_TIMEOUT", &cfg.WaitTimeout)
}
