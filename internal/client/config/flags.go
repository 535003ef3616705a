package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/schemadiagram/internal/flagx"
)

var (
	clientFlags = []string{"-a", "-i", "-w", "-n", "-e", "-t", "-o"}
	// valueFlags take a value that must not be mistaken for a positional.
	valueFlags = append([]string{"-c", "-config"}, clientFlags...)
)

// parseFlags populates selected Config fields from command-line flags and
// stores the positional arguments in Args. -c/-config and its value are not
// positional.
func parseFlags(cfg *Config) error {
	args := flagx.FilterArgs(os.Args[1:], clientFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the server")
	pollInterval := fs.Int("i", int(cfg.PollInterval.Seconds()), "poll interval (in seconds)")
	waitTimeout := fs.Int("w", int(cfg.WaitTimeout.Seconds()), "wait timeout (in seconds)")
	fs.StringVar(&cfg.Name, "n", cfg.Name, "submitter name")
	fs.StringVar(&cfg.Email, "e", cfg.Email, "submitter email")
	fs.StringVar(&cfg.Title, "t", cfg.Title, "diagram title")
	fs.StringVar(&cfg.OutputDir, "o", cfg.OutputDir, "download directory")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// sub-second values from env or file survive unless overridden here
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			cfg.PollInterval = time.Duration(*pollInterval) * time.Second
		case "w":
			cfg.WaitTimeout = time.Duration(*waitTimeout) * time.Second
		}
	})
	cfg.Args = flagx.Positional(os.Args[1:], valueFlags)
	return nil
}
