package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {

	// Test cases
	tests := []struct {
		expected  *Config
		name      string
		args      []string
		expectErr bool
	}{
		{name: "Test1 OK", args: []string{"cmd", "-a", "http://127.0.0.1:9090", "-i", "10", "-w", "30",
			"-n", "Ada", "-e", "ada@example.com", "-t", "Shop", "-o", "out", "wait", "abc123ABC456"},
			expected: &Config{
				ServerURL:    "http://127.0.0.1:9090",
				PollInterval: 10 * time.Second,
				WaitTimeout:  30 * time.Second,
				Name:         "Ada",
				Email:        "ada@example.com",
				Title:        "Shop",
				OutputDir:    "out",
				Args:         []string{"wait", "abc123ABC456"},
			}},
		{name: "Test2 untouched durations", args: []string{"cmd", "list"},
			expected: &Config{PollInterval: 1500 * time.Millisecond, Args: []string{"list"}}},
		{name: "Test3 incorrect poll interval", args: []string{"cmd", "-i", "abc"}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origArgs := os.Args
			defer func() { os.Args = origArgs }()
			os.Args = tt.args

			config := &Config{PollInterval: 1500 * time.Millisecond}
			err := parseFlags(config)

			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
