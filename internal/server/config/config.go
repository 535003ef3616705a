// Package config handles configuration for the server component: defaults,
// then .env and SCHEMADIAGRAM_* environment variables, then a JSON or YAML
// file, then command-line flags.
package config

import (
	"fmt"
	"time"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"
	StorageGCS   = "gcs"

	RendererNative  = "native"
	RendererCommand = "command"
)

// Config holds runtime settings for the schemadiagram server.
//
// An empty DatabaseDSN keeps the request registry in memory.
type Config struct {
	HTTPAddr        string
	GRPCAddr        string
	DatabaseDSN     string
	LogLevel        string
	ShutdownTimeout time.Duration

	StorageBackend string
	DataDir        string
	UploadDir      string
	RenderDir      string
	CacheDir       string

	Renderer      string
	RenderCommand string
	RenderArgs    []string
	RenderTimeout time.Duration

	CoreWorkers   int
	MaxWorkers    int
	QueueCapacity int
	KeepAlive     time.Duration

	MaxUploadBytes int64
	UploadRPS      float64
	UploadBurst    int

	S3Bucket       string
	S3Prefix       string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3BaseEndpoint string

	GCSBucket          string
	GCSPrefix          string
	GCSCredentialsFile string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.GRPCAddr = ":50051"
	c.DatabaseDSN = ""
	c.LogLevel = "info"
	c.ShutdownTimeout = 30 * time.Second

	c.StorageBackend = StorageLocal
	c.DataDir = "data/diagrams"
	c.UploadDir = "data/uploads"
	c.RenderDir = "data/render"
	c.CacheDir = "data/cache"

	c.Renderer = RendererNative
	c.RenderCommand = "schemacrawler.sh"
	c.RenderArgs = nil
	c.RenderTimeout = 5 * time.Minute

	c.CoreWorkers = 2
	c.MaxWorkers = 5
	c.QueueCapacity = 500
	c.KeepAlive = 60 * time.Second

	c.MaxUploadBytes = 50 << 20
	c.UploadRPS = 2
	c.UploadBurst = 5

	c.S3Region = "us-east-1"
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageLocal:
	case StorageS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("config: s3 storage needs a bucket")
		}
	case StorageGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("config: gcs storage needs a bucket")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.StorageBackend)
	}

	switch c.Renderer {
	case RendererNative:
	case RendererCommand:
		if c.RenderCommand == "" {
			return fmt.Errorf("config: command renderer needs a command")
		}
	default:
		return fmt.Errorf("config: unknown renderer %q", c.Renderer)
	}

	if c.CoreWorkers <= 0 || c.MaxWorkers < c.CoreWorkers || c.QueueCapacity <= 0 {
		return fmt.Errorf("config: bad worker pool sizes core=%d max=%d queue=%d",
			c.CoreWorkers, c.MaxWorkers, c.QueueCapacity)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("config: http address is empty")
	}
	return nil
}

// LoadConfig builds a Config by applying defaults, then overlaying the
// environment, an optional config file and finally command-line flags.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFile(cfg); err != nil {
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
