package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/schemadiagram/internal/flagx"
	"github.com/dmitrijs2005/schemadiagram/internal/timex"
)

// ConfigFileEnv names the variable consulted when no -c/-config flag is given.
const ConfigFileEnv = EnvPrefix + "CONFIG"

// FileConfig is the on-disk shape of Config. Durations accept "90s" style
// strings or integer nanoseconds. Keys missing from the file keep the value
// they had before it was read.
type FileConfig struct {
	HTTPAddr        string         `json:"http_addr" yaml:"http_addr"`
	GRPCAddr        string         `json:"grpc_addr" yaml:"grpc_addr"`
	DatabaseDSN     string         `json:"database_dsn" yaml:"database_dsn"`
	LogLevel        string         `json:"log_level" yaml:"log_level"`
	ShutdownTimeout timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	StorageBackend string `json:"storage" yaml:"storage"`
	DataDir        string `json:"data_dir" yaml:"data_dir"`
	UploadDir      string `json:"upload_dir" yaml:"upload_dir"`
	RenderDir      string `json:"render_dir" yaml:"render_dir"`
	CacheDir       string `json:"cache_dir" yaml:"cache_dir"`

	Renderer      string         `json:"renderer" yaml:"renderer"`
	RenderCommand string         `json:"render_command" yaml:"render_command"`
	RenderArgs    []string       `json:"render_args" yaml:"render_args"`
	RenderTimeout timex.Duration `json:"render_timeout" yaml:"render_timeout"`

	CoreWorkers   int            `json:"core_workers" yaml:"core_workers"`
	MaxWorkers    int            `json:"max_workers" yaml:"max_workers"`
	QueueCapacity int            `json:"queue_capacity" yaml:"queue_capacity"`
	KeepAlive     timex.Duration `json:"keep_alive" yaml:"keep_alive"`

	MaxUploadBytes int64   `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	UploadRPS      float64 `json:"upload_rps" yaml:"upload_rps"`
	UploadBurst    int     `json:"upload_burst" yaml:"upload_burst"`

	S3Bucket       string `json:"s3_bucket" yaml:"s3_bucket"`
	S3Prefix       string `json:"s3_prefix" yaml:"s3_prefix"`
	S3Region       string `json:"s3_region" yaml:"s3_region"`
	S3AccessKey    string `json:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key" yaml:"s3_secret_key"`
	S3BaseEndpoint string `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`

	GCSBucket          string `json:"gcs_bucket" yaml:"gcs_bucket"`
	GCSPrefix          string `json:"gcs_prefix" yaml:"gcs_prefix"`
	GCSCredentialsFile string `json:"gcs_credentials_file" yaml:"gcs_credentials_file"`
}

func fileConfigFrom(c *Config) *FileConfig {
	return &FileConfig{
		HTTPAddr:           c.HTTPAddr,
		GRPCAddr:           c.GRPCAddr,
		DatabaseDSN:        c.DatabaseDSN,
		LogLevel:           c.LogLevel,
		ShutdownTimeout:    timex.Duration{Duration: c.ShutdownTimeout},
		StorageBackend:     c.StorageBackend,
		DataDir:            c.DataDir,
		UploadDir:          c.UploadDir,
		RenderDir:          c.RenderDir,
		CacheDir:           c.CacheDir,
		Renderer:           c.Renderer,
		RenderCommand:      c.RenderCommand,
		RenderArgs:         c.RenderArgs,
		RenderTimeout:      timex.Duration{Duration: c.RenderTimeout},
		CoreWorkers:        c.CoreWorkers,
		MaxWorkers:         c.MaxWorkers,
		QueueCapacity:      c.QueueCapacity,
		KeepAlive:          timex.Duration{Duration: c.KeepAlive},
		MaxUploadBytes:     c.MaxUploadBytes,
		UploadRPS:          c.UploadRPS,
		UploadBurst:        c.UploadBurst,
		S3Bucket:           c.S3Bucket,
		S3Prefix:           c.S3Prefix,
		S3Region:           c.S3Region,
		S3AccessKey:        c.S3AccessKey,
		S3SecretKey:        c.S3SecretKey,
		S3BaseEndpoint:     c.S3BaseEndpoint,
		GCSBucket:          c.GCSBucket,
		GCSPrefix:          c.GCSPrefix,
		GCSCredentialsFile: c.GCSCredentialsFile,
	}
}

func (f *FileConfig) apply(c *Config) {
	c.HTTPAddr = f.HTTPAddr
	c.GRPCAddr = f.GRPCAddr
	c.DatabaseDSN = f.DatabaseDSN
	c.LogLevel = f.LogLevel
	c.ShutdownTimeout = f.ShutdownTimeout.Duration
	c.StorageBackend = f.StorageBackend
	c.DataDir = f.DataDir
	c.UploadDir = f.UploadDir
	c.RenderDir = f.RenderDir
	c.CacheDir = f.CacheDir
	c.Renderer = f.Renderer
	c.RenderCommand = f.RenderCommand
	c.RenderArgs = f.RenderArgs
	c.RenderTimeout = f.RenderTimeout.Duration
	c.CoreWorkers = f.CoreWorkers
	c.MaxWorkers = f.MaxWorkers
	c.QueueCapacity = f.QueueCapacity
	c.KeepAlive = f.KeepAlive.Duration
	c.MaxUploadBytes = f.MaxUploadBytes
	c.UploadRPS = f.UploadRPS
	c.UploadBurst = f.UploadBurst
	c.S3Bucket = f.S3Bucket
	c.S3Prefix = f.S3Prefix
	c.S3Region = f.S3Region
	c.S3AccessKey = f.S3AccessKey
	c.S3SecretKey = f.S3SecretKey
	c.S3BaseEndpoint = f.S3BaseEndpoint
	c.GCSBucket = f.GCSBucket
	c.GCSPrefix = f.GCSPrefix
	c.GCSCredentialsFile = f.GCSCredentialsFile
}

// parseFile overlays the file named by -c/-config (or SCHEMADIAGRAM_CONFIG).
// .yaml and .yml files are read as YAML, anything else as JSON.
func parseFile(c *Config) error {
	path := flagx.ConfigFile(ConfigFileEnv)

	// nothing to load
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	fc := fileConfigFrom(c)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, fc)
	default:
		err = json.Unmarshal(b, fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	fc.apply(c)
	return nil
}
