package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const EnvPrefix = "SCHEMADIAGRAM_"

// dotenvFile is loaded before the environment is read; a missing file is
// fine. Variables already set in the environment win.
var dotenvFile = ".env"

// parseEnv overlays SCHEMADIAGRAM_* variables, e.g. SCHEMADIAGRAM_HTTP_ADDR.
func parseEnv(c *Config) error {
	if err := godotenv.Load(dotenvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", dotenvFile, err)
	}

	e := envReader{}
	e.str("HTTP_ADDR", &c.HTTPAddr)
	e.str("GRPC_ADDR", &c.GRPCAddr)
	e.str("DATABASE_DSN", &c.DatabaseDSN)
	e.str("LOG_LEVEL", &c.LogLevel)
	e.duration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)

	e.str("STORAGE", &c.StorageBackend)
	e.str("DATA_DIR", &c.DataDir)
	e.str("UPLOAD_DIR", &c.UploadDir)
	e.str("RENDER_DIR", &c.RenderDir)
	e.str("CACHE_DIR", &c.CacheDir)

	e.str("RENDERER", &c.Renderer)
	e.str("RENDER_COMMAND", &c.RenderCommand)
	e.list("RENDER_ARGS", &c.RenderArgs)
	e.duration("RENDER_TIMEOUT", &c.RenderTimeout)

	e.integer("CORE_WORKERS", &c.CoreWorkers)
	e.integer("MAX_WORKERS", &c.MaxWorkers)
	e.integer("QUEUE_CAPACITY", &c.QueueCapacity)
	e.duration("KEEP_ALIVE", &c.KeepAlive)

	e.bigInt("MAX_UPLOAD_BYTES", &c.MaxUploadBytes)
	e.float("UPLOAD_RPS", &c.UploadRPS)
	e.integer("UPLOAD_BURST", &c.UploadBurst)

	e.str("S3_BUCKET", &c.S3Bucket)
	e.str("S3_PREFIX", &c.S3Prefix)
	e.str("S3_REGION", &c.S3Region)
	e.str("S3_ACCESS_KEY", &c.S3AccessKey)
	e.str("S3_SECRET_KEY", &c.S3SecretKey)
	e.str("S3_BASE_ENDPOINT", &c.S3BaseEndpoint)

	e.str("GCS_BUCKET", &c.GCSBucket)
	e.str("GCS_PREFIX", &c.GCSPrefix)
	e.str("GCS_CREDENTIALS_FILE", &c.GCSCredentialsFile)

	return errors.Join(e.errs...)
}

// envReader collects parse errors so every bad variable is reported at once.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(name string) (string, bool) {
	return os.LookupEnv(EnvPrefix + name)
}

func (e *envReader) fail(name, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, v, err))
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e *envReader) list(name string, dst *[]string) {
	if v, ok := e.lookup(name); ok {
		*dst = strings.Fields(v)
	}
}

func (e *envReader) integer(name string, dst *int) {
	if v, ok := e.lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) bigInt(name string, dst *int64) {
	if v, ok := e.lookup(name); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) float(name string, dst *float64) {
	if v, ok := e.lookup(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if v, ok := e.lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = d
	}
}
