package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/schemadiagram/internal/flagx"
)

// serverFlags are the flags parseFlags understands; others are left to
// other loaders.
var serverFlags = []string{
	"-a", "-grpc", "-d", "-log-level",
	"-storage", "-data", "-uploads",
	"-renderer", "-render-cmd", "-render-timeout",
	"-workers", "-max-workers", "-queue",
	"-max-upload", "-upload-rps",
	"-s3-bucket", "-s3-endpoint", "-gcs-bucket",
}

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string              HTTP bind address (e.g. ":8080")
//	-grpc string           gRPC bind address for health checks
//	-d string              PostgreSQL DSN; empty keeps the registry in memory
//	-log-level string      debug, info, warn or error
//	-storage string        local, s3 or gcs
//	-data string           local artifact root
//	-uploads string        staging directory for uploads
//	-renderer string       native or command
//	-render-cmd string     external renderer binary
//	-render-timeout dur    per-diagram time limit
//	-workers int           core workers
//	-max-workers int       maximum workers
//	-queue int             backlog capacity
//	-max-upload int        maximum upload size in bytes
//	-upload-rps float      uploads per second per client, 0 disables
//	-s3-bucket string      S3 bucket
//	-s3-endpoint string    S3-compatible endpoint (MinIO etc.)
//	-gcs-bucket string     GCS bucket
func parseFlags(config *Config) error {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run the HTTP server")
	fs.StringVar(&config.GRPCAddr, "grpc", config.GRPCAddr, "address and port to run the gRPC health server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")

	fs.StringVar(&config.StorageBackend, "storage", config.StorageBackend, "storage backend: local, s3 or gcs")
	fs.StringVar(&config.DataDir, "data", config.DataDir, "local artifact directory")
	fs.StringVar(&config.UploadDir, "uploads", config.UploadDir, "upload staging directory")

	fs.StringVar(&config.Renderer, "renderer", config.Renderer, "renderer: native or command")
	fs.StringVar(&config.RenderCommand, "render-cmd", config.RenderCommand, "external renderer binary")
	fs.DurationVar(&config.RenderTimeout, "render-timeout", config.RenderTimeout, "time limit per diagram")

	fs.IntVar(&config.CoreWorkers, "workers", config.CoreWorkers, "core workers")
	fs.IntVar(&config.MaxWorkers, "max-workers", config.MaxWorkers, "maximum workers")
	fs.IntVar(&config.QueueCapacity, "queue", config.QueueCapacity, "task backlog capacity")

	fs.Int64Var(&config.MaxUploadBytes, "max-upload", config.MaxUploadBytes, "maximum upload size, bytes")
	fs.Float64Var(&config.UploadRPS, "upload-rps", config.UploadRPS, "uploads per second per client")

	fs.StringVar(&config.S3Bucket, "s3-bucket", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3BaseEndpoint, "s3-endpoint", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.GCSBucket, "gcs-bucket", config.GCSBucket, "GCS bucket")

	return fs.Parse(args)
}
