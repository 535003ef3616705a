// Package server wires the schemadiagram server together: storage, renderer,
// registry, worker pool, the HTTP API and the gRPC health endpoint. It also
// handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrijs2005/schemadiagram/internal/dbx"
	"github.com/dmitrijs2005/schemadiagram/internal/logging"
	"github.com/dmitrijs2005/schemadiagram/internal/server/config"
	"github.com/dmitrijs2005/schemadiagram/internal/server/processing"
	"github.com/dmitrijs2005/schemadiagram/internal/server/render"
	"github.com/dmitrijs2005/schemadiagram/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/schemadiagram/internal/server/repositories/requests"
	"github.com/dmitrijs2005/schemadiagram/internal/server/services"
	"github.com/dmitrijs2005/schemadiagram/internal/server/storage"
	"github.com/dmitrijs2005/schemadiagram/internal/server/web"
	"github.com/dmitrijs2005/schemadiagram/internal/server/workers"

	gs "github.com/dmitrijs2005/schemadiagram/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	storage  storage.Storage
	pool     *workers.Pool
	http     *web.HTTPServer
	grpc     *gs.GRPCServer
	registry *prometheus.Registry
}

// NewApp builds every component from c. Output goes to stdout as JSON.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	return newApp(ctx, c, logging.NewJSONLogger(os.Stdout, c.LogLevel))
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (_ *App, err error) {
	app := &App{config: c, logger: logger}

	// release what was opened so far if a later step fails
	defer func() {
		if err != nil {
			app.close(ctx)
		}
	}()

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app.storage, err = newStorage(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	renderer, err := newRenderer(c, logger)
	if err != nil {
		return nil, fmt.Errorf("renderer init error: %w", err)
	}

	var registry *services.RegistryService
	app.db, registry, err = newRegistry(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app.pool = workers.New(workers.Options{
		CoreWorkers:   c.CoreWorkers,
		MaxWorkers:    c.MaxWorkers,
		QueueCapacity: c.QueueCapacity,
		KeepAlive:     c.KeepAlive,
		Registerer:    app.registry,
	}, logger)

	svc := processing.NewService(app.storage, renderer, registry, app.pool, c.RenderTimeout, app.registry, logger)

	h, err := web.NewHandler(svc, registry, c.UploadDir, logger)
	if err != nil {
		return nil, fmt.Errorf("handler init error: %w", err)
	}

	router := web.NewRouter(web.RouterConfig{
		Handler:        h,
		Logger:         logger,
		MaxUploadBytes: c.MaxUploadBytes,
		UploadRPS:      c.UploadRPS,
		UploadBurst:    c.UploadBurst,
		Registerer:     app.registry,
		Gatherer:       app.registry,
	})

	app.http = web.NewHTTPServer(c.HTTPAddr, router, c.ShutdownTimeout, logger)
	if c.GRPCAddr != "" {
		app.grpc = gs.NewGRPCServer(c.GRPCAddr, logger)
	}

	return app, nil
}

func newStorage(ctx context.Context, c *config.Config, l logging.Logger) (storage.Storage, error) {
	var (
		st  storage.Storage
		err error
	)
	switch c.StorageBackend {
	case config.StorageLocal:
		st, err = storage.NewLocalStorage(c.DataDir, l)
	case config.StorageS3:
		st, err = storage.NewS3Storage(ctx, storage.S3Options{
			Bucket:       c.S3Bucket,
			Prefix:       c.S3Prefix,
			Region:       c.S3Region,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
			BaseEndpoint: c.S3BaseEndpoint,
			CacheDir:     c.CacheDir,
		}, l)
	case config.StorageGCS:
		st, err = storage.NewGCSStorage(ctx, storage.GCSOptions{
			Bucket:          c.GCSBucket,
			Prefix:          c.GCSPrefix,
			CredentialsFile: c.GCSCredentialsFile,
			CacheDir:        c.CacheDir,
		}, l)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func newRenderer(c *config.Config, l logging.Logger) (render.Renderer, error) {
	switch c.Renderer {
	case config.RendererNative:
		return render.NewSQLiteRenderer(c.RenderDir, l)
	case config.RendererCommand:
		return render.NewCommandRenderer(c.RenderCommand, c.RenderArgs, c.RenderDir, l)
	default:
		return nil, fmt.Errorf("unknown renderer %q", c.Renderer)
	}
}

// newRegistry opens PostgreSQL and applies migrations when a DSN is set,
// otherwise the registry lives in memory and db is nil.
func newRegistry(ctx context.Context, c *config.Config, l logging.Logger) (*sql.DB, *services.RegistryService, error) {
	if c.DatabaseDSN == "" {
		l.Warn(ctx, "no database configured, request registry is kept in memory")
		return nil, services.NewInMemoryRegistryService(requests.NewMemoryRepository(), l), nil
	}

	db, err := dbx.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}

	return db, services.NewRegistryService(db, m, l), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is canceled, a signal arrives or a server fails.
// Queued diagrams are given ShutdownTimeout to finish afterwards.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "http", app.config.HTTPAddr, "grpc", app.config.GRPCAddr)

	app.initSignalHandler(cancelFunc)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				app.logger.Error(ctx, "server failed", "server", name, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancelFunc()
			}
		}()
	}

	run("http", app.http.Run)
	if app.grpc != nil {
		run("grpc", app.grpc.Run)
	}

	<-ctx.Done()
	if app.grpc != nil {
		app.grpc.SetServing(false)
	}
	wg.Wait()

	app.close(context.WithoutCancel(ctx))
	app.logger.Info(ctx, "App stopped")

	return errors.Join(errs...)
}

// close drains the pool and releases the database and storage clients.
func (app *App) close(ctx context.Context) {
	if app.pool != nil {
		sctx, cancel := context.WithTimeout(ctx, app.config.ShutdownTimeout)
		if err := app.pool.Shutdown(sctx); err != nil {
			app.logger.Warn(ctx, "worker pool did not drain in time", "error", err)
		}
		cancel()
	}
	if c, ok := app.storage.(io.Closer); ok {
		if err := c.Close(); err != nil {
			app.logger.Warn(ctx, "closing storage", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn(ctx, "closing database", "error", err)
		}
	}
}
