// Package processing runs the diagram lifecycle: accept an upload, render it
// on the worker pool, record the outcome, and read results back by key.
package processing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dmitrijs2005/schemadiagram/internal/common"
	"github.com/dmitrijs2005/schemadiagram/internal/filex"
	"github.com/dmitrijs2005/schemadiagram/internal/logging"
	"github.com/dmitrijs2005/schemadiagram/internal/server/models"
	"github.com/dmitrijs2005/schemadiagram/internal/server/render"
	"github.com/dmitrijs2005/schemadiagram/internal/server/storage"
	"github.com/dmitrijs2005/schemadiagram/internal/server/workers"
)

const DefaultRenderTimeout = 5 * time.Minute

// Registry is the subset of the submission registry the lifecycle updates.
type Registry interface {
	Register(ctx context.Context, req *models.DiagramRequest) error
	MarkCompleted(ctx context.Context, key models.DiagramKey) error
	MarkFailed(ctx context.Context, key models.DiagramKey, msg string) error
}

type Submitter interface {
	Submit(t workers.Task) error
}

// ProcessingError is a failure recorded on a request's metadata.
type ProcessingError struct {
	Key     models.DiagramKey
	Message string
}

func (e *ProcessingError) Error() string { return e.Message }

type Service struct {
	storage       storage.Storage
	renderer      render.Renderer
	registry      Registry
	pool          Submitter
	logger        logging.Logger
	renderTimeout time.Duration

	renderSeconds prometheus.Histogram
	outcomes      *prometheus.CounterVec
}

func NewService(st storage.Storage, r render.Renderer, reg Registry, pool Submitter,
	renderTimeout time.Duration, promReg prometheus.Registerer, l logging.Logger) *Service {
	if renderTimeout <= 0 {
		renderTimeout = DefaultRenderTimeout
	}
	f := promauto.With(promReg)
	return &Service{
		storage:       st,
		renderer:      r,
		registry:      reg,
		pool:          pool,
		logger:        l.With("module", "processing"),
		renderTimeout: renderTimeout,
		renderSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "schemadiagram",
			Subsystem: "diagrams",
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering one diagram",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}),
		// Labels: outcome (completed, failed, rejected)
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schemadiagram",
			Subsystem: "diagrams",
			Name:      "requests_total",
			Help:      "Diagram requests by final outcome",
		}, []string{"outcome"}),
	}
}

// Submit records req, persists its metadata and queues the render of the
// file at localPath. The task owns localPath and removes it when done.
//
// When the pool refuses the task the failure is written to the metadata
// before the error is returned, so the key never stays pending.
func (s *Service) Submit(ctx context.Context, req *models.DiagramRequest, localPath string) error {
	if err := s.registry.Register(ctx, req); err != nil {
		s.logger.Warn(ctx, "registry insert failed", "key", req.Key, "error", err)
	}

	if err := s.saveMetadata(ctx, req); err != nil {
		_ = filex.RemoveQuietly(localPath)
		return err
	}

	// the task works on its own copy; the caller keeps reading req
	task := *req
	err := s.pool.Submit(s.task(&task, localPath))
	if err == nil {
		s.logger.Info(ctx, "diagram queued", "key", req.Key)
		return nil
	}

	_ = filex.RemoveQuietly(localPath)
	s.outcomes.WithLabelValues("rejected").Inc()
	s.recordFailure(ctx, req, err)
	return err
}

func (s *Service) task(req *models.DiagramRequest, localPath string) workers.Task {
	return workers.Task{
		Name: "generate",
		Args: []any{req.String(), localPath},
		Run: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, s.renderTimeout)
			defer cancel()
			return s.Generate(ctx, req, localPath)
		},
		Reject: func(cause error) {
			_ = filex.RemoveQuietly(localPath)
			s.outcomes.WithLabelValues("rejected").Inc()
			s.recordFailure(context.Background(), req, cause)
		},
	}
}

// Generate stores the database, renders it and stores the image. Whatever
// happens, the outcome is recorded before it returns: a failure (or panic)
// lands in the metadata and the registry, then is passed on to the caller.
func (s *Service) Generate(ctx context.Context, req *models.DiagramRequest, localPath string) (err error) {
	defer func() {
		_ = filex.RemoveQuietly(localPath)
	}()

	defer func() {
		if p := recover(); p != nil {
			s.outcomes.WithLabelValues("failed").Inc()
			s.recordFailure(ctx, req, fmt.Errorf("panic: %v", p))
			panic(p)
		}
		if err != nil {
			s.outcomes.WithLabelValues("failed").Inc()
			s.recordFailure(ctx, req, err)
			return
		}
		s.outcomes.WithLabelValues("completed").Inc()
		if rerr := s.registry.MarkCompleted(ctx, req.Key); rerr != nil {
			s.logger.Warn(ctx, "registry update failed", "key", req.Key, "error", rerr)
		}
		s.logger.Info(ctx, "diagram ready", "key", req.Key)
	}()

	if err := s.storeFile(ctx, localPath, req.Key, storage.KindDatabase); err != nil {
		return err
	}

	started := time.Now()
	img, err := s.renderer.Render(ctx, localPath, req.Title)
	s.renderSeconds.Observe(time.Since(started).Seconds())
	if err != nil {
		return err
	}
	defer func() { _ = filex.RemoveQuietly(img) }()

	return s.storeFile(ctx, img, req.Key, storage.KindImage)
}

func (s *Service) storeFile(ctx context.Context, path string, key models.DiagramKey, kind storage.FileKind) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", kind, err)
	}
	defer f.Close()

	if err := s.storage.Store(ctx, f, key, kind); err != nil {
		return fmt.Errorf("store %s: %w", kind, err)
	}
	return nil
}

func (s *Service) saveMetadata(ctx context.Context, req *models.DiagramRequest) error {
	b, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := storage.StoreBytes(ctx, s.storage, b, req.Key, storage.KindMetadata); err != nil {
		return fmt.Errorf("store metadata: %w", err)
	}
	return nil
}

// recordFailure runs on a fresh context: the task context may be the
// reason for the failure.
func (s *Service) recordFailure(ctx context.Context, req *models.DiagramRequest, cause error) {
	req.Fail(cause)
	s.logger.Error(ctx, "diagram failed", "key", req.Key, "error", cause)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := s.saveMetadata(wctx, req); err != nil {
		s.logger.Error(wctx, "could not record failure", "key", req.Key, "error", err)
	}
	if err := s.registry.MarkFailed(wctx, req.Key, req.Error); err != nil {
		s.logger.Warn(wctx, "registry update failed", "key", req.Key, "error", err)
	}
}

// Retrieve loads the metadata for key. It returns common.ErrorNotFound for
// an unknown key and a *ProcessingError when processing failed. Otherwise
// imagePath is the local diagram, or "" while it is still being made.
func (s *Service) Retrieve(ctx context.Context, key models.DiagramKey) (*models.DiagramRequest, string, error) {
	path, err := s.Artifact(ctx, key, storage.KindMetadata)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open metadata: %w", err)
	}
	defer f.Close()

	req, err := models.DiagramRequestFromJSON(f)
	if err != nil {
		return nil, "", err
	}
	if req.HasError() {
		return req, "", &ProcessingError{Key: key, Message: req.Error}
	}

	img, err := s.Artifact(ctx, key, storage.KindImage)
	if errors.Is(err, common.ErrorNotFound) {
		return req, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return req, img, nil
}

// Artifact resolves one stored file of key to a local path.
func (s *Service) Artifact(ctx context.Context, key models.DiagramKey, kind storage.FileKind) (string, error) {
	path, ok, err := s.storage.RetrieveLocal(ctx, key, kind)
	if err != nil {
		return "", fmt.Errorf("retrieve %s: %w", kind, err)
	}
	if !ok {
		return "", common.ErrorNotFound
	}
	return path, nil
}
