// Package services contains server-side business logic. This file implements
// RegistryService, which keeps the submission registry in step with the
// diagram lifecycle.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/schemadiagram/internal/dbx"
	"github.com/dmitrijs2005/schemadiagram/internal/logging"
	"github.com/dmitrijs2005/schemadiagram/internal/server/models"
	"github.com/dmitrijs2005/schemadiagram/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/schemadiagram/internal/server/repositories/requests"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 200
)

// RegistryService records each status change together with an event row.
// With a database both writes share one transaction; without one it works
// on an in-memory repository.
type RegistryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         func() time.Time

	mu  sync.Mutex
	mem requests.Repository
}

func NewRegistryService(db *sql.DB, m repomanager.RepositoryManager, l logging.Logger) *RegistryService {
	return &RegistryService{
		db:          db,
		repomanager: m,
		logger:      l.With("module", "registry"),
		now:         time.Now,
	}
}

func NewInMemoryRegistryService(r requests.Repository, l logging.Logger) *RegistryService {
	return &RegistryService{
		mem:    r,
		logger: l.With("module", "registry"),
		now:    time.Now,
	}
}

func (s *RegistryService) repo() requests.Repository {
	if s.db == nil {
		return s.mem
	}
	return s.repomanager.Requests(s.db)
}

func (s *RegistryService) inTx(ctx context.Context, fn func(ctx context.Context, r requests.Repository) error) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return fn(ctx, s.mem)
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, s.repomanager.Requests(tx))
	})
}

// Register records a new pending submission.
func (s *RegistryService) Register(ctx context.Context, req *models.DiagramRequest) error {
	sub := models.NewSubmission(req, s.now().UTC())
	err := s.inTx(ctx, func(ctx context.Context, r requests.Repository) error {
		if err := r.Insert(ctx, sub); err != nil {
			return err
		}
		return r.AddEvent(ctx, sub.Key, sub.Status, "", sub.CreatedAt)
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", req.Key, err)
	}
	return nil
}

func (s *RegistryService) MarkCompleted(ctx context.Context, key models.DiagramKey) error {
	return s.mark(ctx, key, models.StatusCompleted, "")
}

func (s *RegistryService) MarkFailed(ctx context.Context, key models.DiagramKey, msg string) error {
	return s.mark(ctx, key, models.StatusFailed, msg)
}

func (s *RegistryService) mark(ctx context.Context, key models.DiagramKey, status models.SubmissionStatus, msg string) error {
	at := s.now().UTC()
	err := s.inTx(ctx, func(ctx context.Context, r requests.Repository) error {
		if err := r.UpdateStatus(ctx, key, status, msg, at); err != nil {
			return err
		}
		return r.AddEvent(ctx, key, status, msg, at)
	})
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", key, status, err)
	}
	s.logger.Debug(ctx, "submission updated", "key", key, "status", status)
	return nil
}

func (s *RegistryService) Get(ctx context.Context, key models.DiagramKey) (*models.Submission, error) {
	return s.repo().Find(ctx, key)
}

// ListRecent clamps limit to [1, MaxListLimit]; zero or negative means
// DefaultListLimit.
func (s *RegistryService) ListRecent(ctx context.Context, limit int) ([]*models.Submission, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return s.repo().ListRecent(ctx, limit)
}
