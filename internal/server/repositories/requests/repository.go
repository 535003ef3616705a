// Package requests declares the registry of diagram submissions and its
// PostgreSQL and in-memory implementations.
package requests

import (
	"context"
	"time"

	"github.com/dmitrijs2005/schemadiagram/internal/server/models"
)

// Repository stores one row per submission plus an append-only event trail.
type Repository interface {
	// Insert adds a new submission. A duplicate key is an error.
	Insert(ctx context.Context, s *models.Submission) error

	// UpdateStatus sets status and error message. It returns
	// common.ErrorNotFound when the key is unknown.
	UpdateStatus(ctx context.Context, key models.DiagramKey, status models.SubmissionStatus, msg string, at time.Time) error

	// AddEvent appends a status transition to the event trail.
	AddEvent(ctx context.Context, key models.DiagramKey, status models.SubmissionStatus, msg string, at time.Time) error

	// Find returns common.ErrorNotFound when the key is unknown.
	Find(ctx context.Context, key models.DiagramKey) (*models.Submission, error)

	// ListRecent returns up to limit submissions, newest first.
	ListRecent(ctx context.Context, limit int) ([]*models.Submission, error)
}
