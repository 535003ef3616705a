package requests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/schemadiagram/internal/common"
	"github.com/dmitrijs2005/schemadiagram/internal/dbx"
	"github.com/dmitrijs2005/schemadiagram/internal/server/models"
)

// PostgresRepository runs over dbx.DBTX, so the same code serves plain
// connections and transactions.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, s *models.Submission) error {
	query := `
		INSERT INTO submissions (diagram_key, title, name, email, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.db.ExecContext(ctx, query,
		s.Key.String(), s.Title, s.Name, s.Email, string(s.Status), s.Error, s.CreatedAt, s.UpdatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, key models.DiagramKey, status models.SubmissionStatus, msg string, at time.Time) error {
	query := `
		UPDATE submissions
		SET status = $2, error = $3, updated_at = $4
		WHERE diagram_key = $1
	`
	res, err := r.db.ExecContext(ctx, query, key.String(), string(status), msg, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) AddEvent(ctx context.Context, key models.DiagramKey, status models.SubmissionStatus, msg string, at time.Time) error {
	query := `
		INSERT INTO submission_events (diagram_key, status, message, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, key.String(), string(status), msg, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectSubmission = `
		SELECT diagram_key, title, name, email, status, error, created_at, updated_at
		FROM submissions
`

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (*models.Submission, error) {
	var (
		s      models.Submission
		key    string
		status string
	)
	if err := row.Scan(&key, &s.Title, &s.Name, &s.Email, &status, &s.Error, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Key = models.DiagramKey(key)
	s.Status = models.SubmissionStatus(status)
	return &s, nil
}

func (r *PostgresRepository) Find(ctx context.Context, key models.DiagramKey) (*models.Submission, error) {
	query := selectSubmission + `		WHERE diagram_key = $1`

	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, key.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]*models.Submission, error) {
	query := selectSubmission + `		ORDER BY created_at DESC, diagram_key
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Submission, 0, limit)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
