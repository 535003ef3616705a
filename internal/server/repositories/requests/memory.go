package requests

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/schemadiagram/internal/common"
	"github.com/dmitrijs2005/schemadiagram/internal/server/models"
)

// Event is one entry of the in-memory event trail.
type Event struct {
	Key     models.DiagramKey
	Status  models.SubmissionStatus
	Message string
	At      time.Time
}

// MemoryRepository backs the registry when no database is configured.
// Contents are lost on restart.
type MemoryRepository struct {
	mu     sync.RWMutex
	rows   map[models.DiagramKey]models.Submission
	events []Event
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[models.DiagramKey]models.Submission)}
}

func (r *MemoryRepository) Insert(ctx context.Context, s *models.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[s.Key]; ok {
		return fmt.Errorf("submission %s already exists", s.Key)
	}
	r.rows[s.Key] = *s
	return nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, key models.DiagramKey, status models.SubmissionStatus, msg string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[key]
	if !ok {
		return common.ErrorNotFound
	}
	s.Status, s.Error, s.UpdatedAt = status, msg, at
	r.rows[key] = s
	return nil
}

func (r *MemoryRepository) AddEvent(ctx context.Context, key models.DiagramKey, status models.SubmissionStatus, msg string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Key: key, Status: status, Message: msg, At: at})
	return nil
}

// Events returns the trail recorded for key, oldest first.
func (r *MemoryRepository) Events(key models.DiagramKey) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for _, e := range r.events {
		if e.Key == key {
			out = append(out, e)
		}
	}
	return out
}

func (r *MemoryRepository) Find(ctx context.Context, key models.DiagramKey) (*models.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.rows[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) ListRecent(ctx context.Context, limit int) ([]*models.Submission, error) {
	r.mu.RLock()
	all := make([]*models.Submission, 0, len(r.rows))
	for _, s := range r.rows {
		s := s
		all = append(all, &s)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].Key < all[j].Key
	})
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)
