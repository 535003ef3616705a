package models

import "time"

// SubmissionStatus is the lifecycle state tracked by the request registry.
type SubmissionStatus string

const (
	StatusPending   SubmissionStatus = "pending"
	StatusCompleted SubmissionStatus = "completed"
	StatusFailed    SubmissionStatus = "failed"
)

// Submission mirrors a DiagramRequest in the registry.
type Submission struct {
	Key       DiagramKey       `json:"key"`
	Title     string           `json:"title,omitempty"`
	Name      string           `json:"name"`
	Email     string           `json:"email"`
	Status    SubmissionStatus `json:"status"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewSubmission builds a pending registry row for req.
func NewSubmission(req *DiagramRequest, now time.Time) *Submission {
	return &Submission{
		Key:       req.Key,
		Title:     req.Title,
		Name:      req.Name,
		Email:     req.Email,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
