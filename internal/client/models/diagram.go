// Package models defines the JSON shapes the client exchanges with the
// schemadiagram server.
package models

import "time"

// Request is the metadata stored for one submitted database.
type Request struct {
	Key   string `json:"key"`
	Title string `json:"title,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Error string `json:"error,omitempty"`
}

// Submission is one row of the server's recent-requests listing.
type Submission struct {
	Key       string    `json:"key"`
	Title     string    `json:"title,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Upload describes a database to submit.
type Upload struct {
	Path  string
	Name  string
	Email string
	Title string
}

// Artifact names a downloadable file kind.
type Artifact string

const (
	ArtifactDiagram  Artifact = "diagram"
	ArtifactDatabase Artifact = "database"
)

// Extension is the file extension downloads of a are saved with.
func (a Artifact) Extension() string {
	if a == ArtifactDatabase {
		return "db"
	}
	return "png"
}
