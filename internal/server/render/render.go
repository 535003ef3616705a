// Package render turns an uploaded SQLite database into an entity-relationship
// diagram image.
package render

import (
	"context"
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dmitrijs2005/schemadiagram/internal/common"
)

// Renderer produces a PNG diagram for the database at dbPath and returns the
// path of the image it wrote. The caller owns the returned file.
type Renderer interface {
	Render(ctx context.Context, dbPath, title string) (string, error)
}

const sqliteMIME = "application/vnd.sqlite3"

// FormatError reports an upload that is not a SQLite database.
type FormatError struct {
	Detected string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("Expected a SQLite database file, but got a file of type %s", e.Detected)
}

func (e *FormatError) Unwrap() error { return common.ErrNotADatabase }

// CheckSQLite sniffs the file at path and returns a *FormatError unless it
// is a SQLite 3 database.
func CheckSQLite(path string) error {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("detect file type: %w", err)
	}
	if !mt.Is(sqliteMIME) {
		return &FormatError{Detected: mt.String()}
	}
	return nil
}
