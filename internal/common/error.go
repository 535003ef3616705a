// Package common defines shared constants and sentinel errors used across
// the server and the client. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Storage and repository lookups.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal   = errors.New("internal error")
	ErrorValidation = errors.New("validation error")

	// Dispatcher backlog is full.
	ErrSaturated = errors.New("service busy, try again later")
	// Dispatcher no longer accepts work.
	ErrPoolClosed = errors.New("worker pool is shut down")

	// Uploaded file is not a SQLite database.
	ErrNotADatabase = errors.New("not a database")

	// Diagram key is not 12 alphanumeric characters.
	ErrInvalidKey = errors.New("invalid diagram key")
)
