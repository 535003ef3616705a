// Package client talks to the schemadiagram HTTP API.
//
// # Overview
//
// HTTPClient uploads SQLite databases, reads request metadata, downloads
// diagrams and database files, lists recent submissions, and polls until a
// diagram is rendered (Wait).
//
// # Error Handling
//
// Non-2xx responses become *APIError. Common conditions can be matched with
// errors.Is: ErrNotFound, ErrBusy, ErrUnavailable. A request whose rendering
// failed is reported as *FailedError carrying the recorded message.
package client
