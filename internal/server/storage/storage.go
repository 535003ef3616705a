// Package storage persists diagram artifacts addressed by (DiagramKey,
// FileKind). Backends: local filesystem, S3-compatible object storage and
// Google Cloud Storage. Object-store backends stage reads in a local cache
// directory so callers always get a filesystem path back.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/dmitrijs2005/schemadiagram/internal/server/models"
)

// FileKind tags the artifacts stored under one key.
type FileKind string

const (
	KindDatabase FileKind = "database"
	KindImage    FileKind = "image"
	KindMetadata FileKind = "metadata"
)

// Extension returns the file extension used for kind, without the dot.
func (k FileKind) Extension() string {
	switch k {
	case KindDatabase:
		return "db"
	case KindImage:
		return "png"
	case KindMetadata:
		return "json"
	default:
		return string(k)
	}
}

// ContentType is the MIME type served for kind.
func (k FileKind) ContentType() string {
	switch k {
	case KindDatabase:
		return "application/vnd.sqlite3"
	case KindImage:
		return "image/png"
	case KindMetadata:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func (k FileKind) Valid() bool {
	return k == KindDatabase || k == KindImage || k == KindMetadata
}

// Storage is the key-addressed artifact store.
//
// Store creates or overwrites the artifact for (key, kind). Once Store
// returns, RetrieveLocal for the same pair observes the new content.
//
// RetrieveLocal resolves (key, kind) to a readable local path. A missing
// artifact is reported as ok == false with a nil error.
type Storage interface {
	Store(ctx context.Context, r io.Reader, key models.DiagramKey, kind FileKind) error
	RetrieveLocal(ctx context.Context, key models.DiagramKey, kind FileKind) (localPath string, ok bool, err error)
}

// ObjectName is the slash-separated name of (key, kind) below a root:
// "<key>/<key>.<ext>".
func ObjectName(key models.DiagramKey, kind FileKind) string {
	k := key.String()
	return path.Join(k, k+"."+kind.Extension())
}

// LocalPath places ObjectName below root on the local filesystem.
func LocalPath(root string, key models.DiagramKey, kind FileKind) string {
	return filepath.Join(root, filepath.FromSlash(ObjectName(key, kind)))
}

func checkArgs(key models.DiagramKey, kind FileKind) error {
	if !key.Valid() {
		return fmt.Errorf("storage: invalid key %q", key)
	}
	if !kind.Valid() {
		return fmt.Errorf("storage: unknown file kind %q", kind)
	}
	return nil
}

// StoreBytes is a convenience wrapper for small payloads such as metadata.
func StoreBytes(ctx context.Context, s Storage, b []byte, key models.DiagramKey, kind FileKind) error {
	return s.Store(ctx, bytesReader(b), key, kind)
}
