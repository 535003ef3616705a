package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/schemadiagram/internal/filex"
	"github.com/dmitrijs2005/schemadiagram/internal/logging"
	"github.com/dmitrijs2005/schemadiagram/internal/server/models"
)

// LocalStorage keeps artifacts in a directory tree on local disk.
type LocalStorage struct {
	root   string
	logger logging.Logger
}

// NewLocalStorage creates root if needed.
func NewLocalStorage(root string, l logging.Logger) (*LocalStorage, error) {
	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, fmt.Errorf("storage root: %w", err)
	}
	return &LocalStorage{root: abs, logger: l.With("module", "storage", "backend", "local")}, nil
}

func (s *LocalStorage) Root() string { return s.root }

func (s *LocalStorage) Store(ctx context.Context, r io.Reader, key models.DiagramKey, kind FileKind) error {
	if err := checkArgs(key, kind); err != nil {
		return err
	}

	p := LocalPath(s.root, key, kind)
	n, err := filex.WriteAtomic(p, r)
	if err != nil {
		return fmt.Errorf("store %s/%s: %w", key, kind, err)
	}

	s.logger.Debug(ctx, "artifact stored", "key", key, "kind", kind, "bytes", n, "path", p)
	return nil
}

func (s *LocalStorage) RetrieveLocal(ctx context.Context, key models.DiagramKey, kind FileKind) (string, bool, error) {
	if err := checkArgs(key, kind); err != nil {
		return "", false, err
	}

	p := LocalPath(s.root, key, kind)
	ok, err := filex.Exists(p)
	if err != nil {
		return "", false, fmt.Errorf("stat %s/%s: %w", key, kind, err)
	}
	if !ok {
		return "", false, nil
	}
	return p, true, nil
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }
