package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/dmitrijs2005/schemadiagram/internal/logging"
	"github.com/dmitrijs2005/schemadiagram/internal/server/models"
)

// GCSOptions configures a Google Cloud Storage backend.
type GCSOptions struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
	CacheDir        string
}

// gcsBucket is the slice of *gcs.BucketHandle the backend uses.
type gcsBucket interface {
	NewWriter(ctx context.Context, name, contentType string) io.WriteCloser
	NewReader(ctx context.Context, name string) (io.ReadCloser, error)
}

type gcsBucketHandle struct {
	h *gcs.BucketHandle
}

func (b gcsBucketHandle) NewWriter(ctx context.Context, name, contentType string) io.WriteCloser {
	w := b.h.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (b gcsBucketHandle) NewReader(ctx context.Context, name string) (io.ReadCloser, error) {
	return b.h.Object(name).NewReader(ctx)
}

// GCSStorage stores artifacts as objects "<prefix>/<key>/<key>.<ext>".
type GCSStorage struct {
	client *gcs.Client
	bucket gcsBucket
	prefix string
	cache  *localCache
	logger logging.Logger
}

func NewGCSStorage(ctx context.Context, o GCSOptions, l logging.Logger) (*GCSStorage, error) {
	var opts []option.ClientOption
	if o.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(o.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}

	s, err := newGCSStorage(gcsBucketHandle{h: client.Bucket(o.Bucket)}, o, l)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.client = client
	return s, nil
}

func newGCSStorage(bucket gcsBucket, o GCSOptions, l logging.Logger) (*GCSStorage, error) {
	if o.Bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	cache, err := newLocalCache(o.CacheDir)
	if err != nil {
		return nil, err
	}
	return &GCSStorage{
		bucket: bucket,
		prefix: o.Prefix,
		cache:  cache,
		logger: l.With("module", "storage", "backend", "gcs", "bucket", o.Bucket),
	}, nil
}

func (s *GCSStorage) objectName(key models.DiagramKey, kind FileKind) string {
	return path.Join(s.prefix, ObjectName(key, kind))
}

func (s *GCSStorage) Store(ctx context.Context, r io.Reader, key models.DiagramKey, kind FileKind) error {
	if err := checkArgs(key, kind); err != nil {
		return err
	}

	name := s.objectName(key, kind)
	// canceling wctx aborts the upload; Close alone would commit a partial object
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.bucket.NewWriter(wctx, name, kind.ContentType())
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("store %s/%s: write object: %w", key, kind, err)
	}
	// the object is committed only once Close succeeds
	if err := w.Close(); err != nil {
		return fmt.Errorf("store %s/%s: close object: %w", key, kind, err)
	}

	s.logger.Debug(ctx, "artifact stored", "key", key, "kind", kind, "object", name)
	return nil
}

func (s *GCSStorage) RetrieveLocal(ctx context.Context, key models.DiagramKey, kind FileKind) (string, bool, error) {
	if err := checkArgs(key, kind); err != nil {
		return "", false, err
	}
	return s.cache.fetch(ctx, key, kind, s.objectName(key, kind), s.open)
}

func (s *GCSStorage) open(ctx context.Context, name string) (io.ReadCloser, bool, error) {
	rc, err := s.bucket.NewReader(ctx, name)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rc, true, nil
}

// Close releases the underlying client.
func (s *GCSStorage) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
