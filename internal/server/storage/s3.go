package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dmitrijs2005/schemadiagram/internal/logging"
	"github.com/dmitrijs2005/schemadiagram/internal/server/models"
)

// S3Options configures an S3-compatible backend (AWS S3, MinIO).
type S3Options struct {
	Bucket       string
	Prefix       string
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	CacheDir     string
}

// s3API is the slice of *s3.Client the backend uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Storage stores artifacts as objects "<prefix>/<key>/<key>.<ext>".
type S3Storage struct {
	client s3API
	bucket string
	prefix string
	cache  *localCache
	logger logging.Logger
}

func NewS3Storage(ctx context.Context, o S3Options, l logging.Logger) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(o.Region)}
	if o.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, "")))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(so *s3.Options) {
		if o.BaseEndpoint != "" {
			so.BaseEndpoint = aws.String(o.BaseEndpoint)
			// MinIO and most self-hosted endpoints need path-style addressing.
			so.UsePathStyle = true
		}
	})

	return newS3Storage(client, o, l)
}

func newS3Storage(client s3API, o S3Options, l logging.Logger) (*S3Storage, error) {
	if o.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	cache, err := newLocalCache(o.CacheDir)
	if err != nil {
		return nil, err
	}
	return &S3Storage{
		client: client,
		bucket: o.Bucket,
		prefix: o.Prefix,
		cache:  cache,
		logger: l.With("module", "storage", "backend", "s3", "bucket", o.Bucket),
	}, nil
}

func (s *S3Storage) objectKey(key models.DiagramKey, kind FileKind) string {
	return path.Join(s.prefix, ObjectName(key, kind))
}

func (s *S3Storage) Store(ctx context.Context, r io.Reader, key models.DiagramKey, kind FileKind) error {
	if err := checkArgs(key, kind); err != nil {
		return err
	}

	body, cleanup, err := seekable(r)
	if err != nil {
		return fmt.Errorf("store %s/%s: %w", key, kind, err)
	}
	defer cleanup()

	name := s.objectKey(key, kind)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		Body:        body,
		ContentType: aws.String(kind.ContentType()),
	})
	if err != nil {
		return fmt.Errorf("store %s/%s: put object: %w", key, kind, err)
	}

	s.logger.Debug(ctx, "artifact stored", "key", key, "kind", kind, "object", name)
	return nil
}

func (s *S3Storage) RetrieveLocal(ctx context.Context, key models.DiagramKey, kind FileKind) (string, bool, error) {
	if err := checkArgs(key, kind); err != nil {
		return "", false, err
	}
	return s.cache.fetch(ctx, key, kind, s.objectKey(key, kind), s.open)
}

func (s *S3Storage) open(ctx context.Context, name string) (io.ReadCloser, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if isS3NotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out.Body, true, nil
}

func isS3NotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// seekable returns r as an io.ReadSeeker. The SDK needs one to compute
// payload checksums over plain HTTP, so other readers are spooled to a temp
// file first.
func seekable(r io.Reader) (io.ReadSeeker, func(), error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, func() {}, nil
	}

	tmp, err := os.CreateTemp("", "schemadiagram-s3-*")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	if _, err := io.Copy(tmp, r); err != nil {
		cleanup()
		return nil, nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, nil, err
	}
	return tmp, cleanup, nil
}
