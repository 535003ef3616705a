package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/dmitrijs2005/schemadiagram/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	reads   atomic.Int32
	delay   time.Duration
}

// fakeWriter commits on Close unless its context was canceled, like
// *gcs.Writer.
type fakeWriter struct {
	bytes.Buffer
	ctx  context.Context
	b    *fakeBucket
	name string
}

func (w *fakeWriter) Close() error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	w.b.objects[w.name] = w.Bytes()
	return nil
}

func (b *fakeBucket) NewWriter(ctx context.Context, name, _ string) io.WriteCloser {
	return &fakeWriter{ctx: ctx, b: b, name: name}
}

func (b *fakeBucket) NewReader(_ context.Context, name string) (io.ReadCloser, error) {
	b.reads.Add(1)
	time.Sleep(b.delay)
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[name]
	if !ok {
		return nil, gcs.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func newTestGCS(t *testing.T, b *fakeBucket) *GCSStorage {
	t.Helper()
	s, err := newGCSStorage(b, GCSOptions{Bucket: "diagrams", CacheDir: filepath.Join(t.TempDir(), "cache")}, logging.Discard())
	require.NoError(t, err)
	return s
}

func TestGCSStorage_RoundTrip(t *testing.T) {
	b := &fakeBucket{objects: map[string][]byte{}}
	s := newTestGCS(t, b)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, strings.NewReader("sqlite"), testKey, KindDatabase))
	assert.Contains(t, b.objects, "abcDEF123456/abcDEF123456.db")

	p, ok, err := s.RetrieveLocal(ctx, testKey, KindDatabase)
	require.NoError(t, err)
	require.True(t, ok)
	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", string(got))

	_, ok, err = s.RetrieveLocal(ctx, testKey, KindImage)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGCSStorage_StoreErrorCommitsNothing(t *testing.T) {
	b := &fakeBucket{objects: map[string][]byte{}}
	s := newTestGCS(t, b)

	r := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(errors.New("disk gone")))
	err := s.Store(context.Background(), r, testKey, KindDatabase)
	require.ErrorContains(t, err, "disk gone")

	b.mu.Lock()
	assert.Empty(t, b.objects)
	b.mu.Unlock()

	_, ok, err := s.RetrieveLocal(context.Background(), testKey, KindDatabase)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGCSStorage_ConcurrentRetrieveSharesDownload(t *testing.T) {
	b := &fakeBucket{objects: map[string][]byte{"abcDEF123456/abcDEF123456.png": []byte("png")}, delay: 50 * time.Millisecond}
	s := newTestGCS(t, b)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.RetrieveLocal(ctx, testKey, KindImage)
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	assert.Less(t, int(b.reads.Load()), 8, "concurrent reads of one object should be collapsed")
	require.NoError(t, s.Close())
}
