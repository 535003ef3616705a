package processing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/schemadiagram/internal/common"
	"github.com/dmitrijs2005/schemadiagram/internal/logging"
	"github.com/dmitrijs2005/schemadiagram/internal/server/models"
	"github.com/dmitrijs2005/schemadiagram/internal/server/render"
	"github.com/dmitrijs2005/schemadiagram/internal/server/storage"
	"github.com/dmitrijs2005/schemadiagram/internal/server/workers"
)

const testKey = models.DiagramKey("abcDEF123456")

type fakeRegistry struct {
	mu        sync.Mutex
	status    map[models.DiagramKey]models.SubmissionStatus
	errors    map[models.DiagramKey]string
	insertErr error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		status: map[models.DiagramKey]models.SubmissionStatus{},
		errors: map[models.DiagramKey]string{},
	}
}

func (f *fakeRegistry) Register(ctx context.Context, req *models.DiagramRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.status[req.Key] = models.StatusPending
	return nil
}

func (f *fakeRegistry) MarkCompleted(ctx context.Context, key models.DiagramKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[key] = models.StatusCompleted
	return nil
}

func (f *fakeRegistry) MarkFailed(ctx context.Context, key models.DiagramKey, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[key] = models.StatusFailed
	f.errors[key] = msg
	return nil
}

func (f *fakeRegistry) get(key models.DiagramKey) (models.SubmissionStatus, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status[key], f.errors[key]
}

// renderFunc adapts a function to render.Renderer.
type renderFunc func(ctx context.Context, dbPath, title string) (string, error)

func (f renderFunc) Render(ctx context.Context, dbPath, title string) (string, error) {
	return f(ctx, dbPath, title)
}

// pngRenderer writes a fixed payload as the "image".
func pngRenderer(t *testing.T) renderFunc {
	return func(ctx context.Context, dbPath, title string) (string, error) {
		out := filepath.Join(t.TempDir(), "out.png")
		return out, os.WriteFile(out, []byte("\x89PNG fake "+title), 0o600)
	}
}

// syncSubmitter runs tasks inline.
type syncSubmitter struct{ err error }

func (s syncSubmitter) Submit(t workers.Task) error {
	if s.err != nil {
		return s.err
	}
	return t.Run(context.Background())
}

type fixture struct {
	svc      *Service
	store    *storage.LocalStorage
	registry *fakeRegistry
}

func newFixture(t *testing.T, r render.Renderer, pool Submitter) *fixture {
	t.Helper()
	st, err := storage.NewLocalStorage(t.TempDir(), logging.Discard())
	require.NoError(t, err)
	reg := newFakeRegistry()
	return &fixture{
		svc:      NewService(st, r, reg, pool, time.Second, nil, logging.Discard()),
		store:    st,
		registry: reg,
	}
}

func upload(t *testing.T, content []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "upload.db")
	require.NoError(t, os.WriteFile(p, content, 0o600))
	return p
}

func newRequest() *models.DiagramRequest {
	return &models.DiagramRequest{Key: testKey, Title: "Shop", Name: "Sualeh", Email: "sualeh@hotmail.com"}
}

func TestGenerate_Success(t *testing.T) {
	fx := newFixture(t, pngRenderer(t), syncSubmitter{})
	ctx := context.Background()

	content := make([]byte, 9216)
	local := upload(t, content)
	require.NoError(t, fx.svc.Submit(ctx, newRequest(), local))

	dbPath, err := fx.svc.Artifact(ctx, testKey, storage.KindDatabase)
	require.NoError(t, err)
	got, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.Len(t, got, 9216)

	req, img, err := fx.svc.Retrieve(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, req.HasError())
	assert.Equal(t, "Shop", req.Title)
	assert.NotEmpty(t, img)

	status, _ := fx.registry.get(testKey)
	assert.Equal(t, models.StatusCompleted, status)

	_, err = os.Stat(local)
	assert.True(t, errors.Is(err, os.ErrNotExist), "upload must be removed")
}

func TestGenerate_NotADatabase(t *testing.T) {
	r, err := render.NewSQLiteRenderer(t.TempDir(), logging.Discard())
	require.NoError(t, err)
	fx := newFixture(t, r, syncSubmitter{})
	ctx := context.Background()

	require.NoError(t, fx.svc.Submit(ctx, newRequest(), upload(t, []byte{1, 2, 3, 4, 5})))

	req, img, err := fx.svc.Retrieve(ctx, testKey)
	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, testKey, pe.Key)
	assert.Regexp(t, ".*Expected a SQLite database file, but got a file of type.*", pe.Message)
	assert.Equal(t, pe.Message, req.Error)
	assert.Empty(t, img)

	_, err = fx.svc.Artifact(ctx, testKey, storage.KindImage)
	require.ErrorIs(t, err, common.ErrorNotFound)

	status, msg := fx.registry.get(testKey)
	assert.Equal(t, models.StatusFailed, status)
	assert.Equal(t, pe.Message, msg)
}

func TestGenerate_PanicIsRecorded(t *testing.T) {
	boom := renderFunc(func(ctx context.Context, dbPath, title string) (string, error) {
		panic("layout exploded")
	})
	fx := newFixture(t, boom, syncSubmitter{})
	ctx := context.Background()

	require.NoError(t, fx.svc.saveMetadata(ctx, newRequest()))
	local := upload(t, []byte("x"))

	require.Panics(t, func() { _ = fx.svc.Generate(ctx, newRequest(), local) })

	_, _, err := fx.svc.Retrieve(ctx, testKey)
	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "panic: layout exploded", pe.Message)

	_, err = os.Stat(local)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestGenerate_RenderTimeout(t *testing.T) {
	slow := renderFunc(func(ctx context.Context, dbPath, title string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	fx := newFixture(t, slow, syncSubmitter{})
	fx.svc.renderTimeout = 10 * time.Millisecond
	ctx := context.Background()

	err := fx.svc.Submit(ctx, newRequest(), upload(t, []byte("x")))
	require.NoError(t, err, "task failures stay on the async side")

	_, _, err = fx.svc.Retrieve(ctx, testKey)
	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Message, context.DeadlineExceeded.Error())
}

func TestSubmit_Saturated(t *testing.T) {
	fx := newFixture(t, pngRenderer(t), syncSubmitter{err: common.ErrSaturated})
	ctx := context.Background()

	local := upload(t, []byte("x"))
	err := fx.svc.Submit(ctx, newRequest(), local)
	require.ErrorIs(t, err, common.ErrSaturated)

	_, _, err = fx.svc.Retrieve(ctx, testKey)
	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, common.ErrSaturated.Error(), pe.Message)

	_, err = os.Stat(local)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	status, _ := fx.registry.get(testKey)
	assert.Equal(t, models.StatusFailed, status)
}

func TestSubmit_RegistryFailureIsNotFatal(t *testing.T) {
	fx := newFixture(t, pngRenderer(t), syncSubmitter{})
	fx.registry.insertErr = errors.New("db down")

	require.NoError(t, fx.svc.Submit(context.Background(), newRequest(), upload(t, []byte("x"))))
	_, img, err := fx.svc.Retrieve(context.Background(), testKey)
	require.NoError(t, err)
	assert.NotEmpty(t, img)
}

func TestRetrieve_States(t *testing.T) {
	fx := newFixture(t, pngRenderer(t), syncSubmitter{})
	ctx := context.Background()

	_, _, err := fx.svc.Retrieve(ctx, testKey)
	require.ErrorIs(t, err, common.ErrorNotFound)

	// metadata written, image not yet
	require.NoError(t, fx.svc.saveMetadata(ctx, newRequest()))
	req, img, err := fx.svc.Retrieve(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, testKey, req.Key)
	assert.Empty(t, img)

	// corrupt metadata
	require.NoError(t, storage.StoreBytes(ctx, fx.store, []byte("{"), testKey, storage.KindMetadata))
	_, _, err = fx.svc.Retrieve(ctx, testKey)
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
}

func TestSubmit_WithPool(t *testing.T) {
	pool := workers.New(workers.Options{CoreWorkers: 1, MaxWorkers: 1, QueueCapacity: 4}, logging.Discard())
	fx := newFixture(t, pngRenderer(t), pool)
	ctx := context.Background()

	require.NoError(t, fx.svc.Submit(ctx, newRequest(), upload(t, []byte("x"))))

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(sctx))

	_, img, err := fx.svc.Retrieve(ctx, testKey)
	require.NoError(t, err)
	assert.NotEmpty(t, img)
}

func TestSubmit_CallerRequestUntouched(t *testing.T) {
	failing := renderFunc(func(ctx context.Context, dbPath, title string) (string, error) {
		return "", errors.New("cannot draw")
	})
	fx := newFixture(t, failing, syncSubmitter{})
	ctx := context.Background()

	req := newRequest()
	require.NoError(t, fx.svc.Submit(ctx, req, upload(t, []byte("x"))))
	assert.Empty(t, req.Error, "the task records failures on its own copy")

	stored, _, err := fx.svc.Retrieve(ctx, testKey)
	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "cannot draw", stored.Error)
}

func TestSubmit_ShutdownRecordsQueuedTasks(t *testing.T) {
	started := make(chan struct{}, 1)
	blocking := renderFunc(func(ctx context.Context, dbPath, title string) (string, error) {
		started <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	})
	pool := workers.New(workers.Options{CoreWorkers: 1, MaxWorkers: 1, QueueCapacity: 4}, logging.Discard())
	fx := newFixture(t, blocking, pool)
	fx.svc.renderTimeout = time.Minute
	ctx := context.Background()

	running := &models.DiagramRequest{Key: "runningKey01", Name: "Ann", Email: "ann@example.com"}
	queued := &models.DiagramRequest{Key: "queuedKey001", Name: "Ann", Email: "ann@example.com"}
	require.NoError(t, fx.svc.Submit(ctx, running, upload(t, []byte("x"))))
	<-started
	local := upload(t, []byte("y"))
	require.NoError(t, fx.svc.Submit(ctx, queued, local))

	sctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, pool.Shutdown(sctx), context.DeadlineExceeded)

	_, _, err := fx.svc.Retrieve(ctx, queued.Key)
	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, common.ErrPoolClosed.Error(), pe.Message)
	status, _ := fx.registry.get(queued.Key)
	assert.Equal(t, models.StatusFailed, status)
	_, err = os.Stat(local)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, _, err = fx.svc.Retrieve(ctx, running.Key)
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Message, context.Canceled.Error())
}
