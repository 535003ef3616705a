package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/schemadiagram/internal/client/client"
	"github.com/dmitrijs2005/schemadiagram/internal/client/config"
	"github.com/dmitrijs2005/schemadiagram/internal/client/models"
)

const key = "abcDEF123456"

type fakeAPI struct {
	uploaded  models.Upload
	uploadErr error
	resultErr error
	waitErr   error
	down      atomic.Bool
	pings     atomic.Int32
	subs      []models.Submission
	limit     int
}

func (f *fakeAPI) Upload(ctx context.Context, u models.Upload) (*models.Request, error) {
	f.uploaded = u
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &models.Request{Key: key, Name: u.Name, Email: u.Email}, nil
}

func (f *fakeAPI) Result(ctx context.Context, k string) (*models.Request, error) {
	if f.resultErr != nil {
		return nil, f.resultErr
	}
	return &models.Request{Key: k, Title: "Shop", Name: "Ada", Email: "ada@example.com"}, nil
}

func (f *fakeAPI) Download(ctx context.Context, k string, a models.Artifact, w io.Writer) (int64, error) {
	n, err := io.WriteString(w, string(a)+":"+k)
	return int64(n), err
}

func (f *fakeAPI) Wait(ctx context.Context, k string, interval time.Duration, w io.Writer) (*models.Request, error) {
	if f.waitErr != nil {
		_, _ = io.WriteString(w, "partial")
		return nil, f.waitErr
	}
	_, err := io.WriteString(w, "PNG")
	return &models.Request{Key: k}, err
}

func (f *fakeAPI) List(ctx context.Context, limit int) ([]models.Submission, error) {
	f.limit = limit
	return f.subs, nil
}

func (f *fakeAPI) Ping(ctx context.Context) error {
	f.pings.Add(1)
	if f.down.Load() {
		return errors.New("down")
	}
	return nil
}

func testApp(t *testing.T, api API, input string, args ...string) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.OutputDir = t.TempDir()
	cfg.PollInterval = time.Millisecond
	cfg.Args = args

	var out bytes.Buffer
	return newApp(cfg, api, strings.NewReader(input), &out), &out
}

func TestRun_UploadPromptsAndSavesDiagram(t *testing.T) {
	api := &fakeAPI{}
	app, out := testApp(t, api, "Ada\nada@example.com\n", "upload", "/tmp/shop.db")

	require.NoError(t, app.Run(context.Background()))

	assert.Equal(t, models.Upload{Path: "/tmp/shop.db", Name: "Ada", Email: "ada@example.com"}, api.uploaded)
	assert.Contains(t, out.String(), "Submitted shop.db as "+key)

	b, err := os.ReadFile(filepath.Join(app.config.OutputDir, key+".png"))
	require.NoError(t, err)
	assert.Equal(t, "PNG", string(b))
}

func TestRun_UploadUsesConfiguredIdentity(t *testing.T) {
	api := &fakeAPI{uploadErr: client.ErrBusy}
	app, _ := testApp(t, api, "", "upload", "shop.db")
	app.config.Name, app.config.Email, app.config.Title = "Bob", "bob@example.com", "Shop"

	err := app.Run(context.Background())
	assert.ErrorIs(t, err, client.ErrBusy)
	assert.Equal(t, "Shop", api.uploaded.Title)
}

func TestWait_FailureLeavesNoFile(t *testing.T) {
	api := &fakeAPI{waitErr: &client.FailedError{Key: key, Message: "not a database"}}
	app, _ := testApp(t, api, "", "wait", key)

	err := app.Run(context.Background())
	var failed *client.FailedError
	require.ErrorAs(t, err, &failed)

	entries, err := os.ReadDir(app.config.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStatus(t *testing.T) {
	app, out := testApp(t, &fakeAPI{}, "", "status", key)
	require.NoError(t, app.Run(context.Background()))
	assert.Equal(t, key+`: title="Shop" name="Ada" email="ada@example.com"`+"\n", out.String())

	app, out = testApp(t, &fakeAPI{resultErr: &client.FailedError{Key: key, Message: "boom"}}, "", "status", key)
	require.NoError(t, app.Run(context.Background()))
	assert.Equal(t, key+": failed: boom\n", out.String())

	app, out = testApp(t, &fakeAPI{resultErr: client.ErrPending}, "", "status", key)
	require.NoError(t, app.Run(context.Background()))
	assert.Equal(t, key+": pending\n", out.String())

	app, _ = testApp(t, &fakeAPI{resultErr: client.ErrNotFound}, "", "status", key)
	assert.ErrorIs(t, app.Run(context.Background()), client.ErrNotFound)
}

func TestDownload(t *testing.T) {
	app, _ := testApp(t, &fakeAPI{}, "", "download", key, "database")
	require.NoError(t, app.Run(context.Background()))

	b, err := os.ReadFile(filepath.Join(app.config.OutputDir, key+".db"))
	require.NoError(t, err)
	assert.Equal(t, "database:"+key, string(b))

	app, _ = testApp(t, &fakeAPI{}, "", "download", key, "thumbnail")
	assert.Error(t, app.Run(context.Background()))
}

func TestList(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{subs: []models.Submission{
		{Key: key, Status: "failed", Title: "Shop", Error: "not a database", CreatedAt: at},
	}}
	app, out := testApp(t, api, "", "list", "7")

	require.NoError(t, app.Run(context.Background()))
	assert.Equal(t, 7, api.limit)
	assert.Contains(t, out.String(), "KEY")
	assert.Contains(t, out.String(), "2024-05-01 12:00:00")
	assert.Contains(t, out.String(), "not a database")

	app, _ = testApp(t, api, "", "list", "many")
	assert.Error(t, app.Run(context.Background()))
}

func TestRun_UsageErrors(t *testing.T) {
	app, _ := testApp(t, &fakeAPI{}, "", "frobnicate")
	assert.ErrorIs(t, app.Run(context.Background()), ErrUsage)

	app, _ = testApp(t, &fakeAPI{}, "", "wait")
	assert.EqualError(t, app.Run(context.Background()), "usage: wait <key>")

	old := isTerminal
	isTerminal = func(int) bool { return false }
	defer func() { isTerminal = old }()

	app, _ = testApp(t, &fakeAPI{}, "")
	assert.ErrorIs(t, app.Run(context.Background()), ErrUsage)
}

func TestRun_REPLWhenInteractive(t *testing.T) {
	old := isTerminal
	isTerminal = func(int) bool { return true }
	defer func() { isTerminal = old }()

	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	defer func() { printlnFn = origPrint }()

	api := &fakeAPI{}
	app, out := testApp(t, api, "status "+key+"\nexit\n")
	require.NoError(t, app.Run(context.Background()))
	assert.Contains(t, out.String(), "schemadiagram client")
	assert.Contains(t, out.String(), `title="Shop"`)
}

func TestStartOnlineStatusWatcher(t *testing.T) {
	api := &fakeAPI{}
	app, _ := testApp(t, api, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.StartOnlineStatusWatcher(ctx, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return app.status() == "(online)" }, time.Second, time.Millisecond)

	api.down.Store(true)
	require.Eventually(t, func() bool { return app.status() == "(offline)" }, time.Second, time.Millisecond)

	cancel()
	<-done
}
