package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/schemadiagram/internal/client/client"
	"github.com/dmitrijs2005/schemadiagram/internal/client/config"
	"github.com/dmitrijs2005/schemadiagram/internal/client/models"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

var ErrUsage = errors.New("usage: schemadiagram-client [flags] upload|status|wait|download|list [args]")

// API is the part of client.HTTPClient the CLI uses.
type API interface {
	Upload(ctx context.Context, u models.Upload) (*models.Request, error)
	Result(ctx context.Context, key string) (*models.Request, error)
	Download(ctx context.Context, key string, a models.Artifact, w io.Writer) (int64, error)
	Wait(ctx context.Context, key string, interval time.Duration, w io.Writer) (*models.Request, error)
	List(ctx context.Context, limit int) ([]models.Submission, error)
	Ping(ctx context.Context) error
}

type App struct {
	config *config.Config
	api    API
	reader *bufio.Reader
	out    io.Writer

	mu   sync.Mutex
	Mode Mode
}

func NewApp(c *config.Config) *App {
	return newApp(c, client.NewHTTPClient(c.ServerURL, nil), os.Stdin, os.Stdout)
}

func newApp(c *config.Config, api API, in io.Reader, out io.Writer) *App {
	return &App{config: c, api: api, reader: bufio.NewReader(in), out: out}
}

func (app *App) setMode(mode Mode) {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.Mode != mode {
		app.Mode = mode
		log.Printf("Switched to %s mode\n", mode)
	}
}

func (app *App) status() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.Mode == "" {
		return ""
	}
	return fmt.Sprintf("(%s)", app.Mode)
}

// Run executes the command from the command line, or starts the REPL when
// there is none and stdin is a terminal.
func (app *App) Run(ctx context.Context) error {
	if args := app.config.Args; len(args) > 0 {
		return app.exec(ctx, args[0], args[1:])
	}
	if !isTerminal(int(os.Stdin.Fd())) {
		return ErrUsage
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(app.out, "schemadiagram client (type 'help' for commands)")
	go app.StartOnlineStatusWatcher(ctx, app.config.PollInterval)

	runREPL(ctx, app, app.status, bufio.NewScanner(app.reader))
	return nil
}

// StartOnlineStatusWatcher pings the server every interval and updates Mode.
func (app *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := app.api.Ping(pctx)
			cancel()

			if err != nil {
				app.setMode(ModeOffline)
			} else {
				app.setMode(ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}
