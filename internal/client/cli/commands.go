package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/dmitrijs2005/schemadiagram/internal/client/client"
	"github.com/dmitrijs2005/schemadiagram/internal/client/models"
	"github.com/dmitrijs2005/schemadiagram/internal/filex"
)

func (app *App) exec(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "upload":
		return app.Upload(ctx, args)
	case "status":
		return app.Status(ctx, args)
	case "wait":
		return app.Wait(ctx, args)
	case "download":
		return app.Download(ctx, args)
	case "list", "l":
		return app.List(ctx, args)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, ErrUsage)
	}
}

func needArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

// ask fills *dst from the prompt when it is empty.
func (app *App) ask(dst *string, prompt string) error {
	if *dst != "" {
		return nil
	}
	v, err := GetSimpleText(app.reader, prompt, app.out)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// Upload submits a database, then waits for the diagram.
func (app *App) Upload(ctx context.Context, args []string) error {
	if err := needArgs(args, 1, "upload <file.db>"); err != nil {
		return err
	}

	u := models.Upload{Path: args[0], Name: app.config.Name, Email: app.config.Email, Title: app.config.Title}
	if err := app.ask(&u.Name, "Your name"); err != nil {
		return err
	}
	if err := app.ask(&u.Email, "Your email"); err != nil {
		return err
	}

	req, err := app.api.Upload(ctx, u)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	fmt.Fprintf(app.out, "Submitted %s as %s\n", filepath.Base(u.Path), req.Key)

	return app.Wait(ctx, []string{req.Key})
}

func (app *App) Status(ctx context.Context, args []string) error {
	if err := needArgs(args, 1, "status <key>"); err != nil {
		return err
	}

	req, err := app.api.Result(ctx, args[0])
	var failed *client.FailedError
	switch {
	case errors.Is(err, client.ErrPending):
		fmt.Fprintf(app.out, "%s: pending\n", args[0])
		return nil
	case errors.As(err, &failed):
		fmt.Fprintf(app.out, "%s: failed: %s\n", failed.Key, failed.Message)
		return nil
	case err != nil:
		return err
	}

	fmt.Fprintf(app.out, "%s: title=%q name=%q email=%q\n", req.Key, req.Title, req.Name, req.Email)
	return nil
}

// Wait polls until the diagram is ready and saves it to the output dir.
func (app *App) Wait(ctx context.Context, args []string) error {
	if err := needArgs(args, 1, "wait <key>"); err != nil {
		return err
	}
	key := args[0]

	if app.config.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, app.config.WaitTimeout)
		defer cancel()
	}

	path, err := app.save(key, models.ArtifactDiagram, func(f *os.File) error {
		_, err := app.api.Wait(ctx, key, app.config.PollInterval, f)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "Diagram saved to %s\n", path)
	return nil
}

func (app *App) Download(ctx context.Context, args []string) error {
	if err := needArgs(args, 1, "download <key> [diagram|database]"); err != nil {
		return err
	}
	key, artifact := args[0], models.ArtifactDiagram
	if len(args) > 1 {
		artifact = models.Artifact(args[1])
		if artifact != models.ArtifactDiagram && artifact != models.ArtifactDatabase {
			return fmt.Errorf("unknown artifact %q", args[1])
		}
	}

	path, err := app.save(key, artifact, func(f *os.File) error {
		_, err := app.api.Download(ctx, key, artifact, f)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "Saved %s\n", path)
	return nil
}

// save writes via a temp file in the output dir, so a failed download
// leaves nothing behind.
func (app *App) save(key string, a models.Artifact, write func(f *os.File) error) (string, error) {
	dir, err := filex.EnsureDir(app.config.OutputDir)
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp(dir, key+"-*.part")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	defer filex.RemoveQuietly(tmp)

	if err := write(f); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	path := filepath.Join(dir, key+"."+a.Extension())
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}

func (app *App) List(ctx context.Context, args []string) error {
	limit := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("usage: list [n]")
		}
		limit = n
	}

	subs, err := app.api.List(ctx, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSTATUS\tTITLE\tSUBMITTED\tERROR")
	for _, s := range subs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Key, s.Status, s.Title, s.CreatedAt.Format("2006-01-02 15:04:05"), s.Error)
	}
	return tw.Flush()
}
