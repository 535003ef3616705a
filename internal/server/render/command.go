package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/schemadiagram/internal/filex"
	"github.com/dmitrijs2005/schemadiagram/internal/logging"
)

// DefaultCommandArgs drive the SchemaCrawler CLI against a SQLite file.
var DefaultCommandArgs = []string{
	"--server=sqlite",
	"--database={input}",
	"--info-level=standard",
	"--command=schema",
	"--output-format=png",
	"--output-file={output}",
	"--title={title}",
}

// CommandRenderer delegates rendering to an external program. The
// placeholders {input}, {output} and {title} in Args are substituted per run.
type CommandRenderer struct {
	Binary string
	Args   []string

	outDir string
	logger logging.Logger
}

func NewCommandRenderer(binary string, args []string, outDir string, l logging.Logger) (*CommandRenderer, error) {
	if binary == "" {
		return nil, fmt.Errorf("render command is empty")
	}
	dir, err := filex.EnsureDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("render dir: %w", err)
	}
	if len(args) == 0 {
		args = DefaultCommandArgs
	}
	return &CommandRenderer{
		Binary: binary,
		Args:   args,
		outDir: dir,
		logger: l.With("module", "render", "renderer", "command"),
	}, nil
}

func (r *CommandRenderer) Render(ctx context.Context, dbPath, title string) (string, error) {
	if err := CheckSQLite(dbPath); err != nil {
		return "", err
	}

	out := filepath.Join(r.outDir, "diagram-"+uuid.NewString()+".png")
	repl := strings.NewReplacer("{input}", dbPath, "{output}", out, "{title}", title)

	args := make([]string, len(r.Args))
	for i, a := range r.Args {
		args[i] = repl.Replace(a)
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Stdout = &output
	cmd.Stderr = &output

	r.logger.Debug(ctx, "running renderer", "binary", r.Binary, "args", args)
	if err := cmd.Run(); err != nil {
		_ = filex.RemoveQuietly(out)
		msg := strings.TrimSpace(output.String())
		if msg == "" {
			return "", fmt.Errorf("%s: %w", r.Binary, err)
		}
		return "", fmt.Errorf("%s: %w: %s", r.Binary, err, msg)
	}

	ok, err := filex.Exists(out)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s produced no image at %s", r.Binary, out)
	}
	return out, nil
}

var _ Renderer = (*CommandRenderer)(nil)
var _ Renderer = (*SQLiteRenderer)(nil)
