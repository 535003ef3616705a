package render

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/schemadiagram/internal/common"
	"github.com/dmitrijs2005/schemadiagram/internal/logging"
)

func makeDB(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
	return path
}

var shopSchema = []string{
	`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT)`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		parent_id INTEGER REFERENCES orders(id),
		total REAL
	)`,
}

func writeJunk(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "junk.db")
	require.NoError(t, os.WriteFile(path, []byte{0x01, 0x02, 0x03, 0x04, 0x05}, 0o600))
	return path
}

func TestReadSchema(t *testing.T) {
	path := makeDB(t, shopSchema...)

	s, err := ReadSchema(context.Background(), path)
	require.NoError(t, err)

	want := &Schema{Tables: []Table{
		{
			Name: "customers",
			Columns: []Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "name", Type: "TEXT", NotNull: true},
				{Name: "email", Type: "TEXT"},
			},
		},
		{
			Name: "orders",
			Columns: []Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "customer_id", Type: "INTEGER", NotNull: true},
				{Name: "parent_id", Type: "INTEGER"},
				{Name: "total", Type: "REAL"},
			},
			ForeignKeys: []ForeignKey{
				{Column: "parent_id", RefTable: "orders", RefColumn: "id"},
				{Column: "customer_id", RefTable: "customers", RefColumn: "id"},
			},
		},
	}}

	byColumn := cmpopts.SortSlices(func(a, b ForeignKey) bool { return a.Column < b.Column })
	if diff := cmp.Diff(want, s, byColumn); diff != "" {
		t.Fatalf("schema mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckSQLite(t *testing.T) {
	require.NoError(t, CheckSQLite(makeDB(t, shopSchema...)))

	err := CheckSQLite(writeJunk(t))
	require.Error(t, err)
	assert.Regexp(t, ".*Expected a SQLite database file, but got a file of type.*", err.Error())
	assert.True(t, errors.Is(err, common.ErrNotADatabase))

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.NotEmpty(t, fe.Detected)

	err = CheckSQLite(filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, common.ErrNotADatabase))
}

func TestSQLiteRenderer_Render(t *testing.T) {
	r, err := NewSQLiteRenderer(t.TempDir(), logging.Discard())
	require.NoError(t, err)

	tests := []struct {
		name  string
		stmts []string
		title string
	}{
		{name: "linked tables", stmts: shopSchema, title: "Shop"},
		{name: "no title", stmts: shopSchema},
		{name: "no tables", stmts: []string{`CREATE TABLE t (x)`, `DROP TABLE t`}, title: "Empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Render(context.Background(), makeDB(t, tt.stmts...), tt.title)
			require.NoError(t, err)

			f, err := os.Open(out)
			require.NoError(t, err)
			defer f.Close()

			img, err := png.Decode(f)
			require.NoError(t, err)
			assert.Greater(t, img.Bounds().Dx(), 0)
			assert.Greater(t, img.Bounds().Dy(), 0)
		})
	}
}

func TestSQLiteRenderer_RejectsNonDatabase(t *testing.T) {
	r, err := NewSQLiteRenderer(t.TempDir(), logging.Discard())
	require.NoError(t, err)

	_, err = r.Render(context.Background(), writeJunk(t), "")
	require.Error(t, err)
	assert.Regexp(t, ".*Expected a SQLite database file, but got a file of type.*", err.Error())
}

func TestSQLiteRenderer_CanceledContext(t *testing.T) {
	r, err := NewSQLiteRenderer(t.TempDir(), logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Render(ctx, makeDB(t, shopSchema...), "")
	require.Error(t, err)
}

func TestSQLiteRenderer_ConcurrentRenders(t *testing.T) {
	r, err := NewSQLiteRenderer(t.TempDir(), logging.Discard())
	require.NoError(t, err)
	db := makeDB(t, shopSchema...)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Render(context.Background(), db, "Shop diagram title")
			if err == nil {
				_ = os.Remove(out)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestSQLiteRenderer_SchemaTooLarge(t *testing.T) {
	r, err := NewSQLiteRenderer(t.TempDir(), logging.Discard())
	require.NoError(t, err)

	tables := make([]Table, maxTables+1)
	for i := range tables {
		tables[i] = Table{Name: fmt.Sprintf("t%d", i), Columns: []Column{{Name: "id", Type: "INTEGER"}}}
	}

	_, err = draw(r.newFaces(), &Schema{Tables: tables}, "")
	require.ErrorIs(t, err, ErrSchemaTooLarge)
	assert.Contains(t, err.Error(), "401 tables")
}

func TestCheckCanvas(t *testing.T) {
	tests := []struct {
		name          string
		tables        int
		width, height float64
		wantErr       bool
	}{
		{"small", 10, 800, 600, false},
		{"at table limit", maxTables, 800, 600, false},
		{"too many tables", maxTables + 1, 800, 600, true},
		{"too wide", 1, maxSide + 1, 100, true},
		{"too tall", 1, 100, maxSide + 1, true},
		{"too many pixels", 1, 11000, 11000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkCanvas(tt.tables, tt.width, tt.height)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSchemaTooLarge)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBox_EdgePoint(t *testing.T) {
	b := box{x: 0, y: 0, w: 100, h: 50}

	x, y := b.edgePoint(500, 25)
	assert.InDelta(t, 100, x, 1e-9)
	assert.InDelta(t, 25, y, 1e-9)

	x, y = b.edgePoint(50, -500)
	assert.InDelta(t, 50, x, 1e-9)
	assert.InDelta(t, 0, y, 1e-9)

	x, y = b.edgePoint(50, 25)
	assert.Equal(t, 50.0, x)
	assert.Equal(t, 25.0, y)
}

func TestColumnLine(t *testing.T) {
	fks := map[string]bool{"customer_id": true}
	assert.Equal(t, "[PK] id  integer", columnLine(Column{Name: "id", Type: "INTEGER", PrimaryKey: true}, fks))
	assert.Equal(t, "[FK] customer_id  integer not null",
		columnLine(Column{Name: "customer_id", Type: "INTEGER", NotNull: true}, fks))
	assert.Equal(t, "note", columnLine(Column{Name: "note"}, fks))
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandRenderer_Render(t *testing.T) {
	requireShell(t)

	r, err := NewCommandRenderer("sh", []string{"-c", `cp "$0" "$1"`, "{input}", "{output}"},
		t.TempDir(), logging.Discard())
	require.NoError(t, err)

	in := makeDB(t, shopSchema...)
	out, err := r.Render(context.Background(), in, "ignored")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(out) })

	want, err := os.ReadFile(in)
	require.NoError(t, err)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCommandRenderer_Failures(t *testing.T) {
	requireShell(t)
	in := makeDB(t, shopSchema...)

	t.Run("exit status with output", func(t *testing.T) {
		r, err := NewCommandRenderer("sh", []string{"-c", "echo boom >&2; exit 3"}, t.TempDir(), logging.Discard())
		require.NoError(t, err)

		_, err = r.Render(context.Background(), in, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("no image produced", func(t *testing.T) {
		r, err := NewCommandRenderer("sh", []string{"-c", "true"}, t.TempDir(), logging.Discard())
		require.NoError(t, err)

		_, err = r.Render(context.Background(), in, "")
		require.ErrorContains(t, err, "produced no image")
	})

	t.Run("not a database", func(t *testing.T) {
		r, err := NewCommandRenderer("sh", []string{"-c", "true"}, t.TempDir(), logging.Discard())
		require.NoError(t, err)

		_, err = r.Render(context.Background(), writeJunk(t), "")
		require.ErrorIs(t, err, common.ErrNotADatabase)
	})
}

func TestNewCommandRenderer_Defaults(t *testing.T) {
	_, err := NewCommandRenderer("", nil, t.TempDir(), logging.Discard())
	require.Error(t, err)

	r, err := NewCommandRenderer("schemacrawler.sh", nil, t.TempDir(), logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, DefaultCommandArgs, r.Args)
}
