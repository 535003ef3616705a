package render

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/dmitrijs2005/schemadiagram/internal/filex"
	"github.com/dmitrijs2005/schemadiagram/internal/logging"
)

const (
	margin     = 40.0
	gap        = 60.0
	padding    = 10.0
	lineHeight = 18.0
	headHeight = 26.0
	titleSize  = 20.0
	textSize   = 12.0

	// limits on what one render may allocate
	maxTables = 400
	maxSide   = 12000
	maxPixels = 36_000_000
)

var ErrSchemaTooLarge = errors.New("schema too large to draw")

// faces holds the font faces of one render. truetype faces cache glyphs
// and must not be shared between goroutines.
type faces struct {
	regular font.Face
	bold    font.Face
	title   font.Face
}

// SQLiteRenderer draws the diagram itself: tables as boxes laid out on a
// grid, foreign keys as connectors.
type SQLiteRenderer struct {
	outDir string
	logger logging.Logger

	regular *truetype.Font
	bold    *truetype.Font
}

func NewSQLiteRenderer(outDir string, l logging.Logger) (*SQLiteRenderer, error) {
	dir, err := filex.EnsureDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("render dir: %w", err)
	}

	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}

	return &SQLiteRenderer{
		outDir:  dir,
		logger:  l.With("module", "render"),
		regular: regular,
		bold:    bold,
	}, nil
}

func (r *SQLiteRenderer) newFaces() *faces {
	return &faces{
		regular: truetype.NewFace(r.regular, &truetype.Options{Size: textSize}),
		bold:    truetype.NewFace(r.bold, &truetype.Options{Size: textSize}),
		title:   truetype.NewFace(r.bold, &truetype.Options{Size: titleSize}),
	}
}

func (r *SQLiteRenderer) Render(ctx context.Context, dbPath, title string) (string, error) {
	if err := CheckSQLite(dbPath); err != nil {
		return "", err
	}

	schema, err := ReadSchema(ctx, dbPath)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dc, err := draw(r.newFaces(), schema, title)
	if err != nil {
		return "", err
	}

	out, err := os.CreateTemp(r.outDir, "diagram-*.png")
	if err != nil {
		return "", fmt.Errorf("create image: %w", err)
	}
	defer out.Close()

	if err := dc.EncodePNG(out); err != nil {
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("encode image: %w", err)
	}

	r.logger.Debug(ctx, "diagram rendered", "tables", len(schema.Tables), "path", out.Name())
	return out.Name(), nil
}

type box struct {
	x, y, w, h float64
	lines      []string
}

func (b box) center() (float64, float64) { return b.x + b.w/2, b.y + b.h/2 }

// edgePoint is where the segment from b's center towards (tx, ty) leaves b.
func (b box) edgePoint(tx, ty float64) (float64, float64) {
	cx, cy := b.center()
	dx, dy := tx-cx, ty-cy
	if dx == 0 && dy == 0 {
		return cx, cy
	}
	sx, sy := math.Inf(1), math.Inf(1)
	if dx != 0 {
		sx = (b.w / 2) / math.Abs(dx)
	}
	if dy != 0 {
		sy = (b.h / 2) / math.Abs(dy)
	}
	s := math.Min(sx, sy)
	return cx + dx*s, cy + dy*s
}

func columnLine(c Column, fks map[string]bool) string {
	var marks []string
	if c.PrimaryKey {
		marks = append(marks, "PK")
	}
	if fks[c.Name] {
		marks = append(marks, "FK")
	}
	line := c.Name
	if c.Type != "" {
		line += "  " + strings.ToLower(c.Type)
	}
	if c.NotNull && !c.PrimaryKey {
		line += " not null"
	}
	if len(marks) > 0 {
		line = "[" + strings.Join(marks, ",") + "] " + line
	}
	return line
}

// layout sizes every table box and places them on a near-square grid.
func layout(f *faces, s *Schema, top float64) ([]box, float64, float64) {
	boxes := make([]box, len(s.Tables))
	measure := gg.NewContext(1, 1)

	for i, t := range s.Tables {
		fks := make(map[string]bool, len(t.ForeignKeys))
		for _, fk := range t.ForeignKeys {
			fks[fk.Column] = true
		}

		measure.SetFontFace(f.bold)
		w, _ := measure.MeasureString(t.Name)
		lines := make([]string, 0, len(t.Columns))
		measure.SetFontFace(f.regular)
		for _, c := range t.Columns {
			l := columnLine(c, fks)
			lw, _ := measure.MeasureString(l)
			w = math.Max(w, lw)
			lines = append(lines, l)
		}
		boxes[i] = box{
			w:     w + 2*padding,
			h:     headHeight + float64(len(lines))*lineHeight + padding,
			lines: lines,
		}
	}

	cols := int(math.Ceil(math.Sqrt(float64(len(boxes)))))
	if cols == 0 {
		return boxes, 2*margin + 240, top + margin + 40
	}
	rows := (len(boxes) + cols - 1) / cols

	colW := make([]float64, cols)
	rowH := make([]float64, rows)
	for i, b := range boxes {
		colW[i%cols] = math.Max(colW[i%cols], b.w)
		rowH[i/cols] = math.Max(rowH[i/cols], b.h)
	}

	y := top
	for row := 0; row < rows; row++ {
		x := margin
		for col := 0; col < cols; col++ {
			i := row*cols + col
			if i < len(boxes) {
				boxes[i].x, boxes[i].y = x, y
			}
			x += colW[col] + gap
		}
		y += rowH[row] + gap
	}

	width := margin
	for _, w := range colW {
		width += w + gap
	}
	return boxes, width - gap + margin, y - gap + margin
}

// checkCanvas rejects schemas whose image would be too large to allocate.
func checkCanvas(tables int, width, height float64) error {
	if tables > maxTables {
		return fmt.Errorf("%w: %d tables, at most %d", ErrSchemaTooLarge, tables, maxTables)
	}
	if width > maxSide || height > maxSide || width*height > maxPixels {
		return fmt.Errorf("%w: %.0fx%.0f px", ErrSchemaTooLarge, width, height)
	}
	return nil
}

func draw(f *faces, s *Schema, title string) (*gg.Context, error) {
	if err := checkCanvas(len(s.Tables), 0, 0); err != nil {
		return nil, err
	}

	top := margin
	if title != "" {
		top += titleSize + padding*2
	}

	boxes, width, height := layout(f, s, top)
	if title != "" {
		measure := gg.NewContext(1, 1)
		measure.SetFontFace(f.title)
		tw, _ := measure.MeasureString(title)
		width = math.Max(width, tw+2*margin)
	}
	width, height = math.Ceil(width), math.Ceil(height)
	if err := checkCanvas(len(s.Tables), width, height); err != nil {
		return nil, err
	}

	dc := gg.NewContext(int(width), int(height))
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	if title != "" {
		dc.SetFontFace(f.title)
		dc.SetRGB(0.1, 0.1, 0.1)
		dc.DrawString(title, margin, margin+titleSize)
	}

	if len(s.Tables) == 0 {
		dc.SetFontFace(f.regular)
		dc.SetRGB(0.4, 0.4, 0.4)
		dc.DrawString("No tables found", margin, top+lineHeight)
		return dc, nil
	}

	// connectors first so boxes paint over their ends
	dc.SetRGB(0.35, 0.45, 0.65)
	dc.SetLineWidth(1.5)
	for i, t := range s.Tables {
		for _, fk := range t.ForeignKeys {
			j := s.table(fk.RefTable)
			if j < 0 {
				continue
			}
			from, to := boxes[i], boxes[j]
			if i == j {
				// self reference: loop on the right edge
				dc.DrawArc(from.x+from.w, from.y+headHeight, 14, -math.Pi/2, math.Pi/2)
				dc.Stroke()
				continue
			}
			tx, ty := to.center()
			fx, fy := from.center()
			x1, y1 := from.edgePoint(tx, ty)
			x2, y2 := to.edgePoint(fx, fy)
			dc.DrawLine(x1, y1, x2, y2)
			dc.Stroke()
			dc.DrawCircle(x2, y2, 4)
			dc.Fill()
		}
	}

	for i, t := range s.Tables {
		b := boxes[i]

		dc.SetRGB(0.93, 0.95, 0.99)
		dc.DrawRectangle(b.x, b.y, b.w, b.h)
		dc.Fill()

		dc.SetRGB(0.22, 0.33, 0.55)
		dc.DrawRectangle(b.x, b.y, b.w, headHeight)
		dc.Fill()

		dc.SetLineWidth(1)
		dc.DrawRectangle(b.x, b.y, b.w, b.h)
		dc.Stroke()

		dc.SetFontFace(f.bold)
		dc.SetRGB(1, 1, 1)
		dc.DrawStringAnchored(t.Name, b.x+padding, b.y+headHeight/2, 0, 0.35)

		dc.SetFontFace(f.regular)
		dc.SetRGB(0.1, 0.1, 0.1)
		for n, line := range b.lines {
			dc.DrawString(line, b.x+padding, b.y+headHeight+float64(n+1)*lineHeight-4)
		}
	}

	return dc, nil
}
