package document

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tsawler/tabula"
	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/tables"
)

// PDFReader is the in-process PDF backend. Tables returns cell grids keyed
// by 1-indexed page number; Text is layout text with pages separated by
// form feeds, used when pdftotext is unavailable.
type PDFReader interface {
	Tables(path string) (map[int][][][]string, error)
	Text(path string) (string, error)
}

type tabulaReader struct {
	logger *slog.Logger
}

func (r tabulaReader) pageCount(path string) (int, error) {
	ext := tabula.Open(path)
	defer ext.Close()
	return ext.PageCount()
}

func (r tabulaReader) Tables(path string) (map[int][][][]string, error) {
	n, err := r.pageCount(path)
	if err != nil {
		return nil, fmt.Errorf("tabula %s: %w", path, err)
	}

	detector := tables.NewGeometricDetector()
	out := make(map[int][][][]string)
	for p := 1; p <= n; p++ {
		frags, warnings, err := tabula.Open(path).Pages(p).Fragments()
		if err != nil {
			return nil, fmt.Errorf("tabula %s page %d: %w", path, p, err)
		}
		if len(warnings) > 0 {
			r.logger.Debug("document.tabula.warnings", "path", path, "page", p, "count", len(warnings))
		}

		page := model.NewPage(0, 0)
		page.Number = p
		for _, f := range frags {
			page.RawText = append(page.RawText, model.TextFragment{
				Text:     f.Text,
				BBox:     model.BBox{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height},
				FontSize: f.FontSize,
				FontName: f.FontName,
			})
		}
		found, err := detector.Detect(page)
		if err != nil {
			return nil, fmt.Errorf("tabula %s page %d: %w", path, p, err)
		}
		for _, t := range found {
			if grid := cellGrid(t); len(grid) > 0 {
				out[p] = append(out[p], grid)
			}
		}
	}
	return out, nil
}

func (r tabulaReader) Text(path string) (string, error) {
	n, err := r.pageCount(path)
	if err != nil {
		return "", fmt.Errorf("tabula %s: %w", path, err)
	}
	pages := make([]string, 0, n)
	for p := 1; p <= n; p++ {
		text, _, err := tabula.Open(path).Pages(p).PreserveLayout().Text()
		if err != nil {
			return "", fmt.Errorf("tabula %s page %d: %w", path, p, err)
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\f"), nil
}

// cellGrid flattens a detected table to trimmed cell text, dropping rows
// with no text.
func cellGrid(t *model.Table) [][]string {
	var grid [][]string
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		empty := true
		for i, c := range row {
			cells[i] = strings.TrimSpace(c.Text)
			if cells[i] != "" {
				empty = false
			}
		}
		if !empty {
			grid = append(grid, cells)
		}
	}
	return grid
}

// overlayTables swaps the layout-detected table blocks of each page for the
// grids the PDF reader found there. Pages the reader found nothing on keep
// their layout tables.
func overlayTables(doc *Document, found map[int][][][]string) int {
	swapped := 0
	for i := range doc.Pages {
		grids := found[doc.Pages[i].Number]
		if len(grids) == 0 {
			continue
		}
		swapped++
		replacement := make([]Block, len(grids))
		for j, g := range grids {
			replacement[j] = Block{Kind: BlockTable, Rows: g, Lines: gridLines(g)}
		}

		var blocks []Block
		inserted := false
		for _, b := range doc.Pages[i].Blocks {
			if b.Kind != BlockTable {
				blocks = append(blocks, b)
				continue
			}
			if !inserted {
				blocks = append(blocks, replacement...)
				inserted = true
			}
		}
		if !inserted {
			blocks = append(blocks, replacement...)
		}
		doc.Pages[i].Blocks = blocks
	}
	return swapped
}

func gridLines(grid [][]string) []string {
	lines := make([]string, 0, len(grid))
	for _, row := range grid {
		var cells []string
		for _, c := range row {
			if c != "" {
				cells = append(cells, c)
			}
		}
		lines = append(lines, strings.Join(cells, "   "))
	}
	return lines
}
