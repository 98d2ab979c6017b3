// Package export renders tables into XLSX workbooks for debugging
// extractor output side by side with the ground truth.
package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/statement-agent/internal/normalize"
	"github.com/joseph-ayodele/statement-agent/internal/table"
)

const (
	maxCellRunes = 32000 // excelize rejects cells over 32767 characters
	maxColWidth  = 60
	minColWidth  = 8
)

// Sheet is one worksheet: a header row plus data rows.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// TableSheet renders t through n into a sheet named name.
func TableSheet(name string, t *table.Table, n *normalize.Normalizer) Sheet {
	s := Sheet{Name: name}
	if t == nil {
		return s
	}
	s.Header = t.Schema.Names()
	s.Rows = t.Rows(n)
	return s
}

// Writer builds workbooks with excelize.
type Writer struct {
	logger *slog.Logger
}

func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger}
}

// XLSX returns the workbook bytes. The first sheet is active.
func (w *Writer) XLSX(sheets ...Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx: no sheets")
	}
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close()
	const initial = "Sheet1"

	rows := 0
	for i, s := range sheets {
		if s.Name == "" {
			return nil, fmt.Errorf("xlsx: sheet %d has no name", i)
		}
		if index, _ := f.GetSheetIndex(s.Name); index == -1 {
			if _, err := f.NewSheet(s.Name); err != nil {
				return nil, fmt.Errorf("xlsx: new sheet %q: %w", s.Name, err)
			}
		}
		if err := writeSheet(f, s); err != nil {
			return nil, err
		}
		rows += len(s.Rows)
	}
	if sheets[0].Name != initial {
		if index, _ := f.GetSheetIndex(initial); index != -1 && !hasSheet(sheets, initial) {
			if err := f.DeleteSheet(initial); err != nil {
				return nil, fmt.Errorf("xlsx: drop default sheet: %w", err)
			}
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheets[0].Name)
	f.SetActiveSheet(activeIndex)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	w.logger.Debug("export.xlsx.ok",
		"sheets", len(sheets),
		"rows", rows,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// WriteFile writes the workbook to path, creating parent directories.
func (w *Writer) WriteFile(path string, sheets ...Sheet) error {
	b, err := w.XLSX(sheets...)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	return os.WriteFile(path, b, 0o644)
}

func writeSheet(f *excelize.File, s Sheet) error {
	widths := make([]int, len(s.Header))
	write := func(col, row int, v string) error {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		v = truncate(v, maxCellRunes)
		if col >= len(widths) {
			widths = append(widths, make([]int, col+1-len(widths))...)
		}
		widths[col] = max(widths[col], utf8.RuneCountInString(v))
		return f.SetCellValue(s.Name, cell, v)
	}

	for i, h := range s.Header {
		if err := write(i, 1, h); err != nil {
			return fmt.Errorf("xlsx: %s header: %w", s.Name, err)
		}
	}
	for r, row := range s.Rows {
		for c, v := range row {
			if err := write(c, r+2, v); err != nil {
				return fmt.Errorf("xlsx: %s row %d: %w", s.Name, r+1, err)
			}
		}
	}
	if len(s.Header) > 0 {
		if err := f.SetPanes(s.Name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return fmt.Errorf("xlsx: %s freeze header: %w", s.Name, err)
		}
	}

	for i, n := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(s.Name, col, col, float64(min(max(n+2, minColWidth), maxColWidth))); err != nil {
			return fmt.Errorf("xlsx: %s column %s width: %w", s.Name, col, err)
		}
	}
	return nil
}

func hasSheet(sheets []Sheet, name string) bool {
	for _, s := range sheets {
		if s.Name == name {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
