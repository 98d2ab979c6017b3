package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/statement-agent/internal/normalize"
)

// ReadCSV loads a header-first CSV, normalizing every cell by its column's
// role. A cell that does not normalize fails the whole load.
func ReadCSV(r io.Reader, n *normalize.Normalizer) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	t := New(SchemaFromHeader(header))

	line := 1
	for {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: read row: %w", err)
		}
		line++
		if blankCells(cells) {
			continue
		}
		if len(cells) != t.Schema.Width() {
			return nil, fmt.Errorf("csv: line %d has %d cells, header has %d", line, len(cells), t.Schema.Width())
		}
		rec := make(Record, len(cells))
		for i, cell := range cells {
			f := t.Schema.Fields[i]
			v, err := n.Normalize(cell, f.Role)
			if err != nil {
				return nil, fmt.Errorf("csv: line %d column %q: %w", line, f.Name, err)
			}
			rec[i] = v
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string, n *normalize.Normalizer) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ReadCSV(f, n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// WriteCSV writes the header and every record in canonical rendering.
func WriteCSV(w io.Writer, t *Table, n *normalize.Normalizer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Schema.Names()); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows(n)); err != nil {
		return err
	}
	return cw.Error()
}

// WriteCSVFile writes t to path, creating parent directories.
func WriteCSVFile(path string, t *Table, n *normalize.Normalizer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, t, n); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func blankCells(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
