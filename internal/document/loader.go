package document

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/common"
)

// ErrNoText is returned for a PDF without a text layer.
var ErrNoText = errors.New("document has no extractable text")

// Config configures a Loader.
type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Grid      GridOptions
	Sheet     string // xlsx: load only this sheet when set
	GridOnly  bool   // pdf: keep layout-detected tables, skip the PDF reader's
}

// Loader turns statement files into Documents.
type Loader struct {
	cfg    Config
	runner Runner
	pdf    PDFReader
	logger *slog.Logger
}

func NewLoader(cfg Config, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = constants.DefaultPdftotext
	}
	return &Loader{cfg: cfg, runner: execRunner{logger: logger}, pdf: tabulaReader{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner (tests).
func (l *Loader) WithRunner(r Runner) *Loader {
	cp := *l
	cp.runner = r
	return &cp
}

// WithPDFReader swaps the in-process PDF backend (tests).
func (l *Loader) WithPDFReader(r PDFReader) *Loader {
	cp := *l
	cp.pdf = r
	return &cp
}

// Load reads path, choosing the reader by extension and falling back to
// content sniffing. A missing file is an environment error.
func (l *Loader) Load(ctx context.Context, path string) (*Document, error) {
	start := time.Now()
	if _, err := os.Stat(path); err != nil {
		return nil, common.EnvironmentError(fmt.Sprintf("document %s is not readable", path), err)
	}

	format := constants.MapExtToFormat(filepath.Ext(path))
	if format == "" {
		head, err := readHead(path, 8)
		if err != nil {
			return nil, common.EnvironmentError(fmt.Sprintf("read %s", path), err)
		}
		format = constants.SniffFormat(head)
	}
	l.logger.Debug("document.load.start", "path", path, "format", format)

	var (
		doc *Document
		err error
	)
	switch format {
	case constants.PDF:
		doc, err = l.loadPDF(ctx, path)
	case constants.TEXT:
		doc, err = l.loadText(path)
	case constants.XLSX:
		doc, err = l.loadXLSX(path)
	case constants.CSV:
		doc, err = l.loadCSV(path)
	default:
		err = fmt.Errorf("unsupported document format %q", format)
	}
	if err != nil {
		l.logger.Error("document.load.error", "path", path, "format", format, "error", err)
		return nil, err
	}

	l.logger.Debug("document.load.ok",
		"path", path,
		"format", format,
		"pages", len(doc.Pages),
		"lines", doc.LineCount(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return doc, nil
}

func (l *Loader) loadPDF(ctx context.Context, path string) (*Document, error) {
	text, err := l.pdfText(ctx, path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(strings.ReplaceAll(text, "\f", "")) == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrNoText)
	}
	doc := FromText(path, constants.PDF, text, l.cfg.Grid)
	if l.cfg.GridOnly {
		return doc, nil
	}

	found, err := l.pdf.Tables(path)
	if err != nil {
		l.logger.Warn("document.pdf.tables", "path", path, "error", err)
		return doc, nil
	}
	if n := overlayTables(doc, found); n > 0 {
		l.logger.Debug("document.pdf.tables.ok", "path", path, "pages", n)
	}
	return doc, nil
}

// pdfText prefers pdftotext's layout mode and falls back to the in-process
// reader when the binary is missing.
func (l *Loader) pdfText(ctx context.Context, path string) (string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := l.runner.Run(ctx, l.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err == nil {
		return string(out), nil
	}
	if !errors.Is(err, exec.ErrNotFound) {
		return "", fmt.Errorf("pdftotext %s: %w: %s", path, err, strings.TrimSpace(string(errb)))
	}
	text, terr := l.pdf.Text(path)
	if terr != nil {
		l.logger.Warn("document.pdf.fallback", "path", path, "error", terr)
		return "", common.EnvironmentError(l.cfg.Pdftotext+" is not installed", err)
	}
	return text, nil
}

func (l *Loader) loadText(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, common.EnvironmentError(fmt.Sprintf("read %s", path), err)
	}
	return FromText(path, constants.TEXT, decodeText(b), l.cfg.Grid), nil
}

// decodeText strips a UTF-8 BOM; bytes that are not UTF-8 are read as
// Windows-1252, the usual encoding of legacy bank exports.
func decodeText(b []byte) string {
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	if utf8.Valid(b) {
		return string(b)
	}
	if dec, err := charmap.Windows1252.NewDecoder().Bytes(b); err == nil {
		return string(dec)
	}
	return strings.ToValidUTF8(string(b), "�")
}

func (l *Loader) loadXLSX(path string) (*Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			l.logger.Warn("document.xlsx.close", "path", path, "error", cerr)
		}
	}()

	var sheets []sheet
	for _, name := range f.GetSheetList() {
		if l.cfg.Sheet != "" && name != l.cfg.Sheet {
			continue
		}
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		sheets = append(sheets, sheet{name: name, rows: rows})
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s: no sheet %q", path, l.cfg.Sheet)
	}
	return fromSheets(path, constants.XLSX, sheets), nil
}

func (l *Loader) loadCSV(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, common.EnvironmentError(fmt.Sprintf("read %s", path), err)
	}
	text := decodeText(b)

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.Comma = sniffDelimiter(text)

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv %s: %w", path, err)
		}
		rows = append(rows, rec)
	}
	return fromSheets(path, constants.CSV, []sheet{{name: filepath.Base(path), rows: rows}}), nil
}

// sniffDelimiter picks ';' or tab over ',' when the first line has more of
// them.
func sniffDelimiter(text string) rune {
	first, _, _ := strings.Cut(text, "\n")
	best, count := ',', strings.Count(first, ",")
	for _, d := range []rune{';', '\t'} {
		if c := strings.Count(first, string(d)); c > count {
			best, count = d, c
		}
	}
	return best
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	k, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:k], nil
}

type sheet struct {
	name string
	rows [][]string
}

// fromSheets maps each sheet to a page holding one table block. Ragged
// rows are padded; the page lines join non-empty cells with a gutter so the
// line strategy can read them too.
func fromSheets(source, format string, sheets []sheet) *Document {
	doc := &Document{Source: source, Format: format}
	for i, sh := range sheets {
		width := 0
		for _, r := range sh.rows {
			width = max(width, len(r))
		}
		page := Page{Number: i + 1, Name: sh.name}
		var grid [][]string
		for _, r := range sh.rows {
			row := make([]string, width)
			var cells []string
			for j, c := range r {
				c = strings.TrimSpace(c)
				row[j] = c
				if c != "" {
					cells = append(cells, c)
				}
			}
			if len(cells) == 0 {
				continue
			}
			grid = append(grid, row)
			page.Lines = append(page.Lines, strings.Join(cells, "   "))
		}
		if len(grid) > 0 {
			page.Blocks = []Block{{Kind: BlockTable, Rows: grid, Lines: page.Lines}}
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc
}
