// Package extract turns a loaded document into a normalized table with two
// strategies: cell grids first, line patterns when grids yield too little.
package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/document"
	"github.com/joseph-ayodele/statement-agent/internal/normalize"
	"github.com/joseph-ayodele/statement-agent/internal/table"
)

// Strategy names the path that produced a table.
type Strategy string

const (
	StrategyTable Strategy = "table"
	StrategyLine  Strategy = "line"
)

// RawField is one unnormalized value tagged with its target field.
type RawField struct {
	Role  constants.Role
	Field string
	Text  string
}

var (
	// DefaultCreditKeywords mark a transaction as money in.
	DefaultCreditKeywords = []string{
		"salary credit", "interest credit", "cheque deposit", "cash deposit",
		"neft transfer from", "neft from", "deposit", "credited", "refund",
	}
	// DefaultDebitKeywords mark a transaction as money out.
	DefaultDebitKeywords = []string{
		"imps", "upi", "qr payment", "fuel", "dining", "restaurant", "emi",
		"utility bill", "service charge", "electricity bill", "online card purchase",
		"card swipe", "atm cash withdrawal", "credit card payment", "mobile recharge",
		"insurance premium", "withdrawal", "debited",
	}
)

// Config drives one Engine. Schema is required; everything else is
// optional.
type Config struct {
	Schema table.Schema
	// MinRows is the table-strategy row count below which the line strategy
	// runs. Values below 1 count as 1.
	MinRows int
	// HeaderSynonyms extends the built-in header vocabulary per role.
	HeaderSynonyms map[constants.Role][]string
	// PositionalColumns maps schema field i to grid column
	// PositionalColumns[i] (-1: absent) for grids without a recognized
	// header. Empty means identity when the grid is exactly schema-wide.
	PositionalColumns []int
	Segmenters        []Segmenter
	SkipPatterns      []string
	CreditKeywords    []string
	DebitKeywords     []string
	// CleanDescriptions strips trailing DR/CR and numeric residue from
	// description text before normalization.
	CleanDescriptions bool
	DropBlankRows     bool
	DisableStitching  bool
}

// Result is an extraction outcome with diagnostics.
type Result struct {
	Table     *table.Table
	Strategy  Strategy
	Skipped   []SkippedRow
	TableRows int // rows the table strategy produced
	LineRows  int // rows the line strategy produced; 0 when it did not run
}

// Engine is immutable after NewEngine and safe for concurrent use.
type Engine struct {
	cfg        Config
	norm       *normalize.Normalizer
	skip       []*regexp.Regexp
	segmenters []compiledSegmenter
	credit     []string
	debit      []string
	currency   string
	logger     *slog.Logger
}

func NewEngine(cfg Config, n *normalize.Normalizer, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if n == nil {
		n = normalize.New(normalize.Options{})
	}
	if cfg.Schema.Width() == 0 {
		return nil, fmt.Errorf("extract: schema has no fields")
	}
	if len(cfg.PositionalColumns) > 0 && len(cfg.PositionalColumns) != cfg.Schema.Width() {
		return nil, fmt.Errorf("extract: %d positional columns for %d schema fields", len(cfg.PositionalColumns), cfg.Schema.Width())
	}
	if cfg.MinRows < 1 {
		cfg.MinRows = 1
	}
	e := &Engine{cfg: cfg, norm: n, currency: n.Options().CurrencySymbols, logger: logger}

	for _, p := range cfg.SkipPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("extract: skip pattern %q: %w", p, err)
		}
		e.skip = append(e.skip, re)
	}

	segs := cfg.Segmenters
	if len(segs) == 0 {
		segs = []Segmenter{{Kind: SegmentTokens}}
	}
	for i, s := range segs {
		cs, err := compileSegmenter(s, cfg.Schema)
		if err != nil {
			return nil, fmt.Errorf("extract: segmenter %d: %w", i, err)
		}
		e.segmenters = append(e.segmenters, cs)
	}

	e.credit = lowerAll(cfg.CreditKeywords, DefaultCreditKeywords)
	e.debit = lowerAll(cfg.DebitKeywords, DefaultDebitKeywords)
	return e, nil
}

func lowerAll(list, def []string) []string {
	if len(list) == 0 {
		list = def
	}
	out := make([]string, len(list))
	for i, k := range list {
		out[i] = strings.ToLower(normalize.CleanText(k))
	}
	return out
}

// Schema is the output schema.
func (e *Engine) Schema() table.Schema { return e.cfg.Schema }

// Extract runs the table strategy and falls back to the line strategy when
// it yields fewer than MinRows rows.
func (e *Engine) Extract(doc *document.Document) (*Result, error) {
	start := time.Now()
	tables, tableSkipped := e.tableStrategy(doc)
	res := &Result{TableRows: tables.Len(), Skipped: tableSkipped}

	if tables.Len() >= e.cfg.MinRows {
		res.Table, res.Strategy = tables, StrategyTable
		e.logDone(doc, res, start)
		return res, nil
	}

	e.logger.Debug("extract.fallback",
		"source", doc.Source,
		"table_rows", tables.Len(),
		"min_rows", e.cfg.MinRows,
	)
	lines, lineSkipped := e.lineStrategy(doc)
	res.LineRows = lines.Len()

	// Skipped describes the returned table only; a failure reports both.
	switch {
	case lines.Len() > 0:
		res.Table, res.Strategy, res.Skipped = lines, StrategyLine, lineSkipped
	case tables.Len() > 0:
		res.Table, res.Strategy = tables, StrategyTable
	default:
		return nil, &ExtractionError{
			Reason:  "no usable rows from table or line strategy",
			Skipped: append(tableSkipped, lineSkipped...),
		}
	}
	e.logDone(doc, res, start)
	return res, nil
}

func (e *Engine) logDone(doc *document.Document, res *Result, start time.Time) {
	e.logger.Debug("extract.ok",
		"source", doc.Source,
		"strategy", res.Strategy,
		"rows", res.Table.Len(),
		"skipped", len(res.Skipped),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// rawFields tags raw values with their schema fields.
func (e *Engine) rawFields(raw []string) []RawField {
	out := make([]RawField, len(raw))
	for i, f := range e.cfg.Schema.Fields {
		out[i] = RawField{Role: f.Role, Field: f.Name, Text: raw[i]}
	}
	return out
}

// normalizeRow coerces each raw field exactly once. The returned error
// names the first field that failed.
func (e *Engine) normalizeRow(raw []string) (table.Record, error) {
	rec := make(table.Record, len(raw))
	for i, rf := range e.rawFields(raw) {
		text := rf.Text
		if rf.Role == constants.RoleDescription && e.cfg.CleanDescriptions {
			text = normalize.CleanDescription(text)
		}
		v, err := e.norm.Normalize(text, rf.Role)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", rf.Field, err)
		}
		rec[i] = v
	}
	return rec, nil
}

func (e *Engine) keep(rec table.Record) bool {
	return !(e.cfg.DropBlankRows && rec.Blank())
}
