package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/cespare/xxhash/v2"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/extract"
	"github.com/joseph-ayodele/statement-agent/internal/normalize"
	"github.com/joseph-ayodele/statement-agent/internal/table"
)

// ProgramVersion is the program format version this build understands.
const ProgramVersion = 1

// ErrInvalidProgram is wrapped by every program validation failure.
var ErrInvalidProgram = errors.New("invalid extractor program")

// Column is one output field.
type Column struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// ColumnRange is a fixed rune range of a layout line.
type ColumnRange struct {
	Field string `json:"field"`
	Start int    `json:"start"`
	End   int    `json:"end,omitempty"`
}

// SegmenterSpec is one line-strategy segmenter.
type SegmenterSpec struct {
	Kind    string        `json:"kind"`
	Columns []ColumnRange `json:"columns,omitempty"`
	Pattern string        `json:"pattern,omitempty"`
	Fields  []string      `json:"fields,omitempty"`
}

// Program is the generated per-source extractor: a declarative description
// the engine interprets. Its JSON form is the persisted artifact.
type Program struct {
	Version           int                 `json:"version"`
	Source            string              `json:"source"`
	Columns           []Column            `json:"columns"`
	Locale            string              `json:"locale,omitempty"`
	AmbiguousDecimal  bool                `json:"ambiguous_decimal,omitempty"`
	DatePatterns      []string            `json:"date_patterns,omitempty"`
	OutputDateLayout  string              `json:"output_date_layout,omitempty"`
	CurrencySymbols   string              `json:"currency_symbols,omitempty"`
	MinRows           int                 `json:"min_rows,omitempty"`
	HeaderSynonyms    map[string][]string `json:"header_synonyms,omitempty"`
	PositionalColumns []int               `json:"positional_columns,omitempty"`
	Segmenters        []SegmenterSpec     `json:"segmenters,omitempty"`
	CreditKeywords    []string            `json:"credit_keywords,omitempty"`
	DebitKeywords     []string            `json:"debit_keywords,omitempty"`
	SkipPatterns      []string            `json:"skip_patterns,omitempty"`
	CleanDescriptions bool                `json:"clean_descriptions,omitempty"`
	DropBlankRows     bool                `json:"drop_blank_rows,omitempty"`
	DisableStitching  bool                `json:"disable_stitching,omitempty"`
	Sheet             string              `json:"sheet,omitempty"`
	Notes             string              `json:"notes,omitempty"`
}

// NewProgram starts a program for source whose columns mirror schema.
func NewProgram(source string, schema table.Schema) *Program {
	p := &Program{Version: ProgramVersion, Source: source}
	for _, f := range schema.Fields {
		p.Columns = append(p.Columns, Column{Name: f.Name, Role: string(f.Role)})
	}
	return p
}

// ParseProgram validates data against the program schema, decodes it and
// checks its semantics.
func ParseProgram(data []byte) (*Program, error) {
	if err := ValidateJSON(data); err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var p Program
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidProgram, err)
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Marshal renders the canonical indented JSON form.
func (p *Program) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Clone deep-copies p through its JSON form.
func (p *Program) Clone() *Program {
	b, err := json.Marshal(p)
	if err != nil {
		panic(fmt.Sprintf("parser: marshal program: %v", err))
	}
	var out Program
	if err := json.Unmarshal(b, &out); err != nil {
		panic(fmt.Sprintf("parser: unmarshal program: %v", err))
	}
	return &out
}

// Check validates semantics the JSON schema cannot express.
func (p *Program) Check() error {
	if p.Version != ProgramVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrInvalidProgram, p.Version, ProgramVersion)
	}
	if p.Source == "" {
		return fmt.Errorf("%w: empty source", ErrInvalidProgram)
	}
	if _, err := p.Schema(); err != nil {
		return err
	}
	if _, err := constants.ParseLocale(p.Locale); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	for _, pat := range p.SkipPatterns {
		if _, err := regexp.Compile(pat); err != nil {
			return fmt.Errorf("%w: skip pattern %q: %v", ErrInvalidProgram, pat, err)
		}
	}
	for role := range p.HeaderSynonyms {
		if !constants.Role(role).Valid() {
			return fmt.Errorf("%w: header synonyms for unknown role %q", ErrInvalidProgram, role)
		}
	}
	return nil
}

// Schema is the output schema the program declares.
func (p *Program) Schema() (table.Schema, error) {
	if len(p.Columns) == 0 {
		return table.Schema{}, fmt.Errorf("%w: no columns", ErrInvalidProgram)
	}
	seen := make(map[string]bool, len(p.Columns))
	fields := make([]table.Field, len(p.Columns))
	for i, c := range p.Columns {
		role := constants.Role(c.Role)
		if !role.Valid() {
			return table.Schema{}, fmt.Errorf("%w: column %q has unknown role %q", ErrInvalidProgram, c.Name, c.Role)
		}
		if c.Name == "" || seen[c.Name] {
			return table.Schema{}, fmt.Errorf("%w: column name %q empty or duplicated", ErrInvalidProgram, c.Name)
		}
		seen[c.Name] = true
		fields[i] = table.NewField(c.Name, role)
	}
	return table.Schema{Fields: fields}, nil
}

// NormalizerOptions maps the program's value conventions.
func (p *Program) NormalizerOptions() (normalize.Options, error) {
	loc, err := constants.ParseLocale(p.Locale)
	if err != nil {
		return normalize.Options{}, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	return normalize.Options{
		DatePatterns:     p.DatePatterns,
		OutputDateLayout: p.OutputDateLayout,
		CurrencySymbols:  p.CurrencySymbols,
		Locale:           loc,
		AmbiguousDecimal: p.AmbiguousDecimal,
	}, nil
}

// EngineConfig maps the program's extraction rules.
func (p *Program) EngineConfig() (extract.Config, error) {
	schema, err := p.Schema()
	if err != nil {
		return extract.Config{}, err
	}
	cfg := extract.Config{
		Schema:            schema,
		MinRows:           p.MinRows,
		PositionalColumns: p.PositionalColumns,
		SkipPatterns:      p.SkipPatterns,
		CreditKeywords:    p.CreditKeywords,
		DebitKeywords:     p.DebitKeywords,
		CleanDescriptions: p.CleanDescriptions,
		DropBlankRows:     p.DropBlankRows,
		DisableStitching:  p.DisableStitching,
	}
	if len(p.HeaderSynonyms) > 0 {
		cfg.HeaderSynonyms = make(map[constants.Role][]string, len(p.HeaderSynonyms))
		for role, names := range p.HeaderSynonyms {
			cfg.HeaderSynonyms[constants.Role(role)] = names
		}
	}
	for _, s := range p.Segmenters {
		seg := extract.Segmenter{Kind: extract.SegmenterKind(s.Kind), Pattern: s.Pattern, Fields: s.Fields}
		for _, c := range s.Columns {
			seg.Columns = append(seg.Columns, extract.ColumnRange{Field: c.Field, Start: c.Start, End: c.End})
		}
		cfg.Segmenters = append(cfg.Segmenters, seg)
	}
	return cfg, nil
}

// Identity is "<source>@<xxhash64 of the compact JSON>": equal programs
// share an identity, any change yields a new one.
func Identity(p *Program) string {
	b, err := json.Marshal(p)
	if err != nil {
		return p.Source + "@invalid"
	}
	return fmt.Sprintf("%s@%016x", p.Source, xxhash.Sum64(b))
}
