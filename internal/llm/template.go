package llm

import (
	"bytes"
	"context"
	"encoding/csv"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/normalize"
	"github.com/joseph-ayodele/statement-agent/internal/parser"
	"github.com/joseph-ayodele/statement-agent/internal/verify"
)

// MonthFirstDatePatterns replace the day-first defaults when a statement
// turns out to write month first.
var MonthFirstDatePatterns = []string{
	"1/2/2006",
	"1-2-2006",
	"1.2.2006",
	"Jan 2 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02",
	"1/2/06",
	"1-2-06",
	"1.2.06",
}

// outputLayouts are tried against the ground truth's first date cell; the
// first that formats the parsed date back to the same text wins.
var outputLayouts = []string{
	"02-01-2006",
	"02/01/2006",
	"02.01.2006",
	"2006-01-02",
	"02-Jan-2006",
	"02 Jan 2006",
	"2-1-2006",
	"2/1/2006",
	"01/02/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"02 January 2006",
}

var (
	reEUAmount = regexp.MustCompile(`\b\d{1,3}(?:\.\d{3})+,\d{2}\b`)
	reINAmount = regexp.MustCompile(`\b\d{1,2}(?:,\d{2})+,\d{3}\.\d{2}\b`)
)

// Patch names reported by Refine.
const (
	PatchReindex          = "reindex"
	PatchDropBlankRows    = "drop_blank_rows"
	PatchDisableStitching = "disable_stitching"
	PatchDateOrder        = "date_order"
	PatchAmbiguousDecimal = "ambiguous_decimal"
	PatchCleanDescription = "clean_descriptions"
)

// TemplateGenerator builds programs offline. A fresh program mirrors the
// truth schema and the configured conventions; a refinement patches the
// previous program from the diagnostic and regenerates when no patch
// applies.
type TemplateGenerator struct {
	base    normalize.Options
	minRows int
	logger  *slog.Logger
}

func NewTemplateGenerator(base normalize.Options, minRows int, logger *slog.Logger) *TemplateGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplateGenerator{base: base, minRows: minRows, logger: logger}
}

func (g *TemplateGenerator) Generate(ctx context.Context, req Request) (*parser.Program, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Refining() {
		p, patches := Refine(req.Previous, req.Diagnostic, req)
		if len(patches) > 0 {
			g.logger.Info("llm.template.patched", "source", req.Source, "patches", patches)
			return p, nil
		}
		g.logger.Info("llm.template.regenerate", "source", req.Source)
	}
	p := g.fresh(req)
	g.logger.Info("llm.generate.ok", "source", req.Source, "generator", "template", "extractor", parser.Identity(p))
	return p, nil
}

func (g *TemplateGenerator) fresh(req Request) *parser.Program {
	p := parser.NewProgram(req.Source, req.Schema)
	p.Locale = string(g.base.Locale)
	if p.Locale == "" {
		p.Locale = string(DetectLocale(req.DocumentText))
	}
	p.AmbiguousDecimal = g.base.AmbiguousDecimal
	if len(g.base.DatePatterns) > 0 && !slices.Equal(g.base.DatePatterns, normalize.DefaultDatePatterns) {
		p.DatePatterns = slices.Clone(g.base.DatePatterns)
	}
	if g.base.CurrencySymbols != "" && g.base.CurrencySymbols != constants.DefaultCurrency {
		p.CurrencySymbols = g.base.CurrencySymbols
	}
	p.OutputDateLayout = g.base.OutputDateLayout
	if layout := inferOutputLayout(req); layout != "" {
		p.OutputDateLayout = layout
	}
	if g.minRows > 1 {
		p.MinRows = g.minRows
	}
	p.Notes = "template"
	return p
}

// DetectLocale looks for unambiguously grouped amounts in text.
func DetectLocale(text string) constants.Locale {
	switch {
	case reINAmount.MatchString(text):
		return constants.LocaleIN
	case reEUAmount.MatchString(text):
		return constants.LocaleEU
	}
	return constants.LocaleNone
}

func inferOutputLayout(req Request) string {
	idx := req.Schema.Index(constants.RoleDate)
	if idx < 0 || len(req.TruthCSV) == 0 {
		return ""
	}
	r := csv.NewReader(bytes.NewReader(req.TruthCSV))
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil {
		return ""
	}
	for range 5 {
		row, err := r.Read()
		if err != nil {
			return ""
		}
		if idx >= len(row) || strings.TrimSpace(row[idx]) == "" {
			continue
		}
		cell := strings.TrimSpace(row[idx])
		for _, l := range outputLayouts {
			if t, err := time.Parse(l, cell); err == nil && t.Format(l) == cell {
				return l
			}
		}
		return ""
	}
	return ""
}

// Refine applies the patches the diagnostic calls for to a copy of prev and
// names them. No patches means the caller should regenerate.
func Refine(prev *parser.Program, diag *verify.Result, req Request) (*parser.Program, []string) {
	p := prev.Clone()
	if diag == nil || diag.ExtractorError != "" {
		return p, nil
	}
	n := normalize.New(normalize.DefaultOptions())
	applied := map[string]bool{}
	apply := func(name string, fn func() bool) {
		if !applied[name] && fn() {
			applied[name] = true
		}
	}

	for _, m := range diag.Mismatches {
		switch m.Kind {
		case verify.KindSchema:
			apply(PatchReindex, func() bool {
				fresh := parser.NewProgram(p.Source, req.Schema)
				if slices.Equal(fresh.Columns, p.Columns) {
					return false
				}
				p.Columns = fresh.Columns
				return true
			})
		case verify.KindRowCount:
			got, _ := strconv.Atoi(m.Actual)
			want, _ := strconv.Atoi(m.Expected)
			if got > want {
				apply(PatchDropBlankRows, func() bool {
					if p.DropBlankRows {
						return false
					}
					p.DropBlankRows = true
					return true
				})
			} else {
				apply(PatchDisableStitching, func() bool {
					if p.DisableStitching {
						return false
					}
					p.DisableStitching = true
					return true
				})
			}
		case verify.KindValue:
			i := fieldIndex(req, m.Field)
			if i < 0 {
				continue
			}
			switch role := req.Schema.Fields[i].Role; {
			case role == constants.RoleDate:
				if swappedDayMonth(m.Actual, m.Expected) {
					apply(PatchDateOrder, func() bool {
						if slices.Equal(p.DatePatterns, MonthFirstDatePatterns) {
							p.DatePatterns = nil
						} else {
							p.DatePatterns = slices.Clone(MonthFirstDatePatterns)
						}
						return true
					})
				}
			case role.IsAmount():
				if thousandFold(n, m.Actual, m.Expected) {
					apply(PatchAmbiguousDecimal, func() bool {
						p.AmbiguousDecimal = !p.AmbiguousDecimal
						return true
					})
				}
			case role == constants.RoleDescription:
				if normalize.CleanDescription(m.Actual) == m.Expected && m.Actual != m.Expected {
					apply(PatchCleanDescription, func() bool {
						if p.CleanDescriptions {
							return false
						}
						p.CleanDescriptions = true
						return true
					})
				}
			}
		}
	}

	var names []string
	for name := range applied {
		names = append(names, name)
	}
	slices.Sort(names)
	return p, names
}

func fieldIndex(req Request, name string) int {
	for i, f := range req.Schema.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func swappedDayMonth(actual, expected string) bool {
	a, err1 := time.Parse("2006-01-02", actual)
	e, err2 := time.Parse("2006-01-02", expected)
	if err1 != nil || err2 != nil {
		return false
	}
	return a.Year() == e.Year() && int(a.Month()) == e.Day() && a.Day() == int(e.Month())
}

// thousandFold reports whether one amount is the other scaled by 1000, the
// signature of a separator read the wrong way.
func thousandFold(n *normalize.Normalizer, actual, expected string) bool {
	av, err1 := n.Normalize(actual, constants.RoleAmount)
	ev, err2 := n.Normalize(expected, constants.RoleAmount)
	if err1 != nil || err2 != nil || av.IsNull() || ev.IsNull() {
		return false
	}
	a, e := av.Amount().Abs(), ev.Amount().Abs()
	if a.IsZero() || e.IsZero() {
		return false
	}
	return a.Equal(e.Shift(3)) || e.Equal(a.Shift(3))
}
