package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/document"
	"github.com/joseph-ayodele/statement-agent/internal/table"
)

// SegmenterKind selects how a line is cut into fields.
type SegmenterKind string

const (
	// SegmentColumns cuts fixed rune ranges.
	SegmentColumns SegmenterKind = "columns"
	// SegmentDelimiter splits on a pattern and needs an exact field count.
	SegmentDelimiter SegmenterKind = "delimiter"
	// SegmentTokens reads a leading date, trailing numeric tokens (balance
	// last) and the description in between.
	SegmentTokens SegmenterKind = "tokens"
)

// UndirectedAmount is a segment target whose debit/credit side is decided
// after normalization.
const UndirectedAmount = "@amount"

// ColumnRange is a rune range [Start, End) of a layout line. End <= 0 runs
// to the end of the line.
type ColumnRange struct {
	Field string
	Start int
	End   int
}

// Segmenter is one field-boundary pattern of the line strategy.
type Segmenter struct {
	Kind    SegmenterKind
	Columns []ColumnRange // columns
	Pattern string        // delimiter: regexp
	Fields  []string      // delimiter: targets in split order
}

const targetAmount = -2

type compiledRange struct {
	target     int
	start, end int
}

type compiledSegmenter struct {
	kind    SegmenterKind
	columns []compiledRange
	delim   *regexp.Regexp
	fields  []int
}

// lineFields is a segmented line: raw text per schema field plus an
// optional undirected amount.
type lineFields struct {
	raw       []string
	amount    string
	hasAmount bool
}

func (lf *lineFields) set(target int, text string) {
	text = strings.TrimSpace(text)
	if target == targetAmount {
		lf.amount, lf.hasAmount = text, text != ""
		return
	}
	if lf.raw[target] != "" && text != "" {
		lf.raw[target] += " " + text
		return
	}
	if text != "" {
		lf.raw[target] = text
	}
}

func resolveTarget(name string, schema table.Schema) (int, error) {
	if name == UndirectedAmount {
		return targetAmount, nil
	}
	for i, f := range schema.Fields {
		if f.Name == name {
			return i, nil
		}
	}
	key := constants.HeaderKey(name)
	for i, f := range schema.Fields {
		if key != "" && constants.HeaderKey(f.Name) == key {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", name)
}

func compileSegmenter(s Segmenter, schema table.Schema) (compiledSegmenter, error) {
	cs := compiledSegmenter{kind: s.Kind}
	switch s.Kind {
	case SegmentColumns:
		if len(s.Columns) == 0 {
			return cs, fmt.Errorf("columns segmenter without ranges")
		}
		for _, c := range s.Columns {
			t, err := resolveTarget(c.Field, schema)
			if err != nil {
				return cs, err
			}
			if c.Start < 0 || (c.End > 0 && c.End <= c.Start) {
				return cs, fmt.Errorf("bad range [%d,%d) for %q", c.Start, c.End, c.Field)
			}
			cs.columns = append(cs.columns, compiledRange{target: t, start: c.Start, end: c.End})
		}
	case SegmentDelimiter:
		if s.Pattern == "" || len(s.Fields) == 0 {
			return cs, fmt.Errorf("delimiter segmenter needs a pattern and fields")
		}
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return cs, fmt.Errorf("delimiter pattern %q: %w", s.Pattern, err)
		}
		cs.delim = re
		for _, name := range s.Fields {
			t, err := resolveTarget(name, schema)
			if err != nil {
				return cs, err
			}
			cs.fields = append(cs.fields, t)
		}
	case SegmentTokens:
	default:
		return cs, fmt.Errorf("unknown segmenter kind %q", s.Kind)
	}
	return cs, nil
}

// segment tries each segmenter in order; the first match wins.
func (e *Engine) segment(line string) (lineFields, bool) {
	for _, cs := range e.segmenters {
		lf := lineFields{raw: make([]string, e.cfg.Schema.Width())}
		var ok bool
		switch cs.kind {
		case SegmentColumns:
			ok = e.segmentColumns(cs, line, &lf)
		case SegmentDelimiter:
			ok = e.segmentDelimiter(cs, line, &lf)
		case SegmentTokens:
			ok = e.segmentTokens(line, &lf)
		}
		if ok {
			return lf, true
		}
	}
	return lineFields{}, false
}

func (e *Engine) segmentColumns(cs compiledSegmenter, line string, lf *lineFields) bool {
	runes := document.LayoutRunes(line)
	found := false
	for _, c := range cs.columns {
		start, end := min(c.start, len(runes)), len(runes)
		if c.end > 0 {
			end = min(c.end, len(runes))
		}
		text := strings.TrimSpace(string(runes[start:end]))
		if text != "" {
			found = true
		}
		lf.set(c.target, text)
	}
	if d := e.cfg.Schema.Index(constants.RoleDate); d >= 0 && lf.raw[d] == "" {
		return false
	}
	return found
}

func (e *Engine) segmentDelimiter(cs compiledSegmenter, line string, lf *lineFields) bool {
	parts := cs.delim.Split(strings.TrimSpace(line), -1)
	if len(parts) != len(cs.fields) {
		return false
	}
	for i, t := range cs.fields {
		lf.set(t, parts[i])
	}
	return true
}

var (
	reNumericToken = regexp.MustCompile(`^[(\-+]?\d(?:[\d,.']*\d)?\)?-?(?:DR|CR|Dr|Cr|dr|cr)?$`)
	reMarkerToken  = regexp.MustCompile(`^(?:DR|CR|Dr|Cr|dr|cr)\.?$`)
)

func (e *Engine) numericToken(tok string) bool {
	tok = strings.TrimFunc(tok, func(r rune) bool {
		return strings.ContainsRune(e.currency, r)
	})
	return reNumericToken.MatchString(tok)
}

func (e *Engine) segmentTokens(line string, lf *lineFields) bool {
	schema := e.cfg.Schema
	rest := strings.TrimSpace(line)
	if d := schema.Index(constants.RoleDate); d >= 0 {
		date, after, ok := e.norm.LeadingDate(rest)
		if !ok {
			return false
		}
		lf.set(d, date)
		rest = after
	}

	hasBalance := schema.Has(constants.RoleBalance)
	capacity := 0
	if hasBalance {
		capacity++
	}
	if schema.Has(constants.RoleDebit) || schema.Has(constants.RoleCredit) || schema.Has(constants.RoleAmount) {
		capacity++
	}

	toks := strings.Fields(rest)
	end := len(toks) // toks[end:] are consumed as numbers
	var nums []string
	for end > 0 && len(nums) < capacity {
		tok := toks[end-1]
		if reMarkerToken.MatchString(tok) && end > 1 && e.numericToken(toks[end-2]) {
			nums = append([]string{toks[end-2] + " " + tok}, nums...)
			end -= 2
			continue
		}
		if !e.numericToken(tok) {
			break
		}
		nums = append([]string{tok}, nums...)
		end--
	}
	desc := strings.Join(toks[:end], " ")

	if hasBalance && len(nums) > 0 {
		lf.set(schema.Index(constants.RoleBalance), nums[len(nums)-1])
		nums = nums[:len(nums)-1]
	}
	if len(nums) > 0 {
		lf.set(targetAmount, nums[len(nums)-1])
	}
	if d := schema.Index(constants.RoleDescription); d >= 0 {
		lf.set(d, desc)
	}
	return true
}
