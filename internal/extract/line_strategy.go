package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/document"
	"github.com/joseph-ayodele/statement-agent/internal/normalize"
	"github.com/joseph-ayodele/statement-agent/internal/table"
)

// builtinSkip drops page furniture that would otherwise be stitched onto
// the last transaction.
var builtinSkip = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^page\s+\d+(\s+of\s+\d+)?$`),
	regexp.MustCompile(`(?i)^(closing balance|opening balance|total|statement summary)\b`),
}

var reGutter = regexp.MustCompile(`\s{2,}`)

// lineEntry is one candidate record: a line starting a transaction plus
// the wrapped lines stitched onto it.
type lineEntry struct {
	page, line int
	head       string
	extra      []string
}

func (e *Engine) skipLine(line string) bool {
	for _, re := range builtinSkip {
		if re.MatchString(line) {
			return true
		}
	}
	for _, re := range e.skip {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func (e *Engine) headerLine(line string) bool {
	if _, ok := e.isHeader(reGutter.Split(line, -1)); ok {
		return true
	}
	_, ok := e.isHeader(strings.Fields(line))
	return ok
}

// entries canonicalizes and filters page lines and stitches lines that do
// not start with a date onto the previous transaction.
func (e *Engine) entries(doc *document.Document) []lineEntry {
	stitch := !e.cfg.DisableStitching && e.cfg.Schema.Has(constants.RoleDate)
	var out []lineEntry
	for _, page := range doc.Pages {
		for i, raw := range page.Lines {
			line := normalize.Canonicalize(raw)
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || e.skipLine(trimmed) {
				continue
			}
			_, _, dated := e.norm.LeadingDate(trimmed)
			if !dated && e.headerLine(trimmed) {
				continue
			}
			entry := lineEntry{page: page.Number, line: i + 1, head: line}
			if !stitch || dated {
				out = append(out, entry)
				continue
			}
			if n := len(out); n > 0 {
				out[n-1].extra = append(out[n-1].extra, normalize.CleanText(trimmed))
			}
		}
	}
	return out
}

func (e *Engine) lineStrategy(doc *document.Document) (*table.Table, []SkippedRow) {
	out := table.New(e.cfg.Schema)
	var skipped []SkippedRow
	var prev *normalize.Amount

	descIdx := e.cfg.Schema.Index(constants.RoleDescription)
	balIdx := e.cfg.Schema.Index(constants.RoleBalance)
	for _, entry := range e.entries(doc) {
		skip := func(reason string) {
			skipped = append(skipped, SkippedRow{
				Strategy: StrategyLine, Page: entry.page, Row: entry.line,
				Raw: strings.TrimSpace(entry.head), Reason: reason,
			})
		}

		lf, ok := e.segment(entry.head)
		if !ok {
			skip("no segmenter matched")
			continue
		}
		if descIdx >= 0 && len(entry.extra) > 0 {
			lf.raw[descIdx] = strings.TrimSpace(lf.raw[descIdx] + " " + strings.Join(entry.extra, " "))
		}

		rec, err := e.normalizeRow(lf.raw)
		if err != nil {
			skip(err.Error())
			continue
		}
		if lf.hasAmount {
			if err := e.placeAmount(rec, lf, prev); err != nil {
				skip(err.Error())
				continue
			}
		}
		if !e.keep(rec) {
			continue
		}
		out.Records = append(out.Records, rec)
		if balIdx >= 0 && rec[balIdx].Kind() == normalize.KindAmount {
			b := rec[balIdx].Amount()
			prev = &b
		}
	}
	return out, skipped
}

// placeAmount normalizes the undirected amount once and stores it on the
// side its direction resolves to.
func (e *Engine) placeAmount(rec table.Record, lf lineFields, prev *normalize.Amount) error {
	v, err := e.norm.Normalize(lf.amount, constants.RoleAmount)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if v.IsNull() {
		return nil
	}
	schema := e.cfg.Schema
	a := v.Amount()

	var desc string
	if i := schema.Index(constants.RoleDescription); i >= 0 {
		desc = rec[i].Text()
	}
	var balance *normalize.Amount
	if i := schema.Index(constants.RoleBalance); i >= 0 && rec[i].Kind() == normalize.KindAmount {
		b := rec[i].Amount()
		balance = &b
	}
	side := e.direction(a, lf.amount, desc, balance, prev)

	if i := schema.Index(side); i >= 0 {
		rec[i] = normalize.AmountValue(a.Abs())
		return nil
	}
	if i := schema.Index(constants.RoleAmount); i >= 0 {
		signed := a.Abs()
		if side == constants.RoleDebit {
			signed = signed.Neg()
		}
		rec[i] = normalize.AmountValue(signed)
		return nil
	}
	return fmt.Errorf("%s amount %s has no %s field", side, a, side)
}

// direction resolves money in or out: explicit sign or DR/CR marker, then
// keywords, then the running balance, else credit.
func (e *Engine) direction(a normalize.Amount, raw, desc string, balance, prev *normalize.Amount) constants.Role {
	if a.Sign() < 0 {
		return constants.RoleDebit
	}
	if _, cr := normalize.SignMarkers(raw); cr {
		return constants.RoleCredit
	}
	if dr, cr := normalize.SignMarkers(desc); dr != cr {
		if dr {
			return constants.RoleDebit
		}
		return constants.RoleCredit
	}

	lower := strings.ToLower(desc)
	credit, debit := containsAny(lower, e.credit), containsAny(lower, e.debit)
	switch {
	case credit && !debit:
		return constants.RoleCredit
	case debit && !credit:
		return constants.RoleDebit
	}
	if balance != nil && prev != nil {
		switch balance.Cmp(*prev) {
		case 1:
			return constants.RoleCredit
		case -1:
			return constants.RoleDebit
		}
	}
	return constants.RoleCredit
}

func containsAny(s string, keys []string) bool {
	for _, k := range keys {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}
