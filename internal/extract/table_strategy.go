package extract

import (
	"strings"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/document"
	"github.com/joseph-ayodele/statement-agent/internal/table"
)

// headerScanRows bounds how far into a grid a header row is searched for.
const headerScanRows = 5

// gridRow is one grid row projected onto the schema, before normalization.
type gridRow struct {
	page, row int
	raw       []string
}

// columnMap maps schema field i to grid column m[i]; -1 when absent.
type columnMap []int

func (m columnMap) mapped() int {
	n := 0
	for _, c := range m {
		if c >= 0 {
			n++
		}
	}
	return n
}

func (e *Engine) headerThreshold() int {
	n := e.cfg.Schema.Width()
	return min(n, max(2, n/2))
}

// matchHeader scores a grid row as a header: fields are matched first by
// exact name, then by role synonym, each grid cell used at most once.
func (e *Engine) matchHeader(cells []string) (columnMap, int) {
	fields := e.cfg.Schema.Fields
	m := make(columnMap, len(fields))
	for i := range m {
		m[i] = -1
	}
	used := make([]bool, len(cells))

	for fi, f := range fields {
		want := constants.HeaderKey(f.Name)
		for ci, cell := range cells {
			if !used[ci] && want != "" && constants.HeaderKey(cell) == want {
				m[fi], used[ci] = ci, true
				break
			}
		}
	}
	for fi, f := range fields {
		if m[fi] >= 0 || f.Role == constants.RoleOther {
			continue
		}
		for ci, cell := range cells {
			if used[ci] {
				continue
			}
			if role, ok := constants.CanonicalizeHeader(cell, e.cfg.HeaderSynonyms); ok && role == f.Role {
				m[fi], used[ci] = ci, true
				break
			}
		}
	}
	return m, m.mapped()
}

func (e *Engine) isHeader(cells []string) (columnMap, bool) {
	m, score := e.matchHeader(cells)
	return m, score > 0 && score >= e.headerThreshold()
}

// positional returns the fixed mapping for a header-less grid of width w.
func (e *Engine) positional(w int) (columnMap, bool) {
	if len(e.cfg.PositionalColumns) > 0 {
		m := columnMap(append([]int(nil), e.cfg.PositionalColumns...))
		for _, c := range m {
			if c >= w {
				return nil, false
			}
		}
		return m, m.mapped() > 0
	}
	if w != e.cfg.Schema.Width() {
		return nil, false
	}
	m := make(columnMap, w)
	for i := range m {
		m[i] = i
	}
	return m, true
}

func (e *Engine) tableStrategy(doc *document.Document) (*table.Table, []SkippedRow) {
	var rows []gridRow
	var skipped []SkippedRow

	var last columnMap
	lastWidth := -1
	for _, page := range doc.Pages {
		for _, blk := range page.Tables() {
			if len(blk.Rows) == 0 {
				continue
			}
			width := len(blk.Rows[0])

			bodyStart := 0
			var m columnMap
			for i := 0; i < len(blk.Rows) && i < headerScanRows; i++ {
				if hm, ok := e.isHeader(blk.Rows[i]); ok {
					m, bodyStart = hm, i+1
					break
				}
			}
			if m == nil && last != nil && width == lastWidth {
				// header-less continuation of the previous grid
				m = last
			}
			if m == nil {
				var ok bool
				if m, ok = e.positional(width); !ok {
					e.logger.Debug("extract.table.unmapped", "page", page.Number, "cols", width, "rows", len(blk.Rows))
					continue
				}
			}
			last, lastWidth = m, width

			for i := bodyStart; i < len(blk.Rows); i++ {
				cells := blk.Rows[i]
				if _, repeat := e.isHeader(cells); repeat {
					continue
				}
				raw := project(cells, m)
				if e.isContinuation(raw) {
					if n := len(rows); n > 0 {
						e.appendDescription(rows[n-1].raw, raw)
					} else {
						skipped = append(skipped, SkippedRow{
							Strategy: StrategyTable, Page: page.Number, Row: i + 1,
							Raw: strings.Join(cells, " | "), Reason: "continuation row without a preceding row",
						})
					}
					continue
				}
				rows = append(rows, gridRow{page: page.Number, row: i + 1, raw: raw})
			}
		}
	}

	out := table.New(e.cfg.Schema)
	for _, r := range rows {
		rec, err := e.normalizeRow(r.raw)
		if err != nil {
			skipped = append(skipped, SkippedRow{
				Strategy: StrategyTable, Page: r.page, Row: r.row,
				Raw: strings.Join(r.raw, " | "), Reason: err.Error(),
			})
			continue
		}
		if e.keep(rec) {
			out.Records = append(out.Records, rec)
		}
	}
	return out, skipped
}

func project(cells []string, m columnMap) []string {
	raw := make([]string, len(m))
	for i, c := range m {
		if c >= 0 && c < len(cells) {
			raw[i] = strings.TrimSpace(cells[c])
		}
	}
	return raw
}

// isContinuation reports a wrapped description row: no date, no amounts,
// some description text.
func (e *Engine) isContinuation(raw []string) bool {
	fields := e.cfg.Schema.Fields
	hasDate, hasDesc := false, false
	for i, f := range fields {
		switch {
		case f.Role == constants.RoleDate:
			hasDate = true
			if raw[i] != "" {
				return false
			}
		case f.Role.IsAmount():
			if raw[i] != "" {
				return false
			}
		case f.Role == constants.RoleDescription:
			if raw[i] != "" {
				hasDesc = true
			}
		}
	}
	return hasDate && hasDesc
}

func (e *Engine) appendDescription(dst, src []string) {
	for i, f := range e.cfg.Schema.Fields {
		if f.Role == constants.RoleDescription && src[i] != "" {
			dst[i] = strings.TrimSpace(dst[i] + " " + src[i])
		}
	}
}
