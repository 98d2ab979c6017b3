package verify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/statement-agent/internal/table"
)

// Kind classifies a mismatch.
type Kind string

const (
	KindSchema   Kind = "schema"
	KindRowCount Kind = "row_count"
	KindValue    Kind = "value"
)

// Mismatch is one difference between the extracted and expected tables.
// Row is the 0-based record index, -1 for table-level mismatches.
type Mismatch struct {
	Row      int
	Field    string
	Expected string
	Actual   string
	Kind     Kind
}

func (m Mismatch) String() string {
	switch m.Kind {
	case KindSchema:
		return fmt.Sprintf("schema: got %s, expected %s", m.Actual, m.Expected)
	case KindRowCount:
		return fmt.Sprintf("row count: got %s, expected %s", m.Actual, m.Expected)
	}
	return fmt.Sprintf("(%d, %q, %s, %s)", m.Row, m.Field, m.Actual, m.Expected)
}

// Compare checks got against want by strict typed equality: schema first
// (names, order, types), then row count, then every cell. A row-count
// mismatch still lists the value diffs of the overlapping rows.
func Compare(got, want *table.Table) []Mismatch {
	if !got.Schema.Equal(want.Schema) {
		return []Mismatch{{
			Row:      -1,
			Expected: want.Schema.String(),
			Actual:   got.Schema.String(),
			Kind:     KindSchema,
		}}
	}

	var out []Mismatch
	if got.Len() != want.Len() {
		out = append(out, Mismatch{
			Row:      -1,
			Expected: strconv.Itoa(want.Len()),
			Actual:   strconv.Itoa(got.Len()),
			Kind:     KindRowCount,
		})
	}
	for i := 0; i < min(got.Len(), want.Len()); i++ {
		g, w := got.Records[i], want.Records[i]
		for j, f := range want.Schema.Fields {
			if g[j].Equal(w[j]) {
				continue
			}
			out = append(out, Mismatch{
				Row:      i,
				Field:    f.Name,
				Expected: w[j].String(),
				Actual:   g[j].String(),
				Kind:     KindValue,
			})
		}
	}
	return out
}

// DiffText renders mismatches the way the refinement prompt and the CLI
// show them, listing at most maxDiffs value diffs.
func DiffText(ms []Mismatch, maxDiffs int) string {
	if len(ms) == 0 {
		return ""
	}
	var b strings.Builder
	var values []Mismatch
	for _, m := range ms {
		switch m.Kind {
		case KindSchema:
			fmt.Fprintf(&b, "Column schema mismatch.\n  got: %s\n  exp: %s\n", m.Actual, m.Expected)
		case KindRowCount:
			fmt.Fprintf(&b, "Row count mismatch: got %s, expected %s\n", m.Actual, m.Expected)
		default:
			values = append(values, m)
		}
	}
	if len(values) > 0 {
		b.WriteString("First diffs (row, col, got, exp):\n")
		for i, m := range values {
			if maxDiffs > 0 && i == maxDiffs {
				fmt.Fprintf(&b, "  ... %d more\n", len(values)-maxDiffs)
				break
			}
			fmt.Fprintf(&b, "  %s\n", m)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
