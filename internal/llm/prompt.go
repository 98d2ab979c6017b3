package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/statement-agent/constants"
)

const (
	maxDocumentChars = 6000
	maxTruthChars    = 2000
)

// BuildSystemPrompt describes the program format and the rules a program
// is judged by.
func BuildSystemPrompt() string {
	parts := []string{
		"You write extractor programs for bank statements. Return ONLY a JSON object that matches the provided JSON Schema.",
		"A program lists the output columns in order with a role each. Roles: " + strings.Join(constants.RolesAsStringSlice(), ", ") + ".",
		"The column names, their order and their roles must equal the ground-truth CSV header exactly.",
		"The engine first reads tables detected in the layout text; when that yields fewer than min_rows rows it reads transaction lines with the segmenters.",
		"Segmenter kinds: 'tokens' (leading date, trailing numbers with the balance last), 'columns' (fixed character ranges; field \"@amount\" is an amount whose debit/credit side is inferred), 'delimiter' (regexp split with an exact field count).",
		"date_patterns are Go time layouts (reference date 2 Jan 2006), tried in order. output_date_layout is how dates are rendered.",
		"locale is one of none, US, EU, IN and decides which separator is decimal. Set ambiguous_decimal when a lone separator followed by three digits is a decimal point.",
		"Keep the program minimal: omit any field whose default is right.",
		"Success is binary: every cell must equal the ground truth after normalization.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the source material and, on refinement, the
// previous program with its diff.
func BuildUserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\n", req.Source)
	b.WriteString("Columns (name:role):")
	for _, f := range req.Schema.Fields {
		fmt.Fprintf(&b, " %s:%s", f.Name, f.Role)
	}
	b.WriteString("\n\nGround truth CSV (head):\n")
	b.WriteString(clip(string(req.TruthCSV), maxTruthChars))
	b.WriteString("\n\nStatement text (layout preserved, pages separated by form feeds):\n")
	b.WriteString(clip(req.DocumentText, maxDocumentChars))

	if req.Refining() {
		prev, err := json.MarshalIndent(req.Previous, "", "  ")
		if err == nil {
			b.WriteString("\n\nThe previous program failed verification:\n")
			b.Write(prev)
		}
		b.WriteString("\n\nDiff against the ground truth:\n")
		b.WriteString(req.Diagnostic.Diff)
		b.WriteString("\n\nReturn a corrected program.")
	}
	return b.String()
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut] + "\n…(truncated)"
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
