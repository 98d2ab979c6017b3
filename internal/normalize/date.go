package normalize

import (
	"strings"
	"time"

	"github.com/joseph-ayodele/statement-agent/constants"
)

func (n *Normalizer) date(raw string, role constants.Role) (Date, error) {
	s := CleanText(raw)
	if s == "" {
		return Date{}, failf(raw, role, "empty date")
	}
	for _, layout := range n.opts.DatePatterns {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, failf(raw, role, "matches none of %d recognized date patterns", len(n.opts.DatePatterns))
}

// ParseDate parses s with the configured patterns.
func (n *Normalizer) ParseDate(s string) (Date, error) {
	return n.date(s, constants.RoleDate)
}

// LooksLikeDate reports whether s parses as a date. Used for row detection
// only; the field's value is still produced by Normalize.
func (n *Normalizer) LooksLikeDate(s string) bool {
	_, err := n.date(s, constants.RoleDate)
	return err == nil
}

// LeadingDate finds a date at the start of line spanning one to three
// whitespace-separated tokens. It returns the date text and the remainder.
func (n *Normalizer) LeadingDate(line string) (string, string, bool) {
	fields := strings.Fields(line)
	for width := 3; width >= 1; width-- {
		if len(fields) < width {
			continue
		}
		cand := strings.Join(fields[:width], " ")
		if n.LooksLikeDate(cand) {
			return cand, strings.Join(fields[width:], " "), true
		}
	}
	return "", line, false
}
