package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statement-agent/constants"
)

var (
	reMarker  = regexp.MustCompile(`(?i)dr|cr`)
	reNumeric = regexp.MustCompile(`^[0-9](?:[0-9.,]*[0-9])?$`)
)

// quote-like thousands separators ("1'234.50", "1’234.50")
var groupQuotes = map[rune]struct{}{'\'': {}, '’': {}, '`': {}}

func isBlankAmount(s string) bool {
	switch s {
	case "", "-", "--", "—", "–":
		return true
	}
	return false
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// markerSpans returns the DR/CR occurrences (any case) that stand as their
// own token.
func markerSpans(s string) [][]int {
	var spans [][]int
	for _, loc := range reMarker.FindAllStringIndex(s, -1) {
		if loc[0] > 0 && isASCIILetter(s[loc[0]-1]) {
			continue
		}
		if loc[1] < len(s) && isASCIILetter(s[loc[1]]) {
			continue
		}
		// abbreviation period: "100 Dr."
		if loc[1] < len(s) && s[loc[1]] == '.' && (loc[1]+1 == len(s) || s[loc[1]+1] == ' ') {
			loc[1]++
		}
		spans = append(spans, loc)
	}
	return spans
}

// markers reports which sign markers s carries. Only upper-case DR and CR
// count; other spellings are annotation.
func markers(s string, spans [][]int) (dr, cr bool) {
	for _, loc := range spans {
		switch strings.TrimSuffix(s[loc[0]:loc[1]], ".") {
		case "DR":
			dr = true
		case "CR":
			cr = true
		}
	}
	return dr, cr
}

func stripMarkers(s string, spans [][]int) string {
	var b strings.Builder
	last := 0
	for _, loc := range spans {
		b.WriteString(s[last:loc[0]])
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func (n *Normalizer) amount(raw string, role constants.Role) (Value, error) {
	s := strings.TrimSpace(Canonicalize(raw))
	if isBlankAmount(s) {
		return Null(), nil
	}

	spans := markerSpans(s)
	dr, cr := markers(s, spans)
	if dr && cr {
		return Null(), failf(raw, role, "both DR and CR markers present")
	}
	s = stripMarkers(s, spans)

	var b strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		if _, ok := n.currency[r]; ok {
			continue
		}
		if _, ok := groupQuotes[r]; ok {
			continue
		}
		b.WriteRune(r)
	}
	s = b.String()

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	switch {
	case strings.HasPrefix(s, "-"):
		if neg {
			return Null(), failf(raw, role, "minus sign inside parentheses")
		}
		neg = true
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		if neg {
			return Null(), failf(raw, role, "minus sign inside parentheses")
		}
		neg = true
		s = s[:len(s)-1]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if s == "" {
		return Null(), failf(raw, role, "no digits")
	}
	if s[0] == '.' || s[0] == ',' {
		s = "0" + s
	}
	if !reNumeric.MatchString(s) {
		return Null(), failf(raw, role, "unrecognized characters")
	}

	a, reason := n.magnitude(s)
	if reason != "" {
		return Null(), failf(raw, role, "%s", reason)
	}
	switch {
	case dr:
		neg = true
	case cr:
		neg = false
	}
	if neg {
		a = a.Neg()
	}
	return AmountValue(a), nil
}

// magnitude parses digits with '.'/',' separators. It returns a non-empty
// reason on failure.
func (n *Normalizer) magnitude(s string) (Amount, string) {
	dots, commas := strings.Count(s, "."), strings.Count(s, ",")

	var intPart, frac string
	var group rune
	switch {
	case dots == 0 && commas == 0:
		intPart = s
	case dots > 0 && commas > 0:
		idx := strings.LastIndexAny(s, ".,")
		dec := rune(s[idx])
		group = ','
		if dec == ',' {
			group = '.'
		}
		if strings.Count(s, string(dec)) > 1 {
			return Amount{}, "decimal separator " + strconv.QuoteRune(dec) + " repeats"
		}
		intPart, frac = s[:idx], s[idx+1:]
	default:
		sep := '.'
		if commas > 0 {
			sep = ','
		}
		if dots+commas > 1 {
			// a separator that repeats can only be grouping
			intPart, group = s, sep
			break
		}
		idx := strings.IndexRune(s, sep)
		trailing := len(s) - idx - 1
		if trailing == 3 && !n.threeDigitsAreDecimal(sep) {
			intPart, group = s, sep
			break
		}
		intPart, frac = s[:idx], s[idx+1:]
	}

	digits, reason := ungroup(intPart, group)
	if reason != "" {
		return Amount{}, reason
	}
	if significant(digits, frac) > maxDigits {
		return Amount{}, "too many digits"
	}
	plain := digits
	if frac != "" {
		plain += "." + frac
	}
	d, err := decimal.NewFromString(plain)
	if err != nil {
		return Amount{}, "out of range"
	}
	return canonical(d), ""
}

// threeDigitsAreDecimal resolves "1,234" / "1.234": thousands unless a
// locale hint names sep as its decimal point, or the ambiguity policy says
// decimal when there is no hint.
func (n *Normalizer) threeDigitsAreDecimal(sep rune) bool {
	if dec := n.opts.Locale.DecimalSeparator(); dec != 0 {
		return sep == dec
	}
	return n.opts.AmbiguousDecimal
}

// ungroup validates digit grouping and strips group separators. Accepted:
// western (leftmost 1-3 digits, then groups of 3) and Indian (leftmost 1-2,
// then groups of 2, last group of 3).
func ungroup(intPart string, group rune) (string, string) {
	if group == 0 {
		return intPart, ""
	}
	parts := strings.Split(intPart, string(group))
	if len(parts) == 1 {
		return intPart, ""
	}
	for _, p := range parts {
		if p == "" {
			return "", "empty digit group"
		}
	}
	first, rest := parts[0], parts[1:]
	western := len(first) <= 3
	for _, p := range rest {
		if len(p) != 3 {
			western = false
		}
	}
	if western {
		return strings.Join(parts, ""), ""
	}
	indian := len(first) <= 2 && len(rest[len(rest)-1]) == 3
	for _, p := range rest[:len(rest)-1] {
		if len(p) != 2 {
			indian = false
		}
	}
	if indian {
		return strings.Join(parts, ""), ""
	}
	return "", "invalid digit grouping " + strconv.Quote(intPart)
}

// SignMarkers reports whether s carries the sign markers DR or CR as
// standalone upper-case tokens.
func SignMarkers(s string) (dr, cr bool) {
	return markers(s, markerSpans(s))
}
