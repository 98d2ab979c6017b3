package normalize

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/statement-agent/constants"
)

// FormatAmount renders a in a locale's display convention with at least two
// fractional digits: US "1,234.56", EU "1.234,56", IN "1,23,456.78".
// LocaleNone renders like US, except that exactly three fractional digits
// are padded to four: without a hint "1.234" would read back as thousands.
func FormatAmount(a Amount, loc constants.Locale) string {
	intPart, frac := a.digits(2)
	if loc == constants.LocaleNone && len(frac) == 3 {
		frac += "0"
	}
	dec, group := ".", ","
	if loc == constants.LocaleEU {
		dec, group = ",", "."
	}

	var grouped string
	if loc == constants.LocaleIN {
		grouped = groupIndian(intPart, group)
	} else {
		grouped = groupBy3(intPart, group)
	}
	out := grouped + dec + frac
	if a.Sign() < 0 {
		out = "-" + out
	}
	return out
}

func groupBy3(s, sep string) string {
	if len(s) <= 3 {
		return s
	}
	head := len(s) % 3
	var parts []string
	if head > 0 {
		parts = append(parts, s[:head])
	}
	for i := head; i < len(s); i += 3 {
		parts = append(parts, s[i:i+3])
	}
	return strings.Join(parts, sep)
}

func groupIndian(s, sep string) string {
	if len(s) <= 3 {
		return s
	}
	head, last := s[:len(s)-3], s[len(s)-3:]
	var parts []string
	if len(head)%2 == 1 {
		parts = append(parts, head[:1])
		head = head[1:]
	}
	for i := 0; i < len(head); i += 2 {
		parts = append(parts, head[i:i+2])
	}
	return strings.Join(append(parts, last), sep)
}

var (
	reTrailingMarker  = regexp.MustCompile(`(?i)\s*\b(CR|DR)\s*$`)
	reTrailingNumbers = regexp.MustCompile(`(?:\s+[(\-]?\d[\d,.']*\)?)+\s*$`)
)

// CleanDescription drops a trailing DR/CR annotation and trailing numeric
// residue (amounts that bled into the description column).
func CleanDescription(s string) string {
	t := CleanText(s)
	t = reTrailingMarker.ReplaceAllString(t, "")
	t = reTrailingNumbers.ReplaceAllString(t, "")
	return strings.TrimSpace(t)
}
