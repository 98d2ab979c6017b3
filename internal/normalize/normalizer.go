package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/joseph-ayodele/statement-agent/constants"
)

// DefaultDatePatterns are the recognized input layouts, tried in order.
// Day-first; four-digit years before two-digit years so "01-08-2024" is
// never read as year 20.
var DefaultDatePatterns = []string{
	"2-1-2006",
	"2/1/2006",
	"2.1.2006",
	"2-Jan-2006",
	"2 Jan 2006",
	"2 January 2006",
	"2006-01-02",
	"2-1-06",
	"2/1/06",
	"2.1.06",
	"2-Jan-06",
	"2 Jan 06",
	"02012006",
}

// Options configures a Normalizer. Zero fields take defaults.
type Options struct {
	DatePatterns     []string
	OutputDateLayout string
	CurrencySymbols  string // each rune is stripped before amount parsing
	Locale           constants.Locale
	// AmbiguousDecimal reads a lone separator followed by exactly three
	// digits as a decimal point when no locale hint decides it.
	AmbiguousDecimal bool
}

// DefaultOptions returns the built-in configuration.
func DefaultOptions() Options {
	return Options{
		DatePatterns:     append([]string(nil), DefaultDatePatterns...),
		OutputDateLayout: constants.DefaultDateOut,
		CurrencySymbols:  constants.DefaultCurrency,
	}
}

// Normalizer is safe for concurrent use once built.
type Normalizer struct {
	opts     Options
	currency map[rune]struct{}
}

// New builds a Normalizer, filling unset options with defaults.
func New(opts Options) *Normalizer {
	def := DefaultOptions()
	if len(opts.DatePatterns) == 0 {
		opts.DatePatterns = def.DatePatterns
	} else {
		opts.DatePatterns = append([]string(nil), opts.DatePatterns...)
	}
	if opts.OutputDateLayout == "" {
		opts.OutputDateLayout = def.OutputDateLayout
	}
	if opts.CurrencySymbols == "" {
		opts.CurrencySymbols = def.CurrencySymbols
	}
	currency := make(map[rune]struct{})
	for _, r := range norm.NFKC.String(opts.CurrencySymbols) {
		currency[r] = struct{}{}
	}
	return &Normalizer{opts: opts, currency: currency}
}

// Options returns a copy of the effective options.
func (n *Normalizer) Options() Options {
	o := n.opts
	o.DatePatterns = append([]string(nil), n.opts.DatePatterns...)
	return o
}

// OutputDateLayout is the layout rendered dates use.
func (n *Normalizer) OutputDateLayout() string { return n.opts.OutputDateLayout }

// Canonicalize applies NFKC and folds Unicode minus signs to '-'.
func Canonicalize(s string) string {
	s = norm.NFKC.String(s)
	return strings.NewReplacer("−", "-", "‒", "-", "‐", "-").Replace(s)
}

// Normalize coerces raw to the typed value for role.
func (n *Normalizer) Normalize(raw string, role constants.Role) (Value, error) {
	switch role.Type() {
	case constants.TypeAmount:
		return n.amount(raw, role)
	case constants.TypeDate:
		d, err := n.date(raw, role)
		if err != nil {
			return Null(), err
		}
		return DateValue(d), nil
	}
	return TextValue(CleanText(raw)), nil
}

// Render renders v in canonical text form; Normalize(Render(v)) == v.
func (n *Normalizer) Render(v Value) string {
	return v.Render(n.opts.OutputDateLayout)
}

// CleanText canonicalizes and collapses runs of whitespace.
func CleanText(raw string) string {
	return strings.Join(strings.Fields(Canonicalize(raw)), " ")
}
