package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// maxDigits bounds an amount's significant digits.
const maxDigits = 18

// Amount is an exact decimal. Constructors route through canonical, so two
// equal amounts also share one internal representation.
type Amount struct {
	d decimal.Decimal
}

func canonical(d decimal.Decimal) Amount {
	return Amount{d: decimal.RequireFromString(d.String())}
}

// MustParseAmount parses a plain decimal ("-1234.5"). It panics on
// malformed input and is meant for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := parsePlain(s)
	if err != nil {
		panic(err)
	}
	return a
}

func parsePlain(s string) (Amount, error) {
	unsigned := strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(unsigned, ".")
	if intPart == "" || strings.Trim(intPart+frac, "0123456789") != "" {
		return Amount{}, fmt.Errorf("amount %q: not a plain decimal", s)
	}
	if significant(intPart, frac) > maxDigits {
		return Amount{}, fmt.Errorf("amount %q exceeds %d significant digits", s, maxDigits)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("amount %q: %w", s, err)
	}
	return canonical(d), nil
}

// significant counts digits from the first non-zero one, ignoring trailing
// fractional zeros.
func significant(intPart, frac string) int {
	return len(strings.TrimLeft(intPart+strings.TrimRight(frac, "0"), "0"))
}

// Neg returns -a.
func (a Amount) Neg() Amount { return canonical(a.d.Neg()) }

// Abs returns |a|.
func (a Amount) Abs() Amount { return canonical(a.d.Abs()) }

// Shift returns a * 10^places.
func (a Amount) Shift(places int32) Amount { return canonical(a.d.Shift(places)) }

// Sign returns -1, 0 or +1.
func (a Amount) Sign() int { return a.d.Sign() }

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// Cmp compares a and b numerically.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

// Equal reports numeric equality.
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

// Decimal exposes the underlying value.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// Float64 returns the nearest float64; only for presentation (spreadsheets).
func (a Amount) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}

// digits returns the integer and fractional digit strings of |a| with at
// least minFrac fractional digits.
func (a Amount) digits(minFrac int) (string, string) {
	intPart, frac, _ := strings.Cut(a.d.Abs().String(), ".")
	for len(frac) < minFrac {
		frac += "0"
	}
	return intPart, frac
}

// String renders the canonical form: no grouping, '.' decimal point,
// minimal fractional digits. Exactly three fractional digits are padded to
// four so that re-parsing cannot mistake the point for a thousands
// separator.
func (a Amount) String() string {
	s := a.d.String()
	if _, frac, ok := strings.Cut(s, "."); ok && len(frac) == 3 {
		s += "0"
	}
	return s
}

// Date is a civil calendar date with no time zone.
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate builds a date; out-of-range parts are normalized the way
// time.Date normalizes them.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{year: y, month: m, day: d}
}

func (d Date) Year() int { return d.year }
func (d Date) Month() time.Month { return d.month }
func (d Date) Day() int { return d.day }
func (d Date) IsZero() bool { return d == Date{} }
func (d Date) Time() time.Time { return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC) }
func (d Date) Format(layout string) string { return d.Time().Format(layout) }

// String renders ISO-8601.
func (d Date) String() string { return d.Format("2006-01-02") }

// Kind discriminates Value payloads.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindAmount
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindAmount:
		return "amount"
	case KindDate:
		return "date"
	}
	return "null"
}

// Value is one normalized field. The zero Value is Null, the explicit
// absence marker. Compare Values with Equal, not ==.
type Value struct {
	kind   Kind
	text   string
	amount Amount
	date   Date
}

func Null() Value { return Value{} }
func TextValue(s string) Value { return Value{kind: KindText, text: s} }
func AmountValue(a Amount) Value { return Value{kind: KindAmount, amount: a} }
func DateValue(d Date) Value { return Value{kind: KindDate, date: d} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Text() string { return v.text }
func (v Value) Amount() Amount { return v.amount }
func (v Value) Date() Date { return v.date }

// Equal is strict typed equality: same kind and same payload. Amounts
// compare by exact value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindAmount:
		return v.amount.Equal(o.amount)
	case KindDate:
		return v.date == o.date
	}
	return true
}

// Render renders v canonically, dates with layout.
func (v Value) Render(layout string) string {
	switch v.kind {
	case KindText:
		return v.text
	case KindAmount:
		return v.amount.String()
	case KindDate:
		return v.date.Format(layout)
	}
	return ""
}

// String is for logs and diffs.
func (v Value) String() string {
	if v.kind == KindNull {
		return "<null>"
	}
	return v.Render("2006-01-02")
}
