package constants

import (
	"fmt"
	"strings"
)

// Locale is a hint for amount separator disambiguation.
type Locale string

const (
	LocaleNone Locale = ""
	LocaleUS   Locale = "US" // '.' decimal, ',' thousands
	LocaleEU   Locale = "EU" // ',' decimal, '.' thousands
	LocaleIN   Locale = "IN" // '.' decimal, ',' lakh/crore grouping
)

// ParseLocale accepts none/US/EU/IN in any case.
func ParseLocale(s string) (Locale, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE":
		return LocaleNone, nil
	case "US":
		return LocaleUS, nil
	case "EU":
		return LocaleEU, nil
	case "IN":
		return LocaleIN, nil
	}
	return LocaleNone, fmt.Errorf("unknown locale hint %q (want none, US, EU or IN)", s)
}

// DecimalSeparator returns the decimal separator the locale implies, or 0
// when there is no hint.
func (l Locale) DecimalSeparator() rune {
	switch l {
	case LocaleUS, LocaleIN:
		return '.'
	case LocaleEU:
		return ','
	}
	return 0
}

func (l Locale) String() string {
	if l == LocaleNone {
		return "none"
	}
	return string(l)
}
