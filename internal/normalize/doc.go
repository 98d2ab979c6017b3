// Package normalize turns raw text pulled out of a statement into canonical
// typed values: exact decimal amounts, civil dates and cleaned text.
//
// All input is NFKC-canonicalized before any pattern matching. Unparseable
// input is always reported as a *NormalizationError; the package never
// substitutes a zero or empty value for content it could not read. Blank
// amount cells are the one exception and yield an explicit Null.
//
// Sign markers are case-sensitive: "DR" forces a debit (negative) and "CR" a
// credit (positive). Any other casing of those letters is inert annotation.
package normalize
