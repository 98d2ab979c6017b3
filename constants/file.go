package constants

import (
	"bytes"
	"strings"
)

// Document formats understood by the loader.
const (
	PDF  = "PDF"
	TEXT = "TEXT"
	XLSX = "XLSX"
	CSV  = "CSV"
)

// Layout conventions for per-source assets.
const (
	DefaultDataDir    = "data"
	DefaultParsersDir = "custom_parsers"
	DefaultDebugDir   = "debug"

	SampleSuffix     = "_sample"
	GroundTruthName  = "result"
	ParserSuffix     = "_parser.json"
	GotSuffix        = "_got.csv"
	ExpectedSuffix   = "_expected.csv"
	WorkbookSuffix   = "_debug.xlsx"
	DefaultMinRows   = 1
	DefaultDateOut   = "02-01-2006"
	DefaultCurrency  = "₹$£€¥"
	DefaultPdftotext = "pdftotext"
)

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a normalized extension to a document format; "" when
// the extension says nothing (callers then sniff the content).
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "txt", "text":
		return TEXT
	case "xlsx", "xlsm":
		return XLSX
	case "csv":
		return CSV
	}
	return ""
}

// SniffFormat guesses the format from the leading bytes of a file.
func SniffFormat(head []byte) string {
	switch {
	case bytes.HasPrefix(head, []byte("%PDF-")):
		return PDF
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		return XLSX
	}
	return TEXT
}
