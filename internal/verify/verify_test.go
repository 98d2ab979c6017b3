package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/statement-agent/internal/common"
	"github.com/joseph-ayodele/statement-agent/internal/document"
	"github.com/joseph-ayodele/statement-agent/internal/normalize"
	"github.com/joseph-ayodele/statement-agent/internal/parser"
	"github.com/joseph-ayodele/statement-agent/internal/table"
)

const truthCSV = `Date,Description,Debit Amt,Credit Amt,Balance
01-08-2024,Salary Credit,,1500.00,2500.00
02-08-2024,ATM Withdrawal,200.00,,2300.00
03-08-2024,Card Payment,10.00,,2290.00
`

func loadTruth(t *testing.T) *table.Table {
	t.Helper()
	truth, err := table.ReadCSV(strings.NewReader(truthCSV), normalize.New(normalize.DefaultOptions()))
	require.NoError(t, err)
	require.Equal(t, 3, truth.Len())
	return truth
}

func returning(tb *table.Table) parser.Extractor {
	return parser.Func(func(context.Context, string) (*table.Table, error) { return tb.Clone(), nil })
}

func newVerifier(t *testing.T, xlsx bool) (*Verifier, string) {
	dir := filepath.Join(t.TempDir(), "debug")
	return New(Config{DebugDir: dir, WriteXLSX: xlsx}, nil, nil), dir
}

func TestVerifyPasses(t *testing.T) {
	truth := loadTruth(t)
	v, dir := newVerifier(t, true)

	require.NoError(t, os.MkdirAll(dir, 0o755))
	stale := filepath.Join(dir, "acme_got.csv")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	res, err := v.Verify(context.Background(), returning(truth), "acme", "doc.pdf", truth)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Empty(t, res.Mismatches)
	assert.Empty(t, res.Diff)
	assert.Empty(t, res.Artifacts)
	assert.NoFileExists(t, stale)
}

func TestVerifyOneUnitInLastDigit(t *testing.T) {
	truth := loadTruth(t)
	got := truth.Clone()
	got.Records[2][2] = normalize.AmountValue(normalize.MustParseAmount("10.01"))

	v, dir := newVerifier(t, false)
	res, err := v.Verify(context.Background(), returning(got), "acme", "doc.pdf", truth)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	require.Len(t, res.Mismatches, 1)
	assert.Equal(t, Mismatch{Row: 2, Field: "Debit Amt", Expected: "10", Actual: "10.01", Kind: KindValue}, res.Mismatches[0])
	assert.Contains(t, res.Diff, "First diffs (row, col, got, exp):")

	assert.Equal(t, []string{
		filepath.Join(dir, "acme_got.csv"),
		filepath.Join(dir, "acme_expected.csv"),
	}, res.Artifacts)
	for _, p := range res.Artifacts {
		assert.FileExists(t, p)
	}
	b, err := os.ReadFile(res.Artifacts[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), "10.01")
}

func TestVerifyExtractorPanics(t *testing.T) {
	truth := loadTruth(t)
	v, _ := newVerifier(t, false)
	ext := parser.Func(func(context.Context, string) (*table.Table, error) {
		panic("index out of range")
	})

	res, err := v.Verify(context.Background(), ext, "acme", "doc.pdf", truth)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	require.Len(t, res.Mismatches, 1)
	assert.Equal(t, KindSchema, res.Mismatches[0].Kind)
	assert.Contains(t, res.ExtractorError, "extractor panicked")
	assert.Contains(t, res.Diff, "Column schema mismatch")
}

func TestVerifyExtractorErrors(t *testing.T) {
	truth := loadTruth(t)
	v, _ := newVerifier(t, false)

	failing := parser.Func(func(context.Context, string) (*table.Table, error) {
		return nil, errors.New("no rows")
	})
	res, err := v.Verify(context.Background(), failing, "acme", "doc.pdf", truth)
	require.NoError(t, err)
	assert.Equal(t, "no rows", res.ExtractorError)
	assert.Len(t, res.Artifacts, 2)

	missing := parser.Func(func(context.Context, string) (*table.Table, error) {
		return nil, common.EnvironmentError("stat doc.pdf", os.ErrNotExist)
	})
	_, err = v.Verify(context.Background(), missing, "acme", "doc.pdf", truth)
	assert.True(t, common.IsEnvironment(err))
}

func TestVerifySchemaBeforeRows(t *testing.T) {
	truth := loadTruth(t)
	got := table.New(table.SchemaFromHeader([]string{"WRONG"}))
	got.Records = append(got.Records, table.Record{normalize.TextValue("x")})

	v, _ := newVerifier(t, true)
	res, err := v.Verify(context.Background(), returning(got), "acme", "doc.pdf", truth)
	require.NoError(t, err)
	require.Len(t, res.Mismatches, 1)
	assert.Equal(t, KindSchema, res.Mismatches[0].Kind)
	assert.True(t, strings.HasPrefix(res.Diff, "Column schema mismatch."))
	require.Len(t, res.Artifacts, 3)

	f, err := excelize.OpenFile(res.Artifacts[2])
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"got", "expected", "mismatches"}, f.GetSheetList())
}

func TestVerifyRowCount(t *testing.T) {
	truth := loadTruth(t)
	got := truth.Clone()
	got.Records = got.Records[:2]
	got.Records[1] = append(table.Record(nil), got.Records[1]...)
	got.Records[1][1] = normalize.TextValue("ATM")

	ms := Compare(got, truth)
	require.Len(t, ms, 2)
	assert.Equal(t, KindRowCount, ms[0].Kind)
	assert.Equal(t, "2", ms[0].Actual)
	assert.Equal(t, "3", ms[0].Expected)
	assert.Equal(t, Mismatch{Row: 1, Field: "Description", Expected: "ATM Withdrawal", Actual: "ATM", Kind: KindValue}, ms[1])

	diff := DiffText(ms, 10)
	assert.Contains(t, diff, "Row count mismatch: got 2, expected 3")
	assert.Contains(t, diff, "First diffs")
	assert.Contains(t, diff, `(1, "Description", ATM, ATM Withdrawal)`)
}

func TestVerifySwappedDates(t *testing.T) {
	truth := loadTruth(t)
	got := truth.Clone()
	for _, rec := range got.Records {
		d := rec[0].Date()
		rec[0] = normalize.DateValue(normalize.NewDate(d.Year(), time.Month(d.Day()), int(d.Month())))
	}

	ms := Compare(got, truth)
	require.Len(t, ms, 3)
	for i, m := range ms {
		assert.Equal(t, i, m.Row)
		assert.Equal(t, "Date", m.Field)
	}
	diff := DiffText(ms, 2)
	assert.Contains(t, diff, "... 1 more")
}

func TestVerifyProgramExtractor(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "acme_sample.csv")
	require.NoError(t, os.WriteFile(doc, []byte(truthCSV), 0o644))
	truth := loadTruth(t)

	p := parser.NewProgram("acme", truth.Schema)
	ext, err := parser.NewProgramExtractor(p, document.Config{}, nil)
	require.NoError(t, err)

	v := New(Config{DebugDir: filepath.Join(dir, "debug")}, nil, nil)
	res, err := v.Verify(context.Background(), ext, "acme", doc, truth)
	require.NoError(t, err)
	assert.True(t, res.Passed, res.Diff)
	assert.NoDirExists(t, filepath.Join(dir, "debug"))
}
