package extract

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/document"
	"github.com/joseph-ayodele/statement-agent/internal/normalize"
	"github.com/joseph-ayodele/statement-agent/internal/table"
)

var truthHeader = []string{"Date", "Description", "Debit Amt", "Credit Amt", "Balance"}

func amt(s string) normalize.Value { return normalize.AmountValue(normalize.MustParseAmount(s)) }
func txt(s string) normalize.Value { return normalize.TextValue(s) }
func day(d int) normalize.Value {
	return normalize.DateValue(normalize.NewDate(2024, time.August, d))
}

var null = normalize.Null()

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Schema.Width() == 0 {
		cfg.Schema = table.SchemaFromHeader(truthHeader)
	}
	e, err := NewEngine(cfg, normalize.New(normalize.Options{}), nil)
	require.NoError(t, err)
	return e
}

func layoutRow(date, desc, debit, credit, bal string) string {
	return fmt.Sprintf("%-12s%-28s%8s    %9s   %9s", date, desc, debit, credit, bal)
}

func gridStatement() *document.Document {
	text := strings.Join([]string{
		"ACME BANK",
		"",
		layoutRow("Date", "Description", "Debit", "Credit", "Balance"),
		layoutRow("01-08-2024", "Opening balance", "", "", "1,000.00"),
		layoutRow("02-08-2024", "Salary ACME", "", "50,000.00", "51,000.00"),
		layoutRow("05-08-2024", "ATM withdrawal", "2,000.00", "", "49,000.00"),
		layoutRow("", "Koramangala branch", "", "", ""),
		layoutRow("07-08-2024", "Card purchase", "1,250.50", "", "47,749.50"),
	}, "\n")
	return document.FromText("grid.txt", constants.TEXT, text, document.GridOptions{})
}

func lineStatement() *document.Document {
	text := strings.Join([]string{
		"Statement for ACME",
		"Date Description Debit Credit Balance",
		"01-08-2024 Opening balance 1,000.00",
		"02-08-2024 Salary credit ACME 50,000.00 51,000.00",
		"05-08-2024 ATM CASH WITHDRAWAL 2,000.00 49,000.00",
		"   Koramangala branch",
		"07-08-2024 POS 4411 ACME MART 1,250.50 47,749.50",
		"Page 1 of 2",
		"\f09-08-2024 Refund ACME 100.00 CR 47,849.50",
		"10-08-2024 Service charge 50.00 DR 47,799.50",
		"Closing balance 47,799.50",
	}, "\n")
	return document.FromText("lines.txt", constants.TEXT, text, document.GridOptions{})
}

func TestTableStrategy(t *testing.T) {
	e := newEngine(t, Config{})
	res, err := e.Extract(gridStatement())
	require.NoError(t, err)

	assert.Equal(t, StrategyTable, res.Strategy)
	assert.Equal(t, 4, res.TableRows)
	assert.Zero(t, res.LineRows)
	assert.Equal(t, []table.Record{
		{day(1), txt("Opening balance"), null, null, amt("1000")},
		{day(2), txt("Salary ACME"), null, amt("50000"), amt("51000")},
		{day(5), txt("ATM withdrawal Koramangala branch"), amt("2000"), null, amt("49000")},
		{day(7), txt("Card purchase"), amt("1250.5"), null, amt("47749.5")},
	}, res.Table.Records)
}

func TestFallbackToLineStrategy(t *testing.T) {
	e := newEngine(t, Config{})
	res, err := e.Extract(lineStatement())
	require.NoError(t, err)

	assert.Equal(t, StrategyLine, res.Strategy)
	assert.Zero(t, res.TableRows)
	assert.Equal(t, 6, res.LineRows)
	assert.Equal(t, []table.Record{
		{day(1), txt("Opening balance"), null, null, amt("1000")},
		{day(2), txt("Salary credit ACME"), null, amt("50000"), amt("51000")},
		{day(5), txt("ATM CASH WITHDRAWAL Koramangala branch"), amt("2000"), null, amt("49000")},
		{day(7), txt("POS 4411 ACME MART"), amt("1250.5"), null, amt("47749.5")},
		{day(9), txt("Refund ACME"), null, amt("100"), amt("47849.5")},
		{day(10), txt("Service charge"), amt("50"), null, amt("47799.5")},
	}, res.Table.Records)
}

func TestExtractIsDeterministic(t *testing.T) {
	e := newEngine(t, Config{})
	for _, doc := range []*document.Document{gridStatement(), lineStatement()} {
		first, err := e.Extract(doc)
		require.NoError(t, err)
		second, err := e.Extract(doc.Clone())
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestMinRowsThreshold(t *testing.T) {
	doc := &document.Document{Source: "mixed", Pages: []document.Page{{
		Number: 1,
		Lines: []string{
			"01-08-2024 Salary credit 500.00 500.00",
			"02-08-2024 UPI grocer 100.00 400.00",
			"03-08-2024 UPI fuel 50.00 350.00",
		},
		Blocks: []document.Block{{Kind: document.BlockTable, Rows: [][]string{
			{"Date", "Description", "Debit Amt", "Credit Amt", "Balance"},
			{"01-08-2024", "Salary credit", "", "500.00", "500.00"},
			{"02-08-2024", "UPI grocer", "100.00", "", "400.00"},
		}}},
	}}}

	res, err := newEngine(t, Config{MinRows: 2}).Extract(doc)
	require.NoError(t, err)
	assert.Equal(t, StrategyTable, res.Strategy)
	assert.Equal(t, 2, res.Table.Len())

	res, err = newEngine(t, Config{MinRows: 3}).Extract(doc)
	require.NoError(t, err)
	assert.Equal(t, StrategyLine, res.Strategy)
	assert.Equal(t, 3, res.Table.Len())
	assert.Equal(t, 2, res.TableRows)

	// the line strategy finds nothing: the table rows are kept
	doc.Pages[0].Lines = nil
	res, err = newEngine(t, Config{MinRows: 3}).Extract(doc)
	require.NoError(t, err)
	assert.Equal(t, StrategyTable, res.Strategy)
	assert.Equal(t, 2, res.Table.Len())
}

func TestSkippedRows(t *testing.T) {
	doc := &document.Document{Pages: []document.Page{{Number: 1, Blocks: []document.Block{{
		Kind: document.BlockTable,
		Rows: [][]string{
			{"Date", "Description", "Debit", "Credit", "Balance"},
			{"01-08-2024", "ok", "", "5.00", "5.00"},
			{"02-08-2024", "bad", "12a.00", "", "5.00"},
			{"Total", "", "", "", "5.00"},
		},
	}}}}}
	res, err := newEngine(t, Config{}).Extract(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Table.Len())
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, StrategyTable, res.Skipped[0].Strategy)
	assert.Equal(t, 3, res.Skipped[0].Row)
	assert.Contains(t, res.Skipped[0].Reason, `field "Debit Amt"`)
	assert.Contains(t, res.Skipped[1].Reason, `field "Date"`)
}

func TestSkippedRowsFollowReturnedStrategy(t *testing.T) {
	doc := &document.Document{Pages: []document.Page{{
		Number: 1,
		Lines: []string{
			"01-08-2024 Salary credit 500.00 500.00",
			"02-08-2024 UPI grocer 100.00 400.00",
			"03-08-2024 UPI fuel 50.00 350.00",
		},
		Blocks: []document.Block{{Kind: document.BlockTable, Rows: [][]string{
			{"Date", "Description", "Debit Amt", "Credit Amt", "Balance"},
			{"01-08-2024", "Salary credit", "", "500.00", "500.00"},
			{"02-08-2024", "UPI grocer", "1x0.00", "", "400.00"},
		}}},
	}}}

	res, err := newEngine(t, Config{}).Extract(doc)
	require.NoError(t, err)
	require.Equal(t, StrategyTable, res.Strategy)
	require.Len(t, res.Skipped, 1)

	res, err = newEngine(t, Config{MinRows: 3}).Extract(doc)
	require.NoError(t, err)
	assert.Equal(t, StrategyLine, res.Strategy)
	for _, s := range res.Skipped {
		assert.Equal(t, StrategyLine, s.Strategy, s.String())
	}
}

func TestExtractionError(t *testing.T) {
	doc := document.FromText("prose.txt", constants.TEXT, "Dear customer,\nthank you for banking with us.", document.GridOptions{})
	_, err := newEngine(t, Config{}).Extract(doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestHeaderlessGrids(t *testing.T) {
	rows := [][]string{
		{"01-08-2024", "Salary", "", "500.00", "500.00"},
		{"02-08-2024", "Rent", "200.00", "", "300.00"},
	}
	doc := &document.Document{Pages: []document.Page{{Number: 1, Blocks: []document.Block{{Kind: document.BlockTable, Rows: rows}}}}}
	res, err := newEngine(t, Config{}).Extract(doc)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Table.Len())

	// reordered columns need an explicit mapping
	swapped := [][]string{
		{"500.00", "01-08-2024", "Salary", "", "500.00", "x"},
		{"300.00", "02-08-2024", "Rent", "200.00", "", "y"},
	}
	doc.Pages[0].Blocks[0].Rows = swapped
	_, err = newEngine(t, Config{}).Extract(doc)
	assert.ErrorIs(t, err, ErrExtraction)

	res, err = newEngine(t, Config{PositionalColumns: []int{1, 2, 3, 4, 0}}).Extract(doc)
	require.NoError(t, err)
	assert.Equal(t, table.Record{day(2), txt("Rent"), amt("200"), null, amt("300")}, res.Table.Records[1])
}

func TestRepeatedHeadersAcrossPages(t *testing.T) {
	header := []string{"Txn Date", "Narration", "Withdrawal", "Deposit", "Closing Balance"}
	doc := &document.Document{Pages: []document.Page{
		{Number: 1, Blocks: []document.Block{{Kind: document.BlockTable, Rows: [][]string{
			header,
			{"01-08-2024", "Salary", "", "500.00", "500.00"},
		}}}},
		{Number: 2, Blocks: []document.Block{{Kind: document.BlockTable, Rows: [][]string{
			header,
			{"02-08-2024", "Rent", "200.00", "", "300.00"},
			header,
			{"03-08-2024", "Fuel", "50.00", "", "250.00"},
		}}}},
		{Number: 3, Blocks: []document.Block{{Kind: document.BlockTable, Rows: [][]string{
			{"04-08-2024", "Coffee", "5.00", "", "245.00"},
		}}}},
	}}
	res, err := newEngine(t, Config{}).Extract(doc)
	require.NoError(t, err)
	require.Equal(t, 4, res.Table.Len())
	assert.Equal(t, txt("Coffee"), res.Table.Records[3][1])
	assert.Empty(t, res.Skipped)
}

func TestHeaderSynonymOverride(t *testing.T) {
	doc := &document.Document{Pages: []document.Page{{Number: 1, Blocks: []document.Block{{Kind: document.BlockTable, Rows: [][]string{
		{"Posted", "Memo", "Out", "In", "Running"},
		{"01-08-2024", "Salary", "", "500.00", "500.00"},
	}}}}}}
	e := newEngine(t, Config{
		HeaderSynonyms: map[constants.Role][]string{
			constants.RoleDate:        {"posted"},
			constants.RoleDescription: {"memo"},
			constants.RoleDebit:       {"out"},
			constants.RoleCredit:      {"in"},
			constants.RoleBalance:     {"running"},
		},
		MinRows: 1,
	})
	res, err := e.Extract(doc)
	require.NoError(t, err)
	assert.Equal(t, StrategyTable, res.Strategy)
	assert.Equal(t, table.Record{day(1), txt("Salary"), null, amt("500"), amt("500")}, res.Table.Records[0])
}

func TestColumnsAndDelimiterSegmenters(t *testing.T) {
	schema := table.SchemaFromHeader([]string{"Date", "Description", "Amount"})
	doc := document.FromText("fixed.txt", constants.TEXT, strings.Join([]string{
		"01/08/2024 Salary              500.00",
		"02/08/2024 UPI ACME            -20.00",
		"03/08/2024|Refund|5.00",
	}, "\n"), document.GridOptions{MinCols: 4})

	e := newEngine(t, Config{
		Schema:           schema,
		DisableStitching: true,
		Segmenters: []Segmenter{
			{Kind: SegmentDelimiter, Pattern: `\|`, Fields: []string{"Date", "Description", "Amount"}},
			{Kind: SegmentColumns, Columns: []ColumnRange{
				{Field: "Date", Start: 0, End: 10},
				{Field: "Description", Start: 11, End: 30},
				{Field: "Amount", Start: 30},
			}},
		},
	})
	res, err := e.Extract(doc)
	require.NoError(t, err)
	assert.Equal(t, StrategyLine, res.Strategy)
	assert.Equal(t, []table.Record{
		{day(1), txt("Salary"), amt("500")},
		{day(2), txt("UPI ACME"), amt("-20")},
		{day(3), txt("Refund"), amt("5")},
	}, res.Table.Records)
}

func TestSignedAmountSchemaFromTokens(t *testing.T) {
	schema := table.SchemaFromHeader([]string{"Date", "Description", "Amount", "Balance"})
	doc := document.FromText("signed.txt", constants.TEXT, strings.Join([]string{
		"01-08-2024 Opening 100.00 100.00",
		"02-08-2024 Something 30.00 70.00",
		"03-08-2024 Interest credit 1.50 71.50",
	}, "\n"), document.GridOptions{})

	res, err := newEngine(t, Config{Schema: schema}).Extract(doc)
	require.NoError(t, err)
	assert.Equal(t, []table.Record{
		{day(1), txt("Opening"), amt("100"), amt("100")},
		{day(2), txt("Something"), amt("-30"), amt("70")},
		{day(3), txt("Interest credit"), amt("1.5"), amt("71.5")},
	}, res.Table.Records)
}

func TestLowercaseMarkerIsInert(t *testing.T) {
	doc := document.FromText("inert.txt", constants.TEXT, strings.Join([]string{
		"01-08-2024 Transfer 10.00 dr 500.00",
		"02-08-2024 Transfer 10.00 DR 490.00",
	}, "\n"), document.GridOptions{})
	res, err := newEngine(t, Config{}).Extract(doc)
	require.NoError(t, err)
	require.Equal(t, 2, res.Table.Len())
	// "dr" carries no sign: with no balance history the side defaults to credit
	assert.Equal(t, amt("10"), res.Table.Records[0][3])
	assert.True(t, res.Table.Records[0][2].IsNull())
	assert.Equal(t, amt("10"), res.Table.Records[1][2])
}

func TestCleanDescriptionsAndDropBlankRows(t *testing.T) {
	schema := table.SchemaFromHeader([]string{"Description", "Reference", "Other"})
	doc := &document.Document{Pages: []document.Page{{Number: 1, Blocks: []document.Block{{Kind: document.BlockTable, Rows: [][]string{
		{"Description", "Reference", "Other"},
		{"Salary 500.00 CR", "R1", "x"},
		{"", "", ""},
	}}}}}}
	res, err := newEngine(t, Config{Schema: schema, CleanDescriptions: true, DropBlankRows: true}).Extract(doc)
	require.NoError(t, err)
	assert.Equal(t, []table.Record{{txt("Salary"), txt("R1"), txt("x")}}, res.Table.Records)
}

func TestNewEngineValidation(t *testing.T) {
	n := normalize.New(normalize.Options{})
	_, err := NewEngine(Config{}, n, nil)
	assert.Error(t, err)

	schema := table.SchemaFromHeader(truthHeader)
	_, err = NewEngine(Config{Schema: schema, PositionalColumns: []int{0}}, n, nil)
	assert.Error(t, err)
	_, err = NewEngine(Config{Schema: schema, SkipPatterns: []string{"("}}, n, nil)
	assert.Error(t, err)
	_, err = NewEngine(Config{Schema: schema, Segmenters: []Segmenter{{Kind: "regex"}}}, n, nil)
	assert.Error(t, err)
	_, err = NewEngine(Config{Schema: schema, Segmenters: []Segmenter{{Kind: SegmentDelimiter, Pattern: ",", Fields: []string{"Nope"}}}}, n, nil)
	assert.Error(t, err)
}
