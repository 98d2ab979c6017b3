package normalize

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/statement-agent/constants"
)

func amt(s string) Value { return AmountValue(MustParseAmount(s)) }

func TestNormalizeAmount(t *testing.T) {
	n := New(Options{})
	cases := []struct {
		raw  string
		want Value
	}{
		{"1,234.56", amt("1234.56")},
		{"₹ 1,23,456.78", amt("123456.78")},
		{"$1,234,567.00", amt("1234567")},
		{"1.234,56", amt("1234.56")},
		{"1'234.50", amt("1234.5")},
		{"(500.00)", amt("-500")},
		{"-42", amt("-42")},
		{"42-", amt("-42")},
		{"+7.5", amt("7.5")},
		{"1,234", amt("1234")},
		{"1.234.567", amt("1234567")},
		{"0.1234", amt("0.1234")},
		{".50", amt("0.5")},
		{"500.00 DR", amt("-500")},
		{"500.00 CR", amt("500")},
		{"-500.00 CR", amt("500")},
		{"500.00 dr", amt("500")},
		{"500.00Cr", amt("500")},
		{"100 DR.", amt("-100")},
		{"100 Dr.", amt("100")},
		{"100.50 Cr.", amt("100.5")},
		{"１２３.４５", amt("123.45")},
		{"−15.00", amt("-15")},
		{"", Null()},
		{"  ", Null()},
		{"-", Null()},
		{"—", Null()},
	}
	for _, tc := range cases {
		got, err := n.Normalize(tc.raw, constants.RoleDebit)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestNormalizeAmountRejects(t *testing.T) {
	n := New(Options{})
	for _, raw := range []string{
		"abc",
		"12a.50",
		"500 DR CR",
		"1,2,3",
		"12,3456,789",
		"1.234.56,7,8",
		"(-5)",
		"1234567890123456789012",
		"()",
	} {
		_, err := n.Normalize(raw, constants.RoleCredit)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, ErrNormalization), raw)

		var ne *NormalizationError
		require.True(t, errors.As(err, &ne), raw)
		assert.Equal(t, raw, ne.RawText)
		assert.Equal(t, constants.RoleCredit, ne.Role)
	}
}

func TestAmbiguousThreeDigitSeparator(t *testing.T) {
	def := New(Options{})
	v, err := def.Normalize("1.234", constants.RoleAmount)
	require.NoError(t, err)
	assert.Equal(t, amt("1234"), v)

	policy := New(Options{AmbiguousDecimal: true})
	v, err = policy.Normalize("1.234", constants.RoleAmount)
	require.NoError(t, err)
	assert.Equal(t, amt("1.234"), v)

	us := New(Options{Locale: constants.LocaleUS})
	v, err = us.Normalize("1.234", constants.RoleAmount)
	require.NoError(t, err)
	assert.Equal(t, amt("1.234"), v)
	v, err = us.Normalize("1,234", constants.RoleAmount)
	require.NoError(t, err)
	assert.Equal(t, amt("1234"), v)

	eu := New(Options{Locale: constants.LocaleEU})
	v, err = eu.Normalize("1,234", constants.RoleAmount)
	require.NoError(t, err)
	assert.Equal(t, amt("1.234"), v)
}

func TestNormalizeDate(t *testing.T) {
	n := New(Options{})
	want := DateValue(NewDate(2024, time.August, 1))
	for _, raw := range []string{
		"01-08-2024",
		"1/8/2024",
		"01.08.2024",
		"01-Aug-2024",
		"1 Aug 2024",
		"1 August 2024",
		"2024-08-01",
		"01-08-24",
		" 01/08/24 ",
		"01082024",
	} {
		got, err := n.Normalize(raw, constants.RoleDate)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"", "32-01-2024", "Opening balance", "2024/13/01"} {
		_, err := n.Normalize(raw, constants.RoleDate)
		assert.ErrorIs(t, err, ErrNormalization, raw)
	}
}

func TestCustomDatePatterns(t *testing.T) {
	n := New(Options{DatePatterns: []string{"01/02/2006"}, OutputDateLayout: "2006-01-02"})
	v, err := n.Normalize("08/01/2024", constants.RoleDate)
	require.NoError(t, err)
	assert.Equal(t, NewDate(2024, time.August, 1), v.Date())
	assert.Equal(t, "2024-08-01", n.Render(v))
}

func TestRenderRoundTrip(t *testing.T) {
	for _, opts := range []Options{
		{},
		{Locale: constants.LocaleEU},
		{Locale: constants.LocaleUS},
		{Locale: constants.LocaleIN},
		{AmbiguousDecimal: true},
	} {
		n := New(opts)
		for _, raw := range []string{"1,234.56", "0.001", "1.234", "-12", "1,00,000.5", "(0.75)", "123456789.12"} {
			role := constants.RoleAmount
			v, err := n.Normalize(raw, role)
			require.NoError(t, err, raw)
			again, err := n.Normalize(n.Render(v), role)
			require.NoError(t, err, raw)
			assert.Equal(t, v, again, "%s under %s", raw, opts.Locale)
		}

		d, err := n.Normalize("05-Mar-23", constants.RoleDate)
		require.NoError(t, err)
		again, err := n.Normalize(n.Render(d), constants.RoleDate)
		require.NoError(t, err)
		assert.Equal(t, d, again)
	}
}

func TestAmountString(t *testing.T) {
	assert.Equal(t, "1234.5", MustParseAmount("1234.50").String())
	assert.Equal(t, "0.0010", MustParseAmount("0.001").String())
	assert.Equal(t, "-0.5", MustParseAmount("-0.50").String())
	assert.Equal(t, "100", MustParseAmount("100.00").String())
	assert.Equal(t, "0", MustParseAmount("-0.00").String())
	assert.Equal(t, 0, MustParseAmount("1.5").Cmp(MustParseAmount("1.50")))
	assert.Equal(t, -1, MustParseAmount("-2").Cmp(MustParseAmount("1")))
}

func TestFormatAmount(t *testing.T) {
	a := MustParseAmount("1234567.8")
	assert.Equal(t, "1,234,567.80", FormatAmount(a, constants.LocaleUS))
	assert.Equal(t, "1.234.567,80", FormatAmount(a, constants.LocaleEU))
	assert.Equal(t, "12,34,567.80", FormatAmount(a, constants.LocaleIN))
	assert.Equal(t, "-5.00", FormatAmount(MustParseAmount("-5"), constants.LocaleNone))
	assert.Equal(t, "999.00", FormatAmount(MustParseAmount("999"), constants.LocaleIN))
	assert.Equal(t, "1.2340", FormatAmount(MustParseAmount("1.234"), constants.LocaleNone))
	assert.Equal(t, "1,234", FormatAmount(MustParseAmount("1.234"), constants.LocaleEU))
}

func TestFormatAmountRoundTrip(t *testing.T) {
	values := []string{"0", "5", "-5", "0.75", "-0.75", "1.234", "-1.234", "999", "1000",
		"-1000.5", "123456.78", "100000", "-1234567.8", "12345678901.25"}
	locales := []constants.Locale{constants.LocaleNone, constants.LocaleUS, constants.LocaleEU, constants.LocaleIN}

	for _, loc := range locales {
		n := New(Options{Locale: loc})
		for _, raw := range values {
			a := MustParseAmount(raw)
			forms := []string{FormatAmount(a, loc)}
			if a.Sign() < 0 {
				forms = append(forms, "("+FormatAmount(a.Abs(), loc)+")")
			}
			for _, text := range forms {
				v, err := n.Normalize(text, constants.RoleBalance)
				require.NoError(t, err, "%s under %s", text, loc)
				assert.True(t, AmountValue(a).Equal(v), "%s under %s read back as %s", text, loc, v)
			}
		}
	}
}

func TestAmountLongFraction(t *testing.T) {
	n := New(Options{})
	tiny := "0." + strings.Repeat("0", 299) + "1"
	other := "0." + strings.Repeat("0", 43) + "1"

	a, err := n.Normalize(tiny, constants.RoleAmount)
	require.NoError(t, err)
	b, err := n.Normalize(other, constants.RoleAmount)
	require.NoError(t, err)

	assert.False(t, a.Equal(b))
	assert.Equal(t, 1, b.Amount().Cmp(a.Amount()))
	assert.Equal(t, tiny, a.Amount().String())
	assert.Equal(t, int32(-300), a.Amount().Decimal().Exponent())

	_, err = n.Normalize("0."+strings.Repeat("1", 19), constants.RoleAmount)
	assert.ErrorIs(t, err, ErrNormalization)
}

func TestValueEqual(t *testing.T) {
	assert.True(t, amt("1.5").Equal(AmountValue(MustParseAmount("1.50"))))
	assert.True(t, amt("0").Equal(amt("-0.00")))
	assert.False(t, amt("1").Equal(TextValue("1")))
	assert.False(t, amt("10").Equal(amt("10.01")))
	assert.True(t, Null().Equal(Value{}))
	assert.Equal(t, "1500", MustParseAmount("1.5").Shift(3).String())
}

func TestNormalizeText(t *testing.T) {
	n := New(Options{})
	v, err := n.Normalize("  UPI  transfer   to  ACME ", constants.RoleDescription)
	require.NoError(t, err)
	assert.Equal(t, TextValue("UPI transfer to ACME"), v)
}

func TestCleanDescription(t *testing.T) {
	assert.Equal(t, "Salary ACME", CleanDescription("Salary ACME  50,000.00 CR"))
	assert.Equal(t, "ATM withdrawal", CleanDescription("ATM withdrawal (2,000.00) 18,000.00"))
	assert.Equal(t, "Interest", CleanDescription("Interest dr"))
	assert.Equal(t, "", CleanDescription(""))
}

func TestLeadingDate(t *testing.T) {
	n := New(Options{})
	date, rest, ok := n.LeadingDate("01 Aug 2024 Opening balance 500.00")
	require.True(t, ok)
	assert.Equal(t, "01 Aug 2024", date)
	assert.Equal(t, "Opening balance 500.00", rest)

	_, _, ok = n.LeadingDate("Balance brought forward")
	assert.False(t, ok)
}
