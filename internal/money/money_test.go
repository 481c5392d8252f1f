package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRound4HalfUp(t *testing.T) {
	cases := map[string]string{
		"1.00005":  "1.0001",
		"1.00004":  "1",
		"848.0000": "848",
		"0.12345":  "0.1235",
		"2.5":      "2.5",
	}
	for in, want := range cases {
		d := decimal.RequireFromString(in)
		assert.True(t, Round4(d).Equal(decimal.RequireFromString(want)), "Round4(%s)", in)
	}
}

func TestNormalizeCurrency(t *testing.T) {
	assert.Equal(t, "GBP", NormalizeCurrency(" gbp "))
	assert.Equal(t, "GBP", NormalizeCurrency("£"))
	assert.Equal(t, "EUR", NormalizeCurrency("€"))
	assert.Equal(t, "USD", NormalizeCurrency("$"))
	assert.Equal(t, "JPY", NormalizeCurrency("jpy"))
}

func TestConvert(t *testing.T) {
	got := Convert(decimal.RequireFromString("1060"), decimal.RequireFromString("0.8"))
	assert.True(t, got.Equal(decimal.RequireFromString("848")))
}

func TestRatioZeroWhole(t *testing.T) {
	assert.True(t, Ratio(decimal.NewFromInt(5), decimal.Zero).IsZero())
}
