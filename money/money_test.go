package money_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonops/finance-engine/money"
)

func TestParse_RoundsHalfToEven(t *testing.T) {
	cases := map[string]string{
		"0.125":  "0.12",
		"0.135":  "0.14",
		"1600":   "1600.00",
		"-3.5":   "-3.50",
		"10.005": "10.00",
	}
	for in, want := range cases {
		m, err := money.Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, m.String(), in)
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, in := range []string{"", "  ", "12a", "1,5"} {
		_, err := money.Parse(in)
		assert.ErrorIs(t, err, money.ErrMalformed, in)
	}
}

func TestMoney_Arithmetic(t *testing.T) {
	a := money.MustParse("200")
	b := money.MustParse("150")

	assert.Equal(t, "350.00", a.Add(b).String())
	assert.Equal(t, "50.00", a.Sub(b).String())
	assert.Equal(t, "-200.00", a.Neg().String())
	assert.Equal(t, int64(35000), a.Add(b).Cents())
	assert.True(t, money.FromCents(35000).Equal(a.Add(b)))
	assert.Equal(t, "200.00", money.Max(a, b).String())
}

func TestMoney_Mul_BankersRounding(t *testing.T) {
	// 0.05 * 0.5 = 0.025 -> 0.02 (half to even)
	assert.Equal(t, "0.02", money.MustParse("0.05").Mul(decimal.RequireFromString("0.5")).String())
	// 0.07 * 0.5 = 0.035 -> 0.04
	assert.Equal(t, "0.04", money.MustParse("0.07").Mul(decimal.RequireFromString("0.5")).String())
}

func TestSum_OrderIndependent(t *testing.T) {
	xs := []money.Money{money.MustParse("0.10"), money.MustParse("0.20"), money.MustParse("99.99"), money.MustParse("-5")}
	forward := money.Sum(xs...)
	backward := money.Sum(xs[3], xs[2], xs[1], xs[0])
	assert.True(t, forward.Equal(backward))
	assert.Equal(t, "95.29", forward.String())
}

func TestMoney_JSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		Amount money.Money `json:"amount"`
	}{money.MustParse("1600")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"1600.00"}`, string(raw))

	var decoded struct {
		A money.Money `json:"a"`
		B money.Money `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"12.5","b":7.25}`), &decoded))
	assert.Equal(t, "12.50", decoded.A.String())
	assert.Equal(t, "7.25", decoded.B.String())
}

func TestParseLocale(t *testing.T) {
	cases := map[string]string{
		"1 234,56":          "1234.56",
		"1\u00a0234,56":     "1234.56",
		"1\u202f234,5":      "1234.50",
		"1.234,56":          "1234.56",
		"1,234.56":          "1234.56",
		"1234":              "1234.00",
		"-12,00 \u20ac":     "-12.00",
		"  400,00  ":        "400.00",
		"12 345 678,9":      "12345678.90",
	}
	for in, want := range cases {
		m, err := money.ParseLocale(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, m.String(), in)
	}

	// Three decimals reads like a thousands separator, never rounded
	for _, in := range []string{"", "   ", "1,2,3", "abc", "1.234", "1,234", "12,345 \u20ac", "0.005"} {
		_, err := money.ParseLocale(in)
		assert.ErrorIs(t, err, money.ErrMalformed, in)
	}
}

func TestMonth_OrderingAndArithmetic(t *testing.T) {
	jan := money.NewMonth(2025, time.January)
	mar := money.NewMonth(2025, time.March)
	dec := money.NewMonth(2024, time.December)

	assert.True(t, dec.Before(jan))
	assert.True(t, mar.After(jan))
	assert.Equal(t, 0, jan.Compare(money.NewMonth(2025, time.January)))
	assert.Equal(t, dec, jan.AddMonths(-1))
	assert.Equal(t, money.NewMonth(2026, time.February), mar.AddMonths(11))
	assert.Equal(t, "2025-03", mar.String())
}

func TestMonth_Contains(t *testing.T) {
	feb := money.NewMonth(2024, time.February)
	assert.True(t, feb.Contains(time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)))
	assert.False(t, feb.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 29, feb.End().Day())
}

func TestParseMonth(t *testing.T) {
	m, err := money.ParseMonth("2025-11")
	require.NoError(t, err)
	assert.Equal(t, money.NewMonth(2025, time.November), m)

	_, err = money.ParseMonth("2025-13")
	assert.ErrorIs(t, err, money.ErrInvalidMonth)

	var decoded struct {
		M money.Month `json:"m"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"m":"2024-06"}`), &decoded))
	assert.Equal(t, money.NewMonth(2024, time.June), decoded.M)
}
