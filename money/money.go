/*
Package money provides the fixed-point value types shared by the finance engine.

PURPOSE:
  Every persisted total in the system (salaries, charges, payments, recurring
  and one-off expenses) is a Money. Money never goes through binary floating
  point: it wraps decimal.Decimal and is kept at a fixed scale of two minor
  units (cents).

KEY CONCEPTS:
  - Money: decimal amount in the single operating currency, scale 2
  - Month: calendar month (year + month), the unit of every schedule and
    payroll period
  - ParseLocale: normalization of locale-formatted strings ("1 234,56")

ROUNDING:
  Whenever an operation can produce more than two decimal places (Mul,
  New from an arbitrary decimal) the result is rounded half-to-even on the
  minor unit ("banker's rounding"). 0.125 -> 0.12, 0.135 -> 0.14.

USAGE:
  salary := money.MustParse("1200")
  charges := money.FromCents(40000)
  left := salary.Sub(charges)

SEE ALSO:
  - month.go: Month type
  - locale.go: locale-formatted input parsing
  - engine/charge.go: the main consumer of Mul rounding
*/
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of minor-unit digits kept by Money.
const Scale = 2

// ErrMalformed is returned when a string cannot be read as an amount.
var ErrMalformed = errors.New("malformed monetary amount")

// =============================================================================
// MONEY
// =============================================================================

// Money is a fixed-point amount with two decimal places.
// The zero value is a valid amount of 0.00.
type Money struct {
	d decimal.Decimal
}

// Zero is 0.00.
var Zero = Money{}

// New rounds d half-to-even on the minor unit.
func New(d decimal.Decimal) Money {
	return Money{d: d.RoundBank(Scale)}
}

// FromCents builds an amount from integer minor units.
func FromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -Scale)}
}

// FromInt builds a whole-unit amount.
func FromInt(units int64) Money {
	return Money{d: decimal.NewFromInt(units)}
}

// Parse reads a plain decimal string ("1234.56", "-3", "0.5").
// Input with more than two decimals is rounded half-to-even.
func Parse(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("%w: empty", ErrMalformed)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return New(d), nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Sum adds amounts. The result does not depend on argument order.
func Sum(amounts ...Money) Money {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Max returns the larger of a and b.
func Max(a, b Money) Money {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }
func (m Money) Neg() Money        { return Money{d: m.d.Neg()} }

// Mul multiplies by an arbitrary factor and rounds half-to-even.
func (m Money) Mul(factor decimal.Decimal) Money { return New(m.d.Mul(factor)) }

func (m Money) Cmp(o Money) int              { return m.d.Cmp(o.d) }
func (m Money) Equal(o Money) bool           { return m.d.Equal(o.d) }
func (m Money) GreaterThan(o Money) bool     { return m.d.GreaterThan(o.d) }
func (m Money) LessThan(o Money) bool        { return m.d.LessThan(o.d) }
func (m Money) IsZero() bool                 { return m.d.IsZero() }
func (m Money) IsPositive() bool             { return m.d.IsPositive() }
func (m Money) IsNegative() bool             { return m.d.IsNegative() }
func (m Money) Decimal() decimal.Decimal     { return m.d }
func (m Money) Cents() int64                 { return m.d.Shift(Scale).IntPart() }
func (m Money) String() string               { return m.d.StringFixed(Scale) }
func (m Money) Format(unit string) string    { return m.String() + " " + unit }

// =============================================================================
// JSON - amounts travel as decimal strings so clients never see float noise
// =============================================================================

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both "12.50" and 12.50.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*m = Zero
		return nil
	}
	raw = strings.Trim(raw, `"`)
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
