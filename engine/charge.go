package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/salonops/finance-engine/money"
)

var hundred = decimal.NewFromInt(100)

// =============================================================================
// CHARGE ALLOCATION - "charge technicien"
// =============================================================================

// AllocateCharges returns the part of payroll charges borne by the worker:
//
//	round_half_even(charges * (100 - taxPercentage) / 100)
//
// The product is computed exactly and rounded once, so the common breakpoints
// are exact: 0% returns charges, 50% returns half of charges, 100% returns 0.
func AllocateCharges(charges money.Money, taxPercentage decimal.Decimal) (money.Money, error) {
	if err := ValidateTaxPercentage(taxPercentage); err != nil {
		return money.Zero, err
	}
	return allocate(charges, taxPercentage), nil
}

func allocate(charges money.Money, p decimal.Decimal) money.Money {
	// Shift(-2) divides by 100 without any division precision limit.
	return money.New(charges.Decimal().Mul(hundred.Sub(p)).Shift(-2))
}

// ValidateTaxPercentage rejects values outside [0, 100].
func ValidateTaxPercentage(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(hundred) {
		return fmt.Errorf("%w: %s not in [0,100]", ErrInvalidTaxPercentage, p.String())
	}
	return nil
}

// ClampTaxPercentage forces p into [0, 100].
func ClampTaxPercentage(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}
