// Package installment splits a registration's total cost into installments.
//
// Amounts are split at minor-unit (cent) precision. Every share is truncated
// and the remainder goes to the last installment, so the plan always sums to
// the total exactly.
package installment

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorUnitPlaces is the number of decimal places of the currency's minor unit.
const MinorUnitPlaces = 2

// ErrInvalidPlan is returned for a non-positive total or an installment count out of range.
var ErrInvalidPlan = errors.New("invalid installment plan")

// Installment is one scheduled partial payment, Index starts at 1.
type Installment struct {
	Index  int             `json:"index"`
	Amount decimal.Decimal `json:"amount"`
}

// BuildPlan validates the input against the installment cap and splits totalCost.
func BuildPlan(totalCost decimal.Decimal, installmentCount, maxInstallments int) ([]Installment, error) {
	if !totalCost.IsPositive() {
		return nil, fmt.Errorf("%w: total cost must be positive, got %s", ErrInvalidPlan, totalCost.String())
	}
	if !totalCost.Equal(totalCost.Truncate(MinorUnitPlaces)) {
		return nil, fmt.Errorf("%w: total cost %s has more than %d decimal places", ErrInvalidPlan, totalCost.String(), MinorUnitPlaces)
	}
	if maxInstallments < 1 {
		return nil, fmt.Errorf("%w: installment cap must be at least 1, got %d", ErrInvalidPlan, maxInstallments)
	}
	if installmentCount < 1 || installmentCount > maxInstallments {
		return nil, fmt.Errorf("%w: installment count must be between 1 and %d, got %d", ErrInvalidPlan, maxInstallments, installmentCount)
	}
	return Split(totalCost, installmentCount), nil
}

// Split applies the remainder policy without checking the cap. It returns nil
// for count < 1. The engine uses it to recompute expected amounts from the
// current event cost.
func Split(total decimal.Decimal, count int) []Installment {
	if count < 1 {
		return nil
	}

	cents := total.Shift(MinorUnitPlaces).Truncate(0)
	share, _ := cents.QuoRem(decimal.NewFromInt(int64(count)), 0)
	last := cents.Sub(share.Mul(decimal.NewFromInt(int64(count - 1))))

	plan := make([]Installment, count)
	for i := 0; i < count; i++ {
		amount := share
		if i == count-1 {
			amount = last
		}
		plan[i] = Installment{
			Index:  i + 1,
			Amount: amount.Shift(-MinorUnitPlaces),
		}
	}
	return plan
}

// AmountFor returns the expected amount of the installment at index (1-based).
func AmountFor(total decimal.Decimal, count, index int) (decimal.Decimal, error) {
	if index < 1 || index > count {
		return decimal.Zero, fmt.Errorf("%w: installment index %d out of range 1..%d", ErrInvalidPlan, index, count)
	}
	return Split(total, count)[index-1].Amount, nil
}

// Sum adds up the amounts of a plan.
func Sum(plan []Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range plan {
		total = total.Add(inst.Amount)
	}
	return total
}
