// Package ledgermath implements the fixed-scale money/quantity arithmetic
// shared by every accounting component: rounding, canonical serialization,
// and the block/allocation residual-redistribution rule.
package ledgermath

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// MoneyScale is the half-up rounding scale applied to every reporting-
	// currency or quote-currency money amount.
	MoneyScale = 2
	// QuantityScale is the fixed scale carried by signed trade/position
	// quantities.
	QuantityScale = 10
	// RateScale is the fixed scale carried by prices and FX rates.
	RateScale = 12
)

// Decimal wraps decimal.Decimal so it marshals to/from JSON as a canonical
// string (never scientific notation, no trailing zeros).
type Decimal struct {
	decimal.Decimal
}

// NewDecimal wraps a decimal.Decimal value.
func NewDecimal(d decimal.Decimal) Decimal { return Decimal{d} }

// MarshalJSON renders the canonical stripped string form.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + Canonical(d.Decimal) + `"`), nil
}

// UnmarshalJSON parses a JSON string (or bare number) into the wrapped decimal.
func (d *Decimal) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("ledgermath: invalid decimal %q: %w", s, err)
	}
	d.Decimal = parsed
	return nil
}

// Canonical strips trailing zeros and a trailing decimal point from the
// plain (never scientific) string form of d.
func Canonical(d decimal.Decimal) string {
	return stripTrailingZeros(d.String())
}

func stripTrailingZeros(s string) string {
	if !containsDot(s) {
		return s
	}
	i := len(s)
	for i > 0 && s[i-1] == '0' {
		i--
	}
	if i > 0 && s[i-1] == '.' {
		i--
	}
	return s[:i]
}

func containsDot(s string) bool {
	for _, c := range s {
		if c == '.' {
			return true
		}
	}
	return false
}

// RoundMoney rounds d to MoneyScale decimal places, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// RoundQuantity rounds d to QuantityScale decimal places.
func RoundQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityScale)
}

// RoundRate rounds d to RateScale decimal places.
func RoundRate(d decimal.Decimal) decimal.Decimal {
	return d.Round(RateScale)
}

// GrossAmount computes quantity * price rounded to MoneyScale.
func GrossAmount(quantity, price decimal.Decimal) decimal.Decimal {
	return RoundMoney(quantity.Mul(price))
}

// Allocation is one leg of a block/allocation residual split: an absolute
// quantity and price pair belonging to a portfolio (or any other owner
// identified by Index).
type Allocation struct {
	Index    int
	Quantity decimal.Decimal // absolute value
	Price    decimal.Decimal
}

// AllocationResult is the rounded amount assigned to one Allocation, with
// IsRoundingAdjustment set for the single allocation (if any) that absorbed
// the residual between the independently-rounded allocation amounts and the
// block amount.
type AllocationResult struct {
	Index               int
	Amount              decimal.Decimal
	IsRoundingAdjustment bool
}

// SplitResidual computes the block amount first from the total absolute
// quantity times price (rounded), then rounds each allocation
// independently, then lets the allocation with the largest |raw amount|
// absorb the signed residual between the sum of independently-rounded
// allocation amounts and the block amount.
func SplitResidual(totalQuantity decimal.Decimal, price decimal.Decimal, allocs []Allocation) (blockAmount decimal.Decimal, results []AllocationResult) {
	blockAmount = GrossAmount(totalQuantity, price)

	results = make([]AllocationResult, len(allocs))
	sum := decimal.Zero
	largestIdx := -1
	largestRaw := decimal.Zero
	for i, a := range allocs {
		raw := a.Quantity.Mul(a.Price)
		rounded := RoundMoney(raw)
		results[i] = AllocationResult{Index: a.Index, Amount: rounded}
		sum = sum.Add(rounded)
		if largestIdx == -1 || raw.Abs().GreaterThan(largestRaw) {
			largestIdx = i
			largestRaw = raw.Abs()
		}
	}

	residual := blockAmount.Sub(sum)
	if !residual.IsZero() && largestIdx >= 0 {
		results[largestIdx].Amount = results[largestIdx].Amount.Add(residual)
		results[largestIdx].IsRoundingAdjustment = true
	}
	return blockAmount, results
}
