package ledgermath

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalStripsTrailingZeros(t *testing.T) {
	d := decimal.RequireFromString("100.0100")
	assert.Equal(t, "100.01", Canonical(d))

	whole := decimal.RequireFromString("300.00")
	assert.Equal(t, "300", Canonical(whole))
}

func TestDecimalJSONRoundTrip(t *testing.T) {
	d := NewDecimal(decimal.RequireFromString("55000.00"))
	b, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"55000"`, string(b))

	var out Decimal
	require.NoError(t, out.UnmarshalJSON([]byte(`"55000"`)))
	assert.True(t, out.Equal(decimal.RequireFromString("55000")))
}

func TestSplitResidualNoAdjustmentNeeded(t *testing.T) {
	allocs := []Allocation{
		{Index: 0, Quantity: decimal.RequireFromString("1"), Price: decimal.RequireFromString("100.01")},
		{Index: 1, Quantity: decimal.RequireFromString("1"), Price: decimal.RequireFromString("100.01")},
		{Index: 2, Quantity: decimal.RequireFromString("1"), Price: decimal.RequireFromString("100.01")},
	}
	block, results := SplitResidual(decimal.RequireFromString("3"), decimal.RequireFromString("100.01"), allocs)

	assert.Equal(t, "300.03", Canonical(block))
	for _, r := range results {
		assert.Equal(t, "100.01", Canonical(r.Amount))
		assert.False(t, r.IsRoundingAdjustment)
	}
}

func TestSplitResidualAbsorbsLargest(t *testing.T) {
	allocs := []Allocation{
		{Index: 0, Quantity: decimal.RequireFromString("0.4"), Price: decimal.RequireFromString("33.335")},
		{Index: 1, Quantity: decimal.RequireFromString("0.3"), Price: decimal.RequireFromString("33.335")},
		{Index: 2, Quantity: decimal.RequireFromString("0.3"), Price: decimal.RequireFromString("33.335")},
	}
	block, results := SplitResidual(decimal.RequireFromString("1"), decimal.RequireFromString("33.335"), allocs)

	assert.Equal(t, "33.34", Canonical(block))

	adjustedCount := 0
	for _, r := range results {
		if r.IsRoundingAdjustment {
			adjustedCount++
			assert.Equal(t, 0, r.Index)
		}
	}
	assert.Equal(t, 1, adjustedCount)

	sum := decimal.Zero
	for _, r := range results {
		sum = sum.Add(r.Amount)
	}
	assert.True(t, sum.Equal(block))
}

func TestGrossAmountRounding(t *testing.T) {
	got := GrossAmount(decimal.RequireFromString("300"), decimal.RequireFromString("500"))
	assert.Equal(t, "150000", Canonical(got))
}
