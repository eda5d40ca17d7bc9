package dealplan

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backoffice/internal/domain"
)

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuildModifyLegsEmitsReversalsThenReplacements(t *testing.T) {
	current := map[int64]decimal.Decimal{2: qty("200"), 1: qty("100")}
	target := map[int64]decimal.Decimal{2: qty("300"), 1: qty("150")}

	legs := buildModifyLegs(current, target)
	require.Len(t, legs, 4)

	assert.Equal(t, int64(1), legs[0].portfolioID)
	assert.Equal(t, domain.SourceModifyReversal, legs[0].source)
	assert.True(t, legs[0].quantity.Equal(qty("-100")))

	assert.Equal(t, int64(2), legs[1].portfolioID)
	assert.Equal(t, domain.SourceModifyReversal, legs[1].source)
	assert.True(t, legs[1].quantity.Equal(qty("-200")))

	assert.Equal(t, int64(1), legs[2].portfolioID)
	assert.Equal(t, domain.SourceModifyReplacement, legs[2].source)
	assert.True(t, legs[2].quantity.Equal(qty("150")))

	assert.Equal(t, int64(2), legs[3].portfolioID)
	assert.Equal(t, domain.SourceModifyReplacement, legs[3].source)
	assert.True(t, legs[3].quantity.Equal(qty("300")))
}

func TestBuildModifyLegsSkipsZeroQuantities(t *testing.T) {
	current := map[int64]decimal.Decimal{1: decimal.Zero, 2: qty("50")}
	target := map[int64]decimal.Decimal{3: decimal.Zero}

	legs := buildModifyLegs(current, target)
	require.Len(t, legs, 1)
	assert.Equal(t, int64(2), legs[0].portfolioID)
	assert.Equal(t, domain.SourceModifyReversal, legs[0].source)
}

func TestBuildDeleteLegsNegatesCurrentInPortfolioOrder(t *testing.T) {
	current := map[int64]decimal.Decimal{7: qty("200"), 3: qty("-100")}

	legs := buildDeleteLegs(current)
	require.Len(t, legs, 2)

	assert.Equal(t, int64(3), legs[0].portfolioID)
	assert.True(t, legs[0].quantity.Equal(qty("100")))
	assert.Equal(t, domain.SourceDeleteReversal, legs[0].source)

	assert.Equal(t, int64(7), legs[1].portfolioID)
	assert.True(t, legs[1].quantity.Equal(qty("-200")))
	assert.Equal(t, domain.SourceDeleteReversal, legs[1].source)
}

func TestBuildDeleteLegsEmptyCurrent(t *testing.T) {
	assert.Empty(t, buildDeleteLegs(map[int64]decimal.Decimal{}))
}

func TestSortedKeysAscending(t *testing.T) {
	m := map[int64]decimal.Decimal{9: decimal.Zero, 1: decimal.Zero, 5: decimal.Zero}
	assert.Equal(t, []int64{1, 5, 9}, sortedKeys(m))
}
