package staging

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backoffice/internal/apierr"
)

// newTestService builds a Service with a nil idempotency store, for
// exercising the guard clauses of CreateDeal that fail before any
// repository access, mirroring internal/corpaction's test pattern.
func newTestService() *Service {
	return NewService(&Repository{}, nil)
}

func TestIsSellFamily(t *testing.T) {
	sellCases := []string{"SellEquity", "Sell", "SELL", "SellToClose", "SellToOpen"}
	for _, c := range sellCases {
		assert.True(t, isSellFamily(c), c)
	}
	buyCases := []string{"BuyEquity", "Buy", "BUY", "", "BuyToOpen"}
	for _, c := range buyCases {
		assert.False(t, isSellFamily(c), c)
	}
}

func TestCreateDealRejectsZeroTotalQuantity(t *testing.T) {
	s := newTestService()
	_, err := s.CreateDeal(context.Background(), CreateDealRequest{
		TotalQuantity: decimal.Zero,
		Price:         decimal.RequireFromString("100"),
	})
	require.Error(t, err)
	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_total_quantity", apiErr.Code)
}

func TestCreateDealRejectsNonPositivePrice(t *testing.T) {
	s := newTestService()
	_, err := s.CreateDeal(context.Background(), CreateDealRequest{
		TotalQuantity: decimal.RequireFromString("100"),
		Price:         decimal.Zero,
	})
	require.Error(t, err)
	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_price", apiErr.Code)
}

func TestCreateDealRejectsEmptyAllocations(t *testing.T) {
	s := newTestService()
	_, err := s.CreateDeal(context.Background(), CreateDealRequest{
		TotalQuantity: decimal.RequireFromString("100"),
		Price:         decimal.RequireFromString("10"),
		Allocations:   nil,
	})
	require.Error(t, err)
	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_allocations", apiErr.Code)
}

func TestCreateDealRejectsNonPositiveAllocationQuantity(t *testing.T) {
	s := newTestService()
	_, err := s.CreateDeal(context.Background(), CreateDealRequest{
		TotalQuantity: decimal.RequireFromString("100"),
		Price:         decimal.RequireFromString("10"),
		Allocations: []DealAllocationRequest{
			{PortfolioID: 1, AllocationQuantity: decimal.Zero},
		},
	})
	require.Error(t, err)
	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_allocation_quantity", apiErr.Code)
}
