package corpaction

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backoffice/internal/apierr"
	"github.com/aristath/backoffice/internal/domain"
)

// newTestService builds a Service with a nil Repository/Store for exercising
// validation paths that must fail before any database access.
func newTestService() *Service {
	return NewService(nil, nil, zerolog.Nop())
}

func TestCreateEventRejectsUnknownCAType(t *testing.T) {
	s := newTestService()
	_, err := s.CreateEvent(context.Background(), CreateEventRequest{
		CAType:       domain.CAType("merger"),
		InstrumentID: 1,
	})
	require.Error(t, err)
	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_ca_type", apiErr.Code)
}

func TestCreateEventRejectsMissingInstrument(t *testing.T) {
	s := newTestService()
	_, err := s.CreateEvent(context.Background(), CreateEventRequest{
		CAType: domain.CACashDividend,
	})
	require.Error(t, err)
	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_instrument_id", apiErr.Code)
}

func TestCreateEventRejectsMissingCashAmount(t *testing.T) {
	s := newTestService()
	_, err := s.CreateEvent(context.Background(), CreateEventRequest{
		CAType:       domain.CACashDividend,
		InstrumentID: 1,
	})
	require.Error(t, err)
	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_cash_amount_per_share", apiErr.Code)
}

func TestCreateEventRejectsZeroOrNegativeCashAmount(t *testing.T) {
	s := newTestService()
	zero := decimal.Zero
	_, err := s.CreateEvent(context.Background(), CreateEventRequest{
		CAType:             domain.CACashDividend,
		InstrumentID:       1,
		CashAmountPerShare: &zero,
	})
	require.Error(t, err)
	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_cash_amount_per_share", apiErr.Code)
}

func TestCreateEventRejectsMissingSplitRatio(t *testing.T) {
	s := newTestService()
	_, err := s.CreateEvent(context.Background(), CreateEventRequest{
		CAType:       domain.CAStockSplit,
		InstrumentID: 1,
	})
	require.Error(t, err)
	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_split_ratio", apiErr.Code)
}

func TestCreateEventRejectsNonPositiveSplitRatio(t *testing.T) {
	s := newTestService()
	num, den := int64(0), int64(1)
	_, err := s.CreateEvent(context.Background(), CreateEventRequest{
		CAType:           domain.CAStockSplit,
		InstrumentID:     1,
		SplitNumerator:   &num,
		SplitDenominator: &den,
	})
	require.Error(t, err)
	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_split_ratio", apiErr.Code)
}

func TestElectRejectsUnknownChoice(t *testing.T) {
	s := &Service{repo: &Repository{}, idemp: nil, log: zerolog.Nop()}
	err := s.Elect(context.Background(), 1, ElectRequest{PortfolioID: 1, Choice: domain.ElectionChoice("maybe")})
	require.Error(t, err)
	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_choice", apiErr.Code)
}

func TestCanonicalPtrNil(t *testing.T) {
	assert.Nil(t, canonicalPtr(nil))
}
