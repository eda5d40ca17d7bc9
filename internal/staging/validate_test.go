package staging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backoffice/internal/apierr"
)

func TestValidateCurrencyAccepts3LetterUppercase(t *testing.T) {
	assert.NoError(t, validateCurrency("quote_currency", "USD"))
}

func TestValidateCurrencyRejectsLowercase(t *testing.T) {
	err := validateCurrency("quote_currency", "usd")
	require.Error(t, err)
	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_quote_currency", apiErr.Code)
}

func TestValidateCurrencyRejectsWrongLength(t *testing.T) {
	for _, code := range []string{"US", "USDX", ""} {
		err := validateCurrency("report_currency", code)
		require.Error(t, err, code)
		var apiErr *apierr.Error
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "invalid_report_currency", apiErr.Code)
	}
}

func TestValidatePositiveIDRejectsZeroAndNegative(t *testing.T) {
	for _, id := range []int64{0, -1, -100} {
		err := validatePositiveID("instrument_id", id)
		require.Error(t, err, id)
	}
	assert.NoError(t, validatePositiveID("instrument_id", 1))
}
