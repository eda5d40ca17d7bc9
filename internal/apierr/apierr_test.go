package apierr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResolvesKnownStatus(t *testing.T) {
	err := New("not_found")
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.Equal(t, "not_found", err.Code)
}

func TestNewDefaultsUnknownCodeTo400(t *testing.T) {
	err := New("something_unmapped")
	assert.Equal(t, http.StatusBadRequest, err.Status)
}

func TestInvalidBuildsFieldCode(t *testing.T) {
	err := Invalid("quantity")
	assert.Equal(t, "invalid_quantity", err.Code)
	assert.Equal(t, http.StatusBadRequest, err.Status)
}

func TestPriceMissingAndFXRateMissing(t *testing.T) {
	p := PriceMissing(42)
	assert.Equal(t, "price_missing:42", p.Code)
	assert.Equal(t, http.StatusConflict, p.Status)

	fx := FXRateMissing("USD", "EUR")
	assert.Equal(t, "fx_rate_missing:USD→EUR", fx.Code)
	assert.Equal(t, http.StatusConflict, fx.Status)
}

func TestWriteSerializesKnownError(t *testing.T) {
	w := httptest.NewRecorder()
	Write(w, New("not_editable"))

	assert.Equal(t, http.StatusConflict, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_editable", body["detail"])
}

func TestWriteDefaultsToInternalErrorForPlainError(t *testing.T) {
	w := httptest.NewRecorder()
	Write(w, assertErr{})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body["detail"])
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
