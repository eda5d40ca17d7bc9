// Package apierr centralizes the machine-code error taxonomy and its
// translation to HTTP status codes, so every handler package shares one
// response helper instead of re-deriving status codes ad hoc.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is a machine-code error carrying the HTTP status it maps to.
type Error struct {
	Code   string
	Status int
}

func (e *Error) Error() string { return e.Code }

// New builds an *Error for a known machine code, resolving its HTTP status
// from the taxonomy table. Unknown codes default to 400.
func New(code string) *Error {
	if status, ok := statusTable[code]; ok {
		return &Error{Code: code, Status: status}
	}
	return &Error{Code: code, Status: http.StatusBadRequest}
}

// Invalid builds a validation error for a named field, e.g. invalid_quantity.
func Invalid(field string) *Error {
	return &Error{Code: "invalid_" + field, Status: http.StatusBadRequest}
}

// statusTable maps the error taxonomy to HTTP statuses.
var statusTable = map[string]int{
	"not_found":                    http.StatusNotFound,
	"portfolio_not_found":          http.StatusNotFound,
	"instrument_not_found":         http.StatusNotFound,
	"deal_block_not_found":         http.StatusNotFound,
	"allocation_staging_not_found": http.StatusNotFound,
	"nav_not_found":                http.StatusNotFound,

	"not_active":                   http.StatusConflict,
	"not_editable":                 http.StatusConflict,
	"concurrent_update":            http.StatusConflict,
	"deal_block_not_active":        http.StatusConflict,
	"invalid_total_quantity":       http.StatusBadRequest,
	"invalid_allocation_quantity":  http.StatusBadRequest,
	"invalid_price":                http.StatusBadRequest,
	"allocation_quantity_mismatch": http.StatusBadRequest,
	"block_deal_id_missing":        http.StatusConflict,

	"insert_failed":   http.StatusInternalServerError,
	"internal_error":  http.StatusInternalServerError,
	"price_missing":   http.StatusConflict,
	"fx_rate_missing": http.StatusConflict,

	"ca_event_not_found":  http.StatusNotFound,
	"ca_event_not_active": http.StatusConflict,
	"invalid_ca_type":     http.StatusBadRequest,
	"invalid_choice":      http.StatusBadRequest,
}

// WithTemporalStartFailed builds the `temporal_start_failed:<kind>` 502 code.
func WithTemporalStartFailed(kind string) *Error {
	return &Error{Code: "temporal_start_failed:" + kind, Status: http.StatusBadGateway}
}

// PriceMissing builds the `price_missing:{iid}` 409 code.
func PriceMissing(instrumentID int64) *Error {
	return &Error{Code: fmt.Sprintf("price_missing:%d", instrumentID), Status: http.StatusConflict}
}

// FXRateMissing builds the `fx_rate_missing:{base→quote}` 409 code.
func FXRateMissing(base, quote string) *Error {
	return &Error{Code: fmt.Sprintf("fx_rate_missing:%s→%s", base, quote), Status: http.StatusConflict}
}

// errorResponse is the wire shape of every error body: {"detail": "<code>"}.
type errorResponse struct {
	Detail string `json:"detail"`
}

// Write serializes err as the standard {detail: code} JSON body, resolving
// status from an *Error when possible and defaulting to 500 otherwise.
func Write(w http.ResponseWriter, err error) {
	var apiErr *Error
	status := http.StatusInternalServerError
	code := "internal_error"
	if errors.As(err, &apiErr) {
		status = apiErr.Status
		code = apiErr.Code
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Detail: code})
}
