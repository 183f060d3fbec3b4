package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"DOTRamp/internal/mpesa"
	"DOTRamp/internal/pricing"
	"DOTRamp/internal/services"
	"DOTRamp/internal/store"
)

var (
	errBadRequest   = errors.New("bad request")
	errUnauthorized = errors.New("unauthorized")
)

// errorStatus is checked in order; the first match wins.
var errorStatus = []struct {
	err    error
	status int
}{
	{services.ErrValidation, http.StatusBadRequest},
	{services.ErrInsufficientLiquidity, http.StatusBadRequest},
	{services.ErrInsufficientBalance, http.StatusBadRequest},
	{services.ErrAmountTooLow, http.StatusBadRequest},
	{pricing.ErrUnsupportedToken, http.StatusBadRequest},
	{pricing.ErrInvalidAmount, http.StatusBadRequest},
	{pricing.ErrInvalidRate, http.StatusBadRequest},
	{mpesa.ErrMalformedCallback, http.StatusBadRequest},
	{mpesa.ErrInvalidAmount, http.StatusBadRequest},
	{errBadRequest, http.StatusBadRequest},
	{mpesa.ErrUpstreamAuth, http.StatusUnauthorized},
	{errUnauthorized, http.StatusUnauthorized},
	{store.ErrNotFound, http.StatusNotFound},
	{store.ErrDuplicateID, http.StatusConflict},
	{services.ErrIllegalTransition, http.StatusConflict},
	{mpesa.ErrUpstreamRequest, http.StatusInternalServerError},
}

func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, body envelope) {
	body["status"] = "success"
	writeJSON(w, http.StatusOK, body)
}

type failure struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	resp := failure{Status: "failed", Error: err.Error()}
	var balErr *services.BalanceError
	if errors.As(err, &balErr) {
		resp.Error = balErr.Kind.Error()
		resp.Details = envelope{
			"token":           balErr.Token,
			"currentBalance":  balErr.Result.CurrentBalance,
			"requiredBalance": balErr.Result.RequiredBalance,
			"balanceAfterTx":  balErr.Result.BalanceAfterTx,
		}
	}
	var upErr *mpesa.UpstreamError
	if errors.As(err, &upErr) {
		resp.Details = envelope{"code": upErr.Code, "message": upErr.Message}
	}
	writeJSON(w, statusFor(err), resp)
}
