package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"DOTRamp/internal/models"
	"DOTRamp/internal/mpesa"
	"DOTRamp/internal/store"

	"go.uber.org/zap"
)

const maxCallbackBody = 1 << 20

type darajaAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// MpesaCallback receives the STK push result. Unknown orders are acknowledged
// so Daraja stops retrying; malformed bodies are rejected.
func (h *Handler) MpesaCallback(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readCallback(w, r)
	if !ok {
		return
	}
	res, err := mpesa.DecodeSTKCallback(body)
	if err != nil {
		h.Log.Warn("stk callback rejected", zap.Error(err))
		writeError(w, err)
		return
	}
	order, applied, err := h.Engine.HandleSTKCallback(r.Context(), res)
	h.ack(w, "stk", res.MerchantRequestID, order, applied, err)
}

func (h *Handler) B2CResult(w http.ResponseWriter, r *http.Request) {
	h.b2c(w, r, "b2c_result", h.Engine.HandlePayoutResult)
}

func (h *Handler) B2CTimeout(w http.ResponseWriter, r *http.Request) {
	h.b2c(w, r, "b2c_timeout", h.Engine.HandlePayoutTimeout)
}

func (h *Handler) b2c(w http.ResponseWriter, r *http.Request, kind string,
	apply func(context.Context, mpesa.B2CResult) (models.Order, bool, error)) {
	body, ok := h.readCallback(w, r)
	if !ok {
		return
	}
	res, err := mpesa.DecodeB2CResult(body)
	if err != nil {
		h.Log.Warn("b2c callback rejected", zap.String("kind", kind), zap.Error(err))
		writeError(w, err)
		return
	}
	order, applied, err := apply(r.Context(), res)
	h.ack(w, kind, res.CorrelationID(), order, applied, err)
}

func (h *Handler) readCallback(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		writeError(w, errBadRequest)
		return nil, false
	}
	return body, true
}

func (h *Handler) ack(w http.ResponseWriter, kind, id string, order models.Order, applied bool, err error) {
	log := h.Log.With(zap.String("kind", kind), zap.String("order_id", id))
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Warn("callback for unknown order")
	case err != nil:
		log.Warn("callback not applied", zap.Error(err))
		writeError(w, err)
		return
	case !applied:
		log.Info("duplicate or late callback ignored", zap.String("status", string(order.Status)))
	}
	writeJSON(w, http.StatusOK, darajaAck{ResultCode: 0, ResultDesc: "Accepted"})
}
