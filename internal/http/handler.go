package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"DOTRamp/internal/models"
	"DOTRamp/internal/services"
	"DOTRamp/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Handler struct {
	Engine *services.Engine
	Log    *zap.Logger
}

func NewHandler(engine *services.Engine, log *zap.Logger) *Handler {
	return &Handler{Engine: engine, Log: log}
}

type buyRequest struct {
	Phone       string          `json:"phone"`
	Amount      decimal.Decimal `json:"amount"`
	Token       string          `json:"token"`
	UserAddress string          `json:"userAddress"`
}

type sellRequest struct {
	Phone           string          `json:"phone"`
	Amount          decimal.Decimal `json:"amount"`
	Token           string          `json:"token"`
	FromAddress     string          `json:"fromAddress"`
	TransactionHash string          `json:"transactionHash"`
}

type payoutRequest struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
	Token   string          `json:"token"`
}

type rateRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json body: %v", errBadRequest, err)
	}
	return nil
}

func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	order, err := h.Engine.Buy(r.Context(), services.BuyRequest{
		Phone:       req.Phone,
		Amount:      req.Amount,
		Token:       req.Token,
		UserAddress: req.UserAddress,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, envelope{
		"merchantRequestId": order.ID,
		"checkoutRequestId": order.Details.CheckoutRequestID,
		"order":             newOrderView(order),
	})
}

func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	order, err := h.Engine.Sell(r.Context(), services.SellRequest{
		Phone:           req.Phone,
		Amount:          req.Amount,
		Token:           req.Token,
		FromAddress:     req.FromAddress,
		TransactionHash: req.TransactionHash,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, envelope{
		"requestId": order.ID,
		"order":     newOrderView(order),
	})
}

// Status accepts requestId, or merchantRequestId as sent by older clients.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("requestId")
	if id == "" {
		id = r.URL.Query().Get("merchantRequestId")
	}
	if id == "" {
		writeError(w, fmt.Errorf("%w: requestId is required", errBadRequest))
		return
	}
	h.writeOrder(w, r, id)
}

func (h *Handler) Transaction(w http.ResponseWriter, r *http.Request) {
	h.writeOrder(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) writeOrder(w http.ResponseWriter, r *http.Request, id string) {
	order, err := h.Engine.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, envelope{
		"requestId":     order.ID,
		"paymentStatus": order.Status,
		"resultDesc":    order.Details.ResultDesc,
		"order":         newOrderView(order),
	})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.Filter{Direction: models.Direction(q.Get("type"))}
	if filter.Direction != "" && !filter.Direction.Valid() {
		writeError(w, fmt.Errorf("%w: type must be buy or sell", errBadRequest))
		return
	}
	for _, s := range strings.Split(q.Get("status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			filter.Status = append(filter.Status, models.OrderStatus(s))
		}
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest))
			return
		}
		filter.Limit = limit
	}

	orders, err := h.Engine.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	views := newOrderViews(orders)
	for i := range views {
		views[i].Phone = orders[i].Phone
	}
	writeSuccess(w, envelope{"count": len(views), "transactions": views})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.Engine.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, envelope{"order": newOrderView(order)})
}

func (h *Handler) Payout(w http.ResponseWriter, r *http.Request) {
	var req payoutRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.Engine.Payout(r.Context(), services.PayoutRequest{
		Address: req.Address,
		Amount:  req.Amount,
		Token:   req.Token,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, envelope{"payout": res})
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount := decimal.Zero
	if v := q.Get("amount"); v != "" {
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: amount is not a number", errBadRequest))
			return
		}
		amount = parsed
	}
	res, err := h.Engine.CheckBalance(r.Context(), q.Get("address"), q.Get("token"), amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, envelope{"balance": res})
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: amount is not a number", errBadRequest))
		return
	}
	d := models.Direction(strings.ToLower(q.Get("type")))
	if d == "" {
		d = models.Buy
	}
	res, err := h.Engine.Quote(amount, q.Get("token"), d)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, envelope{"quote": res})
}

func (h *Handler) Tokens(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, envelope{"tokens": h.Engine.Tokens()})
}

func (h *Handler) SetRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	token, err := h.Engine.SetRate(chi.URLParam(r, "token"), req.Rate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, envelope{"token": token})
}
