package http

import (
	"time"

	"DOTRamp/internal/models"

	"github.com/shopspring/decimal"
)

type orderView struct {
	ID          string             `json:"id"`
	Direction   models.Direction   `json:"type"`
	Token       string             `json:"token"`
	FiatAmount  decimal.Decimal    `json:"fiatAmount"`
	TokenAmount decimal.Decimal    `json:"tokenAmount"`
	Rate        decimal.Decimal    `json:"rate"`
	Address     string             `json:"address"`
	Phone       string             `json:"phone"`
	Status      models.OrderStatus `json:"status"`
	Terminal    bool               `json:"terminal"`
	Charged     bool               `json:"charged"`
	Details     models.Details     `json:"details"`
	CreatedAt   string             `json:"createdAt"`
	UpdatedAt   string             `json:"updatedAt"`
}

func newOrderView(o models.Order) orderView {
	d := o.Details
	d.Raw = nil
	return orderView{
		ID:          o.ID,
		Direction:   o.Direction,
		Token:       o.Token,
		FiatAmount:  o.FiatAmount,
		TokenAmount: o.TokenAmount,
		Rate:        o.Rate,
		Address:     o.CounterpartyAddress,
		Phone:       maskPhone(o.Phone),
		Status:      o.Status,
		Terminal:    o.Status.Terminal(),
		Charged:     o.Status.Charged(),
		Details:     d,
		CreatedAt:   o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   o.UpdatedAt.Format(time.RFC3339),
	}
}

func newOrderViews(orders []models.Order) []orderView {
	out := make([]orderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderView(o))
	}
	return out
}

func maskPhone(p string) string {
	if len(p) < 7 {
		return p
	}
	return p[:6] + "***" + p[len(p)-3:]
}
