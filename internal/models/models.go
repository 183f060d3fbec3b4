package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

func (d Direction) Valid() bool {
	return d == Buy || d == Sell
}

type OrderStatus string

const (
	OrderPending          OrderStatus = "pending"
	OrderPaymentConfirmed OrderStatus = "payment_confirmed"
	OrderCompleted        OrderStatus = "completed"
	OrderCancelled        OrderStatus = "cancelled"
	OrderFailed           OrderStatus = "failed"
	OrderTimeout          OrderStatus = "timeout"
	OrderTransferFailed   OrderStatus = "transfer_failed"
)

// Terminal reports whether no further transition may leave s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderCompleted, OrderCancelled, OrderFailed, OrderTimeout, OrderTransferFailed:
		return true
	}
	return false
}

// Charged reports whether the user's fiat was collected but tokens were not
// delivered. Clients must render it apart from failed/cancelled.
func (s OrderStatus) Charged() bool {
	return s == OrderTransferFailed
}

type edge struct {
	from OrderStatus
	to   OrderStatus
}

var buyEdges = map[edge]struct{}{
	{OrderPending, OrderPaymentConfirmed}:        {},
	{OrderPending, OrderCancelled}:               {},
	{OrderPending, OrderFailed}:                  {},
	{OrderPending, OrderTimeout}:                 {},
	{OrderPaymentConfirmed, OrderCompleted}:      {},
	{OrderPaymentConfirmed, OrderFailed}:         {},
	{OrderPaymentConfirmed, OrderTransferFailed}: {},
}

// Sell orders have no confirmation step: the token leg is verified before the
// payout is requested, so the payout result resolves the order directly.
var sellEdges = map[edge]struct{}{
	{OrderPending, OrderCompleted}: {},
	{OrderPending, OrderCancelled}: {},
	{OrderPending, OrderFailed}:    {},
	{OrderPending, OrderTimeout}:   {},
}

// CanTransition reports whether from -> to is a legal edge for direction d.
func CanTransition(d Direction, from, to OrderStatus) bool {
	e := edge{from: from, to: to}
	switch d {
	case Buy:
		_, ok := buyEdges[e]
		return ok
	case Sell:
		_, ok := sellEdges[e]
		return ok
	}
	return false
}

// Details is the audit record of the last external response relevant to the
// order. It is never consulted for control flow.
type Details struct {
	ResultCode        string          `json:"resultCode,omitempty"`
	ResultDesc        string          `json:"resultDesc,omitempty"`
	CheckoutRequestID string          `json:"checkoutRequestId,omitempty"`
	ReceiptNumber     string          `json:"receiptNumber,omitempty"`
	BlockRef          string          `json:"blockRef,omitempty"`
	Error             string          `json:"error,omitempty"`
	TransactionHash   string          `json:"transactionHash,omitempty"`
	UnverifiedClaim   bool            `json:"unverifiedClaim,omitempty"`
	Source            string          `json:"source,omitempty"`
	Raw               json.RawMessage `json:"raw,omitempty"`
}

// Merge returns d with every non-zero field of patch applied on top.
func (d Details) Merge(patch Details) Details {
	if patch.ResultCode != "" {
		d.ResultCode = patch.ResultCode
	}
	if patch.ResultDesc != "" {
		d.ResultDesc = patch.ResultDesc
	}
	if patch.CheckoutRequestID != "" {
		d.CheckoutRequestID = patch.CheckoutRequestID
	}
	if patch.ReceiptNumber != "" {
		d.ReceiptNumber = patch.ReceiptNumber
	}
	if patch.BlockRef != "" {
		d.BlockRef = patch.BlockRef
	}
	if patch.Error != "" {
		d.Error = patch.Error
	}
	if patch.TransactionHash != "" {
		d.TransactionHash = patch.TransactionHash
	}
	if patch.UnverifiedClaim {
		d.UnverifiedClaim = true
	}
	if patch.Source != "" {
		d.Source = patch.Source
	}
	if len(patch.Raw) > 0 {
		d.Raw = append(json.RawMessage(nil), patch.Raw...)
	}
	return d
}

type Order struct {
	ID                  string
	Direction           Direction
	Token               string
	FiatAmount          decimal.Decimal
	TokenAmount         decimal.Decimal
	Rate                decimal.Decimal
	CounterpartyAddress string
	Phone               string
	Status              OrderStatus
	Details             Details
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Transition is one applied status change, as reported to store observers.
type Transition struct {
	OrderID   string
	Direction Direction
	From      OrderStatus
	To        OrderStatus
	Details   Details
	At        time.Time
}
