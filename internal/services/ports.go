package services

import (
	"context"

	"DOTRamp/internal/balance"
	"DOTRamp/internal/ledger"
	"DOTRamp/internal/mpesa"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=ports.go -destination=mock/ports.go -package=mock

// Gateway is the mobile-money side: STK charges, their status, B2C payouts.
type Gateway interface {
	InitiateCharge(ctx context.Context, req mpesa.ChargeRequest) (mpesa.ChargeResponse, error)
	QueryChargeStatus(ctx context.Context, checkoutRequestID string) (mpesa.ChargeStatus, error)
	InitiatePayout(ctx context.Context, req mpesa.PayoutRequest) (mpesa.PayoutResponse, error)
}

// Ledger is the chain side: balances and signed transfers.
type Ledger interface {
	GetBalance(ctx context.Context, address string, assetID uint32) (ledger.Balance, error)
	Transfer(ctx context.Context, req ledger.TransferRequest) (<-chan ledger.TransferUpdate, error)
}

type BalanceChecker interface {
	CheckBalance(ctx context.Context, address, symbol string, amount decimal.Decimal) (balance.Result, error)
}

// Scheduler starts background confirmation polling for a buy order.
type Scheduler interface {
	Schedule(orderID, checkoutRequestID string)
}

type Notifier interface {
	Notify(ctx context.Context, phone, message string) error
}
