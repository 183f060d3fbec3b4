package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"DOTRamp/internal/balance"
	"DOTRamp/internal/ledger"
	"DOTRamp/internal/models"
	"DOTRamp/internal/mpesa"
	"DOTRamp/internal/pricing"
	"DOTRamp/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine reconciles the fiat and token legs of buy and sell orders. Every
// status change goes through Store.Transition, so racing confirmations for
// the same order resolve to a single winner.
type Engine struct {
	Store     store.Store
	Pricing   *pricing.Service
	Balance   BalanceChecker
	Gateway   Gateway
	Ledger    Ledger
	Notifier  Notifier
	Scheduler Scheduler
	Log       *zap.Logger

	PoolAddress     string
	Signer          string
	MinPayout       decimal.Decimal
	FinalityTimeout time.Duration

	wg sync.WaitGroup
}

type BuyRequest struct {
	Phone       string
	Amount      decimal.Decimal
	Token       string
	UserAddress string
}

type SellRequest struct {
	Phone           string
	Amount          decimal.Decimal
	Token           string
	FromAddress     string
	TransactionHash string
}

// Buy quotes the token amount, checks pool liquidity and starts an STK
// charge. The returned order is Pending; confirmation arrives by webhook or
// by the scheduled poller.
func (e *Engine) Buy(ctx context.Context, req BuyRequest) (models.Order, error) {
	phone, err := mpesa.NormalizePhone(req.Phone)
	if err != nil {
		return models.Order{}, validationError("phone: %v", err)
	}
	if !req.Amount.IsPositive() || !req.Amount.IsInteger() {
		return models.Order{}, validationError("amount must be a positive whole number")
	}
	if err := validateAddress("userAddress", req.UserAddress); err != nil {
		return models.Order{}, err
	}

	quote, err := e.Pricing.Quote(req.Amount, req.Token, models.Buy)
	if err != nil {
		return models.Order{}, err
	}

	res, err := e.Balance.CheckBalance(ctx, e.PoolAddress, quote.Token, quote.Result)
	if err != nil {
		return models.Order{}, fmt.Errorf("check pool liquidity: %w", err)
	}
	if !res.HasEnough {
		return models.Order{}, &BalanceError{Kind: ErrInsufficientLiquidity, Token: quote.Token, Result: res}
	}

	charge, err := e.Gateway.InitiateCharge(ctx, mpesa.ChargeRequest{
		Amount:      req.Amount,
		Phone:       phone,
		Description: "Buy " + quote.Token,
	})
	if err != nil {
		return models.Order{}, err
	}

	order := models.Order{
		ID:                  charge.MerchantRequestID,
		Direction:           models.Buy,
		Token:               quote.Token,
		FiatAmount:          req.Amount,
		TokenAmount:         quote.Result,
		Rate:                quote.Rate,
		CounterpartyAddress: strings.TrimSpace(req.UserAddress),
		Phone:               phone,
		Status:              models.OrderPending,
		Details: models.Details{
			ResultCode:        charge.ResponseCode,
			ResultDesc:        charge.ResponseDescription,
			CheckoutRequestID: charge.CheckoutRequestID,
			Source:            "stk_push",
		},
	}
	if err := e.Store.Create(ctx, order); err != nil {
		// the customer already has the STK prompt
		e.Log.Error("buy order not recorded after charge request",
			zap.String("order_id", order.ID),
			zap.String("checkout_request_id", charge.CheckoutRequestID),
			zap.String("phone", phone),
			zap.String("fiat", order.FiatAmount.String()),
			zap.Error(err))
		return models.Order{}, err
	}
	e.Log.Info("buy order created",
		zap.String("order_id", order.ID),
		zap.String("token", order.Token),
		zap.String("fiat", order.FiatAmount.String()),
		zap.String("token_amount", order.TokenAmount.String()))

	if e.Scheduler != nil {
		e.Scheduler.Schedule(order.ID, charge.CheckoutRequestID)
	}
	return e.Store.Get(ctx, order.ID)
}

// Sell checks the seller still holds the tokens, quotes the fiat amount and
// requests a B2C payout. The claimed transaction hash is recorded but not
// verified on chain; such orders carry UnverifiedClaim for manual review.
func (e *Engine) Sell(ctx context.Context, req SellRequest) (models.Order, error) {
	phone, err := mpesa.NormalizePhone(req.Phone)
	if err != nil {
		return models.Order{}, validationError("phone: %v", err)
	}
	if !req.Amount.IsPositive() {
		return models.Order{}, validationError("amount must be positive")
	}
	if err := validateAddress("fromAddress", req.FromAddress); err != nil {
		return models.Order{}, err
	}

	token, err := e.Pricing.Token(req.Token)
	if err != nil {
		return models.Order{}, err
	}

	res, err := e.Balance.CheckBalance(ctx, req.FromAddress, token.Symbol, req.Amount)
	if err != nil {
		return models.Order{}, fmt.Errorf("check seller balance: %w", err)
	}
	if !res.HasEnough {
		return models.Order{}, &BalanceError{Kind: ErrInsufficientBalance, Token: token.Symbol, Result: res}
	}

	quote, err := e.Pricing.Quote(req.Amount, token.Symbol, models.Sell)
	if err != nil {
		return models.Order{}, err
	}
	if !quote.Result.IsPositive() || quote.Result.LessThan(e.MinPayout) {
		return models.Order{}, fmt.Errorf("%w: %s < %s", ErrAmountTooLow, quote.Result, e.MinPayout)
	}

	payout, err := e.Gateway.InitiatePayout(ctx, mpesa.PayoutRequest{
		Amount:   quote.Result,
		Phone:    phone,
		Remarks:  fmt.Sprintf("Sell %s %s", req.Amount, token.Symbol),
		Occasion: "DotRamp",
	})
	if err != nil {
		return models.Order{}, err
	}

	id := payout.CorrelationID()
	if id == "" {
		id = uuid.NewString()
	}
	order := models.Order{
		ID:                  id,
		Direction:           models.Sell,
		Token:               token.Symbol,
		FiatAmount:          quote.Result,
		TokenAmount:         req.Amount,
		Rate:                quote.Rate,
		CounterpartyAddress: strings.TrimSpace(req.FromAddress),
		Phone:               phone,
		Status:              models.OrderPending,
		Details: models.Details{
			ResultCode:      payout.ResponseCode,
			ResultDesc:      payout.ResponseDescription,
			TransactionHash: strings.TrimSpace(req.TransactionHash),
			UnverifiedClaim: true,
			Source:          "b2c",
		},
	}
	if err := e.Store.Create(ctx, order); err != nil {
		// the payout is already queued upstream
		e.Log.Error("sell order not recorded after payout request",
			zap.String("order_id", id),
			zap.String("phone", phone),
			zap.String("fiat", quote.Result.String()),
			zap.Error(err))
		return models.Order{}, err
	}
	e.Log.Info("sell order created",
		zap.String("order_id", order.ID),
		zap.String("token", order.Token),
		zap.String("token_amount", order.TokenAmount.String()),
		zap.String("fiat", order.FiatAmount.String()),
		zap.Bool("has_tx_hash", order.Details.TransactionHash != ""))
	return e.Store.Get(ctx, order.ID)
}

// QuoteResult adds the M-Pesa customer fee for the fiat side of a quote.
type QuoteResult struct {
	pricing.Quote
	Direction models.Direction `json:"type"`
	Fee       decimal.Decimal  `json:"mpesaFee"`
}

func (e *Engine) Quote(amount decimal.Decimal, symbol string, d models.Direction) (QuoteResult, error) {
	if !d.Valid() {
		return QuoteResult{}, validationError("type must be buy or sell")
	}
	q, err := e.Pricing.Quote(amount, symbol, d)
	if err != nil {
		return QuoteResult{}, err
	}
	fiat := q.Amount
	if d == models.Sell {
		fiat = q.Result
	}
	return QuoteResult{Quote: q, Direction: d, Fee: pricing.MpesaFee(fiat)}, nil
}

func (e *Engine) Status(ctx context.Context, id string) (models.Order, error) {
	return e.Store.Get(ctx, id)
}

func (e *Engine) List(ctx context.Context, filter store.Filter) ([]models.Order, error) {
	return e.Store.List(ctx, filter)
}

func (e *Engine) Tokens() []pricing.Token {
	return e.Pricing.Tokens()
}

func (e *Engine) SetRate(symbol string, rate decimal.Decimal) (pricing.Token, error) {
	if err := e.Pricing.SetRate(symbol, rate); err != nil {
		return pricing.Token{}, err
	}
	e.Log.Info("rate updated", zap.String("token", symbol), zap.String("rate", rate.String()))
	return e.Pricing.Token(symbol)
}

// CheckBalance reports the spendable balance of address. A zero amount only
// checks the token's floor.
func (e *Engine) CheckBalance(ctx context.Context, address, symbol string, amount decimal.Decimal) (BalanceReport, error) {
	if err := validateAddress("address", address); err != nil {
		return BalanceReport{}, err
	}
	if amount.IsNegative() {
		return BalanceReport{}, validationError("amount must not be negative")
	}
	token, err := e.Pricing.Token(symbol)
	if err != nil {
		return BalanceReport{}, err
	}
	res, err := e.Balance.CheckBalance(ctx, address, token.Symbol, amount)
	if err != nil {
		return BalanceReport{}, err
	}
	return BalanceReport{Address: address, Token: token.Symbol, Result: res}, nil
}

type BalanceReport struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	balance.Result
}

// Wait blocks until every background disbursement has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func validateAddress(field, addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return validationError("%s is required", field)
	}
	if err := ledger.ValidateAddress(addr); err != nil {
		return validationError("%s: %v", field, err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
