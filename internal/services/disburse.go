package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"DOTRamp/internal/balance"
	"DOTRamp/internal/ledger"
	"DOTRamp/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultFinalityTimeout = 2 * time.Minute

// startDisbursement sends the tokens for a confirmed buy order in the
// background. It must only be called by the winner of
// Pending -> PaymentConfirmed.
func (e *Engine) startDisbursement(ctx context.Context, order models.Order) {
	ctx = context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.disburse(ctx, order)
	}()
}

func (e *Engine) disburse(ctx context.Context, order models.Order) {
	log := e.Log.With(zap.String("order_id", order.ID), zap.String("token", order.Token))

	blockRef, err := e.transfer(ctx, order.CounterpartyAddress, order.Token, order.TokenAmount)
	if err != nil {
		// fiat was collected; this order needs an operator
		log.Error("token transfer failed after payment", zap.Error(err))
		if _, _, terr := e.Store.Transition(ctx, order.ID,
			[]models.OrderStatus{models.OrderPaymentConfirmed}, models.OrderTransferFailed,
			models.Details{Error: err.Error(), Source: "ledger"}); terr != nil {
			log.Error("record transfer failure", zap.Error(terr))
		}
		return
	}

	done, ok, err := e.Store.Transition(ctx, order.ID,
		[]models.OrderStatus{models.OrderPaymentConfirmed}, models.OrderCompleted,
		models.Details{BlockRef: blockRef, Source: "ledger"})
	if err != nil || !ok {
		log.Error("record completed transfer", zap.String("block", blockRef), zap.Error(err))
		return
	}
	log.Info("tokens disbursed", zap.String("block", blockRef), zap.String("amount", done.TokenAmount.String()))

	if e.Notifier == nil {
		return
	}
	msg := fmt.Sprintf("DotRamp: %s %s sent to %s. Ref %s", done.TokenAmount, done.Token, shortAddress(done.CounterpartyAddress), done.ID)
	if err := e.Notifier.Notify(ctx, done.Phone, msg); err != nil {
		log.Warn("notification failed", zap.Error(err))
	}
}

// transfer submits amount of symbol from the pool and waits for inclusion.
// FinalityTimeout counts from submission.
func (e *Engine) transfer(ctx context.Context, dest, symbol string, amount decimal.Decimal) (string, error) {
	token, err := e.Pricing.Token(symbol)
	if err != nil {
		return "", err
	}
	native := balance.ToNative(amount, token.Decimals)
	if native.Sign() <= 0 {
		return "", ledger.ErrInvalidAmount
	}

	timeout := e.FinalityTimeout
	if timeout <= 0 {
		timeout = defaultFinalityTimeout
	}
	// ending ctx on return closes the status stream and frees the signer
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := e.Ledger.Transfer(ctx, ledger.TransferRequest{
		Signer:      e.Signer,
		Destination: dest,
		Amount:      native,
		AssetID:     token.AssetID,
	})
	if err != nil {
		return "", fmt.Errorf("submit transfer: %w", err)
	}

	// time spent queued behind the signer's earlier transfers does not count
	waitCtx, stop := context.WithTimeout(ctx, timeout)
	defer stop()
	return ledger.AwaitInBlock(waitCtx, updates)
}

type PayoutRequest struct {
	Address string
	Amount  decimal.Decimal
	Token   string
}

type PayoutResult struct {
	Address  string          `json:"address"`
	Token    string          `json:"token"`
	Amount   decimal.Decimal `json:"amount"`
	BlockRef string          `json:"blockRef"`
}

// Payout is a manual disbursement from the pool, outside any order. It waits
// for inclusion before returning.
func (e *Engine) Payout(ctx context.Context, req PayoutRequest) (PayoutResult, error) {
	if err := validateAddress("address", req.Address); err != nil {
		return PayoutResult{}, err
	}
	if !req.Amount.IsPositive() {
		return PayoutResult{}, validationError("amount must be positive")
	}
	token, err := e.Pricing.Token(req.Token)
	if err != nil {
		return PayoutResult{}, err
	}

	res, err := e.Balance.CheckBalance(ctx, e.PoolAddress, token.Symbol, req.Amount)
	if err != nil {
		return PayoutResult{}, fmt.Errorf("check pool liquidity: %w", err)
	}
	if !res.HasEnough {
		return PayoutResult{}, &BalanceError{Kind: ErrInsufficientLiquidity, Token: token.Symbol, Result: res}
	}

	addr := strings.TrimSpace(req.Address)
	blockRef, err := e.transfer(ctx, addr, token.Symbol, req.Amount)
	if err != nil {
		return PayoutResult{}, err
	}
	e.Log.Info("manual payout sent",
		zap.String("address", addr),
		zap.String("token", token.Symbol),
		zap.String("amount", req.Amount.String()),
		zap.String("block", blockRef))
	return PayoutResult{Address: addr, Token: token.Symbol, Amount: req.Amount, BlockRef: blockRef}, nil
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
