package balance

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"DOTRamp/internal/ledger"
	"DOTRamp/internal/pricing"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("amount must not be negative")

// Ledger is the read side of the chain client.
type Ledger interface {
	GetBalance(ctx context.Context, address string, assetID uint32) (ledger.Balance, error)
}

// Tokens resolves registry entries by symbol.
type Tokens interface {
	Token(symbol string) (pricing.Token, error)
}

// Result amounts are in token units. CurrentBalance is the spendable balance,
// RequiredBalance the amount plus the token's floor.
type Result struct {
	HasEnough       bool            `json:"hasEnough"`
	CurrentBalance  decimal.Decimal `json:"currentBalance"`
	RequiredBalance decimal.Decimal `json:"requiredBalance"`
	BalanceAfterTx  decimal.Decimal `json:"balanceAfterTx"`
}

type Oracle struct {
	Ledger Ledger
	Tokens Tokens
}

func NewOracle(l Ledger, tokens Tokens) *Oracle {
	return &Oracle{Ledger: l, Tokens: tokens}
}

// CheckBalance reports whether address can send amount of symbol without
// dropping below the token's minimum balance. Frozen funds are not spendable.
func (o *Oracle) CheckBalance(ctx context.Context, address, symbol string, amount decimal.Decimal) (Result, error) {
	if amount.IsNegative() {
		return Result{}, ErrInvalidAmount
	}
	token, err := o.Tokens.Token(symbol)
	if err != nil {
		return Result{}, err
	}

	bal, err := o.Ledger.GetBalance(ctx, address, token.AssetID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		bal, err = ledger.ZeroBalance(), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("query balance of %s: %w", address, err)
	}

	spendable := Spendable(bal)
	need := ToNative(amount, token.Decimals)
	floor := ToNative(token.MinBalance, token.Decimals)
	after := new(big.Int).Sub(spendable, need)

	has := spendable.Cmp(need) >= 0 && after.Cmp(floor) >= 0

	return Result{
		HasEnough:       has,
		CurrentBalance:  FromNative(spendable, token.Decimals),
		RequiredBalance: FromNative(new(big.Int).Add(need, floor), token.Decimals),
		BalanceAfterTx:  FromNative(after, token.Decimals),
	}, nil
}

// Spendable is free minus frozen, never below zero. Nil fields count as zero.
func Spendable(b ledger.Balance) *big.Int {
	out := new(big.Int)
	if b.Free != nil {
		out.Set(b.Free)
	}
	if b.Frozen != nil {
		out.Sub(out, b.Frozen)
	}
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

// ToNative scales a token amount to the chain's integer unit, dropping any
// precision beyond the token's decimals.
func ToNative(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

func FromNative(v *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(v, -decimals)
}
