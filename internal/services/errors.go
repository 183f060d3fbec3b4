package services

import (
	"errors"
	"fmt"

	"DOTRamp/internal/balance"
)

var (
	ErrValidation            = errors.New("validation error")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrAmountTooLow          = errors.New("amount below minimum payout")
	ErrIllegalTransition     = errors.New("illegal status transition")
)

// BalanceError is returned when a pre-flight balance check fails. Kind is
// ErrInsufficientLiquidity for the pool and ErrInsufficientBalance for a user.
type BalanceError struct {
	Kind   error
	Token  string
	Result balance.Result
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("%v: %s current %s required %s after %s", e.Kind, e.Token,
		e.Result.CurrentBalance, e.Result.RequiredBalance, e.Result.BalanceAfterTx)
}

func (e *BalanceError) Unwrap() error { return e.Kind }

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
