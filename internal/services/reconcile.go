package services

import (
	"context"
	"fmt"

	"DOTRamp/internal/models"
	"DOTRamp/internal/mpesa"

	"go.uber.org/zap"
)

const (
	SourceCallback = "callback"
	SourcePoll     = "poll"
	SourceAdmin    = "admin"
	SourceTimeout  = "timeout"
)

// HandleSTKCallback applies a charge outcome delivered by webhook. Failures
// apply directly; a success is checked with QueryChargeStatus first.
func (e *Engine) HandleSTKCallback(ctx context.Context, res mpesa.STKResult) (models.Order, bool, error) {
	order, err := e.Store.Get(ctx, res.MerchantRequestID)
	if err != nil {
		return models.Order{}, false, err
	}
	if res.CheckoutRequestID != "" && order.Details.CheckoutRequestID != "" &&
		res.CheckoutRequestID != order.Details.CheckoutRequestID {
		return order, false, validationError("checkout request id does not match order %s", order.ID)
	}

	patch := models.Details{
		ResultCode:    res.ResultCode,
		ResultDesc:    res.ResultDesc,
		ReceiptNumber: res.ReceiptNumber,
		Source:        SourceCallback,
		Raw:           res.Raw,
	}
	if res.Outcome() != mpesa.OutcomeSuccess {
		return e.resolveCharge(ctx, order.ID, res.Outcome(), patch)
	}
	if order.Status != models.OrderPending {
		return order, false, nil
	}

	// the callback route is public; a success only counts once the gateway
	// reports it for the same checkout request
	st, err := e.Gateway.QueryChargeStatus(ctx, order.Details.CheckoutRequestID)
	if err != nil {
		return order, false, fmt.Errorf("confirm charge %s: %w", order.ID, err)
	}
	switch st.Outcome {
	case mpesa.OutcomeSuccess:
		return e.resolveCharge(ctx, order.ID, mpesa.OutcomeSuccess, patch)
	case mpesa.OutcomePending:
		e.Log.Warn("callback success not yet confirmed by gateway",
			zap.String("order_id", order.ID),
			zap.String("query_code", st.ResultCode))
		return order, false, nil
	default:
		e.Log.Warn("callback success contradicted by gateway",
			zap.String("order_id", order.ID),
			zap.String("query_code", st.ResultCode),
			zap.String("query_desc", st.ResultDesc))
		return e.resolveCharge(ctx, order.ID, st.Outcome, models.Details{
			ResultCode: st.ResultCode,
			ResultDesc: st.ResultDesc,
			Source:     SourcePoll,
			Raw:        st.Raw,
		})
	}
}

// ApplyChargeStatus applies a charge outcome learned by polling.
func (e *Engine) ApplyChargeStatus(ctx context.Context, orderID string, st mpesa.ChargeStatus) (models.Order, bool, error) {
	patch := models.Details{
		ResultCode: st.ResultCode,
		ResultDesc: st.ResultDesc,
		Source:     SourcePoll,
		Raw:        st.Raw,
	}
	return e.resolveCharge(ctx, orderID, st.Outcome, patch)
}

// ExpireCharge moves a buy order that never got a definitive answer to
// Timeout. It is a no-op once the order left Pending.
func (e *Engine) ExpireCharge(ctx context.Context, orderID string, reason string) (models.Order, bool, error) {
	order, ok, err := e.Store.Transition(ctx, orderID,
		[]models.OrderStatus{models.OrderPending}, models.OrderTimeout,
		models.Details{Error: reason, Source: SourcePoll})
	if err != nil {
		return models.Order{}, false, err
	}
	if ok {
		e.Log.Warn("charge confirmation timed out", zap.String("order_id", orderID), zap.String("reason", reason))
	}
	return order, ok, nil
}

// resolveCharge is the single funnel for charge outcomes. Only the caller that
// moves the order out of Pending acts on it; disbursement starts only for the
// caller that won Pending -> PaymentConfirmed.
func (e *Engine) resolveCharge(ctx context.Context, orderID string, outcome mpesa.Outcome, patch models.Details) (models.Order, bool, error) {
	var to models.OrderStatus
	switch outcome {
	case mpesa.OutcomeSuccess:
		to = models.OrderPaymentConfirmed
	case mpesa.OutcomeCancelled:
		to = models.OrderCancelled
	case mpesa.OutcomeFailed:
		to = models.OrderFailed
	default:
		order, err := e.Store.Get(ctx, orderID)
		return order, false, err
	}

	order, ok, err := e.Store.Transition(ctx, orderID, []models.OrderStatus{models.OrderPending}, to, patch)
	if err != nil {
		return models.Order{}, false, err
	}
	if !ok {
		e.Log.Debug("charge outcome ignored",
			zap.String("order_id", orderID),
			zap.String("status", string(order.Status)),
			zap.String("outcome", outcome.String()),
			zap.String("source", patch.Source))
		return order, false, nil
	}

	e.Log.Info("charge resolved",
		zap.String("order_id", orderID),
		zap.String("status", string(to)),
		zap.String("result_code", patch.ResultCode),
		zap.String("source", patch.Source))

	if to == models.OrderPaymentConfirmed {
		e.startDisbursement(ctx, order)
	}
	return order, true, nil
}

// HandlePayoutResult records the B2C result for a sell order.
func (e *Engine) HandlePayoutResult(ctx context.Context, res mpesa.B2CResult) (models.Order, bool, error) {
	order, err := e.payoutOrder(ctx, res)
	if err != nil {
		return models.Order{}, false, err
	}

	var to models.OrderStatus
	switch res.Outcome() {
	case mpesa.OutcomeSuccess:
		to = models.OrderCompleted
	case mpesa.OutcomeCancelled:
		to = models.OrderCancelled
	case mpesa.OutcomeFailed:
		to = models.OrderFailed
	default:
		return order, false, nil
	}

	patch := models.Details{
		ResultCode:    res.ResultCode,
		ResultDesc:    res.ResultDesc,
		ReceiptNumber: res.TransactionID,
		Source:        SourceCallback,
		Raw:           res.Raw,
	}
	return e.resolveSell(ctx, order.ID, to, patch)
}

// HandlePayoutTimeout records the B2C queue timeout for a sell order.
func (e *Engine) HandlePayoutTimeout(ctx context.Context, res mpesa.B2CResult) (models.Order, bool, error) {
	order, err := e.payoutOrder(ctx, res)
	if err != nil {
		return models.Order{}, false, err
	}
	patch := models.Details{
		ResultCode: res.ResultCode,
		ResultDesc: res.ResultDesc,
		Error:      "payout request timed out in gateway queue",
		Source:     SourceTimeout,
		Raw:        res.Raw,
	}
	return e.resolveSell(ctx, order.ID, models.OrderTimeout, patch)
}

func (e *Engine) resolveSell(ctx context.Context, id string, to models.OrderStatus, patch models.Details) (models.Order, bool, error) {
	order, ok, err := e.Store.Transition(ctx, id, []models.OrderStatus{models.OrderPending}, to, patch)
	if err != nil || !ok {
		return order, false, err
	}
	fields := []zap.Field{
		zap.String("order_id", id),
		zap.String("status", string(to)),
		zap.String("result_code", patch.ResultCode),
	}
	if to == models.OrderCompleted {
		e.Log.Info("payout resolved", fields...)
	} else {
		// tokens were already sent by the seller
		e.Log.Error("payout not delivered, manual remediation required", fields...)
	}
	return order, true, nil
}

func (e *Engine) payoutOrder(ctx context.Context, res mpesa.B2CResult) (models.Order, error) {
	order, err := e.Store.Get(ctx, res.ConversationID)
	if isNotFound(err) && res.OriginatorConversationID != "" {
		order, err = e.Store.Get(ctx, res.OriginatorConversationID)
	}
	if err != nil {
		return models.Order{}, err
	}
	if order.Direction != models.Sell {
		return models.Order{}, validationError("order %s is not a sell order", order.ID)
	}
	return order, nil
}

// Cancel administratively cancels an order that has not been confirmed.
func (e *Engine) Cancel(ctx context.Context, id string) (models.Order, error) {
	order, ok, err := e.Store.Transition(ctx, id,
		[]models.OrderStatus{models.OrderPending}, models.OrderCancelled,
		models.Details{ResultDesc: "cancelled by operator", Source: SourceAdmin})
	if err != nil {
		return models.Order{}, err
	}
	if !ok {
		return order, fmt.Errorf("%w: order %s is %s", ErrIllegalTransition, id, order.Status)
	}
	e.Log.Info("order cancelled", zap.String("order_id", id))
	return order, nil
}
