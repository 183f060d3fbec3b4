package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"DOTRamp/internal/models"
	"DOTRamp/internal/mpesa"

	"go.uber.org/zap"
)

// ChargeQuerier asks the gateway for a charge's current status.
type ChargeQuerier interface {
	QueryChargeStatus(ctx context.Context, checkoutRequestID string) (mpesa.ChargeStatus, error)
}

// Reconciler applies what the poller learns.
type Reconciler interface {
	Status(ctx context.Context, id string) (models.Order, error)
	ApplyChargeStatus(ctx context.Context, orderID string, st mpesa.ChargeStatus) (models.Order, bool, error)
	ExpireCharge(ctx context.Context, orderID string, reason string) (models.Order, bool, error)
}

// Poller confirms buy charges by querying the gateway on a fixed interval. A
// loop ends on the first definitive answer, when the order leaves Pending
// some other way, or after MaxAttempts, which moves the order to Timeout.
type Poller struct {
	Gateway     ChargeQuerier
	Reconciler  Reconciler
	Interval    time.Duration
	MaxAttempts int
	Log         *zap.Logger

	ctx context.Context
	wg  sync.WaitGroup
}

// NewPoller binds loops to ctx; cancelling it stops them without a verdict.
func NewPoller(ctx context.Context, gw ChargeQuerier, rec Reconciler, interval time.Duration, attempts int, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if attempts <= 0 {
		attempts = 8
	}
	return &Poller{
		Gateway:     gw,
		Reconciler:  rec,
		Interval:    interval,
		MaxAttempts: attempts,
		Log:         log,
		ctx:         ctx,
	}
}

func (p *Poller) Schedule(orderID, checkoutRequestID string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.poll(p.ctx, orderID, checkoutRequestID)
	}()
}

// Wait blocks until every scheduled loop has returned.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) poll(ctx context.Context, orderID, checkoutRequestID string) {
	log := p.Log.With(zap.String("order_id", orderID))
	timer := time.NewTimer(p.Interval)
	defer timer.Stop()

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			log.Info("poll stopped", zap.Int("attempt", attempt))
			return
		case <-timer.C:
		}
		timer.Reset(p.Interval)

		order, err := p.Reconciler.Status(ctx, orderID)
		if err != nil {
			log.Error("poll order lookup failed", zap.Error(err))
			return
		}
		if order.Status != models.OrderPending {
			return
		}

		st, err := p.Gateway.QueryChargeStatus(ctx, checkoutRequestID)
		if err != nil {
			log.Warn("charge status query failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", p.MaxAttempts),
				zap.Error(err))
			continue
		}
		if st.Outcome == mpesa.OutcomePending {
			log.Debug("charge still pending", zap.Int("attempt", attempt), zap.String("result_code", st.ResultCode))
			continue
		}
		if _, _, err := p.Reconciler.ApplyChargeStatus(ctx, orderID, st); err != nil {
			log.Error("apply charge status failed", zap.Error(err))
		}
		return
	}

	reason := fmt.Sprintf("no definitive charge status after %d attempts", p.MaxAttempts)
	if _, _, err := p.Reconciler.ExpireCharge(ctx, orderID, reason); err != nil {
		log.Error("expire charge failed", zap.Error(err))
	}
}
