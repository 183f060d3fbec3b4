package services_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"DOTRamp/internal/balance"
	"DOTRamp/internal/config"
	"DOTRamp/internal/ledger"
	"DOTRamp/internal/models"
	"DOTRamp/internal/mpesa"
	"DOTRamp/internal/pricing"
	"DOTRamp/internal/services"
	"DOTRamp/internal/services/mock"
	"DOTRamp/internal/store"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	alice = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	bob   = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
)

type mocks struct {
	gateway   *mock.MockGateway
	ledger    *mock.MockLedger
	balance   *mock.MockBalanceChecker
	scheduler *mock.MockScheduler
	notifier  *mock.MockNotifier
}

type prepareMocks func(m mocks)

func newEngine(t *testing.T, ctrl *gomock.Controller) (*services.Engine, mocks, *store.Memory) {
	t.Helper()
	prices, err := pricing.New([]config.Token{
		{Symbol: "PAS", Decimals: 10, Rate: "0.15", MinBalance: "1"},
		{Symbol: "USDT", Decimals: 6, AssetID: 1984, Rate: "0.0074", MinBalance: "0"},
	})
	require.NoError(t, err)

	m := mocks{
		gateway:   mock.NewMockGateway(ctrl),
		ledger:    mock.NewMockLedger(ctrl),
		balance:   mock.NewMockBalanceChecker(ctrl),
		scheduler: mock.NewMockScheduler(ctrl),
		notifier:  mock.NewMockNotifier(ctrl),
	}
	st := store.NewMemory()
	e := &services.Engine{
		Store:           st,
		Pricing:         prices,
		Balance:         m.balance,
		Gateway:         m.gateway,
		Ledger:          m.ledger,
		Notifier:        m.notifier,
		Scheduler:       m.scheduler,
		Log:             zap.NewNop(),
		PoolAddress:     bob,
		Signer:          "//Pool",
		MinPayout:       decimal.NewFromInt(10),
		FinalityTimeout: time.Second,
	}
	return e, m, st
}

// decimalMatcher compares by value; 150 and 150.00 are the same amount.
type decimalMatcher struct{ d decimal.Decimal }

func (m decimalMatcher) Matches(x interface{}) bool {
	v, ok := x.(decimal.Decimal)
	return ok && v.Equal(m.d)
}

func (m decimalMatcher) String() string { return "is decimal " + m.d.String() }

func decEq(v int64) gomock.Matcher { return decimalMatcher{d: decimal.NewFromInt(v)} }

func enough() balance.Result {
	return balance.Result{HasEnough: true}
}

func inBlock(ref string) <-chan ledger.TransferUpdate {
	ch := make(chan ledger.TransferUpdate, 2)
	ch <- ledger.TransferUpdate{Status: ledger.StatusReady}
	ch <- ledger.TransferUpdate{Status: ledger.StatusInBlock, BlockRef: ref}
	close(ch)
	return ch
}

func chargeAccepted(merchantID string) mpesa.ChargeResponse {
	return mpesa.ChargeResponse{
		MerchantRequestID:   merchantID,
		CheckoutRequestID:   "ws_CO_" + merchantID,
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
	}
}

func chargeSucceeded() mpesa.ChargeStatus {
	return mpesa.ChargeStatus{
		ResultCode: "0",
		ResultDesc: "The service request is processed successfully.",
		Outcome:    mpesa.OutcomeSuccess,
	}
}

func buyRequest() services.BuyRequest {
	return services.BuyRequest{
		Phone:       "254712345678",
		Amount:      decimal.NewFromInt(1000),
		Token:       "PAS",
		UserAddress: alice,
	}
}

func createBuy(t *testing.T, e *services.Engine, m mocks, id string) models.Order {
	t.Helper()
	m.balance.EXPECT().CheckBalance(gomock.Any(), bob, "PAS", gomock.Any()).Return(enough(), nil)
	m.gateway.EXPECT().InitiateCharge(gomock.Any(), gomock.Any()).Return(chargeAccepted(id), nil)
	m.scheduler.EXPECT().Schedule(id, "ws_CO_"+id)
	order, err := e.Buy(context.Background(), buyRequest())
	require.NoError(t, err)
	return order
}

func TestEngine_Buy(t *testing.T) {
	type buyTest struct {
		name     string
		req      func(r *services.BuyRequest)
		mock     prepareMocks
		expError error
	}

	tests := []buyTest{
		{
			name:     "bad phone",
			req:      func(r *services.BuyRequest) { r.Phone = "12" },
			mock:     func(m mocks) {},
			expError: services.ErrValidation,
		},
		{
			name:     "zero amount",
			req:      func(r *services.BuyRequest) { r.Amount = decimal.Zero },
			mock:     func(m mocks) {},
			expError: services.ErrValidation,
		},
		{
			name:     "fractional shillings",
			req:      func(r *services.BuyRequest) { r.Amount = decimal.RequireFromString("10.5") },
			mock:     func(m mocks) {},
			expError: services.ErrValidation,
		},
		{
			name:     "missing address",
			req:      func(r *services.BuyRequest) { r.UserAddress = " " },
			mock:     func(m mocks) {},
			expError: services.ErrValidation,
		},
		{
			name:     "bad address checksum",
			req:      func(r *services.BuyRequest) { r.UserAddress = alice[:len(alice)-1] + "Z" },
			mock:     func(m mocks) {},
			expError: services.ErrValidation,
		},
		{
			name:     "unsupported token",
			req:      func(r *services.BuyRequest) { r.Token = "DOGE" },
			mock:     func(m mocks) {},
			expError: pricing.ErrUnsupportedToken,
		},
		{
			name: "pool lacks liquidity",
			req:  func(r *services.BuyRequest) {},
			mock: func(m mocks) {
				m.balance.EXPECT().CheckBalance(gomock.Any(), bob, "PAS", decEq(150)).
					Return(balance.Result{HasEnough: false, CurrentBalance: decimal.NewFromInt(100)}, nil)
			},
			expError: services.ErrInsufficientLiquidity,
		},
		{
			name: "gateway rejects charge",
			req:  func(r *services.BuyRequest) {},
			mock: func(m mocks) {
				m.balance.EXPECT().CheckBalance(gomock.Any(), bob, "PAS", gomock.Any()).Return(enough(), nil)
				m.gateway.EXPECT().InitiateCharge(gomock.Any(), gomock.Any()).
					Return(mpesa.ChargeResponse{}, mpesa.ErrUpstreamRequest)
			},
			expError: mpesa.ErrUpstreamRequest,
		},
		{
			name: "gateway auth failure",
			req:  func(r *services.BuyRequest) {},
			mock: func(m mocks) {
				m.balance.EXPECT().CheckBalance(gomock.Any(), bob, "PAS", gomock.Any()).Return(enough(), nil)
				m.gateway.EXPECT().InitiateCharge(gomock.Any(), gomock.Any()).
					Return(mpesa.ChargeResponse{}, mpesa.ErrUpstreamAuth)
			},
			expError: mpesa.ErrUpstreamAuth,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			e, m, st := newEngine(t, ctrl)
			test.mock(m)

			req := buyRequest()
			test.req(&req)
			_, err := e.Buy(context.Background(), req)
			assert.ErrorIs(t, err, test.expError)

			orders, _ := st.List(context.Background(), store.Filter{})
			assert.Empty(t, orders)
		})
	}
}

func TestEngine_BuyLiquidityErrorCarriesAmounts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	e, m, _ := newEngine(t, ctrl)

	res := balance.Result{
		CurrentBalance:  decimal.NewFromInt(100),
		RequiredBalance: decimal.NewFromInt(151),
		BalanceAfterTx:  decimal.NewFromInt(-50),
	}
	m.balance.EXPECT().CheckBalance(gomock.Any(), bob, "PAS", gomock.Any()).Return(res, nil)

	_, err := e.Buy(context.Background(), buyRequest())
	var balErr *services.BalanceError
	require.ErrorAs(t, err, &balErr)
	assert.Equal(t, "PAS", balErr.Token)
	assert.Equal(t, res, balErr.Result)
}

func TestEngine_BuyEndToEnd(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	e, m, _ := newEngine(t, ctrl)
	ctx := context.Background()

	m.balance.EXPECT().CheckBalance(gomock.Any(), bob, "PAS", decEq(150)).Return(enough(), nil)
	m.gateway.EXPECT().InitiateCharge(gomock.Any(), mpesa.ChargeRequest{
		Amount:      decimal.NewFromInt(1000),
		Phone:       "254712345678",
		Description: "Buy PAS",
	}).Return(chargeAccepted("29115-1"), nil)
	m.scheduler.EXPECT().Schedule("29115-1", "ws_CO_29115-1")

	order, err := e.Buy(ctx, buyRequest())
	require.NoError(t, err)
	assert.Equal(t, "29115-1", order.ID)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, "150", order.TokenAmount.String())
	assert.Equal(t, "ws_CO_29115-1", order.Details.CheckoutRequestID)

	updates := make(chan ledger.TransferUpdate)
	expAmount, _ := new(big.Int).SetString("1500000000000", 10)
	m.ledger.EXPECT().Transfer(gomock.Any(), ledger.TransferRequest{
		Signer:      "//Pool",
		Destination: alice,
		Amount:      expAmount,
		AssetID:     0,
	}).Return((<-chan ledger.TransferUpdate)(updates), nil)
	m.notifier.EXPECT().Notify(gomock.Any(), "254712345678", gomock.Any()).Return(nil)
	m.gateway.EXPECT().QueryChargeStatus(gomock.Any(), "ws_CO_29115-1").Return(chargeSucceeded(), nil)

	confirmed, ok, err := e.HandleSTKCallback(ctx, mpesa.STKResult{
		MerchantRequestID: "29115-1",
		CheckoutRequestID: "ws_CO_29115-1",
		ResultCode:        "0",
		ResultDesc:        "The service request is processed successfully.",
		ReceiptNumber:     "NLJ7RT61SV",
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.OrderPaymentConfirmed, confirmed.Status)

	status, err := e.Status(ctx, "29115-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaymentConfirmed, status.Status)
	assert.Equal(t, "NLJ7RT61SV", status.Details.ReceiptNumber)

	updates <- ledger.TransferUpdate{Status: ledger.StatusBroadcast}
	updates <- ledger.TransferUpdate{Status: ledger.StatusInBlock, BlockRef: "0xblock"}
	close(updates)
	e.Wait()

	status, err = e.Status(ctx, "29115-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, status.Status)
	assert.Equal(t, "0xblock", status.Details.BlockRef)
	assert.Equal(t, "150", status.TokenAmount.String())
}

func TestEngine_AtMostOnceDisbursement(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	e, m, _ := newEngine(t, ctrl)
	ctx := context.Background()

	createBuy(t, e, m, "race-1")
	m.ledger.EXPECT().Transfer(gomock.Any(), gomock.Any()).Return(inBlock("0x1"), nil).Times(1)
	m.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)
	m.gateway.EXPECT().QueryChargeStatus(gomock.Any(), "ws_CO_race-1").Return(chargeSucceeded(), nil).AnyTimes()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, ok, err := e.HandleSTKCallback(ctx, mpesa.STKResult{MerchantRequestID: "race-1", ResultCode: "0"})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
		go func() {
			defer wg.Done()
			_, ok, err := e.ApplyChargeStatus(ctx, "race-1", mpesa.ChargeStatus{ResultCode: "0", Outcome: mpesa.OutcomeSuccess})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	e.Wait()

	assert.Equal(t, 1, wins)

	// late duplicate after completion
	order, ok, err := e.HandleSTKCallback(ctx, mpesa.STKResult{MerchantRequestID: "race-1", ResultCode: "0"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.OrderCompleted, order.Status)
	e.Wait()
}

func TestEngine_ChargeOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		result    mpesa.STKResult
		expStatus models.OrderStatus
	}{
		{
			name:      "cancelled by user",
			result:    mpesa.STKResult{ResultCode: "1032", ResultDesc: "Request cancelled by user"},
			expStatus: models.OrderCancelled,
		},
		{
			name:      "insufficient funds",
			result:    mpesa.STKResult{ResultCode: "1", ResultDesc: "The balance is insufficient"},
			expStatus: models.OrderFailed,
		},
		{
			name:      "user unreachable",
			result:    mpesa.STKResult{ResultCode: "1037", ResultDesc: "DS timeout user cannot be reached"},
			expStatus: models.OrderFailed,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			e, m, _ := newEngine(t, ctrl)
			createBuy(t, e, m, "o1")

			test.result.MerchantRequestID = "o1"
			order, ok, err := e.HandleSTKCallback(context.Background(), test.result)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, test.expStatus, order.Status)
			assert.Equal(t, test.result.ResultCode, order.Details.ResultCode)
			e.Wait()

			// a later success is ignored; no transfer is expected
			_, ok, err = e.ApplyChargeStatus(context.Background(), "o1", mpesa.ChargeStatus{ResultCode: "0", Outcome: mpesa.OutcomeSuccess})
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestEngine_CallbackMismatchAndUnknown(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	e, m, _ := newEngine(t, ctrl)
	createBuy(t, e, m, "o1")

	_, ok, err := e.HandleSTKCallback(context.Background(), mpesa.STKResult{
		MerchantRequestID: "o1", CheckoutRequestID: "ws_CO_other", ResultCode: "0",
	})
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.False(t, ok)

	_, _, err = e.HandleSTKCallback(context.Background(), mpesa.STKResult{MerchantRequestID: "nope", ResultCode: "0"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	order, ok, err := e.ApplyChargeStatus(context.Background(), "o1", mpesa.ChargeStatus{ResultCode: "4999", Outcome: mpesa.OutcomePending})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.OrderPending, order.Status)
}

func TestEngine_TransferFailures(t *testing.T) {
	dispatchError := func() <-chan ledger.TransferUpdate {
		ch := make(chan ledger.TransferUpdate, 1)
		ch <- ledger.TransferUpdate{Status: ledger.StatusError, Error: "balances.InsufficientBalance"}
		close(ch)
		return ch
	}

	tests := []struct {
		name     string
		mock     prepareMocks
		expError string
	}{
		{
			name: "submission rejected",
			mock: func(m mocks) {
				m.ledger.EXPECT().Transfer(gomock.Any(), gomock.Any()).Return(nil, errors.New("rpc error 1010: invalid transaction"))
			},
			expError: "invalid transaction",
		},
		{
			name: "dispatch error",
			mock: func(m mocks) {
				m.ledger.EXPECT().Transfer(gomock.Any(), gomock.Any()).Return(dispatchError(), nil)
			},
			expError: "balances.InsufficientBalance",
		},
		{
			name: "finality not observed",
			mock: func(m mocks) {
				m.ledger.EXPECT().Transfer(gomock.Any(), gomock.Any()).
					Return((<-chan ledger.TransferUpdate)(make(chan ledger.TransferUpdate)), nil)
			},
			expError: "finality not observed",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			e, m, _ := newEngine(t, ctrl)
			e.FinalityTimeout = 20 * time.Millisecond
			createBuy(t, e, m, "o1")
			test.mock(m)
			m.gateway.EXPECT().QueryChargeStatus(gomock.Any(), "ws_CO_o1").Return(chargeSucceeded(), nil)

			_, ok, err := e.HandleSTKCallback(context.Background(), mpesa.STKResult{MerchantRequestID: "o1", ResultCode: "0"})
			require.NoError(t, err)
			require.True(t, ok)
			e.Wait()

			order, err := e.Status(context.Background(), "o1")
			require.NoError(t, err)
			assert.Equal(t, models.OrderTransferFailed, order.Status)
			assert.True(t, order.Status.Charged())
			assert.Contains(t, order.Details.Error, test.expError)
		})
	}
}

func TestEngine_ExpireCharge(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	e, m, _ := newEngine(t, ctrl)
	createBuy(t, e, m, "o1")

	order, ok, err := e.ExpireCharge(context.Background(), "o1", "no answer after 8 attempts")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.OrderTimeout, order.Status)

	// webhook arriving after the poller gave up
	order, ok, err = e.HandleSTKCallback(context.Background(), mpesa.STKResult{MerchantRequestID: "o1", ResultCode: "0"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.OrderTimeout, order.Status)
}

func TestEngine_RateChangeKeepsLockedAmount(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	e, m, _ := newEngine(t, ctrl)
	createBuy(t, e, m, "o1")

	_, err := e.SetRate("PAS", decimal.RequireFromString("0.5"))
	require.NoError(t, err)

	order, err := e.Status(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "150", order.TokenAmount.String())
	assert.Equal(t, "0.15", order.Rate.String())

	q, err := e.Quote(decimal.NewFromInt(1000), "PAS", models.Buy)
	require.NoError(t, err)
	assert.Equal(t, "500", q.Result.String())
}

func TestEngine_Cancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	e, m, _ := newEngine(t, ctrl)
	createBuy(t, e, m, "o1")

	order, err := e.Cancel(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, order.Status)

	_, err = e.Cancel(context.Background(), "o1")
	assert.ErrorIs(t, err, services.ErrIllegalTransition)

	_, err = e.Cancel(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEngine_Quote(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	e, _, _ := newEngine(t, ctrl)

	q, err := e.Quote(decimal.NewFromInt(1000), "PAS", models.Buy)
	require.NoError(t, err)
	assert.Equal(t, "150", q.Result.String())
	assert.Equal(t, "13", q.Fee.String())

	q, err = e.Quote(decimal.NewFromInt(150), "PAS", models.Sell)
	require.NoError(t, err)
	assert.Equal(t, "1000", q.Result.String())

	_, err = e.Quote(decimal.NewFromInt(1), "PAS", models.Direction("swap"))
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestEngine_CallbackSuccessNeedsGatewayConfirmation(t *testing.T) {
	tests := []struct {
		name      string
		status    mpesa.ChargeStatus
		queryErr  error
		expStatus models.OrderStatus
		expApply  bool
		expError  bool
	}{
		{
			name:      "gateway still processing",
			status:    mpesa.ChargeStatus{ResultCode: "500.001.1001", Outcome: mpesa.OutcomePending},
			expStatus: models.OrderPending,
		},
		{
			name:      "gateway reports cancelled",
			status:    mpesa.ChargeStatus{ResultCode: "1032", ResultDesc: "Request cancelled by user", Outcome: mpesa.OutcomeCancelled},
			expStatus: models.OrderCancelled,
			expApply:  true,
		},
		{
			name:      "gateway unreachable",
			queryErr:  &mpesa.UpstreamError{Kind: mpesa.ErrUpstreamRequest, StatusCode: 503},
			expStatus: models.OrderPending,
			expError:  true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			e, m, _ := newEngine(t, ctrl)
			createBuy(t, e, m, "o1")
			m.gateway.EXPECT().QueryChargeStatus(gomock.Any(), "ws_CO_o1").Return(test.status, test.queryErr)
			m.ledger.EXPECT().Transfer(gomock.Any(), gomock.Any()).Times(0)

			_, ok, err := e.HandleSTKCallback(context.Background(), mpesa.STKResult{
				MerchantRequestID: "o1",
				CheckoutRequestID: "ws_CO_o1",
				ResultCode:        "0",
				ResultDesc:        "The service request is processed successfully.",
			})
			if test.expError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, test.expApply, ok)
			e.Wait()

			order, err := e.Status(context.Background(), "o1")
			require.NoError(t, err)
			assert.Equal(t, test.expStatus, order.Status)
		})
	}
}

func TestEngine_FinalityTimeoutCountsFromSubmission(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	e, m, _ := newEngine(t, ctrl)
	e.FinalityTimeout = 30 * time.Millisecond
	createBuy(t, e, m, "o1")

	m.gateway.EXPECT().QueryChargeStatus(gomock.Any(), "ws_CO_o1").Return(chargeSucceeded(), nil)
	m.ledger.EXPECT().Transfer(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req ledger.TransferRequest) (<-chan ledger.TransferUpdate, error) {
			_, hasDeadline := ctx.Deadline()
			assert.False(t, hasDeadline)
			// queued behind another transfer for longer than the finality timeout
			time.Sleep(80 * time.Millisecond)
			assert.NoError(t, ctx.Err())
			return inBlock("0xqueued"), nil
		})
	m.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, ok, err := e.HandleSTKCallback(context.Background(), mpesa.STKResult{MerchantRequestID: "o1", ResultCode: "0"})
	require.NoError(t, err)
	require.True(t, ok)
	e.Wait()

	order, err := e.Status(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.Status)
	assert.Equal(t, "0xqueued", order.Details.BlockRef)
}

func TestEngine_BuyLogsUnrecordedCharge(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	e, m, st := newEngine(t, ctrl)
	core, logs := observer.New(zapcore.InfoLevel)
	e.Log = zap.New(core)

	require.NoError(t, st.Create(context.Background(), models.Order{
		ID:        "dup-1",
		Direction: models.Buy,
		Token:     "PAS",
		Status:    models.OrderCompleted,
	}))
	m.balance.EXPECT().CheckBalance(gomock.Any(), bob, "PAS", gomock.Any()).Return(enough(), nil)
	m.gateway.EXPECT().InitiateCharge(gomock.Any(), gomock.Any()).Return(chargeAccepted("dup-1"), nil)

	_, err := e.Buy(context.Background(), buyRequest())
	assert.ErrorIs(t, err, store.ErrDuplicateID)

	entries := logs.FilterMessage("buy order not recorded after charge request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "dup-1", fields["order_id"])
	assert.Equal(t, "ws_CO_dup-1", fields["checkout_request_id"])
	assert.Equal(t, "254712345678", fields["phone"])
}
