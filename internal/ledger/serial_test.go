package ledger

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type slowLedger struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (l *slowLedger) GetBalance(ctx context.Context, address string, assetID uint32) (Balance, error) {
	return ZeroBalance(), nil
}

func (l *slowLedger) Transfer(ctx context.Context, req TransferRequest) (<-chan TransferUpdate, error) {
	n := l.inFlight.Add(1)
	for {
		max := l.maxInFlight.Load()
		if n <= max || l.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}
	out := make(chan TransferUpdate, 1)
	go func() {
		defer close(out)
		time.Sleep(5 * time.Millisecond)
		l.inFlight.Add(-1)
		out <- TransferUpdate{Status: StatusInBlock, BlockRef: "0x1"}
	}()
	return out, nil
}

func TestSerializedOneTransferPerSigner(t *testing.T) {
	inner := &slowLedger{}
	s := NewSerialized(inner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			updates, err := s.Transfer(context.Background(), TransferRequest{
				Signer: "pool", Destination: "d", Amount: big.NewInt(1),
			})
			if !assert.NoError(t, err) {
				return
			}
			_, err = AwaitInBlock(context.Background(), updates)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), inner.maxInFlight.Load())
}

type holdLedger struct {
	release chan struct{}
	calls   atomic.Int32
}

func (l *holdLedger) GetBalance(ctx context.Context, address string, assetID uint32) (Balance, error) {
	return ZeroBalance(), nil
}

func (l *holdLedger) Transfer(ctx context.Context, req TransferRequest) (<-chan TransferUpdate, error) {
	l.calls.Add(1)
	out := make(chan TransferUpdate, 1)
	go func() {
		defer close(out)
		<-l.release
		out <- TransferUpdate{Status: StatusInBlock, BlockRef: "0x1"}
	}()
	return out, nil
}

func TestSerializedQueuedCallerGivesUpWithCtx(t *testing.T) {
	inner := &holdLedger{release: make(chan struct{})}
	s := NewSerialized(inner)
	req := TransferRequest{Signer: "pool", Destination: "d", Amount: big.NewInt(1)}

	first, err := s.Transfer(context.Background(), req)
	assert.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	updates, err := s.Transfer(ctx, req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, updates)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), inner.calls.Load())

	// a different signer is not blocked
	other, err := s.Transfer(context.Background(), TransferRequest{Signer: "other", Destination: "d", Amount: big.NewInt(1)})
	assert.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())

	close(inner.release)
	_, err = AwaitInBlock(context.Background(), first)
	assert.NoError(t, err)
	_, err = AwaitInBlock(context.Background(), other)
	assert.NoError(t, err)

	// the slot is free again once the first stream ended
	third, err := s.Transfer(context.Background(), req)
	assert.NoError(t, err)
	_, err = AwaitInBlock(context.Background(), third)
	assert.NoError(t, err)
	assert.Equal(t, int32(3), inner.calls.Load())
}
