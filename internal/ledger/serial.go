package ledger

import (
	"context"
	"sync"
)

// Serialized queues transfers per signer account. A signer's next transfer is
// not submitted until the previous one's status stream has ended, so two
// submissions never race for the same account nonce. A caller whose ctx ends
// while queued gets ctx.Err() and nothing is submitted.
type Serialized struct {
	next  Client
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewSerialized(next Client) *Serialized {
	return &Serialized{next: next, slots: map[string]chan struct{}{}}
}

func (s *Serialized) GetBalance(ctx context.Context, address string, assetID uint32) (Balance, error) {
	return s.next.GetBalance(ctx, address, assetID)
}

func (s *Serialized) Transfer(ctx context.Context, req TransferRequest) (<-chan TransferUpdate, error) {
	slot := s.signerSlot(req.Signer)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-slot }

	updates, err := s.next.Transfer(ctx, req)
	if err != nil {
		release()
		return nil, err
	}

	out := make(chan TransferUpdate, 1)
	go func() {
		defer release()
		defer close(out)
		for u := range updates {
			select {
			case out <- u:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func (s *Serialized) signerSlot(signer string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[signer]
	if !ok {
		slot = make(chan struct{}, 1)
		s.slots[signer] = slot
	}
	return slot
}
