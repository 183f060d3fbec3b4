package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// MultiClient fails over between ledger endpoints. Balance reads rotate on any
// transport error; transfers only rotate when the dial itself failed, because
// a transfer that reached an endpoint may already be in flight.
type MultiClient struct {
	clients       []*WSClient
	index         int
	failCount     int
	failThreshold int
	mu            sync.Mutex
}

func NewMultiClient(endpoints []string, failThreshold int) (*MultiClient, error) {
	list := sanitizeEndpoints(endpoints)
	if len(list) == 0 {
		return nil, ErrNoEndpoints
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	clients := make([]*WSClient, 0, len(list))
	for _, ep := range list {
		clients = append(clients, NewWSClient(ep))
	}
	return &MultiClient{
		clients:       clients,
		failThreshold: failThreshold,
	}, nil
}

func (m *MultiClient) Endpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index].Endpoint
}

func (m *MultiClient) GetBalance(ctx context.Context, address string, assetID uint32) (Balance, error) {
	var lastErr error
	for attempts := 0; attempts < len(m.clients); attempts++ {
		client, idx := m.currentClient()
		out, err := client.GetBalance(ctx, address, assetID)
		if err == nil {
			m.resetFailures(idx)
			return out, nil
		}
		lastErr = err
		if IsRPCError(err) || ctx.Err() != nil {
			break
		}
		m.noteFailure(idx)
		m.rotate(idx)
	}
	return Balance{}, lastErr
}

func (m *MultiClient) Transfer(ctx context.Context, req TransferRequest) (<-chan TransferUpdate, error) {
	var lastErr error
	for attempts := 0; attempts < len(m.clients); attempts++ {
		client, idx := m.currentClient()
		out, err := client.Transfer(ctx, req)
		if err == nil {
			m.resetFailures(idx)
			return out, nil
		}
		lastErr = err
		var dialErr *DialError
		if !errors.As(err, &dialErr) || ctx.Err() != nil {
			break
		}
		m.noteFailure(idx)
		m.rotate(idx)
	}
	return nil, lastErr
}

func (m *MultiClient) currentClient() (*WSClient, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index], m.index
}

func (m *MultiClient) resetFailures(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount = 0
	}
}

func (m *MultiClient) noteFailure(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount++
	}
}

// rotate moves off idx once it reached the failure threshold, or right away
// when there is another endpoint to try within the same call.
func (m *MultiClient) rotate(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index != idx {
		return
	}
	if m.failCount < m.failThreshold && len(m.clients) == 1 {
		return
	}
	m.index = (m.index + 1) % len(m.clients)
	m.failCount = 0
}

func sanitizeEndpoints(endpoints []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = websocketURL(strings.TrimSpace(ep))
		if ep == "" {
			continue
		}
		ep = strings.TrimRight(ep, "/")
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	return out
}
