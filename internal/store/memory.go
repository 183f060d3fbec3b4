package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"DOTRamp/internal/models"
)

// Memory keeps orders for the lifetime of the process. Nothing survives a
// restart.
type Memory struct {
	mu     sync.RWMutex
	orders map[string]models.Order
	hooks  []func(models.Transition)
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		orders: map[string]models.Order{},
		now:    time.Now,
	}
}

// OnTransition registers fn to run after every applied transition and after
// every create (From is empty). Hooks run outside the store lock, in order.
func (m *Memory) OnTransition(fn func(models.Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

func (m *Memory) Create(ctx context.Context, order models.Order) error {
	if order.ID == "" {
		return fmt.Errorf("create order: empty id")
	}
	now := m.now().UTC()

	m.mu.Lock()
	if _, ok := m.orders[order.ID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, order.ID)
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt
	m.orders[order.ID] = order
	hooks := m.hooks
	m.mu.Unlock()

	m.notify(hooks, models.Transition{
		OrderID:   order.ID,
		Direction: order.Direction,
		To:        order.Status,
		Details:   order.Details,
		At:        order.CreatedAt,
	})
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return order, nil
}

func (m *Memory) Transition(ctx context.Context, id string, from []models.OrderStatus, to models.OrderStatus, patch models.Details) (models.Order, bool, error) {
	m.mu.Lock()
	order, ok := m.orders[id]
	if !ok {
		m.mu.Unlock()
		return models.Order{}, false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !containsStatus(from, order.Status) || !models.CanTransition(order.Direction, order.Status, to) {
		m.mu.Unlock()
		return order, false, nil
	}

	prev := order.Status
	order.Status = to
	order.Details = order.Details.Merge(patch)
	order.UpdatedAt = m.now().UTC()
	m.orders[id] = order
	hooks := m.hooks
	m.mu.Unlock()

	m.notify(hooks, models.Transition{
		OrderID:   id,
		Direction: order.Direction,
		From:      prev,
		To:        to,
		Details:   patch,
		At:        order.UpdatedAt,
	})
	return order, true, nil
}

// List returns matching orders, newest first.
func (m *Memory) List(ctx context.Context, filter Filter) ([]models.Order, error) {
	m.mu.RLock()
	out := make([]models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if filter.match(o) {
			out = append(out, o)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) notify(hooks []func(models.Transition), t models.Transition) {
	for _, fn := range hooks {
		fn(t)
	}
}
