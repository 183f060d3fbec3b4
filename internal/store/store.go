package store

import (
	"context"
	"errors"

	"DOTRamp/internal/models"
)

var (
	ErrDuplicateID = errors.New("order id already exists")
	ErrNotFound    = errors.New("order not found")
)

// Store is the authority for order records. Transition is a guarded
// compare-and-set: it applies only when the current status is in from and the
// edge is legal for the order's direction, and otherwise reports false
// without touching the order.
type Store interface {
	Create(ctx context.Context, order models.Order) error
	Get(ctx context.Context, id string) (models.Order, error)
	Transition(ctx context.Context, id string, from []models.OrderStatus, to models.OrderStatus, patch models.Details) (models.Order, bool, error)
	List(ctx context.Context, filter Filter) ([]models.Order, error)
}

// Filter narrows List. Zero values match everything; Limit 0 is unbounded.
type Filter struct {
	Direction models.Direction
	Status    []models.OrderStatus
	Limit     int
}

func (f Filter) match(o models.Order) bool {
	if f.Direction != "" && o.Direction != f.Direction {
		return false
	}
	if len(f.Status) == 0 {
		return true
	}
	return containsStatus(f.Status, o.Status)
}

func containsStatus(set []models.OrderStatus, s models.OrderStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
