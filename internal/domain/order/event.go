package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an order lifecycle event.
type EventType string

const (
	EventPlaced        EventType = "order.placed"
	EventStatusChanged EventType = "order.status_changed"
)

// Event is published after a committed order change.
type Event struct {
	ID         string
	Type       EventType
	OrderID    string
	UserID     string
	Status     Status
	Previous   Status
	Total      decimal.Decimal
	OccurredAt time.Time
}

// Publisher delivers order events to downstream consumers. Delivery is best
// effort: callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Snapshot is the cached view of an order's status.
type Snapshot struct {
	OrderID   string
	UserID    string
	Status    Status
	UpdatedAt time.Time
}

// SnapshotOf returns the cacheable view of o.
func SnapshotOf(o *Order) Snapshot {
	return Snapshot{
		OrderID:   o.ID,
		UserID:    o.UserID,
		Status:    o.Status,
		UpdatedAt: o.UpdatedAt,
	}
}

// StatusCache keeps recent order statuses for cheap lookups.
type StatusCache interface {
	// Get returns false when the order is not cached.
	Get(ctx context.Context, orderID string) (Snapshot, bool, error)
	// Set stores s unconditionally. Writers call it after committing a
	// status change.
	Set(ctx context.Context, s Snapshot) error
	// Add stores s only if the order has no entry yet. Readers filling a
	// miss use it so they never replace a newer status written by Set.
	Add(ctx context.Context, s Snapshot) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// NopStatusCache never caches anything.
type NopStatusCache struct{}

func (NopStatusCache) Get(context.Context, string) (Snapshot, bool, error) {
	return Snapshot{}, false, nil
}

func (NopStatusCache) Set(context.Context, Snapshot) error { return nil }

func (NopStatusCache) Add(context.Context, Snapshot) error { return nil }
