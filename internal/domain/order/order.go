package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// Order is a customer order together with its line items. Items are written
// once at creation; afterwards only the status and payment fields change.
type Order struct {
	ID        string
	UserID    string
	AddressID string
	Total     decimal.Decimal
	Status    Status
	// PaymentMethod and PaymentStatus are set by settlement and stay nil
	// until the gateway reports on the order.
	PaymentMethod *string
	PaymentStatus *string
	Items         []Item
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Item is a single order line. Price is the unit price at creation time.
type Item struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

// Subtotal returns the sum of price * quantity over all items.
func (o *Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// Repository is the order store as seen from inside a transaction.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// GetForUpdate loads the order with its items and locks the order row
	// until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	// UpdateStatus persists Status, PaymentMethod, PaymentStatus and UpdatedAt.
	UpdateStatus(ctx context.Context, o *Order) error
}

// Reader provides non-locking reads of orders.
type Reader interface {
	Get(ctx context.Context, id string) (*Order, error)
	// ListPendingBefore returns ids of PENDING orders created before the
	// given instant, oldest first.
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]string, error)
}
