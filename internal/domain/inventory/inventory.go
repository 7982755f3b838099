// Package inventory defines products and the stock ledger.
package inventory

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrProductNotFound is returned when a product does not exist.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned when a decrement would make stock negative.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product is a sellable item with its current stock.
type Product struct {
	ID    string
	Name  string
	Stock int
	Price decimal.Decimal
}

// Ledger mutates stock. All methods must run inside a transaction.
type Ledger interface {
	// LockForUpdate reads the product and holds its row lock until the
	// transaction ends. Concurrent lockers of the same product block.
	LockForUpdate(ctx context.Context, productID string) (*Product, error)
	// Decrement fails with ErrInsufficientStock instead of going negative.
	Decrement(ctx context.Context, productID string, quantity int) error
	// Increment returns reserved units to stock.
	Increment(ctx context.Context, productID string, quantity int) error
}

// Catalog provides non-locking product reads.
type Catalog interface {
	Get(ctx context.Context, productID string) (*Product, error)
}
