package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/inventory"
)

const (
	getProductSQL = `SELECT id, name, stock, price FROM products WHERE id = $1`

	lockProductSQL = `SELECT id, name, stock, price FROM products WHERE id = $1 FOR UPDATE`

	decrementStockSQL = `UPDATE products SET stock = stock - $2, updated_at = now()
	WHERE id = $1 AND stock >= $2`

	incrementStockSQL = `UPDATE products SET stock = stock + $2, updated_at = now()
	WHERE id = $1`
)

var (
	_ inventory.Ledger  = (*InventoryRepository)(nil)
	_ inventory.Catalog = (*InventoryRepository)(nil)
)

// InventoryRepository implements inventory.Ledger and inventory.Catalog.
// Ledger methods must be called on a transaction-bound repository.
type InventoryRepository struct {
	q Querier
}

// NewInventoryRepository returns an InventoryRepository using q.
func NewInventoryRepository(q Querier) *InventoryRepository {
	return &InventoryRepository{q: q}
}

// Get returns the product without locking it.
func (r *InventoryRepository) Get(ctx context.Context, id string) (*inventory.Product, error) {
	return r.scanOne(ctx, getProductSQL, id)
}

// LockForUpdate reads the product with SELECT ... FOR UPDATE.
func (r *InventoryRepository) LockForUpdate(ctx context.Context, id string) (*inventory.Product, error) {
	return r.scanOne(ctx, lockProductSQL, id)
}

// Decrement takes quantity units. The stock >= quantity guard makes it
// safe even without a prior lock.
func (r *InventoryRepository) Decrement(ctx context.Context, id string, quantity int) error {
	tag, err := r.q.Exec(ctx, decrementStockSQL, id, quantity)
	if err != nil {
		return fmt.Errorf("decrementing stock of %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrInsufficientStock
	}
	return nil
}

// Increment returns quantity units to stock.
func (r *InventoryRepository) Increment(ctx context.Context, id string, quantity int) error {
	tag, err := r.q.Exec(ctx, incrementStockSQL, id, quantity)
	if err != nil {
		return fmt.Errorf("incrementing stock of %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrProductNotFound
	}
	return nil
}

func (r *InventoryRepository) scanOne(ctx context.Context, sql, id string) (*inventory.Product, error) {
	rows, err := r.q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("querying product %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrProductNotFound
		}
		return nil, fmt.Errorf("scanning product %q: %w", id, err)
	}
	return &p, nil
}

func scanProduct(row pgx.CollectableRow) (inventory.Product, error) {
	var p inventory.Product
	err := row.Scan(&p.ID, &p.Name, &p.Stock, &p.Price)
	return p, err
}
