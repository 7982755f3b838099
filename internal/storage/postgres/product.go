package postgres

import (
	"context"
	"fmt"

	"github.com/xenking/storefront/internal/domain/inventory"
)

const upsertProductSQL = `INSERT INTO products (id, name, price, stock)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		price = EXCLUDED.price,
		stock = EXCLUDED.stock,
		updated_at = now()`

// UpsertProduct inserts a product or overwrites its name, price and stock.
// It is meant for seeding and administration, not for checkout.
func (r *InventoryRepository) UpsertProduct(ctx context.Context, p inventory.Product) error {
	if _, err := r.q.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Stock); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}
