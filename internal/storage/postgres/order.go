package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders
	(id, user_id, address_id, total, status, payment_method, payment_status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	createOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, price)
	VALUES ($1, $2, $3, $4)`

	orderColumns = `id, user_id, address_id, total, status, payment_method, payment_status, created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	listOrderItemsSQL = `SELECT product_id, quantity, price FROM order_items
	WHERE order_id = $1 ORDER BY product_id`

	updateOrderStatusSQL = `UPDATE orders
	SET status = $2, payment_method = $3, payment_status = $4, updated_at = $5
	WHERE id = $1`

	listPendingBeforeSQL = `SELECT id FROM orders
	WHERE status = 'PENDING' AND created_at < $1
	ORDER BY created_at, id
	LIMIT $2`
)

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ order.Reader     = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository and order.Reader.
type OrderRepository struct {
	q Querier
}

// NewOrderRepository returns an OrderRepository using q.
func NewOrderRepository(q Querier) *OrderRepository {
	return &OrderRepository{q: q}
}

// Create inserts the order and its items in one batch.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	b := &pgx.Batch{}
	b.Queue(createOrderSQL,
		o.ID, o.UserID, o.AddressID, o.Total, string(o.Status),
		o.PaymentMethod, o.PaymentStatus, o.CreatedAt, o.UpdatedAt,
	)
	for _, it := range o.Items {
		b.Queue(createOrderItemSQL, o.ID, it.ProductID, it.Quantity, it.Price)
	}

	br := r.q.SendBatch(ctx, b)
	for range b.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns the order with its items without locking.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.load(ctx, getOrderSQL, id)
}

// GetForUpdate returns the order with its items and locks the order row.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.load(ctx, getOrderForUpdateSQL, id)
}

// UpdateStatus writes the mutable order fields.
func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order) error {
	tag, err := r.q.Exec(ctx, updateOrderStatusSQL,
		o.ID, string(o.Status), o.PaymentMethod, o.PaymentStatus, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// ListPendingBefore returns ids of PENDING orders created before the instant.
func (r *OrderRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]string, error) {
	rows, err := r.q.Query(ctx, listPendingBeforeSQL, before, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending orders: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning pending orders: %w", err)
	}
	return ids, nil
}

func (r *OrderRepository) load(ctx context.Context, sql, id string) (*order.Order, error) {
	rows, err := r.q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("querying order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("scanning order %q: %w", id, err)
	}

	rows, err = r.q.Query(ctx, listOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("querying items of order %q: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("scanning items of order %q: %w", id, err)
	}
	return o, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.AddressID, &o.Total, &status,
		&o.PaymentMethod, &o.PaymentStatus, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	return &o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ProductID, &it.Quantity, &it.Price)
	return it, err
}
