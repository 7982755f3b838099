package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/store"
)

// Postgres error codes that mean a transaction ran out of time.
const (
	codeLockNotAvailable = "55P03"
	codeQueryCanceled    = "57014"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var _ store.Transactor = (*Transactor)(nil)

// Transactor implements store.Transactor on a connection pool.
type Transactor struct {
	pool *pgxpool.Pool
}

// NewTransactor returns a Transactor that uses the given pool.
func NewTransactor(pool *pgxpool.Pool) *Transactor {
	return &Transactor{pool: pool}
}

// InTx runs fn in a READ COMMITTED transaction. opts.LockTimeout is applied
// with SET LOCAL lock_timeout and opts.Timeout bounds the whole transaction
// through the context. Running out of either yields store.ErrTimeout.
func (t *Transactor) InTx(ctx context.Context, opts store.TxOptions, fn func(ctx context.Context, tx store.Tx) error) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapTxError(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if opts.LockTimeout > 0 {
		ms := fmt.Sprintf("%dms", opts.LockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", ms); err != nil {
			return mapTxError(fmt.Errorf("set lock_timeout: %w", err))
		}
	}

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return mapTxError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapTxError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// mapTxError marks lock and deadline failures with store.ErrTimeout and
// leaves everything else untouched.
func mapTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeQueryCanceled:
			return fmt.Errorf("%w: %w", store.ErrTimeout, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", store.ErrTimeout, err)
	}
	return err
}

type pgTx struct {
	q Querier
}

func (t *pgTx) Inventory() inventory.Ledger          { return NewInventoryRepository(t.q) }
func (t *pgTx) Orders() order.Repository             { return NewOrderRepository(t.q) }
func (t *pgTx) Addresses() address.Repository        { return NewAddressRepository(t.q) }
func (t *pgTx) Notifications() store.NotificationLog { return NewNotificationRepository(t.q) }
