// Package store defines the transactional unit of work shared by checkout
// and settlement.
package store

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
)

// ErrTimeout is returned when a transaction waits too long for a lock or
// exceeds its total time budget. The transaction is rolled back.
var ErrTimeout = errors.New("transaction timeout")

// TxOptions bounds a transaction.
type TxOptions struct {
	// LockTimeout caps each wait for a row lock. Zero means no cap.
	LockTimeout time.Duration
	// Timeout caps the whole transaction. Zero means no cap.
	Timeout time.Duration
}

// NotificationLog remembers processed gateway notifications.
type NotificationLog interface {
	// Record stores the (transactionID, status) pair and reports whether it
	// was seen for the first time.
	Record(ctx context.Context, orderID, transactionID, status string) (bool, error)
}

// Tx gives access to the repositories bound to one transaction.
type Tx interface {
	Inventory() inventory.Ledger
	Orders() order.Repository
	Addresses() address.Repository
	Notifications() NotificationLog
}

// Transactor runs fn in a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type Transactor interface {
	InTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
