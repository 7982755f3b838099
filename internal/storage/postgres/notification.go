package postgres

import (
	"context"
	"fmt"

	"github.com/xenking/storefront/internal/domain/store"
)

const recordNotificationSQL = `INSERT INTO payment_notifications (transaction_id, transaction_status, order_id)
	VALUES ($1, $2, $3)
	ON CONFLICT (transaction_id, transaction_status) DO NOTHING`

var _ store.NotificationLog = (*NotificationRepository)(nil)

// NotificationRepository implements store.NotificationLog.
type NotificationRepository struct {
	q Querier
}

// NewNotificationRepository returns a NotificationRepository using q.
func NewNotificationRepository(q Querier) *NotificationRepository {
	return &NotificationRepository{q: q}
}

// Record inserts the pair and reports whether it was new. Within a
// transaction a concurrent insert of the same pair blocks until the other
// transaction ends.
func (r *NotificationRepository) Record(ctx context.Context, orderID, transactionID, status string) (bool, error) {
	tag, err := r.q.Exec(ctx, recordNotificationSQL, transactionID, status, orderID)
	if err != nil {
		return false, fmt.Errorf("recording notification %q/%q: %w", transactionID, status, err)
	}
	return tag.RowsAffected() == 1, nil
}
