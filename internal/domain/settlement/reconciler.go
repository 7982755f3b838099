// Package settlement applies payment outcomes to orders and stock.
package settlement

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/store"
)

// Source identifies who requested a status change.
type Source string

const (
	SourceGateway Source = "gateway"
	SourceAdmin   Source = "admin"
	SourceExpiry  Source = "expiry"
)

// Result classifies how an Update was handled. Every Result other than
// ResultApplied leaves the order and stock unchanged.
type Result string

const (
	ResultApplied        Result = "applied"
	ResultAlreadySettled Result = "already_settled"
	ResultDuplicate      Result = "duplicate"
	ResultIgnored        Result = "ignored"
	ResultRejected       Result = "rejected"
)

// Update is a requested status change for one order.
type Update struct {
	OrderID string
	// Target is the requested status. Empty means the report carries no
	// transition, e.g. an unknown gateway status.
	Target order.Status
	// PaymentMethod and PaymentStatus are stored with the new status when set.
	PaymentMethod string
	PaymentStatus string
	// TransactionID enables deduplication of repeated gateway deliveries.
	TransactionID string
	Source        Source
}

// Outcome reports what Apply did.
type Outcome struct {
	OrderID string
	Result  Result
	From    order.Status
	To      order.Status
}

// MapGatewayStatus converts a gateway transaction status into an order
// status. Unknown values map to no transition.
func MapGatewayStatus(s string) (order.Status, bool) {
	switch s {
	case "settlement":
		return order.StatusPaid, true
	case "pending":
		return order.StatusPending, true
	case "expire":
		return order.StatusExpired, true
	case "cancel":
		return order.StatusCancelled, true
	default:
		return "", false
	}
}

// Reconciler applies status updates transactionally and idempotently.
type Reconciler struct {
	txr     store.Transactor
	gateway payment.Gateway
	cfg     Config

	publisher order.Publisher
	cache     order.StatusCache
	now       func() time.Time

	tracer  trace.Tracer
	updates metric.Int64Counter
}

// NewReconciler creates a Reconciler.
func NewReconciler(txr store.Transactor, gateway payment.Gateway, cfg Config, opts ...Option) (*Reconciler, error) {
	o := newOptions(opts)

	updates, err := o.meter.Meter("storefront/settlement").Int64Counter("settlement.updates",
		metric.WithDescription("Order status updates by source and result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "settlement.updates counter")
	}

	return &Reconciler{
		txr:       txr,
		gateway:   gateway,
		cfg:       cfg,
		publisher: o.publisher,
		cache:     o.cache,
		now:       o.now,
		tracer:    o.tracer.Tracer("storefront/settlement"),
		updates:   updates,
	}, nil
}

// HandleNotification verifies a raw gateway notification and applies it.
func (r *Reconciler) HandleNotification(ctx context.Context, payload []byte) (*Outcome, error) {
	n, err := r.gateway.ParseNotification(ctx, payload)
	if err != nil {
		return nil, errors.Wrap(err, "parse notification")
	}

	target, known := MapGatewayStatus(n.TransactionStatus)
	if !known {
		zctx.From(ctx).Info("Unmapped gateway status",
			zap.String("order_id", n.OrderID),
			zap.String("transaction_status", n.TransactionStatus),
		)
	}

	return r.Apply(ctx, Update{
		OrderID:       n.OrderID,
		Target:        target,
		PaymentMethod: n.PaymentType,
		PaymentStatus: n.TransactionStatus,
		TransactionID: n.TransactionID,
		Source:        SourceGateway,
	})
}

// Apply runs one status update in a transaction:
//
//   - the order row is locked; a missing order fails with order.ErrNotFound;
//   - a PAID order is reported as already settled;
//   - a repeated (transaction id, status) pair is reported as duplicate;
//   - a transition the state machine rejects changes nothing;
//   - otherwise the status and payment fields are written and, for EXPIRED
//     and CANCELLED, every item's quantity is returned to stock.
//
// Only storage failures are returned as errors.
func (r *Reconciler) Apply(ctx context.Context, u Update) (_ *Outcome, rerr error) {
	ctx, span := r.tracer.Start(ctx, "settlement.Apply", trace.WithAttributes(
		attribute.String("order.id", u.OrderID),
		attribute.String("settlement.source", string(u.Source)),
		attribute.String("settlement.target", string(u.Target)),
	))
	out := &Outcome{OrderID: u.OrderID}
	defer func() {
		label := string(out.Result)
		if rerr != nil {
			label = "error"
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		r.updates.Add(ctx, 1, metric.WithAttributes(
			attribute.String("source", string(u.Source)),
			attribute.String("result", label),
		))
		span.End()
	}()

	var updated *order.Order
	err := r.txr.InTx(ctx, store.TxOptions{
		LockTimeout: r.cfg.LockTimeout,
		Timeout:     r.cfg.Timeout,
	}, func(ctx context.Context, tx store.Tx) error {
		updated = nil

		o, err := tx.Orders().GetForUpdate(ctx, u.OrderID)
		if err != nil {
			return err
		}
		out.From, out.To = o.Status, o.Status

		if o.Status == order.StatusPaid {
			out.Result = ResultAlreadySettled
			return nil
		}

		if u.TransactionID != "" {
			fresh, err := tx.Notifications().Record(ctx, o.ID, u.TransactionID, u.PaymentStatus)
			if err != nil {
				return errors.Wrap(err, "record notification")
			}
			if !fresh {
				out.Result = ResultDuplicate
				return nil
			}
		}

		if u.Target == "" {
			out.Result = ResultIgnored
			return nil
		}
		if err := o.Transition(u.Target, r.now().UTC()); err != nil {
			if errors.Is(err, order.ErrInvalidTransition) {
				out.Result = ResultRejected
				return nil
			}
			return err
		}

		if u.PaymentMethod != "" {
			o.PaymentMethod = &u.PaymentMethod
		}
		if u.PaymentStatus != "" {
			o.PaymentStatus = &u.PaymentStatus
		}
		if err := tx.Orders().UpdateStatus(ctx, o); err != nil {
			return errors.Wrap(err, "update order status")
		}

		if o.Status.RestoresStock() {
			items := slices.Clone(o.Items)
			slices.SortFunc(items, func(a, b order.Item) int {
				return strings.Compare(a.ProductID, b.ProductID)
			})
			for _, it := range items {
				if err := tx.Inventory().Increment(ctx, it.ProductID, it.Quantity); err != nil {
					return errors.Wrapf(err, "restore stock for product %s", it.ProductID)
				}
			}
		}

		out.To = o.Status
		out.Result = ResultApplied
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(
		zap.String("order_id", u.OrderID),
		zap.String("source", string(u.Source)),
		zap.String("result", string(out.Result)),
	)
	if updated == nil {
		lg.Info("Status update skipped",
			zap.String("status", string(out.From)),
			zap.String("target", string(u.Target)),
		)
		return out, nil
	}

	lg.Info("Order status changed",
		zap.String("from", string(out.From)),
		zap.String("to", string(out.To)),
	)
	if err := r.cache.Set(ctx, order.SnapshotOf(updated)); err != nil {
		lg.Warn("Cache order status", zap.Error(err))
	}
	if err := r.publisher.Publish(ctx, order.Event{
		ID:         uuid.New().String(),
		Type:       order.EventStatusChanged,
		OrderID:    updated.ID,
		UserID:     updated.UserID,
		Status:     out.To,
		Previous:   out.From,
		Total:      updated.Total,
		OccurredAt: updated.UpdatedAt,
	}); err != nil {
		lg.Warn("Publish order event", zap.Error(err))
	}
	return out, nil
}
