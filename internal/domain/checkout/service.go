// Package checkout reserves stock, creates orders and requests payment
// transactions for them.
package checkout

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/store"
)

// LineItem is one requested product. Price and Name come from the client and
// are only used as display fallbacks; the stored price is authoritative.
type LineItem struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
	Name      string
}

// Request holds the input for a checkout.
type Request struct {
	Items []LineItem
	// TotalAmount is the amount to charge, shipping included.
	TotalAmount decimal.Decimal
}

// Result holds the output of a successful checkout.
type Result struct {
	Order       *order.Order
	Transaction *payment.Transaction
}

// Service runs the checkout workflow.
type Service struct {
	txr     store.Transactor
	gateway payment.Gateway
	cfg     Config

	publisher order.Publisher
	cache     order.StatusCache
	now       func() time.Time

	tracer trace.Tracer
	orders metric.Int64Counter
}

// NewService creates a checkout Service.
func NewService(txr store.Transactor, gateway payment.Gateway, cfg Config, opts ...Option) (*Service, error) {
	o := newOptions(opts)

	orders, err := o.meter.Meter("storefront/checkout").Int64Counter("checkout.orders",
		metric.WithDescription("Checkout attempts by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "checkout.orders counter")
	}

	return &Service{
		txr:       txr,
		gateway:   gateway,
		cfg:       cfg,
		publisher: o.publisher,
		cache:     o.cache,
		now:       o.now,
		tracer:    o.tracer.Tracer("storefront/checkout"),
		orders:    orders,
	}, nil
}

// reservation is a locked product with the quantity taken from it.
type reservation struct {
	product  inventory.Product
	quantity int
}

// Checkout reserves stock for the requested items and creates a PENDING
// order in one transaction, then asks the gateway for a payment token.
//
// A gateway failure is reported as *GatewayError; the order is already
// committed at that point.
func (s *Service) Checkout(ctx context.Context, user *auth.Identity, req Request) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Checkout")
	defer func() {
		s.orders.Add(ctx, 1, metric.WithAttributes(attribute.String("result", resultLabel(rerr))))
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if user == nil || user.UserID == "" {
		return nil, auth.ErrUnauthorized
	}
	lines, err := normalize(req.Items)
	if err != nil {
		return nil, err
	}
	if !req.TotalAmount.IsPositive() {
		return nil, ErrInvalidTotal
	}
	span.SetAttributes(
		attribute.String("user.id", user.UserID),
		attribute.Int("checkout.lines", len(lines)),
	)

	var (
		o        *order.Order
		reserved []reservation
		addr     *address.Address
	)
	err = s.txr.InTx(ctx, store.TxOptions{
		LockTimeout: s.cfg.LockTimeout,
		Timeout:     s.cfg.Timeout,
	}, func(ctx context.Context, tx store.Tx) error {
		reserved = reserved[:0]
		subtotal := decimal.Zero

		for _, line := range lines {
			p, err := tx.Inventory().LockForUpdate(ctx, line.ProductID)
			if err != nil {
				if errors.Is(err, inventory.ErrProductNotFound) {
					return &ProductNotFoundError{ProductID: line.ProductID}
				}
				return errors.Wrapf(err, "lock product %s", line.ProductID)
			}
			if p.Stock < line.Quantity {
				return &InsufficientStockError{
					ProductID: line.ProductID,
					Requested: line.Quantity,
					Available: p.Stock,
				}
			}
			if err := tx.Inventory().Decrement(ctx, line.ProductID, line.Quantity); err != nil {
				if errors.Is(err, inventory.ErrInsufficientStock) {
					return &InsufficientStockError{
						ProductID: line.ProductID,
						Requested: line.Quantity,
						Available: p.Stock,
					}
				}
				return errors.Wrapf(err, "decrement product %s", line.ProductID)
			}

			reserved = append(reserved, reservation{product: *p, quantity: line.Quantity})
			subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}

		a, err := tx.Addresses().FindMain(ctx, user.UserID)
		if err != nil {
			return err
		}
		addr = a

		total := req.TotalAmount.Round(2)
		if total.LessThan(subtotal) {
			return ErrTotalMismatch
		}

		now := s.now().UTC()
		items := make([]order.Item, len(reserved))
		for i, r := range reserved {
			items[i] = order.Item{
				ProductID: r.product.ID,
				Quantity:  r.quantity,
				Price:     r.product.Price,
			}
		}
		o = &order.Order{
			ID:        uuid.New().String(),
			UserID:    user.UserID,
			AddressID: a.ID,
			Total:     total,
			Status:    order.StatusPending,
			Items:     items,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Orders().Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	lg.Info("Order placed",
		zap.String("user_id", o.UserID),
		zap.Stringer("total", o.Total),
		zap.Int("lines", len(o.Items)),
	)
	span.SetAttributes(attribute.String("order.id", o.ID))
	s.afterCommit(ctx, lg, o)

	tr, err := s.gateway.CreateTransaction(ctx, s.transactionRequest(user, addr, o, reserved, lines))
	if err != nil {
		lg.Error("Payment transaction failed, order left pending", zap.Error(err))
		return nil, &GatewayError{OrderID: o.ID, Err: err}
	}

	return &Result{Order: o, Transaction: tr}, nil
}

// afterCommit fans the new order out to the cache and the event stream.
// Both are best effort.
func (s *Service) afterCommit(ctx context.Context, lg *zap.Logger, o *order.Order) {
	if err := s.cache.Set(ctx, order.SnapshotOf(o)); err != nil {
		lg.Warn("Cache order status", zap.Error(err))
	}
	if err := s.publisher.Publish(ctx, order.Event{
		ID:         uuid.New().String(),
		Type:       order.EventPlaced,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		Total:      o.Total,
		OccurredAt: o.CreatedAt,
	}); err != nil {
		lg.Warn("Publish order event", zap.Error(err))
	}
}

func (s *Service) transactionRequest(
	user *auth.Identity,
	addr *address.Address,
	o *order.Order,
	reserved []reservation,
	lines []LineItem,
) payment.TransactionRequest {
	items := make([]payment.ItemDetail, 0, len(reserved)+1)
	for i, r := range reserved {
		name := r.product.Name
		if name == "" {
			name = lines[i].Name
		}
		items = append(items, payment.ItemDetail{
			ID:       r.product.ID,
			Name:     name,
			Price:    r.product.Price,
			Quantity: r.quantity,
		})
	}
	if shipping := o.Total.Sub(o.Subtotal()); shipping.IsPositive() {
		items = append(items, payment.ItemDetail{
			ID:       "shipping",
			Name:     "Shipping",
			Price:    shipping,
			Quantity: 1,
		})
	}

	name := user.Name
	if name == "" {
		name = addr.Recipient
	}
	return payment.TransactionRequest{
		OrderID:     o.ID,
		GrossAmount: o.Total,
		Items:       items,
		Customer: payment.Customer{
			Name:       name,
			Email:      user.Email,
			Phone:      addr.Phone,
			Street:     addr.Street,
			City:       addr.City,
			PostalCode: addr.PostalCode,
		},
	}
}

// normalize validates the items, merges duplicate products and sorts the
// result by product id. Every checkout locks rows in that order.
func normalize(items []LineItem) ([]LineItem, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	merged := make(map[string]int, len(items))
	out := make([]LineItem, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 || it.Quantity > MaxQuantity {
			return nil, &InvalidQuantityError{ProductID: it.ProductID}
		}
		if it.ProductID == "" {
			return nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
		if i, ok := merged[it.ProductID]; ok {
			// Both operands are at most MaxQuantity, so the sum cannot wrap.
			if out[i].Quantity+it.Quantity > MaxQuantity {
				return nil, &InvalidQuantityError{ProductID: it.ProductID}
			}
			out[i].Quantity += it.Quantity
			continue
		}
		merged[it.ProductID] = len(out)
		out = append(out, it)
	}

	slices.SortFunc(out, func(a, b LineItem) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return out, nil
}

func resultLabel(err error) string {
	var (
		qty *InvalidQuantityError
		gw  *GatewayError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, auth.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, inventory.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, inventory.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, address.ErrMainAddressNotFound):
		return "address_not_found"
	case errors.As(err, &gw):
		return "gateway_error"
	case errors.Is(err, store.ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrEmptyItems), errors.Is(err, ErrInvalidTotal),
		errors.Is(err, ErrTotalMismatch), errors.As(err, &qty):
		return "invalid"
	default:
		return "error"
	}
}
