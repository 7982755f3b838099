package settlement

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
)

// ExpiryConfig controls the stale order sweeper.
type ExpiryConfig struct {
	// TTL is how long an order may stay PENDING.
	TTL      time.Duration
	Interval time.Duration
	Batch    int
}

// Expirer periodically expires PENDING orders older than the TTL, which
// returns their reserved stock.
type Expirer struct {
	orders     order.Reader
	reconciler *Reconciler
	cfg        ExpiryConfig
	now        func() time.Time
}

// NewExpirer creates an Expirer.
func NewExpirer(orders order.Reader, reconciler *Reconciler, cfg ExpiryConfig) *Expirer {
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Expirer{
		orders:     orders,
		reconciler: reconciler,
		cfg:        cfg,
		now:        reconciler.now,
	}
}

// Run sweeps every Interval until ctx is cancelled.
func (e *Expirer) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	lg.Info("Expiry sweeper started",
		zap.Duration("ttl", e.cfg.TTL),
		zap.Duration("interval", e.cfg.Interval),
	)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := e.Sweep(ctx)
			if err != nil {
				lg.Error("Expiry sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Info("Expired stale orders", zap.Int("count", n))
			}
		}
	}
}

// Sweep expires one batch of stale orders and returns how many changed.
// Orders settled concurrently are skipped by the state machine.
func (e *Expirer) Sweep(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.cfg.TTL)
	ids, err := e.orders.ListPendingBefore(ctx, cutoff, e.cfg.Batch)
	if err != nil {
		return 0, errors.Wrap(err, "list pending orders")
	}

	expired := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		out, err := e.reconciler.Apply(ctx, Update{
			OrderID: id,
			Target:  order.StatusExpired,
			Source:  SourceExpiry,
		})
		if err != nil {
			zctx.From(ctx).Warn("Expire order", zap.String("order_id", id), zap.Error(err))
			continue
		}
		if out.Result == ResultApplied {
			expired++
		}
	}
	return expired, nil
}
