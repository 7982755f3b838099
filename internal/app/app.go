package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/broker/kafka"
	rediscache "github.com/xenking/storefront/internal/cache/redis"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/settlement"
	"github.com/xenking/storefront/internal/gateway/midtrans"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/identity"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the expiry
// sweeper, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))
	ctx = zctx.Base(ctx, lg)
	tp, mp := m.TracerProvider(), m.MeterProvider()

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		HealthCheckPeriod: 30 * time.Second,
	})
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second))

	// Optional Redis status cache.
	var statuses order.StatusCache = order.NopStatusCache{}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer func() { _ = rdb.Close() }()
		statuses = rediscache.NewStatusCache(rdb, cfg.Redis.StatusTTL)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		lg.Info("Order status cache enabled", zap.String("redis", cfg.Redis.Addr))
	}

	// Optional Kafka order events.
	var publisher order.Publisher = order.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := kafka.NewPublisher(kafka.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, lg)
		if err != nil {
			return errors.Wrap(err, "create kafka publisher")
		}
		defer func() {
			if err := p.Close(); err != nil {
				lg.Warn("Close kafka publisher", zap.Error(err))
			}
		}()
		publisher = p
		healthSvc.AddReadinessCheck("kafka", 2*time.Second, func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka.Brokers)
		})
		lg.Info("Order events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	gateway, err := midtrans.NewClient(midtrans.Config{
		ServerKey: cfg.Midtrans.ServerKey,
		BaseURL:   cfg.Midtrans.BaseURL,
		FinishURL: cfg.Midtrans.FinishURL,
		Timeout:   cfg.Midtrans.Timeout,
	}, midtrans.WithTracerProvider(tp), midtrans.WithMeterProvider(mp))
	if err != nil {
		return errors.Wrap(err, "create midtrans client")
	}

	authenticator, err := identity.NewJWTAuthenticator(cfg.JWTSecret)
	if err != nil {
		return errors.Wrap(err, "create authenticator")
	}

	// Domain services.
	txr := postgres.NewTransactor(pool)
	orders := postgres.NewOrderRepository(pool)

	checkoutSvc, err := checkout.NewService(txr, gateway, checkout.Config{
		LockTimeout: cfg.Checkout.LockWait,
		Timeout:     cfg.Checkout.Timeout,
	},
		checkout.WithPublisher(publisher),
		checkout.WithStatusCache(statuses),
		checkout.WithTracerProvider(tp),
		checkout.WithMeterProvider(mp),
	)
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}

	reconciler, err := settlement.NewReconciler(txr, gateway, settlement.Config{
		LockTimeout: cfg.Settlement.LockWait,
		Timeout:     cfg.Settlement.Timeout,
	},
		settlement.WithPublisher(publisher),
		settlement.WithStatusCache(statuses),
		settlement.WithTracerProvider(tp),
		settlement.WithMeterProvider(mp),
	)
	if err != nil {
		return errors.Wrap(err, "create reconciler")
	}

	// HTTP.
	router := chi.NewRouter()
	router.Use(
		httpmiddleware.Instrument("storefront-api", tp, mp),
		httpmiddleware.LogRequests(),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	handler.New(checkoutSvc, reconciler, orders, postgres.NewInventoryRepository(pool), statuses, authenticator).
		Mount(router, httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:        cfg.RateLimit.Max,
			Window:     cfg.RateLimit.Window,
			TrustProxy: cfg.RateLimit.TrustProxy,
		}))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Checkout.Timeout + cfg.Midtrans.Timeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Expiry.Enabled {
		expirer := settlement.NewExpirer(orders, reconciler, settlement.ExpiryConfig{
			TTL:      cfg.Expiry.TTL,
			Interval: cfg.Expiry.Interval,
			Batch:    cfg.Expiry.Batch,
		})
		g.Go(func() error {
			return expirer.Run(gctx)
		})
	}

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
