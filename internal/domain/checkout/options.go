package checkout

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront/internal/domain/order"
)

// Config bounds the checkout transaction.
type Config struct {
	LockTimeout time.Duration
	Timeout     time.Duration
}

type options struct {
	publisher order.Publisher
	cache     order.StatusCache
	tracer    trace.TracerProvider
	meter     metric.MeterProvider
	now       func() time.Time
}

// Option configures a Service.
type Option func(*options)

// WithPublisher sets the order event publisher.
func WithPublisher(p order.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithStatusCache sets the cache that receives new order statuses.
func WithStatusCache(c order.StatusCache) Option {
	return func(o *options) { o.cache = c }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meter = mp }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(opts []Option) options {
	o := options{
		publisher: order.NopPublisher{},
		cache:     order.NopStatusCache{},
		tracer:    tracenoop.NewTracerProvider(),
		meter:     metricnoop.NewMeterProvider(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
