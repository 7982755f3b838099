package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), a .env file, flags, or YAML files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	JWTSecret   string `usage:"HS256 secret for session tokens" flag:"jwt-secret"`
	Redis       RedisConfig
	Kafka       KafkaConfig
	Midtrans    MidtransConfig
	Checkout    CheckoutConfig
	Settlement  SettlementConfig
	Expiry      ExpiryConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// RedisConfig enables the order status cache when Addr is set.
type RedisConfig struct {
	Addr      string        `usage:"Redis address; empty disables the status cache"`
	Password  string        `usage:"Redis password"`
	StatusTTL time.Duration `default:"10m" usage:"Order status cache TTL" flag:"redis-status-ttl"`
}

// KafkaConfig enables order events when Brokers is set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers; empty disables order events"`
	Topic   string   `default:"orders" usage:"Order events topic"`
}

// MidtransConfig holds the payment gateway credentials.
type MidtransConfig struct {
	ServerKey string        `usage:"Midtrans server key" flag:"midtrans-server-key"`
	BaseURL   string        `default:"https://app.sandbox.midtrans.com" usage:"Snap API base URL" flag:"midtrans-base-url"`
	FinishURL string        `usage:"URL Snap redirects to after payment" flag:"midtrans-finish-url"`
	Timeout   time.Duration `default:"15s" usage:"Snap request timeout" flag:"midtrans-timeout"`
}

// CheckoutConfig bounds the checkout transaction.
type CheckoutConfig struct {
	LockWait time.Duration `default:"5s"  usage:"Maximum wait for a row lock" flag:"checkout-lock-wait"`
	Timeout  time.Duration `default:"10s" usage:"Maximum checkout transaction duration" flag:"checkout-timeout"`
}

// SettlementConfig bounds the status update transaction.
type SettlementConfig struct {
	LockWait time.Duration `default:"5s"  usage:"Maximum wait for a row lock" flag:"settlement-lock-wait"`
	Timeout  time.Duration `default:"60s" usage:"Maximum settlement transaction duration" flag:"settlement-timeout"`
}

// ExpiryConfig controls the sweeper that expires stale pending orders.
type ExpiryConfig struct {
	Enabled  bool          `default:"true" usage:"Expire stale pending orders" flag:"expiry-enabled"`
	TTL      time.Duration `default:"24h"  usage:"Age after which a pending order expires" flag:"expiry-ttl"`
	Interval time.Duration `default:"1m"   usage:"Sweep interval" flag:"expiry-interval"`
	Batch    int           `default:"100"  usage:"Orders expired per sweep" flag:"expiry-batch"`
}

// RateLimitConfig controls the per-client checkout rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"20" usage:"Max checkouts per window"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
	// TrustProxy keys clients by X-Forwarded-For / X-Real-IP.
	TrustProxy bool `usage:"Trust client IP headers set by a reverse proxy"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads .env (if present), then environment variables and YAML
// files, and validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports missing required settings.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	case c.JWTSecret == "":
		return errors.New("jwt secret is required: set SHOP_JWT_SECRET")
	case c.Midtrans.ServerKey == "":
		return errors.New("midtrans server key is required: set SHOP_MIDTRANS_SERVER_KEY")
	case c.Expiry.Enabled && (c.Expiry.TTL <= 0 || c.Expiry.Interval <= 0 || c.Expiry.Batch <= 0):
		return errors.New("expiry ttl, interval and batch must be positive")
	}
	return nil
}

// applyPlatformDefaults maps the conventional DATABASE_URL and PORT
// variables set by hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
