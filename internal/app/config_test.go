package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:        "0.0.0.0:8080",
		DatabaseURL: "postgres://localhost/shop",
		JWTSecret:   "0123456789abcdef",
		Midtrans:    MidtransConfig{ServerKey: "SB-Mid-server-x"},
		Expiry:      ExpiryConfig{Enabled: true, TTL: time.Hour, Interval: time.Minute, Batch: 10},
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	for name, mutate := range map[string]func(*Config){
		"NoDatabase":  func(c *Config) { c.DatabaseURL = "" },
		"NoSecret":    func(c *Config) { c.JWTSecret = "" },
		"NoServerKey": func(c *Config) { c.Midtrans.ServerKey = "" },
		"ZeroBatch":   func(c *Config) { c.Expiry.Batch = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	c := validConfig()
	c.Expiry = ExpiryConfig{Enabled: false}
	assert.NoError(t, c.Validate())
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	c := Config{Addr: "0.0.0.0:8080"}
	c.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", c.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", c.Addr)

	c = Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit/db"}
	c.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", c.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", c.Addr)
}
