//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront/internal/domain/order"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	endpoint, err := ctr.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestStatusCache_RoundTrip(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	c := NewStatusCache(client, time.Minute)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	snap := order.Snapshot{OrderID: "ord-1", UserID: "u", Status: order.StatusExpired, UpdatedAt: time.Now().UTC()}
	require.NoError(t, c.Set(ctx, snap))

	got, ok, err := c.Get(ctx, "ord-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, order.StatusExpired, got.Status)

	ttl, err := client.TTL(ctx, "order_status:ord-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestStatusCache_AddKeepsExisting(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	c := NewStatusCache(client, time.Minute)

	pending := order.Snapshot{OrderID: "ord-2", UserID: "u", Status: order.StatusPending, UpdatedAt: time.Now().UTC()}
	require.NoError(t, c.Add(ctx, pending))
	got, ok, err := c.Get(ctx, "ord-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, order.StatusPending, got.Status)

	paid := pending
	paid.Status = order.StatusPaid
	require.NoError(t, c.Set(ctx, paid))
	require.NoError(t, c.Add(ctx, pending))

	got, _, err = c.Get(ctx, "ord-2")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
}
