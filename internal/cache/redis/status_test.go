package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/order"
)

func TestSnapshotCodec(t *testing.T) {
	in := order.Snapshot{
		OrderID:   "ord-1",
		UserID:    "user-1",
		Status:    order.StatusPaid,
		UpdatedAt: time.Date(2026, 3, 1, 10, 30, 0, 123, time.UTC),
	}

	raw := encodeSnapshot(in)
	assert.JSONEq(t,
		`{"order_id":"ord-1","user_id":"user-1","status":"PAID","updated_at":"2026-03-01T10:30:00.000000123Z"}`,
		string(raw),
	)

	out, err := decodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, in.OrderID, out.OrderID)
	assert.Equal(t, in.UserID, out.UserID)
	assert.Equal(t, in.Status, out.Status)
	assert.True(t, in.UpdatedAt.Equal(out.UpdatedAt))
}

func TestDecodeSnapshot_IgnoresUnknownFields(t *testing.T) {
	out, err := decodeSnapshot([]byte(`{"order_id":"o","extra":[1,2],"status":"PENDING"}`))
	require.NoError(t, err)
	assert.Equal(t, "o", out.OrderID)
	assert.Equal(t, order.StatusPending, out.Status)
}

func TestDecodeSnapshot_RejectsUnknownStatus(t *testing.T) {
	_, err := decodeSnapshot([]byte(`{"order_id":"o","status":"SHIPPED"}`))
	require.Error(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "order_status:abc", key("abc"))
}
