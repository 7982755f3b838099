// Package redis caches order status snapshots in Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.StatusCache = (*StatusCache)(nil)

// StatusCache implements order.StatusCache. Entries live under
// order_status:{order_id} and expire after the configured TTL.
type StatusCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewStatusCache returns a StatusCache backed by client.
func NewStatusCache(client redis.Cmdable, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

func key(orderID string) string {
	return fmt.Sprintf("order_status:%s", orderID)
}

// Get returns the cached snapshot, or false on a miss.
func (c *StatusCache) Get(ctx context.Context, orderID string) (order.Snapshot, bool, error) {
	raw, err := c.client.Get(ctx, key(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return order.Snapshot{}, false, nil
	}
	if err != nil {
		return order.Snapshot{}, false, errors.Wrapf(err, "get %s", key(orderID))
	}
	s, err := decodeSnapshot(raw)
	if err != nil {
		return order.Snapshot{}, false, errors.Wrapf(err, "decode %s", key(orderID))
	}
	return s, true, nil
}

// Set stores the snapshot.
func (c *StatusCache) Set(ctx context.Context, s order.Snapshot) error {
	if err := c.client.Set(ctx, key(s.OrderID), encodeSnapshot(s), c.ttl).Err(); err != nil {
		return errors.Wrapf(err, "set %s", key(s.OrderID))
	}
	return nil
}

// Add stores the snapshot unless the key already exists.
func (c *StatusCache) Add(ctx context.Context, s order.Snapshot) error {
	if err := c.client.SetNX(ctx, key(s.OrderID), encodeSnapshot(s), c.ttl).Err(); err != nil {
		return errors.Wrapf(err, "setnx %s", key(s.OrderID))
	}
	return nil
}

func encodeSnapshot(s order.Snapshot) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(s.OrderID)
	e.FieldStart("user_id")
	e.Str(s.UserID)
	e.FieldStart("status")
	e.Str(string(s.Status))
	e.FieldStart("updated_at")
	e.Str(s.UpdatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}

func decodeSnapshot(raw []byte) (order.Snapshot, error) {
	var s order.Snapshot
	err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, k string) error {
		switch k {
		case "order_id":
			v, err := d.Str()
			s.OrderID = v
			return err
		case "user_id":
			v, err := d.Str()
			s.UserID = v
			return err
		case "status":
			v, err := d.Str()
			if err != nil {
				return err
			}
			st, err := order.ParseStatus(v)
			s.Status = st
			return err
		case "updated_at":
			v, err := d.Str()
			if err != nil {
				return err
			}
			s.UpdatedAt, err = time.Parse(time.RFC3339Nano, v)
			return err
		default:
			return d.Skip()
		}
	})
	return s, err
}
