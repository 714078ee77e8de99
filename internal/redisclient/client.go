package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// MarkOrderApplied records that an orderId has been reconciled, keeping the
// merge summary as the value so a fast-path hit can still answer with the
// original outcome. First writer wins.
func (c *Client) MarkOrderApplied(ctx context.Context, orderID string, summary []byte, ttl time.Duration) error {
	return c.rdb.SetNX(ctx, orderKey(orderID), summary, ttl).Err()
}

// AppliedOrderSummary returns the stored summary for an already-applied
// orderId, or (nil, false, nil) when the marker is absent. The durable
// check against the stored payment history remains authoritative; this is
// only a fast path.
func (c *Client) AppliedOrderSummary(ctx context.Context, orderID string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, orderKey(orderID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func orderKey(orderID string) string {
	return fmt.Sprintf("webhook:applied:%s", orderID)
}
