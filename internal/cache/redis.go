// Package cache keeps customer order listings in Redis.
//
// Every user has a version counter. A lookup reports the version it read and
// the following write stores under that version, so a page built before an
// invalidation lands under the old version. Invalidation bumps the counter,
// so stale pages become unreachable at once and expire on their own TTL.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/kart-orders/internal/domain/order"
)

const keyPrefix = "kart:orders:"

// DefaultTTL bounds how long a listing may be served after a missed
// invalidation.
const DefaultTTL = time.Minute

var _ order.ListCache = (*OrderLists)(nil)

// Client is the subset of redis commands the cache uses. *redis.Client
// satisfies it.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// OrderLists implements order.ListCache.
type OrderLists struct {
	client Client
	ttl    time.Duration
}

// New returns a cache storing entries for ttl. A non-positive ttl selects
// DefaultTTL.
func New(client Client, ttl time.Duration) *OrderLists {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &OrderLists{client: client, ttl: ttl}
}

func versionKey(userID string) string {
	return keyPrefix + userID + ":v"
}

func entryKey(userID string, version order.ListVersion, key string) string {
	return fmt.Sprintf("%s%s:%d:%s", keyPrefix, userID, version, key)
}

func (c *OrderLists) version(ctx context.Context, userID string) (order.ListVersion, error) {
	v, err := c.client.Get(ctx, versionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read list version of %q", userID)
	}
	return order.ListVersion(v), nil
}

// GetUserOrders looks up a page under the user's current version, which is
// returned for a later SetUserOrders.
func (c *OrderLists) GetUserOrders(ctx context.Context, userID, key string) (*order.ListResult, order.ListVersion, bool, error) {
	v, err := c.version(ctx, userID)
	if err != nil {
		return nil, 0, false, err
	}
	data, err := c.client.Get(ctx, entryKey(userID, v, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, v, false, nil
	}
	if err != nil {
		return nil, v, false, errors.Wrapf(err, "read order list of %q", userID)
	}
	res, err := decodeList(data)
	if err != nil {
		return nil, v, false, err
	}
	return res, v, true, nil
}

// SetUserOrders stores a page under version v. If the user has been
// invalidated since v was read, the page is unreachable.
func (c *OrderLists) SetUserOrders(ctx context.Context, userID, key string, v order.ListVersion, res *order.ListResult) error {
	if err := c.client.Set(ctx, entryKey(userID, v, key), encodeList(res), c.ttl).Err(); err != nil {
		return errors.Wrapf(err, "write order list of %q", userID)
	}
	return nil
}

// InvalidateUserOrders makes every cached listing of userID unreachable.
func (c *OrderLists) InvalidateUserOrders(ctx context.Context, userID string) error {
	if err := c.client.Incr(ctx, versionKey(userID)).Err(); err != nil {
		return errors.Wrapf(err, "bump list version of %q", userID)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *OrderLists) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
