package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps redis for the two small jobs the service needs it for:
// webhook idempotency and the digest-in-flight lock.
type Cache struct {
	client redis.UniversalClient
}

func NewCache(addr, password string) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	return &Cache{client: rdb}
}

// SeenMessage records a provider message id and reports whether it was
// already recorded. Providers retry webhooks, so the first delivery wins.
func (c *Cache) SeenMessage(ctx context.Context, sid string, ttl time.Duration) (bool, error) {
	set, err := c.client.SetNX(ctx, "inbound:sid:"+sid, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// AcquireLock takes a named lock with an expiry. Returns false when the
// lock is already held.
func (c *Cache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, "lock:"+key, "1", ttl).Result()
}

func (c *Cache) ReleaseLock(ctx context.Context, key string) error {
	return c.client.Del(ctx, "lock:"+key).Err()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
