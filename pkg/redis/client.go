package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/orderlyhq/orderly-backend/pkg/config"
)

const (
	keyspace = "orderly"

	idempotencyPrefix  = "idempotency"
	rateLimitPrefix    = "rate_limit"
	courierTokenPrefix = "courier_token"
)

type Client struct {
	rdb *goredis.Client
}

func NewClient(cfg config.RedisConfig) (*Client, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		if cfg.Address == "" {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = &goredis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	return &Client{rdb: goredis.NewClient(opts)}, nil
}

// NewClientFromRedis is used by tests backed by miniredis or a local server.
func NewClientFromRedis(rdb *goredis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func namespaced(prefix, key string) string {
	return fmt.Sprintf("%s:%s:%s", keyspace, prefix, key)
}

// IdempotencyStore is the surface the idempotency middleware and webhook
// guards depend on.
type IdempotencyStore interface {
	IdempotencyKey(scope, key string) string
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

var _ IdempotencyStore = (*Client)(nil)

// IdempotencyKey builds the namespaced redis key for a request scope and
// client-supplied idempotency key.
func (c *Client) IdempotencyKey(scope, key string) string {
	return namespaced(idempotencyPrefix, fmt.Sprintf("%s|%s", scope, key))
}

// Get returns the stored value. Callers check goredis.Nil for misses.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// FixedWindowAllow increments the counter for key within a fixed window and
// reports whether the caller is still under limit.
func (c *Client) FixedWindowAllow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	fullKey := namespaced(rateLimitPrefix, key)

	count, err := c.rdb.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing rate limit counter: %w", err)
	}
	if count == 1 {
		if err := c.rdb.Expire(ctx, fullKey, window).Err(); err != nil {
			return false, fmt.Errorf("setting rate limit window: %w", err)
		}
	}
	return count <= limit, nil
}

// GetCourierToken returns the cached dispatch token, or "" on miss.
func (c *Client) GetCourierToken(ctx context.Context, clientID string) (string, error) {
	token, err := c.rdb.Get(ctx, namespaced(courierTokenPrefix, clientID)).Result()
	if err == goredis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading courier token: %w", err)
	}
	return token, nil
}

// SetCourierToken caches the dispatch token for ttl.
func (c *Client) SetCourierToken(ctx context.Context, clientID, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, namespaced(courierTokenPrefix, clientID), token, ttl).Err()
}
