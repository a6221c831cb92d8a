package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Login/register throttling: 20 attempts per 10 minutes per key.
const (
	rateLimitWindow = 600 * time.Second
	rateLimitMax    = 20
	verifiedMarkTTL = 48 * time.Hour
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// CheckRateLimit counts against auth_limit:{key}; the window starts with the
// first attempt.
func (c *Client) CheckRateLimit(ctx context.Context, key string) (bool, error) {
	k := "auth_limit:" + key
	n, err := c.cli.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, k, rateLimitWindow)
	}
	return n <= int64(rateLimitMax), nil
}

// MarkVerified makes verification-token consumption one-shot even though the
// token itself is stateless.
func (c *Client) MarkVerified(ctx context.Context, email string) (bool, error) {
	return c.cli.SetNX(ctx, "verified_mark:"+email, "1", verifiedMarkTTL).Result()
}
