// Package memory is the in-process stand-in for Redis, used in -dev mode and
// in tests. Counters are per-process and vanish on restart.
package memory

import (
	"context"
	"sync"
	"time"
)

const (
	rateLimitWindow = 600 * time.Second
	rateLimitMax    = 20
)

type Client struct {
	mu       sync.Mutex
	limit    map[string][]time.Time
	verified map[string]struct{}
}

func New() *Client {
	return &Client{
		limit:    make(map[string][]time.Time),
		verified: make(map[string]struct{}),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) CheckRateLimit(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	cut := now.Add(-rateLimitWindow)
	kept := c.limit[key][:0]
	for _, t := range c.limit[key] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	c.limit[key] = kept
	return len(kept) <= rateLimitMax, nil
}

func (c *Client) MarkVerified(ctx context.Context, email string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.verified[email]; ok {
		return false, nil
	}
	c.verified[email] = struct{}{}
	return true, nil
}
