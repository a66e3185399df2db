package match

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LinkCache persists resolved project links in Redis so the title heuristic
// becomes an auditable cached fact instead of being re-derived on every read.
type LinkCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewLinkCache connects to Redis and verifies reachability.
func NewLinkCache(redisURL string, ttl time.Duration) (*LinkCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewLinkCacheWithClient(client, ttl), nil
}

// NewLinkCacheWithClient wraps an existing Redis client.
func NewLinkCacheWithClient(client *redis.Client, ttl time.Duration) *LinkCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &LinkCache{client: client, prefix: "projlink:", ttl: ttl}
}

func (c *LinkCache) key(partner string, portalID int64) string {
	return fmt.Sprintf("%s%s:%d", c.prefix, partner, portalID)
}

// Put stores the links resolved against one partner store.
func (c *LinkCache) Put(ctx context.Context, partner string, links []Link) error {
	for _, link := range links {
		data, err := json.Marshal(link)
		if err != nil {
			return fmt.Errorf("marshal link for project %d: %w", link.PortalID, err)
		}
		if err := c.client.Set(ctx, c.key(partner, link.PortalID), data, c.ttl).Err(); err != nil {
			return fmt.Errorf("cache link for project %d: %w", link.PortalID, err)
		}
	}
	return nil
}

// Get returns the cached link for one portal project, with ok=false on a miss.
func (c *LinkCache) Get(ctx context.Context, partner string, portalID int64) (Link, bool, error) {
	data, err := c.client.Get(ctx, c.key(partner, portalID)).Result()
	if err == redis.Nil {
		return Link{}, false, nil
	}
	if err != nil {
		return Link{}, false, fmt.Errorf("lookup link for project %d: %w", portalID, err)
	}

	var link Link
	if err := json.Unmarshal([]byte(data), &link); err != nil {
		return Link{}, false, fmt.Errorf("unmarshal link for project %d: %w", portalID, err)
	}
	return link, true, nil
}

// Invalidate drops the cached link for one portal project.
func (c *LinkCache) Invalidate(ctx context.Context, partner string, portalID int64) error {
	if err := c.client.Del(ctx, c.key(partner, portalID)).Err(); err != nil {
		return fmt.Errorf("invalidate link for project %d: %w", portalID, err)
	}
	return nil
}

// Ping checks whether Redis is reachable.
func (c *LinkCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *LinkCache) Close() error {
	return c.client.Close()
}
