package router

import (
	"context"
	"strings"
	"sync"
	"time"
)

// subscriberCache holds the channel->tenants reverse index, refreshed at
// most once per ttl, matching the 60s _cache_ttl_seconds in the original
// router.
type subscriberCache struct {
	mu        sync.RWMutex
	index     map[string][]string
	fetchedAt time.Time
	ttl       time.Duration
	refresh   func(ctx context.Context) (map[string][]string, error)
}

func newSubscriberCache(ttl time.Duration, refresh func(ctx context.Context) (map[string][]string, error)) *subscriberCache {
	return &subscriberCache{ttl: ttl, refresh: refresh, index: make(map[string][]string)}
}

// subscribersFor normalizes channelID (a leading "#" is stripped, as the
// original router does) and returns the tenants subscribed to it,
// refreshing the index first if it has gone stale.
func (c *subscriberCache) subscribersFor(ctx context.Context, channelID string) ([]string, error) {
	channelID = strings.TrimPrefix(channelID, "#")

	c.mu.RLock()
	stale := time.Since(c.fetchedAt) > c.ttl
	subs := c.index[channelID]
	c.mu.RUnlock()

	if !stale {
		return subs, nil
	}

	fresh, err := c.refresh(ctx)
	if err != nil {
		// Serve the stale index rather than fail the whole route — a
		// transient store error shouldn't drop live signal traffic.
		return subs, nil
	}

	c.mu.Lock()
	c.index = fresh
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return fresh[channelID], nil
}
