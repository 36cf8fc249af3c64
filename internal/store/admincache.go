package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultAdminTTL is how long an administrator list is trusted.
	DefaultAdminTTL = time.Hour
	// DefaultAdminCacheSize bounds the number of chats cached.
	DefaultAdminCacheSize = 1024
)

// AdminSource fetches the administrator ids of a chat from the platform.
type AdminSource func(ctx context.Context, chatID int64) ([]int64, error)

// AdminCache memoizes administrator lists per chat for a bounded interval.
type AdminCache struct {
	cache *expirable.LRU[int64, []int64]
	fetch AdminSource
}

// NewAdminCache creates a cache in front of fetch.
func NewAdminCache(size int, ttl time.Duration, fetch AdminSource) *AdminCache {
	return &AdminCache{
		cache: expirable.NewLRU[int64, []int64](size, nil, ttl),
		fetch: fetch,
	}
}

// IDs returns the administrator ids of a chat.
func (c *AdminCache) IDs(ctx context.Context, chatID int64) ([]int64, error) {
	if ids, ok := c.cache.Get(chatID); ok {
		return ids, nil
	}

	ids, err := c.fetch(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch administrators of chat %d: %w", chatID, err)
	}

	c.cache.Add(chatID, ids)
	return ids, nil
}

// IsAdmin reports whether userID administers chatID.
func (c *AdminCache) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	ids, err := c.IDs(ctx, chatID)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, userID), nil
}

// Invalidate forgets the cached list of a chat.
func (c *AdminCache) Invalidate(chatID int64) {
	c.cache.Remove(chatID)
}
