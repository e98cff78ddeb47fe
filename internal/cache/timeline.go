package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"homefeed/internal/model"
)

const (
	// TimelinePagePrefix keys one rendered timeline page by
	// (owner, cursor, limit).
	TimelinePagePrefix = "timeline:page:"

	// DefaultPageTTL bounds staleness of a cached page. Freshness comes
	// from the short TTL, not from invalidation: there is no bounded way to
	// enumerate all cursor variants of an owner's timeline, and the feed
	// entry store underneath stays authoritative, so a stale page only
	// delays visibility of a new post by at most one TTL window.
	DefaultPageTTL = 2 * time.Minute
)

// TimelineCache is the read-through cache in front of the timeline reader.
// A miss is (nil, false, nil); callers fall through to the reader and set
// the result best-effort. Errors are reported but callers treat them as a
// miss: the cache is strictly additive, never a correctness gate.
type TimelineCache interface {
	GetPage(ctx context.Context, ownerID int64, cursor string, limit int) (*model.TimelinePage, bool, error)
	SetPage(ctx context.Context, ownerID int64, cursor string, limit int, page *model.TimelinePage) error
}

// RedisTimelineCache implements TimelineCache on plain Redis KV with TTL.
type RedisTimelineCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTimelineCache creates a TimelineCache with the given TTL; ttl <= 0
// falls back to DefaultPageTTL.
func NewTimelineCache(client *redis.Client, ttl time.Duration) TimelineCache {
	if ttl <= 0 {
		ttl = DefaultPageTTL
	}
	return &RedisTimelineCache{client: client, ttl: ttl}
}

func pageKey(ownerID int64, cursor string, limit int) string {
	if cursor == "" {
		cursor = "head"
	}
	return fmt.Sprintf("%s%d:%s:%d", TimelinePagePrefix, ownerID, cursor, limit)
}

func (c *RedisTimelineCache) GetPage(ctx context.Context, ownerID int64, cursor string, limit int) (*model.TimelinePage, bool, error) {
	key := pageKey(ownerID, cursor, limit)

	raw, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		log.Printf("[TimelineCache] GetPage FAILED: owner=%d err=%v", ownerID, err)
		return nil, false, fmt.Errorf("get page: %w", err)
	}

	var page model.TimelinePage
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		// Corrupt entry: treat as a miss, the TTL will retire it.
		log.Printf("[TimelineCache] GetPage decode error: owner=%d err=%v", ownerID, err)
		return nil, false, nil
	}

	log.Printf("[TimelineCache] GetPage HIT: owner=%d cursor=%q limit=%d", ownerID, cursor, limit)
	return &page, true, nil
}

func (c *RedisTimelineCache) SetPage(ctx context.Context, ownerID int64, cursor string, limit int, page *model.TimelinePage) error {
	key := pageKey(ownerID, cursor, limit)

	raw, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("encode page: %w", err)
	}

	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		log.Printf("[TimelineCache] SetPage FAILED: owner=%d err=%v", ownerID, err)
		return fmt.Errorf("set page: %w", err)
	}

	log.Printf("[TimelineCache] SetPage OK: owner=%d cursor=%q limit=%d posts=%d ttl=%v",
		ownerID, cursor, limit, len(page.Posts), c.ttl)
	return nil
}
