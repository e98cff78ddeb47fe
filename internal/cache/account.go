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
	// AccountSummaryPrefix keys one account's summary by id.
	AccountSummaryPrefix = "account:summary:"

	AccountSummaryTTL = 10 * time.Minute
)

// AccountCache caches account summaries for timeline hydration. Unlike
// timeline pages, a summary is keyed by a single stable identity, so it is
// explicitly invalidated on change rather than waiting out a TTL.
type AccountCache interface {
	GetSummary(ctx context.Context, accountID int64) (*model.AccountSummary, bool, error)
	SetSummary(ctx context.Context, summary model.AccountSummary) error
	// Invalidate deletes the cached summary. Called when the account
	// changes or is removed.
	Invalidate(ctx context.Context, accountID int64) error
}

// RedisAccountCache implements AccountCache on Redis KV.
type RedisAccountCache struct {
	client *redis.Client
}

func NewAccountCache(client *redis.Client) AccountCache {
	return &RedisAccountCache{client: client}
}

func summaryKey(accountID int64) string {
	return fmt.Sprintf("%s%d", AccountSummaryPrefix, accountID)
}

func (c *RedisAccountCache) GetSummary(ctx context.Context, accountID int64) (*model.AccountSummary, bool, error) {
	raw, err := c.client.Get(ctx, summaryKey(accountID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get summary: %w", err)
	}

	var summary model.AccountSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		log.Printf("[AccountCache] GetSummary decode error: account=%d err=%v", accountID, err)
		return nil, false, nil
	}
	return &summary, true, nil
}

func (c *RedisAccountCache) SetSummary(ctx context.Context, summary model.AccountSummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := c.client.Set(ctx, summaryKey(summary.ID), raw, AccountSummaryTTL).Err(); err != nil {
		return fmt.Errorf("set summary: %w", err)
	}
	return nil
}

func (c *RedisAccountCache) Invalidate(ctx context.Context, accountID int64) error {
	if err := c.client.Del(ctx, summaryKey(accountID)).Err(); err != nil {
		log.Printf("[AccountCache] Invalidate FAILED: account=%d err=%v", accountID, err)
		return fmt.Errorf("delete summary: %w", err)
	}
	log.Printf("[AccountCache] Invalidate OK: account=%d", accountID)
	return nil
}
