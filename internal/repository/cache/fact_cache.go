// Package cache wraps a FactStore with a Redis read-through cache of
// current facts.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"aura.dev/aura/internal/domain"
	"aura.dev/aura/internal/pkg/logger"
	"aura.dev/aura/internal/repository"
)

const keyPrefix = "aura:fact:current:"

// FactCache is a repository.FactStore decorator. Only GetCurrent is served
// from Redis; Upsert writes through and refreshes the cached entry. A read
// miss only fills an empty key, so it can never overwrite a fact stored by a
// concurrent Upsert. Redis errors never fail a call: the inner store stays
// the source of truth.
type FactCache struct {
	repository.FactStore
	rdb *redis.Client
	ttl time.Duration
}

// New wraps inner with a cache on rdb.
func New(inner repository.FactStore, rdb *redis.Client, ttl time.Duration) *FactCache {
	return &FactCache{FactStore: inner, rdb: rdb, ttl: ttl}
}

func key(itemID string) string { return keyPrefix + itemID }

// GetCurrent implements repository.FactStore.
func (c *FactCache) GetCurrent(ctx context.Context, itemID string) (*domain.Fact, error) {
	raw, err := c.rdb.Get(ctx, key(itemID)).Bytes()
	switch {
	case err == nil:
		var f domain.Fact
		if jerr := json.Unmarshal(raw, &f); jerr == nil {
			return &f, nil
		}
		logger.Warn("Dropping undecodable cached fact", zap.String("item_id", itemID))
		c.invalidate(ctx, itemID)
	case !errors.Is(err, redis.Nil):
		logger.Warn("Fact cache read failed", zap.String("item_id", itemID), zap.Error(err))
	}

	f, err := c.FactStore.GetCurrent(ctx, itemID)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, f)
	return f, nil
}

// Upsert implements repository.FactStore. The cached entry is dropped
// before the write so a failed write never leaves a stale newer value.
func (c *FactCache) Upsert(ctx context.Context, fact *domain.Fact) error {
	c.invalidate(ctx, fact.ItemID)
	if err := c.FactStore.Upsert(ctx, fact); err != nil {
		return err
	}
	c.set(ctx, fact)
	return nil
}

func (c *FactCache) set(ctx context.Context, f *domain.Fact) {
	raw, err := json.Marshal(f)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(f.ItemID), raw, c.ttl).Err(); err != nil {
		logger.Warn("Fact cache write failed", zap.String("item_id", f.ItemID), zap.Error(err))
	}
}

// fill caches a fact read from the inner store only when no entry exists.
func (c *FactCache) fill(ctx context.Context, f *domain.Fact) {
	raw, err := json.Marshal(f)
	if err != nil {
		return
	}
	if err := c.rdb.SetNX(ctx, key(f.ItemID), raw, c.ttl).Err(); err != nil {
		logger.Warn("Fact cache fill failed", zap.String("item_id", f.ItemID), zap.Error(err))
	}
}

func (c *FactCache) invalidate(ctx context.Context, itemID string) {
	if err := c.rdb.Del(ctx, key(itemID)).Err(); err != nil {
		logger.Warn("Fact cache invalidate failed", zap.String("item_id", itemID), zap.Error(err))
	}
}
