// Package cache keeps tenant catalogs in Redis for the read-only availability view.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"lab-booking/internal/core"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrCacheMiss = errors.New("cache miss")

// RedisCatalog is a read-through core.CatalogSource backed by Redis. Redis
// failures fall back to the wrapped source.
type RedisCatalog struct {
	client  *redis.Client
	source  core.CatalogSource
	baseTTL time.Duration
	logger  *zap.Logger
}

var _ core.CatalogSource = (*RedisCatalog)(nil)

func NewRedisCatalog(client *redis.Client, source core.CatalogSource, ttl time.Duration, logger *zap.Logger) *RedisCatalog {
	return &RedisCatalog{client: client, source: source, baseTTL: ttl, logger: logger}
}

func (c *RedisCatalog) TenantCatalog(ctx context.Context, tenantID int64) (*core.Catalog, error) {
	cat, err := c.Get(ctx, tenantID)
	if err == nil {
		return cat, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("catalog cache read failed", zap.Int64("tenant_id", tenantID), zap.Error(err))
	}

	cat, err = c.source.TenantCatalog(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, tenantID, cat); err != nil {
		c.logger.Warn("catalog cache write failed", zap.Int64("tenant_id", tenantID), zap.Error(err))
	}
	return cat, nil
}

func (c *RedisCatalog) Get(ctx context.Context, tenantID int64) (*core.Catalog, error) {
	data, err := c.client.Get(ctx, cacheKey(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cat core.Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("unmarshal catalog failed: %w", err)
	}
	return &cat, nil
}

func (c *RedisCatalog) Set(ctx context.Context, tenantID int64, cat *core.Catalog) error {
	data, err := json.Marshal(cat)
	if err != nil {
		return fmt.Errorf("marshal catalog failed: %w", err)
	}

	ttl := c.baseTTL
	if ttl >= 10*time.Second {
		ttl += time.Duration(rand.Int63n(int64(ttl / 10)))
	}
	if err := c.client.Set(ctx, cacheKey(tenantID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Invalidate drops the cached catalog of a tenant.
func (c *RedisCatalog) Invalidate(ctx context.Context, tenantID int64) error {
	if err := c.client.Del(ctx, cacheKey(tenantID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(tenantID int64) string {
	return fmt.Sprintf("catalog:%d", tenantID)
}
