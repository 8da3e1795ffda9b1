package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"tempalias/backend/internal/cache"
	"tempalias/backend/internal/domain"
)

const aliasKeyPrefix = "tempalias:alias:"

// AliasCache 基于 Redis 的别名缓存
type AliasCache struct {
	client *Client
}

var _ cache.AliasCache = (*AliasCache)(nil)

// NewAliasCache 创建别名缓存
func NewAliasCache(client *Client) *AliasCache {
	return &AliasCache{client: client}
}

func aliasKey(email string) string {
	return aliasKeyPrefix + email
}

// GetAlias 读取缓存，未命中时返回 cache.ErrMiss
func (c *AliasCache) GetAlias(ctx context.Context, email string) (*domain.Alias, error) {
	data, err := c.client.rdb.Get(ctx, aliasKey(email)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, cache.ErrMiss
		}
		return nil, fmt.Errorf("redis get alias: %w", err)
	}

	var alias domain.Alias
	if err := json.Unmarshal(data, &alias); err != nil {
		return nil, fmt.Errorf("decode cached alias: %w", err)
	}
	return &alias, nil
}

// SetAlias 写入缓存，ttl 必须为正
func (c *AliasCache) SetAlias(ctx context.Context, alias *domain.Alias, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(alias)
	if err != nil {
		return fmt.Errorf("encode alias: %w", err)
	}
	return c.client.rdb.Set(ctx, aliasKey(alias.Email), data, ttl).Err()
}

// DeleteAlias 删除缓存
func (c *AliasCache) DeleteAlias(ctx context.Context, email string) error {
	return c.client.rdb.Del(ctx, aliasKey(email)).Err()
}
