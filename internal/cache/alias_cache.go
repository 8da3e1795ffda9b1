package cache

import (
	"context"
	"errors"
	"time"

	"tempalias/backend/internal/domain"
)

// ErrMiss 缓存未命中
var ErrMiss = errors.New("cache miss")

// AliasCache 按完整地址缓存别名
type AliasCache interface {
	GetAlias(ctx context.Context, email string) (*domain.Alias, error)
	SetAlias(ctx context.Context, alias *domain.Alias, ttl time.Duration) error
	DeleteAlias(ctx context.Context, email string) error
}

// LocalAliasCache 基于 LocalCache 的别名缓存，未配置 Redis 时使用
type LocalAliasCache struct {
	c *LocalCache[domain.Alias]
}

// NewLocalAliasCache 创建本地别名缓存
func NewLocalAliasCache(c *LocalCache[domain.Alias]) *LocalAliasCache {
	return &LocalAliasCache{c: c}
}

// GetAlias 返回副本，调用方修改不会影响缓存
func (l *LocalAliasCache) GetAlias(_ context.Context, email string) (*domain.Alias, error) {
	alias, ok := l.c.Get(email)
	if !ok {
		return nil, ErrMiss
	}
	if alias.ExpiresAt != nil {
		expiresAt := *alias.ExpiresAt
		alias.ExpiresAt = &expiresAt
	}
	return &alias, nil
}

// SetAlias 缓存别名
func (l *LocalAliasCache) SetAlias(_ context.Context, alias *domain.Alias, ttl time.Duration) error {
	l.c.Set(alias.Email, *alias, ttl)
	return nil
}

// DeleteAlias 删除缓存
func (l *LocalAliasCache) DeleteAlias(_ context.Context, email string) error {
	l.c.Delete(email)
	return nil
}
