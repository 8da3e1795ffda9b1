package hybrid

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tempalias/backend/internal/cache"
	"tempalias/backend/internal/domain"
	"tempalias/backend/internal/storage"
)

// cacheTimeout 单次缓存操作的超时
const cacheTimeout = 500 * time.Millisecond

// Store 混合存储实现，数据库为准，按地址查询别名时走缓存
//
// 缓存条目的存活时间不超过别名剩余有效期，已过期的别名不会写入缓存。
// 缓存出错时直接回落到数据库；cache 为 nil 时不做缓存。
type Store struct {
	storage.Store
	cache cache.AliasCache
	ttl   time.Duration
	log   *zap.Logger
	now   func() time.Time

	// deletes 每次删除别名后递增，回填期间有删除发生时撤销回填
	deletes atomic.Uint64
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建混合存储实例
func NewStore(db storage.Store, aliasCache cache.AliasCache, ttl time.Duration, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		Store: db,
		cache: aliasCache,
		ttl:   ttl,
		log:   log,
		now:   time.Now,
	}
}

// SetClock 替换时钟，测试使用
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// GetAliasByEmail 先查缓存，未命中时查数据库并回填
func (s *Store) GetAliasByEmail(email string) (*domain.Alias, error) {
	if s.cache == nil {
		return s.Store.GetAliasByEmail(email)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()

	alias, err := s.cache.GetAlias(ctx, email)
	if err == nil {
		return alias, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.log.Warn("alias cache read failed", zap.String("email", email), zap.Error(err))
	}

	epoch := s.deletes.Load()
	alias, err = s.Store.GetAliasByEmail(email)
	if err != nil {
		return nil, err
	}

	if ttl := s.entryTTL(alias); ttl > 0 {
		if err := s.cache.SetAlias(ctx, alias, ttl); err != nil {
			s.log.Warn("alias cache write failed", zap.String("email", email), zap.Error(err))
		} else if s.deletes.Load() != epoch {
			// 删除可能先于本次回填完成失效，这里补一次失效
			s.invalidate(email)
		}
	}
	return alias, nil
}

// DeleteAlias 删除别名并失效缓存
func (s *Store) DeleteAlias(id string) error {
	if s.cache == nil {
		return s.Store.DeleteAlias(id)
	}

	alias, err := s.Store.GetAliasByID(id)
	if err != nil && !errors.Is(err, storage.ErrAliasNotFound) {
		return err
	}

	if err := s.Store.DeleteAlias(id); err != nil {
		return err
	}
	s.deletes.Add(1)

	if alias != nil {
		s.invalidate(alias.Email)
	}
	return nil
}

func (s *Store) invalidate(email string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	if err := s.cache.DeleteAlias(ctx, email); err != nil {
		s.log.Warn("alias cache invalidation failed", zap.String("email", email), zap.Error(err))
	}
}

// entryTTL 计算缓存存活时间：min(配置上限, 剩余有效期)
func (s *Store) entryTTL(alias *domain.Alias) time.Duration {
	remaining, ok := alias.RemainingTTL(s.now())
	if !ok {
		return s.ttl
	}
	if remaining < s.ttl {
		return remaining
	}
	return s.ttl
}
