package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempalias/backend/internal/domain"
	"tempalias/backend/internal/monitoring"
	"tempalias/backend/internal/storage"
)

// Sweeper 定期删除已过期的临时别名及其邮件
type Sweeper struct {
	store    storage.CleanupRepository
	interval time.Duration
	metrics  *monitoring.Metrics
	log      *zap.Logger

	// 定时任务与手动触发的清理串行执行
	mu sync.Mutex
}

// New 创建清理任务
func New(store storage.CleanupRepository, interval time.Duration, metrics *monitoring.Metrics, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		metrics:  metrics,
		log:      log,
	}
}

// Interval 返回清理周期
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// RunOnce 执行一次清理
//
// 先在一个事务内删除过期别名及其邮件，再删除仍然挂在过期别名下的孤立邮件
func (s *Sweeper) RunOnce() (domain.PurgeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.store.PurgeExpired()
	if err != nil {
		s.metrics.RecordSweep(0, 0, err)
		return domain.PurgeResult{}, fmt.Errorf("purge expired aliases: %w", err)
	}

	orphans, err := s.store.DeleteExpiredEmails()
	if err != nil {
		s.metrics.RecordSweep(0, 0, err)
		return result, fmt.Errorf("delete expired emails: %w", err)
	}
	result.DeletedEmails += orphans

	s.metrics.RecordSweep(result.DeletedAliases, result.DeletedEmails, nil)
	if result.DeletedAliases > 0 || result.DeletedEmails > 0 {
		s.log.Info("expired aliases cleaned up",
			zap.Int64("deleted_aliases", result.DeletedAliases),
			zap.Int64("deleted_emails", result.DeletedEmails),
		)
	}
	return result, nil
}

// Run 按固定周期执行清理，直到 ctx 被取消
//
// 单次失败只记录日志，下一个周期自动重试
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("invalid sweep interval: %s", s.interval)
	}

	s.log.Info("expiry sweeper started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(); err != nil {
				s.log.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}
