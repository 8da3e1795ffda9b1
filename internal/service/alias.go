package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempalias/backend/internal/config"
	"tempalias/backend/internal/domain"
	"tempalias/backend/internal/monitoring"
	"tempalias/backend/internal/retry"
	"tempalias/backend/internal/storage"
)

var (
	ErrPrefixInvalid       = errors.New("prefix invalid")
	ErrTTLInvalid          = errors.New("ttl out of range")
	ErrGenerationExhausted = errors.New("could not generate a unique prefix")
)

// PrefixGenerator 生成候选前缀
type PrefixGenerator interface {
	Generate() string
}

// AliasService 封装别名相关业务操作。
type AliasService struct {
	repo      storage.AliasRepository
	generator PrefixGenerator
	domain    string
	cfg       config.AliasConfig
	metrics   *monitoring.Metrics
	log       *zap.Logger
	now       func() time.Time
}

// NewAliasService 创建别名业务服务。
func NewAliasService(repo storage.AliasRepository, generator PrefixGenerator, cfg *config.Config, log *zap.Logger) *AliasService {
	return &AliasService{
		repo:      repo,
		generator: generator,
		domain:    cfg.Mail.Domain,
		cfg:       cfg.Alias,
		log:       log,
		now:       time.Now,
	}
}

// SetMetrics 设置监控指标
func (s *AliasService) SetMetrics(m *monitoring.Metrics) {
	s.metrics = m
}

// SetClock 替换时钟，测试使用
func (s *AliasService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateAliasInput 定义创建别名所需的输入。
type CreateAliasInput struct {
	Prefix      string // 为空时自动生成
	IsPermanent bool
	TTLMinutes  int // 0 表示使用默认值，永久别名忽略此字段
}

// Create 创建新的别名。
//
// 指定前缀时只尝试一次，冲突返回 storage.ErrDuplicateAlias；
// 自动生成前缀时在冲突后重试，超过上限返回 ErrGenerationExhausted。
func (s *AliasService) Create(input CreateAliasInput) (*domain.Alias, error) {
	ttl := time.Duration(0)
	if !input.IsPermanent {
		minutes := input.TTLMinutes
		if minutes == 0 {
			minutes = s.cfg.DefaultTTLMinutes
		}
		if minutes < 1 || minutes > s.cfg.MaxTTLMinutes {
			return nil, fmt.Errorf("%w: %d minutes (allowed 1-%d)", ErrTTLInvalid, minutes, s.cfg.MaxTTLMinutes)
		}
		ttl = time.Duration(minutes) * time.Minute
	}

	if input.Prefix != "" {
		if err := domain.ValidatePrefix(input.Prefix); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPrefixInvalid, err)
		}
		alias := s.newAlias(input.Prefix, input.IsPermanent, ttl)
		if err := s.repo.InsertAlias(alias); err != nil {
			return nil, err
		}
		s.metrics.RecordAliasCreated("custom", alias.IsPermanent)
		return alias, nil
	}

	var created *domain.Alias
	isCollision := func(err error) bool { return errors.Is(err, storage.ErrDuplicateAlias) }
	err := retry.Do(s.cfg.GenerationAttempts, isCollision, func(attempt int) error {
		alias := s.newAlias(s.generator.Generate(), input.IsPermanent, ttl)
		if err := s.repo.InsertAlias(alias); err != nil {
			if isCollision(err) {
				s.log.Debug("generated prefix collided",
					zap.String("email", alias.Email),
					zap.Int("attempt", attempt),
				)
			}
			return err
		}
		created = alias
		return nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			s.log.Warn("prefix generation exhausted", zap.Int("attempts", s.cfg.GenerationAttempts))
			return nil, fmt.Errorf("%w after %d attempts", ErrGenerationExhausted, s.cfg.GenerationAttempts)
		}
		return nil, err
	}

	s.metrics.RecordAliasCreated("generated", created.IsPermanent)
	return created, nil
}

// newAlias 以同一时刻计算创建时间与过期时间
func (s *AliasService) newAlias(prefix string, permanent bool, ttl time.Duration) *domain.Alias {
	now := s.now().UTC().Truncate(time.Microsecond)
	alias := &domain.Alias{
		ID:          uuid.NewString(),
		Email:       domain.AliasAddress(prefix, s.domain),
		Prefix:      prefix,
		CreatedAt:   now,
		IsPermanent: permanent,
	}
	if !permanent {
		expiresAt := now.Add(ttl)
		alias.ExpiresAt = &expiresAt
	}
	return alias
}

// List 获取全部别名，最新的在前。
func (s *AliasService) List() ([]domain.Alias, error) {
	return s.repo.GetAllAliases()
}

// Get 根据 ID 获取别名。
func (s *AliasService) Get(id string) (*domain.Alias, error) {
	return s.repo.GetAliasByID(id)
}

// Delete 删除别名及其全部邮件，别名不存在时返回 storage.ErrAliasNotFound。
func (s *AliasService) Delete(id string) error {
	if _, err := s.repo.GetAliasByID(id); err != nil {
		return err
	}
	if err := s.repo.DeleteAlias(id); err != nil {
		return err
	}
	s.metrics.RecordAliasDeleted()
	return nil
}
