package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tempalias/backend/internal/domain"
	"tempalias/backend/internal/storage"
)

// Store 基于 GORM 的关系型存储实现（支持 SQLite、PostgreSQL 和 MySQL）
type Store struct {
	db      *gorm.DB
	sqlDB   *sql.DB
	dialect string
	now     func() time.Time
	closers []func() error
}

var _ storage.Store = (*Store)(nil)

// Option 存储实例的可选配置
type Option func(*options)

type options struct {
	now             func() time.Time
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	skipMigrate     bool
	closers         []func() error
}

// WithClock 注入时钟，测试中用于控制过期时间
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithPool 设置连接池参数，SQLite 始终使用单连接
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) Option {
	return func(o *options) {
		o.maxOpenConns = maxOpen
		o.maxIdleConns = maxIdle
		o.connMaxLifetime = lifetime
	}
}

// WithoutMigrate 打开数据库但不执行迁移，供迁移状态查询使用
func WithoutMigrate() Option {
	return func(o *options) {
		o.skipMigrate = true
	}
}

func withCloser(fn func() error) Option {
	return func(o *options) {
		o.closers = append(o.closers, fn)
	}
}

// NewStoreWithDialector 使用给定 dialector 创建存储并执行迁移
func NewStoreWithDialector(dialector gorm.Dialector, opts ...Option) (*Store, error) {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	clock := func() time.Time {
		return o.now().UTC().Truncate(time.Microsecond)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        clock,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}

	dialect := dialector.Name()
	if dialect == "sqlite" {
		// 单连接：内存库在连接间不共享，文件库避免写锁竞争
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		if o.maxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(o.maxOpenConns)
		}
		if o.maxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(o.maxIdleConns)
		}
		if o.connMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(o.connMaxLifetime)
		}
	}

	store := &Store{
		db:      db,
		sqlDB:   sqlDB,
		dialect: dialect,
		now:     clock,
		closers: o.closers,
	}

	if !o.skipMigrate {
		if err := store.Migrate(); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return store, nil
}

// Dialect 返回当前数据库方言名称
func (s *Store) Dialect() string {
	return s.dialect
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	err := s.sqlDB.Close()
	for _, closer := range s.closers {
		if cerr := closer(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.sqlDB.PingContext(ctx)
}

// ========== Alias Repository ==========

// InsertAlias 在事务内检查地址冲突后写入别名
func (s *Store) InsertAlias(alias *domain.Alias) error {
	if alias.ID == "" {
		alias.ID = uuid.NewString()
	}
	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = s.now()
	}
	alias.CreatedAt = alias.CreatedAt.UTC().Truncate(time.Microsecond)
	if alias.ExpiresAt != nil {
		expiresAt := alias.ExpiresAt.UTC().Truncate(time.Microsecond)
		alias.ExpiresAt = &expiresAt
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Alias{}).Where("email = ?", alias.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return storage.ErrDuplicateAlias
		}
		return tx.Create(alias).Error
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateAlias) || isDuplicateKey(err) {
			return storage.ErrDuplicateAlias
		}
		return fmt.Errorf("failed to insert alias: %w", err)
	}
	return nil
}

// GetAllAliases 获取所有别名，最新创建的在前
func (s *Store) GetAllAliases() ([]domain.Alias, error) {
	aliases := []domain.Alias{}
	if err := s.db.Order("created_at DESC").Find(&aliases).Error; err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	return aliases, nil
}

// GetAliasByEmail 根据完整地址获取别名
func (s *Store) GetAliasByEmail(email string) (*domain.Alias, error) {
	var alias domain.Alias
	if err := s.db.Where("email = ?", email).Take(&alias).Error; err != nil {
		return nil, notFound(err, storage.ErrAliasNotFound)
	}
	return &alias, nil
}

// GetAliasByID 根据ID获取别名
func (s *Store) GetAliasByID(id string) (*domain.Alias, error) {
	var alias domain.Alias
	if err := s.db.Where("id = ?", id).Take(&alias).Error; err != nil {
		return nil, notFound(err, storage.ErrAliasNotFound)
	}
	return &alias, nil
}

// DeleteAlias 删除别名及其邮件
func (s *Store) DeleteAlias(id string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("alias_id = ?", id).Delete(&domain.Email{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Alias{}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete alias: %w", err)
	}
	return nil
}

// ========== Email Repository ==========

// CreateEmail 保存一封新邮件，ID 与接收时间由存储层生成
func (s *Store) CreateEmail(input domain.NewEmail) (*domain.Email, error) {
	email := &domain.Email{
		ID:         uuid.NewString(),
		AliasID:    input.AliasID,
		From:       input.From,
		To:         input.To,
		Subject:    input.Subject,
		BodyText:   input.BodyText,
		BodyHTML:   input.BodyHTML,
		ReceivedAt: s.now(),
		Read:       false,
		Raw:        input.Raw,
	}

	if err := s.db.Create(email).Error; err != nil {
		if isForeignKeyViolation(err) {
			return nil, storage.ErrAliasNotFound
		}
		return nil, fmt.Errorf("failed to create email: %w", err)
	}
	return email, nil
}

// GetEmailsByAliasID 获取别名下的邮件，最新收到的在前
func (s *Store) GetEmailsByAliasID(aliasID string) ([]domain.Email, error) {
	emails := []domain.Email{}
	err := s.db.Where("alias_id = ?", aliasID).Order("received_at DESC").Find(&emails).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	return emails, nil
}

// GetEmailByID 根据ID获取邮件
func (s *Store) GetEmailByID(id string) (*domain.Email, error) {
	var email domain.Email
	if err := s.db.Where("id = ?", id).Take(&email).Error; err != nil {
		return nil, notFound(err, storage.ErrEmailNotFound)
	}
	return &email, nil
}

// MarkEmailAsRead 标记邮件为已读
func (s *Store) MarkEmailAsRead(id string) error {
	err := s.db.Model(&domain.Email{}).Where("id = ?", id).Update("is_read", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark email as read: %w", err)
	}
	return nil
}

// DeleteEmail 删除邮件
func (s *Store) DeleteEmail(id string) error {
	if err := s.db.Where("id = ?", id).Delete(&domain.Email{}).Error; err != nil {
		return fmt.Errorf("failed to delete email: %w", err)
	}
	return nil
}

// ========== Cleanup Repository ==========

// expiredAliases 构造"已过期临时别名"条件，永久别名和无过期时间的行永远不会命中
func expiredAliases(tx *gorm.DB, now time.Time) *gorm.DB {
	return tx.Model(&domain.Alias{}).
		Where("is_permanent = ? AND expires_at IS NOT NULL AND expires_at <= ?", false, now)
}

// DeleteExpiredAliases 删除已过期临时别名及其邮件，返回删除的别名数量
func (s *Store) DeleteExpiredAliases() (int64, error) {
	result, err := s.PurgeExpired()
	if err != nil {
		return 0, err
	}
	return result.DeletedAliases, nil
}

// DeleteExpiredEmails 删除归属于已过期临时别名的邮件
func (s *Store) DeleteExpiredEmails() (int64, error) {
	now := s.now()
	var deleted int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("alias_id IN (?)", expiredAliases(tx, now).Select("id")).Delete(&domain.Email{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired emails: %w", err)
	}
	return deleted, nil
}

// PurgeExpired 在一个事务内先删除过期别名的邮件，再删除别名本身
func (s *Store) PurgeExpired() (domain.PurgeResult, error) {
	now := s.now()
	var result domain.PurgeResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("alias_id IN (?)", expiredAliases(tx, now).Select("id")).Delete(&domain.Email{})
		if res.Error != nil {
			return res.Error
		}
		result.DeletedEmails = res.RowsAffected

		res = tx.Where("is_permanent = ? AND expires_at IS NOT NULL AND expires_at <= ?", false, now).
			Delete(&domain.Alias{})
		if res.Error != nil {
			return res.Error
		}
		result.DeletedAliases = res.RowsAffected
		return nil
	})
	if err != nil {
		return domain.PurgeResult{}, fmt.Errorf("failed to purge expired aliases: %w", err)
	}
	return result, nil
}

// notFound 将 GORM 的未找到错误转换为存储层错误
func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
