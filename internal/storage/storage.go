package storage

import (
	"errors"

	"tempalias/backend/internal/domain"
)

var (
	// ErrAliasNotFound 别名不存在
	ErrAliasNotFound = errors.New("alias not found")
	// ErrEmailNotFound 邮件不存在
	ErrEmailNotFound = errors.New("email not found")
	// ErrDuplicateAlias 别名地址已被占用
	ErrDuplicateAlias = errors.New("alias already exists")
)

// AliasRepository 定义别名数据存取操作。
type AliasRepository interface {
	// InsertAlias 在同一事务内检查地址冲突并写入，冲突时返回 ErrDuplicateAlias
	InsertAlias(alias *domain.Alias) error
	GetAllAliases() ([]domain.Alias, error) // 按创建时间倒序
	GetAliasByEmail(email string) (*domain.Alias, error)
	GetAliasByID(id string) (*domain.Alias, error)
	// DeleteAlias 删除别名及其全部邮件，别名不存在时不报错
	DeleteAlias(id string) error
}

// EmailRepository 定义邮件数据存取操作。
type EmailRepository interface {
	CreateEmail(input domain.NewEmail) (*domain.Email, error)
	GetEmailsByAliasID(aliasID string) ([]domain.Email, error) // 按接收时间倒序
	GetEmailByID(id string) (*domain.Email, error)
	MarkEmailAsRead(id string) error // 幂等，邮件不存在时不报错
	DeleteEmail(id string) error     // 邮件不存在时不报错
}

// CleanupRepository 定义过期数据清理操作。
type CleanupRepository interface {
	// DeleteExpiredAliases 先删邮件再删别名，永久别名永远不会被删除
	DeleteExpiredAliases() (int64, error)
	// DeleteExpiredEmails 删除归属于已过期临时别名的邮件
	DeleteExpiredEmails() (int64, error)
	// PurgeExpired 在一个事务内完成上述两步并返回各自的删除数量
	PurgeExpired() (domain.PurgeResult, error)
}

// Store 聚合所有存储接口
type Store interface {
	AliasRepository
	EmailRepository
	CleanupRepository
	Health() error
	Close() error
}
