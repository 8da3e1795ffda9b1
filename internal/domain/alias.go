package domain

import "time"

// Alias 表示一个可接收邮件的别名地址。
//
// 临时别名必须带有 ExpiresAt；永久别名的 ExpiresAt 恒为 nil。
type Alias struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email       string     `json:"email" gorm:"column:email;uniqueIndex"`
	Prefix      string     `json:"prefix" gorm:"column:prefix"`
	CreatedAt   time.Time  `json:"createdAt" gorm:"column:created_at"`
	ExpiresAt   *time.Time `json:"expiresAt" gorm:"column:expires_at"`
	IsPermanent bool       `json:"isPermanent" gorm:"column:is_permanent"`
}

// TableName 固定表名
func (Alias) TableName() string {
	return "aliases"
}

// IsExpired 判断临时别名在给定时间点是否已过期，永久别名永不过期
func (a *Alias) IsExpired(now time.Time) bool {
	if a.IsPermanent || a.ExpiresAt == nil {
		return false
	}
	return !now.Before(*a.ExpiresAt)
}

// RemainingTTL 返回距离过期的剩余时间；永久别名返回 ok=false
func (a *Alias) RemainingTTL(now time.Time) (ttl time.Duration, ok bool) {
	if a.IsPermanent || a.ExpiresAt == nil {
		return 0, false
	}
	return a.ExpiresAt.Sub(now), true
}

// PurgeResult 一次过期清理删除的记录数量
type PurgeResult struct {
	DeletedAliases int64 `json:"deletedAliases"`
	DeletedEmails  int64 `json:"deletedEmails"`
}
