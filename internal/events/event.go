package events

import (
	"context"
	"time"

	"tempalias/backend/internal/domain"
)

// TypeEmailReceived 新邮件事件类型
const TypeEmailReceived = "email.received"

// Event 新邮件通知的载荷，不包含正文和原始报文
type Event struct {
	Type       string    `json:"type"`
	EmailID    string    `json:"emailId"`
	AliasID    string    `json:"aliasId"`
	AliasEmail string    `json:"aliasEmail"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// NewEmailReceived 由已保存的邮件构造事件
func NewEmailReceived(alias *domain.Alias, email *domain.Email) Event {
	return Event{
		Type:       TypeEmailReceived,
		EmailID:    email.ID,
		AliasID:    alias.ID,
		AliasEmail: alias.Email,
		From:       email.From,
		Subject:    email.Subject,
		ReceivedAt: email.ReceivedAt,
	}
}

// Sink 事件的投递目标
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// SinkFunc 函数形式的 Sink
type SinkFunc func(ctx context.Context, event Event) error

// Deliver 实现 Sink
func (f SinkFunc) Deliver(ctx context.Context, event Event) error {
	return f(ctx, event)
}
