package inbound

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"

	"go.uber.org/zap"

	"tempalias/backend/internal/domain"
	"tempalias/backend/internal/monitoring"
	"tempalias/backend/internal/storage"
)

// AliasLookup 按完整地址查找别名
type AliasLookup interface {
	GetAliasByEmail(email string) (*domain.Alias, error)
}

// EmailWriter 保存邮件
type EmailWriter interface {
	CreateEmail(input domain.NewEmail) (*domain.Email, error)
}

// Notifier 接收新邮件通知，实现必须立即返回
type Notifier interface {
	NotifyNewMail(alias *domain.Alias, email *domain.Email)
}

// Result 成功入库的结果
type Result struct {
	Alias *domain.Alias
	Email *domain.Email
}

// Service 将入站 Webhook 的原始报文转换为已保存的邮件。
//
// 处理顺序：校验密钥 → 校验报文 → 解析 → 解析收件人 → 检查过期 → 保存。
// 任一步失败都返回 *Rejection，不做内部重试。
type Service struct {
	secret    string
	matcher   *RecipientMatcher
	aliases   AliasLookup
	emails    EmailWriter
	notifiers []Notifier
	metrics   *monitoring.Metrics
	log       *zap.Logger
	now       func() time.Time
}

// Option 入站服务选项
type Option func(*Service)

// WithNotifier 添加新邮件通知接收者
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifiers = append(s.notifiers, n)
		}
	}
}

// WithMetrics 设置监控指标
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock 替换时钟，测试使用
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService 创建入站服务
func NewService(secret, mailDomain string, aliases AliasLookup, emails EmailWriter, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		secret:  secret,
		matcher: NewRecipientMatcher(mailDomain),
		aliases: aliases,
		emails:  emails,
		log:     log,
		now:     time.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest 处理一次入站请求
func (s *Service) Ingest(secret string, raw []byte) (*Result, error) {
	start := time.Now()
	result, rej := s.ingest(secret, raw)
	if rej != nil {
		s.metrics.RecordInbound(string(rej.Stage), rej.Code(), time.Since(start))
		s.logRejection(rej)
		return nil, rej
	}
	s.metrics.RecordInbound(string(StageStored), "ok", time.Since(start))

	for _, n := range s.notifiers {
		n.NotifyNewMail(result.Alias, result.Email)
	}
	return result, nil
}

func (s *Service) ingest(secret string, raw []byte) (*Result, *Rejection) {
	// received → auth_checked
	if s.secret == "" {
		return nil, reject(StageAuthChecked, ErrMissingSecret)
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.secret)) != 1 {
		return nil, reject(StageAuthChecked, ErrUnauthorized)
	}

	// auth_checked → parsed
	if len(raw) == 0 {
		return nil, reject(StageParsed, ErrInvalidPayload)
	}
	parsed, err := Parse(raw)
	if err != nil {
		return nil, reject(StageParsed, err)
	}

	// parsed → recipient_resolved
	recipient, ok := s.matcher.Match(parsed.To)
	if !ok {
		return nil, reject(StageRecipientResolved, ErrInvalidRecipient)
	}
	alias, err := s.aliases.GetAliasByEmail(recipient)
	if err != nil {
		if errors.Is(err, storage.ErrAliasNotFound) {
			return nil, reject(StageRecipientResolved, &recipientError{recipient: recipient, err: ErrAliasNotFound})
		}
		return nil, reject(StageRecipientResolved, errors.Join(ErrStorage, err))
	}

	// recipient_resolved → expiry_checked
	if alias.IsExpired(s.now()) {
		return nil, reject(StageExpiryChecked, &recipientError{recipient: recipient, err: ErrAliasExpired})
	}

	// expiry_checked → stored
	email, err := s.emails.CreateEmail(domain.NewEmail{
		AliasID:  alias.ID,
		From:     parsed.From,
		To:       parsed.To,
		Subject:  parsed.Subject,
		BodyText: parsed.BodyText,
		BodyHTML: parsed.BodyHTML,
		Raw:      base64.StdEncoding.EncodeToString(raw),
	})
	if err != nil {
		if errors.Is(err, storage.ErrAliasNotFound) {
			// 别名在检查后被清理
			return nil, reject(StageStored, &recipientError{recipient: recipient, err: ErrAliasNotFound})
		}
		return nil, reject(StageStored, errors.Join(ErrStorage, err))
	}

	return &Result{Alias: alias, Email: email}, nil
}

func (s *Service) logRejection(rej *Rejection) {
	fields := []zap.Field{
		zap.String("stage", string(rej.Stage)),
		zap.String("reason", rej.Code()),
	}
	var re *recipientError
	if errors.As(rej.Reason, &re) {
		fields = append(fields, zap.String("recipient", re.recipient))
	}

	switch {
	case errors.Is(rej, ErrStorage):
		s.log.Error("failed to process inbound email", append(fields, zap.Error(rej.Reason))...)
	case errors.Is(rej, ErrMissingSecret):
		s.log.Error("inbound secret not configured", fields...)
	default:
		s.log.Warn("inbound email rejected", fields...)
	}
}

// recipientError 附带收件人地址的拒绝原因
type recipientError struct {
	recipient string
	err       error
}

func (e *recipientError) Error() string {
	return e.err.Error() + ": " + e.recipient
}

func (e *recipientError) Unwrap() error {
	return e.err
}
