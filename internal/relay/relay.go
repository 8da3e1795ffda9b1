package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"tempalias/backend/internal/config"
	"tempalias/backend/internal/monitoring"
)

// 外发驱动
const (
	DriverSMTP     = "smtp"
	DriverSendGrid = "sendgrid"
	DriverNone     = "none"
)

var (
	// ErrNotConfigured 中继未配置凭据
	ErrNotConfigured = errors.New("mail relay not configured")
	// ErrInvalidMessage 邮件内容不合法
	ErrInvalidMessage = errors.New("invalid outbound message")
)

// Message 一封外发邮件
type Message struct {
	From    string // 为空时使用默认发件人
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender 外发邮件
type Sender interface {
	// Send 发送邮件并返回 Message-ID
	Send(ctx context.Context, msg Message) (string, error)
	Name() string
}

// New 按配置创建外发驱动，凭据缺失时返回的 Sender 每次发送都返回 ErrNotConfigured
func New(cfg config.RelayConfig, metrics *monitoring.Metrics, log *zap.Logger) Sender {
	if log == nil {
		log = zap.NewNop()
	}

	var s Sender
	switch cfg.Driver {
	case DriverSMTP:
		if cfg.SMTPHost != "" && cfg.SMTPPass != "" {
			s = NewSMTPSender(cfg)
		}
	case DriverSendGrid:
		if cfg.SendGridAPIKey != "" {
			s = NewSendGridSender(cfg)
		}
	}
	if s == nil {
		log.Warn("mail relay not configured, outbound sending disabled", zap.String("driver", cfg.Driver))
		s = unconfigured{driver: cfg.Driver}
	}
	return &instrumented{Sender: s, metrics: metrics, log: log}
}

type unconfigured struct{ driver string }

func (u unconfigured) Send(context.Context, Message) (string, error) {
	return "", ErrNotConfigured
}

func (u unconfigured) Name() string {
	if u.driver == "" {
		return DriverNone
	}
	return u.driver
}

// instrumented 记录外发指标与日志
type instrumented struct {
	Sender
	metrics *monitoring.Metrics
	log     *zap.Logger
}

func (i *instrumented) Send(ctx context.Context, msg Message) (string, error) {
	start := time.Now()
	id, err := i.Sender.Send(ctx, msg)
	i.metrics.RecordRelaySend(i.Name(), err)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			i.log.Error("failed to relay email",
				zap.String("driver", i.Name()),
				zap.String("to", msg.To),
				zap.Error(err))
		}
		return "", err
	}
	i.log.Info("email relayed",
		zap.String("driver", i.Name()),
		zap.String("to", msg.To),
		zap.String("message_id", id),
		zap.Duration("duration", time.Since(start)))
	return id, nil
}

// defaultFrom 返回 "名称 <地址>" 形式的默认发件人
func defaultFrom(cfg config.RelayConfig) *mail.Address {
	return &mail.Address{Name: cfg.FromName, Address: cfg.FromEmail}
}

// resolveFrom 解析发件人，为空时使用默认发件人
func resolveFrom(from string, fallback *mail.Address) (*mail.Address, error) {
	if from == "" {
		return fallback, nil
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("%w: from: %v", ErrInvalidMessage, err)
	}
	return addr, nil
}

// buildMIME 构造 RFC 5322 报文，返回报文和生成的 Message-ID
func buildMIME(from *mail.Address, msg Message, now time.Time) ([]byte, string, error) {
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return nil, "", fmt.Errorf("%w: to: %v", ErrInvalidMessage, err)
	}

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, "", fmt.Errorf("generate message id: %w", err)
	}
	messageID, err := h.MessageID()
	if err != nil {
		return nil, "", fmt.Errorf("read message id: %w", err)
	}

	var buf bytes.Buffer
	switch {
	case msg.Text != "" && msg.HTML != "":
		err = writeAlternative(&buf, h, msg)
	case msg.HTML != "":
		err = writeSingle(&buf, h, "text/html", msg.HTML)
	default:
		err = writeSingle(&buf, h, "text/plain", msg.Text)
	}
	if err != nil {
		return nil, "", fmt.Errorf("build message: %w", err)
	}
	return buf.Bytes(), messageID, nil
}

func writeSingle(w io.Writer, h mail.Header, contentType, body string) error {
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	bw, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(bw, body); err != nil {
		return err
	}
	return bw.Close()
}

func writeAlternative(w io.Writer, h mail.Header, msg Message) error {
	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return err
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return err
	}

	for _, part := range []struct{ contentType, body string }{
		{"text/plain", msg.Text},
		{"text/html", msg.HTML},
	} {
		var ph mail.InlineHeader
		ph.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		pw, err := iw.CreatePart(ph)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(pw, part.body); err != nil {
			return err
		}
		if err := pw.Close(); err != nil {
			return err
		}
	}

	if err := iw.Close(); err != nil {
		return err
	}
	return mw.Close()
}
