package relay

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"tempalias/backend/internal/config"
)

// SMTPSender 通过 SMTP 中继发送，服务器支持时自动 STARTTLS
type SMTPSender struct {
	addr      string
	tlsConfig *tls.Config
	user      string
	pass      string
	from      *mail.Address
	now       func() time.Time
}

// NewSMTPSender 创建 SMTP 外发驱动
func NewSMTPSender(cfg config.RelayConfig) *SMTPSender {
	return &SMTPSender{
		addr:      net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort)),
		tlsConfig: &tls.Config{ServerName: cfg.SMTPHost, MinVersion: tls.VersionTLS12},
		user:      cfg.SMTPUser,
		pass:      cfg.SMTPPass,
		from:      defaultFrom(cfg),
		now:       time.Now,
	}
}

// Name 驱动名称
func (s *SMTPSender) Name() string {
	return DriverSMTP
}

// Send 发送邮件
func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	from, err := resolveFrom(msg.From, s.from)
	if err != nil {
		return "", err
	}
	raw, messageID, err := buildMIME(from, msg, s.now())
	if err != nil {
		return "", err
	}

	var auth sasl.Client
	if s.user != "" {
		auth = sasl.NewPlainClient("", s.user, s.pass)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return "", fmt.Errorf("%w: to: %v", ErrInvalidMessage, err)
	}

	client, err := gosmtp.Dial(s.addr)
	if err != nil {
		return "", fmt.Errorf("smtp dial: %w", err)
	}
	defer client.Close()

	// 会话不接受 context，取消时关闭连接让阻塞的调用返回
	done := make(chan error, 1)
	go func() {
		done <- s.deliver(client, auth, from.Address, to.Address, raw)
	}()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("smtp send: %w", err)
		}
		return messageID, nil
	case <-ctx.Done():
		_ = client.Close()
		return "", ctx.Err()
	}
}

// deliver 服务器声明 STARTTLS 时先升级连接，再认证并投递
func (s *SMTPSender) deliver(client *gosmtp.Client, auth sasl.Client, from, to string, raw []byte) error {
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(s.tlsConfig.Clone()); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := client.SendMail(from, []string{to}, bytes.NewReader(raw)); err != nil {
		return err
	}
	return client.Quit()
}
