package relay

import (
	"context"
	"fmt"

	gomail "github.com/emersion/go-message/mail"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"tempalias/backend/internal/config"
)

const sendGridHost = "https://api.sendgrid.com"

// SendGridSender 通过 SendGrid Web API 发送
type SendGridSender struct {
	client *sendgrid.Client
	from   *gomail.Address
}

// NewSendGridSender 创建 SendGrid 外发驱动
func NewSendGridSender(cfg config.RelayConfig) *SendGridSender {
	return newSendGridSender(cfg, sendGridHost)
}

func newSendGridSender(cfg config.RelayConfig, host string) *SendGridSender {
	request := sendgrid.GetRequest(cfg.SendGridAPIKey, "/v3/mail/send", host)
	request.Method = "POST"
	return &SendGridSender{
		client: &sendgrid.Client{Request: request},
		from:   defaultFrom(cfg),
	}
}

// Name 驱动名称
func (s *SendGridSender) Name() string {
	return DriverSendGrid
}

// Send 发送邮件，返回 SendGrid 分配的消息 ID
func (s *SendGridSender) Send(ctx context.Context, msg Message) (string, error) {
	from, err := resolveFrom(msg.From, s.from)
	if err != nil {
		return "", err
	}
	to, err := gomail.ParseAddress(msg.To)
	if err != nil {
		return "", fmt.Errorf("%w: to: %v", ErrInvalidMessage, err)
	}

	message := sgmail.NewV3Mail()
	message.SetFrom(sgmail.NewEmail(from.Name, from.Address))
	message.Subject = msg.Subject

	personalization := sgmail.NewPersonalization()
	personalization.AddTos(sgmail.NewEmail(to.Name, to.Address))
	message.AddPersonalizations(personalization)

	// SendGrid 要求 text/plain 在 text/html 之前
	if msg.Text != "" || msg.HTML == "" {
		message.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		message.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return "", fmt.Errorf("failed to send email via SendGrid: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", fmt.Errorf("SendGrid API error (status %d): %s", response.StatusCode, response.Body)
	}

	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 && ids[0] != "" {
		return ids[0], nil
	}
	return "", nil
}
