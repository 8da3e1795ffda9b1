package inbound

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // 注册常见字符集
	"github.com/emersion/go-message/mail"

	"tempalias/backend/internal/domain"
)

// ParsedMessage 从原始报文中提取的字段
//
// BodyText / BodyHTML 为 nil 表示报文中没有对应的部分。
type ParsedMessage struct {
	From     string
	To       string
	Subject  string
	BodyText *string
	BodyHTML *string
}

// Parse 解析原始 MIME 报文
func Parse(raw []byte) (*ParsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	defer mr.Close()

	header := mr.Header
	parsed := &ParsedMessage{
		From:    parseFrom(header),
		To:      headerText(header, "To"),
		Subject: headerText(header, "Subject"),
	}
	if parsed.Subject == "" {
		parsed.Subject = domain.DefaultSubject
	}

	for parsed.BodyText == nil || parsed.BodyHTML == nil {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			// 结构损坏的后续部分直接忽略，保留已解析的内容
			break
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := inline.ContentType()
		if err != nil {
			continue
		}

		switch {
		case contentType == "text/plain" && parsed.BodyText == nil:
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
			}
			text := string(body)
			parsed.BodyText = &text
		case contentType == "text/html" && parsed.BodyHTML == nil:
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
			}
			html := string(body)
			parsed.BodyHTML = &html
		}
	}

	return parsed, nil
}

// parseFrom 取第一个发件人，格式为 "Name <addr>" 或 "addr"
func parseFrom(header mail.Header) string {
	if addrs, err := header.AddressList("From"); err == nil && len(addrs) > 0 {
		first := addrs[0]
		if first.Name != "" {
			return fmt.Sprintf("%s <%s>", first.Name, first.Address)
		}
		if first.Address != "" {
			return first.Address
		}
	}
	if from := headerText(header, "From"); from != "" {
		return from
	}
	return domain.UnknownSender
}

// headerText 解码 RFC 2047 编码的头部，解码失败时退回原始值
func headerText(header mail.Header, key string) string {
	text, err := header.Text(key)
	if err != nil {
		text = header.Get(key)
	}
	return strings.TrimSpace(text)
}

// RecipientMatcher 在收件人文本中查找别名域下的地址
type RecipientMatcher struct {
	domain  string
	pattern *regexp.Regexp
}

// NewRecipientMatcher 创建匹配指定域名的收件人解析器，域名不区分大小写
func NewRecipientMatcher(domainName string) *RecipientMatcher {
	domainName = strings.ToLower(domainName)
	return &RecipientMatcher{
		domain:  domainName,
		pattern: regexp.MustCompile(`([\w.-]+)@(?i:` + regexp.QuoteMeta(domainName) + `)(?:[^\w.-]|$)`),
	}
}

// Match 返回第一个匹配的地址，域名统一为小写
func (m *RecipientMatcher) Match(to string) (string, bool) {
	match := m.pattern.FindStringSubmatch(to)
	if match == nil {
		return "", false
	}
	return domain.AliasAddress(match[1], m.domain), true
}
