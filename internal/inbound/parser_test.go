package inbound

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempalias/backend/internal/domain"
)

// crlf 将测试报文中的换行统一为 CRLF
func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n"))
}

const plainMessage = `
From: "Alice Smith" <alice@remote.org>
To: box@example.com
Subject: Hello there
Content-Type: text/plain; charset=utf-8

Just a plain body.
`

const alternativeMessage = `
From: bob@remote.org
To: Someone <box@example.com>, other@else.net
Subject: =?UTF-8?B?5L2g5aW9?=
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=utf-8

plain version
--inner
Content-Type: text/html; charset=utf-8

<p>html version</p>
--inner--
--outer
Content-Type: application/pdf
Content-Disposition: attachment; filename="a.pdf"
Content-Transfer-Encoding: base64

JVBERi0=
--outer--
`

func TestParse(t *testing.T) {
	t.Run("纯文本邮件", func(t *testing.T) {
		msg, err := Parse(crlf(plainMessage))
		require.NoError(t, err)

		assert.Equal(t, "Alice Smith <alice@remote.org>", msg.From)
		assert.Equal(t, "box@example.com", msg.To)
		assert.Equal(t, "Hello there", msg.Subject)
		require.NotNil(t, msg.BodyText)
		assert.Equal(t, "Just a plain body.", strings.TrimSpace(*msg.BodyText))
		assert.Nil(t, msg.BodyHTML)
	})

	t.Run("嵌套multipart与附件", func(t *testing.T) {
		msg, err := Parse(crlf(alternativeMessage))
		require.NoError(t, err)

		assert.Equal(t, "bob@remote.org", msg.From)
		assert.Contains(t, msg.To, "box@example.com")
		assert.Equal(t, "你好", msg.Subject)
		require.NotNil(t, msg.BodyText)
		assert.Equal(t, "plain version", strings.TrimSpace(*msg.BodyText))
		require.NotNil(t, msg.BodyHTML)
		assert.Equal(t, "<p>html version</p>", strings.TrimSpace(*msg.BodyHTML))
	})

	t.Run("缺少发件人和主题时使用默认值", func(t *testing.T) {
		msg, err := Parse(crlf("To: box@example.com\n\nbody\n"))
		require.NoError(t, err)
		assert.Equal(t, domain.UnknownSender, msg.From)
		assert.Equal(t, domain.DefaultSubject, msg.Subject)
	})

	t.Run("只有HTML正文", func(t *testing.T) {
		raw := "To: box@example.com\nContent-Type: text/html\n\n<b>hi</b>\n"
		msg, err := Parse(crlf(raw))
		require.NoError(t, err)
		assert.Nil(t, msg.BodyText)
		require.NotNil(t, msg.BodyHTML)
		assert.Contains(t, *msg.BodyHTML, "<b>hi</b>")
	})

	t.Run("空正文与缺失正文不同", func(t *testing.T) {
		msg, err := Parse(crlf("To: box@example.com\nContent-Type: text/plain\n\n"))
		require.NoError(t, err)
		require.NotNil(t, msg.BodyText)
		assert.Empty(t, *msg.BodyText)
		assert.Nil(t, msg.BodyHTML)
	})

	t.Run("Latin-1 字符集", func(t *testing.T) {
		raw := []byte("To: box@example.com\r\nContent-Type: text/plain; charset=iso-8859-1\r\n\r\ncaf\xe9\r\n")
		msg, err := Parse(raw)
		require.NoError(t, err)
		require.NotNil(t, msg.BodyText)
		assert.Equal(t, "café", strings.TrimSpace(*msg.BodyText))
	})

	t.Run("无法解析的头部", func(t *testing.T) {
		_, err := Parse([]byte("this is not a mime message at all\r\n"))
		assert.ErrorIs(t, err, ErrMalformedMessage)
	})
}

func TestRecipientMatcher(t *testing.T) {
	m := NewRecipientMatcher("Example.com")

	tests := []struct {
		name   string
		to     string
		want   string
		wantOK bool
	}{
		{"裸地址", "box@example.com", "box@example.com", true},
		{"带显示名", "Box <box.1_a-b@example.com>", "box.1_a-b@example.com", true},
		{"域名大小写", "box@EXAMPLE.COM", "box@example.com", true},
		{"取第一个匹配", "x@other.org, first@example.com, second@example.com", "first@example.com", true},
		{"子域名不匹配", "box@example.com.evil.org", "", false},
		{"前缀域名不匹配", "box@notexample.com", "", false},
		{"其他域名", "box@other.org", "", false},
		{"空字符串", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Match(tt.to)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
