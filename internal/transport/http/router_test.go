package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempalias/backend/internal/config"
	"tempalias/backend/internal/domain"
	"tempalias/backend/internal/health"
	"tempalias/backend/internal/inbound"
	"tempalias/backend/internal/middleware"
	"tempalias/backend/internal/monitoring"
	"tempalias/backend/internal/prefix"
	"tempalias/backend/internal/relay"
	"tempalias/backend/internal/service"
	"tempalias/backend/internal/storage/sqlstore"
	"tempalias/backend/internal/sweeper"
)

const testSecret = "hook-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSender struct {
	err  error
	sent []relay.Message
}

func (s *fakeSender) Send(_ context.Context, msg relay.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, msg)
	return "<msg-1@example.com>", nil
}

func (s *fakeSender) Name() string { return "fake" }

type fixture struct {
	router http.Handler
	store  *sqlstore.Store
	sender *fakeSender
	now    time.Time
}

func testConfig() *config.Config {
	return &config.Config{
		Mail:    config.MailConfig{Domain: "example.com"},
		Inbound: config.InboundConfig{Secret: testSecret},
		Alias: config.AliasConfig{
			DefaultTTLMinutes:  30,
			MaxTTLMinutes:      120,
			GenerationAttempts: 5,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
		RateLimit: config.RateLimitConfig{
			APIRequests:     1000,
			APIWindow:       time.Minute,
			InboundRequests: 1000,
			InboundWindow:   time.Minute,
		},
	}
}

func newFixture(t *testing.T, mutate ...func(*RouterDependencies)) *fixture {
	t.Helper()
	f := &fixture{
		sender: &fakeSender{},
		now:    time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	dsn := "file:" + filepath.Join(t.TempDir(), "api.db") + "?_pragma=foreign_keys(1)&_time_format=sqlite"
	store, err := sqlstore.NewStoreWithDialector(sqlite.Open(dsn), sqlstore.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	f.store = store

	cfg := testConfig()
	log := zap.NewNop()
	metrics := monitoring.NewMetrics()

	aliases := service.NewAliasService(store, prefix.New(prefix.WithSeed(7)), cfg, log)
	aliases.SetClock(clock)

	deps := RouterDependencies{
		Config:         cfg,
		AliasService:   aliases,
		EmailService:   service.NewEmailService(store, store),
		InboundService: inbound.NewService(cfg.Inbound.Secret, cfg.Mail.Domain, store, store, log, inbound.WithClock(clock)),
		Sweeper:        sweeper.New(store, time.Minute, metrics, log),
		Relay:          f.sender,
		Health:         health.NewHealthChecker(store, log),
		Metrics:        metrics,
		Logger:         log,
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	f.router = NewRouter(deps)
	return f
}

func (f *fixture) do(method, path string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "192.0.2.10:4000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createAlias(t *testing.T, body string) domain.Alias {
	t.Helper()
	rec := f.do(http.MethodPost, "/api/aliases", strings.NewReader(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var alias domain.Alias
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alias))
	return alias
}

func (f *fixture) deliver(to string) *httptest.ResponseRecorder {
	raw := "From: Sender <sender@remote.org>\r\nTo: " + to + "\r\nSubject: Welcome\r\n\r\nhello there\r\n"
	return f.do(http.MethodPost, "/api/inbound", strings.NewReader(raw), InboundSecretHeader, testSecret, "Content-Type", "text/plain")
}

func assertMessage(t *testing.T, rec *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	assert.Equal(t, status, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, msg, body["message"])
}

func TestAliasRoutes(t *testing.T) {
	f := newFixture(t)

	t.Run("创建指定前缀的别名", func(t *testing.T) {
		alias := f.createAlias(t, `{"prefix":"hello","ttlMinutes":10}`)
		assert.Equal(t, "hello@example.com", alias.Email)
		require.NotNil(t, alias.ExpiresAt)
		assert.Equal(t, 10*time.Minute, alias.ExpiresAt.Sub(alias.CreatedAt))
	})

	t.Run("前缀重复返回409", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/aliases", strings.NewReader(`{"prefix":"hello"}`))
		assertMessage(t, rec, http.StatusConflict, MsgPrefixInUse)
	})

	t.Run("自动生成前缀并使用默认有效期", func(t *testing.T) {
		alias := f.createAlias(t, `{}`)
		assert.NotEmpty(t, alias.Prefix)
		require.NotNil(t, alias.ExpiresAt)
		assert.Equal(t, 30*time.Minute, alias.ExpiresAt.Sub(alias.CreatedAt))
	})

	t.Run("永久别名", func(t *testing.T) {
		alias := f.createAlias(t, `{"prefix":"keeper","isPermanent":true}`)
		assert.True(t, alias.IsPermanent)
		assert.Nil(t, alias.ExpiresAt)
	})

	t.Run("非法请求", func(t *testing.T) {
		for _, body := range []string{
			`{"ttlMinutes":0}`,
			`{"ttlMinutes":121}`,
			`{"prefix":""}`,
			`{"prefix":"` + strings.Repeat("a", 51) + `"}`,
			`{"prefix":"bad prefix!"}`,
			`not json`,
		} {
			rec := f.do(http.MethodPost, "/api/aliases", strings.NewReader(body))
			assertMessage(t, rec, http.StatusBadRequest, MsgInvalidRequest)
		}
	})

	t.Run("列出全部别名", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/aliases", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var aliases []domain.Alias
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &aliases))
		assert.Len(t, aliases, 3)
	})

	t.Run("获取与删除单个别名", func(t *testing.T) {
		alias := f.createAlias(t, `{"prefix":"gone"}`)

		rec := f.do(http.MethodGet, "/api/aliases/"+alias.ID, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(http.MethodDelete, "/api/aliases/"+alias.ID, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(http.MethodGet, "/api/aliases/"+alias.ID, nil)
		assertMessage(t, rec, http.StatusNotFound, MsgAliasNotFound)

		rec = f.do(http.MethodDelete, "/api/aliases/"+alias.ID, nil)
		assertMessage(t, rec, http.StatusNotFound, MsgAliasNotFound)
	})
}

func TestInboundAndEmailRoutes(t *testing.T) {
	f := newFixture(t)
	alias := f.createAlias(t, `{"prefix":"inbox","ttlMinutes":5}`)

	var emailID string
	t.Run("接收邮件", func(t *testing.T) {
		rec := f.deliver("inbox@example.com")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var body struct {
			Message string `json:"message"`
			EmailID string `json:"emailId"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, MsgEmailReceived, body.Message)
		assert.NotEmpty(t, body.EmailID)
		emailID = body.EmailID
	})

	t.Run("入站拒绝原因", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/inbound", strings.NewReader("x"), InboundSecretHeader, "wrong")
		assertMessage(t, rec, http.StatusUnauthorized, MsgUnauthorized)

		rec = f.do(http.MethodPost, "/api/inbound", bytes.NewReader(nil), InboundSecretHeader, testSecret)
		assertMessage(t, rec, http.StatusBadRequest, MsgInvalidEmailData)

		rec = f.deliver("someone@elsewhere.org")
		assertMessage(t, rec, http.StatusBadRequest, MsgInvalidRecipient)

		rec = f.deliver("missing@example.com")
		assertMessage(t, rec, http.StatusNotFound, MsgAliasNotFound)
	})

	t.Run("列出别名下的邮件", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/aliases/"+alias.ID+"/emails", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var emails []domain.Email
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &emails))
		require.Len(t, emails, 1)
		assert.Equal(t, "Welcome", emails[0].Subject)

		rec = f.do(http.MethodGet, "/api/aliases/unknown/emails", nil)
		assertMessage(t, rec, http.StatusNotFound, MsgAliasNotFound)
	})

	t.Run("读取并标记已读", func(t *testing.T) {
		rec := f.do(http.MethodPatch, "/api/emails/"+emailID+"/read", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(http.MethodGet, "/api/emails/"+emailID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var email domain.Email
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &email))
		assert.True(t, email.Read)
		require.NotNil(t, email.BodyText)
		assert.Contains(t, *email.BodyText, "hello there")
	})

	t.Run("删除邮件", func(t *testing.T) {
		rec := f.do(http.MethodDelete, "/api/emails/"+emailID, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(http.MethodGet, "/api/emails/"+emailID, nil)
		assertMessage(t, rec, http.StatusNotFound, MsgEmailNotFound)
		rec = f.do(http.MethodPatch, "/api/emails/"+emailID+"/read", nil)
		assertMessage(t, rec, http.StatusNotFound, MsgEmailNotFound)
		rec = f.do(http.MethodDelete, "/api/emails/"+emailID, nil)
		assertMessage(t, rec, http.StatusNotFound, MsgEmailNotFound)
	})

	t.Run("过期别名返回410", func(t *testing.T) {
		f.now = f.now.Add(5 * time.Minute)
		rec := f.deliver("inbox@example.com")
		assertMessage(t, rec, http.StatusGone, MsgAliasExpired)
	})

	t.Run("手动清理", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/cleanup", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Message        string `json:"message"`
			DeletedAliases int64  `json:"deletedAliases"`
			DeletedEmails  int64  `json:"deletedEmails"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, MsgCleanupCompleted, body.Message)
		assert.Equal(t, int64(1), body.DeletedAliases)

		rec = f.do(http.MethodGet, "/api/aliases/"+alias.ID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestInboundWithoutSecret(t *testing.T) {
	f := newFixture(t, func(d *RouterDependencies) {
		d.InboundService = inbound.NewService("", "example.com", nil, nil, zap.NewNop())
	})
	rec := f.deliver("inbox@example.com")
	assertMessage(t, rec, http.StatusInternalServerError, MsgConfigError)
}

func TestSendRoute(t *testing.T) {
	f := newFixture(t)

	t.Run("发送成功", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/send", strings.NewReader(`{"to":"user@remote.org","subject":"Hi","text":"body"}`))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"Email sent successfully","messageId":"<msg-1@example.com>"}`, rec.Body.String())
		require.Len(t, f.sender.sent, 1)
		assert.Equal(t, "user@remote.org", f.sender.sent[0].To)
	})

	t.Run("请求校验", func(t *testing.T) {
		for _, body := range []string{
			`{"to":"not-an-email","subject":"Hi"}`,
			`{"to":"user@remote.org"}`,
			`{"to":"user@remote.org","subject":"Hi","from":"nope"}`,
		} {
			rec := f.do(http.MethodPost, "/api/send", strings.NewReader(body))
			assertMessage(t, rec, http.StatusBadRequest, MsgInvalidRequest)
		}
	})

	t.Run("未配置中继", func(t *testing.T) {
		f.sender.err = relay.ErrNotConfigured
		rec := f.do(http.MethodPost, "/api/send", strings.NewReader(`{"to":"user@remote.org","subject":"Hi"}`))
		assertMessage(t, rec, http.StatusInternalServerError, MsgConfigError)
	})

	t.Run("中继失败", func(t *testing.T) {
		f.sender.err = errors.New("connection reset")
		rec := f.do(http.MethodPost, "/api/send", strings.NewReader(`{"to":"user@remote.org","subject":"Hi"}`))
		assertMessage(t, rec, http.StatusInternalServerError, MsgEmailSendFailed)
		assert.Contains(t, rec.Body.String(), "connection reset")
	})
}

func TestRateLimitScopes(t *testing.T) {
	metrics := monitoring.NewMetrics()
	f := newFixture(t, func(d *RouterDependencies) {
		d.APILimiter = middleware.NewIPRateLimiter("api", 2, time.Minute, metrics)
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/aliases", nil).Code)
	}
	rec := f.do(http.MethodGet, "/api/aliases", nil)
	assertMessage(t, rec, http.StatusTooManyRequests, middleware.RateLimitMessage)

	t.Run("入站不受API限流影响", func(t *testing.T) {
		rec := f.deliver("missing@example.com")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("健康检查不限流", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health/live", nil).Code)
	})
}

func TestOperationalRoutes(t *testing.T) {
	f := newFixture(t)

	t.Run("健康汇总", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var report health.Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, "ok", report.Status)
		assert.Equal(t, "OK", report.Checks["database"])
	})

	t.Run("就绪检查", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health/ready", nil).Code)
	})

	t.Run("监控指标", func(t *testing.T) {
		f.do(http.MethodGet, "/api/aliases", nil)
		rec := f.do(http.MethodGet, "/metrics", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `endpoint="/api/aliases"`)
	})

	t.Run("安全响应头与CORS", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/aliases", nil, "Origin", "https://app.example.org")
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("未知路由", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/nothing", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
