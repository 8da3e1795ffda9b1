package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempalias/backend/internal/domain"
	"tempalias/backend/internal/events"
	"tempalias/backend/internal/storage"
)

type aliasMap map[string]*domain.Alias

func (m aliasMap) GetAliasByID(id string) (*domain.Alias, error) {
	if a, ok := m[id]; ok {
		return a, nil
	}
	return nil, storage.ErrAliasNotFound
}

func newTestServer(t *testing.T, origins []string) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(origins, aliasMap{
		"alias-1": {ID: "alias-1", Email: "box@example.com"},
		"alias-2": {ID: "alias-2", Email: "other@example.com"},
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/api/ws", HandleWebSocket(hub))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type != MessageTypePing {
			return msg
		}
	}
}

func waitSubscribers(t *testing.T, hub *Hub, aliasID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.SubscriberCount(aliasID) == n },
		2*time.Second, 10*time.Millisecond)
}

func TestHub_Subscribe(t *testing.T) {
	hub, url := newTestServer(t, nil)

	t.Run("通过查询参数订阅并收到新邮件", func(t *testing.T) {
		conn := dial(t, url+"?aliasId=alias-1")
		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeSubscribed, msg.Type)
		assert.Equal(t, "alias-1", msg.AliasID)

		err := hub.Deliver(context.Background(), events.Event{
			Type:    events.TypeEmailReceived,
			EmailID: "email-1",
			AliasID: "alias-1",
			Subject: "hi",
		})
		require.NoError(t, err)

		msg = readMessage(t, conn)
		assert.Equal(t, MessageTypeNewMail, msg.Type)
		var event events.Event
		require.NoError(t, json.Unmarshal(msg.Data, &event))
		assert.Equal(t, "email-1", event.EmailID)
		assert.Equal(t, "hi", event.Subject)
	})

	t.Run("通过消息订阅与取消订阅", func(t *testing.T) {
		conn := dial(t, url)
		require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeSubscribe, AliasID: "alias-2"}))
		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeSubscribed, msg.Type)
		waitSubscribers(t, hub, "alias-2", 1)

		require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeUnsubscribe, AliasID: "alias-2"}))
		waitSubscribers(t, hub, "alias-2", 0)
	})

	t.Run("订阅不存在的别名", func(t *testing.T) {
		conn := dial(t, url)
		require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeSubscribe, AliasID: "missing"}))
		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeError, msg.Type)
		assert.Equal(t, "alias not found", msg.Error)
		assert.Zero(t, hub.SubscriberCount("missing"))
	})

	t.Run("只推送给订阅者", func(t *testing.T) {
		subscriber := dial(t, url+"?aliasId=alias-2")
		assert.Equal(t, MessageTypeSubscribed, readMessage(t, subscriber).Type)
		bystander := dial(t, url+"?aliasId=alias-1")
		assert.Equal(t, MessageTypeSubscribed, readMessage(t, bystander).Type)

		require.NoError(t, hub.Deliver(context.Background(), events.Event{AliasID: "alias-2", EmailID: "e2"}))
		assert.Equal(t, MessageTypeNewMail, readMessage(t, subscriber).Type)

		require.NoError(t, bystander.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
		var msg Message
		err := bystander.ReadJSON(&msg)
		if err == nil {
			assert.Equal(t, MessageTypePing, msg.Type)
		}
	})

	t.Run("断开后移除订阅", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(url+"?aliasId=alias-1", nil)
		require.NoError(t, err)
		assert.Equal(t, MessageTypeSubscribed, readMessage(t, conn).Type)
		before := hub.SubscriberCount("alias-1")

		require.NoError(t, conn.Close())
		waitSubscribers(t, hub, "alias-1", before-1)
	})
}

func TestHub_Origin(t *testing.T) {
	_, url := newTestServer(t, []string{"https://app.example.com"})

	t.Run("允许的来源", func(t *testing.T) {
		header := http.Header{"Origin": {"https://app.example.com"}}
		conn, _, err := websocket.DefaultDialer.Dial(url, header)
		require.NoError(t, err)
		_ = conn.Close()
	})

	t.Run("拒绝未知来源", func(t *testing.T) {
		header := http.Header{"Origin": {"https://evil.example.org"}}
		_, resp, err := websocket.DefaultDialer.Dial(url, header)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestHub_DeliverWhenBusy(t *testing.T) {
	hub := NewHub(nil, aliasMap{}, zap.NewNop())
	// 未启动 Run，广播队列很快被占满
	var err error
	for i := 0; i < 300 && err == nil; i++ {
		err = hub.Deliver(context.Background(), events.Event{AliasID: "a"})
	}
	assert.ErrorIs(t, err, ErrHubBusy)
}
