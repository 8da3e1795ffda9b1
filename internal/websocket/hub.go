package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tempalias/backend/internal/domain"
	"tempalias/backend/internal/events"
	"tempalias/backend/internal/storage"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 64
)

// ErrHubBusy 广播队列已满
var ErrHubBusy = errors.New("websocket hub busy")

// AliasLookup 订阅前校验别名是否存在
type AliasLookup interface {
	GetAliasByID(id string) (*domain.Alias, error)
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			// 非浏览器客户端不带 Origin
			return origin == "" || allowed[origin]
		},
	}
}

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeNewMail     MessageType = "new_mail"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeSubscribed  MessageType = "subscribed"
	MessageTypeError       MessageType = "error"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	AliasID   string          `json:"aliasId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	log  *zap.Logger

	// 仅由 Hub 在持有 hub.mu 时读写
	aliases map[string]bool
}

type broadcast struct {
	aliasID string
	payload []byte
}

// Hub 管理所有WebSocket连接，按别名 ID 分组推送新邮件
type Hub struct {
	clients   map[string]*Client
	aliases   map[string]map[string]*Client // aliasID -> clientID -> Client
	broadcast chan broadcast
	mu        sync.RWMutex
	closed    bool

	lookup         AliasLookup
	allowedOrigins []string
	log            *zap.Logger
}

// NewHub 创建WebSocket Hub
//
// 参数:
//   - allowedOrigins: 允许的 Origin 列表，为空时允许所有来源
//   - lookup: 订阅时校验别名是否存在
//   - log: 日志
func NewHub(allowedOrigins []string, lookup AliasLookup, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Hub{
		clients:        make(map[string]*Client),
		aliases:        make(map[string]map[string]*Client),
		broadcast:      make(chan broadcast, 256),
		lookup:         lookup,
		allowedOrigins: allowedOrigins,
		log:            log,
	}
}

// Run 启动Hub，直到 ctx 被取消
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			h.log.Info("websocket hub stopped")
			return

		case msg := <-h.broadcast:
			h.broadcastToAlias(msg.aliasID, msg.payload)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// Deliver 实现 events.Sink，把新邮件事件推送给订阅该别名的客户端
func (h *Hub) Deliver(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(&Message{
		Type:      MessageTypeNewMail,
		AliasID:   event.AliasID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- broadcast{aliasID: event.AliasID, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrHubBusy
	}
}

// SubscriberCount 返回订阅某个别名的客户端数量
func (h *Hub) SubscriberCount(aliasID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.aliases[aliasID])
}

// broadcastToAlias 向订阅特定别名的客户端广播消息
func (h *Hub) broadcastToAlias(aliasID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.aliases[aliasID] {
		select {
		case client.send <- payload:
		default:
			h.log.Warn("websocket client blocked, skipping", zap.String("client_id", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送应用层 ping
func (h *Hub) pingAllClients() {
	data, err := json.Marshal(&Message{Type: MessageTypePing, Timestamp: time.Now().UTC()})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// addClient 注册客户端，Hub 已停止时返回 false
func (h *Hub) addClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client.ID] = client
	h.log.Debug("websocket client registered", zap.String("client_id", client.ID))
	return true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	for aliasID := range client.aliases {
		h.detach(client, aliasID)
	}
	delete(h.clients, client.ID)
	close(client.send)
	h.log.Debug("websocket client unregistered", zap.String("client_id", client.ID))
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.aliases = make(map[string]map[string]*Client)
}

// subscribe 订阅别名，调用方不能持有 hub.mu
func (h *Hub) subscribe(client *Client, aliasID string) {
	if aliasID == "" {
		h.reply(client, &Message{Type: MessageTypeError, Error: "aliasId is required"})
		return
	}
	if _, err := h.lookup.GetAliasByID(aliasID); err != nil {
		msg := "alias not found"
		if !errors.Is(err, storage.ErrAliasNotFound) {
			h.log.Error("failed to look up alias for subscription", zap.String("alias_id", aliasID), zap.Error(err))
			msg = "internal error"
		}
		h.reply(client, &Message{Type: MessageTypeError, AliasID: aliasID, Error: msg})
		return
	}

	h.mu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		if h.aliases[aliasID] == nil {
			h.aliases[aliasID] = make(map[string]*Client)
		}
		h.aliases[aliasID][client.ID] = client
		client.aliases[aliasID] = true
	}
	h.mu.Unlock()

	h.reply(client, &Message{Type: MessageTypeSubscribed, AliasID: aliasID})
}

func (h *Hub) unsubscribe(client *Client, aliasID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detach(client, aliasID)
}

// detach 调用方必须持有 hub.mu 写锁
func (h *Hub) detach(client *Client, aliasID string) {
	delete(client.aliases, aliasID)
	if clients, ok := h.aliases[aliasID]; ok {
		delete(clients, client.ID)
		if len(clients) == 0 {
			delete(h.aliases, aliasID)
		}
	}
}

// reply 向单个客户端发送消息，客户端已注销时忽略
func (h *Hub) reply(client *Client, msg *Message) {
	msg.Timestamp = time.Now().UTC()
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal websocket message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	select {
	case client.send <- data:
	default:
		h.log.Warn("websocket client blocked", zap.String("client_id", client.ID))
	}
}

// HandleWebSocket 处理WebSocket连接
//
// 查询参数 aliasId 可在连接建立后立即订阅
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("failed to upgrade websocket connection",
				zap.Error(err),
				zap.String("origin", c.GetHeader("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client := &Client{
			ID:      uuid.NewString(),
			conn:    conn,
			send:    make(chan []byte, sendBufferSize),
			hub:     hub,
			log:     hub.log,
			aliases: make(map[string]bool),
		}
		if !hub.addClient(client) {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			_ = conn.Close()
			return
		}

		go client.writePump()
		if aliasID := c.Query("aliasId"); aliasID != "" {
			hub.subscribe(client, aliasID)
		}
		go client.readPump()
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		c.handleMessage(&msg)
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.hub.subscribe(c, msg.AliasID)
	case MessageTypeUnsubscribe:
		c.hub.unsubscribe(c, msg.AliasID)
	case MessageTypePong:
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	default:
		c.hub.reply(c, &Message{Type: MessageTypeError, Error: "unknown message type"})
	}
}
