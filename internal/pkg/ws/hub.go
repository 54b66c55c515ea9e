package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 自定义关闭码
const (
	CloseForbidden       = 4001
	CloseSessionClosed   = 4003
	CloseSessionNotFound = 4004
)

// 推送帧类型
const (
	FrameHistoryReplay      = "history_replay"
	FrameAIReply            = "ai_reply"
	FrameQueued             = "queued"
	FrameAIUnavailable      = "ai_unavailable"
	FrameAdminMessage       = "admin_message"
	FrameSystemNotification = "system_notification"
	FrameError              = "error"
)

const writeWait = 10 * time.Second

// Hub 以会话为键，每个会话最多一个活跃连接
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	log     *zap.Logger
}

type Client struct {
	SessionID string
	UserID    string
	Conn      *websocket.Conn
	mu        sync.Mutex // 写锁，防止并发写入
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		log:     log.Named("ws"),
	}
}

// Register 新连接顶替旧连接，旧连接被关闭
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	prev := h.clients[client.SessionID]
	h.clients[client.SessionID] = client
	total := len(h.clients)
	h.mu.Unlock()

	if prev != nil && prev != client {
		prev.Close(websocket.CloseNormalClosure, "Replaced by a new connection")
	}
	h.log.Info("session connected",
		zap.String("session_id", client.SessionID),
		zap.Bool("replaced", prev != nil && prev != client),
		zap.Int("total", total))
}

// Unregister 只移除同一个连接，已被顶替时返回 false
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.clients[client.SessionID]; !ok || cur != client {
		return false
	}
	delete(h.clients, client.SessionID)
	h.log.Info("session disconnected", zap.String("session_id", client.SessionID))
	return true
}

// Push 向会话推送消息，会话不在线时什么都不做
func (h *Hub) Push(sessionID string, msg *Message) error {
	h.mu.RLock()
	c, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	if err := c.Send(msg); err != nil {
		h.log.Warn("push failed", zap.String("session_id", sessionID), zap.Error(err))
		return err
	}
	return nil
}

// CloseSession 关闭会话的连接并移除
func (h *Hub) CloseSession(sessionID string, code int, reason string) {
	h.mu.Lock()
	c, ok := h.clients[sessionID]
	delete(h.clients, sessionID)
	h.mu.Unlock()

	if ok {
		c.Close(code, reason)
	}
}

// IsOnline 检查会话是否有连接
func (h *Hub) IsOnline(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionID]
	return ok
}

// ConnectionCount 获取在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send 序列化后写出一帧
func (c *Client) Send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.WriteText(data)
}

func (c *Client) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Conn == nil {
		return nil
	}
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Ping 心跳，与数据帧共用写锁
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Conn == nil {
		return nil
	}
	return c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close 发送关闭帧后断开
func (c *Client) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.Conn.Close()
}
