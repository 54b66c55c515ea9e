package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qs3c/careerlane_server/config"
	"github.com/qs3c/careerlane_server/internal/model/dto"
	"github.com/qs3c/careerlane_server/internal/pkg/jwt"
	"github.com/qs3c/careerlane_server/internal/pkg/response"
	"github.com/qs3c/careerlane_server/internal/pkg/ws"
	"github.com/qs3c/careerlane_server/internal/service"
)

// 心跳文本帧
const (
	pingText = "__ping__"
	pongText = "__pong__"
)

// maxFrameBytes 单条入站消息上限，略大于 4000 字符的 UTF-8 编码
const maxFrameBytes = 16 << 10

const (
	queuedNotice      = "An advisor will respond shortly."
	unavailableNotice = "The assistant is unavailable right now. Your message has been saved, please try again shortly."
	genericError      = "Something went wrong, please try again."
)

var upgrader = websocket.Upgrader{
	// 浏览器来源由 CORS 配置和 token 共同约束
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type WebSocketHandler struct {
	hub          *ws.Hub
	chatService  *service.ChatService
	jwtSecret    string
	readTimeout  time.Duration
	pingInterval time.Duration
	log          *zap.Logger
}

func NewWebSocketHandler(hub *ws.Hub, chatService *service.ChatService, jwtSecret string, cfg config.ChatConfig, log *zap.Logger) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:          hub,
		chatService:  chatService,
		jwtSecret:    jwtSecret,
		readTimeout:  cfg.ReadTimeout,
		pingInterval: cfg.PingInterval,
		log:          log.Named("ws_handler"),
	}
	if h.readTimeout <= 0 {
		h.readTimeout = 90 * time.Second
	}
	if h.pingInterval <= 0 || h.pingInterval >= h.readTimeout {
		h.pingInterval = h.readTimeout / 3
	}
	return h
}

// Handle 会话的 WebSocket 连接
// GET /api/v1/chat/sessions/:id/ws?token=xxx
func (h *WebSocketHandler) Handle(c *gin.Context) {
	// 升级之前验证 token
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, response.Response{Code: response.CodeAuthFailed, Message: "missing token"})
		return
	}

	claims, err := jwt.ParseToken(token, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, response.Response{Code: response.CodeAuthFailed, Message: "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	ctx := c.Request.Context()
	sessionID := c.Param("id")
	client := &ws.Client{SessionID: sessionID, UserID: claims.UserID, Conn: conn}

	if _, err := h.chatService.Authorize(ctx, sessionID, claims.UserID); err != nil {
		code, reason := closeCode(err)
		if code == websocket.CloseInternalServerErr {
			h.log.Error("authorize session failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		client.Close(code, reason)
		return
	}

	h.hub.Register(client)
	defer func() {
		if h.hub.Unregister(client) {
			client.Close(websocket.CloseNormalClosure, "")
		}
	}()

	if err := h.replay(ctx, client); err != nil {
		h.log.Warn("history replay failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	stop := make(chan struct{})
	defer close(stop)
	go h.keepAlive(client, stop)

	h.readLoop(ctx, client)
}

// replay 重连时回放最近消息；空会话改为发送欢迎语
func (h *WebSocketHandler) replay(ctx context.Context, client *ws.Client) error {
	history, err := h.chatService.RecentHistory(ctx, client.SessionID, 0)
	if err != nil {
		return err
	}

	if len(history.Messages) == 0 {
		return client.Send(&ws.Message{
			Type: ws.FrameAIReply,
			Data: &dto.MessageItem{
				Role:      "assistant",
				Content:   h.chatService.Greeting(),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			},
		})
	}
	return client.Send(&ws.Message{Type: ws.FrameHistoryReplay, Data: history})
}

func (h *WebSocketHandler) readLoop(ctx context.Context, client *ws.Client) {
	conn := client.Conn
	conn.SetReadLimit(maxFrameBytes)
	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("connection closed", zap.String("session_id", client.SessionID), zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		if msgType != websocket.TextMessage {
			continue
		}
		text := string(data)
		if text == pingText {
			if err := client.WriteText([]byte(pongText)); err != nil {
				return
			}
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		if !h.handleText(ctx, client, text) {
			return
		}
	}
}

// handleText 返回 false 表示连接应当结束
func (h *WebSocketHandler) handleText(ctx context.Context, client *ws.Client, text string) bool {
	reply, err := h.chatService.HandleMessage(ctx, client.SessionID, client.UserID, text)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionClosed), errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrSessionForbidden):
			code, reason := closeCode(err)
			h.hub.CloseSession(client.SessionID, code, reason)
			return false
		case errors.Is(err, service.ErrEmptyMessage), errors.Is(err, service.ErrMessageTooLong):
			return client.Send(&ws.Message{Type: ws.FrameError, Data: gin.H{"message": err.Error()}}) == nil
		default:
			h.log.Error("handle message failed", zap.String("session_id", client.SessionID), zap.Error(err))
			return client.Send(&ws.Message{Type: ws.FrameError, Data: gin.H{"message": genericError}}) == nil
		}
	}

	var frame *ws.Message
	switch reply.Kind {
	case service.ReplyAI:
		frame = &ws.Message{Type: ws.FrameAIReply, Data: reply.Message}
	case service.ReplyQueued:
		frame = &ws.Message{Type: ws.FrameQueued, Data: gin.H{"content": queuedNotice}}
	default:
		frame = &ws.Message{Type: ws.FrameAIUnavailable, Data: gin.H{"content": unavailableNotice}}
	}
	return client.Send(frame) == nil
}

// keepAlive 定期发送 ping，写失败说明连接已断
func (h *WebSocketHandler) keepAlive(client *ws.Client, stop <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := client.Ping(); err != nil {
				return
			}
		}
	}
}

// closeCode 会话错误对应的关闭码
func closeCode(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return ws.CloseSessionNotFound, "Session not found"
	case errors.Is(err, service.ErrSessionClosed):
		return ws.CloseSessionClosed, "Session is closed"
	case errors.Is(err, service.ErrSessionForbidden):
		return ws.CloseForbidden, "Forbidden"
	default:
		return websocket.CloseInternalServerErr, "Internal error"
	}
}
