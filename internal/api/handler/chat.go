package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/careerlane_server/internal/api/middleware"
	"github.com/qs3c/careerlane_server/internal/model/dto"
	"github.com/qs3c/careerlane_server/internal/pkg/response"
	"github.com/qs3c/careerlane_server/internal/service"
)

type ChatHandler struct {
	chatService *service.ChatService
	log         *zap.Logger
}

func NewChatHandler(chatService *service.ChatService, log *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		log:         log.Named("chat_handler"),
	}
}

// Create 创建会话，可选关联职位
// POST /api/v1/chat/sessions
func (h *ChatHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateSessionRequest
	// 允许空 body
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, err.Error())
			return
		}
	}

	session, err := h.chatService.CreateSession(c.Request.Context(), userID, req.JobID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, session)
}

// List 当前用户的会话
// GET /api/v1/chat/sessions
func (h *ChatHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	sessions, err := h.chatService.ListForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, sessions)
}

// History 最近的可见消息；已关闭的会话仍可查看
// GET /api/v1/chat/sessions/:id/history?count=10
func (h *ChatHandler) History(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	sessionID := c.Param("id")
	if _, err := h.chatService.Authorize(c.Request.Context(), sessionID, userID); err != nil && !errors.Is(err, service.ErrSessionClosed) {
		respondError(c, h.log, err)
		return
	}

	count, _ := strconv.Atoi(c.Query("count"))
	history, err := h.chatService.RecentHistory(c.Request.Context(), sessionID, count)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, history)
}
