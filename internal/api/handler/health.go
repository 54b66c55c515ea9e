package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qs3c/careerlane_server/internal/pkg/response"
	"github.com/qs3c/careerlane_server/internal/pkg/ws"
)

type HealthHandler struct {
	db  *gorm.DB
	hub *ws.Hub
}

func NewHealthHandler(db *gorm.DB, hub *ws.Hub) *HealthHandler {
	return &HealthHandler{db: db, hub: hub}
}

// Health 存活检查
// GET /api/v1/health
func (h *HealthHandler) Health(c *gin.Context) {
	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil {
		dbStatus = "unavailable"
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			dbStatus = "unavailable"
		}
	}

	response.Success(c, gin.H{
		"status":      "ok",
		"database":    dbStatus,
		"connections": h.hub.ConnectionCount(),
	})
}
