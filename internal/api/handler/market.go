package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/careerlane_server/internal/pkg/response"
	"github.com/qs3c/careerlane_server/internal/service"
)

type MarketHandler struct {
	marketService *service.MarketService
	log           *zap.Logger
}

func NewMarketHandler(marketService *service.MarketService, log *zap.Logger) *MarketHandler {
	return &MarketHandler{marketService: marketService, log: log.Named("market_handler")}
}

// Market 市场概况：技能、公司、薪资趋势
// GET /api/v1/analytics/market
func (h *MarketHandler) Market(c *gin.Context) {
	stats, err := h.marketService.MarketStats(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, stats)
}
