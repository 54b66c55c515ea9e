package handler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/careerlane_server/internal/model/dto"
	"github.com/qs3c/careerlane_server/internal/pkg/cron"
	"github.com/qs3c/careerlane_server/internal/pkg/response"
	"github.com/qs3c/careerlane_server/internal/service"
)

// sourceRunTimeout 同步单源抓取的上限
const sourceRunTimeout = 10 * time.Minute

type AdminHandler struct {
	chatService   *service.ChatService
	jobService    *service.JobService
	enrichService *service.EnrichmentService
	ledger        *service.LedgerService
	sources       *service.SourceRunner
	ingestion     *cron.IngestionRunner
	log           *zap.Logger

	// 后台任务，测试和优雅退出时等待
	wg sync.WaitGroup
}

func NewAdminHandler(
	chatService *service.ChatService,
	jobService *service.JobService,
	enrichService *service.EnrichmentService,
	ledger *service.LedgerService,
	sources *service.SourceRunner,
	ingestion *cron.IngestionRunner,
	log *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		chatService:   chatService,
		jobService:    jobService,
		enrichService: enrichService,
		ledger:        ledger,
		sources:       sources,
		ingestion:     ingestion,
		log:           log.Named("admin_handler"),
	}
}

// Wait 等待后台触发的抓取和补偿任务结束
func (h *AdminHandler) Wait() {
	h.wg.Wait()
}

// ListSessions 按状态列出会话
// GET /api/v1/admin/chat/sessions?status=active_ai&page=1&page_size=20
func (h *AdminHandler) ListSessions(c *gin.Context) {
	var q dto.ListSessionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = 20
	}

	items, total, err := h.chatService.ListSessions(c.Request.Context(), q.Status, q.Page, q.PageSize)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.SuccessPage(c, total, q.Page, q.PageSize, items)
}

// SessionLog 完整日志，包含隐藏的上下文消息
// GET /api/v1/admin/chat/sessions/:id/log
func (h *AdminHandler) SessionLog(c *gin.Context) {
	sessionLog, err := h.chatService.FullLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, sessionLog)
}

// Takeover 管理员接管
// POST /api/v1/admin/chat/sessions/:id/takeover
func (h *AdminHandler) Takeover(c *gin.Context) {
	h.transition(c, h.chatService.Takeover)
}

// HandBack 交还给 AI
// POST /api/v1/admin/chat/sessions/:id/handback
func (h *AdminHandler) HandBack(c *gin.Context) {
	h.transition(c, h.chatService.HandBack)
}

// Close 关闭会话并断开连接
// POST /api/v1/admin/chat/sessions/:id/close
func (h *AdminHandler) Close(c *gin.Context) {
	h.transition(c, h.chatService.Close)
}

func (h *AdminHandler) transition(c *gin.Context, fn func(ctx context.Context, sessionID string) (*dto.SessionItem, error)) {
	session, err := fn(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, session)
}

// SendMessage 接管期间以管理员身份回复
// POST /api/v1/admin/chat/sessions/:id/messages
func (h *AdminHandler) SendMessage(c *gin.Context) {
	var req dto.AdminMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	msg, err := h.chatService.AdminMessage(c.Request.Context(), c.Param("id"), req.Content)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, msg)
}

// Ingest 后台运行全部来源；租约被占用时直接拒绝
// POST /api/v1/admin/ingest
func (h *AdminHandler) Ingest(c *gin.Context) {
	busy, err := h.ingestion.Busy(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if busy {
		response.DuplicateError(c, "ingestion is already running")
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		stats, err := h.ingestion.RunGuarded(context.Background())
		if err != nil {
			h.log.Warn("manual ingestion not completed", zap.Error(err))
			return
		}
		h.log.Info("manual ingestion finished", zap.Int("sources", len(stats)))
	}()

	response.SuccessWithMessage(c, "ingestion started", gin.H{"sources": h.sources.Sources()})
}

// IngestSource 同步运行单个来源，返回本次计数；与全量抓取共用租约
// POST /api/v1/admin/ingest/:source
func (h *AdminHandler) IngestSource(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sourceRunTimeout)
	defer cancel()

	stats, err := h.ingestion.RunSourceGuarded(ctx, c.Param("source"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, stats)
}

// Runs 最近的抓取记录
// GET /api/v1/admin/ingest/runs?source=pwc&limit=50
func (h *AdminHandler) Runs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	runs, err := h.ledger.Recent(c.Request.Context(), c.Query("source"), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, runs)
}

// Reenrich 后台重新富化卡住的职位；不传 job_ids 时按超时扫描
// POST /api/v1/admin/jobs/reenrich
func (h *AdminHandler) Reenrich(c *gin.Context) {
	var req dto.ReenrichRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, err.Error())
			return
		}
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		result, err := h.enrichService.SweepStuck(context.Background(), req.JobIDs, req.Limit)
		if err != nil {
			h.log.Error("manual re-enrichment failed", zap.Error(err))
			return
		}
		h.log.Info("manual re-enrichment finished",
			zap.Int("total", result.Total),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed))
	}()

	response.SuccessWithMessage(c, "re-enrichment started", gin.H{"job_ids": len(req.JobIDs)})
}

// JobStats 各状态职位数
// GET /api/v1/admin/jobs/stats
func (h *AdminHandler) JobStats(c *gin.Context) {
	stats, err := h.jobService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, stats)
}
