package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/careerlane_server/internal/api/middleware"
	"github.com/qs3c/careerlane_server/internal/model/dto"
	"github.com/qs3c/careerlane_server/internal/pkg/response"
	"github.com/qs3c/careerlane_server/internal/service"
)

type JobHandler struct {
	jobService   *service.JobService
	matchService *service.MatchService
	log          *zap.Logger
}

func NewJobHandler(jobService *service.JobService, matchService *service.MatchService, log *zap.Logger) *JobHandler {
	return &JobHandler{
		jobService:   jobService,
		matchService: matchService,
		log:          log.Named("job_handler"),
	}
}

// Feed 已激活职位列表，新的在前
// GET /api/v1/jobs?page=1&page_size=20
func (h *JobHandler) Feed(c *gin.Context) {
	page, pageSize := pagination(c)

	items, total, err := h.jobService.Feed(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Detail 职位详情；processing 状态只对发布者和管理员可见
// GET /api/v1/jobs/:id
func (h *JobHandler) Detail(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	detail, err := h.jobService.Detail(c.Request.Context(), c.Param("id"), userID, middleware.GetRole(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, detail)
}

// Create 直接提交职位，富化异步进行
// POST /api/v1/jobs
func (h *JobHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.jobService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.SuccessWithMessage(c, "job submitted, enrichment in progress", resp)
}

// Mine 当前 provider 发布的职位，包括仍在处理中的
// GET /api/v1/jobs/mine
func (h *JobHandler) Mine(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	items, err := h.jobService.Mine(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, items)
}

// Match 当前用户简历与职位的匹配度
// GET /api/v1/jobs/:id/match
func (h *JobHandler) Match(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	result, err := h.matchService.Match(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, result)
}

// pagination 读取分页参数，非法值回落到默认
func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
