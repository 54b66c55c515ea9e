package handler

import (
	"io"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/careerlane_server/internal/api/middleware"
	"github.com/qs3c/careerlane_server/internal/model/dto"
	"github.com/qs3c/careerlane_server/internal/pkg/response"
	"github.com/qs3c/careerlane_server/internal/service"
)

type UserHandler struct {
	userService *service.UserService
	maxSize     int64
	log         *zap.Logger
}

func NewUserHandler(userService *service.UserService, maxSize int64, log *zap.Logger) *UserHandler {
	if maxSize <= 0 {
		maxSize = 5 << 20
	}
	return &UserHandler{
		userService: userService,
		maxSize:     maxSize,
		log:         log.Named("user_handler"),
	}
}

// identity 从 token 声明构造身份，用于首次访问时建档
func identity(c *gin.Context) (service.Identity, bool) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		return service.Identity{}, false
	}
	return service.Identity{
		UserID: claims.UserID,
		Email:  claims.Email,
		Name:   claims.Name,
		Role:   claims.Role,
	}, true
}

// GetProfile 获取当前用户信息
// GET /api/v1/user/profile
func (h *UserHandler) GetProfile(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	profile, err := h.userService.Profile(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, profile)
}

// UpdateResume 更新简历文本，可同时上传原文件（multipart 字段 file）
// PUT /api/v1/user/resume
func (h *UserHandler) UpdateResume(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.UpdateResumeRequest
	if err := c.ShouldBind(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	var file *service.ResumeFile
	if fh, err := c.FormFile("file"); err == nil {
		if fh.Size > h.maxSize {
			response.ParamError(c, service.ErrFileTooLarge.Error())
			return
		}

		f, err := fh.Open()
		if err != nil {
			response.ServerError(c, "failed to read file")
			return
		}
		defer f.Close()

		data, err := io.ReadAll(io.LimitReader(f, h.maxSize+1))
		if err != nil {
			response.ServerError(c, "failed to read file")
			return
		}
		file = &service.ResumeFile{Data: data, Ext: filepath.Ext(fh.Filename)}
	}

	profile, err := h.userService.UpdateResume(c.Request.Context(), id, &req, file)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.SuccessWithMessage(c, "resume updated", profile)
}

// ResumeURL 简历下载链接，每次重新签发且不允许缓存
// GET /api/v1/user/resume/url
func (h *UserHandler) ResumeURL(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	c.Header("Cache-Control", "no-store")

	resp, err := h.userService.ResumeURL(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, resp)
}
