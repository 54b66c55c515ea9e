package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/careerlane_server/internal/pkg/lease"
	"github.com/qs3c/careerlane_server/internal/pkg/response"
	"github.com/qs3c/careerlane_server/internal/service"
)

// respondError 把服务层的哨兵错误翻译成业务错误码，未知错误记录日志后返回 5000
func respondError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrSourceNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrSessionClosed),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrSessionNotHuman):
		response.InvalidStateError(c, err.Error())
	case errors.Is(err, service.ErrResumeMissing):
		response.ResumeMissingError(c, "")
	case errors.Is(err, service.ErrJobNotEnriched):
		response.JobProcessingError(c, "")
	case errors.Is(err, service.ErrSessionForbidden):
		response.PermissionError(c, "")
	case errors.Is(err, lease.ErrLeaseHeld),
		errors.Is(err, service.ErrIngestionActive),
		errors.Is(err, service.ErrDuplicateJob):
		response.DuplicateError(c, err.Error())
	case errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrMessageTooLong),
		errors.Is(err, service.ErrUnsupportedFile),
		errors.Is(err, service.ErrFileTooLarge):
		response.ParamError(c, err.Error())
	default:
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		response.ServerError(c, "")
	}
}
