package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Actiegen/collab-whiteboard-backend/internal/service"
)

// HandleServiceError 把服务层业务错误映射到 HTTP 状态码。
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAuthenticationFailed):
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrRegistrationFailed), errors.Is(err, service.ErrInvalidInput):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrRoomNotFound), errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrFileNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrFileTooLarge):
		ErrorResponse(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrFileTypeNotAllowed):
		ErrorResponse(c, http.StatusUnsupportedMediaType, err.Error())
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}

// authenticatedUserID 从 Gin 上下文取出 Auth 中间件写入的用户 ID。
func authenticatedUserID(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get("user_id")
	if !exists {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	if !ok {
		logrus.Error("Handler: user_id in context is not uint")
		ErrorResponse(c, http.StatusInternalServerError, "Internal server error processing user ID")
		return 0, false
	}
	return userID, true
}

// authenticatedUsername 取出 Auth 中间件写入的用户名，可能为空。
func authenticatedUsername(c *gin.Context) string {
	if name, ok := c.Get("username"); ok {
		if s, ok := name.(string); ok {
			return s
		}
	}
	return ""
}
