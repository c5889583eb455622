package service

import "errors"

// 服务层业务错误。Handler 据此映射 HTTP 状态码，
// 不向客户端透出仓库层或数据库的原始错误。
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrRoomNotFound         = errors.New("room not found")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: username or email already exists")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidInput         = errors.New("invalid input")
	ErrFileTooLarge         = errors.New("file exceeds the maximum allowed size")
	ErrFileTypeNotAllowed   = errors.New("file type is not allowed")
	ErrFileNotFound         = errors.New("file not found or expired")
	ErrInternalServer       = errors.New("internal server error")
)
