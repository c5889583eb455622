package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Actiegen/collab-whiteboard-backend/internal/service"
)

// FileHandler 封装文件上传与下载。
// 上传只写入 Blob 存储并注册引用，不直接广播；
// 客户端拿到返回的引用后通过 WebSocket 的 file_upload 事件分享进房间。
type FileHandler struct {
	fileService *service.FileService
	roomService *service.RoomService
}

// NewFileHandler 创建 FileHandler 实例。
func NewFileHandler(fileService *service.FileService, roomService *service.RoomService) *FileHandler {
	return &FileHandler{fileService: fileService, roomService: roomService}
}

// Upload 处理 multipart 文件上传。
func (h *FileHandler) Upload(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}
	if _, err := h.roomService.FindRoomByID(c.Request.Context(), roomID); err != nil {
		HandleServiceError(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: file field is required")
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		logrus.WithError(err).Error("Handler.Upload: failed to open multipart file")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to read uploaded file")
		return
	}
	defer src.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	ref, err := h.fileService.Upload(c.Request.Context(), roomID, userID,
		fileHeader.Filename, contentType, fileHeader.Size, src)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, ref)
}

// Download 解析文件引用并回传文件内容。
func (h *FileHandler) Download(c *gin.Context) {
	fileID := c.Param("fileId")
	if fileID == "" {
		ErrorResponse(c, http.StatusBadRequest, "Invalid file ID")
		return
	}

	ref, f, err := h.fileService.Download(c.Request.Context(), fileID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Disposition", `attachment; filename="`+ref.Name+`"`)
	c.Header("Content-Length", strconv.FormatInt(ref.Size, 10))
	c.DataFromReader(http.StatusOK, ref.Size, ref.ContentType, f, nil)
}
