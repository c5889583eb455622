package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Actiegen/collab-whiteboard-backend/internal/hub"
	"github.com/Actiegen/collab-whiteboard-backend/internal/service"
)

// WhiteboardHandler 提供白板当前状态的只读查询。
type WhiteboardHandler struct {
	messageService *service.MessageService
	roomService    *service.RoomService
	hub            *hub.Hub
}

// NewWhiteboardHandler 创建 WhiteboardHandler 实例。
func NewWhiteboardHandler(messageService *service.MessageService, roomService *service.RoomService, h *hub.Hub) *WhiteboardHandler {
	return &WhiteboardHandler{messageService: messageService, roomService: roomService, hub: h}
}

// GetWhiteboard 返回自最近一次 clear 以来的白板操作。
// 房间在内存中（有活跃连接）时直接取 Hub 的内存日志，
// 否则从数据库加载，两条路径返回同样的内容。
func (h *WhiteboardHandler) GetWhiteboard(c *gin.Context) {
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}
	if _, err := h.roomService.FindRoomByID(c.Request.Context(), roomID); err != nil {
		HandleServiceError(c, err)
		return
	}

	if actions, ok := h.hub.SnapshotWhiteboard(roomID); ok {
		SuccessResponse(c, http.StatusOK, gin.H{"actions": actions, "live": true})
		return
	}

	actions, err := h.messageService.LoadWhiteboard(c.Request.Context(), roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"actions": actions, "live": false})
}
