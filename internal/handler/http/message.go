package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
	"github.com/Actiegen/collab-whiteboard-backend/internal/hub"
	"github.com/Actiegen/collab-whiteboard-backend/internal/service"
)

// MessageHandler 封装聊天历史查询与 REST 路径的消息发送。
// 发送走 Hub 的注入接口：序列号必须由房间的串行化点分配，
// REST 与 WebSocket 两条写路径才不会产生交错冲突。
type MessageHandler struct {
	messageService *service.MessageService
	roomService    *service.RoomService
	hub            *hub.Hub
}

// NewMessageHandler 创建 MessageHandler 实例。
func NewMessageHandler(messageService *service.MessageService, roomService *service.RoomService, h *hub.Hub) *MessageHandler {
	return &MessageHandler{messageService: messageService, roomService: roomService, hub: h}
}

// ListMessages 返回房间最近的聊天消息。
func (h *MessageHandler) ListMessages(c *gin.Context) {
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}
	if _, err := h.roomService.FindRoomByID(c.Request.Context(), roomID); err != nil {
		HandleServiceError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	messages, err := h.messageService.ListRecentMessages(c.Request.Context(), roomID, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"messages": messages})
}

// PostMessageRequest 定义 REST 发送消息请求的结构体。
type PostMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// PostMessage 通过 REST 发送聊天消息。消息经由 Hub 分配序列号并
// 广播给房间内的在线连接，与 WebSocket 发的消息走同一条流水线。
func (h *MessageHandler) PostMessage(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: content is required")
		return
	}
	if err := service.ValidateChatContent(req.Content); err != nil {
		HandleServiceError(c, err)
		return
	}
	if _, err := h.roomService.FindRoomByID(c.Request.Context(), roomID); err != nil {
		HandleServiceError(c, err)
		return
	}

	sender := hub.Identity{UserID: userID, Username: authenticatedUsername(c)}
	msg, err := h.hub.InjectChat(c.Request.Context(), roomID, sender, req.Content, domain.MessageTypeText)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to send message")
		return
	}

	h.roomService.TouchRoom(c.Request.Context(), roomID)
	SuccessResponse(c, http.StatusCreated, msg)
}
