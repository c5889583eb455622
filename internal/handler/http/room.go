package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Actiegen/collab-whiteboard-backend/internal/hub"
	"github.com/Actiegen/collab-whiteboard-backend/internal/service"
)

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑。
type RoomHandler struct {
	roomService *service.RoomService
	hub         *hub.Hub
}

// NewRoomHandler 创建 RoomHandler 实例。
func NewRoomHandler(roomService *service.RoomService, h *hub.Hub) *RoomHandler {
	return &RoomHandler{roomService: roomService, hub: h}
}

// CreateRoomRequest 定义创建房间请求的结构体。
type CreateRoomRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// CreateRoom 处理创建新房间的请求。
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: name is required")
		return
	}

	newRoom, err := h.roomService.CreateRoom(c.Request.Context(), userID, req.Name)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": newRoom.ID}).Info("Handler.CreateRoom: room created")
	SuccessResponse(c, http.StatusCreated, newRoom)
}

// ListRooms 返回所有活跃房间。
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.roomService.ListRooms(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"rooms": rooms})
}

// GetRoom 返回单个房间的详情，附带当前在线人数。
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	room, err := h.roomService.FindRoomByID(c.Request.Context(), roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	participants := h.hub.ActiveParticipants(roomID)
	SuccessResponse(c, http.StatusOK, gin.H{
		"room":         room,
		"online_count": len(participants),
	})
}

// GetParticipants 返回房间当前在线的参与者。
func (h *RoomHandler) GetParticipants(c *gin.Context) {
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	if _, err := h.roomService.FindRoomByID(c.Request.Context(), roomID); err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"participants": h.hub.ActiveParticipants(roomID)})
}

// DeleteRoom 软删除房间（仅创建者）。
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	if err := h.roomService.DeleteRoom(c.Request.Context(), roomID, userID); err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID}).Info("Handler.DeleteRoom: room deleted")
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Room deleted"})
}

// parseRoomID 解析路径参数中的房间 ID。
func parseRoomID(c *gin.Context) (uint, bool) {
	idStr := c.Param("roomId")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		ErrorResponse(c, http.StatusBadRequest, "Invalid room ID")
		return 0, false
	}
	return uint(id), true
}
