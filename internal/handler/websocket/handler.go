// Package websocket 处理 WebSocket 升级请求并把连接接入 Hub。
package websocket

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Actiegen/collab-whiteboard-backend/internal/hub"
	"github.com/Actiegen/collab-whiteboard-backend/internal/service"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册。
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	hub         *hub.Hub
	roomService *service.RoomService
	authService *service.AuthService
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
func NewWebSocketHandler(h *hub.Hub, roomService *service.RoomService, authService *service.AuthService) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if roomService == nil || authService == nil {
		panic("RoomService and AuthService cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// 允许所有来源连接（生产环境应配置具体的允许来源）
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return &WebSocketHandler{
		upgrader:    upgrader,
		hub:         h,
		roomService: roomService,
		authService: authService,
	}
}

// HandleConnection 处理 WebSocket 连接请求。
// URL 预期格式: /ws/rooms/{roomId}，认证由 Auth 中间件完成。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	// 1. 获取认证用户 ID（由 Auth 中间件设置）
	userIDAny, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	userID, ok := userIDAny.(uint)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	// 2. 获取并验证房间 ID
	roomIDStr := c.Param("roomId")
	roomID64, err := strconv.ParseUint(roomIDStr, 10, 32)
	if err != nil || roomID64 == 0 {
		logCtx.Warnf("WS Handler: invalid room ID format: %s", roomIDStr)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID format"})
		return
	}
	roomID := uint(roomID64)
	logCtx = logCtx.WithField("room_id", roomID)

	// 3. 确认用户与房间都存在。用户名从数据库取，不信任 token 里的 claim
	user, err := h.authService.FindUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate user"})
		}
		return
	}
	if _, err := h.roomService.FindRoomByID(c.Request.Context(), roomID); err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		} else {
			logCtx.WithError(err).Error("WS Handler: error checking room existence")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate room"})
		}
		return
	}

	// 4. 升级 HTTP 连接到 WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经发送了 HTTP 错误响应
		logCtx.WithError(err).Error("WS Handler: failed to upgrade connection")
		return
	}

	// 5. 注册进 Hub。水合状态在 Join 内部入队，保证先于后续广播送达
	identity := hub.Identity{UserID: user.ID, Username: user.Username}
	client := hub.NewClient(h.hub, conn, roomID, identity)
	if _, err := h.hub.Join(c.Request.Context(), roomID, identity, client); err != nil {
		logCtx.WithError(err).Warn("WS Handler: hub join rejected")
		code := websocket.CloseInternalServerErr
		if errors.Is(err, hub.ErrDuplicateParticipant) {
			code = websocket.ClosePolicyViolation
		}
		msg := websocket.FormatCloseMessage(code, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(5*time.Second))
		conn.Close()
		return
	}

	// 6. 启动读写协程，之后的通信全部由 Client 的 pump 处理
	client.Start()
	h.roomService.TouchRoom(c.Request.Context(), roomID)
	logCtx.Info("WS Handler: client connected")
}
