// Package event 定义了 WebSocket 连线上传输的事件信封。
// 入站与出站事件都是封闭的可辨识联合：type 字段决定具体的载荷结构，
// 不在集合内的 type 会在解码阶段被拒绝，而不是落入运行时的兜底分支。
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
)

// Kind 是事件信封的类型判别值。
type Kind string

// 入站事件类型（客户端 → 服务端）。
const (
	KindChatMessage      Kind = "chat_message"
	KindWhiteboardAction Kind = "whiteboard_action"
	KindFileUpload       Kind = "file_upload"
	KindPing             Kind = "ping"
)

// 仅出站的事件类型（服务端 → 客户端）。
const (
	KindRoomState Kind = "room_state"
	KindPresence  Kind = "presence"
	KindError     Kind = "error"
	KindPong      Kind = "pong"
)

// ErrUnknownKind 表示信封的 type 不在封闭集合内。
var ErrUnknownKind = errors.New("event: unknown event type")

// ChatPayload 是 chat_message 事件的入站载荷。
type ChatPayload struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type,omitempty"` // text | system，缺省为 text
}

// ActionPayload 是 whiteboard_action 事件的入站载荷。
type ActionPayload struct {
	ActionType string  `json:"action_type"` // draw | erase | clear
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Color      string  `json:"color,omitempty"`
	BrushSize  int     `json:"brush_size,omitempty"`
	IsDrawing  bool    `json:"is_drawing"`
}

// FilePayload 是 file_upload 事件的入站载荷。
// FileID 必须是 Blob 网关已登记的引用，否则通知会被拒绝。
type FilePayload struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
}

// Inbound 是解码后的入站事件。Kind 决定哪个载荷字段非 nil。
type Inbound struct {
	Kind   Kind
	Chat   *ChatPayload
	Action *ActionPayload
	File   *FilePayload
}

type rawEnvelope struct {
	Type Kind `json:"type"`
}

// Decode 将原始消息解析为类型化的入站事件。
// 格式错误或未知 type 返回错误（包装 ErrUnknownKind），由调用方转换为 error 事件。
func Decode(data []byte) (Inbound, error) {
	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Inbound{}, fmt.Errorf("event: malformed envelope: %w", err)
	}

	switch env.Type {
	case KindChatMessage:
		var p struct {
			ChatPayload
			Type Kind `json:"type"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return Inbound{}, fmt.Errorf("event: malformed chat_message: %w", err)
		}
		if p.MessageType == "" {
			p.MessageType = domain.MessageTypeText
		}
		return Inbound{Kind: KindChatMessage, Chat: &p.ChatPayload}, nil
	case KindWhiteboardAction:
		var p struct {
			ActionPayload
			Type Kind `json:"type"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return Inbound{}, fmt.Errorf("event: malformed whiteboard_action: %w", err)
		}
		return Inbound{Kind: KindWhiteboardAction, Action: &p.ActionPayload}, nil
	case KindFileUpload:
		var p struct {
			FilePayload
			Type Kind `json:"type"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return Inbound{}, fmt.Errorf("event: malformed file_upload: %w", err)
		}
		return Inbound{Kind: KindFileUpload, File: &p.FilePayload}, nil
	case KindPing:
		return Inbound{Kind: KindPing}, nil
	default:
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}

// Validate 对入站载荷做基础校验，返回可直接回送给客户端的错误描述。
func (in Inbound) Validate() error {
	switch in.Kind {
	case KindChatMessage:
		if in.Chat.Content == "" {
			return errors.New("chat content must not be empty")
		}
		if in.Chat.MessageType != domain.MessageTypeText && in.Chat.MessageType != domain.MessageTypeSystem {
			return fmt.Errorf("unsupported message type %q", in.Chat.MessageType)
		}
	case KindWhiteboardAction:
		if !domain.IsKnownActionType(in.Action.ActionType) {
			return fmt.Errorf("unsupported action type %q", in.Action.ActionType)
		}
	case KindFileUpload:
		if in.File.FileID == "" {
			return errors.New("file_id must not be empty")
		}
	case KindPing:
		// 无载荷
	}
	return nil
}

// --- 出站事件 ---

// ChatBroadcast 是广播给房间的聊天消息，镜像入站载荷并附加序列号与发送者。
type ChatBroadcast struct {
	Type        Kind      `json:"type"`
	Sequence    uint64    `json:"sequence"`
	SenderID    uint      `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	Timestamp   time.Time `json:"timestamp"`
}

// ActionBroadcast 是广播给房间的白板操作。
type ActionBroadcast struct {
	Type       Kind      `json:"type"`
	Sequence   uint64    `json:"sequence"`
	SenderID   uint      `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	ActionType string    `json:"action_type"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Color      string    `json:"color,omitempty"`
	BrushSize  int       `json:"brush_size,omitempty"`
	IsDrawing  bool      `json:"is_drawing"`
	Timestamp  time.Time `json:"timestamp"`
}

// FileBroadcast 是广播给房间的文件分享通知。
type FileBroadcast struct {
	Type        Kind      `json:"type"`
	Sequence    uint64    `json:"sequence"`
	SenderID    uint      `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	FileID      string    `json:"file_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	DownloadURL string    `json:"download_url"`
	Timestamp   time.Time `json:"timestamp"`
}

// PresenceKind 区分加入与离开。
const (
	PresenceJoined = "joined"
	PresenceLeft   = "left"
)

// Presence 是参与者加入/离开的派生通知。
type Presence struct {
	Type      Kind      `json:"type"`
	Kind      string    `json:"kind"` // joined | left
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// 发送给客户端的错误码。
const (
	CodeUnknownEventType     = "unknown_event_type"
	CodeInvalidPayload       = "invalid_payload"
	CodeBlobReferenceInvalid = "blob_reference_invalid"
	CodePersistenceDegraded  = "persistence_degraded"
)

// Error 是发送给客户端的错误事件。除 persistence_degraded 之外
// 只发给触发错误的连接，房间内其他参与者不受影响。
type Error struct {
	Type    Kind   `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Participant 是 room_state 载荷中的在线参与者条目。
type Participant struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
}

// RoomState 是新连接的水合载荷：自上次 clear 以来的白板日志、
// 最近的聊天记录、在线参与者列表以及下一个序列号。
// 它在连接参与实时分发之前送达，晚加入者无需回放完整事件流。
type RoomState struct {
	Type         Kind                      `json:"type"`
	RoomID       uint                      `json:"room_id"`
	Actions      []domain.WhiteboardAction `json:"actions"`
	RecentChat   []domain.ChatMessage      `json:"recent_chat"`
	Participants []Participant             `json:"participants"`
	NextSequence uint64                    `json:"next_sequence"`
}

// Pong 回应客户端的 ping。
type Pong struct {
	Type Kind `json:"type"`
}

// Marshal 序列化任意出站事件。事件结构都是可序列化的普通结构体，
// 失败只会出现在编程错误时，调用方据此 panic 或记录日志均可。
func Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
