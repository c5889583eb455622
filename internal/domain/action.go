package domain

import "time"

// 白板操作类型。clear 会截断内存中的操作日志，
// 其本身作为新的日志起点保留下来。
const (
	ActionDraw  = "draw"
	ActionErase = "erase"
	ActionClear = "clear"
)

// WhiteboardAction 表示用户在白板上执行的一个操作记录。
// Seq 与 ChatMessage 共享房间内的序列号计数器，在房间内严格递增且无空洞。
type WhiteboardAction struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RoomID     uint      `gorm:"index:idx_action_room_seq;not null" json:"room_id"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	Username   string    `gorm:"type:varchar(191);not null" json:"username"`
	ActionType string    `gorm:"type:varchar(20);not null" json:"action_type"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Color      string    `gorm:"type:varchar(20)" json:"color,omitempty"`
	BrushSize  int       `json:"brush_size,omitempty"`
	IsDrawing  bool      `json:"is_drawing"`
	Seq        uint64    `gorm:"index:idx_action_room_seq;not null" json:"sequence"`
	Timestamp  time.Time `gorm:"index;not null" json:"timestamp"`
}

// IsKnownActionType 判断操作类型是否属于封闭集合。
func IsKnownActionType(t string) bool {
	switch t {
	case ActionDraw, ActionErase, ActionClear:
		return true
	}
	return false
}
