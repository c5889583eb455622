// Package tasks 定义 Asynq 后台任务的类型与 payload。
package tasks

import "encoding/json"

// 任务类型常量。
const (
	TypeWhiteboardCompact = "whiteboard:compact" // 清理 clear 之前的白板操作行
	TypeBlobCleanup       = "blob:cleanup"       // 清理引用已过期的孤儿文件
)

// WhiteboardCompactPayload 定义白板压缩任务的数据结构。
// RoomID 为 0 表示压缩所有活跃房间。
type WhiteboardCompactPayload struct {
	RoomID uint `json:"room_id"`
}

// NewWhiteboardCompactTask 创建白板压缩任务的 payload。
func NewWhiteboardCompactTask(roomID uint) ([]byte, error) {
	return json.Marshal(WhiteboardCompactPayload{RoomID: roomID})
}

// NewBlobCleanupTask 创建孤儿文件清理任务的 payload。
func NewBlobCleanupTask() ([]byte, error) {
	return json.Marshal(struct{}{})
}
