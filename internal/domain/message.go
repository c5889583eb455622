package domain

import "time"

// 聊天消息类型。file 类型的消息由文件分享通知生成，
// 携带文件元数据以便历史回放时还原下载链接。
const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
	MessageTypeFile   = "file"
)

// ChatMessage 表示房间内的一条聊天消息。
// Seq 是房间内的序列号，与白板操作共享同一个计数器，
// 因此聊天与绘图事件的交错顺序是可复现的。
type ChatMessage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RoomID      uint      `gorm:"index:idx_msg_room_seq;not null" json:"room_id"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	Username    string    `gorm:"type:varchar(191);not null" json:"username"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	MessageType string    `gorm:"type:varchar(20);not null;default:text" json:"message_type"`
	Seq         uint64    `gorm:"index:idx_msg_room_seq;not null" json:"sequence"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	// 仅 file 类型消息使用
	FileID   string `gorm:"type:varchar(191)" json:"file_id,omitempty"`
	FileName string `gorm:"type:varchar(191)" json:"file_name,omitempty"`
	FileType string `gorm:"type:varchar(100)" json:"file_type,omitempty"`
	FileURL  string `gorm:"type:text" json:"file_url,omitempty"`
}
