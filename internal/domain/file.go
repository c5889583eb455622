package domain

import "time"

// FileRef 是已上传文件的引用元数据。
// 文件字节由 Blob 存储持有，Hub 只转发引用，从不接触内容。
// 注册表（Redis）以 ID 为键保存该结构，供文件分享通知校验引用有效性。
type FileRef struct {
	ID          string    `json:"id"`
	Name        string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	DownloadURL string    `json:"download_url"`
	RoomID      uint      `json:"room_id"`
	UploaderID  uint      `json:"uploader_id"`
	CreatedAt   time.Time `json:"created_at"`
}
