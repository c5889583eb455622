package domain

import "time"

// Room 表示一个协作白板房间。
// IsActive 为 false 表示房间已被软删除，不再出现在列表中，
// 但历史记录仍然保留在数据库里。
type Room struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"type:varchar(191);not null" json:"name"`
	CreatorID  uint      `gorm:"index;not null" json:"created_by"`
	IsActive   bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	LastActive time.Time `gorm:"index" json:"last_active"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"-"`
}
