package repository

import (
	"context"
	"time"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
)

// RoomRepository 定义了房间数据的存储和检索操作。
type RoomRepository interface {
	// FindByID 根据房间 ID 查找房间，不存在或已软删除时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Room, error)

	// FindAllActive 返回所有未被软删除的房间。
	FindAllActive(ctx context.Context) ([]domain.Room, error)

	// Save 保存房间信息（存在则更新，否则创建）。
	Save(ctx context.Context, room *domain.Room) error

	// SoftDelete 将房间标记为不活跃。历史记录保留。
	SoftDelete(ctx context.Context, id uint) error

	// TouchLastActive 更新房间的最后活跃时间。
	TouchLastActive(ctx context.Context, id uint, at time.Time) error
}
