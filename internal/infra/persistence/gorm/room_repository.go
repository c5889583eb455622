package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
	"github.com/Actiegen/collab-whiteboard-backend/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现。
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例。
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByID 查找未被软删除的房间。
func (r *GormRoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("is_active = ?", true).First(&room, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %d: %w", id, err)
	}
	return &room, nil
}

func (r *GormRoomRepository) FindAllActive(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("last_active DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list active rooms: %w", err)
	}
	return rooms, nil
}

func (r *GormRoomRepository) Save(ctx context.Context, room *domain.Room) error {
	err := r.db.WithContext(ctx).Save(room).Error
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save room %q: %w", room.Name, err)
	}
	return nil
}

// SoftDelete 把房间标记为不活跃。历史记录保留在库里。
func (r *GormRoomRepository) SoftDelete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Room{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("gorm: soft delete room %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrRoomNotFound
	}
	return nil
}

func (r *GormRoomRepository) TouchLastActive(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&domain.Room{}).
		Where("id = ?", id).
		Update("last_active", at).Error
	if err != nil {
		return fmt.Errorf("gorm: touch room %d: %w", id, err)
	}
	return nil
}
