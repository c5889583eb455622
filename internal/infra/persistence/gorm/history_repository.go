package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
	"github.com/Actiegen/collab-whiteboard-backend/internal/repository"
)

// GormHistoryRepository 是 HistoryRepository 接口的 GORM 实现：
// 持久化网关的数据库侧。白板操作与聊天消息各占一张表，
// 共享的序列号由 Hub 分配后随行写入。
type GormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository 创建 GormHistoryRepository 实例。
func NewGormHistoryRepository(db *gorm.DB) *GormHistoryRepository {
	if db == nil {
		panic("database connection cannot be nil for GormHistoryRepository")
	}
	return &GormHistoryRepository{db: db}
}

// LoadRoomHistory 加载水合状态：自最近一次 clear（含）以来的白板操作，
// 加上最近 chatLimit 条聊天消息，都按序列号升序。
func (r *GormHistoryRepository) LoadRoomHistory(ctx context.Context, roomID uint, chatLimit int) (repository.RoomHistory, error) {
	var history repository.RoomHistory

	sinceSeq, err := r.LatestClearSeq(ctx, roomID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return history, err
	}

	q := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("seq ASC")
	if sinceSeq > 0 {
		q = q.Where("seq >= ?", sinceSeq)
	}
	if err := q.Find(&history.Actions).Error; err != nil {
		return history, fmt.Errorf("gorm: load actions for room %d: %w", roomID, err)
	}

	history.RecentChat, err = r.ListRecentChat(ctx, roomID, chatLimit)
	if err != nil {
		return history, err
	}
	return history, nil
}

func (r *GormHistoryRepository) AppendChat(ctx context.Context, msg *domain.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("gorm: append chat (room %d, seq %d): %w", msg.RoomID, msg.Seq, err)
	}
	return nil
}

func (r *GormHistoryRepository) AppendAction(ctx context.Context, action *domain.WhiteboardAction) error {
	if err := r.db.WithContext(ctx).Create(action).Error; err != nil {
		return fmt.Errorf("gorm: append action (room %d, seq %d): %w", action.RoomID, action.Seq, err)
	}
	return nil
}

// ClearWhiteboard 写入 clear 行。clear 本身保留为持久化日志的新起点，
// 它之前的操作行由后台压缩任务（PruneActionsBefore）清理。
func (r *GormHistoryRepository) ClearWhiteboard(ctx context.Context, clear *domain.WhiteboardAction) error {
	if err := r.db.WithContext(ctx).Create(clear).Error; err != nil {
		return fmt.Errorf("gorm: record clear (room %d, seq %d): %w", clear.RoomID, clear.Seq, err)
	}
	return nil
}

// ListRecentChat 返回最近 limit 条聊天消息，按序列号升序。
func (r *GormHistoryRepository) ListRecentChat(ctx context.Context, roomID uint, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var recent []domain.ChatMessage
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("seq DESC").
		Limit(limit).
		Find(&recent).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list recent chat for room %d: %w", roomID, err)
	}
	// 倒序查出的结果翻回升序
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

func (r *GormHistoryRepository) LatestClearSeq(ctx context.Context, roomID uint) (uint64, error) {
	var clear domain.WhiteboardAction
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND action_type = ?", roomID, domain.ActionClear).
		Order("seq DESC").
		First(&clear).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("gorm: find latest clear for room %d: %w", roomID, err)
	}
	return clear.Seq, nil
}

func (r *GormHistoryRepository) PruneActionsBefore(ctx context.Context, roomID uint, seq uint64) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND seq < ?", roomID, seq).
		Delete(&domain.WhiteboardAction{})
	if result.Error != nil {
		return 0, fmt.Errorf("gorm: prune actions for room %d: %w", roomID, result.Error)
	}
	return result.RowsAffected, nil
}
