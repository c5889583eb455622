package repository

import (
	"context"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
)

// RoomHistory 是一次房间水合所需的全部持久化状态。
type RoomHistory struct {
	// Actions 是自上次 clear（含）以来的白板操作，按序列号升序。
	Actions []domain.WhiteboardAction
	// RecentChat 是最近的聊天消息，按序列号升序。
	RecentChat []domain.ChatMessage
}

// HistoryRepository 定义了持久化网关：房间事件历史的加载与追加。
// Hub 在房间首次进入内存时调用 LoadRoomHistory 水合状态，
// 之后的每个变更事件通过 Append*/Clear 异步落库。
type HistoryRepository interface {
	// LoadRoomHistory 加载水合状态。chatLimit 限制返回的聊天条数。
	// 房间没有任何历史时返回空的 RoomHistory 而不是错误。
	LoadRoomHistory(ctx context.Context, roomID uint, chatLimit int) (RoomHistory, error)

	// AppendChat 持久化一条聊天消息（含序列号）。
	AppendChat(ctx context.Context, msg *domain.ChatMessage) error

	// AppendAction 持久化一条 draw/erase 操作。
	AppendAction(ctx context.Context, action *domain.WhiteboardAction) error

	// ClearWhiteboard 持久化一条 clear 操作。clear 行本身保留为新的日志起点，
	// 更早的操作行留待后台压缩任务清理。
	ClearWhiteboard(ctx context.Context, clear *domain.WhiteboardAction) error

	// ListRecentChat 返回最近的聊天消息，按序列号升序。供 REST 历史接口使用。
	ListRecentChat(ctx context.Context, roomID uint, limit int) ([]domain.ChatMessage, error)

	// LatestClearSeq 返回房间最近一次 clear 的序列号。
	// 房间从未 clear 过时返回 ErrNotFound。
	LatestClearSeq(ctx context.Context, roomID uint) (uint64, error)

	// PruneActionsBefore 删除序列号小于 seq 的操作行，返回删除数量。
	// 由后台压缩任务调用。
	PruneActionsBefore(ctx context.Context, roomID uint, seq uint64) (int64, error)
}
