package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
	"github.com/Actiegen/collab-whiteboard-backend/internal/repository"
)

// 单条聊天消息的最大长度。
const maxChatContentLength = 2000

// MessageService 负责聊天与白板历史的读取逻辑。
// 写入路径都经过 Hub（序列号在那里分配），这里只做查询。
type MessageService struct {
	historyRepo repository.HistoryRepository
}

// NewMessageService 创建 MessageService 实例。
func NewMessageService(historyRepo repository.HistoryRepository) *MessageService {
	if historyRepo == nil {
		panic("HistoryRepository cannot be nil for MessageService")
	}
	return &MessageService{historyRepo: historyRepo}
}

// ListRecentMessages 返回房间最近的聊天消息，按序列号升序。
func (s *MessageService) ListRecentMessages(ctx context.Context, roomID uint, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	messages, err := s.historyRepo.ListRecentChat(ctx, roomID, limit)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to list recent chat messages")
		return nil, ErrInternalServer
	}
	return messages, nil
}

// LoadWhiteboard 返回自最近一次 clear 以来的白板操作。
// 房间不在内存中（没有活跃连接）时 handler 走这条路径。
func (s *MessageService) LoadWhiteboard(ctx context.Context, roomID uint) ([]domain.WhiteboardAction, error) {
	history, err := s.historyRepo.LoadRoomHistory(ctx, roomID, 0)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to load whiteboard history")
		return nil, ErrInternalServer
	}
	return history.Actions, nil
}

// ValidateChatContent 校验 REST 路径提交的聊天内容。
func ValidateChatContent(content string) error {
	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxChatContentLength {
		return ErrInvalidInput
	}
	return nil
}
