// Package mocks 提供 repository 接口的 testify Mock 实现，供单元测试注入。
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
	"github.com/Actiegen/collab-whiteboard-backend/internal/repository"
)

// UserRepository 是 repository.UserRepository 的 Mock。
type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*domain.User)
	return user, args.Error(1)
}

func (m *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	user, _ := args.Get(0).(*domain.User)
	return user, args.Error(1)
}

func (m *UserRepository) Save(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// RoomRepository 是 repository.RoomRepository 的 Mock。
type RoomRepository struct {
	mock.Mock
}

func (m *RoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	args := m.Called(ctx, id)
	room, _ := args.Get(0).(*domain.Room)
	return room, args.Error(1)
}

func (m *RoomRepository) FindAllActive(ctx context.Context) ([]domain.Room, error) {
	args := m.Called(ctx)
	rooms, _ := args.Get(0).([]domain.Room)
	return rooms, args.Error(1)
}

func (m *RoomRepository) Save(ctx context.Context, room *domain.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *RoomRepository) SoftDelete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *RoomRepository) TouchLastActive(ctx context.Context, id uint, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// HistoryRepository 是 repository.HistoryRepository 的 Mock。
type HistoryRepository struct {
	mock.Mock
}

func (m *HistoryRepository) LoadRoomHistory(ctx context.Context, roomID uint, chatLimit int) (repository.RoomHistory, error) {
	args := m.Called(ctx, roomID, chatLimit)
	history, _ := args.Get(0).(repository.RoomHistory)
	return history, args.Error(1)
}

func (m *HistoryRepository) AppendChat(ctx context.Context, msg *domain.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *HistoryRepository) AppendAction(ctx context.Context, action *domain.WhiteboardAction) error {
	args := m.Called(ctx, action)
	return args.Error(0)
}

func (m *HistoryRepository) ClearWhiteboard(ctx context.Context, clear *domain.WhiteboardAction) error {
	args := m.Called(ctx, clear)
	return args.Error(0)
}

func (m *HistoryRepository) ListRecentChat(ctx context.Context, roomID uint, limit int) ([]domain.ChatMessage, error) {
	args := m.Called(ctx, roomID, limit)
	msgs, _ := args.Get(0).([]domain.ChatMessage)
	return msgs, args.Error(1)
}

func (m *HistoryRepository) LatestClearSeq(ctx context.Context, roomID uint) (uint64, error) {
	args := m.Called(ctx, roomID)
	seq, _ := args.Get(0).(uint64)
	return seq, args.Error(1)
}

func (m *HistoryRepository) PruneActionsBefore(ctx context.Context, roomID uint, seq uint64) (int64, error) {
	args := m.Called(ctx, roomID, seq)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

// BlobRepository 是 repository.BlobRepository 的 Mock。
type BlobRepository struct {
	mock.Mock
}

func (m *BlobRepository) Register(ctx context.Context, ref *domain.FileRef, ttl time.Duration) error {
	args := m.Called(ctx, ref, ttl)
	return args.Error(0)
}

func (m *BlobRepository) Resolve(ctx context.Context, blobID string) (*domain.FileRef, error) {
	args := m.Called(ctx, blobID)
	ref, _ := args.Get(0).(*domain.FileRef)
	return ref, args.Error(1)
}
