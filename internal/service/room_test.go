package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
	"github.com/Actiegen/collab-whiteboard-backend/internal/repository"
	"github.com/Actiegen/collab-whiteboard-backend/internal/repository/mocks"
	"github.com/Actiegen/collab-whiteboard-backend/internal/service"
)

func TestRoomService_CreateRoom_Success(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	roomService := service.NewRoomService(mockRoomRepo)
	ctx := context.Background()

	mockRoomRepo.On("Save", ctx, mock.MatchedBy(func(room *domain.Room) bool {
		assert.Equal(t, "Design Sync", room.Name)
		assert.Equal(t, uint(7), room.CreatorID)
		assert.True(t, room.IsActive)
		return true
	})).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Room).ID = 42
		}).
		Return(nil).
		Once()

	room, err := roomService.CreateRoom(ctx, 7, "  Design Sync  ")

	assert.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, uint(42), room.ID)
	mockRoomRepo.AssertExpectations(t)
}

func TestRoomService_CreateRoom_EmptyName(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	roomService := service.NewRoomService(mockRoomRepo)

	_, err := roomService.CreateRoom(context.Background(), 7, "   ")

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrInvalidInput))
	mockRoomRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRoomService_FindRoomByID_NotFound(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	roomService := service.NewRoomService(mockRoomRepo)
	ctx := context.Background()

	mockRoomRepo.On("FindByID", ctx, uint(99)).Return(nil, repository.ErrRoomNotFound).Once()

	_, err := roomService.FindRoomByID(ctx, 99)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrRoomNotFound))
	mockRoomRepo.AssertExpectations(t)
}

func TestRoomService_DeleteRoom_OnlyCreator(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	roomService := service.NewRoomService(mockRoomRepo)
	ctx := context.Background()
	room := &domain.Room{ID: 5, Name: "private", CreatorID: 1, IsActive: true}

	mockRoomRepo.On("FindByID", ctx, uint(5)).Return(room, nil)

	// 非创建者删除被拒绝
	err := roomService.DeleteRoom(ctx, 5, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrPermissionDenied))
	mockRoomRepo.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything)

	// 创建者删除成功
	mockRoomRepo.On("SoftDelete", ctx, uint(5)).Return(nil).Once()
	err = roomService.DeleteRoom(ctx, 5, 1)
	assert.NoError(t, err)
	mockRoomRepo.AssertExpectations(t)
}

func TestMessageService_ListRecentMessages_ClampsLimit(t *testing.T) {
	mockHistoryRepo := new(mocks.HistoryRepository)
	messageService := service.NewMessageService(mockHistoryRepo)
	ctx := context.Background()

	msgs := []domain.ChatMessage{{RoomID: 1, Content: "hi", Seq: 1}}
	// 超出范围的 limit 被收敛到默认值
	mockHistoryRepo.On("ListRecentChat", ctx, uint(1), 50).Return(msgs, nil).Twice()

	got, err := messageService.ListRecentMessages(ctx, 1, -3)
	assert.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = messageService.ListRecentMessages(ctx, 1, 10000)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	mockHistoryRepo.AssertExpectations(t)
}
