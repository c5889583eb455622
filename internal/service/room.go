package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
	"github.com/Actiegen/collab-whiteboard-backend/internal/repository"
)

// RoomService 负责房间管理相关的业务逻辑。
type RoomService struct {
	roomRepo repository.RoomRepository
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	return &RoomService{roomRepo: roomRepo}
}

// CreateRoom 创建一个新房间。
func (s *RoomService) CreateRoom(ctx context.Context, creatorID uint, name string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"creator_id": creatorID, "room_name": name})

	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return nil, ErrInvalidInput
	}

	room := &domain.Room{
		Name:       name,
		CreatorID:  creatorID,
		IsActive:   true,
		LastActive: time.Now(),
	}

	if err := s.roomRepo.Save(ctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to save new room to database")
		return nil, ErrInternalServer
	}

	logCtx.WithField("room_id", room.ID).Info("Room created successfully")
	return room, nil
}

// ListRooms 列出所有活跃（未软删除）的房间。
func (s *RoomService) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rooms, err := s.roomRepo.FindAllActive(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to list active rooms")
		return nil, ErrInternalServer
	}
	return rooms, nil
}

// FindRoomByID 查找活跃房间，供 HTTP 与 WebSocket handler 使用。
func (s *RoomService) FindRoomByID(ctx context.Context, roomID uint) (*domain.Room, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logrus.WithError(err).WithField("room_id", roomID).Error("FindRoomByID: repository error")
		return nil, ErrInternalServer
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// DeleteRoom 软删除房间。只有创建者可以删除。
func (s *RoomService) DeleteRoom(ctx context.Context, roomID, requesterID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "requester_id": requesterID})

	room, err := s.FindRoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.CreatorID != requesterID {
		logCtx.Warn("Room deletion rejected: requester is not the creator")
		return ErrPermissionDenied
	}

	if err := s.roomRepo.SoftDelete(ctx, roomID); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		logCtx.WithError(err).Error("Failed to soft delete room")
		return ErrInternalServer
	}

	logCtx.Info("Room soft deleted")
	return nil
}

// TouchRoom 更新房间最近活跃时间。失败只记日志，不影响调用方。
func (s *RoomService) TouchRoom(ctx context.Context, roomID uint) {
	if err := s.roomRepo.TouchLastActive(ctx, roomID, time.Now()); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Warn("Failed to touch room last_active")
	}
}
