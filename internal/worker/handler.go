// Package worker 运行 Asynq 后台任务：白板日志压缩与孤儿文件清理。
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/Actiegen/collab-whiteboard-backend/internal/infra/blob"
	"github.com/Actiegen/collab-whiteboard-backend/internal/repository"
	"github.com/Actiegen/collab-whiteboard-backend/internal/tasks"
)

// WhiteboardCompactHandler 处理白板压缩任务：
// 对每个房间找到最近一次 clear 的序列号，删除它之前的操作行。
// clear 之前的行不参与水合，留着只占空间。
type WhiteboardCompactHandler struct {
	roomRepo    repository.RoomRepository
	historyRepo repository.HistoryRepository
}

// NewWhiteboardCompactHandler 创建 Handler 实例。
func NewWhiteboardCompactHandler(roomRepo repository.RoomRepository, historyRepo repository.HistoryRepository) *WhiteboardCompactHandler {
	if roomRepo == nil || historyRepo == nil {
		panic("RoomRepository and HistoryRepository cannot be nil for WhiteboardCompactHandler")
	}
	return &WhiteboardCompactHandler{roomRepo: roomRepo, historyRepo: historyRepo}
}

// ProcessTask 实现 asynq.Handler 接口。
func (h *WhiteboardCompactHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	var payload tasks.WhiteboardCompactPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("worker: unmarshal compact payload: %v: %w", err, asynq.SkipRetry)
	}

	var roomIDs []uint
	if payload.RoomID != 0 {
		roomIDs = []uint{payload.RoomID}
	} else {
		rooms, err := h.roomRepo.FindAllActive(ctx)
		if err != nil {
			return fmt.Errorf("worker: list active rooms: %w", err)
		}
		for _, room := range rooms {
			roomIDs = append(roomIDs, room.ID)
		}
	}

	var pruned int64
	for _, roomID := range roomIDs {
		clearSeq, err := h.historyRepo.LatestClearSeq(ctx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue // 从未 clear 过，没有可压缩的
			}
			logCtx.WithError(err).WithField("room_id", roomID).Warn("Compact: failed to find latest clear")
			continue
		}
		n, err := h.historyRepo.PruneActionsBefore(ctx, roomID, clearSeq)
		if err != nil {
			logCtx.WithError(err).WithField("room_id", roomID).Warn("Compact: prune failed")
			continue
		}
		pruned += n
	}

	logCtx.WithFields(logrus.Fields{"rooms": len(roomIDs), "pruned_rows": pruned}).Info("Whiteboard compaction complete")
	return nil
}

// BlobCleanupHandler 处理孤儿文件清理任务：
// 扫描 Blob 存储里的对象，引用已从注册表过期的（Redis TTL 到期）删除。
type BlobCleanupHandler struct {
	store    *blob.DiskStore
	blobRepo repository.BlobRepository
}

// NewBlobCleanupHandler 创建 Handler 实例。
func NewBlobCleanupHandler(store *blob.DiskStore, blobRepo repository.BlobRepository) *BlobCleanupHandler {
	if store == nil || blobRepo == nil {
		panic("DiskStore and BlobRepository cannot be nil for BlobCleanupHandler")
	}
	return &BlobCleanupHandler{store: store, blobRepo: blobRepo}
}

// ProcessTask 实现 asynq.Handler 接口。
func (h *BlobCleanupHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	objects, err := h.store.List()
	if err != nil {
		return fmt.Errorf("worker: list blob objects: %w", err)
	}

	var removed int
	for _, name := range objects {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		resolveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := h.blobRepo.Resolve(resolveCtx, name)
		cancel()
		if err == nil {
			continue // 引用仍然有效
		}
		if !errors.Is(err, repository.ErrBlobNotFound) {
			logCtx.WithError(err).WithField("object", name).Warn("Cleanup: resolve failed, keeping object")
			continue
		}
		if err := h.store.Remove(name); err != nil {
			logCtx.WithError(err).WithField("object", name).Warn("Cleanup: remove failed")
			continue
		}
		removed++
	}

	logCtx.WithFields(logrus.Fields{"scanned": len(objects), "removed": removed}).Info("Blob cleanup complete")
	return nil
}
