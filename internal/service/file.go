package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
	"github.com/Actiegen/collab-whiteboard-backend/internal/infra/blob"
	"github.com/Actiegen/collab-whiteboard-backend/internal/repository"
)

// 文件上传限制。
const (
	MaxUploadSize  = 10 << 20 // 10MB
	defaultBlobTTL = 7 * 24 * time.Hour
)

// 允许上传的 MIME 类型。
var allowedContentTypes = map[string]bool{
	"image/png":          true,
	"image/jpeg":         true,
	"image/gif":          true,
	"image/webp":         true,
	"application/pdf":    true,
	"text/plain":         true,
	"application/zip":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// FileService 负责文件上传与下载。
// 字节写入磁盘 Blob 存储，引用元数据带 TTL 注册到 Redis；
// Hub 广播文件分享通知前会回查这个注册表校验引用。
type FileService struct {
	store    *blob.DiskStore
	blobRepo repository.BlobRepository
	blobTTL  time.Duration
}

// NewFileService 创建 FileService 实例。
func NewFileService(store *blob.DiskStore, blobRepo repository.BlobRepository, ttl time.Duration) *FileService {
	if store == nil || blobRepo == nil {
		panic("DiskStore and BlobRepository cannot be nil for FileService")
	}
	if ttl <= 0 {
		ttl = defaultBlobTTL
	}
	return &FileService{store: store, blobRepo: blobRepo, blobTTL: ttl}
}

// Upload 校验并保存上传的文件，返回注册好的文件引用。
// 调用方随后通过 WebSocket 发送 file_upload 事件把引用分享进房间。
func (s *FileService) Upload(ctx context.Context, roomID, uploaderID uint, filename, contentType string, size int64, src io.Reader) (*domain.FileRef, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":      roomID,
		"uploader_id":  uploaderID,
		"filename":     filename,
		"content_type": contentType,
	})

	if size <= 0 || size > MaxUploadSize {
		return nil, ErrFileTooLarge
	}
	if !allowedContentTypes[contentType] {
		logCtx.Warn("Upload rejected: content type not allowed")
		return nil, ErrFileTypeNotAllowed
	}

	// 再套一层 LimitReader，防止声明的 size 与实际字节数不符
	objectName, written, err := s.store.Put(io.LimitReader(src, MaxUploadSize+1), filename)
	if err != nil {
		logCtx.WithError(err).Error("Failed to write uploaded file to blob store")
		return nil, ErrInternalServer
	}
	if written > MaxUploadSize {
		_ = s.store.Remove(objectName)
		return nil, ErrFileTooLarge
	}

	ref := &domain.FileRef{
		ID:          objectName,
		Name:        filename,
		ContentType: contentType,
		Size:        written,
		DownloadURL: fmt.Sprintf("/api/files/%s", objectName),
		RoomID:      roomID,
		UploaderID:  uploaderID,
		CreatedAt:   time.Now(),
	}
	if err := s.blobRepo.Register(ctx, ref, s.blobTTL); err != nil {
		logCtx.WithError(err).Error("Failed to register blob reference")
		_ = s.store.Remove(objectName)
		return nil, ErrInternalServer
	}

	logCtx.WithField("file_id", ref.ID).Info("File uploaded")
	return ref, nil
}

// Download 解析文件引用并打开底层对象。调用方负责关闭文件。
func (s *FileService) Download(ctx context.Context, fileID string) (*domain.FileRef, *os.File, error) {
	ref, err := s.blobRepo.Resolve(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrBlobNotFound) {
			return nil, nil, ErrFileNotFound
		}
		logrus.WithError(err).WithField("file_id", fileID).Error("Failed to resolve blob reference")
		return nil, nil, ErrInternalServer
	}

	f, err := s.store.Open(ref.ID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrFileNotFound
		}
		logrus.WithError(err).WithField("file_id", fileID).Error("Failed to open blob object")
		return nil, nil, ErrInternalServer
	}
	return ref, f, nil
}
