package repository

import (
	"context"
	"time"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
)

// BlobRepository 定义了 Blob 网关的引用注册表。
// 文件字节在上传时已由 Blob 存储持久化；这里只登记元数据，
// Hub 在广播文件分享通知前通过 Resolve 校验引用有效。
type BlobRepository interface {
	// Register 登记一个已上传文件的引用，ttl 为引用的有效期（0 表示不过期）。
	Register(ctx context.Context, ref *domain.FileRef, ttl time.Duration) error

	// Resolve 按引用 ID 查找元数据。未登记或已过期返回 ErrBlobNotFound。
	Resolve(ctx context.Context, blobID string) (*domain.FileRef, error)
}
