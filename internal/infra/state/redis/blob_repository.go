// Package redisstate 提供以 Redis 为后端的实时状态实现。
package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
	"github.com/Actiegen/collab-whiteboard-backend/internal/repository"
)

// RedisBlobRepository 是 BlobRepository 接口的 Redis 实现：
// 已上传文件的引用注册表。字节内容在磁盘/对象存储里，
// 这里只保存带 TTL 的元数据，供 Hub 在广播文件分享通知前校验引用。
type RedisBlobRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisBlobRepository 创建 RedisBlobRepository 实例。
func NewRedisBlobRepository(client *redis.Client, keyPrefix string) *RedisBlobRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisBlobRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "wb:"
	}
	return &RedisBlobRepository{client: client, keyPrefix: keyPrefix}
}

func (r *RedisBlobRepository) blobKey(blobID string) string {
	return fmt.Sprintf("%sblob:%s", r.keyPrefix, blobID)
}

func (r *RedisBlobRepository) Register(ctx context.Context, ref *domain.FileRef, ttl time.Duration) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("redis: marshal blob ref %s: %w", ref.ID, err)
	}
	if err := r.client.Set(ctx, r.blobKey(ref.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: register blob ref %s: %w", ref.ID, err)
	}
	return nil
}

func (r *RedisBlobRepository) Resolve(ctx context.Context, blobID string) (*domain.FileRef, error) {
	data, err := r.client.Get(ctx, r.blobKey(blobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrBlobNotFound
		}
		return nil, fmt.Errorf("redis: resolve blob ref %s: %w", blobID, err)
	}
	var ref domain.FileRef
	if err := json.Unmarshal([]byte(data), &ref); err != nil {
		return nil, fmt.Errorf("redis: unmarshal blob ref %s: %w", blobID, err)
	}
	return &ref, nil
}
