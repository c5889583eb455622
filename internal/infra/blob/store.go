// Package blob 提供文件字节的磁盘存储。
// Hub 与持久化层只处理文件引用（domain.FileRef），字节内容全部落在这里。
package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DiskStore 把上传的文件保存到本地目录。
// 对象名是随机 UUID 加原始扩展名，避免路径穿越和重名覆盖。
type DiskStore struct {
	baseDir string
}

// NewDiskStore 创建 DiskStore 并确保目录存在。
func NewDiskStore(baseDir string) (*DiskStore, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create base dir %s: %w", baseDir, err)
	}
	return &DiskStore{baseDir: baseDir}, nil
}

// Put 写入一个新对象并返回对象名。
func (s *DiskStore) Put(src io.Reader, originalName string) (string, int64, error) {
	objectName := uuid.NewString() + sanitizeExt(originalName)
	path := filepath.Join(s.baseDir, objectName)

	dst, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("blob: create object %s: %w", objectName, err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("blob: write object %s: %w", objectName, err)
	}
	return objectName, written, nil
}

// Open 打开对象用于下载。调用方负责 Close。
func (s *DiskStore) Open(objectName string) (*os.File, error) {
	path, err := s.objectPath(objectName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob: object %s: %w", objectName, os.ErrNotExist)
		}
		return nil, fmt.Errorf("blob: open object %s: %w", objectName, err)
	}
	return f, nil
}

// Remove 删除对象。对象不存在不算错误。
func (s *DiskStore) Remove(objectName string) error {
	path, err := s.objectPath(objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob: remove object %s: %w", objectName, err)
	}
	return nil
}

// List 列出当前存储的全部对象名。后台清理任务用它扫描孤儿文件。
func (s *DiskStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("blob: list objects: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// objectPath 校验对象名并拼出完整路径。拒绝任何带路径分隔符的名字。
func (s *DiskStore) objectPath(objectName string) (string, error) {
	if objectName == "" || objectName != filepath.Base(objectName) || strings.ContainsAny(objectName, `/\`) {
		return "", fmt.Errorf("blob: invalid object name %q", objectName)
	}
	return filepath.Join(s.baseDir, objectName), nil
}

// sanitizeExt 提取一个安全的扩展名，超长或含怪字符时丢弃。
func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return ext
}
