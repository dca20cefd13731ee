package store

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/kart-io/logger"
	"github.com/minio/minio-go/v7"
)

// MinioStore 基于 minio-go 的 S3 兼容对象存储。
type MinioStore struct {
	mc *minio.Client
}

var _ ObjectStore = (*MinioStore)(nil)

// NewMinioStore 创建对象存储。
func NewMinioStore(mc *minio.Client) *MinioStore {
	return &MinioStore{mc: mc}
}

// EnsureBucket 确保 bucket 存在
func (s *MinioStore) EnsureBucket(ctx context.Context, bucket, region string) error {
	exists, err := s.mc.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		logger.Infow("bucket created", "bucket", bucket)
	}
	return nil
}

// PutObject 上传本地文件
func (s *MinioStore) PutObject(ctx context.Context, localPath, bucket, key string) error {
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(localPath)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.mc.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// RemovePrefix 删除前缀下所有对象
func (s *MinioStore) RemovePrefix(ctx context.Context, bucket, prefix string) (int, error) {
	objects := s.mc.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	removed := 0
	var firstErr error
	for obj := range objects {
		if obj.Err != nil {
			return removed, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		if err := s.mc.RemoveObject(ctx, bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			logger.Warnw("failed to remove staged object", "bucket", bucket, "key", obj.Key, "error", err.Error())
			if firstErr == nil {
				firstErr = fmt.Errorf("remove %s: %w", obj.Key, err)
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

// Location 返回 s3://bucket/prefix
func (s *MinioStore) Location(bucket, prefix string) string {
	return StorageURI(bucket, prefix)
}

// StorageURI 构造 s3://bucket/prefix 形式的存储 URI。
func StorageURI(bucket, prefix string) string {
	return "s3://" + bucket + "/" + strings.TrimLeft(prefix, "/")
}
