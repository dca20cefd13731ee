package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 辅助函数：连接本地 MinIO，不可用时跳过
func setupTestMinio(t *testing.T) *MinioStore {
	t.Helper()
	endpoint := os.Getenv("DOCQA_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}
	mc, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	require.NoError(t, err)

	if _, err := mc.ListBuckets(context.Background()); err != nil {
		t.Skip("MinIO 不可用，跳过测试")
	}
	return NewMinioStore(mc)
}

func TestStorageURI(t *testing.T) {
	assert.Equal(t, "s3://docs/enterprise_documents/", StorageURI("docs", "enterprise_documents/"))
	assert.Equal(t, "s3://docs/enterprise_documents/", StorageURI("docs", "/enterprise_documents/"))
	assert.Equal(t, "s3://docs/", (&MinioStore{}).Location("docs", ""))
}

func TestMinioStore_PutAndRemovePrefix(t *testing.T) {
	s := setupTestMinio(t)
	ctx := context.Background()
	bucket := "docqa-test"
	require.NoError(t, s.EnsureBucket(ctx, bucket, ""))

	dir := t.TempDir()
	for _, name := range []string{"a.md", "b.txt"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("content of "+name), 0o600))
		require.NoError(t, s.PutObject(ctx, p, bucket, "test_prefix/"+name))
	}

	removed, err := s.RemovePrefix(ctx, bucket, "test_prefix/")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}
