package store

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakusa/enterprise-rag/internal/model"
)

// 辅助函数：创建测试用 Redis 客户端
func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // 使用测试专用数据库
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis 不可用，跳过测试")
	}
	client.FlushDB(ctx)
	return client
}

func TestNewRedisSessionStore_WithNilConfig(t *testing.T) {
	s := NewRedisSessionStore(nil, nil)
	assert.Equal(t, "docqa:session:", s.config.KeyPrefix)
	assert.Equal(t, "docqa:session:abc", s.key("abc"))
}

func TestRedisSessionStore_RoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	s := NewRedisSessionStore(client, &RedisSessionStoreConfig{TTL: time.Minute, KeyPrefix: "test:session:"})
	ctx := context.Background()

	snap := &model.SessionSnapshot{
		ID: "01HX",
		History: []model.ConversationTurn{{
			Question:  "What is the remote work policy?",
			Result:    model.QueryResult{Answer: "Up to 3 days.", Citations: []string{"remote_work.md"}, LatencySeconds: 1.5},
			Timestamp: time.Now().UTC().Truncate(time.Second),
		}},
		Stats: model.SystemStats{QueryCount: 1, TotalLatencySeconds: 1.5, TotalAnswerChars: 13},
	}
	require.NoError(t, s.Save(ctx, snap))

	got, err := s.Load(ctx, "01HX")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap.Stats, got.Stats)
	assert.Equal(t, snap.History[0].Result.Citations, got.History[0].Result.Citations)

	require.NoError(t, s.Delete(ctx, "01HX"))
	got, err = s.Load(ctx, "01HX")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSessionStore_CorruptSnapshotIsDropped(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	s := NewRedisSessionStore(client, &RedisSessionStoreConfig{KeyPrefix: "test:session:"})
	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "test:session:bad", "{not json", 0).Err())

	got, err := s.Load(ctx, "bad")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int64(0), client.Exists(ctx, "test:session:bad").Val())
}

// failDelHook 让 DEL 命令失败，其余命令照常执行。
type failDelHook struct{}

func (failDelHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (failDelHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "del" {
			err := errors.New("READONLY You can't write against a read only replica")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (failDelHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisSessionStore_CorruptSnapshotDeleteFailure(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	s := NewRedisSessionStore(client, &RedisSessionStoreConfig{KeyPrefix: "test:session:"})
	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "test:session:bad", "{not json", 0).Err())
	client.AddHook(failDelHook{})

	got, err := s.Load(ctx, "bad")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int64(1), client.Exists(ctx, "test:session:bad").Val())
}
