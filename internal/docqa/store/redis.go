package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/asakusa/enterprise-rag/internal/model"
	"github.com/asakusa/enterprise-rag/pkg/utils/json"
)

// RedisSessionStoreConfig 会话存储配置。
type RedisSessionStoreConfig struct {
	// TTL 快照过期时间，0 表示不过期。
	TTL time.Duration
	// KeyPrefix 键前缀。
	KeyPrefix string
}

// RedisSessionStore 将会话快照保存在 Redis。
type RedisSessionStore struct {
	redis  *goredis.Client
	config *RedisSessionStoreConfig
}

var _ SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore 创建会话存储。
func NewRedisSessionStore(client *goredis.Client, config *RedisSessionStoreConfig) *RedisSessionStore {
	if config == nil {
		config = &RedisSessionStoreConfig{
			TTL:       7 * 24 * time.Hour,
			KeyPrefix: "docqa:session:",
		}
	}
	return &RedisSessionStore{redis: client, config: config}
}

func (s *RedisSessionStore) key(id string) string {
	return s.config.KeyPrefix + id
}

// Save 写入快照。
func (s *RedisSessionStore) Save(ctx context.Context, snap *model.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", snap.ID, err)
	}
	if err := s.redis.Set(ctx, s.key(snap.ID), data, s.config.TTL).Err(); err != nil {
		logger.Warnw("failed to save session", "session_id", snap.ID, "error", err.Error())
		return err
	}
	return nil
}

// Load 读取快照。
func (s *RedisSessionStore) Load(ctx context.Context, id string) (*model.SessionSnapshot, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var snap model.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logger.Warnw("dropping corrupt session snapshot", "session_id", id, "error", err.Error())
		if delErr := s.redis.Del(ctx, s.key(id)).Err(); delErr != nil {
			logger.Warnw("failed to delete corrupt session snapshot", "session_id", id, "error", delErr.Error())
		}
		return nil, nil
	}
	return &snap, nil
}

// Delete 删除快照。
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.redis.Del(ctx, s.key(id)).Err()
}
