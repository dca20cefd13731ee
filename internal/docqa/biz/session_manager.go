package biz

import (
	"context"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/asakusa/enterprise-rag/internal/docqa/store"
	"github.com/asakusa/enterprise-rag/internal/model"
	"github.com/asakusa/enterprise-rag/pkg/errors"
	"github.com/asakusa/enterprise-rag/pkg/utils/id"
)

// SessionManager 会话注册表。配置了 SessionStore 时每次变更都会写入快照，
// 内存中不存在的会话会尝试从存储恢复。
type SessionManager struct {
	store store.SessionStore
	newID func() string
	now   func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager 创建会话注册表，st 可以为 nil。
func NewSessionManager(st store.SessionStore) *SessionManager {
	return &SessionManager{
		store:    st,
		newID:    id.NewULID,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create 新建会话。
func (m *SessionManager) Create(ctx context.Context) (*Session, error) {
	s := NewSession(m.newID())
	if err := m.persist(ctx, s); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	logger.Debugw("session created", "session_id", s.ID())
	return s, nil
}

// Get 获取会话，不存在时返回 ErrSessionNotFound。
func (m *SessionManager) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	if m.store == nil {
		return nil, errors.ErrSessionNotFound.WithMessagef("session %s not found", sessionID)
	}
	snap, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, errors.ErrSessionStore.WithCause(err)
	}
	if snap == nil {
		return nil, errors.ErrSessionNotFound.WithMessagef("session %s not found", sessionID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[sessionID]; ok {
		return existing, nil
	}
	s = RestoreSession(snap)
	m.sessions[sessionID] = s
	logger.Debugw("session restored", "session_id", sessionID, "turns", len(snap.History))
	return s, nil
}

// Record 将结果写入会话并持久化。持久化失败只记录日志。
func (m *SessionManager) Record(ctx context.Context, sessionID, question string, result *model.QueryResult) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.Record(question, result)
	if err := m.persist(ctx, s); err != nil {
		logger.Warnw("session persisted with error", "session_id", sessionID, "error", err.Error())
	}
	return nil
}

// Reset 清空会话历史与统计。
func (m *SessionManager) Reset(ctx context.Context, sessionID string) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.Reset()
	return m.persist(ctx, s)
}

// Delete 删除会话。
func (m *SessionManager) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return errors.ErrSessionStore.WithCause(err)
	}
	return nil
}

// EvictIdle 从内存中移除超过 idle 未变更的会话，返回移除数量。
// 已持久化的快照不受影响，之后的 Get 仍可从存储恢复。idle <= 0 时不做任何事。
func (m *SessionManager) EvictIdle(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for sid, s := range m.sessions {
		if s.UpdatedAt().Before(cutoff) {
			delete(m.sessions, sid)
			evicted++
		}
	}
	if evicted > 0 {
		logger.Debugw("idle sessions evicted", "evicted", evicted, "remaining", len(m.sessions))
	}
	return evicted
}

// RunEviction 按 interval 周期调用 EvictIdle，直到 ctx 结束。
func (m *SessionManager) RunEviction(ctx context.Context, idle, interval time.Duration) {
	if idle <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.EvictIdle(idle)
		}
	}
}

// Len 返回内存中的会话数。
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *SessionManager) persist(ctx context.Context, s *Session) error {
	if m.store == nil {
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if err := m.store.Save(ctx, s.Snapshot()); err != nil {
		return errors.ErrSessionStore.WithCause(err)
	}
	return nil
}
