package biz

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/asakusa/enterprise-rag/internal/model"
)

// Session 单个会话的历史与统计。所有读写都在同一把锁内完成。
type Session struct {
	id  string
	now func() time.Time

	// persistMu 串行化 快照+保存，保证后写入的快照不旧于先写入的
	persistMu sync.Mutex

	mu        sync.Mutex
	history   []model.ConversationTurn
	stats     model.SystemStats
	createdAt time.Time
	updatedAt time.Time
}

// NewSession 创建空会话。
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{id: id, now: time.Now, createdAt: now, updatedAt: now}
}

// RestoreSession 从快照恢复会话。
func RestoreSession(snap *model.SessionSnapshot) *Session {
	s := NewSession(snap.ID)
	s.history = cloneTurns(snap.History)
	s.stats = snap.Stats
	if !snap.CreatedAt.IsZero() {
		s.createdAt = snap.CreatedAt
	}
	if !snap.UpdatedAt.IsZero() {
		s.updatedAt = snap.UpdatedAt
	}
	return s
}

// ID 返回会话 ID。
func (s *Session) ID() string {
	return s.id
}

// UpdatedAt 最近一次变更的时间。
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Record 追加一轮对话；仅成功结果计入统计。
func (s *Session) Record(question string, result *model.QueryResult) {
	if result == nil {
		return
	}
	turn := model.ConversationTurn{
		Question:  question,
		Result:    cloneResult(*result),
		Timestamp: s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, turn)
	s.updatedAt = turn.Timestamp
	if result.Failed() {
		return
	}
	s.stats.QueryCount++
	s.stats.TotalLatencySeconds += result.LatencySeconds
	s.stats.TotalAnswerChars += int64(utf8.RuneCountInString(result.Answer))
}

// Reset 同时清空历史与统计。
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.stats = model.SystemStats{}
	s.updatedAt = s.now().UTC()
}

// AverageLatency 平均延迟（秒），无记录时为 0。
func (s *Session) AverageLatency() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return averageLatency(s.stats)
}

// AverageAnswerLength 平均回答长度（字符），无记录时为 0。
func (s *Session) AverageAnswerLength() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return averageAnswerLength(s.stats)
}

// Stats 返回累计统计。
func (s *Session) Stats() model.SystemStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// View 返回带平均值的统计视图。
func (s *Session) View() model.StatsView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.StatsView{
		SystemStats:           s.stats,
		AverageLatencySeconds: averageLatency(s.stats),
		AverageAnswerChars:    averageAnswerLength(s.stats),
	}
}

// History 返回历史副本。
func (s *Session) History() []model.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTurns(s.history)
}

// Snapshot 返回可持久化的快照。
func (s *Session) Snapshot() *model.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &model.SessionSnapshot{
		ID:        s.id,
		History:   cloneTurns(s.history),
		Stats:     s.stats,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

func averageLatency(st model.SystemStats) float64 {
	if st.QueryCount == 0 {
		return 0
	}
	return st.TotalLatencySeconds / float64(st.QueryCount)
}

func averageAnswerLength(st model.SystemStats) float64 {
	if st.QueryCount == 0 {
		return 0
	}
	return float64(st.TotalAnswerChars) / float64(st.QueryCount)
}

func cloneResult(r model.QueryResult) model.QueryResult {
	r.Citations = append([]string{}, r.Citations...)
	return r
}

func cloneTurns(turns []model.ConversationTurn) []model.ConversationTurn {
	out := make([]model.ConversationTurn, len(turns))
	for i, t := range turns {
		t.Result = cloneResult(t.Result)
		out[i] = t
	}
	return out
}
