package biz

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakusa/enterprise-rag/internal/model"
)

func okResult(answer string, latency float64, citations ...string) *model.QueryResult {
	if citations == nil {
		citations = []string{}
	}
	return &model.QueryResult{Answer: answer, Citations: citations, LatencySeconds: latency}
}

func TestSession_Averages(t *testing.T) {
	s := NewSession("s1")

	assert.Zero(t, s.AverageLatency())
	assert.Zero(t, s.AverageAnswerLength())

	s.Record("q1", okResult("abcd", 1.0))
	s.Record("q2", okResult("ab", 3.0))

	assert.InDelta(t, 2.0, s.AverageLatency(), 1e-9)
	assert.InDelta(t, 3.0, s.AverageAnswerLength(), 1e-9)

	view := s.View()
	assert.Equal(t, int64(2), view.QueryCount)
	assert.InDelta(t, 4.0, view.TotalLatencySeconds, 1e-9)
	assert.Equal(t, int64(6), view.TotalAnswerChars)
	assert.InDelta(t, 2.0, view.AverageLatencySeconds, 1e-9)
}

func TestSession_FailedResultsOnlyInHistory(t *testing.T) {
	s := NewSession("s1")

	s.Record("q1", okResult("yes", 2.0))
	s.Record("q2", &model.QueryResult{Citations: []string{}, ErrorKind: model.ErrorKindServiceFailure, ErrorMessage: "throttled", LatencySeconds: 9})
	s.Record("", &model.QueryResult{Citations: []string{}, ErrorKind: model.ErrorKindInvalidQuestion})

	assert.Len(t, s.History(), 3)
	assert.Equal(t, int64(1), s.Stats().QueryCount)
	assert.InDelta(t, 2.0, s.AverageLatency(), 1e-9)
}

func TestSession_AnswerLengthCountsCharacters(t *testing.T) {
	s := NewSession("s1")

	s.Record("年假", okResult("二十天", 1))

	assert.Equal(t, int64(3), s.Stats().TotalAnswerChars)
}

func TestSession_NilResultIgnored(t *testing.T) {
	s := NewSession("s1")
	s.Record("q", nil)
	assert.Empty(t, s.History())
}

func TestSession_Reset(t *testing.T) {
	s := NewSession("s1")
	s.Record("q1", okResult("a", 1))
	s.Record("q2", okResult("b", 1))

	s.Reset()

	assert.Empty(t, s.History())
	assert.Equal(t, model.SystemStats{}, s.Stats())
	assert.Zero(t, s.AverageLatency())
}

func TestSession_ResetIsAtomicUnderConcurrency(t *testing.T) {
	s := NewSession("s1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Record("q", okResult("answer", 0.5))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				s.Reset()
			}
		}()
	}
	wg.Wait()

	// 历史中的成功记录数必须与统计一致
	snap := s.Snapshot()
	assert.Equal(t, int64(len(snap.History)), snap.Stats.QueryCount)
	assert.InDelta(t, 0.5*float64(len(snap.History)), snap.Stats.TotalLatencySeconds, 1e-6)
}

func TestSession_HistoryIsACopy(t *testing.T) {
	s := NewSession("s1")
	s.Record("q", okResult("a", 1, "x.md"))

	h := s.History()
	h[0].Question = "changed"
	h[0].Result.Citations[0] = "changed.md"

	again := s.History()
	assert.Equal(t, "q", again[0].Question)
	assert.Equal(t, []string{"x.md"}, again[0].Result.Citations)
}

func TestSession_RecordCopiesResult(t *testing.T) {
	s := NewSession("s1")
	res := okResult("a", 1, "x.md")
	s.Record("q", res)

	res.Citations[0] = "mutated.md"

	assert.Equal(t, []string{"x.md"}, s.History()[0].Result.Citations)
}

func TestSession_SnapshotRoundTrip(t *testing.T) {
	s := NewSession("s1")
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	s.Record("q1", okResult("abc", 1.5, "a.md"))

	snap := s.Snapshot()
	restored := RestoreSession(snap)

	assert.Equal(t, "s1", restored.ID())
	assert.Equal(t, s.History(), restored.History())
	assert.Equal(t, s.Stats(), restored.Stats())
	require.Len(t, restored.History(), 1)
	assert.Equal(t, fixed, restored.History()[0].Timestamp)
	assert.Equal(t, fixed, restored.Snapshot().UpdatedAt)
}
