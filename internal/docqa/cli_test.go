package docqa

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakusa/enterprise-rag/internal/docqa/biz"
	"github.com/asakusa/enterprise-rag/internal/model"
	"github.com/asakusa/enterprise-rag/pkg/errors"
)

// scriptedCore 按顺序返回预设结果的 biz.Core 替身。
type scriptedCore struct {
	attachErr    error
	provisionErr error
	staging      *model.StagingReport
	results      []*model.QueryResult
	questions    []string
	outcomes     []model.TeardownOutcome
	purge        bool
	sessions     *biz.SessionManager
}

func newScriptedCore(results ...*model.QueryResult) *scriptedCore {
	return &scriptedCore{results: results, sessions: biz.NewSessionManager(nil)}
}

func (c *scriptedCore) Provision(ctx context.Context, root string) (*model.Deployment, error) {
	if c.provisionErr != nil {
		return nil, c.provisionErr
	}
	return &model.Deployment{IndexID: "IDX1", DataSourceID: "DS1", AgentID: "AG1", AgentAliasID: "AL1"}, nil
}

func (c *scriptedCore) Attach(ctx context.Context) (*model.Deployment, error) {
	if c.attachErr != nil {
		return nil, c.attachErr
	}
	return &model.Deployment{IndexID: "IDX1", AgentID: "AG1", AgentAliasID: "AL1"}, nil
}

func (c *scriptedCore) Status() biz.ProvisionStatus {
	return biz.ProvisionStatus{
		State:     biz.StateReady,
		IndexName: "enterprise-document-kb",
		AgentName: "enterprise_document_assistant",
		Staging:   c.staging,
	}
}

func (c *scriptedCore) SubmitQuery(ctx context.Context, question string) *model.QueryResult {
	c.questions = append(c.questions, question)
	res := c.results[0]
	if len(c.results) > 1 {
		c.results = c.results[1:]
	}
	return res
}

func (c *scriptedCore) Ask(ctx context.Context, sessionID, question string) (*model.QueryResult, error) {
	if _, err := c.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	res := c.SubmitQuery(ctx, question)
	return res, c.sessions.Record(ctx, sessionID, question, res)
}

func (c *scriptedCore) Teardown(ctx context.Context, opts ...biz.TeardownOption) []model.TeardownOutcome {
	o := biz.TeardownOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	c.purge = o.PurgeStaged
	return c.outcomes
}

func (c *scriptedCore) Sessions() *biz.SessionManager {
	return c.sessions
}

func TestRunProvision(t *testing.T) {
	core := newScriptedCore()
	core.staging = &model.StagingReport{Eligible: 3, Uploaded: 2, Skipped: 1, Failed: []string{"broken.pdf"}}

	var out bytes.Buffer
	require.NoError(t, runProvision(context.Background(), core, "./documents", &out))
	assert.Contains(t, out.String(), "Staged 2/3 documents (1 skipped)")
	assert.Contains(t, out.String(), "failed: broken.pdf")
	assert.Contains(t, out.String(), "enterprise-document-kb (IDX1)")
	assert.Contains(t, out.String(), "AG1, alias AL1")

	t.Run("failure", func(t *testing.T) {
		core := newScriptedCore()
		core.provisionErr = errors.ErrNoDocuments
		var out bytes.Buffer
		err := runProvision(context.Background(), core, "./documents", &out)
		assert.True(t, errors.IsCode(err, errors.ErrNoDocuments.Code))
		assert.NotContains(t, out.String(), "Ready.")
	})
}

func TestRunQuery(t *testing.T) {
	core := newScriptedCore(&model.QueryResult{
		Answer:         "Employees get 20 days of annual leave.",
		Citations:      []string{"hr_policy.md"},
		LatencySeconds: 1.25,
	})

	var out bytes.Buffer
	require.NoError(t, runQuery(context.Background(), core, "How many vacation days?", &out))
	assert.Equal(t, []string{"How many vacation days?"}, core.questions)
	assert.Contains(t, out.String(), "20 days")
	assert.Contains(t, out.String(), "Sources: hr_policy.md")
	assert.Contains(t, out.String(), "Latency: 1.25s")
}

func TestRunQueryNotProvisioned(t *testing.T) {
	core := newScriptedCore(&model.QueryResult{Answer: "unused"})
	core.attachErr = errors.ErrNotReady

	err := runQuery(context.Background(), core, "anything", &bytes.Buffer{})
	assert.True(t, errors.IsCode(err, errors.ErrNotReady.Code))
	assert.Empty(t, core.questions)
}

func TestRunQueryFailedResult(t *testing.T) {
	tests := []struct {
		kind model.ErrorKind
		want *errors.Errno
	}{
		{model.ErrorKindServiceFailure, errors.ErrServiceFailure},
		{model.ErrorKindInvalidQuestion, errors.ErrInvalidQuestion},
		{model.ErrorKindNotReady, errors.ErrNotReady},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			core := newScriptedCore(&model.QueryResult{ErrorKind: tt.kind, ErrorMessage: "boom"})
			var out bytes.Buffer
			err := runQuery(context.Background(), core, "q", &out)
			assert.True(t, errors.IsCode(err, tt.want.Code))
			assert.Contains(t, out.String(), "Error ("+string(tt.kind)+"): boom")
		})
	}
}

func TestRunBatch(t *testing.T) {
	core := newScriptedCore(
		&model.QueryResult{Answer: "Twenty days", LatencySeconds: 1.0, Citations: []string{"hr_policy.md"}},
		&model.QueryResult{ErrorKind: model.ErrorKindServiceFailure, ErrorMessage: "throttled"},
		&model.QueryResult{Answer: "Yes", LatencySeconds: 3.0},
	)

	var out bytes.Buffer
	err := runBatch(context.Background(), core, []string{"q1", "q2", "q3"}, &out)
	require.NoError(t, err)

	assert.Equal(t, []string{"q1", "q2", "q3"}, core.questions)
	assert.Equal(t, 1, core.sessions.Len())
	assert.Contains(t, out.String(), "[2/3] q2")
	assert.Contains(t, out.String(), "Questions: 3 (failed 1)")
	assert.Contains(t, out.String(), "Average latency: 2.00s")
	assert.Contains(t, out.String(), "Average answer length: 7 chars")
}

func TestRunBatchEmpty(t *testing.T) {
	err := runBatch(context.Background(), newScriptedCore(), nil, &bytes.Buffer{})
	assert.True(t, errors.IsCode(err, errors.ErrInvalidParam.Code))
}

func TestRunTeardown(t *testing.T) {
	core := newScriptedCore()
	core.outcomes = []model.TeardownOutcome{
		{Resource: biz.ResourceAgent, Succeeded: true},
		{Resource: biz.ResourceIndex, Skipped: true, Succeeded: true},
	}

	var out bytes.Buffer
	require.NoError(t, runTeardown(context.Background(), core, true, &out))
	assert.True(t, core.purge)
	assert.Contains(t, out.String(), "agent    deleted")
	assert.Contains(t, out.String(), "index    skipped")

	t.Run("partial", func(t *testing.T) {
		core := newScriptedCore()
		core.outcomes = []model.TeardownOutcome{
			{Resource: biz.ResourceAgent, Succeeded: true},
			{Resource: biz.ResourceIndex, ErrorMessage: "access denied"},
		}
		var out bytes.Buffer
		err := runTeardown(context.Background(), core, false, &out)
		assert.True(t, errors.IsCode(err, errors.ErrTeardownPartial.Code))
		assert.Contains(t, out.String(), "index    FAILED: access denied")
		assert.False(t, core.purge)
	})
}

func TestReadQuestions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.txt")
	content := "# onboarding\nHow many vacation days?\n\n  How do I reset my password?  \n#skip\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	qs, err := readQuestions(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"How many vacation days?", "How do I reset my password?"}, qs)

	_, err = readQuestions("")
	assert.True(t, errors.IsCode(err, errors.ErrInvalidParam.Code))

	_, err = readQuestions(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestRunInteractive(t *testing.T) {
	core := newScriptedCore(
		&model.QueryResult{Answer: "Up to 3 days a week.", Citations: []string{"remote_work.md"}, LatencySeconds: 2},
		&model.QueryResult{Citations: []string{}, ErrorKind: model.ErrorKindServiceFailure, ErrorMessage: "throttled"},
		&model.QueryResult{Answer: "Ask IT.", LatencySeconds: 1},
	)
	in := strings.NewReader("What is the remote work policy?\n\n  \nstats\nHow do I set up VPN?\nreset\nWho approves laptops?\nQUIT\nnever asked\n")

	var out bytes.Buffer
	require.NoError(t, runInteractive(context.Background(), core, in, &out))

	assert.Equal(t, []string{
		"What is the remote work policy?",
		"How do I set up VPN?",
		"Who approves laptops?",
	}, core.questions)
	text := out.String()
	assert.Contains(t, text, "Sources: remote_work.md")
	assert.Contains(t, text, "Questions: 1\nAverage latency: 2.00s")
	assert.Contains(t, text, "Error (ServiceFailure): throttled")
	assert.Contains(t, text, "Conversation cleared.")
	// 重置后只统计最后一个问题
	assert.True(t, strings.HasSuffix(text, "Average latency: 1.00s\nAverage answer length: 7 chars\n"), text)
}

func TestRunInteractive_EndOfInput(t *testing.T) {
	core := newScriptedCore(&model.QueryResult{Answer: "ok", LatencySeconds: 1})

	var out bytes.Buffer
	require.NoError(t, runInteractive(context.Background(), core, strings.NewReader("q1"), &out))
	assert.Equal(t, []string{"q1"}, core.questions)
	assert.Contains(t, out.String(), "Average answer length: 2 chars")

	core = newScriptedCore()
	core.attachErr = errors.ErrNotReady
	err := runInteractive(context.Background(), core, strings.NewReader("q1"), &out)
	assert.True(t, errors.IsCode(err, errors.ErrNotReady.Code))
}
