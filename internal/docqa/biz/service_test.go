package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakusa/enterprise-rag/internal/docqa/metrics"
	"github.com/asakusa/enterprise-rag/internal/model"
	"github.com/asakusa/enterprise-rag/pkg/errors"
)

func newTestService(kb *fakeKnowledge) *DocQAService {
	return NewDocQAService(kb, newFakeObjects(), newFakeSessionStore(), testProvisionConfig(), metrics.New("test"))
}

func TestDocQAService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	kb := newFakeKnowledge()
	svc := newTestService(kb)

	sess, err := svc.Sessions().Create(ctx)
	require.NoError(t, err)

	// 部署前提问
	res, err := svc.Ask(ctx, sess.ID(), "What is the leave policy?")
	require.NoError(t, err)
	assert.Equal(t, model.ErrorKindNotReady, res.ErrorKind)
	assert.Equal(t, 0, kb.count("RetrieveAndGenerate"))

	_, err = svc.Provision(ctx, writeDocs(t, "hr_policy.md"))
	require.NoError(t, err)
	assert.Equal(t, StateReady, svc.Status().State)

	res, err = svc.Ask(ctx, sess.ID(), "What is the leave policy?")
	require.NoError(t, err)
	require.False(t, res.Failed())
	assert.Equal(t, []string{"hr_policy.md"}, res.Citations)

	assert.Len(t, sess.History(), 2)
	assert.Equal(t, int64(1), sess.Stats().QueryCount)

	outcomes := svc.Teardown(ctx)
	for _, o := range outcomes {
		assert.True(t, o.Succeeded, o.Resource)
	}
	assert.Equal(t, StateUninitialized, svc.Status().State)

	res = svc.SubmitQuery(ctx, "still there?")
	assert.Equal(t, model.ErrorKindNotReady, res.ErrorKind)
	assert.Equal(t, 1, kb.count("RetrieveAndGenerate"))
}

func TestDocQAService_AskUnknownSession(t *testing.T) {
	kb := newFakeKnowledge()
	svc := newTestService(kb)
	_, err := svc.Provision(context.Background(), writeDocs(t, "a.md"))
	require.NoError(t, err)

	res, err := svc.Ask(context.Background(), "nope", "question")

	assert.Nil(t, res)
	assert.True(t, errors.IsCode(err, errors.ErrSessionNotFound.Code))
	assert.Equal(t, 0, kb.count("RetrieveAndGenerate"))
}

func TestDocQAService_SubmitQueryLeavesSessionsAlone(t *testing.T) {
	ctx := context.Background()
	kb := newFakeKnowledge()
	svc := newTestService(kb)
	_, err := svc.Attach(ctx)
	require.Error(t, err)

	kb.existingIndex = &model.KnowledgeIndex{ID: "IDX1", DataSourceID: "DS1"}
	kb.existingAgent = &model.Agent{ID: "AG1", AliasID: "AL1"}
	_, err = svc.Attach(ctx)
	require.NoError(t, err)

	sess, err := svc.Sessions().Create(ctx)
	require.NoError(t, err)

	res := svc.SubmitQuery(ctx, "question")
	require.False(t, res.Failed())
	assert.Empty(t, sess.History())
}
