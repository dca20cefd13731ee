package biz

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/asakusa/enterprise-rag/internal/docqa/metrics"
	"github.com/asakusa/enterprise-rag/internal/docqa/store"
	"github.com/asakusa/enterprise-rag/internal/model"
	"github.com/asakusa/enterprise-rag/pkg/errors"
	ctxlog "github.com/asakusa/enterprise-rag/pkg/infra/logger"
	"github.com/asakusa/enterprise-rag/pkg/infra/tracing"
)

// Readiness 提供已就绪部署的标识。
type Readiness interface {
	// Deployment 返回当前部署，未就绪时第二个返回值为 false。
	Deployment() (model.Deployment, bool)
}

// Orchestrator 问答编排器。不修改会话，不缓存结果。
type Orchestrator struct {
	svc     store.KnowledgeService
	ready   Readiness
	modelID string
	metrics *metrics.DocQAMetrics
	now     func() time.Time
}

// NewOrchestrator 创建问答编排器。
func NewOrchestrator(svc store.KnowledgeService, ready Readiness, modelID string, m *metrics.DocQAMetrics) *Orchestrator {
	if m == nil {
		m = metrics.Default()
	}
	return &Orchestrator{
		svc:     svc,
		ready:   ready,
		modelID: modelID,
		metrics: m,
		now:     time.Now,
	}
}

// SubmitQuery 提交问题。任何失败都以 QueryResult.ErrorKind 返回，不会 panic 或返回 error。
func (o *Orchestrator) SubmitQuery(ctx context.Context, question string) (result *model.QueryResult) {
	ctx, span := tracing.StartSpan(ctx, "docqa.query")
	defer func() {
		span.SetAttributes(
			attribute.String("docqa.error_kind", string(result.ErrorKind)),
			attribute.Int("docqa.citations", len(result.Citations)),
		)
		if result.Failed() {
			span.SetStatus(codes.Error, result.ErrorMessage)
		}
		span.End()
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		o.metrics.RecordQuery(string(model.ErrorKindInvalidQuestion), 0)
		return failedResult(model.ErrorKindInvalidQuestion, errors.ErrInvalidQuestion.MessageEN, 0)
	}

	dep, ok := o.ready.Deployment()
	if !ok {
		o.metrics.RecordQuery(string(model.ErrorKindNotReady), 0)
		return failedResult(model.ErrorKindNotReady, errors.ErrNotReady.MessageEN, 0)
	}

	start := o.now()
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Errorw("retrieve and generate panicked", "panic", r)
			result = failedResult(model.ErrorKindServiceFailure, errors.ErrServiceFailure.MessageEN, o.now().Sub(start))
			o.metrics.RecordQuery(string(model.ErrorKindServiceFailure), 0)
		}
	}()

	resp, err := o.svc.RetrieveAndGenerate(ctx, question, dep.IndexID, o.modelID)
	latency := o.now().Sub(start)
	if err == nil && (resp == nil || resp.Output == nil || strings.TrimSpace(resp.Output.Text) == "") {
		err = errors.ErrServiceFailure.WithMessage("response carried no generated answer")
	}
	if err != nil {
		ctxlog.FromContext(ctx).Warnw("query failed",
			"index_id", dep.IndexID,
			"latency", latency.String(),
			"error", err.Error(),
		)
		o.metrics.RecordQuery(string(model.ErrorKindServiceFailure), latency)
		return failedResult(model.ErrorKindServiceFailure, err.Error(), latency)
	}

	citations := ExtractCitations(resp)
	ctxlog.FromContext(ctx).Infow("query answered",
		"index_id", dep.IndexID,
		"latency", latency.String(),
		"answer_length", len([]rune(resp.Output.Text)),
		"citations", len(citations),
	)
	o.metrics.RecordQuery("", latency)

	return &model.QueryResult{
		Answer:         resp.Output.Text,
		Citations:      citations,
		LatencySeconds: latency.Seconds(),
	}
}

func failedResult(kind model.ErrorKind, msg string, latency time.Duration) *model.QueryResult {
	return &model.QueryResult{
		Citations:      []string{},
		LatencySeconds: latency.Seconds(),
		ErrorKind:      kind,
		ErrorMessage:   msg,
	}
}
