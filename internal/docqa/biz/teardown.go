package biz

import (
	"context"

	"github.com/kart-io/logger"

	"github.com/asakusa/enterprise-rag/internal/docqa/metrics"
	"github.com/asakusa/enterprise-rag/internal/docqa/store"
	"github.com/asakusa/enterprise-rag/internal/model"
	"github.com/asakusa/enterprise-rag/pkg/errors"
)

// 回收结果中的资源名。
const (
	ResourceAgent   = "agent"
	ResourceIndex   = "index"
	ResourceStorage = "storage"
)

// TeardownOptions 回收选项。
type TeardownOptions struct {
	// PurgeStaged 同时删除暂存前缀下的对象，存储桶本身始终保留。
	PurgeStaged bool
}

// TeardownOption 修改回收选项。
type TeardownOption func(*TeardownOptions)

// WithPurgeStaged 删除暂存对象。
func WithPurgeStaged(purge bool) TeardownOption {
	return func(o *TeardownOptions) { o.PurgeStaged = purge }
}

// TeardownController 按 Agent -> 索引 -> 暂存对象 的顺序回收资源。
type TeardownController struct {
	svc     store.KnowledgeService
	objects store.ObjectStore
	prov    *Provisioner
	metrics *metrics.DocQAMetrics
}

// NewTeardownController 创建回收控制器。
func NewTeardownController(svc store.KnowledgeService, objects store.ObjectStore, prov *Provisioner, m *metrics.DocQAMetrics) *TeardownController {
	if m == nil {
		m = metrics.Default()
	}
	return &TeardownController{svc: svc, objects: objects, prov: prov, metrics: m}
}

// Teardown 回收部署。每个资源独立尝试，失败不影响后续资源；
// 结束后状态机总是回到 Uninitialized。
// 部署流程正在进行时不等待，所有资源直接报告为未删除，状态保持不变。
func (t *TeardownController) Teardown(ctx context.Context, opts ...TeardownOption) []model.TeardownOutcome {
	o := TeardownOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	if !t.prov.runMu.TryLock() {
		return t.busy(o)
	}
	defer t.prov.runMu.Unlock()
	defer t.prov.reset()

	idx, agent := t.prov.recorded()
	cfg := t.prov.config

	outcomes := []model.TeardownOutcome{
		t.remove(ctx, ResourceAgent, agent != nil,
			func(ctx context.Context) (bool, error) {
				a, err := t.svc.FindAgent(ctx, cfg.AgentName)
				return a != nil, err
			},
			func(ctx context.Context) error { return t.svc.DeleteAgent(ctx, cfg.AgentName) },
		),
		t.remove(ctx, ResourceIndex, idx != nil,
			func(ctx context.Context) (bool, error) {
				i, err := t.svc.FindIndex(ctx, cfg.IndexName)
				return i != nil, err
			},
			func(ctx context.Context) error { return t.svc.DeleteIndex(ctx, cfg.IndexName) },
		),
	}
	if o.PurgeStaged {
		outcomes = append(outcomes, t.purge(ctx))
	}

	failed := 0
	for _, out := range outcomes {
		if !out.Succeeded {
			failed++
		}
	}
	if failed > 0 {
		logger.Warnw("teardown finished with failures",
			"code", errors.ErrTeardownPartial.Code,
			"failed", failed,
			"total", len(outcomes),
		)
	} else {
		logger.Infow("teardown finished", "resources", len(outcomes))
	}
	return outcomes
}

func (t *TeardownController) busy(o TeardownOptions) []model.TeardownOutcome {
	msg := errors.ErrProvisioningInProgress.Error()
	resources := []string{ResourceAgent, ResourceIndex}
	if o.PurgeStaged {
		resources = append(resources, ResourceStorage)
	}
	outcomes := make([]model.TeardownOutcome, 0, len(resources))
	for _, r := range resources {
		outcomes = append(outcomes, model.TeardownOutcome{Resource: r, ErrorMessage: msg})
	}
	logger.Warnw("teardown refused while provisioning",
		"code", errors.ErrProvisioningInProgress.Code,
		"state", string(t.prov.State()),
	)
	return outcomes
}

// remove 删除单个资源。未记录时按名称查找，查找出错也视为存在以便暴露错误。
func (t *TeardownController) remove(
	ctx context.Context,
	resource string,
	recorded bool,
	lookup func(context.Context) (bool, error),
	del func(context.Context) error,
) (out model.TeardownOutcome) {
	out.Resource = resource
	defer func() {
		if r := recover(); r != nil {
			out = model.TeardownOutcome{Resource: resource, ErrorMessage: "panic during delete"}
			logger.Errorw("teardown panicked", "resource", resource, "panic", r)
		}
		if !out.Skipped {
			t.metrics.RecordTeardown(resource, out.Succeeded)
		}
	}()

	present := recorded
	if !present {
		found, err := lookup(ctx)
		if err != nil {
			logger.Warnw("lookup failed, attempting delete anyway", "resource", resource, "error", err.Error())
			found = true
		}
		present = found
	}
	if !present {
		logger.Infow("nothing to delete", "resource", resource)
		out.Succeeded = true
		out.Skipped = true
		return out
	}

	if err := del(ctx); err != nil {
		logger.Errorw("failed to delete resource", "resource", resource, "error", err.Error())
		out.ErrorMessage = err.Error()
		return out
	}
	logger.Infow("resource deleted", "resource", resource)
	out.Succeeded = true
	return out
}

func (t *TeardownController) purge(ctx context.Context) model.TeardownOutcome {
	cfg := t.prov.config.Staging
	prefix := t.prov.stager.remoteKey("")
	if prefix == "" {
		logger.Warnw("refusing to purge bucket without a staging prefix", "bucket", cfg.Bucket)
		return model.TeardownOutcome{Resource: ResourceStorage, ErrorMessage: "staging prefix is empty; bucket left untouched"}
	}
	n, err := t.objects.RemovePrefix(ctx, cfg.Bucket, prefix)
	t.metrics.RecordTeardown(ResourceStorage, err == nil)
	if err != nil {
		logger.Errorw("failed to purge staged documents", "bucket", cfg.Bucket, "prefix", prefix, "removed", n, "error", err.Error())
		return model.TeardownOutcome{Resource: ResourceStorage, ErrorMessage: err.Error()}
	}
	logger.Infow("staged documents purged", "bucket", cfg.Bucket, "prefix", prefix, "removed", n)
	return model.TeardownOutcome{Resource: ResourceStorage, Succeeded: true}
}
