package biz

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/asakusa/enterprise-rag/internal/docqa/metrics"
	"github.com/asakusa/enterprise-rag/internal/docqa/store"
	"github.com/asakusa/enterprise-rag/internal/model"
	"github.com/asakusa/enterprise-rag/pkg/errors"
	"github.com/asakusa/enterprise-rag/pkg/infra/resilience"
	"github.com/asakusa/enterprise-rag/pkg/infra/tracing"
)

// State 部署状态。
type State string

const (
	StateUninitialized State = "Uninitialized"
	StateStaging       State = "Staging"
	StateIndexCreating State = "IndexCreating"
	StateSyncing       State = "Syncing"
	StateAgentCreating State = "AgentCreating"
	StateReady         State = "Ready"
	StateFailed        State = "Failed"
)

// ProvisionError 部署在某一步失败。
type ProvisionError struct {
	Step State
	Err  error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provisioning failed at %s: %v", e.Step, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// ProvisionConfig 部署配置。
type ProvisionConfig struct {
	Staging          StagerConfig
	IndexName        string
	IndexDescription string
	AgentName        string
	ModelID          string
	Agent            AgentTemplate
	Sync             resilience.PollConfig
}

// ProvisionStatus 状态机快照。
type ProvisionStatus struct {
	State      State                `json:"state"`
	FailedStep State                `json:"failed_step,omitempty"`
	LastError  string               `json:"last_error,omitempty"`
	IndexName  string               `json:"index_name"`
	AgentName  string               `json:"agent_name"`
	Deployment *model.Deployment    `json:"deployment,omitempty"`
	Staging    *model.StagingReport `json:"staging,omitempty"`
}

// Provisioner 部署状态机。
//
// runMu 在整个 Provision/Attach/Teardown 过程中持有，保证进程内单写者；
// 跨进程的同名资源并发创建不在保护范围内。
type Provisioner struct {
	svc     store.KnowledgeService
	stager  *Stager
	config  ProvisionConfig
	metrics *metrics.DocQAMetrics

	runMu sync.Mutex

	mu         sync.RWMutex
	state      State
	failedStep State
	lastErr    error
	index      *model.KnowledgeIndex
	agent      *model.Agent
	staging    *model.StagingReport
}

// NewProvisioner 创建部署状态机。
func NewProvisioner(svc store.KnowledgeService, objects store.ObjectStore, config ProvisionConfig, m *metrics.DocQAMetrics) *Provisioner {
	if m == nil {
		m = metrics.Default()
	}
	config.Agent = config.Agent.withDefaults()
	if config.Sync == (resilience.PollConfig{}) {
		config.Sync = resilience.DefaultPollConfig()
	}

	return &Provisioner{
		svc:     svc,
		stager:  NewStager(objects, config.Staging, m),
		config:  config,
		metrics: m,
		state:   StateUninitialized,
	}
}

// Provision 从 root 目录部署知识库与 Agent。已就绪时直接返回现有标识。
func (p *Provisioner) Provision(ctx context.Context, root string) (_ *model.Deployment, err error) {
	ctx, span := tracing.StartSpan(ctx, "docqa.provision",
		attribute.String("docqa.index_name", p.config.IndexName),
		attribute.String("docqa.agent_name", p.config.AgentName),
	)
	defer func() {
		tracing.RecordError(ctx, err)
		span.End()
	}()

	p.runMu.Lock()
	defer p.runMu.Unlock()

	if dep, ok := p.Deployment(); ok {
		logger.Infow("already provisioned", "index_id", dep.IndexID, "agent_id", dep.AgentID)
		return &dep, nil
	}

	p.mu.Lock()
	p.failedStep = ""
	p.lastErr = nil
	p.mu.Unlock()

	p.transition(StateStaging)
	report, err := p.stager.Stage(ctx, root)
	p.mu.Lock()
	p.staging = report
	p.mu.Unlock()
	if err != nil {
		return nil, p.fail(StateStaging, err)
	}

	p.transition(StateIndexCreating)
	idx, err := p.ensureIndex(ctx)
	if err != nil {
		return nil, p.fail(StateIndexCreating, err)
	}

	p.transition(StateSyncing)
	if err := p.synchronize(ctx, idx); err != nil {
		return nil, p.fail(StateSyncing, err)
	}

	p.transition(StateAgentCreating)
	agent, err := p.ensureAgent(ctx, idx)
	if err != nil {
		return nil, p.fail(StateAgentCreating, err)
	}

	p.mu.Lock()
	p.index = idx
	p.agent = agent
	p.failedStep = ""
	p.lastErr = nil
	p.mu.Unlock()
	p.transition(StateReady)

	dep := deploymentOf(idx, agent)
	logger.Infow("provisioning complete",
		"index_id", dep.IndexID,
		"data_source_id", dep.DataSourceID,
		"agent_id", dep.AgentID,
		"agent_alias_id", dep.AgentAliasID,
	)
	return &dep, nil
}

func (p *Provisioner) ensureIndex(ctx context.Context) (*model.KnowledgeIndex, error) {
	idx, err := p.svc.FindIndex(ctx, p.config.IndexName)
	if err != nil {
		return nil, err
	}
	if idx != nil {
		logger.Infow("reusing existing knowledge index", "index_id", idx.ID, "name", p.config.IndexName)
		return idx, nil
	}

	idx, err = p.svc.CreateIndex(ctx, p.config.IndexName, p.config.IndexDescription, p.stager.Location())
	if err != nil {
		return nil, err
	}
	if idx.Status == "" {
		idx.Status = model.IndexCreating
	}
	return idx, nil
}

func (p *Provisioner) synchronize(ctx context.Context, idx *model.KnowledgeIndex) error {
	jobID, err := p.svc.Synchronize(ctx, idx.ID, idx.DataSourceID)
	if err != nil {
		return err
	}
	idx.Status = model.IndexSyncing
	logger.Infow("synchronization started", "index_id", idx.ID, "job_id", jobID)

	if err := waitForSync(ctx, p.svc, idx, jobID, p.config.Sync, p.metrics); err != nil {
		idx.Status = model.IndexFailed
		return err
	}
	idx.Status = model.IndexSynced
	return nil
}

func (p *Provisioner) ensureAgent(ctx context.Context, idx *model.KnowledgeIndex) (*model.Agent, error) {
	if idx.Status != model.IndexSynced {
		return nil, errors.ErrProvisioningFailed.WithMessagef("index %s is %s, not Synced", idx.ID, idx.Status)
	}

	agent, err := p.svc.FindAgent(ctx, p.config.AgentName)
	if err != nil {
		return nil, err
	}
	if agent != nil {
		if agent.BoundIndexID != "" && agent.BoundIndexID != idx.ID {
			logger.Warnw("existing agent is bound to a different index",
				"agent_id", agent.ID,
				"bound_index_id", agent.BoundIndexID,
				"index_id", idx.ID,
			)
		}
		logger.Infow("reusing existing agent", "agent_id", agent.ID, "name", p.config.AgentName)
		return agent, nil
	}

	tmpl := p.config.Agent
	return p.svc.CreateAgent(ctx, store.AgentSpec{
		Name:         p.config.AgentName,
		Role:         tmpl.Role,
		Goal:         tmpl.Goal,
		Instructions: tmpl.Render(),
		IndexID:      idx.ID,
		ModelID:      p.config.ModelID,
	})
}

// Attach 按名称查找已部署的索引与 Agent 并直接进入 Ready，不做任何创建。
func (p *Provisioner) Attach(ctx context.Context) (*model.Deployment, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if dep, ok := p.Deployment(); ok {
		return &dep, nil
	}

	idx, err := p.svc.FindIndex(ctx, p.config.IndexName)
	if err != nil {
		return nil, errors.ErrServiceFailure.WithCause(err)
	}
	if idx == nil {
		return nil, errors.ErrNotReady.WithMessagef("knowledge index %q not found", p.config.IndexName)
	}
	if idx.Status != "" && idx.Status != model.IndexSynced {
		return nil, errors.ErrNotReady.WithMessagef("knowledge index %q is %s", p.config.IndexName, idx.Status)
	}
	agent, err := p.svc.FindAgent(ctx, p.config.AgentName)
	if err != nil {
		return nil, errors.ErrServiceFailure.WithCause(err)
	}
	if agent == nil {
		return nil, errors.ErrNotReady.WithMessagef("agent %q not found", p.config.AgentName)
	}

	idx.Status = model.IndexSynced
	p.mu.Lock()
	p.index = idx
	p.agent = agent
	p.failedStep = ""
	p.lastErr = nil
	p.mu.Unlock()
	p.transition(StateReady)

	dep := deploymentOf(idx, agent)
	logger.Infow("attached to existing deployment", "index_id", dep.IndexID, "agent_id", dep.AgentID)
	return &dep, nil
}

// IsReady 是否已就绪。
func (p *Provisioner) IsReady() bool {
	_, ok := p.Deployment()
	return ok
}

// Deployment 返回就绪部署的标识。
func (p *Provisioner) Deployment() (model.Deployment, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state != StateReady || p.index == nil || p.agent == nil {
		return model.Deployment{}, false
	}
	return deploymentOf(p.index, p.agent), true
}

// State 返回当前状态。
func (p *Provisioner) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Status 返回状态快照。
func (p *Provisioner) Status() ProvisionStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := ProvisionStatus{
		State:      p.state,
		FailedStep: p.failedStep,
		IndexName:  p.config.IndexName,
		AgentName:  p.config.AgentName,
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	if p.state == StateReady && p.index != nil && p.agent != nil {
		dep := deploymentOf(p.index, p.agent)
		st.Deployment = &dep
	}
	if p.staging != nil {
		rep := *p.staging
		rep.Failed = append([]string(nil), p.staging.Failed...)
		st.Staging = &rep
	}
	return st
}

// recorded 返回状态机记录的资源，供回收使用。
func (p *Provisioner) recorded() (*model.KnowledgeIndex, *model.Agent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index, p.agent
}

// reset 回到 Uninitialized 并清空记录。调用方须持有 runMu。
func (p *Provisioner) reset() {
	p.mu.Lock()
	p.index = nil
	p.agent = nil
	p.staging = nil
	p.failedStep = ""
	p.lastErr = nil
	p.mu.Unlock()
	p.transition(StateUninitialized)
}

func (p *Provisioner) transition(to State) {
	p.mu.Lock()
	from := p.state
	p.state = to
	p.mu.Unlock()

	p.metrics.RecordTransition(string(to))
	logger.Debugw("provisioning state changed", "from", string(from), "to", string(to))
}

// fail 进入 Failed 并记录失败步骤。错误链中没有错误码时包装为 ErrProvisioningFailed。
func (p *Provisioner) fail(step State, err error) error {
	var errno *errors.Errno
	if !stderrors.As(err, &errno) {
		err = errors.ErrProvisioningFailed.WithCause(err)
	}
	perr := &ProvisionError{Step: step, Err: err}

	p.mu.Lock()
	p.failedStep = step
	p.lastErr = perr
	p.mu.Unlock()
	p.transition(StateFailed)

	logger.Errorw("provisioning failed", "step", string(step), "error", err.Error())
	return perr
}

func deploymentOf(idx *model.KnowledgeIndex, agent *model.Agent) model.Deployment {
	return model.Deployment{
		IndexID:      idx.ID,
		DataSourceID: idx.DataSourceID,
		AgentID:      agent.ID,
		AgentAliasID: agent.AliasID,
	}
}
