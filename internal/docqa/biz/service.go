package biz

import (
	"context"

	"github.com/asakusa/enterprise-rag/internal/docqa/metrics"
	"github.com/asakusa/enterprise-rag/internal/docqa/store"
	"github.com/asakusa/enterprise-rag/internal/model"
)

// Core 定义前端（CLI、批处理、Web）使用的服务接口。
type Core interface {
	// Provision 从文档目录部署知识库与 Agent。
	Provision(ctx context.Context, root string) (*model.Deployment, error)
	// Attach 连接到已按名称部署的知识库与 Agent。
	Attach(ctx context.Context) (*model.Deployment, error)
	// Status 返回部署状态。
	Status() ProvisionStatus
	// SubmitQuery 提交问题，不修改任何会话。
	SubmitQuery(ctx context.Context, question string) *model.QueryResult
	// Ask 提交问题并记录到会话。
	Ask(ctx context.Context, sessionID, question string) (*model.QueryResult, error)
	// Teardown 回收部署。
	Teardown(ctx context.Context, opts ...TeardownOption) []model.TeardownOutcome
	// Sessions 返回会话注册表。
	Sessions() *SessionManager
}

// DocQAService 组合部署、问答、回收与会话组件。
type DocQAService struct {
	prov     *Provisioner
	orch     *Orchestrator
	teardown *TeardownController
	sessions *SessionManager
}

var _ Core = (*DocQAService)(nil)

// NewDocQAService 创建服务实例。sessionStore 可以为 nil。
func NewDocQAService(
	svc store.KnowledgeService,
	objects store.ObjectStore,
	sessionStore store.SessionStore,
	config ProvisionConfig,
	m *metrics.DocQAMetrics,
) *DocQAService {
	if m == nil {
		m = metrics.Default()
	}
	prov := NewProvisioner(svc, objects, config, m)
	return &DocQAService{
		prov:     prov,
		orch:     NewOrchestrator(svc, prov, config.ModelID, m),
		teardown: NewTeardownController(svc, objects, prov, m),
		sessions: NewSessionManager(sessionStore),
	}
}

// Provision 从文档目录部署知识库与 Agent。
func (s *DocQAService) Provision(ctx context.Context, root string) (*model.Deployment, error) {
	return s.prov.Provision(ctx, root)
}

// Attach 连接到已部署的资源。
func (s *DocQAService) Attach(ctx context.Context) (*model.Deployment, error) {
	return s.prov.Attach(ctx)
}

// Status 返回部署状态。
func (s *DocQAService) Status() ProvisionStatus {
	return s.prov.Status()
}

// SubmitQuery 提交问题。
func (s *DocQAService) SubmitQuery(ctx context.Context, question string) *model.QueryResult {
	return s.orch.SubmitQuery(ctx, question)
}

// Ask 提交问题并记录到会话。会话不存在时不发起远程调用。
func (s *DocQAService) Ask(ctx context.Context, sessionID, question string) (*model.QueryResult, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	result := s.orch.SubmitQuery(ctx, question)
	if err := s.sessions.Record(ctx, sessionID, question, result); err != nil {
		return result, err
	}
	return result, nil
}

// Teardown 回收部署。
func (s *DocQAService) Teardown(ctx context.Context, opts ...TeardownOption) []model.TeardownOutcome {
	return s.teardown.Teardown(ctx, opts...)
}

// Sessions 返回会话注册表。
func (s *DocQAService) Sessions() *SessionManager {
	return s.sessions
}
