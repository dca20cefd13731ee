package store

import (
	"context"

	"github.com/asakusa/enterprise-rag/internal/model"
)

// GenerateResponse 检索生成调用的原始响应。任何字段都可能缺失。
type GenerateResponse struct {
	Output    *GenerateOutput  `json:"output,omitempty"`
	Citations []*CitationGroup `json:"citations,omitempty"`
}

// GenerateOutput 生成的回答。
type GenerateOutput struct {
	Text string `json:"text"`
}

// CitationGroup 一段回答对应的引用集合。
type CitationGroup struct {
	References []*Reference `json:"retrievedReferences,omitempty"`
}

// Reference 单条检索引用。
type Reference struct {
	Location *Location `json:"location,omitempty"`
}

// Location 引用的来源位置。
type Location struct {
	S3  *URIRef `json:"s3Location,omitempty"`
	Web *URIRef `json:"webLocation,omitempty"`
}

// URIRef 携带一个 URI。
type URIRef struct {
	URI string `json:"uri,omitempty"`
}

// URI 返回第一个非空的来源 URI，没有则返回空串。
func (l *Location) URI() string {
	if l == nil {
		return ""
	}
	if l.S3 != nil && l.S3.URI != "" {
		return l.S3.URI
	}
	if l.Web != nil && l.Web.URI != "" {
		return l.Web.URI
	}
	return ""
}

// AgentSpec 创建 Agent 的参数。
type AgentSpec struct {
	Name         string `json:"name"`
	Role         string `json:"role"`
	Goal         string `json:"goal"`
	Instructions string `json:"instructions"`
	IndexID      string `json:"knowledge_index_id"`
	ModelID      string `json:"model_id"`
}

// KnowledgeService 检索生成服务。
type KnowledgeService interface {
	// RetrieveAndGenerate 基于索引检索并生成回答。
	RetrieveAndGenerate(ctx context.Context, question, indexID, modelID string) (*GenerateResponse, error)

	// FindIndex 按名称查找索引，不存在时返回 nil, nil。
	FindIndex(ctx context.Context, name string) (*model.KnowledgeIndex, error)

	// CreateIndex 创建绑定到存储位置的索引。
	CreateIndex(ctx context.Context, name, description, storageURI string) (*model.KnowledgeIndex, error)

	// Synchronize 启动数据源同步任务，返回任务 ID。
	Synchronize(ctx context.Context, indexID, dataSourceID string) (string, error)

	// SyncStatus 查询同步任务状态。
	SyncStatus(ctx context.Context, indexID, dataSourceID, jobID string) (model.IndexStatus, error)

	// FindAgent 按名称查找 Agent，不存在时返回 nil, nil。
	FindAgent(ctx context.Context, name string) (*model.Agent, error)

	// CreateAgent 创建 Agent。
	CreateAgent(ctx context.Context, spec AgentSpec) (*model.Agent, error)

	// DeleteAgent 按名称删除 Agent，不存在视为成功。
	DeleteAgent(ctx context.Context, name string) error

	// DeleteIndex 按名称删除索引，不存在视为成功。
	DeleteIndex(ctx context.Context, name string) error
}

// ObjectStore 文档暂存存储。
type ObjectStore interface {
	// PutObject 上传本地文件。
	PutObject(ctx context.Context, localPath, bucket, key string) error

	// RemovePrefix 删除前缀下所有对象，返回删除数量。
	RemovePrefix(ctx context.Context, bucket, prefix string) (int, error)

	// Location 返回前缀对应的存储 URI，形如 s3://bucket/prefix。
	Location(bucket, prefix string) string
}

// SessionStore 会话快照存储。
type SessionStore interface {
	// Save 写入快照。
	Save(ctx context.Context, snap *model.SessionSnapshot) error

	// Load 读取快照，不存在时返回 nil, nil。
	Load(ctx context.Context, id string) (*model.SessionSnapshot, error)

	// Delete 删除快照。
	Delete(ctx context.Context, id string) error
}
