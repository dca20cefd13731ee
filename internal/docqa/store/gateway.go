package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kart-io/logger"

	"github.com/asakusa/enterprise-rag/internal/model"
	"github.com/asakusa/enterprise-rag/pkg/infra/resilience"
	gatewayopts "github.com/asakusa/enterprise-rag/pkg/options/gateway"
	"github.com/asakusa/enterprise-rag/pkg/utils/httpclient"
	"github.com/asakusa/enterprise-rag/pkg/utils/id"
)

// GatewayClient 通过 JSON/HTTP 访问知识网关。
type GatewayClient struct {
	baseURL string
	http    *httpclient.Client
	breaker *resilience.CircuitBreaker
}

var _ KnowledgeService = (*GatewayClient)(nil)

// NewGatewayClient 根据配置创建网关客户端。
func NewGatewayClient(opts *gatewayopts.Options) *GatewayClient {
	clientOpts := []httpclient.Option{httpclient.WithRequestID(id.NewULID)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, httpclient.WithHeader("Authorization", "Bearer "+opts.APIKey))
	}

	return &GatewayClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpclient.NewClient(opts.Timeout, opts.MaxRetries, clientOpts...),
		breaker: resilience.NewCircuitBreaker(&resilience.CircuitBreakerConfig{
			Name:             "knowledge-gateway",
			MaxFailures:      opts.BreakerFailures,
			OpenTimeout:      opts.BreakerCooldown,
			HalfOpenMaxCalls: 1,
		}),
	}
}

// call 经熔断器发送请求。4xx 属于调用方问题，不计入熔断失败。
func (c *GatewayClient) call(ctx context.Context, method, path string, in, out interface{}) error {
	var clientErr error
	err := c.breaker.Execute(func() error {
		err := c.http.DoJSON(ctx, method, c.baseURL+path, in, out)
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < 500 {
			clientErr = err
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	if clientErr != nil {
		return fmt.Errorf("gateway %s %s: %w", method, path, clientErr)
	}
	return nil
}

func isNotFound(err error) bool {
	var statusErr *httpclient.StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

type retrieveAndGenerateRequest struct {
	Input  generateInput  `json:"input"`
	Config generateConfig `json:"retrieveAndGenerateConfiguration"`
}

type generateInput struct {
	Text string `json:"text"`
}

type generateConfig struct {
	Type          string             `json:"type"`
	KnowledgeBase knowledgeBaseQuery `json:"knowledgeBaseConfiguration"`
}

type knowledgeBaseQuery struct {
	IndexID string `json:"knowledgeBaseId"`
	ModelID string `json:"modelArn"`
}

// RetrieveAndGenerate 基于索引检索并生成回答。
func (c *GatewayClient) RetrieveAndGenerate(ctx context.Context, question, indexID, modelID string) (*GenerateResponse, error) {
	req := retrieveAndGenerateRequest{
		Input: generateInput{Text: question},
		Config: generateConfig{
			Type:          "KNOWLEDGE_BASE",
			KnowledgeBase: knowledgeBaseQuery{IndexID: indexID, ModelID: modelID},
		},
	}

	var resp GenerateResponse
	if err := c.call(ctx, http.MethodPost, "/v1/retrieve-and-generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FindIndex 按名称查找索引。
func (c *GatewayClient) FindIndex(ctx context.Context, name string) (*model.KnowledgeIndex, error) {
	var idx model.KnowledgeIndex
	err := c.call(ctx, http.MethodGet, "/v1/indexes?name="+url.QueryEscape(name), nil, &idx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &idx, nil
}

type createIndexRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Storage     storageConfig `json:"storageConfiguration"`
}

type storageConfig struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

// CreateIndex 创建绑定到存储位置的索引。
func (c *GatewayClient) CreateIndex(ctx context.Context, name, description, storageURI string) (*model.KnowledgeIndex, error) {
	req := createIndexRequest{
		Name:        name,
		Description: description,
		Storage:     storageConfig{Type: "S3", URI: storageURI},
	}

	var idx model.KnowledgeIndex
	if err := c.call(ctx, http.MethodPost, "/v1/indexes", req, &idx); err != nil {
		return nil, err
	}
	logger.Infow("knowledge index created", "index_id", idx.ID, "name", name)
	return &idx, nil
}

type syncJob struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func syncJobsPath(indexID, dataSourceID string) string {
	return "/v1/indexes/" + url.PathEscape(indexID) + "/data-sources/" + url.PathEscape(dataSourceID) + "/sync-jobs"
}

// Synchronize 启动同步任务。
func (c *GatewayClient) Synchronize(ctx context.Context, indexID, dataSourceID string) (string, error) {
	var job syncJob
	if err := c.call(ctx, http.MethodPost, syncJobsPath(indexID, dataSourceID), struct{}{}, &job); err != nil {
		return "", err
	}
	if job.JobID == "" {
		return "", fmt.Errorf("gateway returned sync job without id")
	}
	return job.JobID, nil
}

// SyncStatus 查询同步任务状态。
func (c *GatewayClient) SyncStatus(ctx context.Context, indexID, dataSourceID, jobID string) (model.IndexStatus, error) {
	var job syncJob
	if err := c.call(ctx, http.MethodGet, syncJobsPath(indexID, dataSourceID)+"/"+url.PathEscape(jobID), nil, &job); err != nil {
		return "", err
	}
	return ParseSyncStatus(job.Status), nil
}

// ParseSyncStatus 将网关的同步任务状态映射为索引状态。
// 同时接受索引状态名与 STARTING/IN_PROGRESS/COMPLETE/FAILED 形式的任务状态。
func ParseSyncStatus(s string) model.IndexStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SYNCED", "COMPLETE", "COMPLETED":
		return model.IndexSynced
	case "FAILED", "STOPPED":
		return model.IndexFailed
	case "CREATING":
		return model.IndexCreating
	default:
		return model.IndexSyncing
	}
}

// FindAgent 按名称查找 Agent。
func (c *GatewayClient) FindAgent(ctx context.Context, name string) (*model.Agent, error) {
	var agent model.Agent
	err := c.call(ctx, http.MethodGet, "/v1/agents?name="+url.QueryEscape(name), nil, &agent)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// CreateAgent 创建 Agent。
func (c *GatewayClient) CreateAgent(ctx context.Context, spec AgentSpec) (*model.Agent, error) {
	var agent model.Agent
	if err := c.call(ctx, http.MethodPost, "/v1/agents", spec, &agent); err != nil {
		return nil, err
	}
	logger.Infow("agent created", "agent_id", agent.ID, "name", spec.Name, "index_id", spec.IndexID)
	return &agent, nil
}

// DeleteAgent 删除 Agent。
func (c *GatewayClient) DeleteAgent(ctx context.Context, name string) error {
	err := c.call(ctx, http.MethodDelete, "/v1/agents/"+url.PathEscape(name), nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// DeleteIndex 删除索引。
func (c *GatewayClient) DeleteIndex(ctx context.Context, name string) error {
	err := c.call(ctx, http.MethodDelete, "/v1/indexes/"+url.PathEscape(name), nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// BreakerState 返回熔断器状态，供状态接口展示。
func (c *GatewayClient) BreakerState() string {
	return c.breaker.State().String()
}
