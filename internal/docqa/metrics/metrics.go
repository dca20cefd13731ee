// Package metrics 提供文档问答服务的业务指标收集。
//
// 指标同时以两种形式维护：Prometheus 采集器（/metrics 暴露）和
// 进程内原子计数器（状态接口展示）。
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DocQAMetrics 文档问答业务指标。
type DocQAMetrics struct {
	registry *prometheus.Registry

	queries          *prometheus.CounterVec
	queryLatency     prometheus.Histogram
	uploads          *prometheus.CounterVec
	syncPolls        prometheus.Counter
	stateTransitions *prometheus.CounterVec
	teardowns        *prometheus.CounterVec

	queriesTotal    atomic.Uint64
	queriesFailed   atomic.Uint64
	uploadsOK       atomic.Uint64
	uploadsFailed   atomic.Uint64
	syncPollsTotal  atomic.Uint64
	provisionsReady atomic.Uint64
	provisionsFail  atomic.Uint64

	startTime time.Time
}

var (
	globalMetrics *DocQAMetrics
	metricsOnce   sync.Once
)

// Default 获取全局指标实例。
func Default() *DocQAMetrics {
	metricsOnce.Do(func() {
		globalMetrics = New("docqa")
	})
	return globalMetrics
}

// New 创建使用独立注册表的指标实例。
func New(namespace string) *DocQAMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &DocQAMetrics{
		registry: reg,
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Questions submitted, by outcome",
		}, []string{"outcome"}),
		queryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_latency_seconds",
			Help:      "Retrieve-and-generate latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staged_documents_total",
			Help:      "Document uploads during staging, by result",
		}, []string{"result"}),
		syncPolls: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_polls_total",
			Help:      "Synchronization status checks",
		}),
		stateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provision_transitions_total",
			Help:      "Provisioning state transitions, by target state",
		}, []string{"state"}),
		teardowns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "teardown_resources_total",
			Help:      "Teardown attempts, by resource and result",
		}, []string{"resource", "result"}),
		startTime: time.Now(),
	}
}

// RecordQuery 记录一次问答。outcome 为空表示成功。
func (m *DocQAMetrics) RecordQuery(outcome string, latency time.Duration) {
	m.queriesTotal.Add(1)
	if outcome == "" {
		m.queries.WithLabelValues("ok").Inc()
		m.queryLatency.Observe(latency.Seconds())
		return
	}
	m.queriesFailed.Add(1)
	m.queries.WithLabelValues(outcome).Inc()
}

// RecordUpload 记录一次文档上传。
func (m *DocQAMetrics) RecordUpload(err error) {
	if err != nil {
		m.uploadsFailed.Add(1)
		m.uploads.WithLabelValues("failed").Inc()
		return
	}
	m.uploadsOK.Add(1)
	m.uploads.WithLabelValues("ok").Inc()
}

// RecordSyncPoll 记录一次同步状态检查。
func (m *DocQAMetrics) RecordSyncPoll() {
	m.syncPollsTotal.Add(1)
	m.syncPolls.Inc()
}

// RecordTransition 记录状态机迁移。
func (m *DocQAMetrics) RecordTransition(state string) {
	switch state {
	case "Ready":
		m.provisionsReady.Add(1)
	case "Failed":
		m.provisionsFail.Add(1)
	}
	m.stateTransitions.WithLabelValues(state).Inc()
}

// RecordTeardown 记录单个资源的删除结果。
func (m *DocQAMetrics) RecordTeardown(resource string, succeeded bool) {
	result := "ok"
	if !succeeded {
		result = "failed"
	}
	m.teardowns.WithLabelValues(resource, result).Inc()
}

// Stats 返回当前统计信息（用于 API）。
func (m *DocQAMetrics) Stats() map[string]interface{} {
	return map[string]interface{}{
		"queries": map[string]interface{}{
			"total":  m.queriesTotal.Load(),
			"failed": m.queriesFailed.Load(),
		},
		"staging": map[string]interface{}{
			"uploaded": m.uploadsOK.Load(),
			"failed":   m.uploadsFailed.Load(),
		},
		"provisioning": map[string]interface{}{
			"ready":      m.provisionsReady.Load(),
			"failed":     m.provisionsFail.Load(),
			"sync_polls": m.syncPollsTotal.Load(),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}

// Registry 返回 Prometheus 注册表。
func (m *DocQAMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 处理器。
func (m *DocQAMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
