package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakusa/enterprise-rag/internal/docqa/biz"
	"github.com/asakusa/enterprise-rag/internal/docqa/handler"
	"github.com/asakusa/enterprise-rag/internal/docqa/metrics"
	"github.com/asakusa/enterprise-rag/pkg/infra/middleware"
)

func TestRegister(t *testing.T) {
	m := metrics.New("routertest")
	core := biz.NewDocQAService(nil, nil, nil, biz.ProvisionConfig{}, m)
	engine := NewEngine(gin.TestMode)
	Register(engine, handler.NewDocQAHandler(core, m, time.Second, time.Second), middleware.NewHealthManager("test"), m.Handler())

	routes := map[string]bool{}
	for _, r := range engine.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"GET /metrics",
		"POST /v1/kb/provision",
		"GET /v1/kb/status",
		"DELETE /v1/kb",
		"POST /v1/sessions",
		"DELETE /v1/sessions/:id",
		"POST /v1/sessions/:id/query",
		"GET /v1/sessions/:id/history",
		"DELETE /v1/sessions/:id/history",
		"GET /v1/sessions/:id/stats",
	} {
		assert.True(t, routes[want], want)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	m.RecordQuery("", 0)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "routertest_queries_total"))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/kb/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
}
