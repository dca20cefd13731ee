package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Singleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestRecordQuery(t *testing.T) {
	m := New("test")

	m.RecordQuery("", 1500*time.Millisecond)
	m.RecordQuery("NotReady", 0)
	m.RecordQuery("ServiceFailure", 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.queries.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.queries.WithLabelValues("NotReady")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.queryLatency))

	stats := m.Stats()["queries"].(map[string]interface{})
	assert.Equal(t, uint64(3), stats["total"])
	assert.Equal(t, uint64(2), stats["failed"])
}

func TestRecordUploadAndProvisioning(t *testing.T) {
	m := New("test")

	m.RecordUpload(nil)
	m.RecordUpload(nil)
	m.RecordUpload(errors.New("denied"))
	m.RecordSyncPoll()
	m.RecordTransition("Staging")
	m.RecordTransition("Ready")
	m.RecordTeardown("agent", true)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.uploads.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.uploads.WithLabelValues("failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.syncPolls))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.teardowns.WithLabelValues("agent", "ok")))

	prov := m.Stats()["provisioning"].(map[string]interface{})
	assert.Equal(t, uint64(1), prov["ready"])
	assert.Equal(t, uint64(1), prov["sync_polls"])
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New("test")
	m.RecordQuery("", time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_queries_total{outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
