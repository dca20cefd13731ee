package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestDoJSON_RetriesServerErrorsAndReplaysBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"kb"}`, string(body))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"IDX1"}`))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 2, WithBackoff(time.Millisecond), WithHeader("X-Api-Key", "secret"))

	var out struct {
		ID string `json:"id"`
	}
	err := c.DoJSON(context.Background(), http.MethodPost, srv.URL, map[string]string{"name": "kb"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "IDX1", out.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoJSON_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such index", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 3, WithBackoff(time.Millisecond))
	err := c.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "no such index", statusErr.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoJSON_GivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 1, WithBackoff(time.Millisecond))
	err := c.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestDoRequest_SetsRequestID(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("X-Request-ID"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(time.Second, 0, WithRequestID(func() string { return "req-1" }))
	require.NoError(t, c.DoJSON(context.Background(), http.MethodDelete, srv.URL, nil, nil))
	assert.Equal(t, []string{"req-1"}, got)
}

func TestInjectTraceContext_WithSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	otel.SetTextMapPropagator(propagation.TraceContext{})

	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx, span := tp.Tracer("test").Start(context.Background(), "provision")
	defer span.End()

	c := NewClient(5*time.Second, 0)
	require.NoError(t, c.DoJSON(ctx, http.MethodGet, srv.URL, nil, nil))
	// version-trace_id-parent_id-trace_flags
	assert.Len(t, traceparent, 55)
}

func TestInjectTraceContext_WithoutSpan(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/v1/agents", nil)
	NewClient(time.Second, 0).injectTraceContext(req)
	assert.Empty(t, req.Header.Get("traceparent"))
}
