// Package logger carries structured log fields through a context.Context.
//
// Request handlers attach request_id and session_id once; everything below
// them logs through FromContext and inherits those fields together with the
// OpenTelemetry trace_id/span_id of the active span.
package logger

import (
	"context"
	"sort"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"go.opentelemetry.io/otel/trace"
)

type contextKey struct{}

// fields 不可变，写入时复制。
type fields map[string]interface{}

func fieldsFrom(ctx context.Context) fields {
	if f, ok := ctx.Value(contextKey{}).(fields); ok {
		return f
	}
	return nil
}

// WithFields adds key-value pairs to the context log fields. Non-string keys
// and a trailing key without value are ignored.
func WithFields(ctx context.Context, keysAndValues ...interface{}) context.Context {
	if len(keysAndValues) < 2 {
		return ctx
	}
	prev := fieldsFrom(ctx)
	next := make(fields, len(prev)+len(keysAndValues)/2)
	for k, v := range prev {
		next[k] = v
	}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok && key != "" {
			next[key] = keysAndValues[i+1]
		}
	}
	return context.WithValue(ctx, contextKey{}, next)
}

// WithRequestID adds request_id to the context log fields.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return WithFields(ctx, "request_id", requestID)
}

// WithSessionID adds session_id to the context log fields.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return WithFields(ctx, "session_id", sessionID)
}

// Fields returns the context fields as a key-value slice sorted by key,
// including trace_id and span_id when ctx carries a valid span.
func Fields(ctx context.Context) []interface{} {
	f := fieldsFrom(ctx)
	keys := make([]string, 0, len(f)+2)
	for k := range f {
		keys = append(keys, k)
	}

	values := make(map[string]interface{}, len(f)+2)
	for k, v := range f {
		values[k] = v
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		if _, ok := values["trace_id"]; !ok {
			keys = append(keys, "trace_id")
		}
		if _, ok := values["span_id"]; !ok {
			keys = append(keys, "span_id")
		}
		values["trace_id"] = sc.TraceID().String()
		values["span_id"] = sc.SpanID().String()
	}
	if len(keys) == 0 {
		return nil
	}

	sort.Strings(keys)
	out := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		out = append(out, k, values[k])
	}
	return out
}

// FromContext returns the global logger enriched with the context fields.
func FromContext(ctx context.Context) core.Logger {
	base := logger.Global()
	if kv := Fields(ctx); len(kv) > 0 {
		return base.With(kv...)
	}
	return base
}
