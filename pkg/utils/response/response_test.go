package response

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/asakusa/enterprise-rag/pkg/errors"
)

func TestSuccess(t *testing.T) {
	r := Success(map[string]int{"n": 1})

	assert.True(t, r.IsSuccess())
	assert.Equal(t, http.StatusOK, r.HTTPStatus())
	assert.Equal(t, "success", r.Message)

	r = SuccessWithMessage("created", nil).WithRequestID("req-1")
	assert.Equal(t, "created", r.Message)
	assert.Equal(t, "req-1", r.RequestID)
}

func TestErr(t *testing.T) {
	r := Err(errors.ErrSessionNotFound)

	assert.False(t, r.IsSuccess())
	assert.Equal(t, errors.ErrSessionNotFound.Code, r.Code)
	assert.Equal(t, http.StatusNotFound, r.HTTPStatus())
	assert.Equal(t, "Session not found", r.Message)

	zh := ErrWithLang(errors.ErrNotReady, "zh")
	assert.Equal(t, "知识库尚未就绪", zh.Message)
	assert.Equal(t, http.StatusConflict, zh.HTTPStatus())

	assert.True(t, Err(nil).IsSuccess())
}

func TestFromError(t *testing.T) {
	wrapped := fmt.Errorf("provision: %w", errors.ErrNoDocuments.WithMessage("0 of 2 uploaded"))
	r := FromError(wrapped)
	assert.Equal(t, errors.ErrNoDocuments.Code, r.Code)
	assert.Equal(t, "0 of 2 uploaded", r.Message)

	r = FromError(fmt.Errorf("disk full"))
	assert.Equal(t, errors.ErrInternal.Code, r.Code)
	assert.Equal(t, http.StatusInternalServerError, r.HTTPStatus())
	assert.NotContains(t, r.Message, "disk full")

	assert.True(t, FromError(nil).IsSuccess())
}

func TestHTTPStatus_Fallback(t *testing.T) {
	tests := []struct {
		code int
		want int
	}{
		{errors.MakeCode(99, errors.CategoryRequest, 999), http.StatusBadRequest},
		{errors.MakeCode(99, errors.CategoryResource, 999), http.StatusNotFound},
		{errors.MakeCode(99, errors.CategoryConflict, 999), http.StatusConflict},
		{errors.MakeCode(99, errors.CategoryTimeout, 999), http.StatusGatewayTimeout},
		{errors.MakeCode(99, errors.CategoryNetwork, 999), http.StatusServiceUnavailable},
		{errors.MakeCode(99, errors.CategoryInternal, 999), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		r := &Response{Code: tt.code}
		assert.Equal(t, tt.want, r.HTTPStatus(), "code %d", tt.code)
	}
}

func TestErrorWithData(t *testing.T) {
	r := ErrorWithData(errors.ErrNotReady, map[string]string{"state": "Syncing"})
	assert.Equal(t, errors.ErrNotReady.Code, r.Code)
	assert.NotNil(t, r.Data)
}
