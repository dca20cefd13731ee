package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/asakusa/enterprise-rag/pkg/errors"
	"github.com/asakusa/enterprise-rag/pkg/utils/response"
)

// Recovery returns a middleware that recovers from panics and answers with
// ErrInternal in the standard response envelope.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("panic recovered",
					"panic", r,
					"path", c.Request.URL.Path,
					"request_id", c.GetString(ContextKeyRequestID),
					"stack", string(debug.Stack()),
				)
				resp := response.Err(errors.ErrInternal).WithRequestID(c.GetString(ContextKeyRequestID))
				c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
			}
		}()
		c.Next()
	}
}
