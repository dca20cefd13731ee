// Package router provides document Q&A service routing.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/asakusa/enterprise-rag/internal/docqa/handler"
	"github.com/asakusa/enterprise-rag/pkg/infra/middleware"
)

// Register registers the document Q&A routes, health check and metrics endpoint.
func Register(engine *gin.Engine, h *handler.DocQAHandler, health *middleware.HealthManager, metrics http.Handler) {
	logger.Info("Registering docqa routes...")

	engine.GET("/healthz", health.Handler())
	if metrics != nil {
		engine.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := engine.Group("/v1")
	{
		kb := v1.Group("/kb")
		{
			kb.POST("/provision", h.Provision)
			kb.GET("/status", h.Status)
			kb.DELETE("", h.Teardown)
		}

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", h.CreateSession)
			sessions.DELETE("/:id", h.DeleteSession)
			sessions.POST("/:id/query", h.Query)
			sessions.GET("/:id/history", h.History)
			sessions.DELETE("/:id/history", h.ResetSession)
			sessions.GET("/:id/stats", h.Stats)
		}
	}

	logger.Info("HTTP routes registered")
}

// NewEngine creates a gin engine with the standard middleware chain.
func NewEngine(mode string) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	engine := gin.New()
	engine.Use(middleware.Tracing(), middleware.RequestID(), middleware.Logger(), middleware.Recovery())
	return engine
}
