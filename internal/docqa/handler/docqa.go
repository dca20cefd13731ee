// Package handler provides HTTP handlers for the document Q&A service.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/asakusa/enterprise-rag/internal/docqa/biz"
	"github.com/asakusa/enterprise-rag/internal/docqa/metrics"
	"github.com/asakusa/enterprise-rag/internal/model"
	"github.com/asakusa/enterprise-rag/pkg/errors"
	ctxlog "github.com/asakusa/enterprise-rag/pkg/infra/logger"
	"github.com/asakusa/enterprise-rag/pkg/infra/middleware"
	"github.com/asakusa/enterprise-rag/pkg/utils/response"
	"github.com/asakusa/enterprise-rag/pkg/validator"
)

// DocQAHandler handles document Q&A HTTP requests.
type DocQAHandler struct {
	core             biz.Core
	metrics          *metrics.DocQAMetrics
	queryTimeout     time.Duration
	provisionTimeout time.Duration
}

// NewDocQAHandler creates a new DocQAHandler.
func NewDocQAHandler(core biz.Core, m *metrics.DocQAMetrics, queryTimeout, provisionTimeout time.Duration) *DocQAHandler {
	if m == nil {
		m = metrics.Default()
	}
	return &DocQAHandler{
		core:             core,
		metrics:          m,
		queryTimeout:     queryTimeout,
		provisionTimeout: provisionTimeout,
	}
}

// ProvisionRequest represents a provision request.
type ProvisionRequest struct {
	Documents string `json:"documents" validate:"required,docpath"`
}

// SessionURI binds the session id path parameter.
type SessionURI struct {
	ID string `uri:"id" validate:"ulid"`
}

// QueryRequest represents a query request. Blank questions are answered with
// an InvalidQuestion result rather than rejected.
type QueryRequest struct {
	Question string `json:"question" validate:"max=4000"`
}

// StatusResponse is the knowledge base status payload.
type StatusResponse struct {
	Provision biz.ProvisionStatus    `json:"provision"`
	Sessions  int                    `json:"sessions"`
	Metrics   map[string]interface{} `json:"metrics"`
}

// SessionResponse is returned when a session is created.
type SessionResponse struct {
	SessionID string `json:"session_id"`
}

// Provision stages the documents directory and provisions the index and agent.
func (h *DocQAHandler) Provision(c *gin.Context) {
	var req ProvisionRequest
	if !h.bind(c, &req) {
		return
	}

	ctx, cancel := withTimeout(c.Request.Context(), h.provisionTimeout)
	defer cancel()

	dep, err := h.core.Provision(ctx, req.Documents)
	if err != nil {
		h.write(c, response.ErrorWithData(errors.FromError(err), h.core.Status()))
		return
	}
	h.write(c, response.SuccessWithMessage("knowledge base ready", dep))
}

// Status returns the provisioning state and service counters.
func (h *DocQAHandler) Status(c *gin.Context) {
	h.write(c, response.Success(StatusResponse{
		Provision: h.core.Status(),
		Sessions:  h.core.Sessions().Len(),
		Metrics:   h.metrics.Stats(),
	}))
}

// Teardown deletes the agent and index; purge=true also removes staged documents.
// It does not wait for a provisioning run in progress: every resource is then
// reported as not deleted and the request should be retried once provisioning ends.
func (h *DocQAHandler) Teardown(c *gin.Context) {
	purge := c.Query("purge") == "true"
	outcomes := h.core.Teardown(c.Request.Context(), biz.WithPurgeStaged(purge))

	for _, o := range outcomes {
		if !o.Succeeded {
			h.write(c, response.ErrorWithData(errors.ErrTeardownPartial, outcomes))
			return
		}
	}
	h.write(c, response.SuccessWithMessage("teardown complete", outcomes))
}

// CreateSession opens a new conversation session.
func (h *DocQAHandler) CreateSession(c *gin.Context) {
	s, err := h.core.Sessions().Create(c.Request.Context())
	if err != nil {
		h.write(c, response.FromError(err))
		return
	}
	r := response.Success(SessionResponse{SessionID: s.ID()})
	r.HTTPCode = http.StatusCreated
	h.write(c, r)
}

// Query asks a question within a session and records the result.
// Failed queries are still 200: the error kind travels in the result.
func (h *DocQAHandler) Query(c *gin.Context) {
	var uri SessionURI
	if !h.bindURI(c, &uri) {
		return
	}
	var req QueryRequest
	if !h.bind(c, &req) {
		return
	}

	ctx, cancel := withTimeout(ctxlog.WithSessionID(c.Request.Context(), uri.ID), h.queryTimeout)
	defer cancel()

	result, err := h.core.Ask(ctx, uri.ID, req.Question)
	if err != nil {
		h.write(c, response.FromError(err))
		return
	}
	h.write(c, response.Success(result))
}

// History returns the conversation history of a session.
func (h *DocQAHandler) History(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.write(c, response.Success(s.History()))
}

// Stats returns the statistics view of a session.
func (h *DocQAHandler) Stats(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.write(c, response.Success(s.View()))
}

// ResetSession clears history and statistics of a session.
func (h *DocQAHandler) ResetSession(c *gin.Context) {
	var uri SessionURI
	if !h.bindURI(c, &uri) {
		return
	}
	if err := h.core.Sessions().Reset(c.Request.Context(), uri.ID); err != nil {
		h.write(c, response.FromError(err))
		return
	}
	h.write(c, response.Success(model.StatsView{}))
}

// DeleteSession closes a session and removes its persisted snapshot.
func (h *DocQAHandler) DeleteSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := h.core.Sessions().Delete(c.Request.Context(), s.ID()); err != nil {
		h.write(c, response.FromError(err))
		return
	}
	h.write(c, response.SuccessWithMessage("session deleted", SessionResponse{SessionID: s.ID()}))
}

func (h *DocQAHandler) session(c *gin.Context) (*biz.Session, bool) {
	var uri SessionURI
	if !h.bindURI(c, &uri) {
		return nil, false
	}
	s, err := h.core.Sessions().Get(c.Request.Context(), uri.ID)
	if err != nil {
		h.write(c, response.FromError(err))
		return nil, false
	}
	return s, true
}

func (h *DocQAHandler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.write(c, response.Err(errors.ErrBadRequest.WithMessage(err.Error())))
		return false
	}
	return h.validate(c, req)
}

func (h *DocQAHandler) bindURI(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindUri(req); err != nil {
		h.write(c, response.Err(errors.ErrBadRequest.WithMessage(err.Error())))
		return false
	}
	return h.validate(c, req)
}

func (h *DocQAHandler) validate(c *gin.Context, req interface{}) bool {
	errs := validator.StructWithLang(req, c.GetHeader("Accept-Language"))
	if !errs.HasErrors() {
		return true
	}
	h.write(c, response.ErrorWithData(errors.ErrInvalidParam.WithMessage(errs.First()), errs.ToMap()))
	return false
}

func (h *DocQAHandler) write(c *gin.Context, r *response.Response) {
	r.WithRequestID(c.GetString(middleware.ContextKeyRequestID))
	if !r.IsSuccess() {
		ctxlog.FromContext(c.Request.Context()).Debugw("request failed", "path", c.FullPath(), "code", r.Code, "message", r.Message)
	}
	c.JSON(r.HTTPStatus(), r)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
