package query_service

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nyayasetu/internal/retrieval/fusion"
	"nyayasetu/internal/retrieval/index"
	"nyayasetu/internal/retrieval/pipeline"
	"nyayasetu/pkg/logger"
)

// QueryRequest is the JSON body of the query endpoints.
type QueryRequest struct {
	Query   string         `json:"query" binding:"required"`
	UseCase string         `json:"use_case"`
	Scope   string         `json:"scope"`
	Filters []index.Filter `json:"filters"`
	TopK    int            `json:"top_k"`
}

// HealthFunc reports the availability of one dependency.
type HealthFunc func(ctx context.Context) error

// Handler exposes the query service over HTTP.
type Handler struct {
	log    *logger.Logger
	svc    *Service
	checks map[string]HealthFunc
}

// NewHandler creates a Handler. checks are probed by the health endpoint.
func NewHandler(svc *Service, checks map[string]HealthFunc, log *logger.Logger) *Handler {
	return &Handler{log: log, svc: svc, checks: checks}
}

// RegisterRoutes mounts all endpoints on the router.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.health)
	v1 := r.Group("/api/v1")
	{
		v1.POST("/query", h.query)
		v1.POST("/query/stream", h.queryStream)
	}
}

func (h *Handler) query(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	traceID := uuid.NewString()
	c.Header("X-Trace-ID", traceID)
	h.log.WithField("trace_id", traceID).Debug("Query received")

	resp, err := h.svc.Query(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// queryStream answers over server-sent events: one "meta" event carrying the
// citations computed before generation, then "delta" events with answer text,
// then "done".
func (h *Handler) queryStream(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	resp, deltas, err := h.svc.QueryStream(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), resp)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.SSEvent("meta", resp)
	c.Writer.Flush()

	for delta := range deltas {
		c.SSEvent("delta", delta)
		c.Writer.Flush()
	}
	c.SSEvent("done", "")
	c.Writer.Flush()
}

func (h *Handler) health(c *gin.Context) {
	status := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "components": components})
}

// bind parses and validates the request body, writing the error response
// itself when validation fails.
func (h *Handler) bind(c *gin.Context) (pipeline.Request, bool) {
	var body QueryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return pipeline.Request{}, false
	}

	scope, err := index.ParseScope(body.Scope)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return pipeline.Request{}, false
	}
	useCase, err := pipeline.ParseUseCase(body.UseCase)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return pipeline.Request{}, false
	}

	var filters *index.FilterSet
	if len(body.Filters) > 0 {
		filters = &index.FilterSet{Filters: body.Filters}
		if err := filters.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return pipeline.Request{}, false
		}
	}

	return pipeline.Request{
		Query:   body.Query,
		UseCase: useCase,
		Scope:   scope,
		Filters: filters,
		TopK:    body.TopK,
	}, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrGenerationUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, fusion.ErrAdaptersUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
