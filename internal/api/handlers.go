package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"creator-automation/backend/internal/engine"
	"creator-automation/backend/internal/repository"
	"creator-automation/backend/pkg/models"
)

// Engine is the part of the workflow engine exposed over HTTP.
type Engine interface {
	RegisterWorkflow(id string, def models.WorkflowDefinition) (*models.Workflow, error)
	GetWorkflow(id string) (*models.Workflow, bool)
	ListWorkflows() []*models.Workflow
	SetWorkflowStatus(id string, status models.WorkflowStatus) bool
	HandleTrigger(ctx context.Context, trigger string, data map[string]any) ([]*models.ExecutionRecord, error)
	ExecuteWorkflow(ctx context.Context, id string, data map[string]any) (*models.ExecutionRecord, error)
	GetExecutionHistory(limit int) []*models.ExecutionRecord
	GetStats() models.Stats
	IsRunning() bool
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Server holds the dependencies for the API server.
type Server struct {
	Engine      Engine
	Definitions repository.DefinitionStore
	Archive     repository.ExecutionStore
	Logger      Logger
	Version     string
}

// NewServer creates a new Server. Definitions and Archive may be nil when
// persistence is disabled.
func NewServer(eng Engine, defs repository.DefinitionStore, archive repository.ExecutionStore, logger Logger) *Server {
	return &Server{Engine: eng, Definitions: defs, Archive: archive, Logger: logger, Version: "1.0.0"}
}

// RegisterRoutes mounts the read routes on read and the mutating routes on write.
func (s *Server) RegisterRoutes(read, write *echo.Group) {
	read.GET("/workflows", s.ListWorkflows)
	read.GET("/workflows/:id", s.GetWorkflow)
	read.GET("/executions", s.ListExecutions)
	read.GET("/stats", s.GetStats)

	write.PUT("/workflows/:id", s.PutWorkflow)
	write.PUT("/workflows/:id/status", s.SetWorkflowStatus)
	write.POST("/workflows/:id/execute", s.ExecuteWorkflow)
	write.POST("/triggers/:name", s.FireTrigger)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth reports 200 while the engine accepts triggers and 503 otherwise
// (GET /health)
func (s *Server) HandleHealth(c echo.Context) error {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "creator-automation",
		Version:   s.Version,
	}
	code := http.StatusOK
	if !s.Engine.IsRunning() {
		status.Status = "stopped"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// ProblemErrorHandler renders errors as RFC 7807 Problem Details. Install it
// as echo's HTTPErrorHandler.
func ProblemErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he := toHTTPError(err)
	detail, _ := he.Message.(string)
	if detail == "" {
		detail = http.StatusText(he.Code)
	}
	problem := ProblemDetails{
		Type:     "about:blank",
		Title:    http.StatusText(he.Code),
		Status:   he.Code,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(he.Code)
		return
	}
	_ = c.JSON(he.Code, problem)
}

// toHTTPError maps engine errors onto HTTP status codes.
func toHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrInvalidDefinition):
		code = http.StatusBadRequest
	case errors.Is(err, engine.ErrWorkflowNotFound), errors.Is(err, repository.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, engine.ErrWorkflowPaused):
		code = http.StatusConflict
	case errors.Is(err, engine.ErrCooldownActive), errors.Is(err, engine.ErrConcurrencyLimit):
		code = http.StatusTooManyRequests
	case errors.Is(err, engine.ErrEngineNotRunning):
		code = http.StatusServiceUnavailable
	}
	return echo.NewHTTPError(code, err.Error())
}
