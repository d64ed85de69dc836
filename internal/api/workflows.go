// Package api contains the HTTP handlers for the workflow automation service
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"creator-automation/backend/internal/engine"
	"creator-automation/backend/pkg/models"
)

// ListWorkflows returns all registered workflows
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Engine.ListWorkflows())
}

// GetWorkflow returns one workflow with its statistics
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	wf, ok := s.Engine.GetWorkflow(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "workflow "+c.Param("id")+" not found")
	}
	return c.JSON(http.StatusOK, wf)
}

// PutWorkflow creates or replaces a workflow
// (PUT /api/v1/workflows/:id)
func (s *Server) PutWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	var def models.WorkflowDefinition
	if err := c.Bind(&def); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	wf, err := s.Engine.RegisterWorkflow(id, def)
	if err != nil {
		return toHTTPError(err)
	}

	if s.Definitions != nil {
		if err := s.Definitions.SaveDefinition(ctx, id, def); err != nil {
			s.Logger.Error("failed to persist workflow definition", "workflow_id", id, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save workflow: "+err.Error())
		}
	}

	return c.JSON(http.StatusOK, wf)
}

type statusRequest struct {
	Status models.WorkflowStatus `json:"status"`
}

// SetWorkflowStatus pauses or resumes a workflow
// (PUT /api/v1/workflows/:id/status)
func (s *Server) SetWorkflowStatus(c echo.Context) error {
	id := c.Param("id")

	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if !req.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "status must be active or paused")
	}
	if !s.Engine.SetWorkflowStatus(id, req.Status) {
		return echo.NewHTTPError(http.StatusNotFound, "workflow "+id+" not found")
	}

	wf, _ := s.Engine.GetWorkflow(id)
	return c.JSON(http.StatusOK, wf)
}

// ExecutionResponse is returned by the execute and trigger routes.
type ExecutionResponse struct {
	Trigger    string                    `json:"trigger,omitempty"`
	Executions []*models.ExecutionRecord `json:"executions"`
	Error      string                    `json:"error,omitempty"`
}

// ExecuteWorkflow runs a workflow directly, skipping its conditions
// (POST /api/v1/workflows/:id/execute)
func (s *Server) ExecuteWorkflow(c echo.Context) error {
	data, err := bindEventData(c)
	if err != nil {
		return err
	}

	record, err := s.Engine.ExecuteWorkflow(c.Request().Context(), c.Param("id"), data)
	if record == nil {
		return toHTTPError(err)
	}
	resp := ExecutionResponse{Executions: []*models.ExecutionRecord{record}}
	if err != nil {
		resp.Error = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// FireTrigger delivers a platform event to the engine
// (POST /api/v1/triggers/:name)
func (s *Server) FireTrigger(c echo.Context) error {
	data, err := bindEventData(c)
	if err != nil {
		return err
	}

	trigger := c.Param("name")
	records, err := s.Engine.HandleTrigger(c.Request().Context(), trigger, data)
	if err != nil && records == nil {
		return toHTTPError(err)
	}
	resp := ExecutionResponse{Trigger: trigger, Executions: records}
	if resp.Executions == nil {
		resp.Executions = []*models.ExecutionRecord{}
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// ListExecutions returns recent execution records, newest first. With
// archived=true the records come from the persistent archive
// (GET /api/v1/executions?limit=&workflow_id=&archived=)
func (s *Server) ListExecutions(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	workflowID := c.QueryParam("workflow_id")

	if c.QueryParam("archived") == "true" {
		if s.Archive == nil {
			return echo.NewHTTPError(http.StatusNotImplemented, "execution archive is not configured")
		}
		records, err := s.Archive.ListExecutions(c.Request().Context(), workflowID, limit)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, nonNil(records))
	}

	var records []*models.ExecutionRecord
	if workflowID == "" {
		records = s.Engine.GetExecutionHistory(limit)
	} else {
		for _, r := range s.Engine.GetExecutionHistory(0) {
			if r.WorkflowID != workflowID {
				continue
			}
			records = append(records, r)
			if limit > 0 && len(records) == limit {
				break
			}
		}
	}
	return c.JSON(http.StatusOK, nonNil(records))
}

// GetStats returns engine counters
// (GET /api/v1/stats)
func (s *Server) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Engine.GetStats())
}

// bindEventData decodes only the body; echo's Bind would also copy path
// params into the map.
func bindEventData(c echo.Context) (map[string]any, error) {
	data := map[string]any{}
	if c.Request().ContentLength == 0 {
		return data, nil
	}
	if err := new(echo.DefaultBinder).BindBody(c, &data); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid event data: "+err.Error())
	}
	return data, nil
}

func nonNil(records []*models.ExecutionRecord) []*models.ExecutionRecord {
	if records == nil {
		return []*models.ExecutionRecord{}
	}
	return records
}

var _ Engine = (*engine.Engine)(nil)
