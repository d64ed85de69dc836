package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"creator-automation/backend/internal/engine"
	"creator-automation/backend/internal/logging"
	"creator-automation/backend/internal/repository"
	"creator-automation/backend/pkg/models"
)

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(_ context.Context, service, operation string, _ map[string]any) (any, error) {
	if operation == "explode" {
		return nil, errors.New("service exploded")
	}
	return map[string]any{"service": service}, nil
}

// MockDefinitionStore is a mock implementation of repository.DefinitionStore
type MockDefinitionStore struct {
	mock.Mock
}

func (m *MockDefinitionStore) SaveDefinition(ctx context.Context, id string, def models.WorkflowDefinition) error {
	return m.Called(ctx, id, def).Error(0)
}

func (m *MockDefinitionStore) GetDefinition(ctx context.Context, id string) (*repository.StoredDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.StoredDefinition), args.Error(1)
}

func (m *MockDefinitionStore) ListDefinitions(ctx context.Context) ([]repository.StoredDefinition, error) {
	args := m.Called(ctx)
	return args.Get(0).([]repository.StoredDefinition), args.Error(1)
}

type testServer struct {
	echo   *echo.Echo
	engine *engine.Engine
	server *Server
}

func newTestServer(t *testing.T, defs repository.DefinitionStore) *testServer {
	t.Helper()
	eng := engine.New(engine.Config{}, engine.WithDispatcher(stubDispatcher{}))
	require.NoError(t, eng.Initialize(context.Background()))
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })

	s := NewServer(eng, defs, nil, logging.Discard())
	e := echo.New()
	e.HTTPErrorHandler = ProblemErrorHandler
	e.GET("/health", s.HandleHealth)
	v1 := e.Group("/api/v1")
	s.RegisterRoutes(v1, v1)
	return &testServer{echo: e, engine: eng, server: s}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

const welcomeWorkflow = `{
	"name": "Welcome",
	"triggers": ["subscriber.created"],
	"conditions": [{"type": "plan", "operator": "equals", "value": "premium"}],
	"actions": [{"target": "notification-service", "operation": "send_welcome"}],
	"cooldown": "1m",
	"priority": "high"
}`

func TestPutAndGetWorkflow(t *testing.T) {
	defs := new(MockDefinitionStore)
	defs.On("SaveDefinition", mock.Anything, "welcome", mock.MatchedBy(func(d models.WorkflowDefinition) bool {
		return d.Name == "Welcome" && d.Cooldown.Std() == time.Minute
	})).Return(nil)
	ts := newTestServer(t, defs)

	rec := ts.do(t, http.MethodPut, "/api/v1/workflows/welcome", welcomeWorkflow)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/workflows/welcome", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var wf models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wf))
	assert.Equal(t, "welcome", wf.ID)
	assert.Equal(t, models.PriorityHigh, wf.Priority)
	assert.Equal(t, models.WorkflowActive, wf.Status)

	rec = ts.do(t, http.MethodGet, "/api/v1/workflows", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	defs.AssertExpectations(t)
}

func TestPutWorkflow_Invalid(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPut, "/api/v1/workflows/bad", `{"triggers": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get(echo.HeaderContentType))

	var problem ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.Contains(t, problem.Detail, "trigger")
	assert.Equal(t, "/api/v1/workflows/bad", problem.Instance)

	rec = ts.do(t, http.MethodPut, "/api/v1/workflows/bad", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutWorkflow_StoreFailure(t *testing.T) {
	defs := new(MockDefinitionStore)
	defs.On("SaveDefinition", mock.Anything, "welcome", mock.Anything).Return(errors.New("db down"))
	ts := newTestServer(t, defs)

	rec := ts.do(t, http.MethodPut, "/api/v1/workflows/welcome", welcomeWorkflow)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetWorkflow_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/api/v1/workflows/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetWorkflowStatus(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/api/v1/workflows/welcome", welcomeWorkflow).Code)

	rec := ts.do(t, http.MethodPut, "/api/v1/workflows/welcome/status", `{"status":"paused"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	wf, _ := ts.engine.GetWorkflow("welcome")
	assert.Equal(t, models.WorkflowPaused, wf.Status)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, "/api/v1/workflows/welcome/status", `{"status":"archived"}`).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPut, "/api/v1/workflows/ghost/status", `{"status":"active"}`).Code)
}

func TestFireTrigger(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/api/v1/workflows/welcome", welcomeWorkflow).Code)

	rec := ts.do(t, http.MethodPost, "/api/v1/triggers/subscriber.created", `{"plan":"free"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ExecutionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "subscriber.created", resp.Trigger)
	assert.Empty(t, resp.Executions, "condition does not hold for free plan")

	rec = ts.do(t, http.MethodPost, "/api/v1/triggers/subscriber.created", `{"plan":"premium"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Executions, 1)
	assert.Equal(t, models.ExecutionSuccess, resp.Executions[0].Status)
	assert.Equal(t, map[string]any{"plan": "premium"}, resp.Executions[0].EventData)
	assert.Empty(t, resp.Error)
}

func TestFireTrigger_CriticalFailureReported(t *testing.T) {
	ts := newTestServer(t, nil)
	_, err := ts.engine.RegisterWorkflow("fragile", models.WorkflowDefinition{
		Triggers: []string{"sale.completed"},
		Actions:  []models.Action{{Target: "billing-service", Operation: "explode", Critical: true}},
	})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/api/v1/triggers/sale.completed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ExecutionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Executions, 1)
	assert.Equal(t, models.ExecutionFailed, resp.Executions[0].Status)
	assert.Contains(t, resp.Error, "service exploded")
}

func TestExecuteWorkflow(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/api/v1/workflows/welcome", welcomeWorkflow).Code)

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/welcome/execute", `{"plan":"free"}`)
	require.Equal(t, http.StatusOK, rec.Code, "conditions are skipped")

	rec = ts.do(t, http.MethodPost, "/api/v1/workflows/welcome/execute", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "cooldown applies")

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/v1/workflows/ghost/execute", "").Code)

	ts.engine.SetWorkflowStatus("welcome", models.WorkflowPaused)
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/v1/workflows/welcome/execute", "").Code)
}

func TestListExecutionsAndStats(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, id := range []string{"a", "b"} {
		_, err := ts.engine.RegisterWorkflow(id, models.WorkflowDefinition{
			Triggers: []string{"tick"},
			Actions:  []models.Action{{Target: "svc", Operation: "op"}},
		})
		require.NoError(t, err)
	}
	_, err := ts.engine.HandleTrigger(context.Background(), "tick", nil)
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/v1/executions?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []models.ExecutionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 1)

	rec = ts.do(t, http.MethodGet, "/api/v1/executions?workflow_id=b", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].WorkflowID)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/v1/executions?limit=-3", "").Code)
	assert.Equal(t, http.StatusNotImplemented, ts.do(t, http.MethodGet, "/api/v1/executions?archived=true", "").Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalWorkflows)
	assert.Equal(t, int64(2), stats.Metrics.WorkflowsExecuted)
	assert.Equal(t, 100.0, stats.SuccessRate)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, ts.engine.Shutdown(context.Background()))
	rec = ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/triggers/anything", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{engine.ErrInvalidDefinition, http.StatusBadRequest},
		{engine.ErrWorkflowNotFound, http.StatusNotFound},
		{repository.ErrNotFound, http.StatusNotFound},
		{engine.ErrWorkflowPaused, http.StatusConflict},
		{engine.ErrCooldownActive, http.StatusTooManyRequests},
		{engine.ErrConcurrencyLimit, http.StatusTooManyRequests},
		{engine.ErrEngineNotRunning, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
		{echo.NewHTTPError(http.StatusTeapot, "tea"), http.StatusTeapot},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, toHTTPError(tt.err).Code, tt.err.Error())
	}
}
