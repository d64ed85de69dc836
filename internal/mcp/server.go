package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"creator-automation/backend/pkg/models"
)

// Engine is the subset of the workflow engine exposed as MCP tools.
type Engine interface {
	GetWorkflow(id string) (*models.Workflow, bool)
	ListWorkflows() []*models.Workflow
	SetWorkflowStatus(id string, status models.WorkflowStatus) bool
	HandleTrigger(ctx context.Context, trigger string, data map[string]any) ([]*models.ExecutionRecord, error)
	GetExecutionHistory(limit int) []*models.ExecutionRecord
	GetStats() models.Stats
}

type Server struct {
	mcpServer *server.MCPServer
	engine    Engine
}

func NewServer(engine Engine) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Creator Automation",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		engine: engine,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List all registered automation workflows"),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_workflow",
			mcp.WithDescription("Get a workflow and its execution statistics"),
			mcp.WithString("id", mcp.Required(), mcp.Description("The ID of the workflow")),
		),
		s.handleGetWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"set_workflow_status",
			mcp.WithDescription("Pause or resume a workflow"),
			mcp.WithString("id", mcp.Required(), mcp.Description("The ID of the workflow")),
			mcp.WithString("status", mcp.Required(), mcp.Description("Either active or paused")),
		),
		s.handleSetWorkflowStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"fire_trigger",
			mcp.WithDescription("Deliver a platform event to the automation engine"),
			mcp.WithString("trigger", mcp.Required(), mcp.Description("The trigger name, e.g. subscriber.created")),
			mcp.WithObject("data", mcp.Description("Event payload used by workflow conditions")),
		),
		s.handleFireTrigger,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"execution_history",
			mcp.WithDescription("Recent workflow executions, newest first"),
			mcp.WithNumber("limit", mcp.Description("Maximum number of records, default 20")),
		),
		s.handleExecutionHistory,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"engine_stats",
			mcp.WithDescription("Engine counters and success rate"),
		),
		s.handleEngineStats,
	)
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.engine.ListWorkflows())
}

func (s *Server) handleGetWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := arguments(request)["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	wf, found := s.engine.GetWorkflow(id)
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("Workflow %s not found", id)), nil
	}
	return jsonResult(wf)
}

func (s *Server) handleSetWorkflowStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}
	raw, _ := args["status"].(string)
	status := models.WorkflowStatus(raw)
	if !status.Valid() {
		return mcp.NewToolResultError("status must be active or paused"), nil
	}

	if !s.engine.SetWorkflowStatus(id, status) {
		return mcp.NewToolResultError(fmt.Sprintf("Workflow %s not found", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Workflow %s is now %s", id, status)), nil
}

func (s *Server) handleFireTrigger(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	trigger, ok := args["trigger"].(string)
	if !ok || trigger == "" {
		return mcp.NewToolResultError("Missing required parameter: trigger"), nil
	}
	data, _ := args["data"].(map[string]interface{})

	records, err := s.engine.HandleTrigger(ctx, trigger, data)
	if err != nil && records == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to handle trigger: %v", err)), nil
	}
	if records == nil {
		records = []*models.ExecutionRecord{}
	}
	return jsonResult(records)
}

func (s *Server) handleExecutionHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := 20
	if n, ok := arguments(request)["limit"].(float64); ok {
		if n < 0 {
			return mcp.NewToolResultError("limit must be non-negative"), nil
		}
		limit = int(n)
	}
	return jsonResult(s.engine.GetExecutionHistory(limit))
}

func (s *Server) handleEngineStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.engine.GetStats())
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
