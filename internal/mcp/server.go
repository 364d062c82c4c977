// Package mcp exposes the funnel engine's operations as MCP tools so agent
// runtimes can drive campaigns directly.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/innovareai/sam-funnel-engine/internal/services"
	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

type Server struct {
	mcpServer *server.MCPServer
	funnels   *services.FunnelService
}

func NewServer(funnels *services.FunnelService) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Sam Funnel Engine",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		funnels: funnels,
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
			"core_funnel_execute",
			mcp.WithDescription("Execute a deployed core funnel template against a prospect batch"),
			mcp.WithString("template_id", mcp.Required(), mcp.Description("Core funnel template id")),
			mcp.WithString("campaign_id", mcp.Required(), mcp.Description("Owning campaign id")),
			mcp.WithString("prospects", mcp.Required(), mcp.Description("JSON array of prospect records")),
		),
		s.handleExecuteCore,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"core_funnel_status",
			mcp.WithDescription("Get the status of a core funnel execution"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("Automation backend execution id")),
		),
		s.handleStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"core_funnel_stop",
			mcp.WithDescription("Stop a running funnel execution"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("Automation backend execution id")),
		),
		s.handleStop,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"dynamic_funnel_execute",
			mcp.WithDescription("Execute a deployed dynamic funnel against a prospect batch; failures surface immediately without retry"),
			mcp.WithString("definition_id", mcp.Required(), mcp.Description("Dynamic funnel definition id")),
			mcp.WithString("campaign_id", mcp.Required(), mcp.Description("Owning campaign id")),
			mcp.WithString("prospects", mcp.Required(), mcp.Description("JSON array of prospect records")),
		),
		s.handleExecuteDynamic,
	)
}

func (s *Server) handleExecuteCore(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	templateID, _ := args["template_id"].(string)
	campaignID, _ := args["campaign_id"].(string)
	prospects, err := decodeProspects(args)
	if templateID == "" || campaignID == "" || err != nil {
		return mcp.NewToolResultError("template_id, campaign_id and prospects are required"), nil
	}

	exec, err := s.funnels.ExecuteCore(ctx, templateID, campaignID, prospects)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to execute core funnel: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(exec)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleExecuteDynamic(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	definitionID, _ := args["definition_id"].(string)
	campaignID, _ := args["campaign_id"].(string)
	prospects, err := decodeProspects(args)
	if definitionID == "" || campaignID == "" || err != nil {
		return mcp.NewToolResultError("definition_id, campaign_id and prospects are required"), nil
	}

	exec, err := s.funnels.ExecuteDynamic(ctx, definitionID, campaignID, prospects)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to execute dynamic funnel: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(exec)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	executionID, _ := args["execution_id"].(string)
	if executionID == "" {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}

	record, backend, err := s.funnels.ExecutionStatus(ctx, models.FunnelTypeCore, executionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get execution status: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(map[string]interface{}{
		"execution": record,
		"backend":   backend,
	})
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	executionID, _ := args["execution_id"].(string)
	if executionID == "" {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}

	stopped, err := s.funnels.StopExecution(ctx, executionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to stop execution: %v", err)), nil
	}
	if !stopped {
		return mcp.NewToolResultText("Execution was not running"), nil
	}
	return mcp.NewToolResultText("Execution stopped"), nil
}

func decodeProspects(args map[string]interface{}) ([]models.ProspectData, error) {
	raw, _ := args["prospects"].(string)
	if raw == "" {
		return nil, fmt.Errorf("prospects is required")
	}
	var prospects []models.ProspectData
	if err := json.Unmarshal([]byte(raw), &prospects); err != nil {
		return nil, fmt.Errorf("decode prospects: %w", err)
	}
	if len(prospects) == 0 {
		return nil, fmt.Errorf("prospects is empty")
	}
	return prospects, nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
