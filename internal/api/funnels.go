package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/innovareai/sam-funnel-engine/internal/repository"
	"github.com/innovareai/sam-funnel-engine/internal/services"
	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

// Server holds the dependencies for the operator API.
type Server struct {
	Funnels *services.FunnelService
	Metrics repository.MetricsStore
}

// NewServer creates a new Server.
func NewServer(funnels *services.FunnelService, metrics repository.MetricsStore) *Server {
	return &Server{Funnels: funnels, Metrics: metrics}
}

// RegisterRoutes mounts the operator API on a route group.
func (s *Server) RegisterRoutes(g *echo.Group) {
	g.POST("/funnels/core/deploy", s.DeployCoreFunnel)
	g.POST("/funnels/core/execute", s.ExecuteCoreFunnel)
	g.POST("/funnels/dynamic", s.CreateDynamicFunnel)
	g.POST("/funnels/dynamic/execute", s.ExecuteDynamicFunnel)
	g.PUT("/funnels/dynamic/:id", s.RewriteDynamicFunnel)
	g.GET("/executions/:id", s.GetExecution)
	g.GET("/executions/:id/logs", s.GetExecutionLogs)
	g.POST("/executions/:id/stop", s.StopExecution)
	g.GET("/workflows", s.ListWorkflows)
	g.GET("/campaigns/:id/metrics", s.GetCampaignMetrics)
}

// DeployCoreFunnel deploys a core template to the automation backend.
// (POST /api/v1/funnels/core/deploy)
func (s *Server) DeployCoreFunnel(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		TemplateID string            `json:"template_id"`
		Variables  map[string]string `json:"variables,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.TemplateID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "template_id is required")
	}

	workflowID, err := s.Funnels.DeployCoreTemplate(ctx, req.TemplateID, req.Variables)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"workflow_id": workflowID})
}

// ExecuteCoreFunnel starts a core funnel execution for a prospect batch.
// (POST /api/v1/funnels/core/execute)
func (s *Server) ExecuteCoreFunnel(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		TemplateID string                `json:"template_id"`
		CampaignID string                `json:"campaign_id"`
		Prospects  []models.ProspectData `json:"prospects"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.TemplateID == "" || req.CampaignID == "" || len(req.Prospects) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "template_id, campaign_id and prospects are required")
	}

	exec, err := s.Funnels.ExecuteCore(ctx, req.TemplateID, req.CampaignID, req.Prospects)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, exec)
}

// CreateDynamicFunnel deploys an AI-generated definition.
// (POST /api/v1/funnels/dynamic)
func (s *Server) CreateDynamicFunnel(c echo.Context) error {
	ctx := c.Request().Context()

	var def models.DynamicFunnelDefinition
	if err := c.Bind(&def); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if def.CampaignID == "" || def.Definition == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "campaign_id and workflow_json are required")
	}

	if err := s.Funnels.CreateDynamic(ctx, &def); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, def)
}

// ExecuteDynamicFunnel starts a dynamic funnel execution.
// (POST /api/v1/funnels/dynamic/execute)
func (s *Server) ExecuteDynamicFunnel(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		DefinitionID string                `json:"definition_id"`
		CampaignID   string                `json:"campaign_id"`
		Prospects    []models.ProspectData `json:"prospects"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.DefinitionID == "" || req.CampaignID == "" || len(req.Prospects) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "definition_id, campaign_id and prospects are required")
	}

	exec, err := s.Funnels.ExecuteDynamic(ctx, req.DefinitionID, req.CampaignID, req.Prospects)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, exec)
}

// RewriteDynamicFunnel replaces a deployed dynamic funnel's remaining steps
// with a new workflow definition.
// (PUT /api/v1/funnels/dynamic/:id)
func (s *Server) RewriteDynamicFunnel(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		WorkflowJSON *models.WorkflowDefinition `json:"workflow_json"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.WorkflowJSON == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "workflow_json is required")
	}

	if err := s.Funnels.RewriteDynamic(ctx, c.Param("id"), req.WorkflowJSON); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "rewritten"})
}

// GetExecution joins the stored record with the backend's execution status.
// (GET /api/v1/executions/:id?funnel_type=core|dynamic)
func (s *Server) GetExecution(c echo.Context) error {
	ctx := c.Request().Context()

	funnelType := models.FunnelType(c.QueryParam("funnel_type"))
	if funnelType != models.FunnelTypeCore && funnelType != models.FunnelTypeDynamic {
		return echo.NewHTTPError(http.StatusBadRequest, "funnel_type must be core or dynamic")
	}

	record, backend, err := s.Funnels.ExecutionStatus(ctx, funnelType, c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"execution": record,
		"backend":   backend,
	})
}

// GetExecutionLogs reads the backend's per-node run data for an execution.
// (GET /api/v1/executions/:id/logs)
func (s *Server) GetExecutionLogs(c echo.Context) error {
	ctx := c.Request().Context()

	logs, err := s.Funnels.ExecutionLogs(ctx, c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"run_data": logs})
}

// ListWorkflows lists the workflows registered on the automation backend.
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	ctx := c.Request().Context()

	workflows, err := s.Funnels.ListWorkflows(ctx)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"workflows": workflows})
}

// StopExecution aborts a running execution.
// (POST /api/v1/executions/:id/stop)
func (s *Server) StopExecution(c echo.Context) error {
	ctx := c.Request().Context()

	stopped, err := s.Funnels.StopExecution(ctx, c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"stopped": stopped})
}

// GetCampaignMetrics reads the campaign aggregate counters.
// (GET /api/v1/campaigns/:id/metrics)
func (s *Server) GetCampaignMetrics(c echo.Context) error {
	ctx := c.Request().Context()

	metrics, err := s.Metrics.GetCampaignMetrics(ctx, c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, metrics)
}

func mapServiceError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
