package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/innovareai/sam-funnel-engine/internal/logging"
	"github.com/innovareai/sam-funnel-engine/internal/repository"
	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

// FunnelService deploys funnels to the automation backend and starts
// executions against prospect batches.
type FunnelService struct {
	client     ExecutionClient
	funnels    repository.FunnelStore
	executions repository.ExecutionStore
	logger     *logging.Logger
}

// NewFunnelService creates a FunnelService.
func NewFunnelService(client ExecutionClient, funnels repository.FunnelStore, executions repository.ExecutionStore, logger *logging.Logger) *FunnelService {
	return &FunnelService{
		client:     client,
		funnels:    funnels,
		executions: executions,
		logger:     logger,
	}
}

// DeployCoreTemplate substitutes variables into a template definition,
// deploys it, and records the assigned workflow id on the template.
func (s *FunnelService) DeployCoreTemplate(ctx context.Context, templateID string, variables map[string]string) (string, error) {
	tmpl, err := s.funnels.GetTemplate(ctx, templateID)
	if err != nil {
		return "", err
	}
	if tmpl.Definition == nil {
		return "", fmt.Errorf("core funnel template %s has no workflow definition", templateID)
	}

	def, err := SubstituteVariables(tmpl.Definition, variables)
	if err != nil {
		return "", err
	}

	workflowID, err := s.client.Deploy(ctx, def)
	if err != nil {
		return "", fmt.Errorf("deploy core funnel template %s: %w", templateID, err)
	}
	if err := s.funnels.SetTemplateWorkflowID(ctx, templateID, workflowID); err != nil {
		return "", err
	}
	s.logger.Info("Core funnel template deployed", "template_id", templateID, "workflow_id", workflowID)
	return workflowID, nil
}

// ExecuteCore starts a core funnel execution for a prospect batch. The
// underlying client retries per its bounded policy; a terminal failure
// surfaces to the caller with the attempt count.
func (s *FunnelService) ExecuteCore(ctx context.Context, templateID, campaignID string, prospects []models.ProspectData) (*models.FunnelExecution, error) {
	tmpl, err := s.funnels.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tmpl.WorkflowID == "" {
		return nil, fmt.Errorf("core funnel template %s is not deployed", templateID)
	}

	executionID, err := s.client.Execute(ctx, tmpl.WorkflowID, executionPayload("core_funnel", prospects))
	if err != nil {
		return nil, err
	}

	exec := &models.FunnelExecution{
		ID:                 uuid.New().String(),
		FunnelType:         models.FunnelTypeCore,
		CampaignID:         campaignID,
		TemplateID:         templateID,
		BackendExecutionID: executionID,
		Status:             models.FunnelExecutionRunning,
		ProspectsTotal:     len(prospects),
		StartedAt:          time.Now().UTC(),
	}
	if err := s.executions.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}
	s.logger.Info("Core funnel execution started",
		"execution_id", executionID, "template_id", templateID, "prospects", len(prospects))
	return exec, nil
}

// CreateDynamic deploys an AI-generated definition and persists it. No
// automatic retry: an invalid generated definition is reported immediately.
func (s *FunnelService) CreateDynamic(ctx context.Context, def *models.DynamicFunnelDefinition) error {
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}

	workflowID, err := s.client.Deploy(ctx, def.Definition)
	if err != nil {
		return fmt.Errorf("deploy dynamic funnel %s: %w", def.ID, err)
	}
	def.WorkflowID = workflowID

	if err := s.funnels.CreateDefinition(ctx, def); err != nil {
		return err
	}
	s.logger.Info("Dynamic funnel created", "definition_id", def.ID, "workflow_id", workflowID)
	return nil
}

// ExecuteDynamic starts a dynamic funnel execution. Failures surface
// immediately without retry.
func (s *FunnelService) ExecuteDynamic(ctx context.Context, definitionID, campaignID string, prospects []models.ProspectData) (*models.FunnelExecution, error) {
	def, err := s.funnels.GetDefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	if def.WorkflowID == "" {
		return nil, fmt.Errorf("dynamic funnel definition %s is not deployed", definitionID)
	}

	executionID, err := s.client.ExecuteDynamic(ctx, def.WorkflowID, executionPayload("dynamic_funnel", prospects))
	if err != nil {
		return nil, err
	}

	exec := &models.FunnelExecution{
		ID:                 uuid.New().String(),
		FunnelType:         models.FunnelTypeDynamic,
		CampaignID:         campaignID,
		DefinitionID:       definitionID,
		BackendExecutionID: executionID,
		Status:             models.FunnelExecutionRunning,
		ProspectsTotal:     len(prospects),
		CurrentStep:        1,
		StartedAt:          time.Now().UTC(),
	}
	if err := s.executions.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}
	s.logger.Info("Dynamic funnel execution started",
		"execution_id", executionID, "definition_id", definitionID, "prospects", len(prospects))
	return exec, nil
}

// RewriteDynamic replaces the remaining steps of a deployed dynamic funnel
// with a new definition, wholesale.
func (s *FunnelService) RewriteDynamic(ctx context.Context, definitionID string, def *models.WorkflowDefinition) error {
	current, err := s.funnels.GetDefinition(ctx, definitionID)
	if err != nil {
		return err
	}
	if current.WorkflowID == "" {
		return fmt.Errorf("dynamic funnel definition %s is not deployed", definitionID)
	}
	if err := s.client.Update(ctx, current.WorkflowID, def); err != nil {
		return fmt.Errorf("rewrite dynamic funnel %s: %w", definitionID, err)
	}
	return nil
}

// ExecutionStatus joins the backend's execution state with the stored
// funnel execution record.
func (s *FunnelService) ExecutionStatus(ctx context.Context, funnelType models.FunnelType, backendExecutionID string) (*models.FunnelExecution, *models.WorkflowExecution, error) {
	record, err := s.executions.GetExecution(ctx, funnelType, backendExecutionID)
	if err != nil {
		return nil, nil, err
	}
	backend, err := s.client.GetStatus(ctx, backendExecutionID)
	if err != nil {
		return nil, nil, err
	}
	return record, backend, nil
}

// StopExecution asks the backend to abort a running execution.
func (s *FunnelService) StopExecution(ctx context.Context, backendExecutionID string) (bool, error) {
	return s.client.Stop(ctx, backendExecutionID)
}

// ExecutionLogs fetches the per-node run data the backend recorded for an
// execution, keyed by node name.
func (s *FunnelService) ExecutionLogs(ctx context.Context, backendExecutionID string) (map[string]interface{}, error) {
	return s.client.GetExecutionLogs(ctx, backendExecutionID)
}

// ListWorkflows lists the workflows currently registered on the backend.
func (s *FunnelService) ListWorkflows(ctx context.Context) ([]models.WorkflowSummary, error) {
	return s.client.ListWorkflows(ctx)
}

// SubstituteVariables replaces {{key}} placeholders throughout a workflow
// definition, including inside node parameters, by round-tripping the
// definition through its JSON form.
func SubstituteVariables(def *models.WorkflowDefinition, variables map[string]string) (*models.WorkflowDefinition, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encode template definition: %w", err)
	}
	replaced := string(raw)
	for key, value := range variables {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode template variable %s: %w", key, err)
		}
		// strip the quotes added by Marshal so the value splices into the
		// surrounding JSON string
		escaped := strings.Trim(string(encoded), `"`)
		replaced = strings.ReplaceAll(replaced, "{{"+key+"}}", escaped)
	}

	var out models.WorkflowDefinition
	if err := json.Unmarshal([]byte(replaced), &out); err != nil {
		return nil, fmt.Errorf("decode substituted definition: %w", err)
	}
	return &out, nil
}

func executionPayload(executionType string, prospects []models.ProspectData) map[string]interface{} {
	return map[string]interface{}{
		"prospects":      prospects,
		"execution_type": executionType,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
}
