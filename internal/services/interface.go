package services

import (
	"context"

	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

// ExecutionClient is the interface to the workflow-automation backend.
type ExecutionClient interface {
	// Deploy validates, creates and activates a workflow definition.
	Deploy(ctx context.Context, def *models.WorkflowDefinition) (string, error)
	// Execute starts a core funnel execution with bounded retries.
	Execute(ctx context.Context, workflowID string, payload map[string]interface{}) (string, error)
	// ExecuteDynamic starts a dynamic funnel execution without retrying.
	ExecuteDynamic(ctx context.Context, workflowID string, payload map[string]interface{}) (string, error)
	// Update replaces a workflow definition wholesale.
	Update(ctx context.Context, workflowID string, def *models.WorkflowDefinition) error
	// GetStatus fetches the backend's view of an execution.
	GetStatus(ctx context.Context, executionID string) (*models.WorkflowExecution, error)
	// GetExecutionLogs fetches the per-node run data of an execution.
	GetExecutionLogs(ctx context.Context, executionID string) (map[string]interface{}, error)
	// Stop aborts a running execution.
	Stop(ctx context.Context, executionID string) (bool, error)
	// Delete removes a workflow.
	Delete(ctx context.Context, workflowID string) (bool, error)
	// ListWorkflows lists the workflows registered on the backend.
	ListWorkflows(ctx context.Context) ([]models.WorkflowSummary, error)
}
