// Package repository is the persisted-store layer. All cross-event
// coordination happens through it: counters are incremented in place and
// history appends are atomic at the row level, so concurrent webhook
// handlers need no application-level locking.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

// ErrNotFound is returned when a row-filtered read matches nothing.
var ErrNotFound = errors.New("not found")

// FunnelStore maps automation-backend workflow ids to the funnel records
// that own them, and is the source of truth for classification.
type FunnelStore interface {
	// Classify resolves a workflow id to core, dynamic or unknown. Both-or-
	// neither matches yield unknown; callers must treat that as a routing
	// failure, never default to one type.
	Classify(ctx context.Context, workflowID string) (models.FunnelType, error)

	CreateTemplate(ctx context.Context, tmpl *models.CoreFunnelTemplate) error
	GetTemplate(ctx context.Context, templateID string) (*models.CoreFunnelTemplate, error)
	ListTemplates(ctx context.Context) ([]*models.CoreFunnelTemplate, error)
	SetTemplateWorkflowID(ctx context.Context, templateID, workflowID string) error

	CreateDefinition(ctx context.Context, def *models.DynamicFunnelDefinition) error
	GetDefinition(ctx context.Context, definitionID string) (*models.DynamicFunnelDefinition, error)
	SetDefinitionWorkflowID(ctx context.Context, definitionID, workflowID string) error
}

// ProspectStore persists per-prospect campaign progress.
type ProspectStore interface {
	Get(ctx context.Context, prospectID string) (*models.CampaignProspect, error)
	// AppendStepEvent atomically appends to the response history and stamps
	// last_activity, returning the full history after the append.
	AppendStepEvent(ctx context.Context, prospectID string, event models.StepEvent) ([]models.StepEvent, error)
	SetStatus(ctx context.Context, prospectID string, status models.ProspectStatus) error
	// MarkConverted stamps the booking terminal on a prospect.
	MarkConverted(ctx context.Context, prospectID string, bookedAt time.Time, details map[string]interface{}) error
}

// ExecutionStore persists funnel execution records. Rows are keyed by the
// automation backend's execution id because that is all a webhook carries.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec *models.FunnelExecution) error
	GetExecution(ctx context.Context, funnelType models.FunnelType, backendExecutionID string) (*models.FunnelExecution, error)
	IncrementProcessed(ctx context.Context, funnelType models.FunnelType, backendExecutionID, lastStepCompleted string) error
	IncrementFailures(ctx context.Context, funnelType models.FunnelType, backendExecutionID string) error
	// ShiftStepPopulation moves one prospect from fromStep to toStep in the
	// dynamic execution's population histogram and advances current_step.
	ShiftStepPopulation(ctx context.Context, backendExecutionID string, fromStep, toStep int) error
	StepPopulation(ctx context.Context, backendExecutionID string, stepOrder int) (int, error)
	// CloseExecution writes the terminal status and snapshot. Closing is
	// one-way; re-closing with identical data is harmless.
	CloseExecution(ctx context.Context, funnelType models.FunnelType, backendExecutionID string, status models.FunnelExecutionStatus, snapshot map[string]interface{}, errorDetails string) error
}

// MetricsStore applies increment-only atomic updates to campaign-level
// aggregates.
type MetricsStore interface {
	IncrementResponded(ctx context.Context, campaignID string) error
	IncrementConverted(ctx context.Context, campaignID string) error
	GetCampaignMetrics(ctx context.Context, campaignID string) (*models.CampaignMetrics, error)
}

// LogStore holds the append-only audit and error tables plus the webhook
// delivery dedup ledger.
type LogStore interface {
	InsertStepLog(ctx context.Context, payload *models.WebhookPayload, funnelType models.FunnelType, prospectID, stepName string, result models.StepResult) error
	// InsertAdaptationLog writes the audit row ahead of any side effect.
	InsertAdaptationLog(ctx context.Context, entry *models.AdaptationLogEntry) error
	InsertWebhookError(ctx context.Context, payload *models.WebhookPayload, errMsg string) error
	// RecordDelivery claims a delivery key and reports whether it was
	// fresh. Exact replays return false and must be skipped upstream of the
	// state machine. A claim whose processing fails must be released so the
	// redelivery is not mistaken for a replay.
	RecordDelivery(ctx context.Context, payload *models.WebhookPayload) (bool, error)
	// ReleaseDelivery drops a claim after failed processing.
	ReleaseDelivery(ctx context.Context, payload *models.WebhookPayload) error
}
