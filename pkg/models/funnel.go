package models

import (
	"time"
)

// FunnelType classifies which funnel family a workflow belongs to.
type FunnelType string

const (
	FunnelTypeCore    FunnelType = "core"
	FunnelTypeDynamic FunnelType = "dynamic"
	FunnelTypeUnknown FunnelType = "unknown"
)

// CoreFunnelTemplate is a static, pre-authored outreach sequence reused
// across campaigns. The WorkflowID is assigned when the template is deployed
// to the automation backend.
type CoreFunnelTemplate struct {
	ID          string              `json:"id"`
	FunnelKind  string              `json:"funnel_type"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Industry    string              `json:"industry,omitempty"`
	TargetRole  string              `json:"target_role,omitempty"`
	WorkflowID  string              `json:"n8n_workflow_id,omitempty"`
	Definition  *WorkflowDefinition `json:"workflow_json,omitempty"`
	StepCount   int                 `json:"step_count"`
	IsActive    bool                `json:"is_active"`
	CreatedAt   time.Time           `json:"created_at"`
}

// DynamicFunnelDefinition is an AI-generated sequence owned by a single
// campaign. It can be rewritten mid-flight by the sequence generator.
type DynamicFunnelDefinition struct {
	ID           string              `json:"id"`
	CampaignID   string              `json:"campaign_id"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	WorkflowID   string              `json:"n8n_workflow_id,omitempty"`
	Definition   *WorkflowDefinition `json:"workflow_json,omitempty"`
	CreatedBySam bool                `json:"created_by_sam"`
	CreatedAt    time.Time           `json:"created_at"`
}

// FunnelExecutionStatus is the lifecycle status of a funnel execution record.
// Closing to completed or failed is one-way.
type FunnelExecutionStatus string

const (
	FunnelExecutionRunning   FunnelExecutionStatus = "running"
	FunnelExecutionCompleted FunnelExecutionStatus = "completed"
	FunnelExecutionFailed    FunnelExecutionStatus = "failed"
)

// FunnelExecution joins a backend workflow execution to a campaign and tracks
// aggregate counters. Counters are incremented in place by webhook events,
// never read-modify-written.
type FunnelExecution struct {
	ID                 string                 `json:"id"`
	FunnelType         FunnelType             `json:"funnel_type"`
	CampaignID         string                 `json:"campaign_id"`
	TemplateID         string                 `json:"template_id,omitempty"`
	DefinitionID       string                 `json:"definition_id,omitempty"`
	BackendExecutionID string                 `json:"n8n_execution_id"`
	Status             FunnelExecutionStatus  `json:"status"`
	ProspectsTotal     int                    `json:"prospects_total"`
	ProspectsProcessed int                    `json:"prospects_processed"`
	Failures           int                    `json:"failures"`
	CurrentStep        int                    `json:"current_step"`
	LastStepCompleted  string                 `json:"last_step_completed,omitempty"`
	FinalStats         map[string]interface{} `json:"final_stats,omitempty"`
	ErrorDetails       string                 `json:"error_details,omitempty"`
	StartedAt          time.Time              `json:"started_at"`
	CompletedAt        *time.Time             `json:"completed_at,omitempty"`
}

// CampaignMetrics is the campaign-level aggregate read by dashboards.
type CampaignMetrics struct {
	CampaignID         string    `json:"campaign_id"`
	ProspectsResponded int       `json:"prospects_responded"`
	ProspectsConverted int       `json:"prospects_converted"`
	Failures           int       `json:"failures"`
	ProspectsProcessed int       `json:"prospects_processed"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// AdaptationIntent is the decision emitted by the adaptation evaluator. It is
// consumed by the sequence-generation service, never acted on here.
type AdaptationIntent string

const (
	IntentRerouteToObjectionHandling AdaptationIntent = "reroute_to_objection_handling"
	IntentAccelerateToBooking        AdaptationIntent = "accelerate_to_booking"
	IntentRemoveFromSequence         AdaptationIntent = "remove_from_sequence"
	IntentNone                       AdaptationIntent = "none"
)

// AdaptationLogEntry is the append-only audit record of an adaptation
// decision. Written before any side effect is applied.
type AdaptationLogEntry struct {
	ID            string                 `json:"id"`
	DefinitionID  string                 `json:"definition_id,omitempty"`
	ExecutionID   string                 `json:"execution_id"`
	EventType     string                 `json:"event_type"`
	TriggerReason string                 `json:"trigger_reason"`
	Intent        AdaptationIntent       `json:"intent"`
	StepOrder     int                    `json:"step_order"`
	Data          map[string]interface{} `json:"data,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}
