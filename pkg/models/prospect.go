package models

import (
	"time"
)

// ProspectStatus is recomputed from the full response history on every
// update, never patched incrementally.
type ProspectStatus string

const (
	ProspectActive       ProspectStatus = "active"
	ProspectFailed       ProspectStatus = "failed"
	ProspectConverted    ProspectStatus = "converted"
	ProspectUnsubscribed ProspectStatus = "unsubscribed"
)

// StepType identifies what kind of step outcome a StepEvent records.
type StepType string

const (
	StepMessageSent      StepType = "message_sent"
	StepResponseReceived StepType = "response_received"
	StepMeetingBooked    StepType = "meeting_booked"
	StepUnsubscribed     StepType = "unsubscribed"
)

// StepResult is the outcome of a single step.
type StepResult string

const (
	ResultSuccess StepResult = "success"
	ResultFailure StepResult = "failure"
	ResultPending StepResult = "pending"
)

// StepEvent is one entry in a prospect's response history. Immutable once
// appended.
type StepEvent struct {
	StepID       string                 `json:"step_id"`
	StepType     StepType               `json:"step_type"`
	Result       StepResult             `json:"result"`
	ResponseData map[string]interface{} `json:"response_data,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// CampaignProspect is one prospect's progress through a campaign funnel.
// ResponseHistory is append-only: it is never truncated or reordered.
type CampaignProspect struct {
	ID              string         `json:"id"`
	CampaignID      string         `json:"campaign_id"`
	CurrentStep     int            `json:"current_step"`
	Status          ProspectStatus `json:"status"`
	LastActivity    time.Time      `json:"last_activity"`
	MeetingBookedAt *time.Time     `json:"meeting_booked_at,omitempty"`
	ResponseHistory []StepEvent    `json:"response_history"`
}

// ProspectData is the enrichment-pipeline payload passed into an execution.
type ProspectData struct {
	ID           string                 `json:"id"`
	FirstName    string                 `json:"first_name"`
	LastName     string                 `json:"last_name"`
	Email        string                 `json:"email,omitempty"`
	CompanyName  string                 `json:"company_name"`
	Title        string                 `json:"title"`
	LinkedInURL  string                 `json:"linkedin_url,omitempty"`
	CustomFields map[string]interface{} `json:"custom_fields,omitempty"`
}
