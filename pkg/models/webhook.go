package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the callback event kind posted by the automation backend.
type EventType string

const (
	EventStepCompleted      EventType = "step_completed"
	EventStepFailed         EventType = "step_failed"
	EventProspectResponded  EventType = "prospect_responded"
	EventExecutionCompleted EventType = "execution_completed"
	EventExecutionFailed    EventType = "execution_failed"
)

// ResponseType classifies a prospect's reply.
type ResponseType string

const (
	ResponsePositive      ResponseType = "positive"
	ResponseNegative      ResponseType = "negative"
	ResponseNeutral       ResponseType = "neutral"
	ResponseMeetingBooked ResponseType = "meeting_booked"
	ResponseObjection     ResponseType = "objection"
	ResponseInterest      ResponseType = "interest"
	ResponseUnsubscribe   ResponseType = "unsubscribe"
)

// WebhookPayload is the callback envelope delivered by the automation
// backend. Delivery is at-least-once and may be redelivered out of order.
type WebhookPayload struct {
	ExecutionID string                 `json:"executionId"`
	WorkflowID  string                 `json:"workflowId"`
	NodeID      string                 `json:"nodeId"`
	EventType   EventType              `json:"eventType"`
	Data        map[string]interface{} `json:"data"`
	Timestamp   time.Time              `json:"timestamp"`
}

// CoreEventData is the data blob carried by core funnel events.
type CoreEventData struct {
	ProspectID   string                 `json:"prospectId"`
	CampaignID   string                 `json:"campaignId"`
	TemplateID   string                 `json:"templateId,omitempty"`
	StepName     string                 `json:"stepName,omitempty"`
	ResponseType ResponseType           `json:"responseType,omitempty"`
	Response     map[string]interface{} `json:"response,omitempty"`
	Confidence   float64                `json:"confidence,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Stats        map[string]interface{} `json:"stats,omitempty"`
}

// DynamicEventData is the data blob carried by dynamic funnel events.
type DynamicEventData struct {
	ProspectID        string                 `json:"prospectId"`
	CampaignID        string                 `json:"campaignId"`
	DefinitionID      string                 `json:"definitionId,omitempty"`
	StepOrder         int                    `json:"stepOrder"`
	AdaptationTrigger string                 `json:"adaptationTrigger,omitempty"`
	ResponseType      ResponseType           `json:"responseType,omitempty"`
	Response          map[string]interface{} `json:"response,omitempty"`
	Sentiment         string                 `json:"sentiment,omitempty"`
	Confidence        float64                `json:"confidence,omitempty"`
	Error             string                 `json:"error,omitempty"`
	Metrics           map[string]interface{} `json:"metrics,omitempty"`
}

// DecodeCoreData unpacks the payload data blob into its core funnel form.
func (p *WebhookPayload) DecodeCoreData() (*CoreEventData, error) {
	var out CoreEventData
	if err := decodeData(p.Data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodeDynamicData unpacks the payload data blob into its dynamic funnel form.
func (p *WebhookPayload) DecodeDynamicData() (*DynamicEventData, error) {
	var out DynamicEventData
	if err := decodeData(p.Data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func decodeData(data map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode event data: %w", err)
	}
	return nil
}
