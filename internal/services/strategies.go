package services

import (
	"context"
	"fmt"

	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

// staticStrategy handles events for template-driven core funnels, tracked by
// named step.
type staticStrategy struct {
	svc *WebhookService
}

func (st staticStrategy) stepCompleted(ctx context.Context, payload *models.WebhookPayload) error {
	data, err := payload.DecodeCoreData()
	if err != nil {
		return err
	}

	event := models.StepEvent{
		StepID:   data.StepName,
		StepType: models.StepMessageSent,
		Result:   models.ResultSuccess,
		Metadata: map[string]interface{}{
			"templateId":  data.TemplateID,
			"executionId": payload.ExecutionID,
			"workflowId":  payload.WorkflowID,
		},
		Timestamp: payload.Timestamp,
	}
	if _, err := st.svc.progression.ApplyStep(ctx, data.ProspectID, event); err != nil {
		return err
	}
	if err := st.svc.executions.IncrementProcessed(ctx, models.FunnelTypeCore, payload.ExecutionID, data.StepName); err != nil {
		return err
	}
	return st.svc.logs.InsertStepLog(ctx, payload, models.FunnelTypeCore, data.ProspectID, data.StepName, models.ResultSuccess)
}

func (st staticStrategy) stepFailed(ctx context.Context, payload *models.WebhookPayload) error {
	data, err := payload.DecodeCoreData()
	if err != nil {
		return err
	}

	event := models.StepEvent{
		StepID:   data.StepName,
		StepType: models.StepMessageSent,
		Result:   models.ResultFailure,
		Metadata: map[string]interface{}{
			"error":       data.Error,
			"templateId":  data.TemplateID,
			"executionId": payload.ExecutionID,
		},
		Timestamp: payload.Timestamp,
	}
	if _, err := st.svc.progression.ApplyStep(ctx, data.ProspectID, event); err != nil {
		return err
	}
	if err := st.svc.executions.IncrementFailures(ctx, models.FunnelTypeCore, payload.ExecutionID); err != nil {
		return err
	}
	return st.svc.logs.InsertStepLog(ctx, payload, models.FunnelTypeCore, data.ProspectID, data.StepName, models.ResultFailure)
}

func (st staticStrategy) prospectResponded(ctx context.Context, payload *models.WebhookPayload) error {
	data, err := payload.DecodeCoreData()
	if err != nil {
		return err
	}
	metadata := map[string]interface{}{
		"responseType": data.ResponseType,
		"executionId":  payload.ExecutionID,
	}
	return st.svc.recordResponse(ctx, payload, data.ProspectID, data.CampaignID,
		"response_received", data.ResponseType, data.Response, metadata)
}

func (st staticStrategy) executionFinished(ctx context.Context, payload *models.WebhookPayload, status models.FunnelExecutionStatus) error {
	data, err := payload.DecodeCoreData()
	if err != nil {
		return err
	}
	return st.svc.executions.CloseExecution(ctx, models.FunnelTypeCore, payload.ExecutionID, status, data.Stats, data.Error)
}

// adaptiveStrategy handles events for AI-generated dynamic funnels, tracked
// by step order, with a population histogram and adaptation hooks.
type adaptiveStrategy struct {
	svc *WebhookService
}

func (st adaptiveStrategy) stepCompleted(ctx context.Context, payload *models.WebhookPayload) error {
	data, err := payload.DecodeDynamicData()
	if err != nil {
		return err
	}

	// The adaptation trail is write-ahead relative to state mutation.
	if data.AdaptationTrigger != "" {
		if err := st.svc.evaluator.OnTrigger(ctx, data, payload.ExecutionID, payload.Data); err != nil {
			return err
		}
	}

	stepID := stepIDForOrder(data.StepOrder)
	event := models.StepEvent{
		StepID:   stepID,
		StepType: models.StepMessageSent,
		Result:   models.ResultSuccess,
		Metadata: map[string]interface{}{
			"definitionId": data.DefinitionID,
			"stepOrder":    data.StepOrder,
			"executionId":  payload.ExecutionID,
		},
		Timestamp: payload.Timestamp,
	}
	if _, err := st.svc.progression.ApplyStep(ctx, data.ProspectID, event); err != nil {
		return err
	}
	if err := st.svc.executions.IncrementProcessed(ctx, models.FunnelTypeDynamic, payload.ExecutionID, stepID); err != nil {
		return err
	}
	if err := st.svc.executions.ShiftStepPopulation(ctx, payload.ExecutionID, data.StepOrder, data.StepOrder+1); err != nil {
		return err
	}
	return st.svc.logs.InsertStepLog(ctx, payload, models.FunnelTypeDynamic, data.ProspectID, stepID, models.ResultSuccess)
}

func (st adaptiveStrategy) stepFailed(ctx context.Context, payload *models.WebhookPayload) error {
	data, err := payload.DecodeDynamicData()
	if err != nil {
		return err
	}

	stepID := stepIDForOrder(data.StepOrder)
	event := models.StepEvent{
		StepID:   stepID,
		StepType: models.StepMessageSent,
		Result:   models.ResultFailure,
		Metadata: map[string]interface{}{
			"error":        data.Error,
			"definitionId": data.DefinitionID,
			"stepOrder":    data.StepOrder,
		},
		Timestamp: payload.Timestamp,
	}
	if _, err := st.svc.progression.ApplyStep(ctx, data.ProspectID, event); err != nil {
		return err
	}
	if err := st.svc.executions.IncrementFailures(ctx, models.FunnelTypeDynamic, payload.ExecutionID); err != nil {
		return err
	}
	if err := st.svc.logs.InsertStepLog(ctx, payload, models.FunnelTypeDynamic, data.ProspectID, stepID, models.ResultFailure); err != nil {
		return err
	}
	// Failures feed the adaptation learning trail.
	return st.svc.evaluator.OnStepFailure(ctx, data, payload.ExecutionID)
}

func (st adaptiveStrategy) prospectResponded(ctx context.Context, payload *models.WebhookPayload) error {
	data, err := payload.DecodeDynamicData()
	if err != nil {
		return err
	}

	// Responses always run through the evaluator, independent of any
	// explicit trigger hint, and ahead of state mutation.
	if _, err := st.svc.evaluator.OnResponse(ctx, data, payload.ExecutionID); err != nil {
		return err
	}

	metadata := map[string]interface{}{
		"responseType": data.ResponseType,
		"stepOrder":    data.StepOrder,
		"sentiment":    data.Sentiment,
		"executionId":  payload.ExecutionID,
	}
	return st.svc.recordResponse(ctx, payload, data.ProspectID, data.CampaignID,
		stepIDForOrder(data.StepOrder), data.ResponseType, data.Response, metadata)
}

func (st adaptiveStrategy) executionFinished(ctx context.Context, payload *models.WebhookPayload, status models.FunnelExecutionStatus) error {
	data, err := payload.DecodeDynamicData()
	if err != nil {
		return err
	}
	return st.svc.executions.CloseExecution(ctx, models.FunnelTypeDynamic, payload.ExecutionID, status, data.Metrics, data.Error)
}

func stepIDForOrder(order int) string {
	return fmt.Sprintf("step_%d", order)
}
