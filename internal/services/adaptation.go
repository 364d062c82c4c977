package services

import (
	"context"
	"fmt"
	"time"

	"github.com/innovareai/sam-funnel-engine/internal/metrics"
	"github.com/innovareai/sam-funnel-engine/internal/repository"
	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

// highConfidence is the floor above which an interested reply accelerates
// the prospect toward booking.
const highConfidence = 0.7

// EvaluateResponse maps a classified response to an adaptation intent. It is
// a pure decision function; side effects belong to the caller.
func EvaluateResponse(responseType models.ResponseType, confidence float64) models.AdaptationIntent {
	switch responseType {
	case models.ResponseObjection:
		return models.IntentRerouteToObjectionHandling
	case models.ResponsePositive, models.ResponseInterest:
		if confidence >= highConfidence {
			return models.IntentAccelerateToBooking
		}
		return models.IntentNone
	case models.ResponseUnsubscribe:
		return models.IntentRemoveFromSequence
	default:
		return models.IntentNone
	}
}

// Evaluator records adaptation decisions for dynamic funnels. Every non-none
// decision is written to the audit log before any other side effect is
// applied; the emitted intent is consumed by the sequence generator, never
// acted on here.
type Evaluator struct {
	logs  repository.LogStore
	stats metrics.Metrics
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(logs repository.LogStore, stats metrics.Metrics) *Evaluator {
	return &Evaluator{logs: logs, stats: stats}
}

// OnResponse evaluates a classified prospect response. The audit row is
// written ahead of returning, so callers can apply their mutations after.
func (e *Evaluator) OnResponse(ctx context.Context, data *models.DynamicEventData, executionID string) (models.AdaptationIntent, error) {
	intent := EvaluateResponse(data.ResponseType, data.Confidence)
	if intent == models.IntentNone {
		return intent, nil
	}

	entry := &models.AdaptationLogEntry{
		DefinitionID:  data.DefinitionID,
		ExecutionID:   executionID,
		EventType:     "adaptation_triggered",
		TriggerReason: string(data.ResponseType),
		Intent:        intent,
		StepOrder:     data.StepOrder,
		Data:          data.Response,
		Timestamp:     time.Now().UTC(),
	}
	if err := e.logs.InsertAdaptationLog(ctx, entry); err != nil {
		return models.IntentNone, fmt.Errorf("write adaptation log: %w", err)
	}
	e.stats.IncAdaptation(string(intent))
	return intent, nil
}

// OnTrigger records an explicit adaptation hint carried by a step event,
// ahead of any state mutation for that event.
func (e *Evaluator) OnTrigger(ctx context.Context, data *models.DynamicEventData, executionID string, raw map[string]interface{}) error {
	entry := &models.AdaptationLogEntry{
		DefinitionID:  data.DefinitionID,
		ExecutionID:   executionID,
		EventType:     "adaptation_triggered",
		TriggerReason: data.AdaptationTrigger,
		Intent:        models.IntentNone,
		StepOrder:     data.StepOrder,
		Data:          raw,
		Timestamp:     time.Now().UTC(),
	}
	if err := e.logs.InsertAdaptationLog(ctx, entry); err != nil {
		return fmt.Errorf("write adaptation log: %w", err)
	}
	e.stats.IncAdaptation(string(models.IntentNone))
	return nil
}

// OnStepFailure records a dynamic step failure for adaptation learning.
func (e *Evaluator) OnStepFailure(ctx context.Context, data *models.DynamicEventData, executionID string) error {
	entry := &models.AdaptationLogEntry{
		DefinitionID:  data.DefinitionID,
		ExecutionID:   executionID,
		EventType:     "step_failure",
		TriggerReason: data.Error,
		Intent:        models.IntentNone,
		StepOrder:     data.StepOrder,
		Timestamp:     time.Now().UTC(),
	}
	if err := e.logs.InsertAdaptationLog(ctx, entry); err != nil {
		return fmt.Errorf("write adaptation log: %w", err)
	}
	return nil
}
