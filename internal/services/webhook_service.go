package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/innovareai/sam-funnel-engine/internal/logging"
	"github.com/innovareai/sam-funnel-engine/internal/metrics"
	"github.com/innovareai/sam-funnel-engine/internal/repository"
	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

// ErrDuplicateDelivery marks an exact webhook replay. The delivery is
// acknowledged but never reaches the state machine.
var ErrDuplicateDelivery = errors.New("duplicate webhook delivery")

// RoutingError reports a workflow id that is not registered to exactly one
// funnel. The webhook is rejected so the backend's redelivery can back off.
type RoutingError struct {
	WorkflowID string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("workflow %s is not registered to exactly one funnel", e.WorkflowID)
}

// WebhookService is the single entry point for inbound callback events. It
// classifies the funnel type, dispatches to the static or adaptive strategy,
// and on failure logs and re-raises so the external delivery mechanism
// performs the retry. It never self-retries and never swallows a failure.
type WebhookService struct {
	funnels     repository.FunnelStore
	executions  repository.ExecutionStore
	campaigns   repository.MetricsStore
	logs        repository.LogStore
	progression *Progression
	evaluator   *Evaluator
	logger      *logging.Logger
	stats       metrics.Metrics
}

// NewWebhookService wires the router over its stores.
func NewWebhookService(
	funnels repository.FunnelStore,
	executions repository.ExecutionStore,
	campaigns repository.MetricsStore,
	logs repository.LogStore,
	progression *Progression,
	evaluator *Evaluator,
	logger *logging.Logger,
	stats metrics.Metrics,
) *WebhookService {
	return &WebhookService{
		funnels:     funnels,
		executions:  executions,
		campaigns:   campaigns,
		logs:        logs,
		progression: progression,
		evaluator:   evaluator,
		logger:      logger,
		stats:       stats,
	}
}

// HandleEvent processes one webhook delivery to completion.
func (s *WebhookService) HandleEvent(ctx context.Context, payload *models.WebhookPayload) error {
	fresh, err := s.logs.RecordDelivery(ctx, payload)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	if !fresh {
		s.stats.IncWebhookDuplicate()
		s.logger.Info("Skipping duplicate webhook delivery",
			"execution_id", payload.ExecutionID, "event_type", payload.EventType)
		return ErrDuplicateDelivery
	}

	funnelType, err := s.funnels.Classify(ctx, payload.WorkflowID)
	if err != nil {
		s.recordFailure(ctx, payload, err)
		return err
	}
	if funnelType == models.FunnelTypeUnknown {
		// An unroutable workflow may become routable once its funnel is
		// registered, so the claim must not outlive the rejection.
		routeErr := &RoutingError{WorkflowID: payload.WorkflowID}
		s.recordFailure(ctx, payload, routeErr)
		return routeErr
	}

	s.stats.IncWebhookEvent(string(funnelType), string(payload.EventType))

	var strategy funnelStrategy
	if funnelType == models.FunnelTypeCore {
		strategy = staticStrategy{svc: s}
	} else {
		strategy = adaptiveStrategy{svc: s}
	}

	if err := dispatch(ctx, strategy, payload); err != nil {
		s.recordFailure(ctx, payload, err)
		return err
	}

	s.logger.Info("Webhook processed",
		"execution_id", payload.ExecutionID, "event_type", payload.EventType, "funnel_type", funnelType)
	return nil
}

// recordFailure logs the failed event and releases the delivery claim so the
// redelivery of the same payload is processed instead of skipped as a replay.
func (s *WebhookService) recordFailure(ctx context.Context, payload *models.WebhookPayload, cause error) {
	s.stats.IncWebhookError(string(payload.EventType))
	if err := s.logs.InsertWebhookError(ctx, payload, cause.Error()); err != nil {
		s.logger.Error("Failed to record webhook error", "execution_id", payload.ExecutionID, "error", err)
	}
	if err := s.logs.ReleaseDelivery(ctx, payload); err != nil {
		s.logger.Error("Failed to release delivery claim",
			"execution_id", payload.ExecutionID, "event_type", payload.EventType, "error", err)
	}
}

// funnelStrategy is the per-funnel-family event handler set. The two
// implementations share the router and differ only where core and dynamic
// semantics diverge.
type funnelStrategy interface {
	stepCompleted(ctx context.Context, payload *models.WebhookPayload) error
	stepFailed(ctx context.Context, payload *models.WebhookPayload) error
	prospectResponded(ctx context.Context, payload *models.WebhookPayload) error
	executionFinished(ctx context.Context, payload *models.WebhookPayload, status models.FunnelExecutionStatus) error
}

func dispatch(ctx context.Context, strategy funnelStrategy, payload *models.WebhookPayload) error {
	switch payload.EventType {
	case models.EventStepCompleted:
		return strategy.stepCompleted(ctx, payload)
	case models.EventStepFailed:
		return strategy.stepFailed(ctx, payload)
	case models.EventProspectResponded:
		return strategy.prospectResponded(ctx, payload)
	case models.EventExecutionCompleted:
		return strategy.executionFinished(ctx, payload, models.FunnelExecutionCompleted)
	case models.EventExecutionFailed:
		return strategy.executionFinished(ctx, payload, models.FunnelExecutionFailed)
	default:
		return fmt.Errorf("unknown event type %q", payload.EventType)
	}
}

// recordResponse applies the shared prospect_responded handling: append the
// response to the history, bump the campaign counter, and run the conversion
// and unsubscribe terminals.
func (s *WebhookService) recordResponse(ctx context.Context, payload *models.WebhookPayload, prospectID, campaignID, stepID string, responseType models.ResponseType, response map[string]interface{}, metadata map[string]interface{}) error {
	event := models.StepEvent{
		StepID:       stepID,
		StepType:     models.StepResponseReceived,
		Result:       models.ResultSuccess,
		ResponseData: response,
		Metadata:     metadata,
		Timestamp:    payload.Timestamp,
	}
	if _, err := s.progression.ApplyStep(ctx, prospectID, event); err != nil {
		return err
	}
	if err := s.campaigns.IncrementResponded(ctx, campaignID); err != nil {
		return err
	}

	switch responseType {
	case models.ResponseMeetingBooked:
		booked := models.StepEvent{
			StepID:    stepID,
			StepType:  models.StepMeetingBooked,
			Result:    models.ResultSuccess,
			Metadata:  map[string]interface{}{"executionId": payload.ExecutionID},
			Timestamp: payload.Timestamp,
		}
		if _, err := s.progression.ApplyStep(ctx, prospectID, booked); err != nil {
			return err
		}
		if err := s.prospectStore().MarkConverted(ctx, prospectID, time.Now().UTC(), response); err != nil {
			return err
		}
		if err := s.campaigns.IncrementConverted(ctx, campaignID); err != nil {
			return err
		}
	case models.ResponseUnsubscribe:
		unsub := models.StepEvent{
			StepID:    stepID,
			StepType:  models.StepUnsubscribed,
			Result:    models.ResultSuccess,
			Metadata:  map[string]interface{}{"executionId": payload.ExecutionID},
			Timestamp: payload.Timestamp,
		}
		if _, err := s.progression.ApplyStep(ctx, prospectID, unsub); err != nil {
			return err
		}
	}
	return nil
}

func (s *WebhookService) prospectStore() repository.ProspectStore {
	return s.progression.prospects
}
