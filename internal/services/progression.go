package services

import (
	"context"
	"fmt"

	"github.com/innovareai/sam-funnel-engine/internal/repository"
	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

// Progression applies step outcomes to a prospect's persisted progress
// record. Status is always recomputed from the full history rather than
// patched, so redelivered or out-of-order events converge to the same state.
type Progression struct {
	prospects repository.ProspectStore
}

// NewProgression creates a Progression over a prospect store.
func NewProgression(prospects repository.ProspectStore) *Progression {
	return &Progression{prospects: prospects}
}

// ApplyStep appends the event to the prospect's history and rewrites status
// as a pure function of the history after the append.
func (p *Progression) ApplyStep(ctx context.Context, prospectID string, event models.StepEvent) (models.ProspectStatus, error) {
	history, err := p.prospects.AppendStepEvent(ctx, prospectID, event)
	if err != nil {
		return "", fmt.Errorf("apply step for prospect %s: %w", prospectID, err)
	}

	status := ComputeStatus(history)
	if err := p.prospects.SetStatus(ctx, prospectID, status); err != nil {
		return "", fmt.Errorf("set status for prospect %s: %w", prospectID, err)
	}
	return status, nil
}

// ComputeStatus derives a prospect status from its full response history.
//
// A meeting_booked success or an unsubscribed event is absorbing; when both
// occur the most recent one wins. Otherwise a failure marks the prospect
// failed only while it is the latest outcome for the current step, so a
// successful retry clears it.
func ComputeStatus(history []models.StepEvent) models.ProspectStatus {
	var terminal models.ProspectStatus
	lastResultByStep := make(map[string]models.StepResult)
	currentStep := ""

	for _, ev := range history {
		switch {
		case ev.StepType == models.StepUnsubscribed:
			terminal = models.ProspectUnsubscribed
		case ev.StepType == models.StepMeetingBooked && ev.Result == models.ResultSuccess:
			terminal = models.ProspectConverted
		case ev.StepType == models.StepMessageSent:
			lastResultByStep[ev.StepID] = ev.Result
			currentStep = ev.StepID
		}
	}

	if terminal != "" {
		return terminal
	}
	if currentStep != "" && lastResultByStep[currentStep] == models.ResultFailure {
		return models.ProspectFailed
	}
	return models.ProspectActive
}
