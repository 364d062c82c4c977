package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

// PostgresLogStore holds the append-only audit tables and the webhook
// delivery dedup ledger.
type PostgresLogStore struct {
	db *pgxpool.Pool
}

// NewPostgresLogStore creates a new PostgresLogStore.
func NewPostgresLogStore(db *pgxpool.Pool) *PostgresLogStore {
	return &PostgresLogStore{db: db}
}

// InsertStepLog records a completed or failed step for analytics.
func (s *PostgresLogStore) InsertStepLog(ctx context.Context, payload *models.WebhookPayload, funnelType models.FunnelType, prospectID, stepName string, result models.StepResult) error {
	data, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("encode step log data: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO funnel_step_logs (id, execution_id, funnel_type, prospect_id, step_name, result, data, event_ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New().String(), payload.ExecutionID, funnelType, prospectID, stepName, result, data, payload.Timestamp)
	if err != nil {
		return fmt.Errorf("insert step log: %w", err)
	}
	return nil
}

// InsertAdaptationLog writes an adaptation audit row. Callers invoke this
// before applying any side effect so the trail is write-ahead.
func (s *PostgresLogStore) InsertAdaptationLog(ctx context.Context, entry *models.AdaptationLogEntry) error {
	data, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("encode adaptation data: %w", err)
	}
	id := entry.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO funnel_adaptation_logs
			(id, definition_id, execution_id, event_type, trigger_reason, intent, step_order, adaptation_data, event_ts)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)`,
		id, entry.DefinitionID, entry.ExecutionID, entry.EventType, entry.TriggerReason,
		entry.Intent, entry.StepOrder, data, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert adaptation log: %w", err)
	}
	return nil
}

// InsertWebhookError records a failed event before the failure is re-raised
// to the delivery mechanism.
func (s *PostgresLogStore) InsertWebhookError(ctx context.Context, payload *models.WebhookPayload, errMsg string) error {
	data, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("encode webhook error data: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO webhook_error_logs (id, execution_id, workflow_id, event_type, error_message, payload_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), payload.ExecutionID, payload.WorkflowID, payload.EventType, errMsg, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert webhook error log: %w", err)
	}
	return nil
}

// RecordDelivery claims the delivery key (executionId, nodeId, eventType,
// timestamp). The unique index makes the insert race-safe: exactly one of
// two concurrent identical deliveries observes a fresh claim.
func (s *PostgresLogStore) RecordDelivery(ctx context.Context, payload *models.WebhookPayload) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO webhook_deliveries (execution_id, node_id, event_type, event_ts, received_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (execution_id, node_id, event_type, event_ts) DO NOTHING`,
		payload.ExecutionID, payload.NodeID, payload.EventType, payload.Timestamp)
	if err != nil {
		return false, fmt.Errorf("record webhook delivery: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseDelivery drops a claim so the key can be re-claimed. Called after a
// failed processing attempt; otherwise the redelivery would be skipped as a
// replay of an event that never landed.
func (s *PostgresLogStore) ReleaseDelivery(ctx context.Context, payload *models.WebhookPayload) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM webhook_deliveries
		 WHERE execution_id = $1 AND node_id = $2 AND event_type = $3 AND event_ts = $4`,
		payload.ExecutionID, payload.NodeID, payload.EventType, payload.Timestamp)
	if err != nil {
		return fmt.Errorf("release webhook delivery: %w", err)
	}
	return nil
}
