package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

// PostgresExecutionStore is a PostgreSQL implementation of the ExecutionStore
// interface. Core and dynamic executions live in separate tables; the funnel
// type selects the table.
type PostgresExecutionStore struct {
	db *pgxpool.Pool
}

// NewPostgresExecutionStore creates a new PostgresExecutionStore.
func NewPostgresExecutionStore(db *pgxpool.Pool) *PostgresExecutionStore {
	return &PostgresExecutionStore{db: db}
}

func executionTable(funnelType models.FunnelType) (string, error) {
	switch funnelType {
	case models.FunnelTypeCore:
		return "core_funnel_executions", nil
	case models.FunnelTypeDynamic:
		return "dynamic_funnel_executions", nil
	default:
		return "", fmt.Errorf("no execution table for funnel type %q", funnelType)
	}
}

// CreateExecution inserts a funnel execution record in the running state.
func (s *PostgresExecutionStore) CreateExecution(ctx context.Context, exec *models.FunnelExecution) error {
	table, err := executionTable(exec.FunnelType)
	if err != nil {
		return err
	}
	ownerID := exec.TemplateID
	ownerColumn := "template_id"
	if exec.FunnelType == models.FunnelTypeDynamic {
		ownerID = exec.DefinitionID
		ownerColumn = "definition_id"
	}
	_, err = s.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s
			(id, campaign_id, %s, n8n_execution_id, status, prospects_total, prospects_processed, failures, current_step, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $8)`, table, ownerColumn),
		exec.ID, exec.CampaignID, ownerID, exec.BackendExecutionID, exec.Status,
		exec.ProspectsTotal, exec.CurrentStep, exec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert %s record: %w", table, err)
	}
	return nil
}

// GetExecution retrieves an execution record by its backend execution id.
func (s *PostgresExecutionStore) GetExecution(ctx context.Context, funnelType models.FunnelType, backendExecutionID string) (*models.FunnelExecution, error) {
	table, err := executionTable(funnelType)
	if err != nil {
		return nil, err
	}
	ownerColumn := "template_id"
	if funnelType == models.FunnelTypeDynamic {
		ownerColumn = "definition_id"
	}

	var exec models.FunnelExecution
	var ownerID string
	var finalStats []byte
	exec.FunnelType = funnelType
	err = s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT id, campaign_id, %s, n8n_execution_id, status, prospects_total, prospects_processed,
		        failures, current_step, COALESCE(last_step_completed, ''), final_stats, COALESCE(error_details, ''),
		        started_at, completed_at
		 FROM %s WHERE n8n_execution_id = $1`, ownerColumn, table),
		backendExecutionID,
	).Scan(&exec.ID, &exec.CampaignID, &ownerID, &exec.BackendExecutionID, &exec.Status,
		&exec.ProspectsTotal, &exec.ProspectsProcessed, &exec.Failures, &exec.CurrentStep,
		&exec.LastStepCompleted, &finalStats, &exec.ErrorDetails, &exec.StartedAt, &exec.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("execution %s: %w", backendExecutionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", backendExecutionID, err)
	}
	if funnelType == models.FunnelTypeDynamic {
		exec.DefinitionID = ownerID
	} else {
		exec.TemplateID = ownerID
	}
	if len(finalStats) > 0 {
		if err := json.Unmarshal(finalStats, &exec.FinalStats); err != nil {
			return nil, fmt.Errorf("decode final stats: %w", err)
		}
	}
	return &exec, nil
}

// IncrementProcessed bumps prospects_processed in place and records the last
// completed step.
func (s *PostgresExecutionStore) IncrementProcessed(ctx context.Context, funnelType models.FunnelType, backendExecutionID, lastStepCompleted string) error {
	table, err := executionTable(funnelType)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		fmt.Sprintf(`UPDATE %s
		 SET prospects_processed = prospects_processed + 1,
		     last_step_completed = COALESCE(NULLIF($2, ''), last_step_completed),
		     updated_at = now()
		 WHERE n8n_execution_id = $1`, table),
		backendExecutionID, lastStepCompleted)
	if err != nil {
		return fmt.Errorf("increment prospects_processed: %w", err)
	}
	return nil
}

// IncrementFailures bumps the failure counter in place.
func (s *PostgresExecutionStore) IncrementFailures(ctx context.Context, funnelType models.FunnelType, backendExecutionID string) error {
	table, err := executionTable(funnelType)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET failures = failures + 1, updated_at = now() WHERE n8n_execution_id = $1", table),
		backendExecutionID)
	if err != nil {
		return fmt.Errorf("increment failures: %w", err)
	}
	return nil
}

// ShiftStepPopulation moves one prospect between step buckets of a dynamic
// execution. The destination upsert and source decrement are each atomic, so
// concurrent shifts interleave without losing counts.
func (s *PostgresExecutionStore) ShiftStepPopulation(ctx context.Context, backendExecutionID string, fromStep, toStep int) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO execution_step_population (n8n_execution_id, step_order, prospect_count)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (n8n_execution_id, step_order)
		 DO UPDATE SET prospect_count = execution_step_population.prospect_count + 1`,
		backendExecutionID, toStep)
	if err != nil {
		return fmt.Errorf("increment step population: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`UPDATE execution_step_population
		 SET prospect_count = GREATEST(prospect_count - 1, 0)
		 WHERE n8n_execution_id = $1 AND step_order = $2`,
		backendExecutionID, fromStep)
	if err != nil {
		return fmt.Errorf("decrement step population: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`UPDATE dynamic_funnel_executions
		 SET current_step = GREATEST(current_step, $2), updated_at = now()
		 WHERE n8n_execution_id = $1`,
		backendExecutionID, toStep)
	if err != nil {
		return fmt.Errorf("advance current_step: %w", err)
	}
	return nil
}

// StepPopulation reads one bucket of the population histogram.
func (s *PostgresExecutionStore) StepPopulation(ctx context.Context, backendExecutionID string, stepOrder int) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(
			(SELECT prospect_count FROM execution_step_population WHERE n8n_execution_id = $1 AND step_order = $2), 0)`,
		backendExecutionID, stepOrder,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("read step population: %w", err)
	}
	return count, nil
}

// CloseExecution writes the terminal status and snapshot. The WHERE clause
// only matches rows that are still running or already carry the same
// terminal status, which makes closure one-way and replays harmless.
func (s *PostgresExecutionStore) CloseExecution(ctx context.Context, funnelType models.FunnelType, backendExecutionID string, status models.FunnelExecutionStatus, snapshot map[string]interface{}, errorDetails string) error {
	table, err := executionTable(funnelType)
	if err != nil {
		return err
	}
	var encoded []byte
	if snapshot != nil {
		if encoded, err = json.Marshal(snapshot); err != nil {
			return fmt.Errorf("encode execution snapshot: %w", err)
		}
	}
	_, err = s.db.Exec(ctx,
		fmt.Sprintf(`UPDATE %s
		 SET status = $2,
		     completed_at = COALESCE(completed_at, $3),
		     final_stats = COALESCE($4, final_stats),
		     error_details = COALESCE(NULLIF($5, ''), error_details),
		     updated_at = now()
		 WHERE n8n_execution_id = $1 AND status IN ('running', $2)`, table),
		backendExecutionID, status, time.Now().UTC(), encoded, errorDetails)
	if err != nil {
		return fmt.Errorf("close execution %s: %w", backendExecutionID, err)
	}
	return nil
}
