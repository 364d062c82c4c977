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

// PostgresProspectStore is a PostgreSQL implementation of the ProspectStore
// interface.
type PostgresProspectStore struct {
	db *pgxpool.Pool
}

// NewPostgresProspectStore creates a new PostgresProspectStore.
func NewPostgresProspectStore(db *pgxpool.Pool) *PostgresProspectStore {
	return &PostgresProspectStore{db: db}
}

// Get retrieves a prospect with its full response history.
func (s *PostgresProspectStore) Get(ctx context.Context, prospectID string) (*models.CampaignProspect, error) {
	var p models.CampaignProspect
	var history []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, campaign_id, current_step, status, last_activity, meeting_booked_at, COALESCE(response_history, '[]'::jsonb)
		 FROM campaign_prospects WHERE id = $1`,
		prospectID,
	).Scan(&p.ID, &p.CampaignID, &p.CurrentStep, &p.Status, &p.LastActivity, &p.MeetingBookedAt, &history)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("prospect %s: %w", prospectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get prospect %s: %w", prospectID, err)
	}
	if err := json.Unmarshal(history, &p.ResponseHistory); err != nil {
		return nil, fmt.Errorf("decode response history for %s: %w", prospectID, err)
	}
	return &p, nil
}

// AppendStepEvent appends one event to the response history using a JSONB
// concatenation so concurrent appends never lose entries, and returns the
// history after the append for status recomputation.
func (s *PostgresProspectStore) AppendStepEvent(ctx context.Context, prospectID string, event models.StepEvent) ([]models.StepEvent, error) {
	encoded, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode step event: %w", err)
	}

	var history []byte
	err = s.db.QueryRow(ctx,
		`UPDATE campaign_prospects
		 SET response_history = COALESCE(response_history, '[]'::jsonb) || $2::jsonb,
		     last_activity = $3
		 WHERE id = $1
		 RETURNING response_history`,
		prospectID, encoded, time.Now().UTC(),
	).Scan(&history)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("prospect %s: %w", prospectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("append step event for %s: %w", prospectID, err)
	}

	var events []models.StepEvent
	if err := json.Unmarshal(history, &events); err != nil {
		return nil, fmt.Errorf("decode response history for %s: %w", prospectID, err)
	}
	return events, nil
}

// SetStatus writes the recomputed status.
func (s *PostgresProspectStore) SetStatus(ctx context.Context, prospectID string, status models.ProspectStatus) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE campaign_prospects SET status = $2 WHERE id = $1",
		prospectID, status)
	if err != nil {
		return fmt.Errorf("set prospect status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("prospect %s: %w", prospectID, ErrNotFound)
	}
	return nil
}

// MarkConverted stamps the booking terminal. Writing the same terminal fields
// again is harmless, which keeps redelivered events safe.
func (s *PostgresProspectStore) MarkConverted(ctx context.Context, prospectID string, bookedAt time.Time, details map[string]interface{}) error {
	encoded, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode meeting details: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE campaign_prospects
		 SET status = 'converted',
		     meeting_booked_at = COALESCE(meeting_booked_at, $2),
		     meeting_details = $3
		 WHERE id = $1`,
		prospectID, bookedAt, encoded)
	if err != nil {
		return fmt.Errorf("mark prospect converted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("prospect %s: %w", prospectID, ErrNotFound)
	}
	return nil
}
