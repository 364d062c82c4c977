package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

// PostgresMetricsStore applies increment-only updates to the campaign metrics
// table. An upsert seeds the row on first touch so campaigns need no prior
// metrics bootstrap.
type PostgresMetricsStore struct {
	db *pgxpool.Pool
}

// NewPostgresMetricsStore creates a new PostgresMetricsStore.
func NewPostgresMetricsStore(db *pgxpool.Pool) *PostgresMetricsStore {
	return &PostgresMetricsStore{db: db}
}

// IncrementResponded bumps prospects_responded for a campaign.
func (s *PostgresMetricsStore) IncrementResponded(ctx context.Context, campaignID string) error {
	return s.increment(ctx, campaignID, "prospects_responded")
}

// IncrementConverted bumps prospects_converted for a campaign.
func (s *PostgresMetricsStore) IncrementConverted(ctx context.Context, campaignID string) error {
	return s.increment(ctx, campaignID, "prospects_converted")
}

func (s *PostgresMetricsStore) increment(ctx context.Context, campaignID, column string) error {
	_, err := s.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO funnel_performance_metrics (campaign_id, %s, updated_at)
		 VALUES ($1, 1, now())
		 ON CONFLICT (campaign_id)
		 DO UPDATE SET %s = funnel_performance_metrics.%s + 1, updated_at = now()`,
			column, column, column),
		campaignID)
	if err != nil {
		return fmt.Errorf("increment %s for campaign %s: %w", column, campaignID, err)
	}
	return nil
}

// GetCampaignMetrics reads the campaign aggregate row.
func (s *PostgresMetricsStore) GetCampaignMetrics(ctx context.Context, campaignID string) (*models.CampaignMetrics, error) {
	var m models.CampaignMetrics
	err := s.db.QueryRow(ctx,
		`SELECT campaign_id, prospects_responded, prospects_converted, failures, prospects_processed, updated_at
		 FROM funnel_performance_metrics WHERE campaign_id = $1`,
		campaignID,
	).Scan(&m.CampaignID, &m.ProspectsResponded, &m.ProspectsConverted, &m.Failures, &m.ProspectsProcessed, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("campaign metrics %s: %w", campaignID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign metrics %s: %w", campaignID, err)
	}
	return &m, nil
}
