package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/innovareai/sam-funnel-engine/internal/config"
	"github.com/innovareai/sam-funnel-engine/internal/logging"
	"github.com/innovareai/sam-funnel-engine/internal/repository"
	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

// schema is applied idempotently before seeding. Counter columns default to
// zero so increment-in-place updates never see NULL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS core_funnel_templates (
		id              TEXT PRIMARY KEY,
		funnel_type     TEXT NOT NULL,
		name            TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		industry        TEXT,
		target_role     TEXT,
		n8n_workflow_id TEXT UNIQUE,
		workflow_json   JSONB,
		step_count      INT NOT NULL DEFAULT 0,
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS dynamic_funnel_definitions (
		id              TEXT PRIMARY KEY,
		campaign_id     TEXT NOT NULL,
		name            TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		n8n_workflow_id TEXT UNIQUE,
		workflow_json   JSONB,
		created_by_sam  BOOLEAN NOT NULL DEFAULT TRUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS core_funnel_executions (
		id                  TEXT PRIMARY KEY,
		campaign_id         TEXT NOT NULL,
		template_id         TEXT NOT NULL REFERENCES core_funnel_templates(id),
		n8n_execution_id    TEXT NOT NULL UNIQUE,
		status              TEXT NOT NULL DEFAULT 'running',
		prospects_total     INT NOT NULL DEFAULT 0,
		prospects_processed INT NOT NULL DEFAULT 0,
		failures            INT NOT NULL DEFAULT 0,
		current_step        INT NOT NULL DEFAULT 0,
		last_step_completed TEXT,
		final_stats         JSONB,
		error_details       TEXT,
		started_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at        TIMESTAMPTZ,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS dynamic_funnel_executions (
		id                  TEXT PRIMARY KEY,
		campaign_id         TEXT NOT NULL,
		definition_id       TEXT NOT NULL REFERENCES dynamic_funnel_definitions(id),
		n8n_execution_id    TEXT NOT NULL UNIQUE,
		status              TEXT NOT NULL DEFAULT 'running',
		prospects_total     INT NOT NULL DEFAULT 0,
		prospects_processed INT NOT NULL DEFAULT 0,
		failures            INT NOT NULL DEFAULT 0,
		current_step        INT NOT NULL DEFAULT 1,
		last_step_completed TEXT,
		final_stats         JSONB,
		error_details       TEXT,
		started_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at        TIMESTAMPTZ,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS execution_step_population (
		n8n_execution_id TEXT NOT NULL,
		step_order       INT NOT NULL,
		prospect_count   INT NOT NULL DEFAULT 0,
		PRIMARY KEY (n8n_execution_id, step_order)
	)`,
	`CREATE TABLE IF NOT EXISTS campaign_prospects (
		id                TEXT PRIMARY KEY,
		campaign_id       TEXT NOT NULL,
		current_step      INT NOT NULL DEFAULT 0,
		status            TEXT NOT NULL DEFAULT 'active',
		last_activity     TIMESTAMPTZ NOT NULL DEFAULT now(),
		meeting_booked_at TIMESTAMPTZ,
		meeting_details   JSONB,
		response_history  JSONB NOT NULL DEFAULT '[]'::jsonb
	)`,
	`CREATE TABLE IF NOT EXISTS funnel_step_logs (
		id           TEXT PRIMARY KEY,
		execution_id TEXT NOT NULL,
		funnel_type  TEXT NOT NULL,
		prospect_id  TEXT,
		step_name    TEXT NOT NULL,
		result       TEXT NOT NULL,
		data         JSONB,
		event_ts     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS funnel_adaptation_logs (
		id              TEXT PRIMARY KEY,
		definition_id   TEXT,
		execution_id    TEXT NOT NULL,
		event_type      TEXT NOT NULL,
		trigger_reason  TEXT NOT NULL,
		intent          TEXT NOT NULL,
		step_order      INT NOT NULL DEFAULT 0,
		adaptation_data JSONB,
		event_ts        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_error_logs (
		id            TEXT PRIMARY KEY,
		execution_id  TEXT NOT NULL,
		workflow_id   TEXT NOT NULL,
		event_type    TEXT NOT NULL,
		error_message TEXT NOT NULL,
		payload_data  JSONB,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS funnel_performance_metrics (
		campaign_id         TEXT PRIMARY KEY,
		prospects_responded INT NOT NULL DEFAULT 0,
		prospects_converted INT NOT NULL DEFAULT 0,
		failures            INT NOT NULL DEFAULT 0,
		prospects_processed INT NOT NULL DEFAULT 0,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_deliveries (
		execution_id TEXT NOT NULL,
		node_id      TEXT NOT NULL,
		event_type   TEXT NOT NULL,
		event_ts     TIMESTAMPTZ NOT NULL,
		received_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (execution_id, node_id, event_type, event_ts)
	)`,
}

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	// Load config
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to DB
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	// 1. Apply schema
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
	}
	logger.Info("Schema applied")

	store := repository.NewPostgresFunnelStore(pool)

	// 2. Check for existing templates to prevent duplicates
	existing, err := store.ListTemplates(ctx)
	if err != nil {
		log.Fatalf("Failed to list existing templates: %v", err)
	}

	existingMap := make(map[string]bool)
	for _, t := range existing {
		existingMap[t.Name] = true
	}

	// 3. Create the built-in core funnel templates
	for _, tmpl := range builtinTemplates() {
		if existingMap[tmpl.Name] {
			logger.Info("Skipping existing template", "name", tmpl.Name)
			continue
		}

		if err := store.CreateTemplate(ctx, tmpl); err != nil {
			log.Printf("Failed to create template %s: %v", tmpl.Name, err)
		} else {
			logger.Info("Seeded template", "name", tmpl.Name, "id", tmpl.ID)
		}
	}
	logger.Info("Seeding complete!")
}

func builtinTemplates() []*models.CoreFunnelTemplate {
	now := time.Now().UTC()
	return []*models.CoreFunnelTemplate{
		{
			ID:          uuid.New().String(),
			FunnelKind:  "signature_outreach",
			Name:        "Signature Outreach",
			Description: "Five-touch personalized outreach sequence ending in a booking ask.",
			TargetRole:  "decision_maker",
			Definition:  outreachDefinition("Signature Outreach", 5),
			StepCount:   5,
			IsActive:    true,
			CreatedAt:   now,
		},
		{
			ID:          uuid.New().String(),
			FunnelKind:  "event_invitation",
			Name:        "Event Invitation",
			Description: "Three-touch invitation sequence for webinars and industry events.",
			Definition:  outreachDefinition("Event Invitation", 3),
			StepCount:   3,
			IsActive:    true,
			CreatedAt:   now,
		},
		{
			ID:          uuid.New().String(),
			FunnelKind:  "nurture_sequence",
			Name:        "Nurture Sequence",
			Description: "Slow-cadence value-content drip for prospects not yet sales-ready.",
			Definition:  outreachDefinition("Nurture Sequence", 7),
			StepCount:   7,
			IsActive:    true,
			CreatedAt:   now,
		},
	}
}

// outreachDefinition builds a linear message chain of the given length with
// {{campaign_name}} and {{sender_name}} placeholders left for deploy-time
// substitution.
func outreachDefinition(name string, steps int) *models.WorkflowDefinition {
	def := &models.WorkflowDefinition{
		Name:        name,
		Connections: models.WorkflowConnections{},
		Settings:    map[string]interface{}{"executionOrder": "v1"},
	}

	trigger := models.WorkflowNode{
		ID:          "trigger",
		Name:        "Prospect Batch Trigger",
		Type:        "n8n-nodes-base.webhook",
		TypeVersion: 1,
		Position:    [2]int{0, 0},
		Parameters:  map[string]interface{}{"path": "prospect-batch"},
	}
	def.Nodes = append(def.Nodes, trigger)

	prev := trigger.Name
	for i := 1; i <= steps; i++ {
		node := models.WorkflowNode{
			ID:          fmt.Sprintf("step_%d", i),
			Name:        fmt.Sprintf("Send Message %d", i),
			Type:        "n8n-nodes-base.httpRequest",
			TypeVersion: 4,
			Position:    [2]int{i * 200, 0},
			Parameters: map[string]interface{}{
				"campaign": "{{campaign_name}}",
				"sender":   "{{sender_name}}",
				"step":     i,
			},
		}
		def.Nodes = append(def.Nodes, node)
		def.Connections[prev] = models.NodeConnections{
			Main: [][]models.Connection{{{Node: node.Name, Type: "main", Index: 0}}},
		}
		prev = node.Name
	}
	return def
}
