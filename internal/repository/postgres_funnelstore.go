package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

// PostgresFunnelStore is a PostgreSQL implementation of the FunnelStore
// interface.
type PostgresFunnelStore struct {
	db *pgxpool.Pool
}

// NewPostgresFunnelStore creates a new PostgresFunnelStore.
func NewPostgresFunnelStore(db *pgxpool.Pool) *PostgresFunnelStore {
	return &PostgresFunnelStore{db: db}
}

// Classify resolves a workflow id against both definition tables. Exactly one
// match is expected; both or neither yields unknown.
func (s *PostgresFunnelStore) Classify(ctx context.Context, workflowID string) (models.FunnelType, error) {
	var inCore, inDynamic bool
	err := s.db.QueryRow(ctx,
		`SELECT
			EXISTS (SELECT 1 FROM core_funnel_templates WHERE n8n_workflow_id = $1),
			EXISTS (SELECT 1 FROM dynamic_funnel_definitions WHERE n8n_workflow_id = $1)`,
		workflowID,
	).Scan(&inCore, &inDynamic)
	if err != nil {
		return models.FunnelTypeUnknown, fmt.Errorf("classify workflow %s: %w", workflowID, err)
	}

	switch {
	case inCore && !inDynamic:
		return models.FunnelTypeCore, nil
	case inDynamic && !inCore:
		return models.FunnelTypeDynamic, nil
	default:
		return models.FunnelTypeUnknown, nil
	}
}

// CreateTemplate inserts a core funnel template.
func (s *PostgresFunnelStore) CreateTemplate(ctx context.Context, tmpl *models.CoreFunnelTemplate) error {
	definition, err := marshalDefinition(tmpl.Definition)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO core_funnel_templates
			(id, funnel_type, name, description, industry, target_role, n8n_workflow_id, workflow_json, step_count, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11)`,
		tmpl.ID, tmpl.FunnelKind, tmpl.Name, tmpl.Description, tmpl.Industry, tmpl.TargetRole,
		tmpl.WorkflowID, definition, tmpl.StepCount, tmpl.IsActive, tmpl.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert core funnel template: %w", err)
	}
	return nil
}

// GetTemplate retrieves a core funnel template by id.
func (s *PostgresFunnelStore) GetTemplate(ctx context.Context, templateID string) (*models.CoreFunnelTemplate, error) {
	var tmpl models.CoreFunnelTemplate
	var workflowID *string
	var definition []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, funnel_type, name, description, COALESCE(industry, ''), COALESCE(target_role, ''),
		        n8n_workflow_id, workflow_json, step_count, is_active, created_at
		 FROM core_funnel_templates WHERE id = $1`,
		templateID,
	).Scan(&tmpl.ID, &tmpl.FunnelKind, &tmpl.Name, &tmpl.Description, &tmpl.Industry, &tmpl.TargetRole,
		&workflowID, &definition, &tmpl.StepCount, &tmpl.IsActive, &tmpl.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("core funnel template %s: %w", templateID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get core funnel template %s: %w", templateID, err)
	}
	if workflowID != nil {
		tmpl.WorkflowID = *workflowID
	}
	if tmpl.Definition, err = unmarshalDefinition(definition); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// ListTemplates returns all active core funnel templates.
func (s *PostgresFunnelStore) ListTemplates(ctx context.Context) ([]*models.CoreFunnelTemplate, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, funnel_type, name, description, COALESCE(industry, ''), COALESCE(target_role, ''),
		        COALESCE(n8n_workflow_id, ''), step_count, is_active, created_at
		 FROM core_funnel_templates WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list core funnel templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.CoreFunnelTemplate
	for rows.Next() {
		var tmpl models.CoreFunnelTemplate
		if err := rows.Scan(&tmpl.ID, &tmpl.FunnelKind, &tmpl.Name, &tmpl.Description, &tmpl.Industry,
			&tmpl.TargetRole, &tmpl.WorkflowID, &tmpl.StepCount, &tmpl.IsActive, &tmpl.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan core funnel template: %w", err)
		}
		templates = append(templates, &tmpl)
	}
	return templates, rows.Err()
}

// SetTemplateWorkflowID records the backend workflow id assigned at deploy.
func (s *PostgresFunnelStore) SetTemplateWorkflowID(ctx context.Context, templateID, workflowID string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE core_funnel_templates SET n8n_workflow_id = $2 WHERE id = $1",
		templateID, workflowID)
	if err != nil {
		return fmt.Errorf("set template workflow id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("core funnel template %s: %w", templateID, ErrNotFound)
	}
	return nil
}

// CreateDefinition inserts a dynamic funnel definition.
func (s *PostgresFunnelStore) CreateDefinition(ctx context.Context, def *models.DynamicFunnelDefinition) error {
	definition, err := marshalDefinition(def.Definition)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO dynamic_funnel_definitions
			(id, campaign_id, name, description, n8n_workflow_id, workflow_json, created_by_sam, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`,
		def.ID, def.CampaignID, def.Name, def.Description, def.WorkflowID, definition, def.CreatedBySam, def.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dynamic funnel definition: %w", err)
	}
	return nil
}

// GetDefinition retrieves a dynamic funnel definition by id.
func (s *PostgresFunnelStore) GetDefinition(ctx context.Context, definitionID string) (*models.DynamicFunnelDefinition, error) {
	var def models.DynamicFunnelDefinition
	var workflowID *string
	var definition []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, campaign_id, name, description, n8n_workflow_id, workflow_json, created_by_sam, created_at
		 FROM dynamic_funnel_definitions WHERE id = $1`,
		definitionID,
	).Scan(&def.ID, &def.CampaignID, &def.Name, &def.Description, &workflowID, &definition, &def.CreatedBySam, &def.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("dynamic funnel definition %s: %w", definitionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get dynamic funnel definition %s: %w", definitionID, err)
	}
	if workflowID != nil {
		def.WorkflowID = *workflowID
	}
	if def.Definition, err = unmarshalDefinition(definition); err != nil {
		return nil, err
	}
	return &def, nil
}

// SetDefinitionWorkflowID records the backend workflow id assigned at deploy.
func (s *PostgresFunnelStore) SetDefinitionWorkflowID(ctx context.Context, definitionID, workflowID string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE dynamic_funnel_definitions SET n8n_workflow_id = $2 WHERE id = $1",
		definitionID, workflowID)
	if err != nil {
		return fmt.Errorf("set definition workflow id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dynamic funnel definition %s: %w", definitionID, ErrNotFound)
	}
	return nil
}

func marshalDefinition(def *models.WorkflowDefinition) ([]byte, error) {
	if def == nil {
		return nil, nil
	}
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encode workflow definition: %w", err)
	}
	return raw, nil
}

func unmarshalDefinition(raw []byte) (*models.WorkflowDefinition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var def models.WorkflowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("decode workflow definition: %w", err)
	}
	return &def, nil
}
