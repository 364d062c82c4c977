package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/innovareai/sam-funnel-engine/internal/repository"
	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

// journal records the order of side effects across fakes so ordering
// invariants can be asserted.
type journal struct {
	mu  sync.Mutex
	ops []string
}

func (j *journal) add(op string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	j.ops = append(j.ops, op)
	j.mu.Unlock()
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.ops...)
}

type fakeProspectStore struct {
	mu        sync.Mutex
	prospects map[string]*models.CampaignProspect
}

func newFakeProspectStore() *fakeProspectStore {
	return &fakeProspectStore{prospects: make(map[string]*models.CampaignProspect)}
}

func (s *fakeProspectStore) seed(id, campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prospects[id] = &models.CampaignProspect{
		ID:         id,
		CampaignID: campaignID,
		Status:     models.ProspectActive,
	}
}

func (s *fakeProspectStore) Get(ctx context.Context, prospectID string) (*models.CampaignProspect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prospects[prospectID]
	if !ok {
		return nil, fmt.Errorf("prospect %s: %w", prospectID, repository.ErrNotFound)
	}
	copied := *p
	copied.ResponseHistory = append([]models.StepEvent(nil), p.ResponseHistory...)
	return &copied, nil
}

func (s *fakeProspectStore) AppendStepEvent(ctx context.Context, prospectID string, event models.StepEvent) ([]models.StepEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prospects[prospectID]
	if !ok {
		return nil, fmt.Errorf("prospect %s: %w", prospectID, repository.ErrNotFound)
	}
	p.ResponseHistory = append(p.ResponseHistory, event)
	p.LastActivity = event.Timestamp
	return append([]models.StepEvent(nil), p.ResponseHistory...), nil
}

func (s *fakeProspectStore) SetStatus(ctx context.Context, prospectID string, status models.ProspectStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prospects[prospectID]
	if !ok {
		return fmt.Errorf("prospect %s: %w", prospectID, repository.ErrNotFound)
	}
	p.Status = status
	return nil
}

func (s *fakeProspectStore) MarkConverted(ctx context.Context, prospectID string, bookedAt time.Time, details map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prospects[prospectID]
	if !ok {
		return fmt.Errorf("prospect %s: %w", prospectID, repository.ErrNotFound)
	}
	p.Status = models.ProspectConverted
	if p.MeetingBookedAt == nil {
		p.MeetingBookedAt = &bookedAt
	}
	return nil
}

type fakeFunnelStore struct {
	mu          sync.Mutex
	types       map[string]models.FunnelType
	templates   map[string]*models.CoreFunnelTemplate
	definitions map[string]*models.DynamicFunnelDefinition
}

func newFakeFunnelStore() *fakeFunnelStore {
	return &fakeFunnelStore{
		types:       make(map[string]models.FunnelType),
		templates:   make(map[string]*models.CoreFunnelTemplate),
		definitions: make(map[string]*models.DynamicFunnelDefinition),
	}
}

func (s *fakeFunnelStore) register(workflowID string, funnelType models.FunnelType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerLocked(workflowID, funnelType)
}

// registerLocked mirrors the store's both-families-yield-unknown rule.
func (s *fakeFunnelStore) registerLocked(workflowID string, funnelType models.FunnelType) {
	if existing, ok := s.types[workflowID]; ok && existing != funnelType {
		s.types[workflowID] = models.FunnelTypeUnknown
		return
	}
	s.types[workflowID] = funnelType
}

func (s *fakeFunnelStore) Classify(ctx context.Context, workflowID string) (models.FunnelType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.types[workflowID]; ok {
		return t, nil
	}
	return models.FunnelTypeUnknown, nil
}

func (s *fakeFunnelStore) CreateTemplate(ctx context.Context, tmpl *models.CoreFunnelTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[tmpl.ID] = tmpl
	return nil
}

func (s *fakeFunnelStore) GetTemplate(ctx context.Context, templateID string) (*models.CoreFunnelTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tmpl, ok := s.templates[templateID]
	if !ok {
		return nil, fmt.Errorf("core funnel template %s: %w", templateID, repository.ErrNotFound)
	}
	return tmpl, nil
}

func (s *fakeFunnelStore) ListTemplates(ctx context.Context) ([]*models.CoreFunnelTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.CoreFunnelTemplate, 0, len(s.templates))
	for _, tmpl := range s.templates {
		out = append(out, tmpl)
	}
	return out, nil
}

func (s *fakeFunnelStore) SetTemplateWorkflowID(ctx context.Context, templateID, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tmpl, ok := s.templates[templateID]
	if !ok {
		return fmt.Errorf("core funnel template %s: %w", templateID, repository.ErrNotFound)
	}
	tmpl.WorkflowID = workflowID
	s.registerLocked(workflowID, models.FunnelTypeCore)
	return nil
}

func (s *fakeFunnelStore) CreateDefinition(ctx context.Context, def *models.DynamicFunnelDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[def.ID] = def
	if def.WorkflowID != "" {
		s.registerLocked(def.WorkflowID, models.FunnelTypeDynamic)
	}
	return nil
}

func (s *fakeFunnelStore) GetDefinition(ctx context.Context, definitionID string) (*models.DynamicFunnelDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.definitions[definitionID]
	if !ok {
		return nil, fmt.Errorf("dynamic funnel definition %s: %w", definitionID, repository.ErrNotFound)
	}
	return def, nil
}

func (s *fakeFunnelStore) SetDefinitionWorkflowID(ctx context.Context, definitionID, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.definitions[definitionID]
	if !ok {
		return fmt.Errorf("dynamic funnel definition %s: %w", definitionID, repository.ErrNotFound)
	}
	def.WorkflowID = workflowID
	s.registerLocked(workflowID, models.FunnelTypeDynamic)
	return nil
}

type fakeExecutionStore struct {
	mu          sync.Mutex
	journal     *journal
	executions  map[string]*models.FunnelExecution
	populations map[string]map[int]int
	failOn      string
}

func newFakeExecutionStore(j *journal) *fakeExecutionStore {
	return &fakeExecutionStore{
		journal:     j,
		executions:  make(map[string]*models.FunnelExecution),
		populations: make(map[string]map[int]int),
	}
}

func (s *fakeExecutionStore) seed(exec *models.FunnelExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.BackendExecutionID] = exec
}

func (s *fakeExecutionStore) setPopulation(executionID string, stepOrder, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.populations[executionID] == nil {
		s.populations[executionID] = make(map[int]int)
	}
	s.populations[executionID][stepOrder] = count
}

func (s *fakeExecutionStore) CreateExecution(ctx context.Context, exec *models.FunnelExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.BackendExecutionID] = exec
	return nil
}

func (s *fakeExecutionStore) GetExecution(ctx context.Context, funnelType models.FunnelType, backendExecutionID string) (*models.FunnelExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[backendExecutionID]
	if !ok || exec.FunnelType != funnelType {
		return nil, fmt.Errorf("execution %s: %w", backendExecutionID, repository.ErrNotFound)
	}
	return exec, nil
}

func (s *fakeExecutionStore) IncrementProcessed(ctx context.Context, funnelType models.FunnelType, backendExecutionID, lastStepCompleted string) error {
	if s.failOn == "increment_processed" {
		return fmt.Errorf("increment prospects_processed: store unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[backendExecutionID]
	if !ok {
		return fmt.Errorf("execution %s: %w", backendExecutionID, repository.ErrNotFound)
	}
	exec.ProspectsProcessed++
	if lastStepCompleted != "" {
		exec.LastStepCompleted = lastStepCompleted
	}
	s.journal.add("increment_processed")
	return nil
}

func (s *fakeExecutionStore) IncrementFailures(ctx context.Context, funnelType models.FunnelType, backendExecutionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[backendExecutionID]
	if !ok {
		return fmt.Errorf("execution %s: %w", backendExecutionID, repository.ErrNotFound)
	}
	exec.Failures++
	s.journal.add("increment_failures")
	return nil
}

func (s *fakeExecutionStore) ShiftStepPopulation(ctx context.Context, backendExecutionID string, fromStep, toStep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.populations[backendExecutionID] == nil {
		s.populations[backendExecutionID] = make(map[int]int)
	}
	pop := s.populations[backendExecutionID]
	if pop[fromStep] > 0 {
		pop[fromStep]--
	}
	pop[toStep]++
	if exec, ok := s.executions[backendExecutionID]; ok && toStep > exec.CurrentStep {
		exec.CurrentStep = toStep
	}
	s.journal.add("shift_population")
	return nil
}

func (s *fakeExecutionStore) StepPopulation(ctx context.Context, backendExecutionID string, stepOrder int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.populations[backendExecutionID][stepOrder], nil
}

func (s *fakeExecutionStore) CloseExecution(ctx context.Context, funnelType models.FunnelType, backendExecutionID string, status models.FunnelExecutionStatus, snapshot map[string]interface{}, errorDetails string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[backendExecutionID]
	if !ok {
		return fmt.Errorf("execution %s: %w", backendExecutionID, repository.ErrNotFound)
	}
	if exec.Status != models.FunnelExecutionRunning && exec.Status != status {
		return nil
	}
	exec.Status = status
	exec.FinalStats = snapshot
	if errorDetails != "" {
		exec.ErrorDetails = errorDetails
	}
	if exec.CompletedAt == nil {
		now := time.Now().UTC()
		exec.CompletedAt = &now
	}
	s.journal.add("close_execution")
	return nil
}

type fakeMetricsStore struct {
	mu        sync.Mutex
	responded map[string]int
	converted map[string]int
}

func newFakeMetricsStore() *fakeMetricsStore {
	return &fakeMetricsStore{
		responded: make(map[string]int),
		converted: make(map[string]int),
	}
}

func (s *fakeMetricsStore) IncrementResponded(ctx context.Context, campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responded[campaignID]++
	return nil
}

func (s *fakeMetricsStore) IncrementConverted(ctx context.Context, campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.converted[campaignID]++
	return nil
}

func (s *fakeMetricsStore) GetCampaignMetrics(ctx context.Context, campaignID string) (*models.CampaignMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &models.CampaignMetrics{
		CampaignID:         campaignID,
		ProspectsResponded: s.responded[campaignID],
		ProspectsConverted: s.converted[campaignID],
	}, nil
}

type deliveryKey struct {
	executionID string
	nodeID      string
	eventType   models.EventType
	timestamp   time.Time
}

type fakeLogStore struct {
	mu             sync.Mutex
	journal        *journal
	stepLogs       []string
	adaptationLogs []*models.AdaptationLogEntry
	webhookErrors  []string
	deliveries     map[deliveryKey]bool
}

func newFakeLogStore(j *journal) *fakeLogStore {
	return &fakeLogStore{journal: j, deliveries: make(map[deliveryKey]bool)}
}

func (s *fakeLogStore) InsertStepLog(ctx context.Context, payload *models.WebhookPayload, funnelType models.FunnelType, prospectID, stepName string, result models.StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepLogs = append(s.stepLogs, fmt.Sprintf("%s/%s/%s", funnelType, stepName, result))
	s.journal.add("step_log")
	return nil
}

func (s *fakeLogStore) InsertAdaptationLog(ctx context.Context, entry *models.AdaptationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adaptationLogs = append(s.adaptationLogs, entry)
	s.journal.add("adaptation_log")
	return nil
}

func (s *fakeLogStore) InsertWebhookError(ctx context.Context, payload *models.WebhookPayload, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhookErrors = append(s.webhookErrors, errMsg)
	s.journal.add("webhook_error")
	return nil
}

func (s *fakeLogStore) RecordDelivery(ctx context.Context, payload *models.WebhookPayload) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := deliveryKey{payload.ExecutionID, payload.NodeID, payload.EventType, payload.Timestamp}
	if s.deliveries[key] {
		return false, nil
	}
	s.deliveries[key] = true
	return true, nil
}

func (s *fakeLogStore) ReleaseDelivery(ctx context.Context, payload *models.WebhookPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deliveries, deliveryKey{payload.ExecutionID, payload.NodeID, payload.EventType, payload.Timestamp})
	return nil
}

type fakeClient struct {
	mu           sync.Mutex
	deployed     []*models.WorkflowDefinition
	executed     []string
	deployErr    error
	executeErr   error
	nextWorkflow string
	nextExec     string
	stopped      []string
	updated      []string
	runData      map[string]interface{}
	workflows    []models.WorkflowSummary
}

func (c *fakeClient) Deploy(ctx context.Context, def *models.WorkflowDefinition) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deployErr != nil {
		return "", c.deployErr
	}
	c.deployed = append(c.deployed, def)
	if c.nextWorkflow == "" {
		c.nextWorkflow = "wf-fake"
	}
	return c.nextWorkflow, nil
}

func (c *fakeClient) Execute(ctx context.Context, workflowID string, payload map[string]interface{}) (string, error) {
	return c.execute(workflowID)
}

func (c *fakeClient) ExecuteDynamic(ctx context.Context, workflowID string, payload map[string]interface{}) (string, error) {
	return c.execute(workflowID)
}

func (c *fakeClient) execute(workflowID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.executeErr != nil {
		return "", c.executeErr
	}
	c.executed = append(c.executed, workflowID)
	if c.nextExec == "" {
		c.nextExec = "exec-fake"
	}
	return c.nextExec, nil
}

func (c *fakeClient) Update(ctx context.Context, workflowID string, def *models.WorkflowDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updated = append(c.updated, workflowID)
	return nil
}

func (c *fakeClient) GetStatus(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	return &models.WorkflowExecution{ID: executionID, Status: models.ExecutionRunning}, nil
}

func (c *fakeClient) Stop(ctx context.Context, executionID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = append(c.stopped, executionID)
	return true, nil
}

func (c *fakeClient) GetExecutionLogs(ctx context.Context, executionID string) (map[string]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runData, nil
}

func (c *fakeClient) ListWorkflows(ctx context.Context) ([]models.WorkflowSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workflows, nil
}

func (c *fakeClient) Delete(ctx context.Context, workflowID string) (bool, error) {
	return true, nil
}
