package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovareai/sam-funnel-engine/internal/logging"
	"github.com/innovareai/sam-funnel-engine/internal/metrics"
	"github.com/innovareai/sam-funnel-engine/internal/services"
	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

const testSecret = "test-signing-secret"

// stubStores is a minimal in-memory backing for the webhook service. The
// routing and persistence behavior itself is covered in the services package;
// here only the HTTP surface is under test.
type stubStores struct {
	mu         sync.Mutex
	deliveries map[string]bool
	prospects  map[string][]models.StepEvent
}

func newStubStores() *stubStores {
	return &stubStores{
		deliveries: make(map[string]bool),
		prospects:  make(map[string][]models.StepEvent),
	}
}

func (s *stubStores) Classify(ctx context.Context, workflowID string) (models.FunnelType, error) {
	if workflowID == "wf-core" {
		return models.FunnelTypeCore, nil
	}
	return models.FunnelTypeUnknown, nil
}

func (s *stubStores) CreateTemplate(ctx context.Context, tmpl *models.CoreFunnelTemplate) error {
	return nil
}

func (s *stubStores) GetTemplate(ctx context.Context, templateID string) (*models.CoreFunnelTemplate, error) {
	return nil, nil
}

func (s *stubStores) ListTemplates(ctx context.Context) ([]*models.CoreFunnelTemplate, error) {
	return nil, nil
}

func (s *stubStores) SetTemplateWorkflowID(ctx context.Context, templateID, workflowID string) error {
	return nil
}

func (s *stubStores) CreateDefinition(ctx context.Context, def *models.DynamicFunnelDefinition) error {
	return nil
}

func (s *stubStores) GetDefinition(ctx context.Context, definitionID string) (*models.DynamicFunnelDefinition, error) {
	return nil, nil
}

func (s *stubStores) SetDefinitionWorkflowID(ctx context.Context, definitionID, workflowID string) error {
	return nil
}

func (s *stubStores) Get(ctx context.Context, prospectID string) (*models.CampaignProspect, error) {
	return &models.CampaignProspect{ID: prospectID}, nil
}

func (s *stubStores) AppendStepEvent(ctx context.Context, prospectID string, event models.StepEvent) ([]models.StepEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prospects[prospectID] = append(s.prospects[prospectID], event)
	return s.prospects[prospectID], nil
}

func (s *stubStores) SetStatus(ctx context.Context, prospectID string, status models.ProspectStatus) error {
	return nil
}

func (s *stubStores) MarkConverted(ctx context.Context, prospectID string, bookedAt time.Time, details map[string]interface{}) error {
	return nil
}

func (s *stubStores) CreateExecution(ctx context.Context, exec *models.FunnelExecution) error {
	return nil
}

func (s *stubStores) GetExecution(ctx context.Context, funnelType models.FunnelType, backendExecutionID string) (*models.FunnelExecution, error) {
	return nil, nil
}

func (s *stubStores) IncrementProcessed(ctx context.Context, funnelType models.FunnelType, backendExecutionID, lastStepCompleted string) error {
	return nil
}

func (s *stubStores) IncrementFailures(ctx context.Context, funnelType models.FunnelType, backendExecutionID string) error {
	return nil
}

func (s *stubStores) ShiftStepPopulation(ctx context.Context, backendExecutionID string, fromStep, toStep int) error {
	return nil
}

func (s *stubStores) StepPopulation(ctx context.Context, backendExecutionID string, stepOrder int) (int, error) {
	return 0, nil
}

func (s *stubStores) CloseExecution(ctx context.Context, funnelType models.FunnelType, backendExecutionID string, status models.FunnelExecutionStatus, snapshot map[string]interface{}, errorDetails string) error {
	return nil
}

func (s *stubStores) IncrementResponded(ctx context.Context, campaignID string) error { return nil }

func (s *stubStores) IncrementConverted(ctx context.Context, campaignID string) error { return nil }

func (s *stubStores) GetCampaignMetrics(ctx context.Context, campaignID string) (*models.CampaignMetrics, error) {
	return &models.CampaignMetrics{CampaignID: campaignID}, nil
}

func (s *stubStores) InsertStepLog(ctx context.Context, payload *models.WebhookPayload, funnelType models.FunnelType, prospectID, stepName string, result models.StepResult) error {
	return nil
}

func (s *stubStores) InsertAdaptationLog(ctx context.Context, entry *models.AdaptationLogEntry) error {
	return nil
}

func (s *stubStores) InsertWebhookError(ctx context.Context, payload *models.WebhookPayload, errMsg string) error {
	return nil
}

func (s *stubStores) RecordDelivery(ctx context.Context, payload *models.WebhookPayload) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := payload.ExecutionID + "/" + payload.NodeID + "/" + string(payload.EventType) + "/" + payload.Timestamp.Format(time.RFC3339Nano)
	if s.deliveries[key] {
		return false, nil
	}
	s.deliveries[key] = true
	return true, nil
}

func (s *stubStores) ReleaseDelivery(ctx context.Context, payload *models.WebhookPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := payload.ExecutionID + "/" + payload.NodeID + "/" + string(payload.EventType) + "/" + payload.Timestamp.Format(time.RFC3339Nano)
	delete(s.deliveries, key)
	return nil
}

func newTestHandler(t *testing.T, secret string) *WebhookHandler {
	t.Helper()
	stores := newStubStores()
	logger := logging.NewLoggerAt(logging.LevelError)
	svc := services.NewWebhookService(
		stores, stores, stores, stores,
		services.NewProgression(stores),
		services.NewEvaluator(stores, metrics.Noop{}),
		logger, metrics.Noop{},
	)
	handler, err := NewWebhookHandler(svc, secret, logger)
	require.NoError(t, err)
	return handler
}

func validBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"executionId": "exec-1",
		"workflowId":  "wf-core",
		"nodeId":      "node-1",
		"eventType":   "step_completed",
		"timestamp":   "2026-03-01T12:00:00Z",
		"data": map[string]interface{}{
			"prospectId": "p-1",
			"campaignId": "c-1",
			"stepName":   "step_1",
		},
	})
	require.NoError(t, err)
	return body
}

func post(handler *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/n8n", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := handler.Handle(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestWebhookAcceptsSignedPayload(t *testing.T) {
	handler := newTestHandler(t, testSecret)
	body := validBody(t)

	rec := post(handler, body, SignPayload(testSecret, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	handler := newTestHandler(t, testSecret)
	body := validBody(t)

	rec := post(handler, body, SignPayload("wrong-secret", body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(handler, body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookSkipsSignatureCheckWithoutSecret(t *testing.T) {
	handler := newTestHandler(t, "")
	body := validBody(t)

	rec := post(handler, body, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookRejectsInvalidPayload(t *testing.T) {
	handler := newTestHandler(t, "")

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"executionId": `},
		{"missing required field", `{"executionId": "e", "workflowId": "w", "eventType": "step_completed", "timestamp": "2026-03-01T12:00:00Z"}`},
		{"unknown event type", `{"executionId": "e", "workflowId": "w", "nodeId": "n", "eventType": "mystery", "timestamp": "2026-03-01T12:00:00Z"}`},
		{"empty execution id", `{"executionId": "", "workflowId": "w", "nodeId": "n", "eventType": "step_completed", "timestamp": "2026-03-01T12:00:00Z"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(handler, []byte(tc.body), "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestWebhookAcknowledgesDuplicateDelivery(t *testing.T) {
	handler := newTestHandler(t, "")
	body := validBody(t)

	rec := post(handler, body, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = post(handler, body, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"duplicate"`)
}

func TestWebhookRejectsUnroutableWorkflow(t *testing.T) {
	handler := newTestHandler(t, "")
	body, err := json.Marshal(map[string]interface{}{
		"executionId": "exec-1",
		"workflowId":  "wf-unregistered",
		"nodeId":      "node-1",
		"eventType":   "step_completed",
		"timestamp":   "2026-03-01T12:00:00Z",
		"data":        map[string]interface{}{"prospectId": "p-1"},
	})
	require.NoError(t, err)

	rec := post(handler, body, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
