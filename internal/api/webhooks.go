package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/innovareai/sam-funnel-engine/internal/logging"
	"github.com/innovareai/sam-funnel-engine/internal/services"
	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

// signatureHeader carries the hex HMAC-SHA256 of the raw request body.
const signatureHeader = "X-Webhook-Signature"

// webhookSchema validates the callback envelope before it is routed.
const webhookSchema = `{
	"type": "object",
	"required": ["executionId", "workflowId", "nodeId", "eventType", "timestamp"],
	"properties": {
		"executionId": {"type": "string", "minLength": 1},
		"workflowId":  {"type": "string", "minLength": 1},
		"nodeId":      {"type": "string", "minLength": 1},
		"eventType": {
			"type": "string",
			"enum": ["step_completed", "step_failed", "prospect_responded", "execution_completed", "execution_failed"]
		},
		"timestamp": {"type": "string", "format": "date-time"},
		"data":      {"type": "object"}
	}
}`

// WebhookHandler is the inbound endpoint for automation backend callbacks.
type WebhookHandler struct {
	service *services.WebhookService
	secret  []byte
	schema  *jsonschema.Schema
	logger  *logging.Logger
}

// NewWebhookHandler compiles the payload schema and wires the handler. An
// empty secret disables signature checks; the caller should only allow that
// in a dev environment.
func NewWebhookHandler(service *services.WebhookService, secret string, logger *logging.Logger) (*WebhookHandler, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("webhook.json", bytes.NewReader([]byte(webhookSchema))); err != nil {
		return nil, fmt.Errorf("add webhook schema: %w", err)
	}
	schema, err := compiler.Compile("webhook.json")
	if err != nil {
		return nil, fmt.Errorf("compile webhook schema: %w", err)
	}
	return &WebhookHandler{
		service: service,
		secret:  []byte(secret),
		schema:  schema,
		logger:  logger,
	}, nil
}

// Handle processes one webhook delivery. Duplicates are acknowledged with
// 200 so the backend stops redelivering; routing and handler failures return
// non-2xx so it retries.
func (h *WebhookHandler) Handle(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	if len(h.secret) > 0 && !h.verifySignature(c.Request().Header.Get(signatureHeader), body) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook signature")
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed JSON payload")
	}
	if err := h.schema.Validate(decoded); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid webhook payload: "+err.Error())
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid webhook payload: "+err.Error())
	}

	err = h.service.HandleEvent(c.Request().Context(), &payload)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, services.ErrDuplicateDelivery):
		return c.JSON(http.StatusOK, map[string]string{"status": "duplicate"})
	default:
		var routeErr *services.RoutingError
		if errors.As(err, &routeErr) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, routeErr.Error())
		}
		h.logger.Error("Webhook processing failed",
			"execution_id", payload.ExecutionID, "event_type", payload.EventType, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "webhook processing failed")
	}
}

func (h *WebhookHandler) verifySignature(header string, body []byte) bool {
	if header == "" {
		return false
	}
	provided, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

// SignPayload computes the signature header value for a body. Exported for
// callers that exercise the endpoint, such as delivery simulators and tests.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
