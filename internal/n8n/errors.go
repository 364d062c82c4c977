package n8n

import (
	"fmt"
	"time"
)

// ValidationError reports a workflow definition that failed local validation.
// It is never sent over the wire and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid workflow definition: " + e.Reason
}

// APIError reports a non-2xx response from the automation backend.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("n8n api error %d: %s", e.Status, e.Body)
}

// TimeoutError reports that an outbound call exceeded its deadline. Callers
// use it to distinguish "backend unreachable" from "backend rejected".
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("n8n api request timed out after %s", e.Timeout)
}
