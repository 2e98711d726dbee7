package llm

import (
	"errors"
	"fmt"
)

var ErrNoTextContent = errors.New("no text content in Anthropic response")

// ServiceError is a non-success response from the model API, or a transport
// failure reaching it (Status 0).
type ServiceError struct {
	Status  int
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("anthropic request failed: %s", e.Message)
	}
	return fmt.Sprintf("anthropic api error status=%d: %s", e.Status, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) Kind() string { return "service_error" }

// MalformedResponseError means the model answered but the body could not be
// used: not JSON, missing fields, or labels outside the closed sets.
type MalformedResponseError struct {
	Reason string
	Body   string
}

func (e *MalformedResponseError) Error() string {
	if e.Body == "" {
		return "malformed model response: " + e.Reason
	}
	return fmt.Sprintf("malformed model response: %s (response: %s)", e.Reason, truncateBody(e.Body))
}

func (e *MalformedResponseError) Kind() string { return "malformed_response" }

// ReconciliationError reports a post_index the batch never contained.
type ReconciliationError struct {
	Index int
	Batch int
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("response index %d does not belong to batch %d", e.Index, e.Batch)
}

func (e *ReconciliationError) Kind() string { return "reconciliation_error" }

func truncateBody(s string) string {
	const max = 512
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
