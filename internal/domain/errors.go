package domain

import (
	"fmt"
	"time"
)

// Error types for consistent error handling across the console.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrPermissionDenied indicates cross-tenant access or an insufficient role.
type ErrPermissionDenied struct {
	Action string
	Reason string
}

func (e *ErrPermissionDenied) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("permission denied for %s: %s", e.Action, e.Reason)
	}
	return fmt.Sprintf("permission denied for %s", e.Action)
}

// ErrSubscriptionLocked indicates the tenant is blocked from sending.
type ErrSubscriptionLocked struct {
	CompanyID string
	Status    string
}

func (e *ErrSubscriptionLocked) Error() string {
	return fmt.Sprintf("subscription %s for company %s: sending is disabled, contact your administrator", e.Status, e.CompanyID)
}

// ErrInvalidReference indicates a malformed provider message id.
type ErrInvalidReference struct {
	Reference string
}

func (e *ErrInvalidReference) Error() string {
	return fmt.Sprintf("invalid WhatsApp message id %q: must start with %q", e.Reference, WAMIDPrefix)
}

// ErrDispatchFailed indicates the provider rejected or never answered a send.
type ErrDispatchFailed struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ErrDispatchFailed) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("failed to send message: %v", e.Err)
	}
	return "failed to send message"
}

func (e *ErrDispatchFailed) Unwrap() error {
	return e.Err
}

// ErrDuplicate reports a unique key already taken. For provider message ids
// it marks an idempotent no-op that callers treat as success.
type ErrDuplicate struct {
	Key string
}

func (e *ErrDuplicate) Error() string {
	return fmt.Sprintf("already exists: %s", e.Key)
}

// ErrStoreFailure indicates an unexpected datastore error.
type ErrStoreFailure struct {
	Op  string
	Err error
}

func (e *ErrStoreFailure) Error() string {
	return fmt.Sprintf("store failure [%s]: %v", e.Op, e.Err)
}

func (e *ErrStoreFailure) Unwrap() error {
	return e.Err
}

// ErrWindowClosed indicates the 24h customer-care window is closed for free-form sends.
type ErrWindowClosed struct {
	LastInbound *time.Time
}

func (e *ErrWindowClosed) Error() string {
	if e.LastInbound == nil {
		return "messaging window closed: the customer has not written yet, use a template"
	}
	return fmt.Sprintf("messaging window closed since %s, use a template", e.LastInbound.Add(MessagingWindow).UTC().Format(time.RFC3339))
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates a missing or invalid bearer token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}
