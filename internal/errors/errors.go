package errors

import (
	"errors"
	"fmt"
)

// Application-specific errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("transaction conflict")
	ErrRateLimit          = errors.New("rate limit exceeded")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// IsConflict reports whether err is a store transaction conflict the caller
// may retry
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// StoreError represents a document-store error
type StoreError struct {
	Op         string
	Collection string
	Err        error
}

func (e StoreError) Error() string {
	return fmt.Sprintf("store error during %s on %s: %v", e.Op, e.Collection, e.Err)
}

func (e StoreError) Unwrap() error {
	return e.Err
}

// WebhookError represents a billing-webhook processing error
type WebhookError struct {
	EventType string
	Stage     string
	Err       error
}

func (e WebhookError) Error() string {
	return fmt.Sprintf("webhook error for %s at stage %s: %v", e.EventType, e.Stage, e.Err)
}

func (e WebhookError) Unwrap() error {
	return e.Err
}
