// Package errors provides the error taxonomy shared by the pipeline,
// the metrics source and the presentation layer.
package errors

import (
	"errors"
	"fmt"
)

// Input validation errors. These are returned before any external call.
var (
	ErrInputValidation   = errors.New("input validation failed")
	ErrInvalidSymbol     = errors.New("invalid stock symbol")
	ErrUnknownReportType = errors.New("unknown report type")
	ErrInvalidFormat     = errors.New("unknown output format")
)

// Upstream errors from the metrics source or the generation backend.
var (
	ErrSymbolNotFound      = errors.New("symbol not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrEmptyOutput         = errors.New("empty output")
	ErrTimeout             = errors.New("operation timed out")
)

// Configuration errors, detected at command entry.
var (
	ErrMissingAPIKey = errors.New("missing API key")
	ErrConfigInvalid = errors.New("invalid configuration")
)

// Re-exported helpers so callers need a single import.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)

// ValidationError represents a rejected input value.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Unwrap lets errors.Is match ErrInputValidation.
func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// UpstreamError wraps a failure from an external service.
type UpstreamError struct {
	Service string
	Op      string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError creates a new UpstreamError.
func NewUpstreamError(service, op string, err error) *UpstreamError {
	return &UpstreamError{
		Service: service,
		Op:      op,
		Err:     err,
	}
}

// AgentError represents an error from an LLM agent.
type AgentError struct {
	AgentName string
	Operation string
	Err       error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent error [%s] %s: %v", e.AgentName, e.Operation, e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewAgentError creates a new AgentError.
func NewAgentError(agentName, operation string, err error) *AgentError {
	return &AgentError{
		AgentName: agentName,
		Operation: operation,
		Err:       err,
	}
}

// IsValidation reports whether err belongs to the input validation class.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInputValidation) ||
		errors.Is(err, ErrInvalidSymbol) ||
		errors.Is(err, ErrUnknownReportType) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsConfig reports whether err belongs to the configuration class.
func IsConfig(err error) bool {
	return errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrConfigInvalid)
}
