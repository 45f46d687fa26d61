package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypeUpstream       ErrorType = "upstream"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeInternal       ErrorType = "internal"
	ErrorTypeConfiguration  ErrorType = "configuration"
	ErrorTypeScoringInput   ErrorType = "scoring_input"
)

// AppError represents an application error with context
type AppError struct {
	Type      ErrorType         `json:"type"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Cause     error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Details:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Common error constructors
func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, "VALIDATION_ERROR", message)
}

func NewAuthenticationError(message string) *AppError {
	return NewAppError(ErrorTypeAuthentication, "AUTHENTICATION_ERROR", message)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource))
}

func NewRateLimitError(message string) *AppError {
	return NewAppError(ErrorTypeRateLimit, "RATE_LIMIT_EXCEEDED", message)
}

func NewNetworkError(message string) *AppError {
	return NewAppError(ErrorTypeNetwork, "NETWORK_ERROR", message)
}

func NewUpstreamError(source, message string) *AppError {
	return NewAppError(ErrorTypeUpstream, "UPSTREAM_ERROR", message).
		WithDetail("source", source)
}

func NewTimeoutError(operation string) *AppError {
	return NewAppError(ErrorTypeTimeout, "TIMEOUT", fmt.Sprintf("%s timed out", operation))
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, "INTERNAL_ERROR", message)
}

// NewConfigurationError reports an invalid configuration. Configuration
// errors are fatal at process startup.
func NewConfigurationError(message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, "CONFIGURATION_ERROR", message)
}

// NewScoringInputError reports a malformed cached entity. The entity is
// excluded from the current cycle; the cycle continues for all others.
func NewScoringInputError(entityID, message string) *AppError {
	return NewAppError(ErrorTypeScoringInput, "SCORING_INPUT_ERROR", message).
		WithDetail("entity_id", entityID)
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsTransient reports whether the error is worth retrying: timeouts,
// network failures, upstream 5xx responses and rate limiting. Everything
// else (auth, validation, not found, config) is permanent.
func IsTransient(err error) bool {
	switch GetType(err) {
	case ErrorTypeTimeout, ErrorTypeNetwork, ErrorTypeUpstream, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// GetCode returns the error code if it's an AppError
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}

// GetType returns the error type if it's an AppError
func GetType(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}
