// Package errors provides the standardized error taxonomy shared by workers, services and
// the HTTP surface, and its mapping onto BPMN errors for the workflow engine.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Upstream faults. All retryable; the entitlement answer is "not entitled" until they clear.
	ErrCodeIdentityResolutionFailed ErrorCode = "IDENTITY_RESOLUTION_FAILED"
	ErrCodeSubscriptionLookupFailed ErrorCode = "SUBSCRIPTION_LOOKUP_FAILED"
	ErrCodeCreditLookupFailed       ErrorCode = "CREDIT_LOOKUP_FAILED"
	ErrCodeCacheUnavailable         ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"

	// Caller faults.
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrCodeTokenInvalid   ErrorCode = "TOKEN_INVALID"
	ErrCodeAuthentication ErrorCode = "AUTHENTICATION_ERROR"

	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout         ErrorCode = "TIMEOUT_ERROR"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying driver/network error, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches any *StandardError carrying the same code, so sentinel comparisons work
// with errors.Is(err, &StandardError{Code: ...}).
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata attaches a key to the error and returns it for chaining.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

func newStandard(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewIdentityResolutionFailedError wraps an auth provider outage.
func NewIdentityResolutionFailedError(err error) *StandardError {
	return newStandard(ErrCodeIdentityResolutionFailed, "Identity provider unavailable", err, true)
}

// NewSubscriptionLookupFailedError wraps a data-layer failure while reading a subscription.
func NewSubscriptionLookupFailedError(userID string, err error) *StandardError {
	return newStandard(ErrCodeSubscriptionLookupFailed, "Database error during subscription lookup", err, true).
		WithMetadata("userId", userID)
}

// NewCreditLookupFailedError wraps a data-layer failure while reading a credit record.
func NewCreditLookupFailedError(userID string, err error) *StandardError {
	return newStandard(ErrCodeCreditLookupFailed, "Database error during credit lookup", err, true).
		WithMetadata("userId", userID)
}

// NewCacheUnavailableError is logged, never surfaced: the cache is advisory.
func NewCacheUnavailableError(err error) *StandardError {
	return newStandard(ErrCodeCacheUnavailable, "Entitlement cache unavailable", err, true)
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newStandard(ErrCodeDatabaseConnectionFailed, "Database connection error", err, true)
}

// NewInvalidInputError creates a non-retryable input validation error.
func NewInvalidInputError(details string) *StandardError {
	e := newStandard(ErrCodeInvalidInput, "Invalid input", nil, false)
	e.Details = details
	return e
}

// NewTokenInvalidError reports an inactive, expired or malformed credential.
func NewTokenInvalidError(details string) *StandardError {
	e := newStandard(ErrCodeTokenInvalid, "Token is not active", nil, false)
	e.Details = details
	return e
}

func NewAuthenticationError(details string) *StandardError {
	e := newStandard(ErrCodeAuthentication, "Authentication failed", nil, false)
	e.Details = details
	return e
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newStandard(ErrCodeExternalService, fmt.Sprintf("External service '%s' error", service), err, true)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newStandard(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), err, true)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSubscriptionLookupFailed,
		ErrCodeCreditLookupFailed,
		ErrCodeIdentityResolutionFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeTimeout:
		return 2

	default:
		return 0 // business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
// BPMN codes are the internal codes verbatim.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandard finds a *StandardError in err's chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// IsRetryable reports whether err carries a retryable StandardError.
func IsRetryable(err error) bool {
	stdErr, ok := AsStandard(err)
	return ok && stdErr.Retryable
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SUBSCRIPTION") || strings.Contains(codeStr, "CREDIT"):
		return "ENTITLEMENT"
	case strings.Contains(codeStr, "IDENTITY") || strings.Contains(codeStr, "TOKEN") ||
		strings.Contains(codeStr, "AUTHENTICATION"):
		return "AUTH"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "CACHE"):
		return "DATABASE"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
