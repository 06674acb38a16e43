package services

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation          ErrorType = "validation"
	ErrorTypeUnknownRole         ErrorType = "unknown_role"
	ErrorTypeUpstreamUnavailable ErrorType = "upstream_unavailable"
	ErrorTypeUpstreamError       ErrorType = "upstream_error"
	ErrorTypeQueryFailed         ErrorType = "query_failed"
	ErrorTypeInternal            ErrorType = "internal"
)

// Detail keys shared by the router and the query client.
const (
	DetailRole           = "role"
	DetailBackend        = "backend"
	DetailUpstreamStatus = "upstream_status"
	DetailUpstreamBody   = "upstream_body"
	DetailCause          = "cause"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is. Two domain errors match when their types match.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinels for errors.Is comparisons. Never attach details to these;
// use the constructors below instead.
var (
	ErrInvalidRequest      = NewDomainError(ErrorTypeValidation, "invalid request", nil)
	ErrUnknownRole         = NewDomainError(ErrorTypeUnknownRole, "unknown role", nil)
	ErrUpstreamUnavailable = NewDomainError(ErrorTypeUpstreamUnavailable, "upstream unavailable", nil)
	ErrUpstreamError       = NewDomainError(ErrorTypeUpstreamError, "upstream returned an error", nil)
	ErrQueryFailed         = NewDomainError(ErrorTypeQueryFailed, "query failed", nil)
	ErrInternal            = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// NewInvalidRequestError reports a request the router cannot interpret.
func NewInvalidRequestError(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, err)
}

// NewUnknownRoleError reports a role selector with no configured backend.
func NewUnknownRoleError(role string) *DomainError {
	return NewDomainError(ErrorTypeUnknownRole, fmt.Sprintf("no backend configured for role %q", role), nil).
		WithDetail(DetailRole, role)
}

// NewUpstreamUnavailableError reports a backend that could not be reached in time.
func NewUpstreamUnavailableError(role, backend string, cause error) *DomainError {
	return NewDomainError(ErrorTypeUpstreamUnavailable, fmt.Sprintf("backend for role %q is unavailable", role), cause).
		WithDetail(DetailRole, role).
		WithDetail(DetailBackend, backend).
		WithDetail(DetailCause, causeString(cause))
}

// NewUpstreamError reports a backend that answered with a non-success status.
// body is either a json.RawMessage or a string.
func NewUpstreamError(role, backend string, status int, body interface{}) *DomainError {
	return NewDomainError(ErrorTypeUpstreamError, fmt.Sprintf("backend for role %q returned status %d", role, status), nil).
		WithDetail(DetailRole, role).
		WithDetail(DetailBackend, backend).
		WithDetail(DetailUpstreamStatus, status).
		WithDetail(DetailUpstreamBody, body)
}

// NewQueryFailedError reports a failed observability backend query.
func NewQueryFailedError(backend string, err error) *DomainError {
	return NewDomainError(ErrorTypeQueryFailed, fmt.Sprintf("%s query failed", backend), err).
		WithDetail(DetailBackend, backend).
		WithDetail(DetailCause, causeString(err))
}

func causeString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Error type checking helper functions

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnknownRoleError checks if an error is an unknown role error
func IsUnknownRoleError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnknownRole
}

// IsUpstreamUnavailableError checks if an error is an upstream unavailable error
func IsUpstreamUnavailableError(err error) bool {
	return GetErrorType(err) == ErrorTypeUpstreamUnavailable
}

// IsUpstreamError checks if an error is an upstream status error
func IsUpstreamError(err error) bool {
	return GetErrorType(err) == ErrorTypeUpstreamError
}

// IsQueryFailedError checks if an error is a query failed error
func IsQueryFailedError(err error) bool {
	return GetErrorType(err) == ErrorTypeQueryFailed
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsTimeout reports whether the error chain ends in a deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// GetUpstreamStatus returns the backend status carried by an upstream error, or 0.
func GetUpstreamStatus(err error) int {
	if !IsUpstreamError(err) {
		return 0
	}
	status, _ := GetErrorDetails(err)[DetailUpstreamStatus].(int)
	return status
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
