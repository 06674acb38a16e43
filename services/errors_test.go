package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "something broke", baseErr)

	assert.Equal(t, ErrorTypeInternal, domainErr.Type)
	assert.Equal(t, "something broke", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeUpstreamUnavailable,
				Message: "backend down",
				Err:     errors.New("connection refused"),
			},
			wantMsg: "upstream_unavailable: backend down (connection refused)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeValidation,
				Message: "invalid input",
			},
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same error type",
			err:    NewUnknownRoleError("vision"),
			target: ErrUnknownRole,
			want:   true,
		},
		{
			name:   "different error type",
			err:    NewUnknownRoleError("vision"),
			target: ErrUpstreamError,
			want:   false,
		},
		{
			name:   "wrapped domain error",
			err:    fmt.Errorf("routing: %w", NewQueryFailedError("loki", errors.New("boom"))),
			target: ErrQueryFailed,
			want:   true,
		},
		{
			name:   "plain error",
			err:    errors.New("plain"),
			target: ErrInternal,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestConstructorsDoNotMutateSentinels(t *testing.T) {
	_ = NewUnknownRoleError("vision")
	_ = NewUpstreamError("code", "http://code:8000", 500, "oops")

	assert.Empty(t, ErrUnknownRole.Details)
	assert.Empty(t, ErrUpstreamError.Details)
}

func TestNewUpstreamUnavailableError(t *testing.T) {
	cause := fmt.Errorf("dial: %w", context.DeadlineExceeded)
	err := NewUpstreamUnavailableError("planner", "http://planner:8000", cause)

	assert.True(t, IsUpstreamUnavailableError(err))
	assert.True(t, IsTimeout(err))

	details := GetErrorDetails(err)
	assert.Equal(t, "planner", details[DetailRole])
	assert.Equal(t, "http://planner:8000", details[DetailBackend])
	assert.Contains(t, details[DetailCause], "deadline exceeded")
}

func TestNewUpstreamError(t *testing.T) {
	body := json.RawMessage(`{"error":"model overloaded"}`)
	err := NewUpstreamError("code", "http://code:8000", 503, body)

	require.True(t, IsUpstreamError(err))
	assert.Equal(t, 503, GetUpstreamStatus(err))
	assert.Equal(t, body, GetErrorDetails(err)[DetailUpstreamBody])
	assert.Contains(t, err.Error(), "status 503")
}

func TestGetUpstreamStatus_NonUpstream(t *testing.T) {
	assert.Equal(t, 0, GetUpstreamStatus(NewUnknownRoleError("x")))
	assert.Equal(t, 0, GetUpstreamStatus(errors.New("plain")))
}

func TestErrorTypeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"validation", NewInvalidRequestError("bad body", nil), IsValidationError},
		{"unknown role", NewUnknownRoleError("x"), IsUnknownRoleError},
		{"upstream unavailable", NewUpstreamUnavailableError("r", "b", errors.New("x")), IsUpstreamUnavailableError},
		{"upstream error", NewUpstreamError("r", "b", 500, "x"), IsUpstreamError},
		{"query failed", NewQueryFailedError("prometheus", errors.New("x")), IsQueryFailedError},
		{"internal", WrapInternal("x", errors.New("y")), IsInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestGetErrorType_NonDomain(t *testing.T) {
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
	assert.Nil(t, GetErrorDetails(errors.New("plain")))
}
