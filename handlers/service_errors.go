package handlers

import (
	"net/http"

	"github.com/upb/ai-platform/services"
	"github.com/upb/ai-platform/utils"
	"go.uber.org/zap"
)

// Error codes written in the "error" field of failure responses.
const (
	CodeBadRequest          = "bad_request"
	CodeUnknownRole         = "unknown_role"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeUpstreamError       = "upstream_error"
	CodeQueryFailed         = "query_failed"
	CodeInternal            = "internal_error"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	status, code := statusFor(err)

	var writeErr error
	switch code {
	case CodeInternal:
		// Log internal errors but return generic message
		logger.Error("internal server error",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")
	default:
		writeErr = utils.WriteError(w, status, code, err.Error(), details)
	}

	if writeErr != nil {
		logger.Error("failed to write error response",
			zap.String("code", code),
			zap.Error(writeErr))
	}
}

// statusFor returns the HTTP status and error code for err.
func statusFor(err error) (int, string) {
	switch {
	case services.IsValidationError(err):
		return http.StatusBadRequest, CodeBadRequest

	case services.IsUnknownRoleError(err):
		return http.StatusBadRequest, CodeUnknownRole

	case services.IsUpstreamUnavailableError(err):
		if services.IsTimeout(err) {
			return http.StatusGatewayTimeout, CodeUpstreamUnavailable
		}
		return http.StatusBadGateway, CodeUpstreamUnavailable

	case services.IsUpstreamError(err):
		// Backend status passes through; non-failure statuses become 502.
		status := services.GetUpstreamStatus(err)
		if status < http.StatusBadRequest || status > 599 {
			status = http.StatusBadGateway
		}
		return status, CodeUpstreamError

	case services.IsQueryFailedError(err):
		return http.StatusBadGateway, CodeQueryFailed

	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	// Generic validation error
	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
