package middleware

import (
	"context"

	"go.uber.org/zap"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
)

// RequestIDHeader carries the request ID in and out of both services.
const RequestIDHeader = "X-Request-ID"

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// LoggerFromContext returns logger annotated with the request ID, if any.
func LoggerFromContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if requestID := GetRequestIDFromContext(ctx); requestID != "" {
		return logger.With(zap.String("request_id", requestID))
	}
	return logger
}
