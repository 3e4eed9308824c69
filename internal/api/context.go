package api

import (
	"context"

	"github.com/lei/runwatch/pkg/logger"
)

// contextKey is an unexported type for context keys to prevent collisions
type contextKey string

const (
	contextKeyRequestID  contextKey = "request_id"
	contextKeyAPIKeyName contextKey = "api_key_name"
)

var nopLogger = logger.NewNop()

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// GetLogger retrieves the request-scoped logger. Requests that bypassed the
// logging middleware get a no-op logger.
func GetLogger(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx, nopLogger)
}

// GetAPIKeyName retrieves the name of the API key that authenticated the request
func GetAPIKeyName(ctx context.Context) string {
	if name, ok := ctx.Value(contextKeyAPIKeyName).(string); ok {
		return name
	}
	return ""
}
