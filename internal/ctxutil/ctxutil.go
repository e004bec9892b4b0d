// Package ctxutil provides shared context key accessors.
//
// Both the HTTP server and the MCP server populate these values; the service
// layer reads them without importing either transport.
package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	keyRequestID contextKey = "request_id"
	keyUserID    contextKey = "user_id"
)

// WithRequestID returns a context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestIDFromContext returns the request ID, or "" when none is set.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns a context carrying the acting CRM user.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, keyUserID, id)
}

// UserIDFromContext returns the acting user, or nil when the call is not
// attributed to a user.
func UserIDFromContext(ctx context.Context) *uuid.UUID {
	if v, ok := ctx.Value(keyUserID).(uuid.UUID); ok && v != uuid.Nil {
		return &v
	}
	return nil
}
