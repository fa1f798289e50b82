package rest

import (
	"context"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/identity"
)

type contextKey string

const (
	contextKeyCaller    contextKey = "caller"
	contextKeyRequestID contextKey = "request_id"
)

// CallerFromContext returns the authenticated caller placed in the context
// by the auth middleware.
func CallerFromContext(ctx context.Context) (identity.Caller, bool) {
	c, ok := ctx.Value(contextKeyCaller).(identity.Caller)
	return c, ok
}

// RequestIDFromContext returns the request ID, or empty when absent.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}
