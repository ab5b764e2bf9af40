package llm

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	invocationIDKey contextKey = "llm_invocation_id"
)

// WithInvocationID returns a context tagged with the generation invocation it
// belongs to. Outgoing provider requests carry it as X-Request-Id.
func WithInvocationID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, invocationIDKey, id)
}

// InvocationID retrieves the invocation id from context, if present.
func InvocationID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(invocationIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
