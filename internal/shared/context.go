package shared

import (
	"context"

	"github.com/google/uuid"
)

type principalContextKey struct{}

// ContextWithPrincipal stores the authenticated user id in context.
func ContextWithPrincipal(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, principalContextKey{}, id)
}

// PrincipalFromContext extracts the authenticated user id from context.
func PrincipalFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(principalContextKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
