package auth

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// userContextKey is the context key for storing the authenticated user
const userContextKey contextKey = "user"

// UserInfo holds user identity extracted from a validated token
type UserInfo struct {
	ID    uuid.UUID
	Email string
}

// WithUser returns a context carrying the authenticated user
func WithUser(ctx context.Context, user *UserInfo) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext extracts user info from context
func UserFromContext(ctx context.Context) (*UserInfo, bool) {
	user, ok := ctx.Value(userContextKey).(*UserInfo)
	return user, ok
}

// UserIDFromContext extracts just the user ID from context
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return user.ID, true
}
