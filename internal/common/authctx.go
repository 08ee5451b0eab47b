package common

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const (
	userIDKey   ctxKey = "auth/user-id"
	userRoleKey ctxKey = "auth/user-role"
)

// Roles recognised by the API.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// WithRole stores the authenticated user's role.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, userRoleKey, role)
}

// Role returns the role stored by WithRole, or an empty string.
func Role(ctx context.Context) string {
	role, _ := ctx.Value(userRoleKey).(string)
	return role
}

// CurrentUserID parses the authenticated user identifier, failing with 401 when absent.
func CurrentUserID(ctx context.Context) (uuid.UUID, error) {
	raw, ok := UserID(ctx)
	if !ok || raw == "" {
		return uuid.Nil, Unauthorized("missing or invalid token")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, Unauthorized("missing or invalid token")
	}
	return id, nil
}
