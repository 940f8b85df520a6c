package auth

import "context"

type userContextKey struct{}

// ContextWithUser stashes the session user account in the request context.
func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserFromContext returns the session user account, if any.
func UserFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userContextKey{}).(string)
	return userID, ok && userID != ""
}
