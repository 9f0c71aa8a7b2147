package authz

import "context"

type userContextKey struct{}

// ContextWithUser stores the resolved principal in the context.
func ContextWithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext extracts the resolved principal. The second return is
// false when no principal was resolved upstream.
func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userContextKey{}).(User)
	return user, ok
}
