// Package actorctx carries the authenticated user through a request context
// so logs deeper in the stack can name who acted.
package actorctx

import "context"

type ctxKey string

const (
	keyUserID ctxKey = "actor.user_id"
	keyRole   ctxKey = "actor.role"
)

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

func UserIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)

	return v, ok && v != ""
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, keyRole, role)
}

func RoleFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRole).(string)

	return v, ok && v != ""
}
