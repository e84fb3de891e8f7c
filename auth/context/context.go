package authcontext

import "context"

// Anonymous is the subject of a context that carries none.
const Anonymous = "system:anonymous"

type contextKeySubject struct{}

// GetSubject returns the acting user id stored in ctx, or Anonymous.
func GetSubject(ctx context.Context) string {
	userID, ok := ctx.Value(contextKeySubject{}).(string)
	if !ok || userID == "" {
		return Anonymous
	}

	return userID
}

func WithSubject(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeySubject{}, userID)
}
