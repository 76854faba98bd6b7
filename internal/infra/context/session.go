package context

import (
	"context"

	"github.com/mkrupp/taskcase-michael/internal/domain"
)

const contextKeySession = contextKey("session")

// SessionFromContext extracts the authenticated session from the context.
// Returns the session and true if present, or a zero session and false if not present.
func SessionFromContext(ctx context.Context) (domain.Session, bool) {
	session, ok := ctx.Value(contextKeySession).(domain.Session)

	return session, ok
}

// WithSession creates a new context carrying the given session.
// Handlers downstream of the session guard use this to identify the current user.
func WithSession(ctx context.Context, session domain.Session) context.Context {
	return context.WithValue(ctx, contextKeySession, session)
}
