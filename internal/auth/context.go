package auth

import "context"

type contextKey string

const contextKeySession contextKey = "auth.session"

// WithSession stores the session in context. Only the HTTP layer reads it
// back; services receive the session as an argument.
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, contextKeySession, session)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	session, ok := ctx.Value(contextKeySession).(Session)
	if !ok || !session.Authenticated() {
		return Session{}, false
	}
	return session, true
}
