package auth

import (
	"context"
)

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	identityKey  contextKey = "token_identity"
)

// NewContextWithSessionID returns a context carrying the session ID.
func NewContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// GetSessionIDFromContext extracts the session ID and reports whether
// it was present.
func GetSessionIDFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(sessionIDKey).(string)
	return sessionID, ok
}

// SessionIDFromContext extracts the session ID, falling back to
// "guest" when the context carries none.
func SessionIDFromContext(ctx context.Context) string {
	sessionID, ok := GetSessionIDFromContext(ctx)
	if !ok || sessionID == "" {
		return "guest"
	}
	return sessionID
}

// AddIdentityToContext stores a validated token identity on the
// context, together with its session ID for direct lookup.
func AddIdentityToContext(ctx context.Context, identity *TokenIdentity) context.Context {
	ctx = context.WithValue(ctx, identityKey, identity)
	if identity != nil {
		ctx = NewContextWithSessionID(ctx, identity.SessionID)
	}
	return ctx
}

// IdentityFromContext extracts the validated token identity.
func IdentityFromContext(ctx context.Context) (*TokenIdentity, bool) {
	identity, ok := ctx.Value(identityKey).(*TokenIdentity)
	return identity, ok
}
