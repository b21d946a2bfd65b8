package api

import (
	"context"

	"shoppulse/internal/session"
	"shoppulse/pkg/shopify"
)

type ctxKey string

const (
	ctxKeySession  ctxKey = "session"
	ctxKeyIdentity ctxKey = "identity"
)

func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, s)
}

// SessionFromContext returns the session attached by the gate, or nil.
func SessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(ctxKeySession).(*session.Session)
	return s
}

// WithIdentity attaches a bearer-verified session token identity.
func WithIdentity(ctx context.Context, v *shopify.VerifiedSession) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, v)
}

func IdentityFromContext(ctx context.Context) *shopify.VerifiedSession {
	v, _ := ctx.Value(ctxKeyIdentity).(*shopify.VerifiedSession)
	return v
}
