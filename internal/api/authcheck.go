package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"shoppulse/pkg/shopify"
)

type AuthCheckResponse struct {
	Authenticated bool   `json:"authenticated"`
	Shop          string `json:"shop,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// Handlers serves the embedded-app JSON endpoints.
type Handlers struct {
	Tokens TokenValidator
	AppEnv string
	Now    func() time.Time
	// SessionStore is reported on /health when set.
	SessionStore Pinger
}

type Pinger interface {
	Ping(ctx context.Context) error
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// AuthCheck answers whether the caller is authenticated, preferring a bearer
// session token and falling back to the cookie session.
func (h Handlers) AuthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := AuthCheckResponse{Timestamp: h.now().UTC().Format(time.RFC3339)}

	if raw, ok := shopify.BearerToken(r.Header.Get("Authorization")); ok && h.Tokens != nil {
		vs, err := h.Tokens.Validate(raw)
		if err == nil {
			resp.Authenticated = true
			resp.Shop = vs.ShopDomain
			WriteJSON(w, http.StatusOK, resp)
			return
		}
		hlog.FromRequest(r).Debug().Err(err).Msg("bearer token rejected; falling back to cookie session")
	}

	if s := SessionFromContext(r.Context()); s.IsAuthenticated() {
		resp.Authenticated = true
		resp.Shop = s.ShopDomain
	}
	WriteJSON(w, http.StatusOK, resp)
}

// VerifySession echoes the identity established by RequireSessionToken.
func (h Handlers) VerifySession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	vs := IdentityFromContext(r.Context())
	if vs == nil {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "missing session token")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"valid":      true,
		"shop":       vs.ShopDomain,
		"expires_at": vs.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Session returns the authenticated shop context. It sits behind the gate.
func (h Handlers) Session(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	if !s.IsAuthenticated() {
		WriteUnauthenticated(w, "authentication required")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"shop":             s.ShopDomain,
		"host":             s.Host,
		"authenticated_at": s.AuthenticatedAt.UTC().Format(time.RFC3339),
	})
}
