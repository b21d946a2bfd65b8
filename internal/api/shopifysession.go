package api

import (
	"net/http"

	"github.com/rs/zerolog/hlog"

	"shoppulse/pkg/shopify"
)

// TokenValidator validates embedded-app session tokens.
type TokenValidator interface {
	Validate(raw string) (*shopify.VerifiedSession, error)
}

// RequireSessionToken admits only requests carrying a valid
// "Authorization: Bearer <session token>" header and attaches the verified identity.
func RequireSessionToken(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := shopify.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "missing session token")
				return
			}
			vs, err := v.Validate(raw)
			if err != nil {
				hlog.FromRequest(r).Info().Err(err).Msg("session token rejected")
				WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid session token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), vs)))
		})
	}
}
