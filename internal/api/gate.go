package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/hlog"

	"shoppulse/internal/metrics"
	"shoppulse/internal/session"
	"shoppulse/internal/web"
	"shoppulse/pkg/shopify"
)

// Paths reachable without an authenticated session.
var exemptExact = map[string]bool{
	"/install":            true,
	"/auth/callback":      true,
	"/oauth-error":        true,
	"/health":             true,
	"/debug/session":      true,
	"/api/auth-check":     true,
	"/api/verify-session": true,
	"/metrics":            true,
	"/logout":             true,
}

var exemptPrefixes = []string{"/static/", "/webhook/"}

func IsExempt(path string) bool {
	if exemptExact[path] {
		return true
	}
	for _, p := range exemptPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Gate loads the cookie session for every request and rejects
// unauthenticated requests to protected paths.
type Gate struct {
	Sessions         *session.Manager
	ShopDomainSuffix string
	AdminHost        string
	Metrics          *metrics.Metrics
}

func (g Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := hlog.FromRequest(r)

		s, err := g.Sessions.Load(r)
		if err != nil {
			log.Warn().Err(err).Msg("session store unavailable; continuing anonymous")
		}
		r = r.WithContext(WithSession(r.Context(), s))

		if IsExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if s.IsAuthenticated() {
			g.Metrics.GateDecision("authenticated")
			next.ServeHTTP(w, r)
			return
		}

		if strings.HasPrefix(r.URL.Path, "/api/") {
			g.Metrics.GateDecision("api_unauthorized")
			WriteUnauthenticated(w, "authentication required")
			return
		}

		if shop := strings.TrimSpace(r.URL.Query().Get("shop")); shop != "" {
			g.Metrics.GateDecision("install_from_param")
			redirectToInstall(w, r, shop, r.URL.Query().Get("host"))
			return
		}

		ref := r.Referer()
		if ref != "" {
			if isAuthFlowURL(ref) {
				g.Metrics.GateDecision("redirect_loop")
				log.Warn().Str("path", r.URL.Path).Msg("redirect loop detected in auth gate")
				web.RenderError(w, http.StatusBadRequest, "redirect_loop_detected", "", "")
				return
			}
			if shop, ok := shopify.ShopFromReferrer(ref, g.ShopDomainSuffix, g.AdminHost); ok {
				g.Metrics.GateDecision("install_from_referrer")
				log.Info().
					Str("shop", shop).
					Bool("platform_referrer", g.platformReferrer(ref)).
					Msg("recovered shop from referrer")
				redirectToInstall(w, r, shop, "")
				return
			}
		}

		g.Metrics.GateDecision("auth_required")
		web.RenderAuthRequired(w)
	})
}

func redirectToInstall(w http.ResponseWriter, r *http.Request, shop, host string) {
	q := url.Values{}
	q.Set("shop", shop)
	if host != "" {
		q.Set("host", host)
	}
	http.Redirect(w, r, "/install?"+q.Encode(), http.StatusFound)
}

func isAuthFlowURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	p := strings.TrimSuffix(u.Path, "/")
	return p == "/install" || p == "/auth/callback"
}

// platformReferrer reports whether the referrer was served by a shop or the admin console.
func (g Gate) platformReferrer(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return shopify.IsPlatformHost(u.Hostname(), g.ShopDomainSuffix, g.AdminHost)
}
