package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"shoppulse/internal/web"
	"shoppulse/pkg/logging"
)

const healthPingTimeout = 2 * time.Second

// Health always answers 200; auth_status describes the caller's cookie session
// and session_store the result of pinging the store.
func (h Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "unauthenticated"
	if SessionFromContext(r.Context()).IsAuthenticated() {
		status = "authenticated"
	}
	body := map[string]string{
		"status":      "ok",
		"auth_status": status,
		"environment": h.AppEnv,
	}
	if h.SessionStore != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		body["session_store"] = "ok"
		if err := h.SessionStore.Ping(ctx); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("session store ping failed")
			body["session_store"] = "unavailable"
		}
	}
	WriteJSON(w, http.StatusOK, body)
}

// DebugSession shows the caller's session with secrets masked. Disabled in prod.
func (h Handlers) DebugSession(w http.ResponseWriter, r *http.Request) {
	if h.AppEnv == "prod" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	s := SessionFromContext(r.Context())
	if s == nil {
		WriteJSON(w, http.StatusOK, map[string]any{"session": nil})
		return
	}
	view := map[string]any{
		"id":               logging.Mask(s.ID),
		"shop":             s.ShopDomain,
		"authenticated":    s.IsAuthenticated(),
		"has_access_token": s.AccessToken != "",
		"access_token":     logging.Mask(s.AccessToken),
		"nonce_pending":    s.Nonce != "",
		"host":             s.Host,
	}
	if !s.AuthenticatedAt.IsZero() {
		view["authenticated_at"] = s.AuthenticatedAt.UTC().Format(time.RFC3339)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"session": view})
}

// Dashboard is the landing page after install. It sits behind the gate.
func (h Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	if !s.IsAuthenticated() {
		web.RenderAuthRequired(w)
		return
	}
	host := r.URL.Query().Get("host")
	if host == "" {
		host = s.Host
	}
	web.RenderDashboard(w, web.DashboardPage{
		Shop:            s.ShopDomain,
		Host:            host,
		AuthenticatedAt: s.AuthenticatedAt.UTC().Format(time.RFC1123),
	})
}
