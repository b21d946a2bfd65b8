package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"shoppulse/internal/api"
	"shoppulse/internal/audit"
	"shoppulse/internal/auth"
	"shoppulse/internal/events"
	"shoppulse/internal/metrics"
	"shoppulse/internal/session"
	"shoppulse/internal/shop"
	"shoppulse/internal/web"
	"shoppulse/internal/webhook"
	"shoppulse/pkg/config"
)

type Dependencies struct {
	Cfg config.Config
	Log zerolog.Logger

	Sessions *session.Manager
	Shops    shop.Store
	Audit    audit.Recorder
	Ledger   events.Ledger

	Exchanger auth.TokenExchanger
	Registrar auth.WebhookRegistrar
	Tokens    api.TokenValidator
	Metrics   *metrics.Metrics
}

func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(deps.Log))
	r.Use(requestIDField)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	gate := api.Gate{
		Sessions:         deps.Sessions,
		ShopDomainSuffix: deps.Cfg.Shopify.ShopDomainSuffix,
		AdminHost:        deps.Cfg.Shopify.AdminHost,
		Metrics:          deps.Metrics,
	}
	r.Use(gate.Middleware)

	authHandlers := auth.Handlers{
		Cfg:       deps.Cfg,
		Sessions:  deps.Sessions,
		Shops:     deps.Shops,
		Audit:     deps.Audit,
		Exchanger: deps.Exchanger,
		Webhooks:  deps.Registrar,
		Metrics:   deps.Metrics,
	}
	apiHandlers := api.Handlers{Tokens: deps.Tokens, AppEnv: deps.Cfg.AppEnv}
	if p, ok := deps.Sessions.Store.(api.Pinger); ok {
		apiHandlers.SessionStore = p
	}
	webhookHandler := webhook.NewHandler(webhook.Handler{
		Secret:           deps.Cfg.Shopify.WebhookSecret,
		ShopDomainSuffix: deps.Cfg.Shopify.ShopDomainSuffix,
		Sessions:         deps.Sessions.Store,
		Shops:            deps.Shops,
		Audit:            deps.Audit,
		Ledger:           deps.Ledger,
		Metrics:          deps.Metrics,
	})

	// Install flow
	r.Get("/install", authHandlers.Install)
	r.Get("/auth/callback", authHandlers.Callback)
	r.Get("/oauth-error", authHandlers.OAuthError)
	r.Get("/logout", authHandlers.Logout)

	// Pages
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		target := "/dashboard"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusFound)
	})
	r.Get("/dashboard", apiHandlers.Dashboard)
	r.Handle("/static/*", web.Static())

	// Ops
	r.Get("/health", apiHandlers.Health)
	r.Get("/debug/session", apiHandlers.DebugSession)
	r.Handle("/metrics", deps.Metrics.Handler())

	// Embedded app APIs
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(noStore)
			r.Use(authCheckCORS(deps.Cfg.AllowedOrigins))
			r.Get("/auth-check", apiHandlers.AuthCheck)
			r.Options("/auth-check", apiHandlers.AuthCheck)
		})
		r.With(noStore, api.RequireSessionToken(deps.Tokens)).Get("/verify-session", apiHandlers.VerifySession)
		r.Get("/session", apiHandlers.Session)
	})

	// Webhooks
	r.Post("/webhook/{resource}/{event}", webhookHandler.ServeHTTP)

	return r
}

// authCheckCORS lets the embedded frontend call auth-check from another origin.
// Preflights pass through so the handler answers them with 204.
func authCheckCORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:     origins,
		AllowedMethods:     []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:     []string{"Authorization", "Content-Type"},
		MaxAge:             600,
		OptionsPassthrough: true,
	})
}

func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func requestIDField(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}
