package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoppulse/internal/audit"
	"shoppulse/internal/events"
	"shoppulse/internal/metrics"
	"shoppulse/internal/session"
	"shoppulse/internal/shop"
	"shoppulse/internal/webhook"
	"shoppulse/pkg/config"
	"shoppulse/pkg/shopify"
)

type noopExchanger struct{}

func (noopExchanger) ExchangeCodeForToken(context.Context, string, string) (shopify.AccessToken, error) {
	return shopify.AccessToken{Value: "shpat_x"}, nil
}

type noopRegistrar struct{}

func (noopRegistrar) Register(_ context.Context, shopDomain, _ string) webhook.RegistrationReport {
	return webhook.RegistrationReport{Shop: shopDomain, Skipped: true}
}

func newTestRouter(t *testing.T) (http.Handler, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore()
	cfg := config.Config{
		AppEnv: "test",
		Shopify: config.ShopifyConfig{
			APIKey:           "key",
			APISecret:        "secret",
			WebhookSecret:    "secret",
			ShopDomainSuffix: ".myshopify.com",
			AdminHost:        "admin.shopify.com",
		},
	}
	h := NewRouter(Dependencies{
		Cfg:       cfg,
		Log:       zerolog.New(io.Discard),
		Sessions:  &session.Manager{Store: store, CookieName: "sid", Secret: []byte("0123456789abcdef"), TTL: time.Hour},
		Shops:     shop.NewMemoryRepository(),
		Audit:     audit.NewMemoryRecorder(),
		Ledger:    events.NewMemoryLedger(),
		Exchanger: noopExchanger{},
		Registrar: noopRegistrar{},
		Tokens:    &shopify.SessionTokenValidator{ClientID: "key", Secret: "secret"},
		Metrics:   metrics.New(),
	})
	return h, store
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"session_store":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestRouter_Metrics(t *testing.T) {
	h, _ := newTestRouter(t)
	do(h, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	rec := do(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shoppulse_auth_gate_decisions_total")
}

func TestRouter_InstallRedirects(t *testing.T) {
	h, store := newTestRouter(t)
	rec := do(h, httptest.NewRequest(http.MethodGet, "/install?shop=foo", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://foo.myshopify.com/admin/oauth/authorize?"))
	assert.Equal(t, 1, store.Len())
}

func TestRouter_ProtectedRoutes(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authenticated":false`)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/?shop=foo.myshopify.com", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/install?shop=foo.myshopify.com", rec.Header().Get("Location"))

	rec = do(h, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_AuthCheckCORS(t *testing.T) {
	h, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth-check", nil)
	req.Header.Set("Origin", "https://admin.shopify.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := do(h, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/auth-check", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authenticated":false`)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestRouter_VerifySessionRequiresBearer(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/verify-session", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_WebhookIsNotGated(t *testing.T) {
	h, _ := newTestRouter(t)
	body := []byte(`{"id":1,"myshopify_domain":"foo.myshopify.com"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook/app/uninstalled", bytes.NewReader(body))
	rec := do(h, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/webhook/app/uninstalled", bytes.NewReader(body))
	req.Header.Set(webhook.HeaderHMAC, shopify.SignHMAC([]byte("secret"), body, shopify.Base64))
	rec = do(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Static(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(h, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "body")
}
