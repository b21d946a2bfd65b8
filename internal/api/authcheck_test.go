package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoppulse/pkg/shopify"
)

type stubValidator struct {
	shop string
	err  error
}

func (s stubValidator) Validate(raw string) (*shopify.VerifiedSession, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &shopify.VerifiedSession{ShopDomain: s.shop, ExpiresAt: time.Unix(1700000060, 0)}, nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func serveGated(m http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, req)
	return rec
}

func TestAuthCheck_BearerWins(t *testing.T) {
	m := newManager()
	h := Handlers{Tokens: stubValidator{shop: "bearer.myshopify.com"}}
	handler := Gate{Sessions: m}.Middleware(http.HandlerFunc(h.AuthCheck))

	req := httptest.NewRequest(http.MethodGet, "/api/auth-check", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	req.AddCookie(loginCookie(t, m, "cookie.myshopify.com"))
	rec := serveGated(handler, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "bearer.myshopify.com", body["shop"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestAuthCheck_InvalidBearerFallsBackToCookie(t *testing.T) {
	m := newManager()
	h := Handlers{Tokens: stubValidator{err: shopify.ErrTokenExpired}}
	handler := Gate{Sessions: m}.Middleware(http.HandlerFunc(h.AuthCheck))

	req := httptest.NewRequest(http.MethodGet, "/api/auth-check", nil)
	req.Header.Set("Authorization", "Bearer expired")
	req.AddCookie(loginCookie(t, m, "cookie.myshopify.com"))
	body := decodeBody(t, serveGated(handler, req))

	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "cookie.myshopify.com", body["shop"])
}

func TestAuthCheck_Anonymous(t *testing.T) {
	h := Handlers{Tokens: stubValidator{err: errors.New("bad")}}
	handler := Gate{Sessions: newManager()}.Middleware(http.HandlerFunc(h.AuthCheck))
	rec := serveGated(handler, httptest.NewRequest(http.MethodGet, "/api/auth-check", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["authenticated"])
	_, hasShop := body["shop"]
	assert.False(t, hasShop)
}

func TestAuthCheck_Options(t *testing.T) {
	rec := httptest.NewRecorder()
	Handlers{}.AuthCheck(rec, httptest.NewRequest(http.MethodOptions, "/api/auth-check", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Body.String())
}

func TestVerifySession(t *testing.T) {
	h := Handlers{}
	v := RequireSessionToken(stubValidator{shop: "foo.myshopify.com"})(http.HandlerFunc(h.VerifySession))

	rec := httptest.NewRecorder()
	v.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/verify-session", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/verify-session", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec = httptest.NewRecorder()
	v.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "foo.myshopify.com", body["shop"])
	assert.Equal(t, "2023-11-14T22:14:20Z", body["expires_at"])

	bad := RequireSessionToken(stubValidator{err: shopify.ErrTokenAudience})(http.HandlerFunc(h.VerifySession))
	rec = httptest.NewRecorder()
	bad.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionAndHealth(t *testing.T) {
	m := newManager()
	h := Handlers{AppEnv: "test"}
	cookie := loginCookie(t, m, "foo.myshopify.com")

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(cookie)
	body := decodeBody(t, serveGated(Gate{Sessions: m}.Middleware(http.HandlerFunc(h.Session)), req))
	assert.Equal(t, "foo.myshopify.com", body["shop"])
	assert.Equal(t, "aG9zdA", body["host"])

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.AddCookie(cookie)
	body = decodeBody(t, serveGated(Gate{Sessions: m}.Middleware(http.HandlerFunc(h.Health)), req))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "authenticated", body["auth_status"])
	assert.Equal(t, "test", body["environment"])

	body = decodeBody(t, serveGated(Gate{Sessions: m}.Middleware(http.HandlerFunc(h.Health)),
		httptest.NewRequest(http.MethodGet, "/health", nil)))
	assert.Equal(t, "unauthenticated", body["auth_status"])
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealth_SessionStore(t *testing.T) {
	cases := map[string]struct {
		pinger Pinger
		want   any
	}{
		"no store":   {nil, nil},
		"store up":   {stubPinger{}, "ok"},
		"store down": {stubPinger{err: errors.New("dial tcp: connection refused")}, "unavailable"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := Handlers{AppEnv: "test", SessionStore: tc.pinger}
			rec := serveGated(Gate{Sessions: newManager()}.Middleware(http.HandlerFunc(h.Health)),
				httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, http.StatusOK, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, "ok", body["status"])
			assert.Equal(t, tc.want, body["session_store"])
		})
	}
}

func TestDebugSession(t *testing.T) {
	m := newManager()
	req := httptest.NewRequest(http.MethodGet, "/debug/session", nil)
	req.AddCookie(loginCookie(t, m, "foo.myshopify.com"))

	rec := serveGated(Gate{Sessions: m}.Middleware(http.HandlerFunc(Handlers{AppEnv: "dev"}.DebugSession)), req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "shpat_token")
	view := decodeBody(t, rec)["session"].(map[string]any)
	assert.Equal(t, true, view["authenticated"])
	assert.Equal(t, "shpa***oken", view["access_token"])

	rec = serveGated(Gate{Sessions: m}.Middleware(http.HandlerFunc(Handlers{AppEnv: "prod"}.DebugSession)), req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboard(t *testing.T) {
	m := newManager()
	req := httptest.NewRequest(http.MethodGet, "/dashboard?shop=foo.myshopify.com", nil)
	req.AddCookie(loginCookie(t, m, "foo.myshopify.com"))
	rec := serveGated(Gate{Sessions: m}.Middleware(http.HandlerFunc(Handlers{}.Dashboard)), req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "foo.myshopify.com")
}
