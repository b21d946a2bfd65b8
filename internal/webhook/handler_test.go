package webhook

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoppulse/internal/audit"
	"shoppulse/internal/events"
	"shoppulse/internal/session"
	"shoppulse/internal/shop"
	"shoppulse/pkg/shopify"
)

const testSecret = "whsec_test"

type fixture struct {
	router   http.Handler
	sessions *session.MemoryStore
	shops    *shop.MemoryRepository
	audit    *audit.MemoryRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sessions: session.NewMemoryStore(),
		shops:    shop.NewMemoryRepository(),
		audit:    audit.NewMemoryRecorder(),
	}
	h := NewHandler(Handler{
		Secret:   testSecret,
		Sessions: f.sessions,
		Shops:    f.shops,
		Audit:    f.audit,
		Ledger:   events.NewMemoryLedger(),
	})
	r := chi.NewRouter()
	r.Post("/webhook/{resource}/{event}", h.ServeHTTP)
	f.router = r
	return f
}

func (f *fixture) post(path string, body []byte, mac string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if mac != "" {
		req.Header.Set(HeaderHMAC, mac)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func sign(body []byte) string {
	return shopify.SignHMAC([]byte(testSecret), body, shopify.Base64)
}

func (f *fixture) seedShop(t *testing.T, domain string, sessions ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.shops.Upsert(ctx, domain, "shpat_x", "")
	require.NoError(t, err)
	for _, id := range sessions {
		require.NoError(t, f.sessions.Save(ctx, &session.Session{
			ID: id, ShopDomain: domain, AccessToken: "shpat_x", Authenticated: true,
		}, time.Hour))
	}
}

func TestWebhook_RejectsMissingOrBadSignature(t *testing.T) {
	f := newFixture(t)
	f.seedShop(t, "foo.myshopify.com", "s1")
	body := []byte(`{"myshopify_domain":"foo.myshopify.com"}`)

	rec := f.post("/webhook/app/uninstalled", body, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tampered := []byte(`{"myshopify_domain":"foo.myshopify.con"}`)
	rec = f.post("/webhook/app/uninstalled", tampered, sign(body), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// nothing was revoked
	_, err := f.sessions.Load(context.Background(), "s1")
	assert.NoError(t, err)
	assert.Empty(t, f.audit.Entries())
}

func TestWebhook_UnknownTopicStillNeedsSignature(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{}`)

	assert.Equal(t, http.StatusUnauthorized, f.post("/webhook/orders/create", body, "bogus", nil).Code)
	rec := f.post("/webhook/orders/create", body, sign(body), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestWebhook_AppUninstalledRevokesSessionsIdempotently(t *testing.T) {
	f := newFixture(t)
	f.seedShop(t, "foo.myshopify.com", "s1", "s2")
	f.seedShop(t, "bar.myshopify.com", "s3")
	body := []byte(`{"id":1,"myshopify_domain":"foo.myshopify.com"}`)
	headers := map[string]string{HeaderShop: "foo.myshopify.com"}

	first := f.post("/webhook/app/uninstalled", body, sign(body), headers)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Empty(t, first.Body.String())

	headers[HeaderEventID] = "retry-with-new-id"
	second := f.post("/webhook/app/uninstalled", body, sign(body), headers)
	assert.Equal(t, http.StatusOK, second.Code)

	ctx := context.Background()
	_, err := f.sessions.Load(ctx, "s1")
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, err = f.sessions.Load(ctx, "s2")
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, err = f.sessions.Load(ctx, "s3")
	assert.NoError(t, err)

	s, err := f.shops.FindByDomain(ctx, "foo.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, shop.StatusUninstalled, s.Status)
	assert.Empty(t, s.AccessToken)
}

func TestWebhook_ShopFromPayloadWhenHeaderMissing(t *testing.T) {
	f := newFixture(t)
	f.seedShop(t, "foo.myshopify.com", "s1")
	body := []byte(`{"shop_id":1,"shop_domain":"foo.myshopify.com"}`)

	rec := f.post("/webhook/shop/redact", body, sign(body), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := f.shops.FindByDomain(context.Background(), "foo.myshopify.com")
	assert.ErrorIs(t, err, shop.ErrNotFound)
	assert.Equal(t, 0, f.sessions.Len())
}

func TestWebhook_CustomersDataRequestIsAudited(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"shop_domain":"foo.myshopify.com","customer":{"id":7,"email":"jane@example.com"},"orders_requested":[1,2],"data_request":{"id":9}}`)

	rec := f.post("/webhook/customers/data_request", body, sign(body), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionCustomerDataRequested, entries[0].Action)
	assert.Equal(t, "foo.myshopify.com", entries[0].ShopDomain)
	assert.NotContains(t, entries[0].Metadata, "email")
}

func TestWebhook_ShopUpdateRefreshesProfile(t *testing.T) {
	f := newFixture(t)
	f.seedShop(t, "foo.myshopify.com")
	body := []byte(`{"name":"Foo Store","email":"owner@foo.test","plan_name":"basic","myshopify_domain":"foo.myshopify.com"}`)

	require.Equal(t, http.StatusOK, f.post("/webhook/shop/update", body, sign(body), nil).Code)

	s, err := f.shops.FindByDomain(context.Background(), "foo.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, "Foo Store", s.Name)
	assert.Equal(t, "basic", s.Plan)
}

type failingShops struct{ *shop.MemoryRepository }

func (failingShops) MarkUninstalled(context.Context, string) error {
	return assert.AnError
}

func TestWebhook_HandlerFailureAfterVerificationIs500(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(Handler{
		Secret:   testSecret,
		Sessions: f.sessions,
		Shops:    failingShops{shop.NewMemoryRepository()},
	})
	r := chi.NewRouter()
	r.Post("/webhook/{resource}/{event}", h.ServeHTTP)
	f.router = r

	body := []byte(`{"myshopify_domain":"foo.myshopify.com"}`)
	assert.Equal(t, http.StatusInternalServerError, f.post("/webhook/app/uninstalled", body, sign(body), nil).Code)

	notJSON := []byte(`not json`)
	assert.Equal(t, http.StatusInternalServerError, f.post("/webhook/shop/update", notJSON, sign(notJSON), nil).Code)
}

func TestNormalizeTopic(t *testing.T) {
	assert.Equal(t, "app/uninstalled", NormalizeTopic("APP/uninstalled"))
	assert.Equal(t, "app/uninstalled", NormalizeTopic("app_uninstalled"))
	assert.Equal(t, "customers/data_request", NormalizeTopic("customers_data_request"))
	assert.Equal(t, "customers/data_request", NormalizeTopic("customers.data_request"))
	assert.Equal(t, "/webhook/shop/redact", Path(TopicShopRedact))
}

func TestWebhook_ShopComesFromSignedPayloadNotHeader(t *testing.T) {
	f := newFixture(t)
	f.seedShop(t, "attacker.myshopify.com", "a1")
	f.seedShop(t, "victim.myshopify.com", "v1")
	body := []byte(`{"id":1,"myshopify_domain":"attacker.myshopify.com"}`)

	rec := f.post("/webhook/app/uninstalled", body, sign(body), map[string]string{HeaderShop: "victim.myshopify.com"})
	assert.Equal(t, http.StatusOK, rec.Code)

	ctx := context.Background()
	_, err := f.sessions.Load(ctx, "v1")
	assert.NoError(t, err)
	_, err = f.sessions.Load(ctx, "a1")
	assert.ErrorIs(t, err, session.ErrNotFound)

	victim, err := f.shops.FindByDomain(ctx, "victim.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, shop.StatusActive, victim.Status)
}

func TestWebhook_HeaderAloneNamesNoShop(t *testing.T) {
	f := newFixture(t)
	f.seedShop(t, "victim.myshopify.com", "v1")
	body := []byte(`{"id":1}`)

	rec := f.post("/webhook/shop/redact", body, sign(body), map[string]string{HeaderShop: "victim.myshopify.com"})
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := f.sessions.Load(context.Background(), "v1")
	assert.NoError(t, err)
	_, err = f.shops.FindByDomain(context.Background(), "victim.myshopify.com")
	assert.NoError(t, err)
}
