package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shoppulse/internal/audit"
	"shoppulse/internal/events"
	"shoppulse/internal/httpapi"
	"shoppulse/internal/metrics"
	"shoppulse/internal/session"
	"shoppulse/internal/shop"
	"shoppulse/internal/webhook"
	"shoppulse/pkg/config"
	"shoppulse/pkg/logging"
	"shoppulse/pkg/shopify"
)

// devflow drives one shop through install, callback, the gated pages and
// app/uninstalled against an in-process server with a stubbed token endpoint.
func main() {
	var (
		shopName = flag.String("shop", "devflow-store", "shop name or domain")
		secret   = flag.String("secret", "devflow-secret", "app client secret")
		verbose  = flag.Bool("v", false, "print server logs")
	)
	flag.Parse()

	shopDomain, err := shopify.NormalizeShopDomain(*shopName, shopify.DefaultShopDomainSuffix)
	if err != nil {
		fail("shop: %v", err)
	}

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"shpat_devflow_0000000000","scope":"read_products"}`))
	}))
	defer tokenSrv.Close()

	cfg := config.Config{
		AppEnv: "dev",
		Shopify: config.ShopifyConfig{
			APIKey:           "devflow-key",
			APISecret:        *secret,
			WebhookSecret:    *secret,
			Scopes:           "read_products",
			ShopDomainSuffix: shopify.DefaultShopDomainSuffix,
			AdminHost:        shopify.DefaultAdminHost,
		},
	}

	logger := zerolog.New(io.Discard)
	if *verbose {
		logger = logging.NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}, "debug")
	}

	sessions := session.NewMemoryStore()
	m := metrics.New()
	app := httptest.NewServer(httpapi.NewRouter(httpapi.Dependencies{
		Cfg: cfg,
		Log: logger,
		Sessions: &session.Manager{
			Store:      sessions,
			CookieName: "shoppulse_session",
			Secret:     []byte("devflow-cookie-secret"),
			TTL:        time.Hour,
		},
		Shops:  shop.NewMemoryRepository(),
		Audit:  audit.NewMemoryRecorder(),
		Ledger: events.NewMemoryLedger(),
		Exchanger: shopify.OAuthExchanger{
			HTTPClient: shopify.NewTokenClient(),
			APIKey:     cfg.Shopify.APIKey,
			APISecret:  cfg.Shopify.APISecret,
			Timeout:    5 * time.Second,
			TokenURL:   func(string) string { return tokenSrv.URL },
		},
		Registrar: &webhook.Registrar{Metrics: m},
		Tokens:    shopify.SessionTokenValidator{ClientID: cfg.Shopify.APIKey, Secret: *secret},
		Metrics:   m,
	}))
	defer app.Close()

	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	// 1. install
	resp := get(client, app.URL+"/install?shop="+url.QueryEscape(shopDomain))
	authorize, err := url.Parse(resp.Header.Get("Location"))
	if err != nil || resp.StatusCode != http.StatusFound {
		fail("install: status=%d location=%q", resp.StatusCode, resp.Header.Get("Location"))
	}
	resp.Body.Close()
	state := authorize.Query().Get("state")
	step("install", "%d -> %s", resp.StatusCode, authorize.Host+authorize.Path)

	// 2. callback, signed the way the platform signs it
	params := map[string]string{
		"code":      "devflow-code",
		"shop":      shopDomain,
		"state":     state,
		"timestamp": fmt.Sprint(time.Now().Unix()),
	}
	resp = get(client, app.URL+"/auth/callback?"+signQuery(params, *secret))
	resp.Body.Close()
	step("callback", "%d -> %s", resp.StatusCode, resp.Header.Get("Location"))
	if !strings.HasPrefix(resp.Header.Get("Location"), "/dashboard") {
		fail("callback did not authenticate")
	}

	// 3. gated surfaces
	resp = get(client, app.URL+"/dashboard")
	resp.Body.Close()
	step("dashboard", "%d", resp.StatusCode)
	resp = get(client, app.URL+"/api/session")
	step("api/session", "%d %s", resp.StatusCode, readAll(resp))
	resp = get(client, app.URL+"/api/auth-check")
	step("api/auth-check", "%d %s", resp.StatusCode, readAll(resp))

	// 4. uninstall revokes every session of the shop
	body, _ := json.Marshal(map[string]any{"id": 1, "myshopify_domain": shopDomain})
	req, _ := http.NewRequest(http.MethodPost, app.URL+webhook.Path(webhook.TopicAppUninstalled), bytes.NewReader(body))
	req.Header.Set(webhook.HeaderHMAC, shopify.SignHMAC([]byte(*secret), body, shopify.Base64))
	req.Header.Set(webhook.HeaderShop, shopDomain)
	resp, err = client.Do(req)
	if err != nil {
		fail("webhook: %v", err)
	}
	resp.Body.Close()
	step("app/uninstalled", "%d (sessions left: %d)", resp.StatusCode, sessions.Len())

	resp = get(client, app.URL+"/api/session")
	step("api/session", "%d %s", resp.StatusCode, readAll(resp))
	if resp.StatusCode != http.StatusUnauthorized {
		fail("session survived uninstall")
	}
	fmt.Println("ok")
}

func signQuery(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+url.QueryEscape(params[k]))
	}
	msg := strings.Join(parts, "&")
	return msg + "&hmac=" + shopify.SignHMAC([]byte(secret), []byte(msg), shopify.Hex)
}

func get(c *http.Client, u string) *http.Response {
	resp, err := c.Get(u)
	if err != nil {
		fail("GET %s: %v", u, err)
	}
	return resp
}

func readAll(resp *http.Response) string {
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return strings.TrimSpace(string(b))
}

func step(name, format string, args ...any) {
	fmt.Printf("%-16s %s\n", name, fmt.Sprintf(format, args...))
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "devflow: "+format+"\n", args...)
	os.Exit(1)
}
