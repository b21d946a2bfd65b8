package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"shoppulse/internal/webhook"
	"shoppulse/pkg/config"
	"shoppulse/pkg/shopify"
)

// simwebhook signs a payload the way Shopify does and posts it to a local server.
func main() {
	cfg := config.Load()

	var (
		url       = flag.String("url", "", "webhook endpoint url (defaults to http://localhost<HTTP_ADDR>/webhook/<topic>)")
		topic     = flag.String("topic", webhook.TopicAppUninstalled, "webhook topic, e.g. app/uninstalled")
		shop      = flag.String("shop", "example.myshopify.com", "X-Shopify-Shop-Domain")
		secret    = flag.String("secret", cfg.Shopify.WebhookSecret, "signing secret (defaults to SHOPIFY_WEBHOOK_SECRET)")
		payload   = flag.String("payload", "", "path to json payload file (defaults to a minimal shop payload)")
		webhookID = flag.String("id", "", "X-Shopify-Webhook-Id (random when empty)")
		tamper    = flag.Bool("tamper", false, "flip the signature to exercise rejection")
	)
	flag.Parse()

	t := webhook.NormalizeTopic(*topic)
	if *url == "" {
		addr := cfg.HTTPAddr
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		*url = "http://" + addr + webhook.Path(t)
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "missing -secret")
		os.Exit(2)
	}

	b := []byte(fmt.Sprintf(`{"id":1,"domain":%q,"myshopify_domain":%q,"shop_domain":%q}`, *shop, *shop, *shop))
	if *payload != "" {
		var err error
		if b, err = os.ReadFile(*payload); err != nil {
			fmt.Fprintf(os.Stderr, "read payload: %v\n", err)
			os.Exit(2)
		}
	}
	if *webhookID == "" {
		*webhookID = uuid.NewString()
	}

	sig := shopify.SignHMAC([]byte(*secret), b, shopify.Base64)
	if *tamper {
		flip := "A"
		if sig[0] == 'A' {
			flip = "B"
		}
		sig = flip + sig[1:]
	}

	req, err := http.NewRequest(http.MethodPost, *url, bytes.NewReader(b))
	if err != nil {
		fmt.Fprintf(os.Stderr, "new request: %v\n", err)
		os.Exit(2)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.HeaderTopic, t)
	req.Header.Set(webhook.HeaderShop, *shop)
	req.Header.Set(webhook.HeaderHMAC, sig)
	req.Header.Set(webhook.HeaderEventID, *webhookID)

	c := &http.Client{Timeout: 10 * time.Second}
	resp, err := c.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "post: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("topic=%s id=%s status=%d\n%s\n", t, *webhookID, resp.StatusCode, string(body))
}
