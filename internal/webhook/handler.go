package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"shoppulse/internal/api"
	"shoppulse/internal/audit"
	"shoppulse/internal/events"
	"shoppulse/internal/metrics"
	"shoppulse/internal/session"
	"shoppulse/internal/shop"
	"shoppulse/pkg/shopify"
)

const (
	HeaderHMAC    = "X-Shopify-Hmac-Sha256"
	HeaderTopic   = "X-Shopify-Topic"
	HeaderShop    = "X-Shopify-Shop-Domain"
	HeaderEventID = "X-Shopify-Webhook-Id"

	maxBodyBytes = 1 << 20
)

// Event is a verified delivery handed to a topic handler.
type Event struct {
	Topic      string
	ShopDomain string
	WebhookID  string
	Body       []byte
}

type TopicHandler func(ctx context.Context, ev Event) error

type Handler struct {
	Secret           string
	ShopDomainSuffix string

	Sessions session.Store
	Shops    shop.Store
	Audit    audit.Recorder
	Ledger   events.Ledger
	Metrics  *metrics.Metrics

	topics map[string]TopicHandler
}

func NewHandler(h Handler) *Handler {
	h.topics = map[string]TopicHandler{
		TopicAppUninstalled:       h.appUninstalled,
		TopicShopUpdate:           h.shopUpdate,
		TopicCustomersDataRequest: h.customersDataRequest,
		TopicCustomersRedact:      h.customersRedact,
		TopicShopRedact:           h.shopRedact,
	}
	return &h
}

// ServeHTTP handles POST /webhook/{resource}/{event}.
// Anything that goes wrong before the signature is verified answers 401;
// a handler failure after verification answers 500 so the platform retries.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topic := NormalizeTopic(chi.URLParam(r, "resource") + "/" + chi.URLParam(r, "event"))
	log := hlog.FromRequest(r).With().Str("topic", topic).Logger()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.reject(w, topic, &log, "unreadable body", err)
		return
	}
	if !VerifyShopifyWebhook(body, r.Header.Get(HeaderHMAC), h.Secret) {
		h.reject(w, topic, &log, "invalid webhook signature", nil)
		return
	}

	if ht := r.Header.Get(HeaderTopic); ht != "" && NormalizeTopic(ht) != topic {
		log.Warn().Str("header_topic", ht).Msg("topic header does not match route")
	}

	if !json.Valid(body) {
		h.fail(w, topic, &log, errors.New("payload is not valid json"))
		return
	}

	ev := Event{
		Topic:      topic,
		ShopDomain: h.shopDomain(body),
		WebhookID:  strings.TrimSpace(r.Header.Get(HeaderEventID)),
		Body:       body,
	}
	log = log.With().Str("shop", ev.ShopDomain).Logger()
	if hs := r.Header.Get(HeaderShop); hs != "" {
		if norm, err := shopify.NormalizeShopDomain(hs, h.ShopDomainSuffix); err != nil || norm != ev.ShopDomain {
			log.Warn().Str("header_shop", hs).Msg("shop header does not match signed payload; using payload")
		}
	}
	ctx := log.WithContext(r.Context())

	handle, known := h.topics[topic]
	if !known {
		log.Info().Msg("unhandled webhook topic acknowledged")
		h.ok(w, topic)
		return
	}

	delivery := events.Delivery{ShopDomain: ev.ShopDomain, Topic: topic, EventID: ev.WebhookID, Body: body}
	if h.Ledger != nil {
		seen, err := h.Ledger.Seen(ctx, delivery)
		if err != nil {
			log.Warn().Err(err).Msg("webhook ledger lookup failed; processing anyway")
		} else if seen {
			log.Debug().Msg("duplicate webhook delivery acknowledged")
			h.ok(w, topic)
			return
		}
	}

	if err := handle(ctx, ev); err != nil {
		h.fail(w, topic, &log, err)
		return
	}

	if h.Ledger != nil {
		if err := h.Ledger.MarkProcessed(ctx, delivery); err != nil {
			log.Warn().Err(err).Msg("webhook ledger write failed")
		}
	}
	h.ok(w, topic)
}

func (h *Handler) ok(w http.ResponseWriter, topic string) {
	h.Metrics.Webhook(topic, http.StatusOK)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) reject(w http.ResponseWriter, topic string, log *zerolog.Logger, msg string, err error) {
	log.Warn().Err(err).Msg(msg)
	h.Metrics.Webhook(topic, http.StatusUnauthorized)
	api.WriteError(w, http.StatusUnauthorized, "unauthorized", msg)
}

func (h *Handler) fail(w http.ResponseWriter, topic string, log *zerolog.Logger, err error) {
	log.Error().Err(err).Msg("webhook handler failed")
	h.Metrics.Webhook(topic, http.StatusInternalServerError)
	api.WriteError(w, http.StatusInternalServerError, "internal", "webhook processing failed")
}

// shopDomain reads the shop from the signed payload. The delivery header is
// not covered by the signature and is never used to pick the shop.
func (h *Handler) shopDomain(body []byte) string {
	var p struct {
		ShopDomain      string `json:"shop_domain"`
		MyshopifyDomain string `json:"myshopify_domain"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return ""
	}
	for _, c := range []string{p.ShopDomain, p.MyshopifyDomain} {
		if strings.TrimSpace(c) == "" {
			continue
		}
		if s, err := shopify.NormalizeShopDomain(c, h.ShopDomainSuffix); err == nil {
			return s
		}
	}
	return ""
}

func decode(ev Event, v any) error {
	if err := json.Unmarshal(ev.Body, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", ev.Topic, err)
	}
	return nil
}
