package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"shoppulse/internal/api"
	"shoppulse/internal/audit"
	"shoppulse/internal/metrics"
	"shoppulse/internal/session"
	"shoppulse/internal/shop"
	"shoppulse/internal/web"
	"shoppulse/internal/webhook"
	"shoppulse/pkg/config"
	"shoppulse/pkg/logging"
	"shoppulse/pkg/shopify"
)

type TokenExchanger interface {
	ExchangeCodeForToken(ctx context.Context, shopDomain, code string) (shopify.AccessToken, error)
}

type WebhookRegistrar interface {
	Register(ctx context.Context, shopDomain, accessToken string) webhook.RegistrationReport
}

type Handlers struct {
	Cfg       config.Config
	Sessions  *session.Manager
	Shops     shop.Store
	Audit     audit.Recorder
	Exchanger TokenExchanger
	Webhooks  WebhookRegistrar
	Metrics   *metrics.Metrics

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Install starts the OAuth flow: it issues a fresh nonce bound to the session
// and redirects to the shop's authorize page.
func (h Handlers) Install(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	shopDomain, err := shopify.NormalizeShopDomain(r.URL.Query().Get("shop"), h.Cfg.Shopify.ShopDomainSuffix)
	if err != nil {
		fe := shopError(err)
		log.Info().Str("code", fe.Code).Msg("install rejected")
		api.WriteError(w, http.StatusBadRequest, fe.Code, fe.Message)
		return
	}

	s := h.loadSession(r)
	nonce, err := randomHex(16)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, CodeSessionError, "could not start authorization")
		return
	}
	s.Nonce = nonce
	if err := h.Sessions.Save(r.Context(), w, s); err != nil {
		log.Error().Err(err).Msg("save session before authorize")
		api.WriteError(w, http.StatusInternalServerError, CodeSessionError, "could not start authorization")
		return
	}

	u := url.URL{
		Scheme: "https",
		Host:   shopDomain,
		Path:   "/admin/oauth/authorize",
	}
	q := u.Query()
	q.Set("client_id", h.Cfg.Shopify.APIKey)
	q.Set("scope", h.Cfg.Shopify.Scopes)
	q.Set("redirect_uri", h.redirectURI(r))
	q.Set("state", nonce)
	u.RawQuery = q.Encode()

	log.Info().Str("shop", shopDomain).Str("state", string(StateNonceIssued)).Msg("redirecting to authorize")
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// Callback completes the OAuth flow. Checks run in a fixed order and the
// first failure ends the flow on the error page.
func (h Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := h.loadSession(r)
	q := r.URL.Query()

	if !VerifyOAuthHMAC(r.URL.RawQuery, h.Cfg.Shopify.APISecret) {
		h.writeFlowError(w, r, s, flowErr(CodeHMACValidationFailed, KindSecurity, "callback signature invalid", nil))
		return
	}

	// The nonce is single-use whatever the outcome below.
	expected := s.Nonce
	s.Nonce = ""

	if perr := strings.TrimSpace(q.Get("error")); perr != "" {
		h.writeFlowError(w, r, s, flowErr(CodePlatformError, KindUpstream, "authorization was not granted",
			fmt.Errorf("platform error %q: %s", perr, q.Get("error_description"))))
		return
	}

	rawShop, code := strings.TrimSpace(q.Get("shop")), strings.TrimSpace(q.Get("code"))
	if rawShop == "" || code == "" {
		h.writeFlowError(w, r, s, flowErr(CodeMissingParameters, KindValidation, "shop and code are required", nil))
		return
	}
	shopDomain, err := shopify.NormalizeShopDomain(rawShop, h.Cfg.Shopify.ShopDomainSuffix)
	if err != nil {
		h.writeFlowError(w, r, s, shopError(err))
		return
	}

	log := hlog.FromRequest(r).With().Str("shop", shopDomain).Logger()
	ctx = log.WithContext(ctx)

	if state := q.Get("state"); expected == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1 {
		h.Metrics.StateMismatch()
		log.Warn().Bool("nonce_issued", expected != "").Bool("strict", h.Cfg.Shopify.StrictOAuthState).Msg("oauth state mismatch")
		if h.Cfg.Shopify.StrictOAuthState {
			h.writeFlowError(w, r, s, flowErr(CodeStateMismatch, KindState, "authorization state did not match", nil))
			return
		}
	}

	started := h.now()
	token, err := h.Exchanger.ExchangeCodeForToken(ctx, shopDomain, code)
	if err != nil {
		fe := classifyExchange(err)
		h.Metrics.TokenExchange(fe.Code, h.now().Sub(started))
		h.writeFlowError(w, r, s, fe)
		return
	}
	h.Metrics.TokenExchange("ok", h.now().Sub(started))
	if token.Value == "" {
		h.writeFlowError(w, r, s, flowErr(CodeNoAccessToken, KindUpstream, "no access token issued", nil))
		return
	}
	log.Info().Str("state", string(StateTokenExchanged)).Str("token", logging.Mask(token.Value)).Msg("token exchanged")

	host := strings.TrimSpace(q.Get("host"))
	if host == "" {
		host = shopify.DefaultHostParam(shopDomain)
	}

	// A new identity never inherits the pre-login session id or any of its fields.
	if err := h.Sessions.Regenerate(ctx, s); err != nil {
		log.Warn().Err(err).Msg("previous session not removed")
	}
	s.MarkAuthenticated(shopDomain, token.Value, host, h.now())
	if err := h.Sessions.Save(ctx, w, s); err != nil {
		h.writeFlowError(w, r, nil, flowErr(CodeSessionError, KindState, "session could not be saved", err))
		return
	}

	if _, err := h.Shops.Upsert(ctx, shopDomain, token.Value, token.Scope); err != nil {
		log.Error().Err(err).Msg("shop registry update failed")
	}
	if h.Audit != nil {
		if err := h.Audit.Record(ctx, audit.Entry{
			ShopDomain: shopDomain,
			Action:     audit.ActionShopInstalled,
			Actor:      "merchant",
			Metadata:   map[string]any{"scope": token.Scope},
		}); err != nil {
			log.Error().Err(err).Msg("audit write failed")
		}
	}
	if h.Webhooks != nil {
		h.Webhooks.Register(ctx, shopDomain, token.Value)
	}

	h.Metrics.OAuthOutcome("ok")
	log.Info().Str("state", string(StateAuthenticated)).Msg("shop authenticated")

	dest := url.Values{}
	dest.Set("shop", shopDomain)
	dest.Set("host", host)
	http.Redirect(w, r, "/dashboard?"+dest.Encode(), http.StatusFound)
}

// writeFlowError is the one place flow failures become responses.
// The consumed nonce is persisted so a replayed callback cannot reuse it.
func (h Handlers) writeFlowError(w http.ResponseWriter, r *http.Request, s *session.Session, fe *FlowError) {
	log := hlog.FromRequest(r)
	var ev *zerolog.Event
	if fe.Kind == KindSecurity || fe.Kind == KindUpstream {
		ev = log.Warn()
	} else {
		ev = log.Info()
	}
	ev.Err(fe.Cause).Str("code", fe.Code).Str("kind", string(fe.Kind)).Str("detail", fe.Detail).Str("state", string(StateError)).Msg("oauth flow failed")
	h.Metrics.OAuthOutcome(fe.Code)

	if s != nil && !s.IsNew() {
		if err := h.Sessions.Save(r.Context(), w, s); err != nil {
			log.Warn().Err(err).Msg("persist consumed nonce")
		}
	}

	q := url.Values{}
	q.Set("error", fe.Code)
	q.Set("error_message", web.ErrorMessage(fe.Code))
	if fe.Detail != "" {
		q.Set("error_detail", fe.Detail)
	}
	if shopDomain, err := shopify.NormalizeShopDomain(r.URL.Query().Get("shop"), h.Cfg.Shopify.ShopDomainSuffix); err == nil {
		q.Set("shop", shopDomain)
	}
	http.Redirect(w, r, "/oauth-error?"+q.Encode(), http.StatusFound)
}

// OAuthError renders the error page for a code produced by writeFlowError.
func (h Handlers) OAuthError(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("error")
	shopDomain, err := shopify.NormalizeShopDomain(r.URL.Query().Get("shop"), h.Cfg.Shopify.ShopDomainSuffix)
	if err != nil {
		shopDomain = ""
	}
	web.RenderError(w, http.StatusBadRequest, code, r.URL.Query().Get("error_detail"), shopDomain)
}

// Logout destroys the session and sends the merchant back through install when the shop is known.
func (h Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	s := h.loadSession(r)
	shopDomain := s.ShopDomain
	if err := h.Sessions.Destroy(r.Context(), w, s); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("session destroy failed")
	}
	if shopDomain == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/install?shop="+url.QueryEscape(shopDomain), http.StatusFound)
}

func (h Handlers) loadSession(r *http.Request) *session.Session {
	if s := api.SessionFromContext(r.Context()); s != nil {
		return s
	}
	s, err := h.Sessions.Load(r)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("session store unavailable; continuing anonymous")
	}
	return s
}

func (h Handlers) redirectURI(r *http.Request) string {
	if u := strings.TrimSpace(h.Cfg.Shopify.RedirectURL); u != "" {
		return u
	}
	if base := strings.TrimRight(strings.TrimSpace(h.Cfg.PublicBaseURL), "/"); base != "" {
		return base + "/auth/callback"
	}
	scheme := "https"
	if r.TLS == nil && !h.Cfg.IsProd() {
		scheme = "http"
	}
	return scheme + "://" + r.Host + "/auth/callback"
}

func randomHex(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
