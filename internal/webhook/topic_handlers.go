package webhook

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"shoppulse/internal/audit"
	"shoppulse/internal/shop"
	"shoppulse/pkg/logging"
)

const actorPlatform = "shopify"

type customer struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type customerPayload struct {
	ShopID          int64    `json:"shop_id"`
	ShopDomain      string   `json:"shop_domain"`
	Customer        customer `json:"customer"`
	OrdersRequested []int64  `json:"orders_requested"`
	OrdersToRedact  []int64  `json:"orders_to_redact"`
	DataRequest     struct {
		ID int64 `json:"id"`
	} `json:"data_request"`
}

// appUninstalled revokes every session of the shop and its stored token.
// Running it twice leaves the same state.
func (h *Handler) appUninstalled(ctx context.Context, ev Event) error {
	log := zerolog.Ctx(ctx)
	if ev.ShopDomain == "" {
		log.Warn().Msg("app/uninstalled without a shop domain; nothing to revoke")
		return nil
	}

	n, err := h.Sessions.DeleteByShop(ctx, ev.ShopDomain)
	if err != nil {
		return err
	}
	if err := h.Shops.MarkUninstalled(ctx, ev.ShopDomain); err != nil {
		return err
	}
	log.Info().Int("sessions_revoked", n).Msg("app uninstalled")
	return h.record(ctx, ev.ShopDomain, audit.ActionShopUninstalled, map[string]any{"sessions_revoked": n})
}

func (h *Handler) shopUpdate(ctx context.Context, ev Event) error {
	if ev.ShopDomain == "" {
		return nil
	}
	var p shop.Profile
	if err := decode(ev, &p); err != nil {
		return err
	}
	return h.Shops.UpdateProfile(ctx, ev.ShopDomain, p)
}

// customersDataRequest records the request; the merchant fulfils it from the audit trail.
func (h *Handler) customersDataRequest(ctx context.Context, ev Event) error {
	var p customerPayload
	if err := decode(ev, &p); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().
		Str("customer_email", logging.MaskEmail(p.Customer.Email)).
		Int("orders_requested", len(p.OrdersRequested)).
		Msg("customer data request received")

	return h.record(ctx, ev.ShopDomain, audit.ActionCustomerDataRequested, map[string]any{
		"customer_id":      p.Customer.ID,
		"data_request_id":  p.DataRequest.ID,
		"orders_requested": p.OrdersRequested,
	})
}

// customersRedact records the redaction; this app stores no customer data of its own.
func (h *Handler) customersRedact(ctx context.Context, ev Event) error {
	var p customerPayload
	if err := decode(ev, &p); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().
		Str("customer_email", logging.MaskEmail(p.Customer.Email)).
		Int("orders_to_redact", len(p.OrdersToRedact)).
		Msg("customer redaction received")

	return h.record(ctx, ev.ShopDomain, audit.ActionCustomerRedacted, map[string]any{
		"customer_id":      p.Customer.ID,
		"orders_to_redact": p.OrdersToRedact,
	})
}

// shopRedact erases everything held for the shop, 48 hours after uninstall.
func (h *Handler) shopRedact(ctx context.Context, ev Event) error {
	if ev.ShopDomain == "" {
		zerolog.Ctx(ctx).Warn().Msg("shop/redact without a shop domain")
		return nil
	}
	if _, err := h.Sessions.DeleteByShop(ctx, ev.ShopDomain); err != nil {
		return err
	}
	if err := h.Shops.DeleteByDomain(ctx, ev.ShopDomain); err != nil && !errors.Is(err, shop.ErrNotFound) {
		return err
	}
	return h.record(ctx, ev.ShopDomain, audit.ActionShopRedacted, nil)
}

func (h *Handler) record(ctx context.Context, shopDomain, action string, metadata any) error {
	if h.Audit == nil {
		return nil
	}
	return h.Audit.Record(ctx, audit.Entry{
		ShopDomain: shopDomain,
		Action:     action,
		Actor:      actorPlatform,
		Metadata:   metadata,
	})
}
