package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goshopify "github.com/bold-commerce/go-shopify/v4"
)

// ErrWebhookExists is returned when the subscription is already registered for the shop.
var ErrWebhookExists = errors.New("webhook already registered")

// WebhookCreator subscribes a shop to one webhook topic.
type WebhookCreator interface {
	CreateWebhook(ctx context.Context, shopDomain, accessToken, topic, address string) error
}

// AdminWebhookCreator registers subscriptions through the Admin REST API.
type AdminWebhookCreator struct {
	App        goshopify.App
	APIVersion string

	// HTTPClient is handed to the Admin API client when set.
	HTTPClient *http.Client
}

func NewAdminWebhookCreator(apiKey, apiSecret, apiVersion string) *AdminWebhookCreator {
	return &AdminWebhookCreator{
		App:        goshopify.App{ApiKey: apiKey, ApiSecret: apiSecret},
		APIVersion: apiVersion,
	}
}

func (c *AdminWebhookCreator) CreateWebhook(ctx context.Context, shopDomain, accessToken, topic, address string) error {
	topic = strings.TrimSpace(topic)
	address = strings.TrimSpace(address)
	if topic == "" || address == "" {
		return fmt.Errorf("missing topic or address")
	}

	var opts []goshopify.Option
	if c.APIVersion != "" {
		opts = append(opts, goshopify.WithVersion(c.APIVersion))
	}
	if c.HTTPClient != nil {
		opts = append(opts, goshopify.WithHTTPClient(c.HTTPClient))
	}
	client, err := goshopify.NewClient(c.App, shopDomain, accessToken, opts...)
	if err != nil {
		return fmt.Errorf("admin client: %w", err)
	}

	_, err = client.Webhook.Create(ctx, goshopify.Webhook{
		Topic:   topic,
		Address: address,
		Format:  "json",
	})
	if err != nil {
		if isAlreadyTaken(err) {
			return ErrWebhookExists
		}
		return fmt.Errorf("create webhook %s: %w", topic, err)
	}
	return nil
}

// Shopify answers 422 "address for this topic has already been taken" on re-install.
func isAlreadyTaken(err error) bool {
	var status int
	var re goshopify.ResponseError
	var rep *goshopify.ResponseError
	switch {
	case errors.As(err, &re):
		status = re.Status
	case errors.As(err, &rep):
		status = rep.Status
	default:
		return false
	}
	return status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(err.Error()), "already been taken")
}
