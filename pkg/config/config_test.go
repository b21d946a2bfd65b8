package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		AppEnv:   "test",
		HTTPAddr: ":0",
		LogLevel: "info",
		Shopify: ShopifyConfig{
			APIKey:                 "key",
			APISecret:              "secret",
			APIVersion:             "2025-10",
			ShopDomainSuffix:       ".myshopify.com",
			AdminHost:              "admin.shopify.com",
			TokenExchangeTimeout:   10 * time.Second,
			WebhookRegisterTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			Store:      "memory",
			CookieName: "sid",
			Secret:     "0123456789abcdef",
			TTL:        time.Hour,
		},
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_RejectsMissingSecrets(t *testing.T) {
	c := validConfig()
	c.Shopify.APISecret = ""
	assert.Error(t, c.Validate())

	c = validConfig()
	c.Session.Secret = "short"
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsBadSuffix(t *testing.T) {
	c := validConfig()
	c.Shopify.ShopDomainSuffix = "myshopify.com"
	assert.Error(t, c.Validate())
}

func TestValidate_RedisStoreNeedsAddr(t *testing.T) {
	c := validConfig()
	c.Session.Store = "redis"
	assert.Error(t, c.Validate())

	c.Redis.Addr = "localhost:6379"
	assert.NoError(t, c.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SHOPIFY_API_SECRET", "s3cret")
	t.Setenv("SHOPIFY_WEBHOOK_SECRET", "")
	t.Setenv("SHOPIFY_STRICT_OAUTH_STATE", "true")
	t.Setenv("SESSION_TTL", "bogus")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	c := Load()
	assert.Equal(t, "s3cret", c.Shopify.WebhookSecret)
	assert.True(t, c.Shopify.StrictOAuthState)
	assert.Equal(t, 24*time.Hour, c.Session.TTL)
	assert.Equal(t, 10*time.Second, c.Shopify.TokenExchangeTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins)
}
