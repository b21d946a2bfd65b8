package webhook

import "shoppulse/pkg/shopify"

// VerifyShopifyWebhook verifies the webhook signature using the shared secret.
// Signature header is base64(HMAC_SHA256(raw body)).
func VerifyShopifyWebhook(body []byte, hmacHeader string, secret string) bool {
	return shopify.VerifyHMAC([]byte(secret), body, hmacHeader, shopify.Base64)
}
