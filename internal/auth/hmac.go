package auth

import "shoppulse/pkg/shopify"

// VerifyOAuthHMAC verifies Shopify's OAuth HMAC over the raw query string.
// The message is every parameter except hmac, sorted by key, joined as k=v with '&',
// using values exactly as received (no percent-decoding).
func VerifyOAuthHMAC(rawQuery, apiSecret string) bool {
	params := shopify.ParseRawQuery(rawQuery)
	given := shopify.QueryHMAC(params)
	if given == "" || apiSecret == "" {
		return false
	}
	return shopify.VerifyHMAC([]byte(apiSecret), []byte(shopify.CanonicalQuery(params)), given, shopify.Hex)
}
