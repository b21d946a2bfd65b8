package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"sort"
	"strings"
)

// Encoding selects how a MAC is rendered on the wire.
type Encoding int

const (
	// Hex is used for the OAuth query-string hmac parameter.
	Hex Encoding = iota
	// Base64 is used for the X-Shopify-Hmac-Sha256 webhook header.
	Base64
)

// SignHMAC returns HMAC-SHA256(secret, message) in the requested encoding.
func SignHMAC(secret, message []byte, enc Encoding) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	sum := mac.Sum(nil)
	if enc == Base64 {
		return base64.StdEncoding.EncodeToString(sum)
	}
	return hex.EncodeToString(sum)
}

// VerifyHMAC reports whether provided is the MAC of message under secret.
// An empty secret or an empty MAC never verifies. The comparison is constant time.
func VerifyHMAC(secret, message []byte, provided string, enc Encoding) bool {
	provided = strings.TrimSpace(provided)
	if len(secret) == 0 || provided == "" {
		return false
	}
	if enc == Hex {
		provided = strings.ToLower(provided)
	}
	expected := SignHMAC(secret, message, enc)
	return hmac.Equal([]byte(expected), []byte(provided))
}

// QueryParam is one key=value pair exactly as it appeared in the raw query string.
type QueryParam struct {
	Key   string
	Value string
}

// ParseRawQuery splits a raw query string into pairs without percent-decoding,
// so the signed message can be rebuilt byte for byte.
func ParseRawQuery(raw string) []QueryParam {
	raw = strings.TrimPrefix(raw, "?")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "&")
	out := make([]QueryParam, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		k, v, _ := strings.Cut(p, "=")
		out = append(out, QueryParam{Key: k, Value: v})
	}
	return out
}

// CanonicalQuery drops the hmac parameter, sorts the rest by key and joins them as k=v with '&'.
func CanonicalQuery(params []QueryParam) string {
	kept := make([]QueryParam, 0, len(params))
	for _, p := range params {
		if p.Key == "hmac" {
			continue
		}
		kept = append(kept, p)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Key < kept[j].Key })

	var b strings.Builder
	for i, p := range kept {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

// QueryHMAC returns the value of the hmac parameter (empty when absent).
func QueryHMAC(params []QueryParam) string {
	for _, p := range params {
		if p.Key == "hmac" {
			return p.Value
		}
	}
	return ""
}
