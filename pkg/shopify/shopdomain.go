package shopify

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
)

const (
	DefaultShopDomainSuffix = ".myshopify.com"
	DefaultAdminHost        = "admin.shopify.com"
)

var (
	ErrShopMissing     = errors.New("shop parameter is required")
	ErrShopWrongSuffix = errors.New("shop domain is not a hosted shop domain")
	ErrShopInvalid     = errors.New("shop domain contains invalid characters")
)

// NormalizeShopDomain turns user input such as "Foo", "https://foo.myshopify.com/"
// or "foo.myshopify.com" into the canonical "foo.myshopify.com".
// A bare name gets suffix appended; a dotted name with another suffix is rejected.
func NormalizeShopDomain(raw, suffix string) (string, error) {
	if suffix == "" {
		suffix = DefaultShopDomainSuffix
	}
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, ".")
	if s == "" {
		return "", ErrShopMissing
	}

	if !strings.Contains(s, ".") {
		s += suffix
	} else if !strings.HasSuffix(s, suffix) {
		return "", ErrShopWrongSuffix
	}

	name := strings.TrimSuffix(s, suffix)
	if name == "" || !validShopLabel(name) {
		return "", ErrShopInvalid
	}
	return s, nil
}

func validShopLabel(name string) bool {
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}

// IsPlatformHost reports whether host belongs to a hosted shop or the admin console.
func IsPlatformHost(host, suffix, adminHost string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	if suffix == "" {
		suffix = DefaultShopDomainSuffix
	}
	if adminHost == "" {
		adminHost = DefaultAdminHost
	}
	return isShopHost(host, suffix) || host == strings.ToLower(adminHost)
}

func isShopHost(host, suffix string) bool {
	return len(host) > len(suffix) && strings.HasSuffix(host, strings.ToLower(suffix))
}

// ShopFromReferrer recovers a shop domain from an admin-console referrer.
// It understands "{shop}.myshopify.com/...", "admin.shopify.com/store/{shop}/..."
// and a "shop" query parameter on any URL.
func ShopFromReferrer(referrer, suffix, adminHost string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(referrer))
	if err != nil || u.Host == "" {
		return "", false
	}
	if suffix == "" {
		suffix = DefaultShopDomainSuffix
	}
	if adminHost == "" {
		adminHost = DefaultAdminHost
	}

	if shop := u.Query().Get("shop"); shop != "" {
		if s, err := NormalizeShopDomain(shop, suffix); err == nil {
			return s, true
		}
	}

	host := strings.ToLower(u.Hostname())
	if !IsPlatformHost(host, suffix, adminHost) {
		return "", false
	}
	if isShopHost(host, suffix) {
		if s, err := NormalizeShopDomain(host, suffix); err == nil {
			return s, true
		}
		return "", false
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) >= 2 && segs[0] == "store" {
		if s, err := NormalizeShopDomain(segs[1], suffix); err == nil {
			return s, true
		}
	}
	return "", false
}

// DefaultHostParam builds the base64 host value the admin console would pass
// when the platform did not supply one.
func DefaultHostParam(shop string) string {
	return base64.StdEncoding.EncodeToString([]byte(shop + "/admin"))
}
