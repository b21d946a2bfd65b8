package shopify

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenMissing      = errors.New("session token missing")
	ErrTokenMalformed    = errors.New("session token malformed")
	ErrTokenSignature    = errors.New("session token signature invalid")
	ErrTokenMissingClaim = errors.New("session token missing required claim")
	ErrTokenExpired      = errors.New("session token expired")
	ErrTokenIssuer       = errors.New("session token issuer not trusted")
	ErrTokenDestination  = errors.New("session token destination not trusted")
	ErrTokenAudience     = errors.New("session token audience mismatch")
)

type SessionTokenClaims struct {
	jwt.RegisteredClaims

	// Shopify uses custom claims; we only rely on a few.
	Dest string `json:"dest,omitempty"` // e.g. https://{shop}
	Sid  string `json:"sid,omitempty"`
}

type VerifiedSession struct {
	ShopDomain string
	Subject    string
	SessionID  string
	ExpiresAt  time.Time
}

// SessionTokenValidator checks embedded-app session tokens sent as bearer credentials.
//
// By default only the claims are checked. With VerifySignature set the HS256
// signature is verified with Secret before any claim is trusted.
type SessionTokenValidator struct {
	ClientID        string
	Secret          string
	VerifySignature bool

	ShopDomainSuffix string
	AdminHost        string

	Now func() time.Time
}

func (v SessionTokenValidator) Validate(raw string) (*VerifiedSession, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenMissing
	}

	claims := &SessionTokenClaims{}
	if v.VerifySignature {
		if v.Secret == "" {
			return nil, fmt.Errorf("%w: no secret configured", ErrTokenSignature)
		}
		parser := jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		)
		if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return []byte(v.Secret), nil
		}); err != nil {
			if errors.Is(err, jwt.ErrTokenMalformed) {
				return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrTokenSignature, err)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}

	if err := v.checkClaims(claims); err != nil {
		return nil, err
	}
	// dest must name a shop, not just any platform host.
	shop, err := NormalizeShopDomain(hostOf(claims.Dest), v.ShopDomainSuffix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenDestination, err)
	}

	return &VerifiedSession{
		ShopDomain: shop,
		Subject:    claims.Subject,
		SessionID:  claims.Sid,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

func (v SessionTokenValidator) checkClaims(c *SessionTokenClaims) error {
	switch {
	case c.Issuer == "":
		return fmt.Errorf("%w: iss", ErrTokenMissingClaim)
	case c.Dest == "":
		return fmt.Errorf("%w: dest", ErrTokenMissingClaim)
	case len(c.Audience) == 0:
		return fmt.Errorf("%w: aud", ErrTokenMissingClaim)
	case c.Subject == "":
		return fmt.Errorf("%w: sub", ErrTokenMissingClaim)
	case c.ExpiresAt == nil:
		return fmt.Errorf("%w: exp", ErrTokenMissingClaim)
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	// exp must be strictly in the future, compared in whole seconds.
	if c.ExpiresAt.Unix() <= now().Unix() {
		return ErrTokenExpired
	}

	if !v.trustedOrigin(c.Issuer) {
		return ErrTokenIssuer
	}
	if !v.trustedOrigin(c.Dest) {
		return ErrTokenDestination
	}

	if len(c.Audience) != 1 || c.Audience[0] != v.ClientID || v.ClientID == "" {
		return ErrTokenAudience
	}
	return nil
}

func (v SessionTokenValidator) trustedOrigin(raw string) bool {
	return IsPlatformHost(hostOf(raw), v.ShopDomainSuffix, v.AdminHost)
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// BearerToken extracts the credential from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(header[7:])
	return tok, tok != ""
}
