package session

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("session not found")

// Session is the server-side record behind the session cookie.
type Session struct {
	ID string `json:"id"`

	ShopDomain      string    `json:"shop_domain,omitempty"`
	AccessToken     string    `json:"access_token,omitempty"`
	Authenticated   bool      `json:"authenticated"`
	AuthenticatedAt time.Time `json:"authenticated_at,omitempty"`
	Host            string    `json:"host,omitempty"`

	// Nonce is the pending OAuth state value; it is consumed by the callback.
	Nonce string `json:"nonce,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// persisted is false until the record has been written to a store.
	persisted bool
}

// IsAuthenticated requires a shop, a token and the flag together; any one alone is not enough.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.Authenticated && s.ShopDomain != "" && s.AccessToken != ""
}

// Clear drops every field except the identifier and creation time.
func (s *Session) Clear() {
	*s = Session{ID: s.ID, CreatedAt: s.CreatedAt, persisted: s.persisted}
}

// MarkAuthenticated records a completed install for shop.
func (s *Session) MarkAuthenticated(shop, accessToken, host string, at time.Time) {
	s.ShopDomain = shop
	s.AccessToken = accessToken
	s.Host = host
	s.Authenticated = true
	s.AuthenticatedAt = at.UTC()
	s.Nonce = ""
}

// IsNew reports whether the session has never been saved.
func (s *Session) IsNew() bool { return !s.persisted }
