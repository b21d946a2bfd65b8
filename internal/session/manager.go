package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"shoppulse/pkg/shopify"
)

// Manager binds sessions to requests through a signed cookie holding the session id.
// The cookie value is "<id>.<hex hmac of id>"; a value that fails the check is ignored.
type Manager struct {
	Store      Store
	CookieName string
	Secret     []byte
	TTL        time.Duration
	Secure     bool

	Now func() time.Time
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// New returns an unsaved anonymous session with a fresh id.
func (m *Manager) New() *Session {
	now := m.now().UTC()
	return &Session{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
}

// Load resolves the request's session. A missing, forged or unknown cookie yields a
// new anonymous session; an error is returned only when the store itself fails,
// and a new session is returned alongside it.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(m.CookieName)
	if err != nil {
		return m.New(), nil
	}
	id, ok := m.verify(c.Value)
	if !ok {
		return m.New(), nil
	}

	s, err := m.Store.Load(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		return m.New(), nil
	}
	if err != nil {
		return m.New(), err
	}
	return s, nil
}

// Save persists s and (re)issues the cookie.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	s.UpdatedAt = m.now().UTC()
	if err := m.Store.Save(ctx, s, m.TTL); err != nil {
		return err
	}
	http.SetCookie(w, m.cookie(m.sign(s.ID), int(m.TTL/time.Second)))
	return nil
}

// Regenerate clears s and moves it to a new id, deleting the old record.
// It is used when privilege changes so a pre-login id never becomes an authenticated one.
func (m *Manager) Regenerate(ctx context.Context, s *Session) error {
	old := s.ID
	s.Clear()
	s.ID = uuid.NewString()
	s.CreatedAt = m.now().UTC()
	s.persisted = false
	if old == "" {
		return nil
	}
	if err := m.Store.Delete(ctx, old); err != nil {
		return fmt.Errorf("drop previous session: %w", err)
	}
	return nil
}

// Destroy deletes s and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	http.SetCookie(w, m.cookie("", -1))
	if s == nil || s.ID == "" {
		return nil
	}
	return m.Store.Delete(ctx, s.ID)
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	// Embedded apps load inside the admin iframe, so the cookie must be SameSite=None there.
	sameSite := http.SameSiteLaxMode
	if m.Secure {
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     m.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: sameSite,
	}
}

func (m *Manager) sign(id string) string {
	return id + "." + shopify.SignHMAC(m.Secret, []byte(id), shopify.Hex)
}

func (m *Manager) verify(value string) (string, bool) {
	id, mac, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	if !shopify.VerifyHMAC(m.Secret, []byte(id), mac, shopify.Hex) {
		return "", false
	}
	return id, true
}
