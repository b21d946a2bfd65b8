package shop

import (
	"context"
	"errors"
	"time"
)

const (
	StatusActive      = "active"
	StatusUninstalled = "uninstalled"
)

var ErrNotFound = errors.New("shop not found")

type Shop struct {
	ID            string
	Domain        string
	AccessToken   string
	Scope         string
	Name          string
	Email         string
	Plan          string
	Status        string
	InstalledAt   time.Time
	UninstalledAt *time.Time
}

// Profile is the subset of shop attributes carried by the shop/update webhook.
type Profile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Plan  string `json:"plan_name"`
}

// Store is the installed-shop registry.
type Store interface {
	Upsert(ctx context.Context, domain, accessToken, scope string) (*Shop, error)
	FindByDomain(ctx context.Context, domain string) (*Shop, error)
	UpdateProfile(ctx context.Context, domain string, p Profile) error
	MarkUninstalled(ctx context.Context, domain string) error
	DeleteByDomain(ctx context.Context, domain string) error
}
