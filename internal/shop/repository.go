package shop

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shoppulse/pkg/db"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const shopColumns = `id, shop_domain, access_token, COALESCE(scope,''), COALESCE(name,''), COALESCE(email,''),
  COALESCE(plan,''), status, installed_at, uninstalled_at`

func scanShop(row pgx.Row) (*Shop, error) {
	s := &Shop{}
	if err := row.Scan(
		&s.ID, &s.Domain, &s.AccessToken, &s.Scope, &s.Name, &s.Email,
		&s.Plan, &s.Status, &s.InstalledAt, &s.UninstalledAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// Upsert records a completed install; a re-install reactivates the row and replaces the token.
func (r *Repository) Upsert(ctx context.Context, domain, accessToken, scope string) (*Shop, error) {
	q := `
INSERT INTO shops (shop_domain, access_token, scope, status)
VALUES ($1, $2, $3, 'active')
ON CONFLICT (shop_domain) DO UPDATE SET
  access_token = EXCLUDED.access_token,
  scope = EXCLUDED.scope,
  status = 'active',
  installed_at = NOW(),
  uninstalled_at = NULL
RETURNING ` + shopColumns
	s, err := scanShop(r.db.QueryRow(ctx, q, domain, accessToken, scope))
	if err != nil {
		return nil, fmt.Errorf("upsert shop: %w", err)
	}
	return s, nil
}

func (r *Repository) FindByDomain(ctx context.Context, domain string) (*Shop, error) {
	q := `SELECT ` + shopColumns + ` FROM shops WHERE shop_domain = $1`
	return scanShop(r.db.QueryRow(ctx, q, domain))
}

func (r *Repository) UpdateProfile(ctx context.Context, domain string, p Profile) error {
	const q = `
UPDATE shops SET name = NULLIF($2,''), email = NULLIF($3,''), plan = NULLIF($4,''), updated_at = NOW()
WHERE shop_domain = $1
`
	_, err := r.db.Exec(ctx, q, domain, p.Name, p.Email, p.Plan)
	return err
}

// MarkUninstalled revokes the stored token. Unknown shops are ignored.
func (r *Repository) MarkUninstalled(ctx context.Context, domain string) error {
	const q = `
UPDATE shops SET status = 'uninstalled', access_token = '', uninstalled_at = COALESCE(uninstalled_at, NOW()), updated_at = NOW()
WHERE shop_domain = $1
`
	_, err := r.db.Exec(ctx, q, domain)
	return err
}

// DeleteByDomain erases the shop row and its webhook delivery history. Audit rows are retained.
func (r *Repository) DeleteByDomain(ctx context.Context, domain string) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM webhook_events WHERE shop_domain = $1`, domain); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM shops WHERE shop_domain = $1`, domain)
		return err
	})
}

var _ Store = (*Repository)(nil)
