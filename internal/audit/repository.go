package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Actions written by the trust boundary.
const (
	ActionShopInstalled         = "shop.installed"
	ActionShopUninstalled       = "shop.uninstalled"
	ActionShopRedacted          = "shop.redacted"
	ActionCustomerDataRequested = "customers.data_request"
	ActionCustomerRedacted      = "customers.redact"
)

type Entry struct {
	ShopDomain string
	Action     string
	Actor      string
	Metadata   any
	CreatedAt  time.Time
}

// Recorder appends entries to the audit trail.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Record(ctx context.Context, e Entry) error {
	var s *string
	if e.Metadata != nil {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		str := string(b)
		s = &str
	}
	const q = `
INSERT INTO audit_logs (shop_domain, action, actor, metadata)
VALUES ($1, $2, $3, CAST($4 AS jsonb))
`
	_, err := r.db.Exec(ctx, q, e.ShopDomain, e.Action, e.Actor, s)
	return err
}

// MemoryRecorder keeps entries in memory; used without a database and in tests.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryRecorder() *MemoryRecorder { return &MemoryRecorder{} }

func (m *MemoryRecorder) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryRecorder) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

var (
	_ Recorder = (*Repository)(nil)
	_ Recorder = (*MemoryRecorder)(nil)
)
