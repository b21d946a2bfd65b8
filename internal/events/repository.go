package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Delivery identifies one webhook delivery.
type Delivery struct {
	ShopDomain string
	Topic      string
	EventID    string
	Body       []byte
}

// Key returns the delivery id, falling back to a hash of the body when the header was absent.
func (d Delivery) Key() string {
	if d.EventID != "" {
		return d.EventID
	}
	return PayloadHash(d.Body)
}

func PayloadHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Ledger remembers processed webhook deliveries so retries are acknowledged without re-running side effects.
type Ledger interface {
	// Seen reports whether the delivery was already processed.
	Seen(ctx context.Context, d Delivery) (bool, error)
	// MarkProcessed records a successful delivery. Recording the same delivery twice is not an error.
	MarkProcessed(ctx context.Context, d Delivery) error
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Seen(ctx context.Context, d Delivery) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM webhook_events WHERE topic = $1 AND event_id = $2)`
	var seen bool
	err := r.db.QueryRow(ctx, q, d.Topic, d.Key()).Scan(&seen)
	return seen, err
}

func (r *Repository) MarkProcessed(ctx context.Context, d Delivery) error {
	const q = `
INSERT INTO webhook_events (shop_domain, topic, event_id, payload_hash, processed_at)
VALUES ($1, $2, $3, $4, NOW())
`
	_, err := r.db.Exec(ctx, q, d.ShopDomain, d.Topic, d.Key(), PayloadHash(d.Body))
	if isUniqueViolation(err) {
		return nil
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if ok := errors.As(err, &pgErr); ok {
		return pgErr.Code == "23505"
	}
	return false
}

type MemoryLedger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: make(map[string]struct{})}
}

func (m *MemoryLedger) Seen(_ context.Context, d Delivery) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[d.Topic+"|"+d.Key()]
	return ok, nil
}

func (m *MemoryLedger) MarkProcessed(_ context.Context, d Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[d.Topic+"|"+d.Key()] = struct{}{}
	return nil
}

var (
	_ Ledger = (*Repository)(nil)
	_ Ledger = (*MemoryLedger)(nil)
)
