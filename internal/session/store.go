package session

import (
	"context"
	"time"
)

// Store persists sessions by id and keeps a per-shop index so every
// session of a shop can be revoked at once.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	// DeleteByShop removes all sessions of shop and returns how many were removed.
	// Deleting a shop with no sessions is not an error.
	DeleteByShop(ctx context.Context, shop string) (int, error)
}
