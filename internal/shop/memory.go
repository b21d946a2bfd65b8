package shop

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryRepository is the registry used when no database is configured.
type MemoryRepository struct {
	mu     sync.RWMutex
	shops  map[string]*Shop
	nextID int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{shops: make(map[string]*Shop)}
}

func (m *MemoryRepository) Upsert(_ context.Context, domain, accessToken, scope string) (*Shop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shops[domain]
	if !ok {
		m.nextID++
		s = &Shop{ID: strconv.Itoa(m.nextID), Domain: domain}
		m.shops[domain] = s
	}
	s.AccessToken = accessToken
	s.Scope = scope
	s.Status = StatusActive
	s.InstalledAt = time.Now().UTC()
	s.UninstalledAt = nil

	cp := *s
	return &cp, nil
}

func (m *MemoryRepository) FindByDomain(_ context.Context, domain string) (*Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.shops[domain]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryRepository) UpdateProfile(_ context.Context, domain string, p Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.shops[domain]; ok {
		s.Name, s.Email, s.Plan = p.Name, p.Email, p.Plan
	}
	return nil
}

func (m *MemoryRepository) MarkUninstalled(_ context.Context, domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.shops[domain]; ok {
		s.Status = StatusUninstalled
		s.AccessToken = ""
		if s.UninstalledAt == nil {
			now := time.Now().UTC()
			s.UninstalledAt = &now
		}
	}
	return nil
}

func (m *MemoryRepository) DeleteByDomain(_ context.Context, domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shops, domain)
	return nil
}

var _ Store = (*MemoryRepository)(nil)
