package credential

import (
	"context"
	"maps"
	"sort"
	"sync"
)

// MemoryStore backs the demo mode used when no database is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	byHash map[string]Credential
	order  []string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: map[string]Credential{}}
}

func (m *MemoryStore) Create(_ context.Context, c *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byHash[c.Hash]; ok {
		return ErrDuplicate
	}
	m.byHash[c.Hash] = detach(*c)
	m.order = append(m.order, c.Hash)
	return nil
}

func (m *MemoryStore) ListByStudent(_ context.Context, wallet string) ([]Credential, error) {
	return m.filter(func(c Credential) bool { return c.StudentWallet == wallet }), nil
}

func (m *MemoryStore) ListByIssuer(_ context.Context, wallet string) ([]Credential, error) {
	return m.filter(func(c Credential) bool { return c.IssuerWallet == wallet }), nil
}

func (m *MemoryStore) GetByHash(_ context.Context, hash string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	c = detach(c)
	return &c, nil
}

func (m *MemoryStore) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.order)), nil
}

// filter returns matches newest first.
func (m *MemoryStore) filter(keep func(Credential) bool) []Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Credential{}
	for i := len(m.order) - 1; i >= 0; i-- {
		if c := m.byHash[m.order[i]]; keep(c) {
			out = append(out, detach(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// detach gives c its own top-level metadata map so callers and the store
// never share one.
func detach(c Credential) Credential {
	c.Metadata = maps.Clone(c.Metadata)
	return c
}
