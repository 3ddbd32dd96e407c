package analytics

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryStore struct {
	mu      sync.RWMutex
	events  []Event
	wallets  map[string]struct{}
	visitors map[string]struct{}
	daily    map[string]*Daily
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:  map[string]struct{}{},
		visitors: map[string]struct{}{},
		daily:    map[string]*Daily{},
	}
}

func (m *MemoryStore) Insert(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, *e)
	if e.WalletAddress != "" {
		m.wallets[e.WalletAddress] = struct{}{}
	}
	if v := visitorKey(e); e.Type == EventPageView && v != "" {
		m.visitors[dayOf(e.CreatedAt)+"|"+v] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) VisitedOn(_ context.Context, day time.Time, visitor string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.visitors[dayOf(day)+"|"+visitor]
	return ok, nil
}

func (m *MemoryStore) UpsertDaily(_ context.Context, day time.Time, delta DailyDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := dayOf(day)
	d, ok := m.daily[key]
	if !ok {
		d = &Daily{Date: key}
		m.daily[key] = d
	}
	d.apply(delta)
	return nil
}

func (m *MemoryStore) Daily(_ context.Context, limit int) ([]Daily, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Daily, 0, len(m.daily))
	for _, d := range m.daily {
		out = append(out, *d)
	}
	// YYYY-MM-DD sorts lexically
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CountEvents(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.events)), nil
}

func (m *MemoryStore) CountWallets(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.wallets)), nil
}
