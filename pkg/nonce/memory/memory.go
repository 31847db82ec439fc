package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/nonce"
)

// MemoryStore is an in-process nonce.Store. Entries live in a map guarded by
// a mutex and are swept lazily on write. Suitable for a single verifier
// process; use the redis store when several verifiers share traffic.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time // nonce -> retain until
	now     func() time.Time
	closed  bool
}

var _ nonce.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory nonce store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// NewMemoryStoreWithClock creates a store that reads the current time from now
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	s := NewMemoryStore()
	if now != nil {
		s.now = now
	}
	return s
}

// Remember implements nonce.Store
func (m *MemoryStore) Remember(ctx context.Context, value string, expiresAt time.Time) (bool, error) {
	if value == "" {
		return false, fmt.Errorf("nonce cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, nonce.ErrStoreClosed
	}

	now := m.now()
	m.sweep(now)

	if until, ok := m.entries[value]; ok && now.Before(until) {
		return false, nil
	}
	m.entries[value] = now.Add(nonce.TTL(now, expiresAt))
	return true, nil
}

// Len returns the number of retained nonces
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// sweep drops lapsed entries. Caller holds mu.
func (m *MemoryStore) sweep(now time.Time) {
	for k, until := range m.entries {
		if !now.Before(until) {
			delete(m.entries, k)
		}
	}
}

// Close implements nonce.Store
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = make(map[string]time.Time)
	return nil
}
