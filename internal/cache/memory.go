package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultMaxStates = 10000

// MemoryConfig configures a MemoryStore.
type MemoryConfig struct {
	// MaxEntries bounds stored reports; zero means unbounded.
	MaxEntries int
	// MaxStates bounds pending OAuth states; zero uses defaultMaxStates.
	MaxStates int
	Now       func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is a process-local Store backed by least-recently-used caches.
// Expiry is tracked per entry against the injected clock.
type MemoryStore struct {
	now     func() time.Time
	reports *expirable.LRU[string, memoryEntry]
	states  *expirable.LRU[string, time.Time]
}

// NewMemoryStore creates a memory store.
func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	maxEntries := cfg.MaxEntries
	if maxEntries < 0 {
		maxEntries = 0
	}
	maxStates := cfg.MaxStates
	if maxStates <= 0 {
		maxStates = defaultMaxStates
	}
	return &MemoryStore{
		now:     now,
		reports: expirable.NewLRU[string, memoryEntry](maxEntries, nil, 0),
		states:  expirable.NewLRU[string, time.Time](maxStates, nil, 0),
	}
}

// Get returns a copy of the live value stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := s.reports.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(entry.expiresAt) {
		s.reports.Remove(key)
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

// Set stores a copy of value, evicting the least recently used entry when full.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.reports.Add(key, memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: s.now().Add(ttl),
	})
	return nil
}

// PutState records state until ttl elapses. The oldest pending state is
// dropped once MaxStates are outstanding.
func (s *MemoryStore) PutState(_ context.Context, state string, ttl time.Duration) error {
	s.states.Add(state, s.now().Add(ttl))
	return nil
}

// ConsumeState deletes state and reports whether it had not yet expired.
func (s *MemoryStore) ConsumeState(_ context.Context, state string) (bool, error) {
	expiry, ok := s.states.Peek(state)
	if !ok {
		return false, nil
	}
	if !s.states.Remove(state) {
		return false, nil
	}
	return s.now().Before(expiry), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.reports.Purge()
	s.states.Purge()
	return nil
}
