package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStore holds states in process. States are stored encoded so callers
// never share maps with the store.
type MemoryStore struct {
	ttl     time.Duration
	nowFunc func() time.Time

	mu     sync.RWMutex
	states map[string]memoryEntry
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, nowFunc: time.Now, states: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Load(_ context.Context, id string) (*State, error) {
	s.mu.RLock()
	e, ok := s.states[id]
	s.mu.RUnlock()
	if !ok || !s.nowFunc().Before(e.expiresAt) {
		return nil, nil
	}
	var st State
	if err := json.Unmarshal(e.payload, &st); err != nil {
		return nil, fmt.Errorf("decode client state: %w", err)
	}
	return &st, nil
}

func (s *MemoryStore) Save(_ context.Context, id string, st State) error {
	st.ExpiresAt = expiry(s.nowFunc(), s.ttl)
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode client state: %w", err)
	}
	s.mu.Lock()
	s.states[id] = memoryEntry{payload: b, expiresAt: st.ExpiresAt}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.states, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Purge(_ context.Context) (int64, error) {
	now := s.nowFunc()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.states {
		if !now.Before(e.expiresAt) {
			delete(s.states, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
