package claimpolicy

import (
	"context"
	"math/big"
	"sync"
)

type userKey struct {
	platform string
	org      string
	userID   string
}

type MemoryStore struct {
	mu     sync.Mutex
	totals map[userKey]*big.Int
	known  map[userKey]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		totals: make(map[userKey]*big.Int),
		known:  make(map[userKey]struct{}),
	}
}

func (s *MemoryStore) ClaimedTotal(_ context.Context, platform, org, userID string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.totals[userKey{platform, org, userID}]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (s *MemoryStore) AddClaimed(_ context.Context, platform, org, userID string, delta *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := userKey{platform, org, userID}
	if v, ok := s.totals[k]; ok {
		v.Add(v, delta)
		return nil
	}
	s.totals[k] = new(big.Int).Set(delta)
	return nil
}

func (s *MemoryStore) IsKnown(_ context.Context, platform, org, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.known[userKey{platform, org, userID}]
	return ok, nil
}

func (s *MemoryStore) MarkKnown(_ context.Context, platform, org, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known[userKey{platform, org, userID}] = struct{}{}
	return nil
}
