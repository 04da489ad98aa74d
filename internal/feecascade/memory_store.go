package feecascade

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu   sync.Mutex
	fees map[Scope]uint8
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fees: make(map[Scope]uint8),
	}
}

func (s *MemoryStore) GetFee(_ context.Context, scope Scope) (uint8, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fee, ok := s.fees[scope]
	if !ok {
		return FeeUnset, false, nil
	}
	return fee, true, nil
}

func (s *MemoryStore) SetFee(_ context.Context, scope Scope, fee uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fees[scope] = fee
	return nil
}
