package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type identityKey struct {
	platform string
	userID   string
}

type MemoryStore struct {
	mu       sync.Mutex
	links    map[identityKey]Link
	byWallet map[common.Address]identityKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links:    make(map[identityKey]Link),
		byWallet: make(map[common.Address]identityKey),
	}
}

func (s *MemoryStore) Get(_ context.Context, platform, userID string) (Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[identityKey{platform, userID}]
	if !ok {
		return Link{}, fmt.Errorf("%w: %s/%s", ErrNotFound, platform, userID)
	}
	return l, nil
}

func (s *MemoryStore) GetByWallet(_ context.Context, wallet common.Address) (Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.byWallet[wallet]
	if !ok {
		return Link{}, fmt.Errorf("%w: wallet %s", ErrNotFound, wallet)
	}
	return s.links[k], nil
}

func (s *MemoryStore) Create(_ context.Context, l Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := identityKey{l.Platform, l.UserID}
	if _, ok := s.links[k]; ok {
		return fmt.Errorf("%w: %s/%s", ErrAlreadyMinted, l.Platform, l.UserID)
	}
	if _, ok := s.byWallet[l.Wallet]; ok {
		return fmt.Errorf("%w: %s", ErrWalletBound, l.Wallet)
	}
	s.links[k] = l
	s.byWallet[l.Wallet] = k
	return nil
}

func (s *MemoryStore) Move(_ context.Context, platform, userID string, newWallet common.Address, newNonce uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := identityKey{platform, userID}
	l, ok := s.links[k]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, platform, userID)
	}
	if cur, ok := s.byWallet[newWallet]; ok && cur != k {
		return fmt.Errorf("%w: %s", ErrWalletBound, newWallet)
	}

	delete(s.byWallet, l.Wallet)
	l.Wallet = newWallet
	l.Nonce = newNonce
	s.links[k] = l
	s.byWallet[newWallet] = k
	return nil
}
