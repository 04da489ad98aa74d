package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotSupported   = errors.New("token: not supported")
	ErrInvalidAddress = errors.New("token: invalid address")
	ErrSymbolTaken    = errors.New("token: symbol already registered")
)

// Info is the metadata published in creation events alongside a token address.
type Info struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// Transferor moves token units between wallets and the escrow. It is the one
// external boundary every fund-moving entry point crosses; implementations
// settle against the actual token rail.
type Transferor interface {
	// Pull moves amount of token from wallet into escrow custody. The wallet
	// must have pre-authorized the pull.
	Pull(ctx context.Context, token, from common.Address, amount *big.Int) error
	// Pay moves amount of token from escrow custody to wallet.
	Pay(ctx context.Context, token, to common.Address, amount *big.Int) error
}

// Registry is the accepted-token set. Mutation is governance-gated at the
// engine; the registry itself only validates shape.
type Registry struct {
	mu     sync.RWMutex
	byAddr map[common.Address]Info
	bySym  map[string]common.Address
}

func NewRegistry() *Registry {
	return &Registry{
		byAddr: make(map[common.Address]Info),
		bySym:  make(map[string]common.Address),
	}
}

func (r *Registry) Add(info Info) error {
	if info.Address == (common.Address{}) {
		return fmt.Errorf("%w: zero token address", ErrInvalidAddress)
	}
	if info.Symbol == "" {
		return fmt.Errorf("%w: empty symbol for %s", ErrSymbolTaken, info.Address)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.bySym[info.Symbol]; ok && prev != info.Address {
		return fmt.Errorf("%w: %q -> %s", ErrSymbolTaken, info.Symbol, prev)
	}
	r.byAddr[info.Address] = info
	r.bySym[info.Symbol] = info.Address
	return nil
}

func (r *Registry) Remove(addr common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.byAddr[addr]; ok {
		delete(r.bySym, info.Symbol)
		delete(r.byAddr, addr)
	}
}

func (r *Registry) Supported(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byAddr[addr]
	return ok
}

func (r *Registry) Lookup(addr common.Address) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byAddr[addr]
	return info, ok
}
