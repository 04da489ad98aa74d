package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInsufficientBalance = errors.New("token: insufficient balance")

// MemoryBank is an in-process Transferor with per-holder balances. It backs
// tests and the stdio deployment mode; production deployments wire a real
// settlement rail instead.
type MemoryBank struct {
	mu       sync.Mutex
	escrow   common.Address
	balances map[common.Address]map[common.Address]*big.Int // token -> holder -> amount
}

func NewMemoryBank(escrow common.Address) *MemoryBank {
	return &MemoryBank{
		escrow:   escrow,
		balances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Credit seeds a holder's balance.
func (b *MemoryBank) Credit(token, holder common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(token, holder, amount)
}

func (b *MemoryBank) Balance(token, holder common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.balances[token][holder]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (b *MemoryBank) Pull(_ context.Context, token, from common.Address, amount *big.Int) error {
	return b.move(token, from, b.escrow, amount)
}

func (b *MemoryBank) Pay(_ context.Context, token, to common.Address, amount *big.Int) error {
	return b.move(token, b.escrow, to, amount)
}

func (b *MemoryBank) move(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("token: invalid amount %v", amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	have := b.balances[token][from]
	if have == nil || have.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %v of %s, need %v", ErrInsufficientBalance, from, have, token, amount)
	}
	have.Sub(have, amount)
	b.add(token, to, amount)
	return nil
}

func (b *MemoryBank) add(token, holder common.Address, amount *big.Int) {
	holders, ok := b.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		b.balances[token] = holders
	}
	if v, ok := holders[holder]; ok {
		v.Add(v, amount)
		return
	}
	holders[holder] = new(big.Int).Set(amount)
}
