package escrow

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gitgig-io/ragnar/internal/bountyid"
)

type positionKey struct {
	token     common.Address
	depositor common.Address
}

type memBounty struct {
	status       Status
	contributors []string
	claimed      map[string]bool
	totals       map[common.Address]*big.Int
	shares       map[common.Address]*big.Int
	positions    map[positionKey]*DepositorPosition
	tokenOrder   []common.Address
	lastPostedAt time.Time
}

type deferredKey struct {
	wallet common.Address
	token  common.Address
}

type MemoryStore struct {
	mu       sync.Mutex
	bounties map[[32]byte]*memBounty
	feePools map[common.Address]*big.Int
	deferred map[deferredKey]*big.Int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bounties: make(map[[32]byte]*memBounty),
		feePools: make(map[common.Address]*big.Int),
		deferred: make(map[deferredKey]*big.Int),
	}
}

func (s *MemoryStore) bounty(key bountyid.Key) *memBounty {
	id := key.ID()
	b, ok := s.bounties[id]
	if !ok {
		b = &memBounty{
			status:    StatusOpen,
			claimed:   make(map[string]bool),
			totals:    make(map[common.Address]*big.Int),
			shares:    make(map[common.Address]*big.Int),
			positions: make(map[positionKey]*DepositorPosition),
		}
		s.bounties[id] = b
	}
	return b
}

func (s *MemoryStore) Get(_ context.Context, key bountyid.Key) (Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[key.ID()]
	if !ok {
		return Bounty{Key: key, Status: StatusOpen}, nil
	}

	out := Bounty{
		Key:          key,
		Status:       b.status,
		Contributors: append([]string(nil), b.contributors...),
		LastPostedAt: b.lastPostedAt,
	}
	for _, tok := range b.tokenOrder {
		total := b.totals[tok]
		if total == nil || total.Sign() == 0 {
			continue
		}
		share := b.shares[tok]
		if share == nil {
			share = new(big.Int)
		}
		out.Balances = append(out.Balances, TokenBalance{
			Token: tok,
			Total: new(big.Int).Set(total),
			Share: new(big.Int).Set(share),
		})
	}
	return out, nil
}

func (s *MemoryStore) DepositorPosition(_ context.Context, key bountyid.Key, token, depositor common.Address) (DepositorPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[key.ID()]
	if !ok {
		return DepositorPosition{}, fmt.Errorf("%w: %s", ErrNoBounty, key)
	}
	p, ok := b.positions[positionKey{token, depositor}]
	if !ok || p.Amount.Sign() == 0 {
		return DepositorPosition{}, fmt.Errorf("%w: %s has no position in %s on %s", ErrNoBounty, depositor, token, key)
	}
	return DepositorPosition{Amount: new(big.Int).Set(p.Amount), PostedAt: p.PostedAt}, nil
}

func (s *MemoryStore) HasClaimed(_ context.Context, key bountyid.Key, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[key.ID()]
	if !ok {
		return false, nil
	}
	return b.claimed[userID], nil
}

func (s *MemoryStore) CreditDeposit(_ context.Context, key bountyid.Key, token, depositor common.Address, net, fee *big.Int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.bounty(key)
	if b.status != StatusOpen {
		return fmt.Errorf("%w: %s", ErrIssueClosed, key)
	}

	s.addTotal(b, token, net)
	pk := positionKey{token, depositor}
	if p, ok := b.positions[pk]; ok {
		p.Amount.Add(p.Amount, net)
		p.PostedAt = at
	} else {
		b.positions[pk] = &DepositorPosition{Amount: new(big.Int).Set(net), PostedAt: at}
	}
	b.lastPostedAt = at

	if fee.Sign() > 0 {
		if pool, ok := s.feePools[token]; ok {
			pool.Add(pool, fee)
		} else {
			s.feePools[token] = new(big.Int).Set(fee)
		}
	}
	return nil
}

func (s *MemoryStore) UndoDeposit(_ context.Context, key bountyid.Key, token, depositor common.Address, net, fee *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[key.ID()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoBounty, key)
	}
	if err := s.subTotal(b, token, net); err != nil {
		return err
	}
	p, ok := b.positions[positionKey{token, depositor}]
	if !ok || p.Amount.Cmp(net) < 0 {
		return fmt.Errorf("%w: undo exceeds position", ErrInsufficientFunds)
	}
	p.Amount.Sub(p.Amount, net)

	if fee.Sign() > 0 {
		pool := s.feePools[token]
		if pool == nil || pool.Cmp(fee) < 0 {
			return fmt.Errorf("%w: undo exceeds fee pool", ErrInsufficientFunds)
		}
		pool.Sub(pool, fee)
	}
	return nil
}

func (s *MemoryStore) Close(_ context.Context, key bountyid.Key, contributors []string, cuts, shares []TokenAmount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[key.ID()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoBounty, key)
	}
	if b.status != StatusOpen {
		return fmt.Errorf("%w: %s", ErrIssueClosed, key)
	}

	// Validate debits before mutating so the close is all-or-nothing.
	for _, c := range cuts {
		total := b.totals[c.Token]
		if total == nil || total.Cmp(c.Amount) < 0 {
			return fmt.Errorf("%w: cut %v of %s exceeds total", ErrInsufficientFunds, c.Amount, c.Token)
		}
	}

	for _, c := range cuts {
		b.totals[c.Token].Sub(b.totals[c.Token], c.Amount)
	}
	for _, sh := range shares {
		b.shares[sh.Token] = new(big.Int).Set(sh.Amount)
	}
	b.status = StatusClosed
	b.contributors = append([]string(nil), contributors...)
	return nil
}

func (s *MemoryStore) SettleContributor(_ context.Context, key bountyid.Key, userID string, payouts []TokenAmount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[key.ID()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoBounty, key)
	}
	if b.claimed[userID] {
		return fmt.Errorf("%w: %s on %s", ErrAlreadyClaimed, userID, key)
	}
	for _, p := range payouts {
		total := b.totals[p.Token]
		if total == nil || total.Cmp(p.Amount) < 0 {
			return fmt.Errorf("%w: payout %v of %s exceeds total", ErrInsufficientFunds, p.Amount, p.Token)
		}
	}

	for _, p := range payouts {
		b.totals[p.Token].Sub(b.totals[p.Token], p.Amount)
	}
	b.claimed[userID] = true
	return nil
}

func (s *MemoryStore) DebitDepositor(_ context.Context, key bountyid.Key, token, depositor common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[key.ID()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBounty, key)
	}
	p, ok := b.positions[positionKey{token, depositor}]
	if !ok || p.Amount.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s has no position in %s on %s", ErrNoBounty, depositor, token, key)
	}
	if err := s.subTotal(b, token, p.Amount); err != nil {
		return nil, err
	}
	out := new(big.Int).Set(p.Amount)
	p.Amount.SetInt64(0)
	return out, nil
}

func (s *MemoryStore) SweepTokens(_ context.Context, key bountyid.Key, tokens []common.Address) ([]TokenAmount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[key.ID()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBounty, key)
	}

	var out []TokenAmount
	for _, tok := range tokens {
		total := b.totals[tok]
		if total == nil || total.Sign() == 0 {
			continue
		}
		out = append(out, TokenAmount{Token: tok, Amount: new(big.Int).Set(total)})
		total.SetInt64(0)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: nothing to sweep on %s", ErrNoBounty, key)
	}
	return out, nil
}

func (s *MemoryStore) FeeAccrued(_ context.Context, token common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pool, ok := s.feePools[token]; ok {
		return new(big.Int).Set(pool), nil
	}
	return new(big.Int), nil
}

func (s *MemoryStore) DrainFees(_ context.Context, token common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, ok := s.feePools[token]
	if !ok || pool.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNothingAccrued, token)
	}
	out := new(big.Int).Set(pool)
	pool.SetInt64(0)
	return out, nil
}

func (s *MemoryStore) CreditDeferred(_ context.Context, wallet, token common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dk := deferredKey{wallet, token}
	if parked, ok := s.deferred[dk]; ok {
		parked.Add(parked, amount)
	} else {
		s.deferred[dk] = new(big.Int).Set(amount)
	}
	return nil
}

func (s *MemoryStore) DeferredPayout(_ context.Context, wallet, token common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if parked, ok := s.deferred[deferredKey{wallet, token}]; ok {
		return new(big.Int).Set(parked), nil
	}
	return new(big.Int), nil
}

func (s *MemoryStore) DrainDeferred(_ context.Context, wallet, token common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parked, ok := s.deferred[deferredKey{wallet, token}]
	if !ok || parked.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrNothingDeferred, wallet, token)
	}
	out := new(big.Int).Set(parked)
	parked.SetInt64(0)
	return out, nil
}

// addTotal grows a token total. tokenOrder keeps first-seen order; Get skips
// entries drained to zero, which keeps the token-list invariant.
func (s *MemoryStore) addTotal(b *memBounty, token common.Address, amount *big.Int) {
	if total, ok := b.totals[token]; ok {
		total.Add(total, amount)
		return
	}
	b.totals[token] = new(big.Int).Set(amount)
	b.tokenOrder = append(b.tokenOrder, token)
}

func (s *MemoryStore) subTotal(b *memBounty, token common.Address, amount *big.Int) error {
	total := b.totals[token]
	if total == nil || total.Cmp(amount) < 0 {
		return fmt.Errorf("%w: debit %v of %s exceeds total", ErrInsufficientFunds, amount, token)
	}
	total.Sub(total, amount)
	return nil
}
