package fees

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidFee rejects percentages outside [0,100].
	ErrInvalidFee = errors.New("fees: invalid fee")
)

// CustomFee is a per-depositor service-fee override. A disabled entry falls
// back to the default, whatever its stored value.
type CustomFee struct {
	Enabled bool
	Percent uint8
}

// Config seeds a Resolver. Zero values mean "no fee".
type Config struct {
	DefaultServiceFeePercent uint8
	MaintainerFeePercent     uint8
}

// Resolver computes the effective service fee for a depositor and the
// maintainer's cut of net proceeds. All percentage math floors; split dust
// stays in the ledger and is never distributed or refunded.
type Resolver struct {
	mu         sync.RWMutex
	defaultFee uint8
	maintainer uint8
	custom     map[common.Address]CustomFee
}

func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.DefaultServiceFeePercent > 100 {
		return nil, fmt.Errorf("%w: service %d", ErrInvalidFee, cfg.DefaultServiceFeePercent)
	}
	if cfg.MaintainerFeePercent > 100 {
		return nil, fmt.Errorf("%w: maintainer %d", ErrInvalidFee, cfg.MaintainerFeePercent)
	}
	return &Resolver{
		defaultFee: cfg.DefaultServiceFeePercent,
		maintainer: cfg.MaintainerFeePercent,
		custom:     make(map[common.Address]CustomFee),
	}, nil
}

// EffectiveServiceFee returns the depositor's custom override when enabled,
// else the default. Pure read; no side effects.
func (r *Resolver) EffectiveServiceFee(depositor common.Address) uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.custom[depositor]; ok && c.Enabled {
		return c.Percent
	}
	return r.defaultFee
}

// ServiceFee returns floor(amount * effective / 100) for the depositor.
func (r *Resolver) ServiceFee(depositor common.Address, amount *big.Int) *big.Int {
	return pct(amount, r.EffectiveServiceFee(depositor))
}

// MaintainerFeePercent returns the flat maintainer percentage; the fee
// cascade overrides it per owner/repo/issue upstream.
func (r *Resolver) MaintainerFeePercent() uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maintainer
}

// MaintainerFee returns floor(amount * maintainerFeePercent / 100).
func (r *Resolver) MaintainerFee(amount *big.Int) *big.Int {
	return pct(amount, r.MaintainerFeePercent())
}

func (r *Resolver) SetServiceFee(percent uint8) error {
	if percent > 100 {
		return fmt.Errorf("%w: service %d", ErrInvalidFee, percent)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultFee = percent
	return nil
}

func (r *Resolver) SetCustomServiceFee(depositor common.Address, enabled bool, percent uint8) error {
	if percent > 100 {
		return fmt.Errorf("%w: custom %d for %s", ErrInvalidFee, percent, depositor)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[depositor] = CustomFee{Enabled: enabled, Percent: percent}
	return nil
}

func (r *Resolver) SetMaintainerFee(percent uint8) error {
	if percent > 100 {
		return fmt.Errorf("%w: maintainer %d", ErrInvalidFee, percent)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maintainer = percent
	return nil
}

// Pct returns floor(amount * percent / 100) without mutating amount.
func Pct(amount *big.Int, percent uint8) *big.Int {
	return pct(amount, percent)
}

func pct(amount *big.Int, percent uint8) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(int64(percent)))
	return out.Div(out, big.NewInt(100))
}
