package roles

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type Role string

const (
	// Governance controls fee configuration, token support, the notary
	// address, and the pause switch.
	Governance Role = "governance"
	// Finance may sweep abandoned bounties and withdraw accrued service fees.
	Finance Role = "finance"
)

var (
	ErrUnauthorized   = errors.New("roles: unauthorized")
	ErrInvalidAddress = errors.New("roles: invalid address")
)

// Authority is the role membership set for one deployment. Grant and revoke
// are themselves governance-gated; the admin passed at construction holds
// governance from the start.
type Authority struct {
	mu     sync.RWMutex
	grants map[Role]map[common.Address]struct{}
}

func NewAuthority(admin common.Address) (*Authority, error) {
	if admin == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero admin", ErrInvalidAddress)
	}
	a := &Authority{
		grants: make(map[Role]map[common.Address]struct{}),
	}
	a.grants[Governance] = map[common.Address]struct{}{admin: {}}
	return a, nil
}

func (a *Authority) Has(role Role, addr common.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.grants[role][addr]
	return ok
}

// Require returns ErrUnauthorized naming the caller and role when addr does
// not hold role.
func (a *Authority) Require(role Role, addr common.Address) error {
	if !a.Has(role, addr) {
		return fmt.Errorf("%w: %s lacks role %q", ErrUnauthorized, addr, role)
	}
	return nil
}

func (a *Authority) Grant(caller common.Address, role Role, addr common.Address) error {
	if err := a.Require(Governance, caller); err != nil {
		return err
	}
	if addr == (common.Address{}) {
		return fmt.Errorf("%w: zero address", ErrInvalidAddress)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.grants[role]
	if !ok {
		set = make(map[common.Address]struct{})
		a.grants[role] = set
	}
	set[addr] = struct{}{}
	return nil
}

func (a *Authority) Revoke(caller common.Address, role Role, addr common.Address) error {
	if err := a.Require(Governance, caller); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.grants[role], addr)
	return nil
}
