package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gitgig-io/ragnar/internal/notary"
)

// Config wires a Registry.
type Config struct {
	Store  Store
	Domain notary.Domain

	// Notary returns the currently trusted notary address.
	Notary func() common.Address
}

// Registry is the identity-link subsystem. Bindings move only through the
// signed attestation path; there is no approval or arbitrary-transfer surface.
type Registry struct {
	store    Store
	domain   notary.Domain
	notaryFn func() common.Address
}

func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Store == nil {
		return nil, errors.New("identity: nil store")
	}
	if cfg.Notary == nil {
		return nil, errors.New("identity: nil notary source")
	}
	return &Registry{
		store:    cfg.Store,
		domain:   cfg.Domain,
		notaryFn: cfg.Notary,
	}, nil
}

// Mint creates a first-time binding. The attestation covers all five fields
// and must carry nonce 1.
func (r *Registry) Mint(ctx context.Context, wallet common.Address, platform, userID, username string, nonce uint64, sig []byte) error {
	if wallet == (common.Address{}) {
		return fmt.Errorf("identity: zero wallet")
	}
	digest := notary.IdentityBindingDigest(r.domain, wallet, platform, userID, username, nonce)
	if err := notary.Verify(digest, sig, r.notaryFn()); err != nil {
		return err
	}
	if nonce != 1 {
		return fmt.Errorf("%w: mint requires nonce 1, got %d", ErrInvalidNonce, nonce)
	}

	err := r.store.Create(ctx, Link{
		Platform: platform,
		UserID:   userID,
		Username: username,
		Wallet:   wallet,
		Nonce:    1,
	})
	if err != nil {
		return err
	}
	return nil
}

// Transfer rebinds an existing identity to newWallet. The attestation's nonce
// must be exactly storedNonce+1; too low is a replay, too high a skip, and
// neither changes state.
func (r *Registry) Transfer(ctx context.Context, newWallet common.Address, platform, userID, username string, nonce uint64, sig []byte) error {
	if newWallet == (common.Address{}) {
		return fmt.Errorf("identity: zero wallet")
	}
	digest := notary.IdentityBindingDigest(r.domain, newWallet, platform, userID, username, nonce)
	if err := notary.Verify(digest, sig, r.notaryFn()); err != nil {
		return err
	}

	cur, err := r.store.Get(ctx, platform, userID)
	if err != nil {
		return err
	}
	if nonce != cur.Nonce+1 {
		return fmt.Errorf("%w: have %d, attestation carries %d", ErrInvalidNonce, cur.Nonce, nonce)
	}

	return r.store.Move(ctx, platform, userID, newWallet, nonce)
}

// Resolve returns the wallet bound to (platform, userID).
func (r *Registry) Resolve(ctx context.Context, platform, userID string) (common.Address, error) {
	l, err := r.store.Get(ctx, platform, userID)
	if err != nil {
		return common.Address{}, err
	}
	return l.Wallet, nil
}

// ReverseResolve returns the identity a wallet is bound to.
func (r *Registry) ReverseResolve(ctx context.Context, wallet common.Address) (Link, error) {
	return r.store.GetByWallet(ctx, wallet)
}

// Approve exists only to document the rejected surface: identity links are
// non-transferable outside the signed attestation path.
func (r *Registry) Approve(context.Context, common.Address, string, string) error {
	return ErrNotSupported
}
