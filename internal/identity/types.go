package identity

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotFound      = errors.New("identity: not found")
	ErrAlreadyMinted = errors.New("identity: already minted")
	ErrInvalidNonce  = errors.New("identity: invalid nonce")
	ErrNotSupported  = errors.New("identity: operation not supported")
	ErrWalletBound   = errors.New("identity: wallet already bound")
)

// Link binds one external platform identity to a wallet. Nonce increases by
// exactly one on every successful mint or transfer.
type Link struct {
	Platform string
	UserID   string
	Username string
	Wallet   common.Address
	Nonce    uint64
}

// Store persists links with a unique reverse index: at most one active wallet
// per (platform, userID), and a wallet resolves back to at most one identity
// per platform.
type Store interface {
	Get(ctx context.Context, platform, userID string) (Link, error)
	GetByWallet(ctx context.Context, wallet common.Address) (Link, error)

	// Create inserts a first-time binding. ErrAlreadyMinted when the identity
	// is bound, ErrWalletBound when the wallet already carries a link.
	Create(ctx context.Context, l Link) error

	// Move rebinds an existing identity to a new wallet and stores the new
	// nonce. ErrNotFound when the identity has no binding.
	Move(ctx context.Context, platform, userID string, newWallet common.Address, newNonce uint64) error
}
