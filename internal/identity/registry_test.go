package identity

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gitgig-io/ragnar/internal/notary"
)

const notaryKeyHex = "4f3edf983ac636a65a842ce7c78d9aa706d3b113b37c2b1b4c1c5f5d8f5e2d3a"

var (
	wallet1 = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	wallet2 = common.HexToAddress("0x0000000000000000000000000000000000000b22")
	wallet3 = common.HexToAddress("0x0000000000000000000000000000000000000c33")
)

type fixture struct {
	reg    *Registry
	key    *ecdsa.PrivateKey
	domain notary.Domain
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := crypto.HexToECDSA(notaryKeyHex)
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	notaryAddr := crypto.PubkeyToAddress(key.PublicKey)
	domain := notary.Domain{
		ChainID:  8453,
		Instance: common.HexToAddress("0x000000000000000000000000000000000000bEEF"),
	}

	reg, err := NewRegistry(Config{
		Store:  NewMemoryStore(),
		Domain: domain,
		Notary: func() common.Address { return notaryAddr },
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return &fixture{reg: reg, key: key, domain: domain}
}

func (f *fixture) bindingSig(t *testing.T, wallet common.Address, platform, userID, username string, nonce uint64) []byte {
	t.Helper()
	sig, err := notary.SignDigest(f.key, notary.IdentityBindingDigest(f.domain, wallet, platform, userID, username, nonce))
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}
	return sig
}

func TestMintResolveReverseResolve(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	sig := f.bindingSig(t, wallet1, "1", "u9", "alice", 1)
	if err := f.reg.Mint(ctx, wallet1, "1", "u9", "alice", 1, sig); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	got, err := f.reg.Resolve(ctx, "1", "u9")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != wallet1 {
		t.Fatalf("Resolve: got %s want %s", got, wallet1)
	}

	link, err := f.reg.ReverseResolve(ctx, wallet1)
	if err != nil {
		t.Fatalf("ReverseResolve: %v", err)
	}
	if link.Platform != "1" || link.UserID != "u9" || link.Nonce != 1 {
		t.Fatalf("ReverseResolve: got %+v", link)
	}

	if _, err := f.reg.Resolve(ctx, "1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve missing: want ErrNotFound, got %v", err)
	}
}

func TestMint_Rejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	// Nonce other than 1.
	sig := f.bindingSig(t, wallet1, "1", "u9", "alice", 2)
	if err := f.reg.Mint(ctx, wallet1, "1", "u9", "alice", 2, sig); !errors.Is(err, ErrInvalidNonce) {
		t.Fatalf("want ErrInvalidNonce, got %v", err)
	}

	// Signature over different fields.
	sig = f.bindingSig(t, wallet1, "1", "u9", "alice", 1)
	if err := f.reg.Mint(ctx, wallet1, "1", "u9", "bob", 1, sig); !errors.Is(err, notary.ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}

	// Double mint for the same identity.
	if err := f.reg.Mint(ctx, wallet1, "1", "u9", "alice", 1, sig); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	sig2 := f.bindingSig(t, wallet2, "1", "u9", "alice", 1)
	if err := f.reg.Mint(ctx, wallet2, "1", "u9", "alice", 1, sig2); !errors.Is(err, ErrAlreadyMinted) {
		t.Fatalf("want ErrAlreadyMinted, got %v", err)
	}

	// A wallet carries at most one link.
	sig3 := f.bindingSig(t, wallet1, "1", "u10", "carol", 1)
	if err := f.reg.Mint(ctx, wallet1, "1", "u10", "carol", 1, sig3); !errors.Is(err, ErrWalletBound) {
		t.Fatalf("want ErrWalletBound, got %v", err)
	}
}

func TestTransfer_NonceSequence(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	sig := f.bindingSig(t, wallet1, "1", "u9", "alice", 1)
	if err := f.reg.Mint(ctx, wallet1, "1", "u9", "alice", 1, sig); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	// Skipped nonce.
	sig = f.bindingSig(t, wallet2, "1", "u9", "alice", 3)
	if err := f.reg.Transfer(ctx, wallet2, "1", "u9", "alice", 3, sig); !errors.Is(err, ErrInvalidNonce) {
		t.Fatalf("skipped nonce: want ErrInvalidNonce, got %v", err)
	}

	// Exact next nonce moves the binding.
	sig = f.bindingSig(t, wallet2, "1", "u9", "alice", 2)
	if err := f.reg.Transfer(ctx, wallet2, "1", "u9", "alice", 2, sig); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	got, err := f.reg.Resolve(ctx, "1", "u9")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != wallet2 {
		t.Fatalf("Resolve after transfer: got %s", got)
	}
	// Old wallet membership is revoked.
	if _, err := f.reg.ReverseResolve(ctx, wallet1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old wallet: want ErrNotFound, got %v", err)
	}

	// Replaying the consumed attestation fails: stored nonce moved on.
	if err := f.reg.Transfer(ctx, wallet2, "1", "u9", "alice", 2, sig); !errors.Is(err, ErrInvalidNonce) {
		t.Fatalf("replay: want ErrInvalidNonce, got %v", err)
	}

	// Each further step requires exactly prior+1.
	sig = f.bindingSig(t, wallet3, "1", "u9", "alice", 3)
	if err := f.reg.Transfer(ctx, wallet3, "1", "u9", "alice", 3, sig); err != nil {
		t.Fatalf("second transfer: %v", err)
	}
	link, err := f.reg.ReverseResolve(ctx, wallet3)
	if err != nil {
		t.Fatalf("ReverseResolve: %v", err)
	}
	if link.Nonce != 3 {
		t.Fatalf("nonce: got %d want 3", link.Nonce)
	}
}

func TestTransfer_NonexistentIdentity(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sig := f.bindingSig(t, wallet2, "1", "ghost", "ghost", 2)
	if err := f.reg.Transfer(context.Background(), wallet2, "1", "ghost", "ghost", 2, sig); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestApprove_NotSupported(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.reg.Approve(context.Background(), wallet1, "1", "u9"); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("want ErrNotSupported, got %v", err)
	}
}
