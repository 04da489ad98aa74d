package claimpolicy

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gitgig-io/ragnar/internal/notary"
)

const notaryKeyHex = "4f3edf983ac636a65a842ce7c78d9aa706d3b113b37c2b1b4c1c5f5d8f5e2d3a"

var (
	usdc   = common.HexToAddress("0x0000000000000000000000000000000000000101") // 6 decimals
	points = common.HexToAddress("0x0000000000000000000000000000000000000102")
	exotic = common.HexToAddress("0x0000000000000000000000000000000000000103")
)

func unit6(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(6), nil))
}

func unit18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type fixture struct {
	v      *CappedValidator
	key    *ecdsa.PrivateKey
	domain notary.Domain
	now    time.Time
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
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	v, err := NewCapped(CappedConfig{
		Store:        NewMemoryStore(),
		Domain:       domain,
		Notary:       func() common.Address { return notaryAddr },
		Cap:          unit18(100),
		StableTokens: map[common.Address]uint8{usdc: 6},
		PointsTokens: map[common.Address]bool{points: true},
		Now:          func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewCapped: %v", err)
	}
	return &fixture{v: v, key: key, domain: domain, now: now}
}

func req(token common.Address, amount *big.Int) Request {
	return Request{
		Platform: "1",
		Org:      "org",
		Repo:     "demo",
		Issue:    "123",
		UserID:   "u9",
		Token:    token,
		Amount:   amount,
	}
}

func TestCapped_StableUnderAndOverCap(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.v.Validate(ctx, req(usdc, unit6(60)))
	if err != nil || !ok {
		t.Fatalf("first 60: ok=%v err=%v", ok, err)
	}
	ok, err = f.v.Validate(ctx, req(usdc, unit6(40)))
	if err != nil || !ok {
		t.Fatalf("exact cap: ok=%v err=%v", ok, err)
	}
	// Cap consumed; deny without error.
	ok, err = f.v.Validate(ctx, req(usdc, unit6(1)))
	if err != nil {
		t.Fatalf("over cap err: %v", err)
	}
	if ok {
		t.Fatalf("over cap must deny")
	}
}

func TestCapped_PointsAlwaysPass(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.v.Validate(ctx, req(points, unit18(1_000_000)))
	if err != nil || !ok {
		t.Fatalf("points: ok=%v err=%v", ok, err)
	}
	// Points never consume the stable cap.
	ok, err = f.v.Validate(ctx, req(usdc, unit6(100)))
	if err != nil || !ok {
		t.Fatalf("stable after points: ok=%v err=%v", ok, err)
	}
}

func TestCapped_ExoticDeniedUnlessKnown(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.v.Validate(ctx, req(exotic, big.NewInt(1)))
	if err != nil {
		t.Fatalf("exotic err: %v", err)
	}
	if ok {
		t.Fatalf("exotic token must deny for unknown user")
	}

	expires := f.now
	sig, err := notary.SignDigest(f.key, notary.KnownUserDigest(f.domain, "1", "org", "u9", uint64(expires.Unix())))
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}
	if err := f.v.MarkKnown(ctx, "1", "org", "u9", expires, sig); err != nil {
		t.Fatalf("MarkKnown: %v", err)
	}

	ok, err = f.v.Validate(ctx, req(exotic, big.NewInt(1)))
	if err != nil || !ok {
		t.Fatalf("exotic after known: ok=%v err=%v", ok, err)
	}
	// Known users are uncapped on stables too.
	ok, err = f.v.Validate(ctx, req(usdc, unit6(10_000)))
	if err != nil || !ok {
		t.Fatalf("stable after known: ok=%v err=%v", ok, err)
	}
}

func TestMarkKnown_FreshnessAndSignature(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	stale := f.now.Add(-11 * time.Minute)
	sig, err := notary.SignDigest(f.key, notary.KnownUserDigest(f.domain, "1", "org", "u9", uint64(stale.Unix())))
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}
	if err := f.v.MarkKnown(ctx, "1", "org", "u9", stale, sig); !errors.Is(err, ErrTimeframe) {
		t.Fatalf("stale: want ErrTimeframe, got %v", err)
	}

	future := f.now.Add(11 * time.Minute)
	sig, err = notary.SignDigest(f.key, notary.KnownUserDigest(f.domain, "1", "org", "u9", uint64(future.Unix())))
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}
	if err := f.v.MarkKnown(ctx, "1", "org", "u9", future, sig); !errors.Is(err, ErrTimeframe) {
		t.Fatalf("future: want ErrTimeframe, got %v", err)
	}

	// Attestation for a different user does not authorize this one.
	expires := f.now
	sig, err = notary.SignDigest(f.key, notary.KnownUserDigest(f.domain, "1", "org", "other", uint64(expires.Unix())))
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}
	if err := f.v.MarkKnown(ctx, "1", "org", "u9", expires, sig); !errors.Is(err, notary.ErrInvalidSignature) {
		t.Fatalf("wrong user: want ErrInvalidSignature, got %v", err)
	}
}

func TestAllowAll(t *testing.T) {
	t.Parallel()

	ok, err := AllowAll{}.Validate(context.Background(), req(exotic, big.NewInt(1)))
	if err != nil || !ok {
		t.Fatalf("AllowAll: ok=%v err=%v", ok, err)
	}
}
