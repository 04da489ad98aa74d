package feecascade

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gitgig-io/ragnar/internal/notary"
)

const notaryKeyHex = "4f3edf983ac636a65a842ce7c78d9aa706d3b113b37c2b1b4c1c5f5d8f5e2d3a"

type fixture struct {
	cascade *Cascade
	key     *ecdsa.PrivateKey
	domain  notary.Domain
	now     time.Time
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

	c, err := New(Config{
		Store:  NewMemoryStore(),
		Domain: domain,
		Notary: func() common.Address { return notaryAddr },
		Now:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{cascade: c, key: key, domain: domain, now: now}
}

func (f *fixture) sign(t *testing.T, digest common.Hash) []byte {
	t.Helper()
	sig, err := notary.SignDigest(f.key, digest)
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}
	return sig
}

func TestResolve_MostSpecificFirst(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	expires := f.now

	set := func(level Level, fee uint8) {
		t.Helper()
		var err error
		switch level {
		case LevelOwner:
			sig := f.sign(t, notary.OwnerFeeDigest(f.domain, "1", "org", fee, uint64(expires.Unix())))
			err = f.cascade.SetOwnerFee(ctx, "1", "org", fee, expires, sig)
		case LevelRepo:
			sig := f.sign(t, notary.RepoFeeDigest(f.domain, "1", "org", "demo", fee, uint64(expires.Unix())))
			err = f.cascade.SetRepoFee(ctx, "1", "org", "demo", fee, expires, sig)
		case LevelIssue:
			sig := f.sign(t, notary.IssueFeeDigest(f.domain, "1", "org", "demo", "123", fee, uint64(expires.Unix())))
			err = f.cascade.SetIssueFee(ctx, "1", "org", "demo", "123", fee, expires, sig)
		}
		if err != nil {
			t.Fatalf("set %s: %v", level, err)
		}
	}

	// Nothing set: falls through everything.
	fee, ok, err := f.cascade.Resolve(ctx, "1", "org", "demo", "123")
	if err != nil || ok || fee != FeeUnset {
		t.Fatalf("empty resolve: fee=%d ok=%v err=%v", fee, ok, err)
	}

	set(LevelOwner, 5)
	fee, ok, _ = f.cascade.Resolve(ctx, "1", "org", "demo", "123")
	if !ok || fee != 5 {
		t.Fatalf("owner level: fee=%d ok=%v", fee, ok)
	}

	set(LevelRepo, 7)
	fee, ok, _ = f.cascade.Resolve(ctx, "1", "org", "demo", "123")
	if !ok || fee != 7 {
		t.Fatalf("repo level: fee=%d ok=%v", fee, ok)
	}

	set(LevelIssue, 9)
	fee, ok, _ = f.cascade.Resolve(ctx, "1", "org", "demo", "123")
	if !ok || fee != 9 {
		t.Fatalf("issue level: fee=%d ok=%v", fee, ok)
	}

	// Writing the sentinel clears the issue level; repo wins again.
	set(LevelIssue, FeeUnset)
	fee, ok, _ = f.cascade.Resolve(ctx, "1", "org", "demo", "123")
	if !ok || fee != 7 {
		t.Fatalf("after unset issue: fee=%d ok=%v", fee, ok)
	}

	// A different issue never sees issue-level overrides.
	fee, ok, _ = f.cascade.Resolve(ctx, "1", "org", "demo", "999")
	if !ok || fee != 7 {
		t.Fatalf("other issue: fee=%d ok=%v", fee, ok)
	}
}

func TestSetFee_FreshnessWindow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		expires time.Time
		wantErr error
	}{
		{"fresh", f.now.Add(5 * time.Minute), nil},
		{"just past", f.now.Add(-5 * time.Minute), nil},
		{"stale", f.now.Add(-11 * time.Minute), ErrTimeframe},
		{"too far future", f.now.Add(11 * time.Minute), ErrTimeframe},
	}
	for _, tc := range cases {
		sig := f.sign(t, notary.OwnerFeeDigest(f.domain, "1", "org", 10, uint64(tc.expires.Unix())))
		err := f.cascade.SetOwnerFee(ctx, "1", "org", 10, tc.expires, sig)
		if tc.wantErr == nil && err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: want %v, got %v", tc.name, tc.wantErr, err)
		}
	}
}

func TestSetFee_RejectsInvalidFeeAndBadSignature(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	expires := f.now

	sig := f.sign(t, notary.OwnerFeeDigest(f.domain, "1", "org", 101, uint64(expires.Unix())))
	if err := f.cascade.SetOwnerFee(ctx, "1", "org", 101, expires, sig); !errors.Is(err, ErrInvalidFee) {
		t.Fatalf("fee 101: want ErrInvalidFee, got %v", err)
	}

	// Signature over different fee does not authorize this write.
	sig = f.sign(t, notary.OwnerFeeDigest(f.domain, "1", "org", 10, uint64(expires.Unix())))
	if err := f.cascade.SetOwnerFee(ctx, "1", "org", 11, expires, sig); !errors.Is(err, notary.ErrInvalidSignature) {
		t.Fatalf("mismatched sig: want ErrInvalidSignature, got %v", err)
	}

	// Signature from a stranger is rejected.
	stranger, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	badSig, err := notary.SignDigest(stranger, notary.OwnerFeeDigest(f.domain, "1", "org", 10, uint64(expires.Unix())))
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}
	if err := f.cascade.SetOwnerFee(ctx, "1", "org", 10, expires, badSig); !errors.Is(err, notary.ErrInvalidSignature) {
		t.Fatalf("stranger sig: want ErrInvalidSignature, got %v", err)
	}
}
