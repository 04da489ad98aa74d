package notary

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const testKeyHex = "4f3edf983ac636a65a842ce7c78d9aa706d3b113b37c2b1b4c1c5f5d8f5e2d3a"

func testDomain() Domain {
	return Domain{
		ChainID:  8453,
		Instance: common.HexToAddress("0x000000000000000000000000000000000000bEEF"),
	}
}

func TestSignAndRecoverRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	want := crypto.PubkeyToAddress(key.PublicKey)

	digest := ClaimDigest("maintainer-9", "1", "org/demo", "123", []string{"c1", "c2"})
	sig, err := SignDigest(key, digest)
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length: got %d", len(sig))
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("v not normalized: %d", sig[64])
	}

	got, err := RecoverSigner(digest, sig)
	if err != nil {
		t.Fatalf("RecoverSigner: %v", err)
	}
	if got != want {
		t.Fatalf("signer mismatch: got %s want %s", got, want)
	}
	if err := Verify(digest, sig, want); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerify_RejectsWrongSigner(t *testing.T) {
	t.Parallel()

	key, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	digest := ClaimDigest("m", "1", "org/demo", "1", []string{"c"})
	sig, err := SignDigest(key, digest)
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}

	other := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	if err := Verify(digest, sig, other); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}
}

func TestRecoverSigner_RejectsMalformed(t *testing.T) {
	t.Parallel()

	digest := ClaimDigest("m", "1", "org/demo", "1", nil)

	if _, err := RecoverSigner(digest, make([]byte, 64)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("short sig: want ErrInvalidSignature, got %v", err)
	}

	bad := make([]byte, 65)
	bad[64] = 9
	if _, err := RecoverSigner(digest, bad); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("bad v: want ErrInvalidSignature, got %v", err)
	}
}

func TestClaimDigest_BindsContributorListAndOrder(t *testing.T) {
	t.Parallel()

	base := ClaimDigest("m", "1", "org/demo", "123", []string{"c1", "c2"})

	if got := ClaimDigest("m", "1", "org/demo", "123", []string{"c2", "c1"}); got == base {
		t.Fatalf("reordered contributor list must change the digest")
	}
	if got := ClaimDigest("m", "1", "org/demo", "123", []string{"c1"}); got == base {
		t.Fatalf("shrunk contributor list must change the digest")
	}
	if got := ClaimDigest("m", "1", "org/demo", "124", []string{"c1", "c2"}); got == base {
		t.Fatalf("issue id must be bound")
	}
	if got := ClaimDigest("m", "1", "org/demo", "123", []string{"c1", "c2"}); got != base {
		t.Fatalf("digest must be deterministic")
	}
}

func TestTypedDigests_DomainSeparation(t *testing.T) {
	t.Parallel()

	d1 := testDomain()
	d2 := Domain{ChainID: d1.ChainID, Instance: common.HexToAddress("0x00000000000000000000000000000000000000cc")}
	d3 := Domain{ChainID: 1, Instance: d1.Instance}

	wallet := common.HexToAddress("0x1111111111111111111111111111111111111111")

	a := IdentityBindingDigest(d1, wallet, "1", "u9", "alice", 1)
	if b := IdentityBindingDigest(d2, wallet, "1", "u9", "alice", 1); a == b {
		t.Fatalf("instance address must separate domains")
	}
	if b := IdentityBindingDigest(d3, wallet, "1", "u9", "alice", 1); a == b {
		t.Fatalf("chain id must separate domains")
	}
	if b := IdentityBindingDigest(d1, wallet, "1", "u9", "alice", 2); a == b {
		t.Fatalf("nonce must be bound")
	}
}

func TestFeeDigests_LevelsAreDistinct(t *testing.T) {
	t.Parallel()

	d := testDomain()

	owner := OwnerFeeDigest(d, "1", "org", 10, 1000)
	repo := RepoFeeDigest(d, "1", "org", "demo", 10, 1000)
	issue := IssueFeeDigest(d, "1", "org", "demo", "123", 10, 1000)

	if owner == repo || repo == issue || owner == issue {
		t.Fatalf("fee override levels must hash distinctly")
	}
	if got := OwnerFeeDigest(d, "1", "org", 10, 1001); got == owner {
		t.Fatalf("expires must be bound")
	}
	if got := KnownUserDigest(d, "1", "org", "u9", 1000); got == owner {
		t.Fatalf("known-user attestation must not collide with fee attestations")
	}
}
