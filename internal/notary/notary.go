package notary

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// Domain constants bind every typed attestation to one deployment.
	DomainName    = "GitGig Escrow"
	DomainVersion = "1"
)

var (
	// See OpenZeppelin EIP712.sol.
	domainTypeHash  = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	domainNameHash  = crypto.Keccak256Hash([]byte(DomainName))
	domainVerHash   = crypto.Keccak256Hash([]byte(DomainVersion))

	identityBindingTypeHash = crypto.Keccak256Hash([]byte(
		"IdentityBinding(address wallet,string platformId,string platformUserId,string username,uint256 nonce)",
	))
	ownerFeeTypeHash = crypto.Keccak256Hash([]byte(
		"OwnerFee(string platformId,string owner,uint8 fee,uint256 expires)",
	))
	repoFeeTypeHash = crypto.Keccak256Hash([]byte(
		"RepoFee(string platformId,string owner,string repo,uint8 fee,uint256 expires)",
	))
	issueFeeTypeHash = crypto.Keccak256Hash([]byte(
		"IssueFee(string platformId,string owner,string repo,string issue,uint8 fee,uint256 expires)",
	))
	knownUserTypeHash = crypto.Keccak256Hash([]byte(
		"KnownUser(string platformId,string org,string platformUserId,uint256 expires)",
	))

	ErrInvalidSignature = errors.New("notary: invalid signature")
)

// Domain is the deployment a typed attestation is bound to. Signatures
// produced for one (chain id, instance) pair never verify under another.
type Domain struct {
	ChainID  uint64
	Instance common.Address
}

func (d Domain) separator() common.Hash {
	// abi.encode(bytes32,bytes32,bytes32,uint256,address)
	b := make([]byte, 0, 32*5)
	b = append(b, domainTypeHash[:]...)
	b = append(b, domainNameHash[:]...)
	b = append(b, domainVerHash[:]...)
	b = append(b, encodeUint256(d.ChainID)...)
	b = append(b, encodeAddress(d.Instance)...)
	return crypto.Keccak256Hash(b)
}

func (d Domain) digest(structHash common.Hash) common.Hash {
	sep := d.separator()
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, sep[:], structHash[:])
}

// IdentityBindingDigest is the typed digest the notary signs to authorize an
// identity mint or transfer. nonce is the value the registry will store on
// success, so a signature is usable exactly once.
func IdentityBindingDigest(d Domain, wallet common.Address, platformID, platformUserID, username string, nonce uint64) common.Hash {
	b := make([]byte, 0, 32*6)
	b = append(b, identityBindingTypeHash[:]...)
	b = append(b, encodeAddress(wallet)...)
	b = append(b, hashString(platformID)...)
	b = append(b, hashString(platformUserID)...)
	b = append(b, hashString(username)...)
	b = append(b, encodeUint256(nonce)...)
	return d.digest(crypto.Keccak256Hash(b))
}

// OwnerFeeDigest authorizes a maintainer-fee override at owner granularity.
// expires is unix seconds; the cascade enforces freshness around it.
func OwnerFeeDigest(d Domain, platformID, owner string, fee uint8, expires uint64) common.Hash {
	b := make([]byte, 0, 32*5)
	b = append(b, ownerFeeTypeHash[:]...)
	b = append(b, hashString(platformID)...)
	b = append(b, hashString(owner)...)
	b = append(b, encodeUint256(uint64(fee))...)
	b = append(b, encodeUint256(expires)...)
	return d.digest(crypto.Keccak256Hash(b))
}

// RepoFeeDigest authorizes a maintainer-fee override at (owner, repo) granularity.
func RepoFeeDigest(d Domain, platformID, owner, repo string, fee uint8, expires uint64) common.Hash {
	b := make([]byte, 0, 32*6)
	b = append(b, repoFeeTypeHash[:]...)
	b = append(b, hashString(platformID)...)
	b = append(b, hashString(owner)...)
	b = append(b, hashString(repo)...)
	b = append(b, encodeUint256(uint64(fee))...)
	b = append(b, encodeUint256(expires)...)
	return d.digest(crypto.Keccak256Hash(b))
}

// IssueFeeDigest authorizes a maintainer-fee override at issue granularity.
func IssueFeeDigest(d Domain, platformID, owner, repo, issue string, fee uint8, expires uint64) common.Hash {
	b := make([]byte, 0, 32*7)
	b = append(b, issueFeeTypeHash[:]...)
	b = append(b, hashString(platformID)...)
	b = append(b, hashString(owner)...)
	b = append(b, hashString(repo)...)
	b = append(b, hashString(issue)...)
	b = append(b, encodeUint256(uint64(fee))...)
	b = append(b, encodeUint256(expires)...)
	return d.digest(crypto.Keccak256Hash(b))
}

// KnownUserDigest authorizes marking a platform user as known to an org for
// claim-policy purposes.
func KnownUserDigest(d Domain, platformID, org, platformUserID string, expires uint64) common.Hash {
	b := make([]byte, 0, 32*5)
	b = append(b, knownUserTypeHash[:]...)
	b = append(b, hashString(platformID)...)
	b = append(b, hashString(org)...)
	b = append(b, hashString(platformUserID)...)
	b = append(b, encodeUint256(expires)...)
	return d.digest(crypto.Keccak256Hash(b))
}

// ClaimDigest is the personal-message digest the notary signs to name the
// contributors that resolved an issue.
//
// The content hash packs the five fields as keccak hashes; the contributor
// list hashes element-wise before the outer hash, so a signature fixes both
// membership and order:
//
//	content = keccak256(h(maintainer) || h(platform) || h(repo) || h(issue) || keccak256(h(c1) || h(c2) || ...))
//	digest  = keccak256("\x19Ethereum Signed Message:\n32" || content)
func ClaimDigest(maintainerUserID, platformID, repoID, issueID string, contributorUserIDs []string) common.Hash {
	elems := make([]byte, 0, 32*len(contributorUserIDs))
	for _, c := range contributorUserIDs {
		elems = append(elems, hashString(c)...)
	}
	listHash := crypto.Keccak256Hash(elems)

	b := make([]byte, 0, 32*5)
	b = append(b, hashString(maintainerUserID)...)
	b = append(b, hashString(platformID)...)
	b = append(b, hashString(repoID)...)
	b = append(b, hashString(issueID)...)
	b = append(b, listHash[:]...)
	content := crypto.Keccak256Hash(b)

	return personalDigest(content)
}

// SignDigest signs a digest and returns a 65-byte signature r(32) || s(32) || v(1),
// with v normalized to 27/28.
func SignDigest(key *ecdsa.PrivateKey, digest common.Hash) ([]byte, error) {
	if key == nil {
		return nil, errors.New("notary: nil private key")
	}
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return nil, fmt.Errorf("notary: sign digest: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("notary: unexpected signature length %d", len(sig))
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// RecoverSigner recovers the address that created sig over digest.
//
// sig must be 65 bytes with v in {0,1,27,28}.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}

	// go-ethereum expects v in {0,1}.
	s := make([]byte, 65)
	copy(s, sig)
	switch s[64] {
	case 0, 1:
		// ok
	case 27, 28:
		s[64] -= 27
	default:
		return common.Address{}, fmt.Errorf("%w: bad v %d", ErrInvalidSignature, s[64])
	}

	pub, err := crypto.SigToPub(digest[:], s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify recovers the signer of sig over digest and rejects anyone but want.
func Verify(digest common.Hash, sig []byte, want common.Address) error {
	got, err := RecoverSigner(digest, sig)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: signer %s, want %s", ErrInvalidSignature, got, want)
	}
	return nil
}

func personalDigest(content common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte("\x19Ethereum Signed Message:\n32"), content[:])
}

func hashString(s string) []byte {
	h := crypto.Keccak256Hash([]byte(s))
	return h[:]
}

func encodeUint256(v uint64) []byte {
	var out [32]byte
	binary.BigEndian.PutUint64(out[24:], v)
	return out[:]
}

func encodeAddress(a common.Address) []byte {
	var out [32]byte
	copy(out[12:], a[:])
	return out[:]
}
