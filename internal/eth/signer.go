package eth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidSigner    = errors.New("eth: invalid signer")
	ErrInvalidPayoutKey = errors.New("eth: invalid payout key")
)

// Signer signs transactions for a single from-address. LocalSigner wraps an
// in-process key; a KMS-backed implementation satisfies the same interface.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

type LocalSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	var addr common.Address
	if key != nil {
		addr = crypto.PubkeyToAddress(key.PublicKey)
	}
	return &LocalSigner{key: key, addr: addr}
}

func (s *LocalSigner) Address() common.Address { return s.addr }

func (s *LocalSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if s.key == nil || tx == nil || chainID == nil || chainID.Sign() <= 0 {
		return nil, ErrInvalidSigner
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// ParsePayoutKeys parses the comma-separated list of secp256k1 payout keys,
// each 32 bytes of hex with an optional 0x prefix. Errors carry the position
// of the bad key and never the key material itself.
func ParsePayoutKeys(list string) ([]*ecdsa.PrivateKey, error) {
	var keys []*ecdsa.PrivateKey
	for i, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, err := crypto.HexToECDSA(strings.TrimPrefix(part, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: index %d", ErrInvalidPayoutKey, i)
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: empty list", ErrInvalidPayoutKey)
	}
	return keys, nil
}
