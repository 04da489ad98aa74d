package eth

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestLocalSigner_SignedTxRecoversToKeyAddress(t *testing.T) {
	t.Parallel()

	key, err := crypto.HexToECDSA(payoutKeyHexA)
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	signer := NewLocalSigner(key)
	chainID := big.NewInt(8453)

	signed, err := signer.SignTx(types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21_000,
		To:        &bountyToken,
		Value:     big.NewInt(0),
		Data:      payoutCall,
	}), chainID)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("Sender: %v", err)
	}
	if from != signer.Address() {
		t.Fatalf("recovered %s, want %s", from, signer.Address())
	}
}

func TestLocalSigner_RejectsMissingKeyOrChain(t *testing.T) {
	t.Parallel()

	if _, err := NewLocalSigner(nil).SignTx(types.NewTx(&types.DynamicFeeTx{}), big.NewInt(1)); !errors.Is(err, ErrInvalidSigner) {
		t.Fatalf("nil key: got %v", err)
	}

	key, err := crypto.HexToECDSA(payoutKeyHexA)
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	if _, err := NewLocalSigner(key).SignTx(types.NewTx(&types.DynamicFeeTx{}), nil); !errors.Is(err, ErrInvalidSigner) {
		t.Fatalf("nil chain id: got %v", err)
	}
}

func TestParsePayoutKeys_SplitsAndTrims(t *testing.T) {
	t.Parallel()

	keys, err := ParsePayoutKeys(" 0x" + payoutKeyHexA + ", " + payoutKeyHexB + " ,")
	if err != nil {
		t.Fatalf("ParsePayoutKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("parsed %d keys, want 2", len(keys))
	}
	if a, b := crypto.PubkeyToAddress(keys[0].PublicKey), crypto.PubkeyToAddress(keys[1].PublicKey); a == b {
		t.Fatalf("both keys derive %s", a)
	}
}

func TestParsePayoutKeys_RejectsMalformedAndEmpty(t *testing.T) {
	t.Parallel()

	if _, err := ParsePayoutKeys("0x1234"); !errors.Is(err, ErrInvalidPayoutKey) {
		t.Fatalf("short key: got %v", err)
	}
	if _, err := ParsePayoutKeys(" , "); !errors.Is(err, ErrInvalidPayoutKey) {
		t.Fatalf("empty list: got %v", err)
	}
}
