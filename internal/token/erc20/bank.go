// Package erc20 settles escrow fund movement against ERC-20 tokens on an EVM
// chain. Pull issues transferFrom out of the depositor's pre-approved
// allowance; Pay issues transfer from the escrow's own balance.
package erc20

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/crypto/sha3"

	"github.com/gitgig-io/ragnar/internal/eth"
	"github.com/gitgig-io/ragnar/internal/token"
)

var (
	ErrInvalidConfig = errors.New("erc20: invalid config")
	ErrReverted      = errors.New("erc20: transfer reverted")
)

// Sender submits a transaction and waits for its receipt. *eth.Submitter
// satisfies it.
type Sender interface {
	SendAndWaitMined(ctx context.Context, req eth.TxRequest) (eth.SendResult, error)
}

// Bank is a token.Transferor backed by on-chain ERC-20 calls. The escrow
// address is both the transferFrom recipient and the transfer sender, so the
// relayer's signing keys must control it.
type Bank struct {
	sender Sender
	escrow common.Address
}

var _ token.Transferor = (*Bank)(nil)

func NewBank(sender Sender, escrowAddr common.Address) (*Bank, error) {
	if sender == nil {
		return nil, fmt.Errorf("%w: nil sender", ErrInvalidConfig)
	}
	if escrowAddr == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero escrow address", ErrInvalidConfig)
	}
	return &Bank{sender: sender, escrow: escrowAddr}, nil
}

var (
	transferSelector     = selector("transfer(address,uint256)")
	transferFromSelector = selector("transferFrom(address,address,uint256)")
)

func (b *Bank) Pull(ctx context.Context, tok, from common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	data := packCall(transferFromSelector, from.Bytes(), b.escrow.Bytes(), amount.Bytes())
	return b.submit(ctx, tok, data, "transferFrom")
}

func (b *Bank) Pay(ctx context.Context, tok, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	data := packCall(transferSelector, to.Bytes(), amount.Bytes())
	return b.submit(ctx, tok, data, "transfer")
}

func (b *Bank) submit(ctx context.Context, tok common.Address, data []byte, op string) error {
	res, err := b.sender.SendAndWaitMined(ctx, eth.TxRequest{
		To:   tok,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("erc20: %s on %s: %w", op, tok, err)
	}
	if res.Receipt == nil || res.Receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s on %s tx %s", ErrReverted, op, tok, res.TxHash)
	}
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 || amount.BitLen() > 256 {
		return fmt.Errorf("erc20: invalid amount %v", amount)
	}
	return nil
}

func selector(sig string) [4]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(sig))
	var out [4]byte
	copy(out[:], h.Sum(nil)[:4])
	return out
}

// packCall ABI-encodes a call with static 32-byte arguments only.
func packCall(sel [4]byte, words ...[]byte) []byte {
	out := make([]byte, 0, 4+32*len(words))
	out = append(out, sel[:]...)
	for _, w := range words {
		out = append(out, common.LeftPadBytes(w, 32)...)
	}
	return out
}
