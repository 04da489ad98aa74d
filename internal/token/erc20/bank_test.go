package erc20

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gitgig-io/ragnar/internal/eth"
)

var (
	escrowAddr = common.HexToAddress("0x00000000000000000000000000000000000000e5")
	tokenAddr  = common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")
	userAddr   = common.HexToAddress("0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1")
)

type fakeSender struct {
	req    eth.TxRequest
	res    eth.SendResult
	err    error
	called int
}

func (f *fakeSender) SendAndWaitMined(_ context.Context, req eth.TxRequest) (eth.SendResult, error) {
	f.req = req
	f.called++
	return f.res, f.err
}

func minedResult() eth.SendResult {
	return eth.SendResult{
		TxHash:  common.HexToHash("0x11"),
		Receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful},
	}
}

func TestBank_PullEncodesTransferFrom(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{res: minedResult()}
	bank, err := NewBank(sender, escrowAddr)
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}

	if err := bank.Pull(context.Background(), tokenAddr, userAddr, big.NewInt(500)); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if sender.req.To != tokenAddr {
		t.Fatalf("to: got %s want %s", sender.req.To, tokenAddr)
	}

	data := sender.req.Data
	if len(data) != 4+3*32 {
		t.Fatalf("data length: got %d want %d", len(data), 4+3*32)
	}
	if got := hex.EncodeToString(data[:4]); got != "23b872dd" {
		t.Fatalf("selector: got %s want 23b872dd", got)
	}
	if got := common.BytesToAddress(data[4:36]); got != userAddr {
		t.Fatalf("from arg: got %s want %s", got, userAddr)
	}
	if got := common.BytesToAddress(data[36:68]); got != escrowAddr {
		t.Fatalf("to arg: got %s want %s", got, escrowAddr)
	}
	if got := new(big.Int).SetBytes(data[68:100]); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("amount arg: got %v want 500", got)
	}
}

func TestBank_PayEncodesTransfer(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{res: minedResult()}
	bank, err := NewBank(sender, escrowAddr)
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}

	if err := bank.Pay(context.Background(), tokenAddr, userAddr, big.NewInt(180)); err != nil {
		t.Fatalf("Pay: %v", err)
	}

	data := sender.req.Data
	if len(data) != 4+2*32 {
		t.Fatalf("data length: got %d want %d", len(data), 4+2*32)
	}
	if got := hex.EncodeToString(data[:4]); got != "a9059cbb" {
		t.Fatalf("selector: got %s want a9059cbb", got)
	}
	if got := common.BytesToAddress(data[4:36]); got != userAddr {
		t.Fatalf("to arg: got %s want %s", got, userAddr)
	}
	if got := new(big.Int).SetBytes(data[36:68]); got.Cmp(big.NewInt(180)) != 0 {
		t.Fatalf("amount arg: got %v want 180", got)
	}
}

func TestBank_RevertedReceipt(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{res: eth.SendResult{
		TxHash:  common.HexToHash("0x22"),
		Receipt: &types.Receipt{Status: types.ReceiptStatusFailed},
	}}
	bank, err := NewBank(sender, escrowAddr)
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}

	err = bank.Pay(context.Background(), tokenAddr, userAddr, big.NewInt(1))
	if !errors.Is(err, ErrReverted) {
		t.Fatalf("err: got %v want ErrReverted", err)
	}
}

func TestBank_SenderError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("rpc down")
	sender := &fakeSender{err: wantErr}
	bank, err := NewBank(sender, escrowAddr)
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}

	if err := bank.Pull(context.Background(), tokenAddr, userAddr, big.NewInt(1)); !errors.Is(err, wantErr) {
		t.Fatalf("err: got %v want wrapped sender error", err)
	}
}

func TestBank_InvalidAmounts(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{res: minedResult()}
	bank, err := NewBank(sender, escrowAddr)
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}

	if err := bank.Pay(context.Background(), tokenAddr, userAddr, nil); err == nil {
		t.Fatal("nil amount accepted")
	}
	if err := bank.Pay(context.Background(), tokenAddr, userAddr, big.NewInt(-1)); err == nil {
		t.Fatal("negative amount accepted")
	}
	if sender.called != 0 {
		t.Fatalf("sender called %d times for invalid amounts", sender.called)
	}
}

func TestNewBank_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewBank(nil, escrowAddr); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil sender: got %v", err)
	}
	if _, err := NewBank(&fakeSender{}, common.Address{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("zero escrow: got %v", err)
	}
}
