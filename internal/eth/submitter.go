// Package eth puts escrow settlements on chain. The erc20 bank drives it for
// every allowance pull and payout transfer: transactions are priced from the
// latest base fee, nonces are allocated per payout key, and anything that
// fails to mine in time is resubmitted at a higher price under the same
// nonce.
package eth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrInvalidSubmitterConfig = errors.New("eth: invalid submitter config")

// Backend is the slice of the JSON-RPC surface the submitter needs.
// *ethclient.Client satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TxRequest describes one settlement call. A zero GasLimit means estimate
// and pad.
type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

// SendResult reports the mined transaction. TxHash is the hash that actually
// mined, which after replacements is not necessarily the first one sent.
type SendResult struct {
	From         common.Address
	Nonce        uint64
	TxHash       common.Hash
	Receipt      *types.Receipt
	Replacements int
}

type SubmitterConfig struct {
	ChainID            *big.Int
	GasLimitMultiplier float64
	MinTipCap          *big.Int

	ReceiptPollInterval time.Duration

	// Replacement kicks in once a sent transaction has gone ReplaceAfter
	// without a receipt, up to MaxReplacements times. Zero MaxReplacements
	// disables it.
	ReplaceAfter           time.Duration
	MaxReplacements        int
	ReplacementBumpPercent int
	MinReplacementTipBump  *big.Int
	MinReplacementFeeBump  *big.Int

	// Clock hooks for tests. Nil means real time.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (cfg *SubmitterConfig) validate() error {
	switch {
	case cfg.ChainID == nil || cfg.ChainID.Sign() <= 0:
		return fmt.Errorf("%w: chain id", ErrInvalidSubmitterConfig)
	case cfg.GasLimitMultiplier <= 0:
		return fmt.Errorf("%w: gas limit multiplier", ErrInvalidSubmitterConfig)
	case cfg.MinTipCap == nil || cfg.MinTipCap.Sign() < 0:
		return fmt.Errorf("%w: min tip cap", ErrInvalidSubmitterConfig)
	case cfg.ReceiptPollInterval <= 0:
		return fmt.Errorf("%w: receipt poll interval", ErrInvalidSubmitterConfig)
	case cfg.MaxReplacements < 0:
		return fmt.Errorf("%w: max replacements", ErrInvalidSubmitterConfig)
	}
	if cfg.MaxReplacements == 0 {
		return nil
	}
	switch {
	case cfg.ReplaceAfter <= 0:
		return fmt.Errorf("%w: replace after", ErrInvalidSubmitterConfig)
	case cfg.ReplacementBumpPercent <= 0:
		return fmt.Errorf("%w: replacement bump percent", ErrInvalidSubmitterConfig)
	case cfg.MinReplacementTipBump == nil || cfg.MinReplacementTipBump.Sign() < 0:
		return fmt.Errorf("%w: min replacement tip bump", ErrInvalidSubmitterConfig)
	case cfg.MinReplacementFeeBump == nil || cfg.MinReplacementFeeBump.Sign() < 0:
		return fmt.Errorf("%w: min replacement fee bump", ErrInvalidSubmitterConfig)
	}
	return nil
}

// Submitter signs and broadcasts transactions round-robin across the payout
// keys, then polls until one of the broadcast variants mines.
type Submitter struct {
	backend Backend
	cfg     SubmitterConfig

	signers []Signer
	nonces  map[common.Address]*NonceManager
	turn    uint32
}

func NewSubmitter(backend Backend, signers []Signer, cfg SubmitterConfig) (*Submitter, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrInvalidSubmitterConfig)
	}
	if len(signers) == 0 {
		return nil, fmt.Errorf("%w: no signers", ErrInvalidSubmitterConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}

	nonces := make(map[common.Address]*NonceManager, len(signers))
	for _, s := range signers {
		if s == nil {
			return nil, fmt.Errorf("%w: nil signer", ErrInvalidSubmitterConfig)
		}
		addr := s.Address()
		if (addr == common.Address{}) {
			return nil, fmt.Errorf("%w: signer with zero address", ErrInvalidSubmitterConfig)
		}
		if _, dup := nonces[addr]; dup {
			return nil, fmt.Errorf("%w: duplicate signer address %s", ErrInvalidSubmitterConfig, addr)
		}
		nonces[addr] = NewNonceManager(backend, addr)
	}

	return &Submitter{
		backend: backend,
		cfg:     cfg,
		signers: signers,
		nonces:  nonces,
	}, nil
}

// SendAndWaitMined signs req with the next payout key, broadcasts it, and
// blocks until it (or a fee-bumped replacement of it) mines or ctx ends.
func (sub *Submitter) SendAndWaitMined(ctx context.Context, req TxRequest) (SendResult, error) {
	signer, nonces := sub.nextSigner()
	from := signer.Address()

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	gas := req.GasLimit
	if gas == 0 {
		est, err := sub.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  from,
			To:    &req.To,
			Value: value,
			Data:  req.Data,
		})
		if err != nil {
			return SendResult{}, err
		}
		gas = padGas(est, sub.cfg.GasLimitMultiplier)
	}

	tip, fee, err := sub.price(ctx)
	if err != nil {
		return SendResult{}, err
	}

	nonce, err := nonces.Next(ctx)
	if err != nil {
		return SendResult{}, err
	}

	to := req.To
	broadcast := func(tip, fee *big.Int) (common.Hash, error) {
		signed, err := signer.SignTx(types.NewTx(&types.DynamicFeeTx{
			ChainID:   sub.cfg.ChainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: fee,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      req.Data,
		}), sub.cfg.ChainID)
		if err != nil {
			return common.Hash{}, err
		}
		if err := sub.backend.SendTransaction(ctx, signed); err != nil {
			return common.Hash{}, err
		}
		return signed.Hash(), nil
	}

	hash, err := broadcast(tip, fee)
	if err != nil {
		return SendResult{}, err
	}

	attempts := []common.Hash{hash}
	sentAt := sub.cfg.Now()

	for {
		// Any broadcast variant of the nonce may be the one that mined.
		for _, h := range attempts {
			receipt, err := sub.backend.TransactionReceipt(ctx, h)
			if err == nil {
				return SendResult{
					From:         from,
					Nonce:        nonce,
					TxHash:       h,
					Receipt:      receipt,
					Replacements: len(attempts) - 1,
				}, nil
			}
			if !errors.Is(err, ethereum.NotFound) {
				return SendResult{}, err
			}
		}

		if sub.replaceDue(len(attempts)-1, sentAt) {
			tip, fee, err = ReplacementFees(tip, fee,
				sub.cfg.ReplacementBumpPercent, sub.cfg.MinReplacementTipBump, sub.cfg.MinReplacementFeeBump)
			if err != nil {
				return SendResult{}, err
			}
			h, err := broadcast(tip, fee)
			if err != nil {
				return SendResult{}, err
			}
			attempts = append(attempts, h)
			sentAt = sub.cfg.Now()
			continue
		}

		if err := sub.cfg.Sleep(ctx, sub.cfg.ReceiptPollInterval); err != nil {
			return SendResult{}, err
		}
	}
}

func (sub *Submitter) nextSigner() (Signer, *NonceManager) {
	i := atomic.AddUint32(&sub.turn, 1)
	s := sub.signers[int(i)%len(sub.signers)]
	return s, sub.nonces[s.Address()]
}

func (sub *Submitter) price(ctx context.Context) (tip, fee *big.Int, err error) {
	suggested, err := sub.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, err
	}
	head, err := sub.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	if head.BaseFee == nil || head.BaseFee.Sign() < 0 {
		return nil, nil, errors.New("eth: latest header carries no base fee")
	}
	return InitialFees(head.BaseFee, suggested, sub.cfg.MinTipCap)
}

func (sub *Submitter) replaceDue(replacements int, sentAt time.Time) bool {
	if sub.cfg.MaxReplacements == 0 || replacements >= sub.cfg.MaxReplacements {
		return false
	}
	return sub.cfg.Now().Sub(sentAt) >= sub.cfg.ReplaceAfter
}

func padGas(est uint64, mult float64) uint64 {
	if mult <= 1 {
		return est
	}
	padded := uint64(math.Ceil(float64(est) * mult))
	if padded < est {
		// overflow; the raw estimate is the best we have.
		return est
	}
	return padded
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
