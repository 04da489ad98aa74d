package escrow

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gitgig-io/ragnar/internal/bountyid"
)

// Store persists per-bounty balances, claim state, and the service-fee
// accrual pool. Every mutation is atomic and rejects rather than clamps:
// a reduction larger than the stored value fails with ErrInsufficientFunds.
//
// The engine serializes all calls, so stores do not need cross-call
// coordination beyond per-method atomicity.
type Store interface {
	// Get returns the bounty snapshot for key. A key with no deposits reads
	// as an open bounty with no balances.
	Get(ctx context.Context, key bountyid.Key) (Bounty, error)

	// DepositorPosition returns depositor's outstanding amount and latest
	// deposit time for one token. ErrNoBounty when the position is empty.
	DepositorPosition(ctx context.Context, key bountyid.Key, token, depositor common.Address) (DepositorPosition, error)

	// HasClaimed reports whether userID already claimed against key.
	HasClaimed(ctx context.Context, key bountyid.Key, userID string) (bool, error)

	// CreditDeposit records a net deposit and accrues fee into the per-token
	// fee pool. ErrIssueClosed when the bounty is closed.
	CreditDeposit(ctx context.Context, key bountyid.Key, token, depositor common.Address, net, fee *big.Int, at time.Time) error

	// UndoDeposit reverses a CreditDeposit whose external pull failed.
	UndoDeposit(ctx context.Context, key bountyid.Key, token, depositor common.Address, net, fee *big.Int) error

	// Close transitions key to Closed, fixes the eligible contributor set,
	// debits the maintainer cuts from totals, and records the fixed
	// per-contributor shares. ErrIssueClosed when already closed.
	Close(ctx context.Context, key bountyid.Key, contributors []string, cuts, shares []TokenAmount) error

	// SettleContributor marks userID claimed (exactly once; ErrAlreadyClaimed
	// on the second call) and debits the paid amounts from totals.
	SettleContributor(ctx context.Context, key bountyid.Key, userID string, payouts []TokenAmount) error

	// DebitDepositor zeroes depositor's position in token, reduces the total
	// by the same amount, and returns it. ErrNoBounty when empty.
	DebitDepositor(ctx context.Context, key bountyid.Key, token, depositor common.Address) (*big.Int, error)

	// SweepTokens zeroes the totals of the listed tokens and returns what was
	// cleared. ErrNoBounty when every listed token is already empty.
	SweepTokens(ctx context.Context, key bountyid.Key, tokens []common.Address) ([]TokenAmount, error)

	// FeeAccrued returns the accrued service-fee pool for token.
	FeeAccrued(ctx context.Context, token common.Address) (*big.Int, error)

	// DrainFees zeroes the fee pool for token and returns what it held.
	// ErrNothingAccrued when empty.
	DrainFees(ctx context.Context, token common.Address) (*big.Int, error)

	// CreditDeferred parks a payout whose external transfer failed, keyed by
	// destination wallet and token. Amounts accumulate.
	CreditDeferred(ctx context.Context, wallet, token common.Address, amount *big.Int) error

	// DeferredPayout returns wallet's parked payout balance in token, zero
	// when none.
	DeferredPayout(ctx context.Context, wallet, token common.Address) (*big.Int, error)

	// DrainDeferred zeroes wallet's parked payout in token and returns what it
	// held. ErrNothingDeferred when empty.
	DrainDeferred(ctx context.Context, wallet, token common.Address) (*big.Int, error)
}
