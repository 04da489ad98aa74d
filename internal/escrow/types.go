package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gitgig-io/ragnar/internal/bountyid"
)

var (
	ErrPaused               = errors.New("escrow: paused")
	ErrIssueClosed          = errors.New("escrow: issue closed")
	ErrInvalidAmount        = errors.New("escrow: invalid amount")
	ErrNoBounty             = errors.New("escrow: nothing to release")
	ErrNothingAccrued       = errors.New("escrow: no fees accrued")
	ErrTimeframe            = errors.New("escrow: timeframe not reached")
	ErrAlreadyClaimed       = errors.New("escrow: already claimed")
	ErrInvalidResolver      = errors.New("escrow: caller is not an eligible resolver")
	ErrIdentityNotFound     = errors.New("escrow: identity not linked")
	ErrNoContributors       = errors.New("escrow: empty contributor list")
	ErrDuplicateContributor = errors.New("escrow: duplicate contributor")
	ErrInsufficientFunds    = errors.New("escrow: insufficient escrowed funds")
	ErrPayoutDeferred       = errors.New("escrow: payout deferred")
	ErrNothingDeferred      = errors.New("escrow: no deferred payout")
)

// Status is the per-bounty state machine. It advances Open -> Closed exactly
// once, on a verified maintainer claim, and never reopens.
type Status uint8

const (
	StatusOpen Status = iota + 1
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// TokenAmount pairs a token with an amount for multi-token operations.
type TokenAmount struct {
	Token  common.Address
	Amount *big.Int
}

// TokenBalance is one entry of a bounty's token list. Share is the fixed
// per-contributor payout, zero until the bounty closes.
type TokenBalance struct {
	Token common.Address
	Total *big.Int
	Share *big.Int
}

// Bounty is a read snapshot of one escrowed issue. Balances holds only tokens
// with nonzero totals, in first-seen order.
type Bounty struct {
	Key          bountyid.Key
	Status       Status
	Balances     []TokenBalance
	Contributors []string
	LastPostedAt time.Time
}

// DepositorPosition is one depositor's outstanding contribution in one token.
// PostedAt is that depositor's own latest deposit time and opens their
// reclaim window.
type DepositorPosition struct {
	Amount   *big.Int
	PostedAt time.Time
}
