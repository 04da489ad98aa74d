package claimpolicy

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Request describes one token payout of a contributor claim about to happen.
type Request struct {
	Platform string
	Org      string
	Repo     string
	Issue    string
	UserID   string
	Token    common.Address
	Amount   *big.Int
}

// Validator is the pluggable claim policy. A false result denies the single
// token/amount in the request without failing the rest of the claim; the
// orchestrator skips that payout and carries on. An error aborts the claim.
type Validator interface {
	Validate(ctx context.Context, req Request) (bool, error)
}

// AllowAll is the default policy.
type AllowAll struct{}

func (AllowAll) Validate(context.Context, Request) (bool, error) {
	return true, nil
}
