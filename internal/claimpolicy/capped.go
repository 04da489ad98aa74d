package claimpolicy

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gitgig-io/ragnar/internal/notary"
)

const (
	// DefaultAttestationTolerance bounds |now - expires| for known-user
	// attestations in both directions.
	DefaultAttestationTolerance = 10 * time.Minute

	normalizedDecimals = 18
)

var ErrTimeframe = errors.New("claimpolicy: attestation outside freshness window")

// Store tracks cumulative claimed value and known-user marks per
// (platform, org, user).
type Store interface {
	ClaimedTotal(ctx context.Context, platform, org, userID string) (*big.Int, error)
	AddClaimed(ctx context.Context, platform, org, userID string, delta *big.Int) error
	IsKnown(ctx context.Context, platform, org, userID string) (bool, error)
	MarkKnown(ctx context.Context, platform, org, userID string) error
}

// CappedConfig wires a CappedValidator.
type CappedConfig struct {
	Store  Store
	Domain notary.Domain
	Notary func() common.Address

	// Cap is the lifetime per-(platform, org, user) claim limit, expressed in
	// 18-decimal stable units. Users marked known are uncapped.
	Cap *big.Int

	// StableTokens maps accepted stablecoin addresses to their decimals, used
	// to normalize amounts before comparing against Cap.
	StableTokens map[common.Address]uint8

	// PointsTokens are internal points tokens; claims in them always pass and
	// never consume cap.
	PointsTokens map[common.Address]bool

	// Tolerance bounds known-user attestation freshness. Defaults to
	// DefaultAttestationTolerance when zero.
	Tolerance time.Duration

	Now func() time.Time
}

// CappedValidator caps cumulative stable-unit claims per (platform, org, user)
// unless the org has marked the user as known via notary attestation.
// Tokens that are neither stable nor points are denied for unknown users.
type CappedValidator struct {
	store     Store
	domain    notary.Domain
	notaryFn  func() common.Address
	cap       *big.Int
	stable    map[common.Address]uint8
	points    map[common.Address]bool
	tolerance time.Duration
	now       func() time.Time
}

func NewCapped(cfg CappedConfig) (*CappedValidator, error) {
	if cfg.Store == nil {
		return nil, errors.New("claimpolicy: nil store")
	}
	if cfg.Notary == nil {
		return nil, errors.New("claimpolicy: nil notary source")
	}
	if cfg.Cap == nil || cfg.Cap.Sign() < 0 {
		return nil, errors.New("claimpolicy: cap must be >= 0")
	}
	tol := cfg.Tolerance
	if tol <= 0 {
		tol = DefaultAttestationTolerance
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &CappedValidator{
		store:     cfg.Store,
		domain:    cfg.Domain,
		notaryFn:  cfg.Notary,
		cap:       new(big.Int).Set(cfg.Cap),
		stable:    cfg.StableTokens,
		points:    cfg.PointsTokens,
		tolerance: tol,
		now:       nowFn,
	}, nil
}

func (v *CappedValidator) Validate(ctx context.Context, req Request) (bool, error) {
	if v.points[req.Token] {
		return true, nil
	}

	decimals, isStable := v.stable[req.Token]
	known, err := v.store.IsKnown(ctx, req.Platform, req.Org, req.UserID)
	if err != nil {
		return false, fmt.Errorf("claimpolicy: lookup known: %w", err)
	}

	if !isStable {
		// Exotic tokens only flow to users the org vouched for.
		return known, nil
	}

	norm := normalize(req.Amount, decimals)
	if !known {
		total, err := v.store.ClaimedTotal(ctx, req.Platform, req.Org, req.UserID)
		if err != nil {
			return false, fmt.Errorf("claimpolicy: lookup total: %w", err)
		}
		if new(big.Int).Add(total, norm).Cmp(v.cap) > 0 {
			return false, nil
		}
	}

	if err := v.store.AddClaimed(ctx, req.Platform, req.Org, req.UserID, norm); err != nil {
		return false, fmt.Errorf("claimpolicy: record claimed: %w", err)
	}
	return true, nil
}

// MarkKnown lifts the cap for (platform, org, userID), authorized by a fresh
// notary signature over the tuple plus expires.
func (v *CappedValidator) MarkKnown(ctx context.Context, platform, org, userID string, expires time.Time, sig []byte) error {
	now := v.now()
	skew := now.Sub(expires)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return fmt.Errorf("%w: now %s, expires %s", ErrTimeframe, now.UTC().Format(time.RFC3339), expires.UTC().Format(time.RFC3339))
	}

	digest := notary.KnownUserDigest(v.domain, platform, org, userID, uint64(expires.Unix()))
	if err := notary.Verify(digest, sig, v.notaryFn()); err != nil {
		return err
	}
	return v.store.MarkKnown(ctx, platform, org, userID)
}

func normalize(amount *big.Int, decimals uint8) *big.Int {
	if decimals >= normalizedDecimals {
		div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-normalizedDecimals)), nil)
		return new(big.Int).Div(amount, div)
	}
	mul := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(normalizedDecimals-decimals)), nil)
	return new(big.Int).Mul(amount, mul)
}
