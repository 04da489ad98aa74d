package feecascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gitgig-io/ragnar/internal/notary"
)

const (
	// FeeUnset is the sentinel meaning "no override at this level"; writing
	// it clears a level so resolution falls through to the next one.
	FeeUnset uint8 = 255

	// DefaultSignatureTolerance bounds |now - expires| for override
	// attestations in both directions.
	DefaultSignatureTolerance = 10 * time.Minute
)

var (
	ErrInvalidFee = errors.New("feecascade: invalid fee")
	ErrTimeframe  = errors.New("feecascade: attestation outside freshness window")
)

// Level is the override granularity; resolution walks most-specific-first.
type Level uint8

const (
	LevelOwner Level = iota + 1
	LevelRepo
	LevelIssue
)

func (l Level) String() string {
	switch l {
	case LevelOwner:
		return "owner"
	case LevelRepo:
		return "repo"
	case LevelIssue:
		return "issue"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(l))
	}
}

// Scope identifies one override slot. Unused fields stay empty for coarser
// levels.
type Scope struct {
	Level    Level
	Platform string
	Owner    string
	Repo     string
	Issue    string
}

// Store persists override values per scope. Absent scopes read as unset.
type Store interface {
	GetFee(ctx context.Context, s Scope) (uint8, bool, error)
	SetFee(ctx context.Context, s Scope, fee uint8) error
}

// Config wires a Cascade.
type Config struct {
	Store  Store
	Domain notary.Domain

	// Notary returns the currently trusted notary address, so governance
	// rotation takes effect without rebuilding the cascade.
	Notary func() common.Address

	// Tolerance bounds attestation freshness. Defaults to
	// DefaultSignatureTolerance when zero.
	Tolerance time.Duration

	Now func() time.Time
}

// Cascade is the time-bounded maintainer-fee override system. Every write is
// individually authorized by a fresh notary signature over the level's own
// field tuple plus its expiry.
type Cascade struct {
	store     Store
	domain    notary.Domain
	notaryFn  func() common.Address
	tolerance time.Duration
	now       func() time.Time
}

func New(cfg Config) (*Cascade, error) {
	if cfg.Store == nil {
		return nil, errors.New("feecascade: nil store")
	}
	if cfg.Notary == nil {
		return nil, errors.New("feecascade: nil notary source")
	}
	tol := cfg.Tolerance
	if tol <= 0 {
		tol = DefaultSignatureTolerance
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Cascade{
		store:     cfg.Store,
		domain:    cfg.Domain,
		notaryFn:  cfg.Notary,
		tolerance: tol,
		now:       nowFn,
	}, nil
}

// Resolve returns the effective maintainer-fee override for an issue:
// issue level first, then repo, then owner. A stored FeeUnset at any level
// falls through. The second return is false when no level is set.
func (c *Cascade) Resolve(ctx context.Context, platform, owner, repo, issue string) (uint8, bool, error) {
	scopes := []Scope{
		{Level: LevelIssue, Platform: platform, Owner: owner, Repo: repo, Issue: issue},
		{Level: LevelRepo, Platform: platform, Owner: owner, Repo: repo},
		{Level: LevelOwner, Platform: platform, Owner: owner},
	}
	for _, s := range scopes {
		fee, ok, err := c.store.GetFee(ctx, s)
		if err != nil {
			return FeeUnset, false, fmt.Errorf("feecascade: resolve %s: %w", s.Level, err)
		}
		if ok && fee != FeeUnset {
			return fee, true, nil
		}
	}
	return FeeUnset, false, nil
}

// SetOwnerFee writes an owner-level override authorized by sig over
// (platform, owner, fee, expires).
func (c *Cascade) SetOwnerFee(ctx context.Context, platform, owner string, fee uint8, expires time.Time, sig []byte) error {
	if err := c.checkWrite(fee, expires); err != nil {
		return err
	}
	digest := notary.OwnerFeeDigest(c.domain, platform, owner, fee, uint64(expires.Unix()))
	if err := notary.Verify(digest, sig, c.notaryFn()); err != nil {
		return err
	}
	return c.store.SetFee(ctx, Scope{Level: LevelOwner, Platform: platform, Owner: owner}, fee)
}

// SetRepoFee writes a repo-level override authorized by sig over
// (platform, owner, repo, fee, expires).
func (c *Cascade) SetRepoFee(ctx context.Context, platform, owner, repo string, fee uint8, expires time.Time, sig []byte) error {
	if err := c.checkWrite(fee, expires); err != nil {
		return err
	}
	digest := notary.RepoFeeDigest(c.domain, platform, owner, repo, fee, uint64(expires.Unix()))
	if err := notary.Verify(digest, sig, c.notaryFn()); err != nil {
		return err
	}
	return c.store.SetFee(ctx, Scope{Level: LevelRepo, Platform: platform, Owner: owner, Repo: repo}, fee)
}

// SetIssueFee writes an issue-level override authorized by sig over
// (platform, owner, repo, issue, fee, expires).
func (c *Cascade) SetIssueFee(ctx context.Context, platform, owner, repo, issue string, fee uint8, expires time.Time, sig []byte) error {
	if err := c.checkWrite(fee, expires); err != nil {
		return err
	}
	digest := notary.IssueFeeDigest(c.domain, platform, owner, repo, issue, fee, uint64(expires.Unix()))
	if err := notary.Verify(digest, sig, c.notaryFn()); err != nil {
		return err
	}
	return c.store.SetFee(ctx, Scope{Level: LevelIssue, Platform: platform, Owner: owner, Repo: repo, Issue: issue}, fee)
}

func (c *Cascade) checkWrite(fee uint8, expires time.Time) error {
	if fee > 100 && fee != FeeUnset {
		return fmt.Errorf("%w: %d", ErrInvalidFee, fee)
	}
	now := c.now()
	skew := now.Sub(expires)
	if skew < 0 {
		skew = -skew
	}
	if skew > c.tolerance {
		return fmt.Errorf("%w: now %s, expires %s", ErrTimeframe, now.UTC().Format(time.RFC3339), expires.UTC().Format(time.RFC3339))
	}
	return nil
}
