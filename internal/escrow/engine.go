package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gitgig-io/ragnar/internal/bountyid"
	"github.com/gitgig-io/ragnar/internal/claimpolicy"
	"github.com/gitgig-io/ragnar/internal/events"
	"github.com/gitgig-io/ragnar/internal/feecascade"
	"github.com/gitgig-io/ragnar/internal/fees"
	"github.com/gitgig-io/ragnar/internal/identity"
	"github.com/gitgig-io/ragnar/internal/notary"
	"github.com/gitgig-io/ragnar/internal/roles"
	"github.com/gitgig-io/ragnar/internal/token"
)

const (
	// DefaultReclaimAfter is the cooling-off window before a depositor can
	// take back their own contribution.
	DefaultReclaimAfter = 366 * 24 * time.Hour

	// DefaultSweepAfter is the abandonment window before the finance role can
	// clear whatever remains.
	DefaultSweepAfter = 455 * 24 * time.Hour
)

// EventSink receives the engine's emission signals. Publish failures never
// revert settled state; the engine logs and moves on.
type EventSink interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Archive receives verified claim authorizations for audit before they take
// effect.
type Archive interface {
	PutAuthorization(ctx context.Context, id [32]byte, payload []byte) error
}

// Config wires an Engine. Store, Identity, Fees, Cascade, Tokens, Transferor,
// Authority, and Notary are required; Validator defaults to allow-all,
// Events and AuthArchive to no-ops.
type Config struct {
	Store      Store
	Identity   *identity.Registry
	Fees       *fees.Resolver
	Cascade    *feecascade.Cascade
	Tokens     *token.Registry
	Transferor token.Transferor
	Validator  claimpolicy.Validator
	Authority  *roles.Authority

	Notary common.Address

	Events      EventSink
	AuthArchive Archive

	ReclaimAfter time.Duration
	SweepAfter   time.Duration

	Now func() time.Time
	Log *slog.Logger
}

// Engine is the bounty ledger and claim authority. A single mutex serializes
// every state transition; external token transfers happen strictly after the
// transition is written and the lock released, so a token implementation that
// calls back in observes final balances. Settled state never rolls back: a
// payout whose transfer fails is parked per wallet and token and paid out by
// WithdrawDeferred.
type Engine struct {
	mu sync.Mutex

	store      Store
	ident      *identity.Registry
	fees       *fees.Resolver
	cascade    *feecascade.Cascade
	tokens     *token.Registry
	bank       token.Transferor
	validator  claimpolicy.Validator
	auth       *roles.Authority
	events     EventSink
	archive    Archive
	notaryAddr common.Address
	paused     bool

	reclaimAfter time.Duration
	sweepAfter   time.Duration
	now          func() time.Time
	log          *slog.Logger
}

func NewEngine(cfg Config) (*Engine, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("escrow: nil store")
	case cfg.Identity == nil:
		return nil, errors.New("escrow: nil identity registry")
	case cfg.Fees == nil:
		return nil, errors.New("escrow: nil fee resolver")
	case cfg.Cascade == nil:
		return nil, errors.New("escrow: nil fee cascade")
	case cfg.Tokens == nil:
		return nil, errors.New("escrow: nil token registry")
	case cfg.Transferor == nil:
		return nil, errors.New("escrow: nil transferor")
	case cfg.Authority == nil:
		return nil, errors.New("escrow: nil authority")
	case cfg.Notary == (common.Address{}):
		return nil, errors.New("escrow: zero notary address")
	}

	validator := cfg.Validator
	if validator == nil {
		validator = claimpolicy.AllowAll{}
	}
	sink := cfg.Events
	if sink == nil {
		sink = nopSink{}
	}
	archive := cfg.AuthArchive
	if archive == nil {
		archive = nopArchive{}
	}
	reclaimAfter := cfg.ReclaimAfter
	if reclaimAfter <= 0 {
		reclaimAfter = DefaultReclaimAfter
	}
	sweepAfter := cfg.SweepAfter
	if sweepAfter <= 0 {
		sweepAfter = DefaultSweepAfter
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	log := cfg.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Engine{
		store:        cfg.Store,
		ident:        cfg.Identity,
		fees:         cfg.Fees,
		cascade:      cfg.Cascade,
		tokens:       cfg.Tokens,
		bank:         cfg.Transferor,
		validator:    validator,
		auth:         cfg.Authority,
		events:       sink,
		archive:      archive,
		notaryAddr:   cfg.Notary,
		reclaimAfter: reclaimAfter,
		sweepAfter:   sweepAfter,
		now:          nowFn,
		log:          log,
	}, nil
}

// NotaryAddress returns the currently trusted notary. The identity registry
// and fee cascade are wired to this getter so governance rotation applies to
// them immediately.
func (e *Engine) NotaryAddress() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notaryAddr
}

// Bounty returns a read snapshot; reads stay available while paused.
func (e *Engine) Bounty(ctx context.Context, key bountyid.Key) (Bounty, error) {
	return e.store.Get(ctx, key)
}

// PostBounty escrows amount of tok against key on behalf of caller. The
// service fee is floored off into the per-token accrual pool; bookkeeping is
// written before the external pull and undone if the pull fails.
func (e *Engine) PostBounty(ctx context.Context, caller common.Address, key bountyid.Key, tok common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}

	info, fee, net, at, err := e.creditDeposit(ctx, caller, key, tok, amount)
	if err != nil {
		return err
	}

	if err := e.bank.Pull(ctx, tok, caller, amount); err != nil {
		if undoErr := e.store.UndoDeposit(ctx, key, tok, caller, net, fee); undoErr != nil {
			return fmt.Errorf("escrow: pull failed (%v) and undo failed: %w", err, undoErr)
		}
		return fmt.Errorf("escrow: pull deposit: %w", err)
	}

	e.emit(ctx, events.TopicBounty, events.BountyCreatedV1{
		Version:   "bounties.created.v1",
		Platform:  key.Platform,
		Repo:      key.Repo,
		Issue:     key.Issue,
		Depositor: caller.Hex(),
		Token:     tok.Hex(),
		Symbol:    info.Symbol,
		Decimals:  info.Decimals,
		NetAmount: net.String(),
		Fee:       fee.String(),
		PostedAt:  at,
	})
	return nil
}

func (e *Engine) creditDeposit(ctx context.Context, caller common.Address, key bountyid.Key, tok common.Address, amount *big.Int) (token.Info, *big.Int, *big.Int, time.Time, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return token.Info{}, nil, nil, time.Time{}, ErrPaused
	}
	info, ok := e.tokens.Lookup(tok)
	if !ok {
		return token.Info{}, nil, nil, time.Time{}, fmt.Errorf("%w: %s", token.ErrNotSupported, tok)
	}

	fee := e.fees.ServiceFee(caller, amount)
	net := new(big.Int).Sub(amount, fee)
	at := e.now()

	if err := e.store.CreditDeposit(ctx, key, tok, caller, net, fee, at); err != nil {
		return token.Info{}, nil, nil, time.Time{}, err
	}
	return info, fee, net, at, nil
}

// claimAuthorization is the archived form of a verified maintainer claim.
type claimAuthorization struct {
	MaintainerUserID string    `json:"maintainerUserId"`
	Platform         string    `json:"platform"`
	Repo             string    `json:"repo"`
	Issue            string    `json:"issue"`
	Contributors     []string  `json:"contributors"`
	MaintainerWallet string    `json:"maintainerWallet"`
	VerifiedAt       time.Time `json:"verifiedAt"`
}

// MaintainerClaim verifies a notary-signed authorization naming the
// contributors that resolved key, pays the maintainer's cut per token, closes
// the bounty, and fixes each token's per-contributor share.
func (e *Engine) MaintainerClaim(ctx context.Context, maintainerUserID string, key bountyid.Key, contributorUserIDs []string, sig []byte) error {
	if len(contributorUserIDs) == 0 {
		return ErrNoContributors
	}
	seen := make(map[string]struct{}, len(contributorUserIDs))
	for _, c := range contributorUserIDs {
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateContributor, c)
		}
		seen[c] = struct{}{}
	}
	owner, repoName, err := bountyid.SplitRepo(key.Repo)
	if err != nil {
		return err
	}

	wallet, cuts, err := e.closeBounty(ctx, maintainerUserID, key, owner, repoName, contributorUserIDs, sig)
	if err != nil {
		return err
	}

	var payErrs []error
	for _, c := range cuts {
		if c.Amount.Sign() == 0 {
			continue
		}
		if err := e.bank.Pay(ctx, c.Token, wallet, c.Amount); err != nil {
			payErrs = append(payErrs, e.deferPayout(ctx, wallet, c.Token, c.Amount,
				fmt.Errorf("escrow: pay maintainer cut %v of %s: %w", c.Amount, c.Token, err)))
		}
	}

	e.emit(ctx, events.TopicBounty, events.BountyClosedV1{
		Version:          "bounties.closed.v1",
		Platform:         key.Platform,
		Repo:             key.Repo,
		Issue:            key.Issue,
		OldStatus:        StatusOpen.String(),
		NewStatus:        StatusClosed.String(),
		MaintainerUserID: maintainerUserID,
		MaintainerWallet: wallet.Hex(),
		Contributors:     contributorUserIDs,
	})
	return errors.Join(payErrs...)
}

func (e *Engine) closeBounty(ctx context.Context, maintainerUserID string, key bountyid.Key, owner, repoName string, contributorUserIDs []string, sig []byte) (common.Address, []TokenAmount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return common.Address{}, nil, ErrPaused
	}

	b, err := e.store.Get(ctx, key)
	if err != nil {
		return common.Address{}, nil, err
	}
	if b.Status != StatusOpen {
		return common.Address{}, nil, fmt.Errorf("%w: %s", ErrIssueClosed, key)
	}

	digest := notary.ClaimDigest(maintainerUserID, key.Platform, key.Repo, key.Issue, contributorUserIDs)
	if err := notary.Verify(digest, sig, e.notaryAddr); err != nil {
		return common.Address{}, nil, err
	}

	wallet, err := e.ident.Resolve(ctx, key.Platform, maintainerUserID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return common.Address{}, nil, fmt.Errorf("%w: maintainer %s on platform %s", ErrIdentityNotFound, maintainerUserID, key.Platform)
		}
		return common.Address{}, nil, err
	}

	feePct := e.fees.MaintainerFeePercent()
	if override, ok, err := e.cascade.Resolve(ctx, key.Platform, owner, repoName, key.Issue); err != nil {
		return common.Address{}, nil, err
	} else if ok {
		feePct = override
	}

	n := big.NewInt(int64(len(contributorUserIDs)))
	cuts := make([]TokenAmount, 0, len(b.Balances))
	shares := make([]TokenAmount, 0, len(b.Balances))
	for _, bal := range b.Balances {
		cut := fees.Pct(bal.Total, feePct)
		remaining := new(big.Int).Sub(bal.Total, cut)
		cuts = append(cuts, TokenAmount{Token: bal.Token, Amount: cut})
		shares = append(shares, TokenAmount{Token: bal.Token, Amount: new(big.Int).Div(remaining, n)})
	}

	auth := claimAuthorization{
		MaintainerUserID: maintainerUserID,
		Platform:         key.Platform,
		Repo:             key.Repo,
		Issue:            key.Issue,
		Contributors:     contributorUserIDs,
		MaintainerWallet: wallet.Hex(),
		VerifiedAt:       e.now(),
	}
	raw, err := json.Marshal(auth)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("escrow: marshal authorization: %w", err)
	}
	if err := e.archive.PutAuthorization(ctx, key.ID(), raw); err != nil {
		return common.Address{}, nil, fmt.Errorf("escrow: archive authorization: %w", err)
	}

	if err := e.store.Close(ctx, key, contributorUserIDs, cuts, shares); err != nil {
		return common.Address{}, nil, err
	}
	return wallet, cuts, nil
}

// ContributorClaim pays the caller's fixed share of every token the claim
// policy allows, and marks the caller's platform identity claimed exactly
// once. A policy denial skips that token without failing the claim.
func (e *Engine) ContributorClaim(ctx context.Context, caller common.Address, key bountyid.Key) error {
	link, payouts, err := e.settleClaim(ctx, caller, key)
	if err != nil {
		return err
	}

	var payErrs []error
	eventPayouts := make([]events.TokenAmountV1, 0, len(payouts))
	for _, p := range payouts {
		if err := e.bank.Pay(ctx, p.Token, caller, p.Amount); err != nil {
			payErrs = append(payErrs, e.deferPayout(ctx, caller, p.Token, p.Amount,
				fmt.Errorf("escrow: pay share %v of %s: %w", p.Amount, p.Token, err)))
			continue
		}
		eventPayouts = append(eventPayouts, events.TokenAmountV1{Token: p.Token.Hex(), Amount: p.Amount.String()})
	}

	e.emit(ctx, events.TopicBounty, events.ContributorPaidV1{
		Version:  "bounties.contributor-paid.v1",
		Platform: key.Platform,
		Repo:     key.Repo,
		Issue:    key.Issue,
		UserID:   link.UserID,
		Wallet:   caller.Hex(),
		Payouts:  eventPayouts,
	})
	return errors.Join(payErrs...)
}

func (e *Engine) settleClaim(ctx context.Context, caller common.Address, key bountyid.Key) (identity.Link, []TokenAmount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return identity.Link{}, nil, ErrPaused
	}

	link, err := e.ident.ReverseResolve(ctx, caller)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.Link{}, nil, fmt.Errorf("%w: wallet %s has no linked identity", ErrInvalidResolver, caller)
		}
		return identity.Link{}, nil, err
	}
	if link.Platform != key.Platform {
		return identity.Link{}, nil, fmt.Errorf("%w: identity %s/%s does not match platform %s", ErrInvalidResolver, link.Platform, link.UserID, key.Platform)
	}

	b, err := e.store.Get(ctx, key)
	if err != nil {
		return identity.Link{}, nil, err
	}
	eligible := false
	for _, c := range b.Contributors {
		if c == link.UserID {
			eligible = true
			break
		}
	}
	if !eligible {
		return identity.Link{}, nil, fmt.Errorf("%w: %s is not in the eligible set for %s", ErrInvalidResolver, link.UserID, key)
	}

	claimed, err := e.store.HasClaimed(ctx, key, link.UserID)
	if err != nil {
		return identity.Link{}, nil, err
	}
	if claimed {
		return identity.Link{}, nil, fmt.Errorf("%w: %s on %s", ErrAlreadyClaimed, link.UserID, key)
	}

	owner, _, err := bountyid.SplitRepo(key.Repo)
	if err != nil {
		return identity.Link{}, nil, err
	}

	var payouts []TokenAmount
	for _, bal := range b.Balances {
		if bal.Share.Sign() == 0 {
			continue
		}
		allowed, err := e.validator.Validate(ctx, claimpolicy.Request{
			Platform: key.Platform,
			Org:      owner,
			Repo:     key.Repo,
			Issue:    key.Issue,
			UserID:   link.UserID,
			Token:    bal.Token,
			Amount:   bal.Share,
		})
		if err != nil {
			return identity.Link{}, nil, fmt.Errorf("escrow: claim validator: %w", err)
		}
		if !allowed {
			// Policy denial skips this token silently.
			continue
		}
		payouts = append(payouts, TokenAmount{Token: bal.Token, Amount: new(big.Int).Set(bal.Share)})
	}

	if err := e.store.SettleContributor(ctx, key, link.UserID, payouts); err != nil {
		return identity.Link{}, nil, err
	}
	return link, payouts, nil
}

// Reclaim returns the caller's own outstanding contribution in tok once the
// caller's cooling-off window has elapsed. Other depositors' shares are
// untouched.
func (e *Engine) Reclaim(ctx context.Context, caller common.Address, key bountyid.Key, tok common.Address) error {
	amount, err := e.debitReclaim(ctx, caller, key, tok)
	if err != nil {
		return err
	}

	if err := e.bank.Pay(ctx, tok, caller, amount); err != nil {
		return e.deferPayout(ctx, caller, tok, amount,
			fmt.Errorf("escrow: pay reclaim %v of %s: %w", amount, tok, err))
	}

	e.emit(ctx, events.TopicBounty, events.BountyReclaimedV1{
		Version:   "bounties.reclaimed.v1",
		Platform:  key.Platform,
		Repo:      key.Repo,
		Issue:     key.Issue,
		Depositor: caller.Hex(),
		Token:     tok.Hex(),
		Amount:    amount.String(),
	})
	return nil
}

func (e *Engine) debitReclaim(ctx context.Context, caller common.Address, key bountyid.Key, tok common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return nil, ErrPaused
	}

	b, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusOpen {
		return nil, fmt.Errorf("%w: %s", ErrIssueClosed, key)
	}

	pos, err := e.store.DepositorPosition(ctx, key, tok, caller)
	if err != nil {
		return nil, err
	}
	if elapsed := e.now().Sub(pos.PostedAt); elapsed < e.reclaimAfter {
		return nil, fmt.Errorf("%w: reclaim opens after %s, elapsed %s", ErrTimeframe, e.reclaimAfter, elapsed)
	}

	return e.store.DebitDepositor(ctx, key, tok, caller)
}

// SweepBounty clears whatever remains of the listed tokens to the caller
// (finance role) once the abandonment window has elapsed, regardless of who
// deposited.
func (e *Engine) SweepBounty(ctx context.Context, caller common.Address, key bountyid.Key, toks []common.Address) error {
	swept, err := e.debitSweep(ctx, caller, key, toks)
	if err != nil {
		return err
	}

	var payErrs []error
	eventSwept := make([]events.TokenAmountV1, 0, len(swept))
	for _, sw := range swept {
		if err := e.bank.Pay(ctx, sw.Token, caller, sw.Amount); err != nil {
			payErrs = append(payErrs, e.deferPayout(ctx, caller, sw.Token, sw.Amount,
				fmt.Errorf("escrow: pay sweep %v of %s: %w", sw.Amount, sw.Token, err)))
			continue
		}
		eventSwept = append(eventSwept, events.TokenAmountV1{Token: sw.Token.Hex(), Amount: sw.Amount.String()})
	}

	e.emit(ctx, events.TopicBounty, events.BountySweptV1{
		Version:  "bounties.swept.v1",
		Platform: key.Platform,
		Repo:     key.Repo,
		Issue:    key.Issue,
		Sweeper:  caller.Hex(),
		Swept:    eventSwept,
	})
	return errors.Join(payErrs...)
}

func (e *Engine) debitSweep(ctx context.Context, caller common.Address, key bountyid.Key, toks []common.Address) ([]TokenAmount, error) {
	if err := e.auth.Require(roles.Finance, caller); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return nil, ErrPaused
	}

	b, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(b.Balances) == 0 {
		return nil, fmt.Errorf("%w: nothing to sweep on %s", ErrNoBounty, key)
	}
	if elapsed := e.now().Sub(b.LastPostedAt); elapsed < e.sweepAfter {
		return nil, fmt.Errorf("%w: sweep opens after %s, elapsed %s", ErrTimeframe, e.sweepAfter, elapsed)
	}

	return e.store.SweepTokens(ctx, key, toks)
}

// WithdrawFees drains the accrued service-fee pool for tok to the caller
// (finance role).
func (e *Engine) WithdrawFees(ctx context.Context, caller common.Address, tok common.Address) (*big.Int, error) {
	if err := e.auth.Require(roles.Finance, caller); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.paused {
		e.mu.Unlock()
		return nil, ErrPaused
	}
	amount, err := e.store.DrainFees(ctx, tok)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := e.bank.Pay(ctx, tok, caller, amount); err != nil {
		return nil, e.deferPayout(ctx, caller, tok, amount,
			fmt.Errorf("escrow: pay fee withdrawal %v of %s: %w", amount, tok, err))
	}
	return amount, nil
}

// WithdrawDeferred pays the caller whatever earlier payouts were parked for
// them in tok after transfer failures. Anyone can withdraw their own parked
// balance; it only ever pays the wallet it is keyed to.
func (e *Engine) WithdrawDeferred(ctx context.Context, caller, tok common.Address) (*big.Int, error) {
	e.mu.Lock()
	if e.paused {
		e.mu.Unlock()
		return nil, ErrPaused
	}
	amount, err := e.store.DrainDeferred(ctx, caller, tok)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := e.bank.Pay(ctx, tok, caller, amount); err != nil {
		return nil, e.deferPayout(ctx, caller, tok, amount,
			fmt.Errorf("escrow: pay deferred %v of %s: %w", amount, tok, err))
	}
	return amount, nil
}

// DeferredPayout is a read on the caller's parked payout balance.
func (e *Engine) DeferredPayout(ctx context.Context, wallet, tok common.Address) (*big.Int, error) {
	return e.store.DeferredPayout(ctx, wallet, tok)
}

// deferPayout parks an amount whose transfer failed so the settled state it
// belongs to stays final and the funds stay withdrawable. The returned error
// wraps ErrPayoutDeferred around the transfer failure.
func (e *Engine) deferPayout(ctx context.Context, to, tok common.Address, amount *big.Int, cause error) error {
	if err := e.store.CreditDeferred(ctx, to, tok, amount); err != nil {
		return fmt.Errorf("%v: parking payout failed: %w", cause, err)
	}
	e.log.Warn("payout deferred", "to", to.Hex(), "token", tok.Hex(), "amount", amount.String(), "err", cause)
	return fmt.Errorf("%w: %v", ErrPayoutDeferred, cause)
}

// FeeAccrued is a read on the service-fee pool.
func (e *Engine) FeeAccrued(ctx context.Context, tok common.Address) (*big.Int, error) {
	return e.store.FeeAccrued(ctx, tok)
}

// SetPaused short-circuits all fund-moving entry points; reads stay open.
func (e *Engine) SetPaused(ctx context.Context, caller common.Address, paused bool) error {
	if err := e.auth.Require(roles.Governance, caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.paused = paused
	e.mu.Unlock()

	e.emitConfig(ctx, caller, "paused", fmt.Sprintf("%t", paused))
	return nil
}

// SetNotary rotates the trusted notary address.
func (e *Engine) SetNotary(ctx context.Context, caller, addr common.Address) error {
	if err := e.auth.Require(roles.Governance, caller); err != nil {
		return err
	}
	if addr == (common.Address{}) {
		return fmt.Errorf("escrow: zero notary address")
	}
	e.mu.Lock()
	e.notaryAddr = addr
	e.mu.Unlock()

	e.emitConfig(ctx, caller, "notary", addr.Hex())
	return nil
}

// AddToken admits a token to the accepted set.
func (e *Engine) AddToken(ctx context.Context, caller common.Address, info token.Info) error {
	if err := e.auth.Require(roles.Governance, caller); err != nil {
		return err
	}
	if err := e.tokens.Add(info); err != nil {
		return err
	}
	e.emitConfig(ctx, caller, "token-added", info.Address.Hex())
	return nil
}

// RemoveToken drops a token from the accepted set; existing balances remain
// claimable and sweepable.
func (e *Engine) RemoveToken(ctx context.Context, caller, addr common.Address) error {
	if err := e.auth.Require(roles.Governance, caller); err != nil {
		return err
	}
	e.tokens.Remove(addr)
	e.emitConfig(ctx, caller, "token-removed", addr.Hex())
	return nil
}

// SetServiceFee updates the default service-fee percentage.
func (e *Engine) SetServiceFee(ctx context.Context, caller common.Address, percent uint8) error {
	if err := e.auth.Require(roles.Governance, caller); err != nil {
		return err
	}
	if err := e.fees.SetServiceFee(percent); err != nil {
		return err
	}
	e.emitConfig(ctx, caller, "service-fee", fmt.Sprintf("%d", percent))
	return nil
}

// SetCustomServiceFee sets or clears a per-depositor service-fee override.
func (e *Engine) SetCustomServiceFee(ctx context.Context, caller, depositor common.Address, enabled bool, percent uint8) error {
	if err := e.auth.Require(roles.Governance, caller); err != nil {
		return err
	}
	if err := e.fees.SetCustomServiceFee(depositor, enabled, percent); err != nil {
		return err
	}
	e.emitConfig(ctx, caller, "custom-service-fee", fmt.Sprintf("%s=%d enabled=%t", depositor.Hex(), percent, enabled))
	return nil
}

// SetMaintainerFee updates the flat maintainer percentage.
func (e *Engine) SetMaintainerFee(ctx context.Context, caller common.Address, percent uint8) error {
	if err := e.auth.Require(roles.Governance, caller); err != nil {
		return err
	}
	if err := e.fees.SetMaintainerFee(percent); err != nil {
		return err
	}
	e.emitConfig(ctx, caller, "maintainer-fee", fmt.Sprintf("%d", percent))
	return nil
}

func (e *Engine) emitConfig(ctx context.Context, caller common.Address, setting, value string) {
	e.emit(ctx, events.TopicConfig, events.ConfigChangedV1{
		Version: "escrow-config.changed.v1",
		Setting: setting,
		Value:   value,
		Caller:  caller.Hex(),
	})
}

func (e *Engine) emit(ctx context.Context, topic string, payload any) {
	if err := e.events.Publish(ctx, topic, payload); err != nil {
		e.log.Warn("publish event", "topic", topic, "err", err)
	}
}

type nopSink struct{}

func (nopSink) Publish(context.Context, string, any) error { return nil }

type nopArchive struct{}

func (nopArchive) PutAuthorization(context.Context, [32]byte, []byte) error { return nil }
