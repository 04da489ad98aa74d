// Package escrowapi exposes the bounty escrow engine over HTTP.
//
// Read endpoints are open; fund-moving endpoints ride the per-IP rate
// limiter, and the finance routes (fee withdrawal, sweeps) additionally
// require a bearer token when one is configured. Routes that take the acting
// wallet from the request body can be put behind the same token with
// RequireAuthForWrites.
package escrowapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gitgig-io/ragnar/internal/bountyid"
	"github.com/gitgig-io/ragnar/internal/escrow"
	"github.com/gitgig-io/ragnar/internal/identity"
	"github.com/gitgig-io/ragnar/internal/notary"
	"github.com/gitgig-io/ragnar/internal/roles"
	"github.com/gitgig-io/ragnar/internal/token"
)

var ErrInvalidConfig = errors.New("escrowapi: invalid config")

// EscrowService is the engine surface the handler drives. *escrow.Engine
// satisfies it.
type EscrowService interface {
	Bounty(ctx context.Context, key bountyid.Key) (escrow.Bounty, error)
	PostBounty(ctx context.Context, caller common.Address, key bountyid.Key, tok common.Address, amount *big.Int) error
	MaintainerClaim(ctx context.Context, maintainerUserID string, key bountyid.Key, contributorUserIDs []string, sig []byte) error
	ContributorClaim(ctx context.Context, caller common.Address, key bountyid.Key) error
	Reclaim(ctx context.Context, caller common.Address, key bountyid.Key, tok common.Address) error
	SweepBounty(ctx context.Context, caller common.Address, key bountyid.Key, toks []common.Address) error
	WithdrawFees(ctx context.Context, caller common.Address, tok common.Address) (*big.Int, error)
	FeeAccrued(ctx context.Context, tok common.Address) (*big.Int, error)
	WithdrawDeferred(ctx context.Context, caller, tok common.Address) (*big.Int, error)
	DeferredPayout(ctx context.Context, wallet, tok common.Address) (*big.Int, error)
	NotaryAddress() common.Address
}

// IdentityService is the identity-registry surface the handler drives.
// *identity.Registry satisfies it.
type IdentityService interface {
	Mint(ctx context.Context, wallet common.Address, platform, userID, username string, nonce uint64, sig []byte) error
	Transfer(ctx context.Context, newWallet common.Address, platform, userID, username string, nonce uint64, sig []byte) error
	Resolve(ctx context.Context, platform, userID string) (common.Address, error)
	ReverseResolve(ctx context.Context, wallet common.Address) (identity.Link, error)
}

type Config struct {
	ChainID  uint64
	Instance common.Address

	// AuthToken gates the finance routes when set. Empty leaves them open,
	// which is only sensible behind a trusted proxy.
	AuthToken string

	// RequireAuthForWrites extends the bearer token to the routes that take
	// the acting wallet from the request body (deposits, reclaims, deferred
	// payout withdrawals). Those callers are not otherwise authenticated:
	// funds only move from the named wallet's allowance or to the named
	// wallet, but anyone can trigger the move. Set this unless an upstream
	// proxy authenticates callers.
	RequireAuthForWrites bool

	// MaxBodyBytes limits request sizes. Defaults to 1 MiB.
	MaxBodyBytes int64

	RateLimitPerIPPerSecond float64
	RateLimitBurst          int
	RateLimitMaxTrackedIPs  int

	Now func() time.Time
}

func NewHandler(cfg Config, esc EscrowService, idents IdentityService) (http.Handler, error) {
	if cfg.ChainID == 0 {
		return nil, fmt.Errorf("%w: missing chain id", ErrInvalidConfig)
	}
	if cfg.Instance == (common.Address{}) {
		return nil, fmt.Errorf("%w: missing escrow instance address", ErrInvalidConfig)
	}
	if esc == nil || idents == nil {
		return nil, fmt.Errorf("%w: nil services", ErrInvalidConfig)
	}
	if cfg.RequireAuthForWrites && cfg.AuthToken == "" {
		return nil, fmt.Errorf("%w: RequireAuthForWrites needs an auth token", ErrInvalidConfig)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.RateLimitPerIPPerSecond <= 0 {
		cfg.RateLimitPerIPPerSecond = 20
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}
	if cfg.RateLimitMaxTrackedIPs <= 0 {
		cfg.RateLimitMaxTrackedIPs = 10_000
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	h := &handler{
		cfg:    cfg,
		escrow: esc,
		idents: idents,
		limiter: newIPRateLimiter(
			cfg.RateLimitPerIPPerSecond,
			float64(cfg.RateLimitBurst),
			cfg.RateLimitMaxTrackedIPs,
		),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /v1/config", h.handleConfig)
	mux.HandleFunc("GET /v1/bounties/{platform}/{owner}/{repo}/{issue}", h.handleBountyStatus)
	mux.HandleFunc("POST /v1/bounties", h.requireWriteAuth(h.handlePostBounty))
	mux.HandleFunc("POST /v1/claims/maintainer", h.handleMaintainerClaim)
	mux.HandleFunc("POST /v1/claims/contributor", h.handleContributorClaim)
	mux.HandleFunc("POST /v1/reclaims", h.requireWriteAuth(h.handleReclaim))
	mux.HandleFunc("POST /v1/sweeps", h.requireAuth(h.handleSweep))
	mux.HandleFunc("GET /v1/fees/{token}", h.handleFeeAccrued)
	mux.HandleFunc("POST /v1/fees/withdraw", h.requireAuth(h.handleWithdrawFees))
	mux.HandleFunc("GET /v1/payouts/{wallet}/{token}", h.handleDeferredPayout)
	mux.HandleFunc("POST /v1/payouts/withdraw", h.requireWriteAuth(h.handleWithdrawDeferred))
	mux.HandleFunc("GET /v1/identities/{platform}/{userId}", h.handleIdentityLookup)
	mux.HandleFunc("POST /v1/identities", h.handleIdentityMint)
	mux.HandleFunc("POST /v1/identities/transfer", h.handleIdentityTransfer)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health checks must never be throttled.
		if r.URL.Path == "/healthz" {
			mux.ServeHTTP(w, r)
			return
		}

		now := h.cfg.Now().UTC()
		ip := clientIP(r)
		allowed := h.limiter.Allow(ip, now)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(h.cfg.RateLimitBurst))
		if !allowed {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"version": "v1",
				"error":   "rate_limited",
			})
			return
		}

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
		}
		mux.ServeHTTP(w, r)
	}), nil
}

type handler struct {
	cfg Config

	escrow  EscrowService
	idents  IdentityService
	limiter *ipRateLimiter
}

func (h *handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.AuthToken != "" && !checkBearer(r.Header.Get("Authorization"), h.cfg.AuthToken) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"version": "v1",
				"error":   "unauthorized",
			})
			return
		}
		next(w, r)
	}
}

func (h *handler) requireWriteAuth(next http.HandlerFunc) http.HandlerFunc {
	if !h.cfg.RequireAuthForWrites {
		return next
	}
	return h.requireAuth(next)
}

func (h *handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (h *handler) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":       "v1",
		"chainId":       h.cfg.ChainID,
		"escrowAddress": h.cfg.Instance.Hex(),
		"notaryAddress": h.escrow.NotaryAddress().Hex(),
	})
}

func (h *handler) handleBountyStatus(w http.ResponseWriter, r *http.Request) {
	key := bountyid.Key{
		Platform: r.PathValue("platform"),
		Repo:     r.PathValue("owner") + "/" + r.PathValue("repo"),
		Issue:    r.PathValue("issue"),
	}
	b, err := h.escrow.Bounty(r.Context(), key)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	balances := make([]balanceBody, 0, len(b.Balances))
	for _, bal := range b.Balances {
		body := balanceBody{
			Token: bal.Token.Hex(),
			Total: bal.Total.String(),
		}
		if bal.Share != nil && bal.Share.Sign() > 0 {
			body.Share = bal.Share.String()
		}
		balances = append(balances, body)
	}

	id := key.ID()
	out := bountyStatusBody{
		Version:      "v1",
		BountyID:     "0x" + hex.EncodeToString(id[:]),
		Platform:     key.Platform,
		Repo:         key.Repo,
		Issue:        key.Issue,
		Status:       b.Status.String(),
		Balances:     balances,
		Contributors: b.Contributors,
	}
	if !b.LastPostedAt.IsZero() {
		out.LastPostedAt = b.LastPostedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, out)
}

type postBountyRequestBody struct {
	Platform  string `json:"platform"`
	Repo      string `json:"repo"`
	Issue     string `json:"issue"`
	Depositor string `json:"depositor"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
}

func (h *handler) handlePostBounty(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSONBody[postBountyRequestBody](w, r)
	if !ok {
		return
	}
	key, ok := parseKey(w, req.Platform, req.Repo, req.Issue)
	if !ok {
		return
	}
	depositor, ok := parseAddress(w, req.Depositor, "invalid_depositor")
	if !ok {
		return
	}
	tok, ok := parseAddress(w, req.Token, "invalid_token")
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}

	if err := h.escrow.PostBounty(r.Context(), depositor, key, tok, amount); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": "v1", "status": "posted"})
}

type maintainerClaimRequestBody struct {
	MaintainerUserID string   `json:"maintainerUserId"`
	Platform         string   `json:"platform"`
	Repo             string   `json:"repo"`
	Issue            string   `json:"issue"`
	Contributors     []string `json:"contributors"`
	Signature        string   `json:"signature"`
}

func (h *handler) handleMaintainerClaim(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSONBody[maintainerClaimRequestBody](w, r)
	if !ok {
		return
	}
	key, ok := parseKey(w, req.Platform, req.Repo, req.Issue)
	if !ok {
		return
	}
	sig, err := decodeHexBytes(req.Signature)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_signature_encoding")
		return
	}

	if err := h.escrow.MaintainerClaim(r.Context(), req.MaintainerUserID, key, req.Contributors, sig); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": "v1", "status": "closed"})
}

type contributorClaimRequestBody struct {
	Wallet   string `json:"wallet"`
	Platform string `json:"platform"`
	Repo     string `json:"repo"`
	Issue    string `json:"issue"`
}

func (h *handler) handleContributorClaim(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSONBody[contributorClaimRequestBody](w, r)
	if !ok {
		return
	}
	key, ok := parseKey(w, req.Platform, req.Repo, req.Issue)
	if !ok {
		return
	}
	wallet, ok := parseAddress(w, req.Wallet, "invalid_wallet")
	if !ok {
		return
	}

	if err := h.escrow.ContributorClaim(r.Context(), wallet, key); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": "v1", "status": "claimed"})
}

type reclaimRequestBody struct {
	Depositor string `json:"depositor"`
	Platform  string `json:"platform"`
	Repo      string `json:"repo"`
	Issue     string `json:"issue"`
	Token     string `json:"token"`
}

func (h *handler) handleReclaim(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSONBody[reclaimRequestBody](w, r)
	if !ok {
		return
	}
	key, ok := parseKey(w, req.Platform, req.Repo, req.Issue)
	if !ok {
		return
	}
	depositor, ok := parseAddress(w, req.Depositor, "invalid_depositor")
	if !ok {
		return
	}
	tok, ok := parseAddress(w, req.Token, "invalid_token")
	if !ok {
		return
	}

	if err := h.escrow.Reclaim(r.Context(), depositor, key, tok); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": "v1", "status": "reclaimed"})
}

type sweepRequestBody struct {
	Caller   string   `json:"caller"`
	Platform string   `json:"platform"`
	Repo     string   `json:"repo"`
	Issue    string   `json:"issue"`
	Tokens   []string `json:"tokens"`
}

func (h *handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSONBody[sweepRequestBody](w, r)
	if !ok {
		return
	}
	key, ok := parseKey(w, req.Platform, req.Repo, req.Issue)
	if !ok {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "invalid_caller")
	if !ok {
		return
	}
	toks := make([]common.Address, 0, len(req.Tokens))
	for _, t := range req.Tokens {
		tok, ok := parseAddress(w, t, "invalid_token")
		if !ok {
			return
		}
		toks = append(toks, tok)
	}

	if err := h.escrow.SweepBounty(r.Context(), caller, key, toks); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": "v1", "status": "swept"})
}

func (h *handler) handleFeeAccrued(w http.ResponseWriter, r *http.Request) {
	tok, ok := parseAddress(w, r.PathValue("token"), "invalid_token")
	if !ok {
		return
	}
	accrued, err := h.escrow.FeeAccrued(r.Context(), tok)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": "v1",
		"token":   tok.Hex(),
		"accrued": accrued.String(),
	})
}

type withdrawFeesRequestBody struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
}

func (h *handler) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSONBody[withdrawFeesRequestBody](w, r)
	if !ok {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "invalid_caller")
	if !ok {
		return
	}
	tok, ok := parseAddress(w, req.Token, "invalid_token")
	if !ok {
		return
	}

	amount, err := h.escrow.WithdrawFees(r.Context(), caller, tok)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": "v1",
		"token":   tok.Hex(),
		"amount":  amount.String(),
	})
}

func (h *handler) handleDeferredPayout(w http.ResponseWriter, r *http.Request) {
	wallet, ok := parseAddress(w, r.PathValue("wallet"), "invalid_wallet")
	if !ok {
		return
	}
	tok, ok := parseAddress(w, r.PathValue("token"), "invalid_token")
	if !ok {
		return
	}
	parked, err := h.escrow.DeferredPayout(r.Context(), wallet, tok)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": "v1",
		"wallet":  wallet.Hex(),
		"token":   tok.Hex(),
		"amount":  parked.String(),
	})
}

type withdrawDeferredRequestBody struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
}

func (h *handler) handleWithdrawDeferred(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSONBody[withdrawDeferredRequestBody](w, r)
	if !ok {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "invalid_caller")
	if !ok {
		return
	}
	tok, ok := parseAddress(w, req.Token, "invalid_token")
	if !ok {
		return
	}

	amount, err := h.escrow.WithdrawDeferred(r.Context(), caller, tok)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": "v1",
		"token":   tok.Hex(),
		"amount":  amount.String(),
	})
}

func (h *handler) handleIdentityLookup(w http.ResponseWriter, r *http.Request) {
	platform := r.PathValue("platform")
	userID := r.PathValue("userId")
	wallet, err := h.idents.Resolve(r.Context(), platform, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":  "v1",
		"platform": platform,
		"userId":   userID,
		"wallet":   wallet.Hex(),
	})
}

type identityRequestBody struct {
	Wallet    string `json:"wallet"`
	Platform  string `json:"platform"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

func (h *handler) handleIdentityMint(w http.ResponseWriter, r *http.Request) {
	h.handleIdentityWrite(w, r, h.idents.Mint, "minted")
}

func (h *handler) handleIdentityTransfer(w http.ResponseWriter, r *http.Request) {
	h.handleIdentityWrite(w, r, h.idents.Transfer, "transferred")
}

func (h *handler) handleIdentityWrite(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, wallet common.Address, platform, userID, username string, nonce uint64, sig []byte) error,
	status string,
) {
	req, ok := decodeJSONBody[identityRequestBody](w, r)
	if !ok {
		return
	}
	wallet, ok := parseAddress(w, req.Wallet, "invalid_wallet")
	if !ok {
		return
	}
	sig, err := decodeHexBytes(req.Signature)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_signature_encoding")
		return
	}

	if err := op(r.Context(), wallet, req.Platform, req.UserID, req.Username, req.Nonce, sig); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": "v1", "status": status})
}

type bountyStatusBody struct {
	Version      string        `json:"version"`
	BountyID     string        `json:"bountyId"`
	Platform     string        `json:"platform"`
	Repo         string        `json:"repo"`
	Issue        string        `json:"issue"`
	Status       string        `json:"status"`
	Balances     []balanceBody `json:"balances"`
	Contributors []string      `json:"contributors,omitempty"`
	LastPostedAt string        `json:"lastPostedAt,omitempty"`
}

type balanceBody struct {
	Token string `json:"token"`
	Total string `json:"total"`
	Share string `json:"share,omitempty"`
}

// writeServiceError maps the sentinel errors of the escrow and identity
// layers onto stable HTTP codes. Anything unrecognized stays an opaque 500.
func writeServiceError(w http.ResponseWriter, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.sentinel) {
			writeErrorCode(w, m.status, m.code)
			return
		}
	}
	writeErrorCode(w, http.StatusInternalServerError, "internal")
}

var serviceErrors = []struct {
	sentinel error
	status   int
	code     string
}{
	{escrow.ErrPaused, http.StatusServiceUnavailable, "paused"},
	{escrow.ErrIssueClosed, http.StatusConflict, "issue_closed"},
	{escrow.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{escrow.ErrNoBounty, http.StatusNotFound, "no_bounty"},
	{escrow.ErrNothingAccrued, http.StatusNotFound, "nothing_accrued"},
	{escrow.ErrTimeframe, http.StatusConflict, "timeframe_not_reached"},
	{escrow.ErrAlreadyClaimed, http.StatusConflict, "already_claimed"},
	{escrow.ErrInvalidResolver, http.StatusForbidden, "not_resolver"},
	{escrow.ErrIdentityNotFound, http.StatusNotFound, "identity_not_linked"},
	{escrow.ErrNoContributors, http.StatusBadRequest, "no_contributors"},
	{escrow.ErrDuplicateContributor, http.StatusBadRequest, "duplicate_contributor"},
	{escrow.ErrInsufficientFunds, http.StatusConflict, "insufficient_funds"},
	{escrow.ErrPayoutDeferred, http.StatusBadGateway, "payout_deferred"},
	{escrow.ErrNothingDeferred, http.StatusNotFound, "nothing_deferred"},
	{bountyid.ErrInvalidRepo, http.StatusBadRequest, "invalid_repo"},
	{token.ErrNotSupported, http.StatusBadRequest, "unsupported_token"},
	{notary.ErrInvalidSignature, http.StatusForbidden, "invalid_signature"},
	{roles.ErrUnauthorized, http.StatusForbidden, "unauthorized_role"},
	{identity.ErrNotFound, http.StatusNotFound, "identity_not_found"},
	{identity.ErrAlreadyMinted, http.StatusConflict, "already_minted"},
	{identity.ErrWalletBound, http.StatusConflict, "wallet_bound"},
	{identity.ErrInvalidNonce, http.StatusConflict, "invalid_nonce"},
}

func writeErrorCode(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"version": "v1", "error": code})
}

func parseKey(w http.ResponseWriter, platform, repo, issue string) (bountyid.Key, bool) {
	if strings.TrimSpace(platform) == "" || strings.TrimSpace(repo) == "" || strings.TrimSpace(issue) == "" {
		writeErrorCode(w, http.StatusBadRequest, "invalid_bounty_key")
		return bountyid.Key{}, false
	}
	return bountyid.Key{Platform: platform, Repo: repo, Issue: issue}, true
}

func parseAddress(w http.ResponseWriter, s string, code string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		writeErrorCode(w, http.StatusBadRequest, code)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseAmount(w http.ResponseWriter, s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() < 0 {
		writeErrorCode(w, http.StatusBadRequest, "invalid_amount")
		return nil, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSONBody[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var out T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_json")
		return out, false
	}
	if dec.More() {
		writeErrorCode(w, http.StatusBadRequest, "invalid_json")
		return out, false
	}
	return out, true
}

func decodeHexBytes(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "0x")
	raw = strings.TrimPrefix(raw, "0X")
	if raw == "" {
		return nil, errors.New("empty hex value")
	}
	return hex.DecodeString(raw)
}

func checkBearer(header string, wantToken string) bool {
	// Conservative parsing: exact "Bearer <token>" with single space.
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	got := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return got == wantToken
}

func clientIP(r *http.Request) string {
	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xff != "" {
		parts := strings.Split(xff, ",")
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}
	if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
		return xrip
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(remote); err == nil {
		return addr.Addr().String()
	}
	if addr, err := netip.ParseAddr(remote); err == nil {
		return addr.String()
	}
	host := remote
	if i := strings.LastIndex(remote, ":"); i > 0 {
		host = remote[:i]
	}
	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		return addr.String()
	}
	return remote
}

type limiterState struct {
	tokens   float64
	lastAt   time.Time
	lastSeen time.Time
}

type ipRateLimiter struct {
	mu sync.Mutex

	refillPerSecond float64
	burst           float64
	maxTrackedIPs   int
	states          map[string]limiterState
}

func newIPRateLimiter(refillPerSecond float64, burst float64, maxTrackedIPs int) *ipRateLimiter {
	return &ipRateLimiter{
		refillPerSecond: refillPerSecond,
		burst:           burst,
		maxTrackedIPs:   maxTrackedIPs,
		states:          make(map[string]limiterState),
	}
}

func (l *ipRateLimiter) Allow(ip string, now time.Time) bool {
	if l == nil {
		return true
	}
	if ip == "" {
		ip = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[ip]
	if !ok {
		if len(l.states) >= l.maxTrackedIPs {
			l.evictOne()
		}
		l.states[ip] = limiterState{
			tokens:   l.burst - 1,
			lastAt:   now,
			lastSeen: now,
		}
		return true
	}

	elapsed := now.Sub(st.lastAt).Seconds()
	if elapsed > 0 {
		st.tokens += elapsed * l.refillPerSecond
		if st.tokens > l.burst {
			st.tokens = l.burst
		}
	}
	st.lastAt = now
	st.lastSeen = now

	if st.tokens < 1 {
		l.states[ip] = st
		return false
	}
	st.tokens -= 1
	l.states[ip] = st
	return true
}

func (l *ipRateLimiter) evictOne() {
	var oldestIP string
	var oldestAt time.Time
	first := true
	for ip, st := range l.states {
		if first || st.lastSeen.Before(oldestAt) {
			oldestIP = ip
			oldestAt = st.lastSeen
			first = false
		}
	}
	if oldestIP != "" {
		delete(l.states, oldestIP)
	}
}
