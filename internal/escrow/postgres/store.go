// Package postgres persists the bounty ledger. Mutations that touch more than
// one row run in a transaction with the bounty row locked FOR UPDATE; the
// engine already serializes calls, so the locking only defends multi-instance
// deployments sharing one database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gitgig-io/ragnar/internal/bountyid"
	"github.com/gitgig-io/ragnar/internal/escrow"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrInvalidConfig = errors.New("escrow/postgres: invalid config")

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrInvalidConfig)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("escrow/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key bountyid.Key) (escrow.Bounty, error) {
	if s == nil || s.pool == nil {
		return escrow.Bounty{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	id := key.ID()

	out := escrow.Bounty{Key: key, Status: escrow.StatusOpen}

	var (
		status       int16
		lastPostedAt time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT status, last_posted_at
		FROM bounties
		WHERE bounty_id = $1
	`, id[:]).Scan(&status, &lastPostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return out, nil
		}
		return escrow.Bounty{}, fmt.Errorf("escrow/postgres: get bounty: %w", err)
	}
	out.Status = escrow.Status(status)
	out.LastPostedAt = lastPostedAt

	rows, err := s.pool.Query(ctx, `
		SELECT token, total::text, share::text
		FROM bounty_balances
		WHERE bounty_id = $1 AND total > 0
		ORDER BY created_at ASC, token ASC
	`, id[:])
	if err != nil {
		return escrow.Bounty{}, fmt.Errorf("escrow/postgres: get balances: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			tokRaw   []byte
			totalStr string
			shareStr string
		)
		if err := rows.Scan(&tokRaw, &totalStr, &shareStr); err != nil {
			return escrow.Bounty{}, fmt.Errorf("escrow/postgres: scan balance row: %w", err)
		}
		total, err := parseAmount(totalStr)
		if err != nil {
			return escrow.Bounty{}, err
		}
		share, err := parseAmount(shareStr)
		if err != nil {
			return escrow.Bounty{}, err
		}
		out.Balances = append(out.Balances, escrow.TokenBalance{
			Token: common.BytesToAddress(tokRaw),
			Total: total,
			Share: share,
		})
	}
	if err := rows.Err(); err != nil {
		return escrow.Bounty{}, fmt.Errorf("escrow/postgres: balance rows: %w", err)
	}

	crows, err := s.pool.Query(ctx, `
		SELECT user_id
		FROM bounty_contributors
		WHERE bounty_id = $1
		ORDER BY ordinal ASC
	`, id[:])
	if err != nil {
		return escrow.Bounty{}, fmt.Errorf("escrow/postgres: get contributors: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var userID string
		if err := crows.Scan(&userID); err != nil {
			return escrow.Bounty{}, fmt.Errorf("escrow/postgres: scan contributor row: %w", err)
		}
		out.Contributors = append(out.Contributors, userID)
	}
	if err := crows.Err(); err != nil {
		return escrow.Bounty{}, fmt.Errorf("escrow/postgres: contributor rows: %w", err)
	}

	return out, nil
}

func (s *Store) DepositorPosition(ctx context.Context, key bountyid.Key, token, depositor common.Address) (escrow.DepositorPosition, error) {
	if s == nil || s.pool == nil {
		return escrow.DepositorPosition{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	id := key.ID()

	var (
		amountStr string
		postedAt  time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT amount::text, posted_at
		FROM bounty_positions
		WHERE bounty_id = $1 AND token = $2 AND depositor = $3 AND amount > 0
	`, id[:], token[:], depositor[:]).Scan(&amountStr, &postedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return escrow.DepositorPosition{}, fmt.Errorf("%w: %s has no position in %s on %s", escrow.ErrNoBounty, depositor, token, key)
		}
		return escrow.DepositorPosition{}, fmt.Errorf("escrow/postgres: get position: %w", err)
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		return escrow.DepositorPosition{}, err
	}
	return escrow.DepositorPosition{Amount: amount, PostedAt: postedAt}, nil
}

func (s *Store) HasClaimed(ctx context.Context, key bountyid.Key, userID string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	id := key.ID()

	var claimed bool
	err := s.pool.QueryRow(ctx, `
		SELECT claimed
		FROM bounty_contributors
		WHERE bounty_id = $1 AND user_id = $2
	`, id[:], userID).Scan(&claimed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("escrow/postgres: has claimed: %w", err)
	}
	return claimed, nil
}

func (s *Store) CreditDeposit(ctx context.Context, key bountyid.Key, token, depositor common.Address, net, fee *big.Int, at time.Time) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	id := key.ID()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("escrow/postgres: begin deposit tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO bounties (bounty_id, platform, repo, issue, status, last_posted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (bounty_id) DO NOTHING
	`, id[:], key.Platform, key.Repo, key.Issue, int16(escrow.StatusOpen), at)
	if err != nil {
		return fmt.Errorf("escrow/postgres: insert bounty: %w", err)
	}

	status, err := lockBounty(ctx, tx, id)
	if err != nil {
		return err
	}
	if escrow.Status(status) != escrow.StatusOpen {
		return fmt.Errorf("%w: %s", escrow.ErrIssueClosed, key)
	}

	_, err = tx.Exec(ctx, `
		UPDATE bounties SET last_posted_at = $2, updated_at = now() WHERE bounty_id = $1
	`, id[:], at)
	if err != nil {
		return fmt.Errorf("escrow/postgres: touch bounty: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bounty_balances (bounty_id, token, total)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (bounty_id, token)
		DO UPDATE SET total = bounty_balances.total + EXCLUDED.total, updated_at = now()
	`, id[:], token[:], net.String())
	if err != nil {
		return fmt.Errorf("escrow/postgres: credit balance: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bounty_positions (bounty_id, token, depositor, amount, posted_at)
		VALUES ($1, $2, $3, $4::numeric, $5)
		ON CONFLICT (bounty_id, token, depositor)
		DO UPDATE SET
			amount = bounty_positions.amount + EXCLUDED.amount,
			posted_at = EXCLUDED.posted_at,
			updated_at = now()
	`, id[:], token[:], depositor[:], net.String(), at)
	if err != nil {
		return fmt.Errorf("escrow/postgres: credit position: %w", err)
	}

	if fee.Sign() > 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO fee_pools (token, amount)
			VALUES ($1, $2::numeric)
			ON CONFLICT (token)
			DO UPDATE SET amount = fee_pools.amount + EXCLUDED.amount, updated_at = now()
		`, token[:], fee.String())
		if err != nil {
			return fmt.Errorf("escrow/postgres: accrue fee: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("escrow/postgres: commit deposit tx: %w", err)
	}
	return nil
}

func (s *Store) UndoDeposit(ctx context.Context, key bountyid.Key, token, depositor common.Address, net, fee *big.Int) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	id := key.ID()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("escrow/postgres: begin undo tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockBounty(ctx, tx, id); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bounty_balances
		SET total = total - $3::numeric, updated_at = now()
		WHERE bounty_id = $1 AND token = $2 AND total >= $3::numeric
	`, id[:], token[:], net.String())
	if err != nil {
		return fmt.Errorf("escrow/postgres: undo balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: undo exceeds total", escrow.ErrInsufficientFunds)
	}

	tag, err = tx.Exec(ctx, `
		UPDATE bounty_positions
		SET amount = amount - $4::numeric, updated_at = now()
		WHERE bounty_id = $1 AND token = $2 AND depositor = $3 AND amount >= $4::numeric
	`, id[:], token[:], depositor[:], net.String())
	if err != nil {
		return fmt.Errorf("escrow/postgres: undo position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: undo exceeds position", escrow.ErrInsufficientFunds)
	}

	if fee.Sign() > 0 {
		tag, err = tx.Exec(ctx, `
			UPDATE fee_pools
			SET amount = amount - $2::numeric, updated_at = now()
			WHERE token = $1 AND amount >= $2::numeric
		`, token[:], fee.String())
		if err != nil {
			return fmt.Errorf("escrow/postgres: undo fee: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: undo exceeds fee pool", escrow.ErrInsufficientFunds)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("escrow/postgres: commit undo tx: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context, key bountyid.Key, contributors []string, cuts, shares []escrow.TokenAmount) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	id := key.ID()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("escrow/postgres: begin close tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	status, err := lockBounty(ctx, tx, id)
	if err != nil {
		return err
	}
	if escrow.Status(status) != escrow.StatusOpen {
		return fmt.Errorf("%w: %s", escrow.ErrIssueClosed, key)
	}

	for _, c := range cuts {
		tag, err := tx.Exec(ctx, `
			UPDATE bounty_balances
			SET total = total - $3::numeric, updated_at = now()
			WHERE bounty_id = $1 AND token = $2 AND total >= $3::numeric
		`, id[:], c.Token[:], c.Amount.String())
		if err != nil {
			return fmt.Errorf("escrow/postgres: debit cut: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: cut %v of %s exceeds total", escrow.ErrInsufficientFunds, c.Amount, c.Token)
		}
	}

	for _, sh := range shares {
		_, err := tx.Exec(ctx, `
			UPDATE bounty_balances
			SET share = $3::numeric, updated_at = now()
			WHERE bounty_id = $1 AND token = $2
		`, id[:], sh.Token[:], sh.Amount.String())
		if err != nil {
			return fmt.Errorf("escrow/postgres: fix share: %w", err)
		}
	}

	for i, userID := range contributors {
		_, err := tx.Exec(ctx, `
			INSERT INTO bounty_contributors (bounty_id, user_id, ordinal)
			VALUES ($1, $2, $3)
		`, id[:], userID, i)
		if err != nil {
			return fmt.Errorf("escrow/postgres: insert contributor: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE bounties SET status = $2, updated_at = now() WHERE bounty_id = $1
	`, id[:], int16(escrow.StatusClosed))
	if err != nil {
		return fmt.Errorf("escrow/postgres: close bounty: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("escrow/postgres: commit close tx: %w", err)
	}
	return nil
}

func (s *Store) SettleContributor(ctx context.Context, key bountyid.Key, userID string, payouts []escrow.TokenAmount) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	id := key.ID()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("escrow/postgres: begin settle tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockBounty(ctx, tx, id); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bounty_contributors
		SET claimed = true, claimed_at = now()
		WHERE bounty_id = $1 AND user_id = $2 AND claimed = false
	`, id[:], userID)
	if err != nil {
		return fmt.Errorf("escrow/postgres: mark claimed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s on %s", escrow.ErrAlreadyClaimed, userID, key)
	}

	for _, p := range payouts {
		tag, err := tx.Exec(ctx, `
			UPDATE bounty_balances
			SET total = total - $3::numeric, updated_at = now()
			WHERE bounty_id = $1 AND token = $2 AND total >= $3::numeric
		`, id[:], p.Token[:], p.Amount.String())
		if err != nil {
			return fmt.Errorf("escrow/postgres: debit payout: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: payout %v of %s exceeds total", escrow.ErrInsufficientFunds, p.Amount, p.Token)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("escrow/postgres: commit settle tx: %w", err)
	}
	return nil
}

func (s *Store) DebitDepositor(ctx context.Context, key bountyid.Key, token, depositor common.Address) (*big.Int, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	id := key.ID()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("escrow/postgres: begin debit tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockBounty(ctx, tx, id); err != nil {
		return nil, err
	}

	var amountStr string
	err = tx.QueryRow(ctx, `
		SELECT amount::text
		FROM bounty_positions
		WHERE bounty_id = $1 AND token = $2 AND depositor = $3 AND amount > 0
		FOR UPDATE
	`, id[:], token[:], depositor[:]).Scan(&amountStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s has no position in %s on %s", escrow.ErrNoBounty, depositor, token, key)
		}
		return nil, fmt.Errorf("escrow/postgres: read position: %w", err)
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE bounty_positions
		SET amount = 0, updated_at = now()
		WHERE bounty_id = $1 AND token = $2 AND depositor = $3
	`, id[:], token[:], depositor[:])
	if err != nil {
		return nil, fmt.Errorf("escrow/postgres: debit position: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bounty_balances
		SET total = total - $3::numeric, updated_at = now()
		WHERE bounty_id = $1 AND token = $2 AND total >= $3::numeric
	`, id[:], token[:], amount.String())
	if err != nil {
		return nil, fmt.Errorf("escrow/postgres: debit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: debit %v of %s exceeds total", escrow.ErrInsufficientFunds, amount, token)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("escrow/postgres: commit debit tx: %w", err)
	}
	return amount, nil
}

func (s *Store) SweepTokens(ctx context.Context, key bountyid.Key, tokens []common.Address) ([]escrow.TokenAmount, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	id := key.ID()

	rawTokens := make([][]byte, 0, len(tokens))
	for _, tok := range tokens {
		raw := make([]byte, 20)
		copy(raw, tok[:])
		rawTokens = append(rawTokens, raw)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("escrow/postgres: begin sweep tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockBounty(ctx, tx, id); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT token, total::text
		FROM bounty_balances
		WHERE bounty_id = $1 AND token = ANY($2) AND total > 0
		FOR UPDATE
	`, id[:], rawTokens)
	if err != nil {
		return nil, fmt.Errorf("escrow/postgres: read sweep balances: %w", err)
	}
	defer rows.Close()

	swept := make(map[common.Address]*big.Int, len(tokens))
	for rows.Next() {
		var (
			tokRaw    []byte
			amountStr string
		)
		if err := rows.Scan(&tokRaw, &amountStr); err != nil {
			return nil, fmt.Errorf("escrow/postgres: scan sweep row: %w", err)
		}
		amount, err := parseAmount(amountStr)
		if err != nil {
			return nil, err
		}
		swept[common.BytesToAddress(tokRaw)] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escrow/postgres: sweep rows: %w", err)
	}
	if len(swept) == 0 {
		return nil, fmt.Errorf("%w: nothing to sweep on %s", escrow.ErrNoBounty, key)
	}

	_, err = tx.Exec(ctx, `
		UPDATE bounty_balances
		SET total = 0, updated_at = now()
		WHERE bounty_id = $1 AND token = ANY($2)
	`, id[:], rawTokens)
	if err != nil {
		return nil, fmt.Errorf("escrow/postgres: sweep balances: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("escrow/postgres: commit sweep tx: %w", err)
	}

	// Preserve caller token order.
	out := make([]escrow.TokenAmount, 0, len(swept))
	for _, tok := range tokens {
		if amount, ok := swept[tok]; ok {
			out = append(out, escrow.TokenAmount{Token: tok, Amount: amount})
		}
	}
	return out, nil
}

func (s *Store) FeeAccrued(ctx context.Context, token common.Address) (*big.Int, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	var amountStr string
	err := s.pool.QueryRow(ctx, `
		SELECT amount::text FROM fee_pools WHERE token = $1
	`, token[:]).Scan(&amountStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("escrow/postgres: fee accrued: %w", err)
	}
	return parseAmount(amountStr)
}

func (s *Store) DrainFees(ctx context.Context, token common.Address) (*big.Int, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("escrow/postgres: begin drain tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var amountStr string
	err = tx.QueryRow(ctx, `
		SELECT amount::text FROM fee_pools WHERE token = $1 AND amount > 0 FOR UPDATE
	`, token[:]).Scan(&amountStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", escrow.ErrNothingAccrued, token)
		}
		return nil, fmt.Errorf("escrow/postgres: read fee pool: %w", err)
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE fee_pools SET amount = 0, updated_at = now() WHERE token = $1
	`, token[:])
	if err != nil {
		return nil, fmt.Errorf("escrow/postgres: drain fees: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("escrow/postgres: commit drain tx: %w", err)
	}
	return amount, nil
}

func (s *Store) CreditDeferred(ctx context.Context, wallet, token common.Address, amount *big.Int) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deferred_payouts (wallet, token, amount)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (wallet, token)
		DO UPDATE SET amount = deferred_payouts.amount + EXCLUDED.amount, updated_at = now()
	`, wallet[:], token[:], amount.String())
	if err != nil {
		return fmt.Errorf("escrow/postgres: credit deferred: %w", err)
	}
	return nil
}

func (s *Store) DeferredPayout(ctx context.Context, wallet, token common.Address) (*big.Int, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	var amountStr string
	err := s.pool.QueryRow(ctx, `
		SELECT amount::text FROM deferred_payouts WHERE wallet = $1 AND token = $2
	`, wallet[:], token[:]).Scan(&amountStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("escrow/postgres: deferred payout: %w", err)
	}
	return parseAmount(amountStr)
}

func (s *Store) DrainDeferred(ctx context.Context, wallet, token common.Address) (*big.Int, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("escrow/postgres: begin deferred drain tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var amountStr string
	err = tx.QueryRow(ctx, `
		SELECT amount::text FROM deferred_payouts
		WHERE wallet = $1 AND token = $2 AND amount > 0
		FOR UPDATE
	`, wallet[:], token[:]).Scan(&amountStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s in %s", escrow.ErrNothingDeferred, wallet, token)
		}
		return nil, fmt.Errorf("escrow/postgres: read deferred payout: %w", err)
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE deferred_payouts SET amount = 0, updated_at = now()
		WHERE wallet = $1 AND token = $2
	`, wallet[:], token[:])
	if err != nil {
		return nil, fmt.Errorf("escrow/postgres: drain deferred payout: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("escrow/postgres: commit deferred drain tx: %w", err)
	}
	return amount, nil
}

// lockBounty takes the bounty row lock that serializes writers and returns
// the current status. ErrNoBounty when the row does not exist.
func lockBounty(ctx context.Context, tx pgx.Tx, id [32]byte) (int16, error) {
	var status int16
	err := tx.QueryRow(ctx, `
		SELECT status FROM bounties WHERE bounty_id = $1 FOR UPDATE
	`, id[:]).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: unknown bounty %x", escrow.ErrNoBounty, id)
		}
		return 0, fmt.Errorf("escrow/postgres: lock bounty: %w", err)
	}
	return status, nil
}

func parseAmount(s string) (*big.Int, error) {
	out, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("escrow/postgres: bad numeric %q", s)
	}
	return out, nil
}

var _ escrow.Store = (*Store)(nil)
