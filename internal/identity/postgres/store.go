// Package postgres persists identity links. A unique index on wallet keeps
// the reverse resolution one-to-one.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gitgig-io/ragnar/internal/identity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrInvalidConfig = errors.New("identity/postgres: invalid config")

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
		return fmt.Errorf("identity/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, platform, userID string) (identity.Link, error) {
	if s == nil || s.pool == nil {
		return identity.Link{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	var (
		username  string
		walletRaw []byte
		nonce     int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT username, wallet, nonce
		FROM identity_links
		WHERE platform = $1 AND user_id = $2
	`, platform, userID).Scan(&username, &walletRaw, &nonce)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.Link{}, identity.ErrNotFound
		}
		return identity.Link{}, fmt.Errorf("identity/postgres: get: %w", err)
	}
	if nonce < 0 {
		return identity.Link{}, fmt.Errorf("identity/postgres: negative nonce in db")
	}
	return identity.Link{
		Platform: platform,
		UserID:   userID,
		Username: username,
		Wallet:   common.BytesToAddress(walletRaw),
		Nonce:    uint64(nonce),
	}, nil
}

func (s *Store) GetByWallet(ctx context.Context, wallet common.Address) (identity.Link, error) {
	if s == nil || s.pool == nil {
		return identity.Link{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	var (
		platform string
		userID   string
		username string
		nonce    int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT platform, user_id, username, nonce
		FROM identity_links
		WHERE wallet = $1
	`, wallet[:]).Scan(&platform, &userID, &username, &nonce)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.Link{}, identity.ErrNotFound
		}
		return identity.Link{}, fmt.Errorf("identity/postgres: get by wallet: %w", err)
	}
	if nonce < 0 {
		return identity.Link{}, fmt.Errorf("identity/postgres: negative nonce in db")
	}
	return identity.Link{
		Platform: platform,
		UserID:   userID,
		Username: username,
		Wallet:   wallet,
		Nonce:    uint64(nonce),
	}, nil
}

func (s *Store) Create(ctx context.Context, l identity.Link) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if l.Nonce > math.MaxInt64 {
		return fmt.Errorf("%w: nonce too large", identity.ErrInvalidNonce)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO identity_links (platform, user_id, username, wallet, nonce)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (platform, user_id) DO NOTHING
	`, l.Platform, l.UserID, l.Username, l.Wallet[:], int64(l.Nonce))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", identity.ErrWalletBound, l.Wallet)
		}
		return fmt.Errorf("identity/postgres: create: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", identity.ErrAlreadyMinted, l.Platform, l.UserID)
	}
	return nil
}

func (s *Store) Move(ctx context.Context, platform, userID string, newWallet common.Address, newNonce uint64) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if newNonce > math.MaxInt64 {
		return fmt.Errorf("%w: nonce too large", identity.ErrInvalidNonce)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE identity_links
		SET wallet = $3, nonce = $4, updated_at = now()
		WHERE platform = $1 AND user_id = $2
	`, platform, userID, newWallet[:], int64(newNonce))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", identity.ErrWalletBound, newWallet)
		}
		return fmt.Errorf("identity/postgres: move: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrNotFound
	}
	return nil
}

var _ identity.Store = (*Store)(nil)
