package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/gitgig-io/ragnar/internal/claimpolicy"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrInvalidConfig = errors.New("claimpolicy/postgres: invalid config")

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
		return fmt.Errorf("claimpolicy/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) ClaimedTotal(ctx context.Context, platform, org, userID string) (*big.Int, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	var claimedStr string
	err := s.pool.QueryRow(ctx, `
		SELECT claimed::text
		FROM claim_totals
		WHERE platform = $1 AND org = $2 AND user_id = $3
	`, platform, org, userID).Scan(&claimedStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("claimpolicy/postgres: claimed total: %w", err)
	}
	out, ok := new(big.Int).SetString(claimedStr, 10)
	if !ok {
		return nil, fmt.Errorf("claimpolicy/postgres: bad numeric %q", claimedStr)
	}
	return out, nil
}

func (s *Store) AddClaimed(ctx context.Context, platform, org, userID string, delta *big.Int) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO claim_totals (platform, org, user_id, claimed)
		VALUES ($1, $2, $3, $4::numeric)
		ON CONFLICT (platform, org, user_id)
		DO UPDATE SET claimed = claim_totals.claimed + EXCLUDED.claimed, updated_at = now()
	`, platform, org, userID, delta.String())
	if err != nil {
		return fmt.Errorf("claimpolicy/postgres: add claimed: %w", err)
	}
	return nil
}

func (s *Store) IsKnown(ctx context.Context, platform, org, userID string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	var one int
	err := s.pool.QueryRow(ctx, `
		SELECT 1 FROM known_users WHERE platform = $1 AND org = $2 AND user_id = $3
	`, platform, org, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("claimpolicy/postgres: is known: %w", err)
	}
	return true, nil
}

func (s *Store) MarkKnown(ctx context.Context, platform, org, userID string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO known_users (platform, org, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (platform, org, user_id) DO NOTHING
	`, platform, org, userID)
	if err != nil {
		return fmt.Errorf("claimpolicy/postgres: mark known: %w", err)
	}
	return nil
}

var _ claimpolicy.Store = (*Store)(nil)
