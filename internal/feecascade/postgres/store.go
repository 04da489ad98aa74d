package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gitgig-io/ragnar/internal/feecascade"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrInvalidConfig = errors.New("feecascade/postgres: invalid config")

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
		return fmt.Errorf("feecascade/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) GetFee(ctx context.Context, sc feecascade.Scope) (uint8, bool, error) {
	if s == nil || s.pool == nil {
		return 0, false, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	var fee int16
	err := s.pool.QueryRow(ctx, `
		SELECT fee
		FROM fee_overrides
		WHERE level = $1 AND platform = $2 AND owner = $3 AND repo = $4 AND issue = $5
	`, int16(sc.Level), sc.Platform, sc.Owner, sc.Repo, sc.Issue).Scan(&fee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("feecascade/postgres: get fee: %w", err)
	}
	return uint8(fee), true, nil
}

func (s *Store) SetFee(ctx context.Context, sc feecascade.Scope, fee uint8) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO fee_overrides (level, platform, owner, repo, issue, fee)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (level, platform, owner, repo, issue)
		DO UPDATE SET fee = EXCLUDED.fee, updated_at = now()
	`, int16(sc.Level), sc.Platform, sc.Owner, sc.Repo, sc.Issue, int16(fee))
	if err != nil {
		return fmt.Errorf("feecascade/postgres: set fee: %w", err)
	}
	return nil
}

var _ feecascade.Store = (*Store)(nil)
