package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"auth-control-plane/backend/internal/session/domain"
)

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const sessionColumns = `token, user_id, create_ip, last_refresh_ip, browser, os, os_version, last_use_at, created_at`

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.Token,
		&s.UserID,
		&s.CreateIP,
		&s.LastRefreshIP,
		&s.Browser,
		&s.OS,
		&s.OSVersion,
		&s.LastUseAt,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *postgresRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE token = $1`, token)
	return scanSession(row)
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY last_use_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		var s domain.Session
		err := rows.Scan(
			&s.Token,
			&s.UserID,
			&s.CreateIP,
			&s.LastRefreshIP,
			&s.Browser,
			&s.OS,
			&s.OSVersion,
			&s.LastUseAt,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

func (r *postgresRepository) CreateWithEvictions(ctx context.Context, s *domain.Session, evictTokens []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin session create: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(evictTokens) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE token = ANY($1)`, evictTokens); err != nil {
			return fmt.Errorf("evict sessions: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.Token, s.UserID, s.CreateIP, s.LastRefreshIP, s.Browser, s.OS, s.OSVersion, s.LastUseAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *postgresRepository) UpdateRefresh(ctx context.Context, token, ip string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET last_refresh_ip = $2, last_use_at = $3 WHERE token = $1`, token, ip, at)
	return err
}

func (r *postgresRepository) TouchLastUse(ctx context.Context, token string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET last_use_at = $2 WHERE token = $1`, token, at)
	return err
}

func (r *postgresRepository) Delete(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

func (r *postgresRepository) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
