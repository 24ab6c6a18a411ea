package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"auth-control-plane/backend/internal/code/domain"
)

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const codeColumns = `subject, code, payload, sent_count, last_send_request_at, created_at`

func scanCode(row pgx.Row) (*domain.ThrottledCode, error) {
	var c domain.ThrottledCode
	err := row.Scan(
		&c.Subject,
		&c.Code,
		&c.Payload,
		&c.SentCount,
		&c.LastSendRequestAt,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *postgresRepository) Upsert(ctx context.Context, c *domain.ThrottledCode) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO throttled_codes (`+codeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (subject) DO UPDATE SET
		   code = EXCLUDED.code,
		   payload = EXCLUDED.payload,
		   sent_count = EXCLUDED.sent_count,
		   last_send_request_at = EXCLUDED.last_send_request_at,
		   created_at = EXCLUDED.created_at`,
		c.Subject, c.Code, c.Payload, c.SentCount, c.LastSendRequestAt, c.CreatedAt)
	return err
}

func (r *postgresRepository) GetBySubject(ctx context.Context, subject string) (*domain.ThrottledCode, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+codeColumns+` FROM throttled_codes WHERE subject = $1`, subject)
	return scanCode(row)
}

func (r *postgresRepository) UpdateResend(ctx context.Context, subject string, sentCount int, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE throttled_codes SET sent_count = $2, last_send_request_at = $3 WHERE subject = $1`,
		subject, sentCount, at)
	return err
}

func (r *postgresRepository) Consume(ctx context.Context, subject, code string) (*domain.ThrottledCode, error) {
	row := r.pool.QueryRow(ctx,
		`DELETE FROM throttled_codes WHERE subject = $1 AND code = $2 RETURNING `+codeColumns,
		subject, code)
	return scanCode(row)
}

func (r *postgresRepository) Delete(ctx context.Context, subject string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM throttled_codes WHERE subject = $1`, subject)
	return err
}
