package repository

import (
	"context"
	"time"

	"auth-control-plane/backend/internal/code/domain"
)

// Repository persists throttled codes. One row per subject.
type Repository interface {
	// Upsert creates or overwrites the subject's code record.
	Upsert(ctx context.Context, c *domain.ThrottledCode) error
	// GetBySubject returns the subject's record, or nil if none exists.
	GetBySubject(ctx context.Context, subject string) (*domain.ThrottledCode, error)
	// UpdateResend persists a resend: new sent count, new request time.
	UpdateResend(ctx context.Context, subject string, sentCount int, at time.Time) error
	// Consume atomically deletes the record matching (subject, code) and
	// returns it, or nil if no record matched.
	Consume(ctx context.Context, subject, code string) (*domain.ThrottledCode, error)
	// Delete removes the subject's record regardless of code.
	Delete(ctx context.Context, subject string) error
}
