package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"auth-control-plane/backend/internal/code/domain"
	"auth-control-plane/backend/internal/emaildomain"
	"auth-control-plane/backend/internal/telemetry"
)

// Sentinel errors for the throttled code manager; callers map them to
// retry-later guidance for the end user.
var (
	ErrResendLimitExceeded = errors.New("resend limit exceeded")
	ErrResendTooSoon       = errors.New("resend requested too soon")
	ErrEmailDomainBlocked  = errors.New("email domain is not allowed")
	ErrTooManyRequests     = errors.New("too many code requests")
)

const codeLength = 6

// Repo is the minimal code repository needed by the manager.
type Repo interface {
	Upsert(ctx context.Context, c *domain.ThrottledCode) error
	GetBySubject(ctx context.Context, subject string) (*domain.ThrottledCode, error)
	UpdateResend(ctx context.Context, subject string, sentCount int, at time.Time) error
	Consume(ctx context.Context, subject, code string) (*domain.ThrottledCode, error)
}

// RequestLimiter guards code generation frequency per subject.
type RequestLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Manager implements generation, resend throttling, and single-use
// consumption of confirmation codes.
type Manager struct {
	codes          Repo
	limiter        RequestLimiter         // optional
	blocklist      *emaildomain.Blocklist // optional, email subjects only
	emitter        telemetry.EventEmitter
	resendLimit    int
	resendInterval time.Duration

	now     func() time.Time
	newCode func() (string, error)
}

func NewManager(
	codes Repo,
	limiter RequestLimiter,
	blocklist *emaildomain.Blocklist,
	emitter telemetry.EventEmitter,
	resendLimit int,
	resendInterval time.Duration,
) *Manager {
	return &Manager{
		codes:          codes,
		limiter:        limiter,
		blocklist:      blocklist,
		emitter:        emitter,
		resendLimit:    resendLimit,
		resendInterval: resendInterval,
		now:            time.Now,
		newCode:        func() (string, error) { return generateNumericCode(codeLength) },
	}
}

// GenerateCode creates or overwrites the subject's code record. A new request
// always resets the record; no uniqueness is enforced across subjects.
func (m *Manager) GenerateCode(ctx context.Context, subject, payload string) (string, error) {
	if m.blocklist != nil && m.blocklist.Blocked(subject) {
		return "", ErrEmailDomainBlocked
	}
	if m.limiter != nil {
		ok, err := m.limiter.Allow(ctx, "code:"+subject)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrTooManyRequests
		}
	}

	code, err := m.newCode()
	if err != nil {
		return "", err
	}
	now := m.now().UTC()
	rec := &domain.ThrottledCode{
		Subject:           subject,
		Code:              code,
		Payload:           payload,
		SentCount:         1,
		LastSendRequestAt: now,
		CreatedAt:         now,
	}
	if err := m.codes.Upsert(ctx, rec); err != nil {
		return "", err
	}

	m.emit(ctx, subject, "code_generated")
	return code, nil
}

// GetCode is the resend path. It returns the existing code unchanged; a
// regenerated code would invalidate one the user may already have received
// through a slow channel. Returns "" with no error for an unknown subject.
func (m *Manager) GetCode(ctx context.Context, subject string) (string, error) {
	rec, err := m.codes.GetBySubject(ctx, subject)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", nil
	}

	if rec.SentCount >= m.resendLimit+1 {
		return "", ErrResendLimitExceeded
	}
	now := m.now().UTC()
	if now.Sub(rec.LastSendRequestAt) < m.resendInterval {
		return "", ErrResendTooSoon
	}

	if err := m.codes.UpdateResend(ctx, subject, rec.SentCount+1, now); err != nil {
		return "", err
	}

	m.emit(ctx, subject, "code_resent")
	return rec.Code, nil
}

// Consume atomically deletes the record matching (subject, supplied) and
// returns it so the caller can apply its side effect. Returns nil when
// nothing matched; wrong code and wrong subject are indistinguishable.
func (m *Manager) Consume(ctx context.Context, subject, supplied string) (*domain.ThrottledCode, error) {
	rec, err := m.codes.Consume(ctx, subject, supplied)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	m.emit(ctx, subject, "code_consumed")
	return rec, nil
}

func (m *Manager) emit(ctx context.Context, subject, eventType string) {
	if m.emitter == nil {
		return
	}
	telemetry.EmitAsync(m.emitter, ctx, &telemetry.Event{
		Subject:   subject,
		EventType: eventType,
		Source:    "code-manager",
		CreatedAt: m.now().UTC(),
	})
}

func generateNumericCode(length int) (string, error) {
	const alphabet = "0123456789"
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b), nil
}

// MinPasswordResetTTL is the lowest reset-code lifetime an operator may
// configure.
const MinPasswordResetTTL = 5 * time.Minute

// PasswordResetManager adds an expiry window to consumption: reset codes die
// a fixed time after creation, regardless of resends.
type PasswordResetManager struct {
	*Manager
	ttl time.Duration
}

func NewPasswordResetManager(m *Manager, ttl time.Duration) (*PasswordResetManager, error) {
	if ttl < MinPasswordResetTTL {
		return nil, fmt.Errorf("password reset code ttl %v is below the %v minimum", ttl, MinPasswordResetTTL)
	}
	return &PasswordResetManager{Manager: m, ttl: ttl}, nil
}

// Consume behaves like Manager.Consume but treats an expired record as no
// match. The expired record has already been deleted by then, which is fine:
// it could never be consumed anyway.
func (m *PasswordResetManager) Consume(ctx context.Context, subject, supplied string) (*domain.ThrottledCode, error) {
	rec, err := m.Manager.Consume(ctx, subject, supplied)
	if err != nil || rec == nil {
		return rec, err
	}
	if rec.IsExpired(m.ttl, m.now().UTC()) {
		return nil, nil
	}
	return rec, nil
}
