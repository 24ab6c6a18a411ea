package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"auth-control-plane/backend/internal/session/cache"
	"auth-control-plane/backend/internal/session/domain"
	"auth-control-plane/backend/internal/telemetry"
)

// Sentinel errors for the session manager; callers map them to responses.
var (
	ErrUserNotFound       = errors.New("user does not exist")
	ErrStaleRefreshToken  = errors.New("refresh token is stale; reauthentication required")
	ErrAccessTokenRevoked = errors.New("access token has been revoked")
)

// UserRepo is the minimal user repository needed by the session manager.
type UserRepo interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// SessionRepo is the minimal session repository needed by the session manager.
type SessionRepo interface {
	GetByToken(ctx context.Context, token string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	CreateWithEvictions(ctx context.Context, s *domain.Session, evictTokens []string) error
	UpdateRefresh(ctx context.Context, token, ip string, at time.Time) error
	TouchLastUse(ctx context.Context, token string, at time.Time) error
	Delete(ctx context.Context, token string) error
	DeleteAllByUser(ctx context.Context, userID string) (int64, error)
}

// AccessTokens mints and validates signed access tokens carrying a session
// token ref claim.
type AccessTokens interface {
	IssueAccess(userID, ref string) (string, time.Time, error)
	ValidateAccess(tokenString string) (userID, ref string, err error)
}

// RevocationChecker reports whether an access-token ref has been revoked.
// Nil in cookie mode, where revocation rides on pointer removal.
type RevocationChecker interface {
	IsAccessTokenRevoked(ctx context.Context, userID, tokenRef string) (bool, error)
}

// Manager orchestrates session issuance, lookup, refresh, revocation, and
// per-user session capping across the durable store and the cache strategy.
type Manager struct {
	users       UserRepo
	sessions    SessionRepo
	strategy    cache.Strategy
	pointers    cache.PointerCache // nil in bearer mode
	revocations RevocationChecker  // nil in cookie mode
	tokens      AccessTokens
	emitter     telemetry.EventEmitter
	maxSessions int
	staleAfter  time.Duration

	now      func() time.Time
	newToken func() (string, error)
}

// NewManager returns a session Manager. Exactly one of pointers (cookie mode)
// or revocations (bearer mode) is expected to be non-nil.
func NewManager(
	users UserRepo,
	sessions SessionRepo,
	strategy cache.Strategy,
	pointers cache.PointerCache,
	revocations RevocationChecker,
	tokens AccessTokens,
	emitter telemetry.EventEmitter,
	maxSessions int,
	staleAfter time.Duration,
) *Manager {
	return &Manager{
		users:       users,
		sessions:    sessions,
		strategy:    strategy,
		pointers:    pointers,
		revocations: revocations,
		tokens:      tokens,
		emitter:     emitter,
		maxSessions: maxSessions,
		staleAfter:  staleAfter,
		now:         time.Now,
		newToken:    generateSessionToken,
	}
}

// IssueSession creates a session for the user, evicting the oldest sessions
// when the user is at the cap. Two concurrent calls for the same user may
// transiently exceed the cap; the next issuance evicts the overage. No
// per-user lock is taken.
func (m *Manager) IssueSession(ctx context.Context, userID, ip, userAgent string) (string, error) {
	exists, err := m.users.Exists(ctx, userID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrUserNotFound
	}

	live, err := m.sessions.ListByUser(ctx, userID)
	if err != nil {
		return "", err
	}

	var evicted []*domain.Session
	if len(live) >= m.maxSessions {
		evicted = live[:len(live)-m.maxSessions+1]
	}
	if len(evicted) > 0 {
		// Cache entries go first so a cache hit can never outlive its row.
		if err := m.strategy.RemoveMany(ctx, evicted); err != nil {
			return "", err
		}
	}

	token, err := m.newToken()
	if err != nil {
		return "", err
	}
	now := m.now().UTC()
	device := domain.ParseUserAgent(userAgent)
	sess := &domain.Session{
		Token:         token,
		UserID:        userID,
		CreateIP:      ip,
		LastRefreshIP: ip,
		Browser:       device.Browser,
		OS:            device.OS,
		OSVersion:     device.OSVersion,
		LastUseAt:     now,
		CreatedAt:     now,
	}

	evictTokens := make([]string, 0, len(evicted))
	for _, s := range evicted {
		evictTokens = append(evictTokens, s.Token)
	}
	if err := m.sessions.CreateWithEvictions(ctx, sess, evictTokens); err != nil {
		return "", err
	}

	if m.pointers != nil {
		// Best effort; a miss falls back to the durable store.
		_ = m.pointers.Set(ctx, token, userID)
	}

	m.emit(ctx, userID, token, "session_issued", map[string]any{
		"ip":      ip,
		"evicted": len(evicted),
	})
	return token, nil
}

// GetUserIDFromSession resolves a session id to its user id, cache first.
// Returns "" with no error when the session does not exist.
func (m *Manager) GetUserIDFromSession(ctx context.Context, sessionID string) (string, error) {
	if m.pointers != nil {
		userID, ok, err := m.pointers.GetUserID(ctx, sessionID)
		if err == nil && ok {
			return userID, nil
		}
		// Read failures degrade to the durable fallback.
	}

	sess, err := m.sessions.GetByToken(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", nil
	}

	if m.pointers != nil {
		_ = m.pointers.Set(ctx, sess.Token, sess.UserID)
	}
	if err := m.sessions.TouchLastUse(ctx, sess.Token, m.now().UTC()); err != nil {
		return "", err
	}
	return sess.UserID, nil
}

// RefreshSession validates and extends a session against the durable store
// only; the cache is never authoritative for refresh. A session whose last
// use is older than the staleness threshold is deleted and reported as stale,
// distinct from not-found. Returns nil, nil when the token is unknown.
func (m *Manager) RefreshSession(ctx context.Context, token, ip string) (*domain.Session, error) {
	sess, err := m.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	now := m.now().UTC()
	if now.Sub(sess.LastUseAt) > m.staleAfter {
		if err := m.strategy.Remove(ctx, sess); err != nil {
			return nil, err
		}
		if err := m.sessions.Delete(ctx, token); err != nil {
			return nil, err
		}
		m.emit(ctx, sess.UserID, token, "session_stale", nil)
		return nil, ErrStaleRefreshToken
	}

	if err := m.sessions.UpdateRefresh(ctx, token, ip, now); err != nil {
		return nil, err
	}
	sess.LastRefreshIP = ip
	sess.LastUseAt = now

	m.emit(ctx, sess.UserID, token, "session_refreshed", map[string]any{"ip": ip})
	return sess, nil
}

// RevokeSession revokes a single session: cache state (or revocation markers)
// is invalidated before the row is deleted, because marker sizing needs the
// row's lastUseAt. Returns nil, nil when the token is unknown.
func (m *Manager) RevokeSession(ctx context.Context, token string) (*domain.Session, error) {
	sess, err := m.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	if err := m.strategy.Remove(ctx, sess); err != nil {
		return nil, err
	}
	if err := m.sessions.Delete(ctx, token); err != nil {
		return nil, err
	}

	m.emit(ctx, sess.UserID, token, "session_revoked", nil)
	return sess, nil
}

// RevokeAllSessions revokes every session the user has. Returns false when
// the user had none, which is a no-op rather than an error.
func (m *Manager) RevokeAllSessions(ctx context.Context, userID string) (bool, error) {
	live, err := m.sessions.ListByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(live) == 0 {
		return false, nil
	}

	if err := m.strategy.RemoveMany(ctx, live); err != nil {
		return false, err
	}
	if _, err := m.sessions.DeleteAllByUser(ctx, userID); err != nil {
		return false, err
	}

	m.emit(ctx, userID, "", "session_revoked_all", map[string]any{"count": len(live)})
	return true, nil
}

// IssueAccessToken mints a signed access token for the session, embedding the
// session's token ref so later revocation can reach it. Returns "" with no
// error when the session does not exist.
func (m *Manager) IssueAccessToken(ctx context.Context, sessionToken string) (string, time.Time, error) {
	userID, err := m.GetUserIDFromSession(ctx, sessionToken)
	if err != nil {
		return "", time.Time{}, err
	}
	if userID == "" {
		return "", time.Time{}, nil
	}
	return m.tokens.IssueAccess(userID, cache.TokenRef(sessionToken))
}

// VerifyAccessToken validates a signed access token and, in bearer mode,
// rejects it when a revocation marker exists for its ref.
func (m *Manager) VerifyAccessToken(ctx context.Context, tokenString string) (string, error) {
	userID, ref, err := m.tokens.ValidateAccess(tokenString)
	if err != nil {
		return "", err
	}
	if m.revocations != nil {
		revoked, err := m.revocations.IsAccessTokenRevoked(ctx, userID, ref)
		if err != nil {
			return "", err
		}
		if revoked {
			return "", ErrAccessTokenRevoked
		}
	}
	return userID, nil
}

func (m *Manager) emit(ctx context.Context, userID, sessionID, eventType string, metadata map[string]any) {
	if m.emitter == nil {
		return
	}
	var payload []byte
	if metadata != nil {
		payload, _ = json.Marshal(metadata)
	}
	telemetry.EmitAsync(m.emitter, ctx, &telemetry.Event{
		UserID:    userID,
		SessionID: sessionID,
		EventType: eventType,
		Source:    "session-manager",
		Metadata:  payload,
		CreatedAt: m.now().UTC(),
	})
}

func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
