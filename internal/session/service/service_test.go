package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"auth-control-plane/backend/internal/session/cache"
	"auth-control-plane/backend/internal/session/domain"
)

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]bool
}

func (r *memUserRepo) Exists(ctx context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[userID], nil
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: map[string]*domain.Session{}}
}

func (r *memSessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUseAt.Before(out[j].LastUseAt) })
	return out, nil
}

func (r *memSessionRepo) CreateWithEvictions(ctx context.Context, s *domain.Session, evictTokens []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range evictTokens {
		delete(r.sessions, t)
	}
	cp := *s
	r.sessions[s.Token] = &cp
	return nil
}

func (r *memSessionRepo) UpdateRefresh(ctx context.Context, token, ip string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[token]; ok {
		s.LastRefreshIP = ip
		s.LastUseAt = at
	}
	return nil
}

func (r *memSessionRepo) TouchLastUse(ctx context.Context, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[token]; ok {
		s.LastUseAt = at
	}
	return nil
}

func (r *memSessionRepo) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
	return nil
}

func (r *memSessionRepo) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for t, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, t)
			n++
		}
	}
	return n, nil
}

// memPointerCache mimics the cookie strategy: one cached session per user.
type memPointerCache struct {
	mu       sync.Mutex
	pointers map[string]string // sessionID -> userID
	byUser   map[string]string // userID -> sessionID
	removed  []string
}

func newMemPointerCache() *memPointerCache {
	return &memPointerCache{pointers: map[string]string{}, byUser: map[string]string{}}
}

func (c *memPointerCache) Set(ctx context.Context, sessionID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.byUser[userID]; ok && prev != sessionID {
		delete(c.pointers, prev)
	}
	c.pointers[sessionID] = userID
	c.byUser[userID] = sessionID
	return nil
}

func (c *memPointerCache) GetUserID(ctx context.Context, sessionID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	userID, ok := c.pointers[sessionID]
	return userID, ok, nil
}

func (c *memPointerCache) Remove(ctx context.Context, sess *domain.Session) error {
	return c.RemoveByIDs(ctx, []string{sess.Token})
}

func (c *memPointerCache) RemoveMany(ctx context.Context, sessions []*domain.Session) error {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.Token)
	}
	return c.RemoveByIDs(ctx, ids)
}

func (c *memPointerCache) RemoveByIDs(ctx context.Context, sessionIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range sessionIDs {
		if uid, ok := c.pointers[id]; ok && c.byUser[uid] == id {
			delete(c.byUser, uid)
		}
		delete(c.pointers, id)
		c.removed = append(c.removed, id)
	}
	return nil
}

// recordingStrategy records removals, standing in for the bearer variant.
type recordingStrategy struct {
	mu      sync.Mutex
	removed []string
}

func (s *recordingStrategy) Remove(ctx context.Context, sess *domain.Session) error {
	return s.RemoveMany(ctx, []*domain.Session{sess})
}

func (s *recordingStrategy) RemoveMany(ctx context.Context, sessions []*domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range sessions {
		s.removed = append(s.removed, sess.Token)
	}
	return nil
}

type stubAccessTokens struct {
	issuedRef string
	validUser string
	validRef  string
	validErr  error
}

func (t *stubAccessTokens) IssueAccess(userID, ref string) (string, time.Time, error) {
	t.issuedRef = ref
	return "access-" + userID, time.Now().Add(15 * time.Minute), nil
}

func (t *stubAccessTokens) ValidateAccess(tokenString string) (string, string, error) {
	if t.validErr != nil {
		return "", "", t.validErr
	}
	return t.validUser, t.validRef, nil
}

type stubRevocations struct {
	revoked map[string]bool
}

func (r *stubRevocations) IsAccessTokenRevoked(ctx context.Context, userID, tokenRef string) (bool, error) {
	return r.revoked[userID+":"+tokenRef], nil
}

func newTestManager(maxSessions int, pointers cache.PointerCache, strategy cache.Strategy) (*Manager, *memSessionRepo) {
	users := &memUserRepo{users: map[string]bool{"user-1": true}}
	repo := newMemSessionRepo()
	if strategy == nil {
		strategy = pointers
	}
	m := NewManager(users, repo, strategy, pointers, nil, &stubAccessTokens{}, nil, maxSessions, 720*time.Hour)
	return m, repo
}

func TestIssueSessionUnknownUser(t *testing.T) {
	m, _ := newTestManager(5, newMemPointerCache(), nil)
	_, err := m.IssueSession(context.Background(), "nobody", "1.2.3.4", "")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestIssueSessionEvictsOldest(t *testing.T) {
	pointers := newMemPointerCache()
	m, repo := newTestManager(2, pointers, nil)
	ctx := context.Background()

	base := time.Now().UTC()
	var tokens []string
	for i := 0; i < 3; i++ {
		m.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		token, err := m.IssueSession(ctx, "user-1", "1.2.3.4", "curl/8.0")
		if err != nil {
			t.Fatalf("IssueSession %d: %v", i, err)
		}
		tokens = append(tokens, token)
	}

	live, err := repo.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(live) != 2 {
		t.Fatalf("live sessions = %d, want 2", len(live))
	}
	if live[0].Token != tokens[1] || live[1].Token != tokens[2] {
		t.Fatalf("surviving sessions = %s,%s, want the two newest", live[0].Token, live[1].Token)
	}

	// Only the newest session stays cached for the user.
	for _, tok := range tokens[:2] {
		if _, ok, _ := pointers.GetUserID(ctx, tok); ok {
			t.Fatalf("evicted/replaced session %s still cached", tok)
		}
	}
	if _, ok, _ := pointers.GetUserID(ctx, tokens[2]); !ok {
		t.Fatal("newest session missing from cache")
	}
}

func TestGetUserIDFromSessionCacheAside(t *testing.T) {
	pointers := newMemPointerCache()
	m, repo := newTestManager(5, pointers, nil)
	ctx := context.Background()

	token, err := m.IssueSession(ctx, "user-1", "1.2.3.4", "")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	// Simulate cache loss; fallback must repopulate.
	if err := pointers.RemoveByIDs(ctx, []string{token}); err != nil {
		t.Fatalf("RemoveByIDs: %v", err)
	}

	before := time.Now().UTC().Add(time.Hour)
	m.now = func() time.Time { return before }
	userID, err := m.GetUserIDFromSession(ctx, token)
	if err != nil {
		t.Fatalf("GetUserIDFromSession: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("userID = %q, want user-1", userID)
	}
	if _, ok, _ := pointers.GetUserID(ctx, token); !ok {
		t.Fatal("durable fallback did not repopulate the cache")
	}
	sess, _ := repo.GetByToken(ctx, token)
	if !sess.LastUseAt.Equal(before) {
		t.Fatalf("lastUseAt = %v, want touched to %v", sess.LastUseAt, before)
	}

	// Cached hit returns the same answer.
	userID, err = m.GetUserIDFromSession(ctx, token)
	if err != nil || userID != "user-1" {
		t.Fatalf("cached read = (%q, %v), want (user-1, nil)", userID, err)
	}

	userID, err = m.GetUserIDFromSession(ctx, "no-such-session")
	if err != nil || userID != "" {
		t.Fatalf("unknown session = (%q, %v), want (\"\", nil)", userID, err)
	}
}

func TestRefreshSessionUpdates(t *testing.T) {
	m, repo := newTestManager(5, newMemPointerCache(), nil)
	ctx := context.Background()

	token, err := m.IssueSession(ctx, "user-1", "1.2.3.4", "")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	later := time.Now().UTC().Add(time.Hour)
	m.now = func() time.Time { return later }
	sess, err := m.RefreshSession(ctx, token, "5.6.7.8")
	if err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}
	if sess == nil || sess.LastRefreshIP != "5.6.7.8" || !sess.LastUseAt.Equal(later) {
		t.Fatalf("refreshed session = %+v", sess)
	}
	stored, _ := repo.GetByToken(ctx, token)
	if stored.LastRefreshIP != "5.6.7.8" {
		t.Fatalf("stored lastRefreshIP = %q", stored.LastRefreshIP)
	}

	sess, err = m.RefreshSession(ctx, "no-such-token", "5.6.7.8")
	if err != nil || sess != nil {
		t.Fatalf("unknown token = (%v, %v), want (nil, nil)", sess, err)
	}
}

func TestRefreshSessionStale(t *testing.T) {
	pointers := newMemPointerCache()
	m, repo := newTestManager(5, pointers, nil)
	ctx := context.Background()

	token, err := m.IssueSession(ctx, "user-1", "1.2.3.4", "")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	m.now = func() time.Time { return time.Now().UTC().Add(m.staleAfter + time.Hour) }
	sess, err := m.RefreshSession(ctx, token, "5.6.7.8")
	if !errors.Is(err, ErrStaleRefreshToken) {
		t.Fatalf("err = %v, want ErrStaleRefreshToken", err)
	}
	if sess != nil {
		t.Fatal("stale refresh must not return a session")
	}
	if stored, _ := repo.GetByToken(ctx, token); stored != nil {
		t.Fatal("stale session row must be deleted")
	}
	if _, ok, _ := pointers.GetUserID(ctx, token); ok {
		t.Fatal("stale session must be removed from cache")
	}

	// The second refresh sees an unknown token, not a stale one.
	sess, err = m.RefreshSession(ctx, token, "5.6.7.8")
	if err != nil || sess != nil {
		t.Fatalf("second refresh = (%v, %v), want (nil, nil)", sess, err)
	}
}

func TestRevokeSession(t *testing.T) {
	strategy := &recordingStrategy{}
	m, repo := newTestManager(5, nil, strategy)
	ctx := context.Background()

	token, err := m.IssueSession(ctx, "user-1", "1.2.3.4", "")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	sess, err := m.RevokeSession(ctx, token)
	if err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if sess == nil || sess.Token != token {
		t.Fatalf("revoked session = %+v", sess)
	}
	if stored, _ := repo.GetByToken(ctx, token); stored != nil {
		t.Fatal("revoked session row must be deleted")
	}
	if len(strategy.removed) != 1 || strategy.removed[0] != token {
		t.Fatalf("strategy removals = %v", strategy.removed)
	}

	sess, err = m.RevokeSession(ctx, token)
	if err != nil || sess != nil {
		t.Fatalf("second revoke = (%v, %v), want (nil, nil)", sess, err)
	}
}

func TestRevokeAllSessions(t *testing.T) {
	strategy := &recordingStrategy{}
	m, repo := newTestManager(5, nil, strategy)
	ctx := context.Background()

	existed, err := m.RevokeAllSessions(ctx, "user-1")
	if err != nil {
		t.Fatalf("RevokeAllSessions: %v", err)
	}
	if existed {
		t.Fatal("user with no sessions must report false")
	}

	for i := 0; i < 3; i++ {
		if _, err := m.IssueSession(ctx, "user-1", "1.2.3.4", ""); err != nil {
			t.Fatalf("IssueSession: %v", err)
		}
	}
	existed, err = m.RevokeAllSessions(ctx, "user-1")
	if err != nil || !existed {
		t.Fatalf("RevokeAllSessions = (%v, %v), want (true, nil)", existed, err)
	}
	if live, _ := repo.ListByUser(ctx, "user-1"); len(live) != 0 {
		t.Fatalf("sessions left after revoke-all: %d", len(live))
	}
	if len(strategy.removed) != 3 {
		t.Fatalf("strategy removals = %d, want 3", len(strategy.removed))
	}
}

func TestIssueAccessTokenEmbedsRef(t *testing.T) {
	m, _ := newTestManager(5, newMemPointerCache(), nil)
	ctx := context.Background()

	sessionToken, err := m.IssueSession(ctx, "user-1", "1.2.3.4", "")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	access, _, err := m.IssueAccessToken(ctx, sessionToken)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if access != "access-user-1" {
		t.Fatalf("access token = %q", access)
	}
	if got := m.tokens.(*stubAccessTokens).issuedRef; got != cache.TokenRef(sessionToken) {
		t.Fatalf("issued ref = %q, want %q", got, cache.TokenRef(sessionToken))
	}

	access, _, err = m.IssueAccessToken(ctx, "no-such-session")
	if err != nil || access != "" {
		t.Fatalf("unknown session = (%q, %v), want (\"\", nil)", access, err)
	}
}

func TestVerifyAccessTokenChecksRevocation(t *testing.T) {
	tokens := &stubAccessTokens{validUser: "user-1", validRef: "abcdefgh"}
	revocations := &stubRevocations{revoked: map[string]bool{}}
	users := &memUserRepo{users: map[string]bool{"user-1": true}}
	m := NewManager(users, newMemSessionRepo(), &recordingStrategy{}, nil, revocations, tokens, nil, 5, 720*time.Hour)
	ctx := context.Background()

	userID, err := m.VerifyAccessToken(ctx, "some-token")
	if err != nil || userID != "user-1" {
		t.Fatalf("VerifyAccessToken = (%q, %v)", userID, err)
	}

	revocations.revoked["user-1:abcdefgh"] = true
	_, err = m.VerifyAccessToken(ctx, "some-token")
	if !errors.Is(err, ErrAccessTokenRevoked) {
		t.Fatalf("err = %v, want ErrAccessTokenRevoked", err)
	}

	tokens.validErr = errors.New("bad signature")
	if _, err := m.VerifyAccessToken(ctx, "garbage"); err == nil {
		t.Fatal("invalid token must fail verification")
	}
}

// failingStrategy simulates an unreachable cache store.
type failingStrategy struct {
	err error
}

func (s *failingStrategy) Remove(ctx context.Context, sess *domain.Session) error {
	return s.err
}

func (s *failingStrategy) RemoveMany(ctx context.Context, sessions []*domain.Session) error {
	return s.err
}

// readErrorPointerCache fails every read but accepts writes.
type readErrorPointerCache struct {
	*memPointerCache
	readErr error
}

func (c *readErrorPointerCache) GetUserID(ctx context.Context, sessionID string) (string, bool, error) {
	return "", false, c.readErr
}

func seedSession(t *testing.T, repo *memSessionRepo, token string, lastUse time.Time) {
	t.Helper()
	err := repo.CreateWithEvictions(context.Background(), &domain.Session{
		Token:     token,
		UserID:    "user-1",
		LastUseAt: lastUse,
		CreatedAt: lastUse,
	}, nil)
	if err != nil {
		t.Fatalf("seed session %s: %v", token, err)
	}
}

func TestRevokeSessionCacheWriteFailurePropagates(t *testing.T) {
	cacheErr := errors.New("cache store unreachable")
	users := &memUserRepo{users: map[string]bool{"user-1": true}}
	repo := newMemSessionRepo()
	m := NewManager(users, repo, &failingStrategy{err: cacheErr}, nil, nil, &stubAccessTokens{}, nil, 5, 720*time.Hour)
	ctx := context.Background()

	seedSession(t, repo, "sess-1", time.Now().UTC())

	// A dropped revocation must never be silent: the failure propagates and
	// the row stays so the revocation can be retried.
	if _, err := m.RevokeSession(ctx, "sess-1"); !errors.Is(err, cacheErr) {
		t.Fatalf("err = %v, want the cache error", err)
	}
	if stored, _ := repo.GetByToken(ctx, "sess-1"); stored == nil {
		t.Fatal("row must survive a failed cache invalidation")
	}
}

func TestRevokeAllSessionsCacheWriteFailurePropagates(t *testing.T) {
	cacheErr := errors.New("cache store unreachable")
	users := &memUserRepo{users: map[string]bool{"user-1": true}}
	repo := newMemSessionRepo()
	m := NewManager(users, repo, &failingStrategy{err: cacheErr}, nil, nil, &stubAccessTokens{}, nil, 5, 720*time.Hour)
	ctx := context.Background()

	seedSession(t, repo, "sess-1", time.Now().UTC())
	seedSession(t, repo, "sess-2", time.Now().UTC())

	existed, err := m.RevokeAllSessions(ctx, "user-1")
	if !errors.Is(err, cacheErr) {
		t.Fatalf("err = %v, want the cache error", err)
	}
	if existed {
		t.Fatal("failed revoke-all must not report success")
	}
	if live, _ := repo.ListByUser(ctx, "user-1"); len(live) != 2 {
		t.Fatalf("rows left = %d, want 2 untouched", len(live))
	}
}

func TestIssueSessionEvictionCacheFailurePropagates(t *testing.T) {
	cacheErr := errors.New("cache store unreachable")
	users := &memUserRepo{users: map[string]bool{"user-1": true}}
	repo := newMemSessionRepo()
	m := NewManager(users, repo, &failingStrategy{err: cacheErr}, nil, nil, &stubAccessTokens{}, nil, 1, 720*time.Hour)
	ctx := context.Background()

	seedSession(t, repo, "sess-old", time.Now().UTC())

	// Eviction invalidates the cache before the row is deleted; if that
	// fails, nothing may be inserted or evicted.
	if _, err := m.IssueSession(ctx, "user-1", "1.2.3.4", ""); !errors.Is(err, cacheErr) {
		t.Fatalf("err = %v, want the cache error", err)
	}
	live, _ := repo.ListByUser(ctx, "user-1")
	if len(live) != 1 || live[0].Token != "sess-old" {
		t.Fatalf("sessions = %+v, want only the original row", live)
	}
}

func TestGetUserIDFromSessionCacheReadFailureDegrades(t *testing.T) {
	users := &memUserRepo{users: map[string]bool{"user-1": true}}
	repo := newMemSessionRepo()
	pointers := &readErrorPointerCache{
		memPointerCache: newMemPointerCache(),
		readErr:         errors.New("cache store unreachable"),
	}
	m := NewManager(users, repo, pointers, pointers, nil, &stubAccessTokens{}, nil, 5, 720*time.Hour)
	ctx := context.Background()

	seedSession(t, repo, "sess-1", time.Now().UTC())

	// A cache read failure is a miss, not an error: the durable store answers.
	userID, err := m.GetUserIDFromSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetUserIDFromSession: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("userID = %q, want user-1", userID)
	}
}
