package browser

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/campaign-engine/internal/store"
	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

type stubAuth struct {
	mu        sync.Mutex
	cookies   []models.Cookie
	loginErr  error
	restored  [][]models.Cookie
	loginHits int
}

func (a *stubAuth) Login(ctx context.Context, platform, contextID string) ([]models.Cookie, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loginHits++
	if a.loginErr != nil {
		return nil, a.loginErr
	}
	return a.cookies, nil
}

func (a *stubAuth) RestoreCookies(ctx context.Context, contextID string, cookies []models.Cookie) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.restored = append(a.restored, cookies)
	return nil
}

type stubProxies struct {
	mu       sync.Mutex
	key      string
	url      string
	err      error
	acquired []string
}

func (p *stubProxies) AcquireURL(sessionID string) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", "", p.err
	}
	p.acquired = append(p.acquired, sessionID)
	return p.key, p.url, nil
}

func (p *stubProxies) ReportUsage(ctx context.Context, key string, ok bool, rt time.Duration) {}

func newTestSessionManager(t *testing.T, auth *stubAuth, proxies *stubProxies) (*SessionManager, *Pool) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	launcher := &stubLauncher{connectURL: "ws://127.0.0.1:1"}
	fpGen := NewFingerprintGenerator(rand.New(rand.NewSource(1)))
	pool := NewPool(launcher, fpGen, 2, 3)

	var authIface PlatformAuth
	if auth != nil {
		authIface = auth
	}
	var proxyIface ProxyProvider
	if proxies != nil {
		proxyIface = proxies
	}

	mgr := NewSessionManager(pool, store.NewFromClient(rdb), proxyIface, authIface, SessionConfig{
		IdleTimeout:         30 * time.Minute,
		MaxAge:              24 * time.Hour,
		HealthCheckInterval: time.Minute,
	})
	return mgr, pool
}

func TestCreateSessionLogsInAndPersists(t *testing.T) {
	auth := &stubAuth{cookies: []models.Cookie{{Name: "sid", Value: "abc", Domain: ".example.com"}}}
	proxies := &stubProxies{key: "1.2.3.4:8080", url: "http://1.2.3.4:8080"}
	mgr, pool := newTestSessionManager(t, auth, proxies)
	ctx := context.Background()

	session, err := mgr.CreateSession(ctx, "instagram")
	require.NoError(t, err)

	assert.Equal(t, models.SessionActive, session.Status)
	assert.Equal(t, "instagram", session.Platform)
	assert.Equal(t, "1.2.3.4:8080", session.ProxyKey)
	assert.Len(t, session.Cookies, 1)
	assert.Equal(t, 1, pool.ContextCount())
	assert.Equal(t, []string{session.ID}, proxies.acquired)

	raw, err := mgr.store.Get(ctx, sessionKey(session.ID))
	require.NoError(t, err)
	assert.NotEmpty(t, raw, "session must be persisted for restore")
}

func TestCreateSessionLoginFailureMarksError(t *testing.T) {
	auth := &stubAuth{loginErr: errors.New("captcha wall")}
	mgr, _ := newTestSessionManager(t, auth, nil)

	session, err := mgr.CreateSession(context.Background(), "instagram")
	require.NoError(t, err, "login failure still yields an inspectable session")

	assert.Equal(t, models.SessionError, session.Status)
	assert.Equal(t, "captcha wall", session.Error)
	assert.Empty(t, session.Cookies)
}

func TestCreateSessionSurvivesProxyOutage(t *testing.T) {
	proxies := &stubProxies{err: errors.New("no proxies")}
	mgr, _ := newTestSessionManager(t, nil, proxies)

	session, err := mgr.CreateSession(context.Background(), "instagram")
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, session.Status)
	assert.Empty(t, session.ProxyKey)
}

func TestGetActiveSessionRefreshesActivity(t *testing.T) {
	mgr, _ := newTestSessionManager(t, nil, nil)
	ctx := context.Background()

	session, err := mgr.CreateSession(ctx, "instagram")
	require.NoError(t, err)

	mgr.mu.Lock()
	mgr.sessions[session.ID].LastActivityAt = time.Now().Add(-time.Hour)
	mgr.mu.Unlock()

	got, err := mgr.GetActiveSession(ctx, session.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), got.LastActivityAt, time.Second)
}

func TestGetActiveSessionUnknown(t *testing.T) {
	mgr, _ := newTestSessionManager(t, nil, nil)
	_, err := mgr.GetActiveSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCloseThenRestoreReplaysCookies(t *testing.T) {
	auth := &stubAuth{cookies: []models.Cookie{{Name: "sid", Value: "abc", Domain: ".example.com"}}}
	mgr, pool := newTestSessionManager(t, auth, nil)
	ctx := context.Background()

	session, err := mgr.CreateSession(ctx, "instagram")
	require.NoError(t, err)

	require.NoError(t, mgr.CloseSession(ctx, session.ID))
	assert.Empty(t, mgr.ActiveSessions())
	assert.Equal(t, 0, pool.ContextCount())

	restored, err := mgr.GetActiveSession(ctx, session.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionActive, restored.Status)
	assert.NotEqual(t, session.ContextID, restored.ContextID, "restore allocates a fresh context")
	require.Len(t, auth.restored, 1)
	assert.Equal(t, "sid", auth.restored[0][0].Name)
	assert.Equal(t, 1, auth.loginHits, "restore must replay cookies, not re-login")
}

func TestRestoreWithoutCookiesFails(t *testing.T) {
	mgr, _ := newTestSessionManager(t, nil, nil)
	ctx := context.Background()

	session, err := mgr.CreateSession(ctx, "instagram")
	require.NoError(t, err)
	require.Empty(t, session.Cookies)

	require.NoError(t, mgr.CloseSession(ctx, session.ID))
	_, err = mgr.GetActiveSession(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSweepClosesIdleSessions(t *testing.T) {
	auth := &stubAuth{cookies: []models.Cookie{{Name: "sid", Value: "abc", Domain: ".example.com"}}}
	mgr, pool := newTestSessionManager(t, auth, nil)
	ctx := context.Background()

	session, err := mgr.CreateSession(ctx, "instagram")
	require.NoError(t, err)

	mgr.mu.Lock()
	mgr.sessions[session.ID].LastActivityAt = time.Now().Add(-time.Hour)
	mgr.mu.Unlock()

	mgr.sweep(ctx)

	assert.Empty(t, mgr.ActiveSessions())
	assert.Equal(t, 0, pool.ContextCount())

	raw, err := mgr.store.Get(ctx, sessionKey(session.ID))
	require.NoError(t, err)
	assert.NotEmpty(t, raw, "idle close preserves state for restore")
}

func TestSweepExpiresOldSessions(t *testing.T) {
	mgr, _ := newTestSessionManager(t, nil, nil)
	ctx := context.Background()

	session, err := mgr.CreateSession(ctx, "instagram")
	require.NoError(t, err)

	mgr.mu.Lock()
	mgr.sessions[session.ID].CreatedAt = time.Now().Add(-48 * time.Hour)
	mgr.mu.Unlock()

	mgr.sweep(ctx)

	assert.Empty(t, mgr.ActiveSessions())
	raw, err := mgr.store.Get(ctx, sessionKey(session.ID))
	require.NoError(t, err)
	assert.Empty(t, raw, "expired sessions are evicted from the store")
}

func TestSessionForReusesActivePlatformSession(t *testing.T) {
	auth := &stubAuth{cookies: []models.Cookie{{Name: "sid", Value: "v1", Domain: ".x.com"}}}
	mgr, _ := newTestSessionManager(t, auth, nil)
	ctx := context.Background()

	first, err := mgr.SessionFor(ctx, "twitter")
	require.NoError(t, err)
	second, err := mgr.SessionFor(ctx, "twitter")
	require.NoError(t, err)
	assert.Equal(t, first, second, "one platform converges on one session")
	assert.Equal(t, 1, auth.loginHits)

	other, err := mgr.SessionFor(ctx, "instagram")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestSessionForRejectsFailedLogin(t *testing.T) {
	auth := &stubAuth{loginErr: errors.New("captcha wall")}
	mgr, _ := newTestSessionManager(t, auth, nil)

	_, err := mgr.SessionFor(context.Background(), "twitter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "captcha wall")
}

func TestSweepDropsUnreachableContexts(t *testing.T) {
	mgr, _ := newTestSessionManager(t, nil, nil)
	ctx := context.Background()

	session, err := mgr.CreateSession(ctx, "instagram")
	require.NoError(t, err)

	// Nothing listens on the stub endpoint, so the CDP dial fails.
	mgr.sweep(ctx)

	assert.Empty(t, mgr.ActiveSessions())
	_, err = mgr.GetActiveSession(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
