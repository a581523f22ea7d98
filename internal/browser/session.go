package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/campaign-engine/internal/logging"
	"github.com/shehryarbajwa/campaign-engine/internal/store"
	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

// ErrSessionNotFound is returned when no live or restorable session
// exists for an ID.
var ErrSessionNotFound = errors.New("session not found")

// PlatformAuth is the slice of the browser-automation collaborator the
// session manager needs: performing a login flow inside a context and
// replaying preserved cookies into a fresh one.
type PlatformAuth interface {
	Login(ctx context.Context, platform, contextID string) ([]models.Cookie, error)
	RestoreCookies(ctx context.Context, contextID string, cookies []models.Cookie) error
}

// ProxyProvider is the slice of the proxy pool sessions consume.
type ProxyProvider interface {
	AcquireURL(sessionID string) (key, url string, err error)
	ReportUsage(ctx context.Context, key string, ok bool, rt time.Duration)
}

// SessionConfig tunes session lifecycle management.
type SessionConfig struct {
	IdleTimeout         time.Duration
	MaxAge              time.Duration
	HealthCheckInterval time.Duration
}

// SessionManager owns platform sessions: each active session holds
// exactly one browser context, optionally routed through a sticky
// proxy, with cookie state persisted to the durable store for
// restores across processes.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session

	pool    *Pool
	store   *store.Client
	proxies ProxyProvider
	auth    PlatformAuth // nil when the automation backend is disabled
	cfg     SessionConfig
	log     zerolog.Logger
}

func NewSessionManager(pool *Pool, st *store.Client, proxies ProxyProvider, auth PlatformAuth, cfg SessionConfig) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*models.Session),
		pool:     pool,
		store:    st,
		proxies:  proxies,
		auth:     auth,
		cfg:      cfg,
		log:      logging.WithComponent("Sessions"),
	}
}

func sessionKey(id string) string { return "session:" + id }

// SessionFor returns a live session ID for the platform, reusing an
// active one before creating another. Workers call this per batch, so
// a platform converges on a single long-lived session.
func (m *SessionManager) SessionFor(ctx context.Context, platform string) (string, error) {
	m.mu.RLock()
	var id string
	for _, session := range m.sessions {
		if session.Platform == platform && session.Status == models.SessionActive {
			id = session.ID
			break
		}
	}
	m.mu.RUnlock()

	if id != "" {
		m.Touch(id)
		return id, nil
	}

	session, err := m.CreateSession(ctx, platform)
	if err != nil {
		return "", err
	}
	if session.Status == models.SessionError {
		return "", fmt.Errorf("session for %s unusable: %s", platform, session.Error)
	}
	return session.ID, nil
}

// CreateSession acquires a context (and a sticky proxy when one is
// available) and optionally runs the platform login flow. A failed
// login still yields a session, marked error with the failure
// retained, so the caller can inspect and retry.
func (m *SessionManager) CreateSession(ctx context.Context, platform string) (*models.Session, error) {
	sessionID := uuid.New().String()

	var proxyKey, proxyURL string
	if m.proxies != nil {
		key, url, err := m.proxies.AcquireURL(sessionID)
		if err != nil {
			// Proxyless operation is degraded, not fatal.
			m.log.Warn().Err(err).Msg("creating session without proxy")
		} else {
			proxyKey, proxyURL = key, url
		}
	}

	bctx, err := m.pool.AcquireContext(ctx, ContextOptions{ProxyURL: proxyURL})
	if err != nil {
		return nil, fmt.Errorf("acquiring context for session: %w", err)
	}

	now := time.Now()
	session := &models.Session{
		ID:             sessionID,
		Platform:       platform,
		Status:         models.SessionActive,
		BrowserID:      bctx.BrowserID,
		ContextID:      bctx.ID,
		ProxyKey:       proxyKey,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	if m.auth != nil {
		cookies, err := m.auth.Login(ctx, platform, bctx.ID)
		if err != nil {
			session.Status = models.SessionError
			session.Error = err.Error()
			m.log.Warn().Err(err).Str("platform", platform).Msg("login failed, session marked error")
		} else {
			session.Cookies = cookies
		}
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	if err := m.persist(ctx, session); err != nil {
		m.log.Error().Err(err).Str("session", session.ID[:8]).Msg("failed to persist session")
	}

	return session, nil
}

// GetActiveSession returns the live session, refreshing its activity
// timestamp. When the session is not live it attempts a best-effort
// restore from the durable store by replaying preserved cookies into
// a fresh context. Without restorable state it reports absence rather
// than fabricating a dead handle.
func (m *SessionManager) GetActiveSession(ctx context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	if session, ok := m.sessions[id]; ok && session.Status == models.SessionActive {
		session.LastActivityAt = time.Now()
		m.mu.Unlock()
		return session, nil
	}
	m.mu.Unlock()

	return m.restore(ctx, id)
}

func (m *SessionManager) restore(ctx context.Context, id string) (*models.Session, error) {
	raw, err := m.store.Get(ctx, sessionKey(id))
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, ErrSessionNotFound
	}

	var stored models.Session
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("decoding stored session %s: %w", id, err)
	}

	if len(stored.Cookies) == 0 || stored.Status == models.SessionExpired || stored.Status == models.SessionError {
		return nil, ErrSessionNotFound
	}

	var proxyURL string
	if m.proxies != nil {
		if key, url, err := m.proxies.AcquireURL(id); err == nil {
			stored.ProxyKey = key
			proxyURL = url
		}
	}

	bctx, err := m.pool.AcquireContext(ctx, ContextOptions{ProxyURL: proxyURL})
	if err != nil {
		return nil, fmt.Errorf("no capacity to restore session %s: %w", id, err)
	}

	if m.auth != nil {
		if err := m.auth.RestoreCookies(ctx, bctx.ID, stored.Cookies); err != nil {
			m.pool.ReleaseContext(ctx, bctx.ID)
			return nil, fmt.Errorf("replaying cookies for session %s: %w", id, err)
		}
	}

	now := time.Now()
	stored.Status = models.SessionActive
	stored.BrowserID = bctx.BrowserID
	stored.ContextID = bctx.ID
	stored.LastActivityAt = now

	m.mu.Lock()
	m.sessions[id] = &stored
	m.mu.Unlock()

	if err := m.persist(ctx, &stored); err != nil {
		m.log.Error().Err(err).Str("session", id[:8]).Msg("failed to persist restored session")
	}

	m.log.Info().Str("session", id[:8]).Msg("session restored from store")
	return &stored, nil
}

// CloseSession transitions an active session to idle, preserving its
// cookies for a later restore, and releases the backing context.
func (m *SessionManager) CloseSession(ctx context.Context, id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	contextID := session.ContextID
	session.Status = models.SessionIdle
	session.ContextID = ""
	session.BrowserID = ""
	delete(m.sessions, id)
	m.mu.Unlock()

	if contextID != "" {
		if err := m.pool.ReleaseContext(ctx, contextID); err != nil {
			m.log.Warn().Err(err).Str("session", id[:8]).Msg("failed to release context")
		}
	}

	return m.persist(ctx, session)
}

// MarkError flags a session as failed and releases its context.
func (m *SessionManager) MarkError(ctx context.Context, id, reason string) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	contextID := session.ContextID
	session.Status = models.SessionError
	session.Error = reason
	session.ContextID = ""
	delete(m.sessions, id)
	m.mu.Unlock()

	if contextID != "" {
		m.pool.ReleaseContext(ctx, contextID)
	}
	if err := m.persist(ctx, session); err != nil {
		m.log.Error().Err(err).Str("session", id[:8]).Msg("failed to persist errored session")
	}
}

// Touch refreshes the activity timestamp for a live session.
func (m *SessionManager) Touch(id string) {
	m.mu.Lock()
	if session, ok := m.sessions[id]; ok {
		session.LastActivityAt = time.Now()
	}
	m.mu.Unlock()
}

// ActiveSessions returns a snapshot of the live session set.
func (m *SessionManager) ActiveSessions() []models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	return out
}

// Run executes the background health sweep until the context is
// cancelled: unreachable contexts mark their sessions error, sessions
// idle beyond the threshold are proactively closed to free capacity,
// and sessions past max age expire.
func (m *SessionManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep(ctx)
		case <-ctx.Done():
			m.log.Info().Msg("health sweep stopped")
			return
		}
	}
}

func (m *SessionManager) sweep(ctx context.Context) {
	now := time.Now()
	for _, session := range m.ActiveSessions() {
		switch {
		case now.Sub(session.CreatedAt) > m.cfg.MaxAge:
			m.expire(ctx, session.ID)
		case now.Sub(session.LastActivityAt) > m.cfg.IdleTimeout:
			m.log.Info().Str("session", session.ID[:8]).Msg("closing idle session")
			if err := m.CloseSession(ctx, session.ID); err != nil {
				m.log.Warn().Err(err).Str("session", session.ID[:8]).Msg("idle close failed")
			}
		case !m.contextAlive(ctx, session):
			m.log.Warn().Str("session", session.ID[:8]).Msg("context unreachable, dropping session")
			m.MarkError(ctx, session.ID, "context health check failed")
		}
	}
}

// contextAlive probes the CDP endpoint of the instance backing the
// session with a short WebSocket dial.
func (m *SessionManager) contextAlive(ctx context.Context, session models.Session) bool {
	if session.BrowserID != "" && !m.pool.InstanceHealthy(ctx, session.BrowserID) {
		return false
	}

	bctx, ok := m.pool.GetContext(session.ContextID)
	if !ok {
		return false
	}
	if bctx.ConnectURL == "" {
		return false
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, bctx.ConnectURL, nil)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// expire drops the session from the durable store entirely.
func (m *SessionManager) expire(ctx context.Context, id string) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	var contextID string
	if ok {
		contextID = session.ContextID
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if contextID != "" {
		m.pool.ReleaseContext(ctx, contextID)
	}
	if err := m.store.Del(ctx, sessionKey(id)); err != nil {
		m.log.Error().Err(err).Str("session", id[:8]).Msg("failed to evict expired session")
	}
	m.log.Info().Str("session", id[:8]).Msg("session expired")
}

func (m *SessionManager) persist(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, sessionKey(session.ID), data, m.cfg.MaxAge)
}
