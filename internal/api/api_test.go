package api

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/campaign-engine/internal/browser"
	"github.com/shehryarbajwa/campaign-engine/internal/proxy"
	"github.com/shehryarbajwa/campaign-engine/internal/queue"
	"github.com/shehryarbajwa/campaign-engine/internal/ratelimit"
	"github.com/shehryarbajwa/campaign-engine/internal/store"
)

type nullLauncher struct{}

func (nullLauncher) Launch(ctx context.Context, instanceID string) (*browser.Endpoint, error) {
	return &browser.Endpoint{ContainerID: "ctr-1", ConnectURL: "ws://127.0.0.1:1", Port: "3000"}, nil
}

func (nullLauncher) Stop(ctx context.Context, containerID string) error { return nil }

func (nullLauncher) Healthy(ctx context.Context, containerID string) bool { return true }

type testEnv struct {
	mr     *miniredis.Miniredis
	router http.Handler
}

func newTestEnv(t *testing.T, limiter *ratelimit.Limiter) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	st := store.NewFromClient(rdb)

	rng := rand.New(rand.NewSource(1))
	pool := browser.NewPool(nullLauncher{}, browser.NewFingerprintGenerator(rng), 1, 2)
	sessions := browser.NewSessionManager(pool, st, nil, nil, browser.SessionConfig{
		IdleTimeout: time.Hour,
		MaxAge:      24 * time.Hour,
	})
	proxies := proxy.NewPool(st, nil, nil, proxy.PoolOptions{}, rng)

	h := NewHandler(queue.New(st), sessions, pool, proxies)
	if limiter == nil {
		limiter = ratelimit.NewHourlyLimiter(100, 100)
	}
	return &testEnv{mr: mr, router: h.SetupRoutes(limiter)}
}

func (e *testEnv) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "203.0.113.7:51234"
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestStatsReportsQueueCounters(t *testing.T) {
	env := newTestEnv(t, nil)

	env.mr.Set("stats:processed:acquisition", "7")
	env.mr.Set("stats:errors:acquisition", "2")
	env.mr.Push("queue:failed:acquisition", `{"campaignId":"C1"}`)

	rec := env.do("GET", "/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))

	acq := stats.Queues["acquisition"]
	assert.Equal(t, int64(7), acq.Processed)
	assert.Equal(t, int64(2), acq.Errors)
	assert.Equal(t, int64(1), acq.Failed)

	// Untouched topics report zeroes rather than being omitted.
	assert.Contains(t, stats.Queues, "tracking")
	assert.Equal(t, TopicStats{}, stats.Queues["tracking"])

	assert.Zero(t, stats.Browsers)
	assert.Zero(t, stats.ActiveSessions)
	assert.Zero(t, stats.WorkingProxies)
}

func TestFailedItemsExposeRawPayloads(t *testing.T) {
	env := newTestEnv(t, nil)

	env.mr.Push("queue:failed:engagement", `{"campaignId":"C1"}`, "not-json")

	rec := env.do("GET", "/v1/queues/engagement/failed")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Topic string            `json:"topic"`
		Items []json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "engagement", resp.Topic)
	require.Len(t, resp.Items, 2)
	assert.JSONEq(t, `{"campaignId":"C1"}`, string(resp.Items[0]))
	assert.Equal(t, `"not-json"`, string(resp.Items[1]))
}

func TestReplayMovesDeadLettersBack(t *testing.T) {
	env := newTestEnv(t, nil)

	env.mr.Push("queue:failed:engagement", `{"campaignId":"C1"}`, `{"campaignId":"C2"}`)

	rec := env.do("POST", "/v1/queues/engagement/replay")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Replayed int `json:"replayed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Replayed)

	replayed, err := env.mr.List("queue:engagement")
	require.NoError(t, err)
	assert.Len(t, replayed, 2)
	assert.False(t, env.mr.Exists("queue:failed:engagement"))
}

func TestReplayIsRateLimited(t *testing.T) {
	limiter := ratelimit.NewLimiter(time.Hour, 1)
	env := newTestEnv(t, limiter)

	first := env.do("POST", "/v1/queues/engagement/replay")
	assert.Equal(t, http.StatusOK, first.Code)

	second := env.do("POST", "/v1/queues/engagement/replay")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))
}

func TestListSessionsIncludesCreatedSession(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	st := store.NewFromClient(rdb)

	rng := rand.New(rand.NewSource(1))
	pool := browser.NewPool(nullLauncher{}, browser.NewFingerprintGenerator(rng), 1, 2)
	sessions := browser.NewSessionManager(pool, st, nil, nil, browser.SessionConfig{
		IdleTimeout: time.Hour,
		MaxAge:      24 * time.Hour,
	})
	proxies := proxy.NewPool(st, nil, nil, proxy.PoolOptions{}, rng)

	_, err := sessions.CreateSession(context.Background(), "instagram")
	require.NoError(t, err)

	h := NewHandler(queue.New(st), sessions, pool, proxies)
	router := h.SetupRoutes(ratelimit.NewHourlyLimiter(100, 100))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "instagram", listed[0]["platform"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do("GET", "/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
