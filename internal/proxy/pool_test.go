package proxy

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/campaign-engine/internal/store"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	opts := PoolOptions{
		MinWorking:      2,
		MaxAge:          time.Hour,
		RefreshInterval: time.Minute,
	}
	validator := NewValidator(time.Second, 5, 0)
	return NewPool(store.NewFromClient(rdb), validator, nil, opts, rand.New(rand.NewSource(1)))
}

func working(host string, rt time.Duration) *Validated {
	return &Validated{
		Scraped: Scraped{
			Host:      host,
			Port:      8080,
			Protocol:  ProtocolHTTP,
			Source:    "test",
			ScrapedAt: time.Now(),
		},
		IsWorking:    true,
		ResponseTime: rt,
		LastChecked:  time.Now(),
	}
}

func TestMarkSuccessResetsFailures(t *testing.T) {
	v := working("10.0.0.1", 100*time.Millisecond)
	v.MarkFailed()
	v.MarkFailed()
	require.Equal(t, 2, v.ConsecutiveFailures)

	v.MarkSuccess(200 * time.Millisecond)
	assert.Zero(t, v.ConsecutiveFailures)
	assert.True(t, v.IsWorking)
	assert.Equal(t, 1, v.SuccessfulChecks)
	assert.Equal(t, 3, v.TotalChecks)

	// Moving average: 0.7*100ms + 0.3*200ms = 130ms
	assert.InDelta(t, float64(130*time.Millisecond), float64(v.ResponseTime), float64(time.Millisecond))
}

func TestEvictionAfterThreeConsecutiveFailures(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, working("10.0.0.1", 100*time.Millisecond)))
	require.NoError(t, p.Add(ctx, working("10.0.0.2", 100*time.Millisecond)))

	p.ReportUsage(ctx, "10.0.0.1:8080", false, 0)
	p.ReportUsage(ctx, "10.0.0.1:8080", false, 0)
	assert.Equal(t, 2, p.WorkingCount(), "two failures must not evict")

	p.ReportUsage(ctx, "10.0.0.1:8080", false, 0)
	assert.Equal(t, 1, p.WorkingCount(), "third consecutive failure evicts")

	_, err := p.Acquire(AcquireOptions{Protocol: ProtocolHTTP})
	require.NoError(t, err)
}

func TestSuccessBetweenFailuresPreventsEviction(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, working("10.0.0.1", 100*time.Millisecond)))

	p.ReportUsage(ctx, "10.0.0.1:8080", false, 0)
	p.ReportUsage(ctx, "10.0.0.1:8080", false, 0)
	p.ReportUsage(ctx, "10.0.0.1:8080", true, 150*time.Millisecond)
	p.ReportUsage(ctx, "10.0.0.1:8080", false, 0)
	p.ReportUsage(ctx, "10.0.0.1:8080", false, 0)

	assert.Equal(t, 1, p.WorkingCount())
}

func TestWeightedSelectionRespectsFloor(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, working("fast.example", 100*time.Millisecond)))
	require.NoError(t, p.Add(ctx, working("slow.example", 1000*time.Millisecond)))

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		v, err := p.Acquire(AcquireOptions{})
		require.NoError(t, err)
		counts[v.Host]++
	}

	assert.Greater(t, counts["fast.example"], counts["slow.example"],
		"faster proxy should win more draws")
	assert.GreaterOrEqual(t, counts["slow.example"], 1,
		"floor weight must keep the slow proxy in rotation")
}

func TestSessionAffinity(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Add(ctx, working("10.0.0."+string(rune('1'+i)), time.Duration(i+1)*100*time.Millisecond)))
	}

	first, err := p.Acquire(AcquireOptions{SessionID: "s1"})
	require.NoError(t, err)

	second, err := p.Acquire(AcquireOptions{SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, first.Key(), second.Key(), "sticky binding must return the identical proxy")
}

func TestSessionAffinityRebindsAfterEviction(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, working("10.0.0.1", 100*time.Millisecond)))
	require.NoError(t, p.Add(ctx, working("10.0.0.2", 100*time.Millisecond)))

	first, err := p.Acquire(AcquireOptions{SessionID: "s1"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		p.ReportUsage(ctx, first.Key(), false, 0)
	}

	second, err := p.Acquire(AcquireOptions{SessionID: "s1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Key(), second.Key())
}

func TestAcquireProtocolFilter(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	http := working("10.0.0.1", 100*time.Millisecond)
	socks := working("10.0.0.2", 100*time.Millisecond)
	socks.Protocol = ProtocolSOCKS5
	require.NoError(t, p.Add(ctx, http))
	require.NoError(t, p.Add(ctx, socks))

	for i := 0; i < 20; i++ {
		v, err := p.Acquire(AcquireOptions{Protocol: ProtocolSOCKS5})
		require.NoError(t, err)
		assert.Equal(t, ProtocolSOCKS5, v.Protocol)
	}
}

func TestPersistConcurrentWithUsageReports(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()
	require.NoError(t, p.Add(ctx, working("10.0.0.1", 100*time.Millisecond)))
	require.NoError(t, p.Add(ctx, working("10.0.0.2", 200*time.Millisecond)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "10.0.0.1:8080"
			if i%2 == 0 {
				key = "10.0.0.2:8080"
			}
			for j := 0; j < 50; j++ {
				p.ReportUsage(ctx, key, j%3 != 0, time.Duration(j)*time.Millisecond)
			}
		}(i)
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, p.persist(ctx))
	}
	wg.Wait()
}

func TestAcquireURLReturnsStickyKeyAndURL(t *testing.T) {
	p := newTestPool(t)
	require.NoError(t, p.Add(context.Background(), working("10.0.0.1", 100*time.Millisecond)))

	key, url, err := p.AcquireURL("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", key)
	assert.Equal(t, "http://10.0.0.1:8080", url)

	// Same session keeps the same proxy.
	key2, _, err := p.AcquireURL("sess-1")
	require.NoError(t, err)
	assert.Equal(t, key, key2)
}

func TestAcquireEmptyPoolSignalsAbsence(t *testing.T) {
	p := newTestPool(t)

	_, err := p.Acquire(AcquireOptions{})
	assert.ErrorIs(t, err, ErrNoProxies)
}

func TestPersistAndReloadDropsStaleEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	st := store.NewFromClient(rdb)

	opts := PoolOptions{MinWorking: 1, MaxAge: time.Hour}
	validator := NewValidator(time.Second, 5, 0)

	p1 := NewPool(st, validator, nil, opts, rand.New(rand.NewSource(1)))
	fresh := working("10.0.0.1", 100*time.Millisecond)
	stale := working("10.0.0.2", 100*time.Millisecond)
	stale.LastChecked = time.Now().Add(-2 * time.Hour)
	require.NoError(t, p1.Add(context.Background(), fresh))
	require.NoError(t, p1.Add(context.Background(), stale))

	// A second pool instance reloading from the same store must drop
	// the stale entry before re-validation even starts.
	entries, err := st.HGetAll(context.Background(), "proxies:working")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	p2 := NewPool(st, validator, nil, opts, rand.New(rand.NewSource(2)))
	candidates := p2.loadCandidates(entries)
	require.Len(t, candidates, 1)
	assert.Equal(t, "10.0.0.1", candidates[0].Host)
}
