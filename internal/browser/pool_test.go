package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLauncher struct {
	mu         sync.Mutex
	connectURL string
	launched   int
	stopped    []string
	failLaunch bool
}

func (s *stubLauncher) Launch(ctx context.Context, instanceID string) (*Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLaunch {
		return nil, errors.New("docker daemon unavailable")
	}
	s.launched++
	url := s.connectURL
	if url == "" {
		url = fmt.Sprintf("ws://127.0.0.1:300%d", s.launched)
	}
	return &Endpoint{
		ContainerID: fmt.Sprintf("ctr-%d", s.launched),
		ConnectURL:  url,
		Port:        "3000",
	}, nil
}

func (s *stubLauncher) Stop(ctx context.Context, containerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, containerID)
	return nil
}

func (s *stubLauncher) Healthy(ctx context.Context, containerID string) bool {
	return true
}

func (s *stubLauncher) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stopped)
}

func newTestPool(t *testing.T, maxBrowsers, maxPerInstance int) (*Pool, *stubLauncher) {
	t.Helper()
	launcher := &stubLauncher{}
	fpGen := NewFingerprintGenerator(rand.New(rand.NewSource(1)))
	return NewPool(launcher, fpGen, maxBrowsers, maxPerInstance), launcher
}

func TestPoolFailsFastWhenSaturated(t *testing.T) {
	pool, _ := newTestPool(t, 2, 2)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := pool.AcquireContext(ctx, ContextOptions{})
		require.NoError(t, err, "acquire %d should fit within capacity", i)
	}

	_, err := pool.AcquireContext(ctx, ContextOptions{})
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.Equal(t, 2, pool.InstanceCount())
	assert.Equal(t, 4, pool.ContextCount())
}

func TestPoolReusesInstanceWithSpareCapacity(t *testing.T) {
	pool, launcher := newTestPool(t, 3, 5)
	ctx := context.Background()

	a, err := pool.AcquireContext(ctx, ContextOptions{})
	require.NoError(t, err)
	b, err := pool.AcquireContext(ctx, ContextOptions{})
	require.NoError(t, err)

	assert.Equal(t, a.BrowserID, b.BrowserID, "second context should land on the same instance")
	assert.Equal(t, 1, launcher.launched)
}

func TestPoolKeepsOneWarmInstance(t *testing.T) {
	pool, launcher := newTestPool(t, 2, 1)
	ctx := context.Background()

	a, err := pool.AcquireContext(ctx, ContextOptions{})
	require.NoError(t, err)
	b, err := pool.AcquireContext(ctx, ContextOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, pool.InstanceCount())

	require.NoError(t, pool.ReleaseContext(ctx, a.ID))
	require.NoError(t, pool.ReleaseContext(ctx, b.ID))

	assert.Equal(t, 1, pool.InstanceCount(), "last idle instance stays warm")
	assert.Equal(t, 1, launcher.stopCount())
}

func TestPoolReleaseFreesSlot(t *testing.T) {
	pool, _ := newTestPool(t, 1, 1)
	ctx := context.Background()

	bctx, err := pool.AcquireContext(ctx, ContextOptions{})
	require.NoError(t, err)
	_, err = pool.AcquireContext(ctx, ContextOptions{})
	require.ErrorIs(t, err, ErrPoolExhausted)

	require.NoError(t, pool.ReleaseContext(ctx, bctx.ID))
	_, err = pool.AcquireContext(ctx, ContextOptions{})
	assert.NoError(t, err)
}

func TestPoolLaunchFailureReleasesSlot(t *testing.T) {
	pool, launcher := newTestPool(t, 1, 1)
	ctx := context.Background()

	launcher.failLaunch = true
	_, err := pool.AcquireContext(ctx, ContextOptions{})
	require.Error(t, err)
	assert.Equal(t, 0, pool.InstanceCount())

	launcher.failLaunch = false
	_, err = pool.AcquireContext(ctx, ContextOptions{})
	assert.NoError(t, err, "failed launch must not leak its slot")
}

func TestPoolReleaseUnknownContext(t *testing.T) {
	pool, _ := newTestPool(t, 1, 1)
	err := pool.ReleaseContext(context.Background(), "nope")
	assert.Error(t, err)
}

func TestPoolShutdownStopsAllInstances(t *testing.T) {
	pool, launcher := newTestPool(t, 3, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := pool.AcquireContext(ctx, ContextOptions{})
		require.NoError(t, err)
	}

	pool.Shutdown(ctx)
	assert.Equal(t, 0, pool.InstanceCount())
	assert.Equal(t, 3, launcher.stopCount())
}

func TestFingerprintLocaleTimezonePairing(t *testing.T) {
	valid := make(map[localeZone]bool, len(localeZones))
	for _, lz := range localeZones {
		valid[lz] = true
	}

	gen := NewFingerprintGenerator(rand.New(rand.NewSource(7)))
	for i := 0; i < 200; i++ {
		fp := gen.Generate()
		assert.True(t, valid[localeZone{fp.Locale, fp.Timezone}],
			"locale %q paired with unexpected timezone %q", fp.Locale, fp.Timezone)
		assert.NotEmpty(t, fp.UserAgent)
		assert.Greater(t, fp.ScreenWidth, 0)
		assert.Greater(t, fp.ScreenHeight, 0)
	}
}

func TestStealthScriptCarriesFingerprint(t *testing.T) {
	gen := NewFingerprintGenerator(rand.New(rand.NewSource(2)))
	fp := gen.Generate()

	script := StealthScript(fp)
	assert.True(t, strings.Contains(script, "webdriver"))
	assert.True(t, strings.Contains(script, fp.Platform))
	assert.True(t, strings.Contains(script, fp.Locale))
}
