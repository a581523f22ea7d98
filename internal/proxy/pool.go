package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/campaign-engine/internal/logging"
	"github.com/shehryarbajwa/campaign-engine/internal/store"
)

// ErrNoProxies is returned when the working set is empty. Callers are
// expected to handle absence (defer, retry later) rather than block;
// Acquire triggers a background refresh before returning it.
var ErrNoProxies = errors.New("proxy pool: no working proxies available")

const workingSetKey = "proxies:working"

// PoolOptions are the tuning knobs for the pool.
type PoolOptions struct {
	MinWorking      int
	MaxAge          time.Duration
	ScrapeDelay     time.Duration
	RefreshInterval time.Duration
}

// AcquireOptions narrow proxy selection for one allocation.
type AcquireOptions struct {
	SessionID  string
	Protocol   Protocol
	PreferFast bool
}

// Pool maintains the scored working set and serves allocations. The
// in-memory map is a soft cache: every mutation batch is persisted to
// the durable store, which is the source of truth across processes.
type Pool struct {
	mu      sync.RWMutex
	working map[string]*Validated
	sticky  map[string]string // sessionID -> proxy key

	store     *store.Client
	validator *Validator
	sources   []Source
	opts      PoolOptions

	rng        *rand.Rand
	rngMu      sync.Mutex
	refreshing sync.Mutex
	log        zerolog.Logger
}

// NewPool creates a pool. A nil rng gets a time-based seed.
func NewPool(s *store.Client, validator *Validator, sources []Source, opts PoolOptions, rng *rand.Rand) *Pool {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Pool{
		working:   make(map[string]*Validated),
		sticky:    make(map[string]string),
		store:     s,
		validator: validator,
		sources:   sources,
		opts:      opts,
		rng:       rng,
		log:       logging.WithComponent("ProxyPool"),
	}
}

// Load restores the working set from the durable store, dropping
// entries older than MaxAge and re-validating the survivors before
// they are served again.
func (p *Pool) Load(ctx context.Context) error {
	entries, err := p.store.HGetAll(ctx, workingSetKey)
	if err != nil {
		return err
	}

	candidates := p.loadCandidates(entries)
	p.log.Info().Int("stored", len(entries)).Int("revalidating", len(candidates)).Msg("reloading working set")

	if len(candidates) == 0 {
		return nil
	}

	revalidated := p.validator.ValidateAll(ctx, candidates)
	p.mu.Lock()
	for _, v := range revalidated {
		if v.IsWorking {
			p.working[v.Key()] = v
		}
	}
	p.mu.Unlock()

	return p.persist(ctx)
}

// loadCandidates decodes stored entries, dropping undecodable or
// stale ones; survivors still need re-validation before serving.
func (p *Pool) loadCandidates(entries map[string]string) []Scraped {
	var candidates []Scraped
	cutoff := time.Now().Add(-p.opts.MaxAge)
	for _, raw := range entries {
		var v Validated
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			p.log.Warn().Err(err).Msg("dropping undecodable stored proxy")
			continue
		}
		if v.LastChecked.Before(cutoff) {
			continue
		}
		candidates = append(candidates, v.Scraped)
	}
	return candidates
}

// Refresh runs a full scrape-and-validate cycle and merges working
// results into the set. Concurrent calls collapse to one.
func (p *Pool) Refresh(ctx context.Context) error {
	if !p.refreshing.TryLock() {
		return nil
	}
	defer p.refreshing.Unlock()

	scraped := ScrapeAll(ctx, p.sources, p.opts.ScrapeDelay)
	if len(scraped) == 0 {
		p.log.Warn().Msg("refresh produced no candidates")
		return nil
	}

	// Skip proxies we already track: they keep their history.
	p.mu.RLock()
	fresh := scraped[:0]
	for _, s := range scraped {
		if _, tracked := p.working[s.Key()]; !tracked {
			fresh = append(fresh, s)
		}
	}
	p.mu.RUnlock()

	validated := p.validator.ValidateAll(ctx, fresh)

	added := 0
	p.mu.Lock()
	for _, v := range validated {
		if v.IsWorking {
			p.working[v.Key()] = v
			added++
		}
	}
	total := len(p.working)
	p.mu.Unlock()

	p.log.Info().Int("added", added).Int("working", total).Msg("refresh cycle complete")
	return p.persist(ctx)
}

// Run periodically refreshes the pool, but only when supply dips below
// the configured minimum. Returns when the context is cancelled.
func (p *Pool) Run(ctx context.Context) {
	ticker := time.NewTicker(p.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if p.WorkingCount() >= p.opts.MinWorking {
				continue
			}
			if err := p.Refresh(ctx); err != nil {
				p.log.Error().Err(err).Msg("scheduled refresh failed")
			}
		case <-ctx.Done():
			p.log.Info().Msg("maintenance loop stopped")
			return
		}
	}
}

// Acquire selects a proxy. Session-sticky bindings win; otherwise the
// candidate set is filtered by protocol or ranked by speed, then drawn
// by weighted random where faster proxies carry more weight but every
// proxy keeps a 10% floor chance.
func (p *Pool) Acquire(opts AcquireOptions) (*Validated, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if opts.SessionID != "" {
		if key, bound := p.sticky[opts.SessionID]; bound {
			if v, ok := p.working[key]; ok && v.IsWorking {
				return v, nil
			}
			delete(p.sticky, opts.SessionID)
		}
	}

	candidates := make([]*Validated, 0, len(p.working))
	for _, v := range p.working {
		if !v.IsWorking {
			continue
		}
		if opts.Protocol != "" && v.Protocol != opts.Protocol {
			continue
		}
		candidates = append(candidates, v)
	}

	if len(candidates) == 0 {
		// Supply has run dry: kick off a refresh out of band and let
		// the caller decide how to cope with absence.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := p.Refresh(ctx); err != nil {
				p.log.Error().Err(err).Msg("emergency refresh failed")
			}
		}()
		return nil, ErrNoProxies
	}

	selected := p.weightedSelect(candidates, opts.PreferFast)

	if opts.SessionID != "" {
		p.sticky[opts.SessionID] = selected.Key()
	}
	return selected, nil
}

// AcquireURL is the session-facing shape of Acquire: a sticky,
// fast-preferring draw returning the proxy's key and dialable URL.
func (p *Pool) AcquireURL(sessionID string) (string, string, error) {
	v, err := p.Acquire(AcquireOptions{SessionID: sessionID, PreferFast: true})
	if err != nil {
		return "", "", err
	}
	return v.Key(), v.URL(), nil
}

// weightedSelect draws by response-time weight. PreferFast narrows the
// draw to the fastest half first.
func (p *Pool) weightedSelect(candidates []*Validated, preferFast bool) *Validated {
	if len(candidates) == 1 {
		return candidates[0]
	}

	if preferFast && len(candidates) > 2 {
		fastest := make([]*Validated, len(candidates))
		copy(fastest, candidates)
		for i := 1; i < len(fastest); i++ {
			for j := i; j > 0 && fastest[j].ResponseTime < fastest[j-1].ResponseTime; j-- {
				fastest[j], fastest[j-1] = fastest[j-1], fastest[j]
			}
		}
		candidates = fastest[:(len(fastest)+1)/2]
	}

	var maxRT time.Duration
	for _, c := range candidates {
		if c.ResponseTime > maxRT {
			maxRT = c.ResponseTime
		}
	}

	weights := make([]float64, len(candidates))
	var total float64
	for i, c := range candidates {
		w := 1.0
		if maxRT > 0 {
			// 10% floor so slow-but-working proxies still rotate in
			// and the single fastest one is not hammered exclusively.
			w = 0.1 + 0.9*float64(maxRT-c.ResponseTime)/float64(maxRT)
		}
		weights[i] = w
		total += w
	}

	p.rngMu.Lock()
	draw := p.rng.Float64() * total
	p.rngMu.Unlock()

	for i, w := range weights {
		draw -= w
		if draw <= 0 {
			return candidates[i]
		}
	}
	return candidates[len(candidates)-1]
}

// ReportUsage feeds an allocation outcome back into the pool. A
// success updates the moving-average response time; a failure counts
// toward eviction, and a proxy at the failure threshold leaves the
// working set immediately. The mutated set is persisted.
func (p *Pool) ReportUsage(ctx context.Context, key string, ok bool, rt time.Duration) {
	p.mu.Lock()
	v, tracked := p.working[key]
	if !tracked {
		p.mu.Unlock()
		return
	}

	if ok {
		v.MarkSuccess(rt)
	} else {
		v.MarkFailed()
		if v.Evictable() {
			delete(p.working, key)
			for sid, bound := range p.sticky {
				if bound == key {
					delete(p.sticky, sid)
				}
			}
			p.log.Info().Str("proxy", key).Int("failures", v.ConsecutiveFailures).Msg("proxy evicted")
		}
	}
	p.mu.Unlock()

	if err := p.persist(ctx); err != nil {
		p.log.Error().Err(err).Msg("failed to persist working set")
	}
}

// Add inserts an already validated proxy into the working set, e.g.
// from a manual import, and persists the change.
func (p *Pool) Add(ctx context.Context, v *Validated) error {
	p.mu.Lock()
	p.working[v.Key()] = v
	p.mu.Unlock()
	return p.persist(ctx)
}

// WorkingCount returns the size of the working set.
func (p *Pool) WorkingCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.working)
}

// Snapshot returns a copy of the working set for inspection.
func (p *Pool) Snapshot() []Validated {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Validated, 0, len(p.working))
	for _, v := range p.working {
		out = append(out, *v)
	}
	return out
}

// persist writes the full working set to the durable store and prunes
// evicted entries from it.
func (p *Pool) persist(ctx context.Context) error {
	// Copy by value: the shared structs keep mutating under the write
	// lock while we marshal outside it.
	p.mu.RLock()
	snapshot := make(map[string]Validated, len(p.working))
	for k, v := range p.working {
		snapshot[k] = *v
	}
	p.mu.RUnlock()

	stored, err := p.store.HGetAll(ctx, workingSetKey)
	if err != nil {
		return err
	}
	for key := range stored {
		if _, ok := snapshot[key]; !ok {
			if err := p.store.HDel(ctx, workingSetKey, key); err != nil {
				return err
			}
		}
	}

	for key, v := range snapshot {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if err := p.store.HSet(ctx, workingSetKey, key, data); err != nil {
			return err
		}
	}
	return nil
}
