package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/campaign-engine/internal/logging"
	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

// ErrPoolExhausted signals that no context slot is available. It is a
// distinct error class so callers can defer and retry instead of
// treating saturation like a data failure.
var ErrPoolExhausted = errors.New("browser pool: capacity exceeded")

// Instance is one running browser process and its context budget.
type Instance struct {
	ID             string
	ContainerID    string
	ConnectURL     string
	ActiveContexts int
	CreatedAt      time.Time
	Fingerprint    models.Fingerprint
}

// Context is a sub-allocation inside an instance carrying its own
// fingerprint and, optionally, a proxy route.
type Context struct {
	ID          string
	BrowserID   string
	ConnectURL  string
	ProxyURL    string
	Fingerprint models.Fingerprint
	Stealth     string
	CreatedAt   time.Time
}

// ContextOptions configure one allocation.
type ContextOptions struct {
	ProxyURL string
	// Fingerprint is drawn automatically when left zero.
	Fingerprint *models.Fingerprint
}

// Pool bounds concurrent browser processes and their contexts. All
// capacity mutations happen under one lock; the semaphore enforces
// the total context budget so saturation fails fast instead of
// queueing inside the pool.
type Pool struct {
	mu        sync.Mutex
	launcher  Launcher
	fpGen     *FingerprintGenerator
	instances map[string]*Instance
	contexts  map[string]*Context

	maxBrowsers    int
	maxPerInstance int
	slots          *semaphore.Weighted
	log            zerolog.Logger
}

func NewPool(launcher Launcher, fpGen *FingerprintGenerator, maxBrowsers, maxPerInstance int) *Pool {
	if maxBrowsers <= 0 {
		maxBrowsers = 1
	}
	if maxPerInstance <= 0 {
		maxPerInstance = 1
	}
	return &Pool{
		launcher:       launcher,
		fpGen:          fpGen,
		instances:      make(map[string]*Instance),
		contexts:       make(map[string]*Context),
		maxBrowsers:    maxBrowsers,
		maxPerInstance: maxPerInstance,
		slots:          semaphore.NewWeighted(int64(maxBrowsers * maxPerInstance)),
		log:            logging.WithComponent("BrowserPool"),
	}
}

// AcquireContext finds an instance with spare context capacity or
// launches a new one when under the instance cap. Saturation returns
// ErrPoolExhausted immediately.
func (p *Pool) AcquireContext(ctx context.Context, opts ContextOptions) (*Context, error) {
	if !p.slots.TryAcquire(1) {
		return nil, ErrPoolExhausted
	}

	bctx, err := p.acquireLocked(ctx, opts)
	if err != nil {
		p.slots.Release(1)
		return nil, err
	}
	return bctx, nil
}

func (p *Pool) acquireLocked(ctx context.Context, opts ContextOptions) (*Context, error) {
	p.mu.Lock()
	var target *Instance
	for _, inst := range p.instances {
		// Instances without a container are still mid-launch.
		if inst.ContainerID != "" && inst.ActiveContexts < p.maxPerInstance {
			target = inst
			break
		}
	}

	if target == nil {
		if len(p.instances) >= p.maxBrowsers {
			p.mu.Unlock()
			return nil, ErrPoolExhausted
		}
		// Reserve the instance entry before the slow launch so a
		// concurrent acquire does not over-launch.
		target = &Instance{
			ID:          uuid.New().String(),
			CreatedAt:   time.Now(),
			Fingerprint: p.fpGen.Generate(),
		}
		p.instances[target.ID] = target
		p.mu.Unlock()

		endpoint, err := p.launcher.Launch(ctx, target.ID)
		if err != nil {
			p.mu.Lock()
			delete(p.instances, target.ID)
			p.mu.Unlock()
			return nil, fmt.Errorf("launching browser instance: %w", err)
		}

		p.mu.Lock()
		target.ContainerID = endpoint.ContainerID
		target.ConnectURL = endpoint.ConnectURL
		p.log.Info().Str("instance", target.ID[:8]).Str("port", endpoint.Port).Msg("browser instance launched")
	}

	fp := p.fpGen.Generate()
	if opts.Fingerprint != nil {
		fp = *opts.Fingerprint
	}

	bctx := &Context{
		ID:          uuid.New().String(),
		BrowserID:   target.ID,
		ConnectURL:  target.ConnectURL,
		ProxyURL:    opts.ProxyURL,
		Fingerprint: fp,
		Stealth:     StealthScript(fp),
		CreatedAt:   time.Now(),
	}
	target.ActiveContexts++
	p.contexts[bctx.ID] = bctx
	p.mu.Unlock()

	return bctx, nil
}

// ReleaseContext closes a context. When the owning instance drops to
// zero contexts and at least one other instance exists, the instance
// is closed too; one warm instance is always kept to avoid paying
// startup latency on the next acquire.
func (p *Pool) ReleaseContext(ctx context.Context, contextID string) error {
	p.mu.Lock()
	bctx, ok := p.contexts[contextID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("context %s not found", contextID)
	}
	delete(p.contexts, contextID)

	inst := p.instances[bctx.BrowserID]
	var toStop *Instance
	if inst != nil {
		inst.ActiveContexts--
		if inst.ActiveContexts <= 0 && len(p.instances) > 1 {
			delete(p.instances, inst.ID)
			toStop = inst
		}
	}
	p.mu.Unlock()
	p.slots.Release(1)

	if toStop != nil && toStop.ContainerID != "" {
		if err := p.launcher.Stop(ctx, toStop.ContainerID); err != nil {
			p.log.Warn().Err(err).Str("instance", toStop.ID[:8]).Msg("failed to stop idle browser")
			return err
		}
		p.log.Info().Str("instance", toStop.ID[:8]).Msg("idle browser instance closed")
	}
	return nil
}

// GetContext returns a live context by ID.
func (p *Pool) GetContext(contextID string) (*Context, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bctx, ok := p.contexts[contextID]
	return bctx, ok
}

// InstanceHealthy reports whether the instance backing a context is
// still reachable.
func (p *Pool) InstanceHealthy(ctx context.Context, browserID string) bool {
	p.mu.Lock()
	inst, ok := p.instances[browserID]
	p.mu.Unlock()
	if !ok || inst.ContainerID == "" {
		return false
	}
	return p.launcher.Healthy(ctx, inst.ContainerID)
}

// InstanceCount returns the number of live browser instances.
func (p *Pool) InstanceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.instances)
}

// ContextCount returns the number of live contexts.
func (p *Pool) ContextCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.contexts)
}

// Shutdown stops every instance. Contexts are abandoned; callers are
// expected to have drained their sessions first.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	instances := make([]*Instance, 0, len(p.instances))
	for _, inst := range p.instances {
		instances = append(instances, inst)
	}
	p.instances = make(map[string]*Instance)
	p.contexts = make(map[string]*Context)
	p.mu.Unlock()

	for _, inst := range instances {
		if inst.ContainerID == "" {
			continue
		}
		if err := p.launcher.Stop(ctx, inst.ContainerID); err != nil {
			p.log.Warn().Err(err).Str("instance", inst.ID[:8]).Msg("failed to stop browser on shutdown")
		}
	}
}
