package kv

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const probeKey = "health:probe"

// FailoverConfig tunes the Failover wrapper. Zero values take the defaults
// noted per field.
type FailoverConfig struct {
	// ProbeInterval bounds how often an unhealthy primary is re-probed.
	// Default 30s.
	ProbeInterval time.Duration
	// OpTimeout caps every primary operation. Default 200ms.
	OpTimeout time.Duration
	// OnStateChange, if set, is called once per health transition.
	OnStateChange func(healthy bool)
}

// Failover routes operations to a primary Store while it is healthy and to a
// local fallback while it is not. The first operation that fails against the
// primary flips routing and is itself served from the fallback, so callers
// never see the outage. A background probe restores the primary once it
// answers again.
//
// State written during an outage lives only in the fallback; the two stores
// are not reconciled. Rate-limit state is short-lived enough that divergence
// heals through key expiry.
type Failover struct {
	primary  Store
	fallback Store
	cfg      FailoverConfig

	healthy   atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewFailover wraps primary with fallback and starts the health probe. The
// primary is assumed healthy until proven otherwise.
func NewFailover(primary, fallback Store, cfg FailoverConfig) *Failover {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 30 * time.Second
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 200 * time.Millisecond
	}

	f := &Failover{
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
		done:     make(chan struct{}),
	}
	f.healthy.Store(true)

	f.wg.Add(1)
	go f.probeLoop()

	return f
}

// Healthy reports whether operations currently route to the primary.
func (f *Failover) Healthy() bool {
	return f.healthy.Load()
}

// Close stops the health probe. The wrapper remains usable, pinned to
// whichever store it last routed to.
func (f *Failover) Close() {
	f.closeOnce.Do(func() {
		close(f.done)
		f.wg.Wait()
	})
}

func (f *Failover) Get(ctx context.Context, key string) (string, bool, error) {
	if f.healthy.Load() {
		opCtx, cancel := f.opContext(ctx)
		value, ok, err := f.primary.Get(opCtx, key)
		cancel()
		if err == nil {
			return value, ok, nil
		}
		f.markUnhealthy()
	}
	return f.fallback.Get(ctx, key)
}

func (f *Failover) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.healthy.Load() {
		opCtx, cancel := f.opContext(ctx)
		err := f.primary.Set(opCtx, key, value, ttl)
		cancel()
		if err == nil {
			return nil
		}
		f.markUnhealthy()
	}
	return f.fallback.Set(ctx, key, value, ttl)
}

func (f *Failover) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if f.healthy.Load() {
		opCtx, cancel := f.opContext(ctx)
		count, err := f.primary.Incr(opCtx, key, ttl)
		cancel()
		if err == nil {
			return count, nil
		}
		f.markUnhealthy()
	}
	return f.fallback.Incr(ctx, key, ttl)
}

func (f *Failover) Exists(ctx context.Context, key string) (bool, error) {
	if f.healthy.Load() {
		opCtx, cancel := f.opContext(ctx)
		ok, err := f.primary.Exists(opCtx, key)
		cancel()
		if err == nil {
			return ok, nil
		}
		f.markUnhealthy()
	}
	return f.fallback.Exists(ctx, key)
}

// Del removes keys from both stores: an administrative reset must clear any
// state the fallback accumulated during an outage.
func (f *Failover) Del(ctx context.Context, keys ...string) error {
	if f.healthy.Load() {
		opCtx, cancel := f.opContext(ctx)
		err := f.primary.Del(opCtx, keys...)
		cancel()
		if err == nil {
			return f.fallback.Del(ctx, keys...)
		}
		f.markUnhealthy()
	}
	return f.fallback.Del(ctx, keys...)
}

func (f *Failover) probeLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if f.healthy.Load() {
				continue
			}
			f.probe()
		case <-f.done:
			return
		}
	}
}

// probe round-trips a sentinel key through the primary and restores routing
// on success.
func (f *Failover) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.OpTimeout)
	defer cancel()

	if err := f.primary.Set(ctx, probeKey, "ok", time.Minute); err != nil {
		return
	}
	if _, _, err := f.primary.Get(ctx, probeKey); err != nil {
		return
	}
	f.markHealthy()
}

func (f *Failover) markUnhealthy() {
	if f.healthy.CompareAndSwap(true, false) {
		f.notify(false)
	}
}

func (f *Failover) markHealthy() {
	if f.healthy.CompareAndSwap(false, true) {
		f.notify(true)
	}
}

func (f *Failover) notify(healthy bool) {
	if f.cfg.OnStateChange != nil {
		f.cfg.OnStateChange(healthy)
	}
}

func (f *Failover) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, f.cfg.OpTimeout)
}
