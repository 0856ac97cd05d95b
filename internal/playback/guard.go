package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

type ResourceKind string

const (
	ResourcePresentation ResourceKind = "presentation"
	ResourceWakeLock     ResourceKind = "wake_lock"
)

// resourceOrder is the acquisition order. Release runs in reverse.
var resourceOrder = []ResourceKind{ResourcePresentation, ResourceWakeLock}

// ResourceProvider acquires one exclusive device capability. The returned
// release function is called at most once.
type ResourceProvider interface {
	Acquire(ctx context.Context) (release func() error, err error)
}

// ResourceProviderFunc adapts a function to ResourceProvider.
type ResourceProviderFunc func(ctx context.Context) (func() error, error)

func (f ResourceProviderFunc) Acquire(ctx context.Context) (func() error, error) {
	return f(ctx)
}

type lease struct {
	kind     ResourceKind
	acquired bool
	released bool
	release  func() error
}

// LeaseInfo is a point-in-time view of a lease.
type LeaseInfo struct {
	Kind     ResourceKind `json:"kind"`
	Acquired bool         `json:"acquired"`
	Released bool         `json:"released"`
}

// ResourceGuard owns the session's device leases. Once ReleaseAll has
// run the guard is closed and never holds a lease again.
type ResourceGuard struct {
	providers map[ResourceKind]ResourceProvider
	logger    zerolog.Logger

	mu     sync.Mutex
	leases map[ResourceKind]*lease
	closed bool
}

func NewResourceGuard(providers map[ResourceKind]ResourceProvider, logger zerolog.Logger) *ResourceGuard {
	g := &ResourceGuard{
		providers: providers,
		logger:    logger.With().Str("component", "resource_guard").Logger(),
		leases:    make(map[ResourceKind]*lease),
	}
	for _, kind := range resourceOrder {
		g.leases[kind] = &lease{kind: kind}
	}
	return g
}

// AcquireAll attempts every resource independently and returns the
// failures. None of them is fatal.
func (g *ResourceGuard) AcquireAll(ctx context.Context) []error {
	var errs []error
	for _, kind := range resourceOrder {
		if err := g.acquire(ctx, kind); err != nil {
			g.logger.Warn().
				Err(err).
				Str("resource", string(kind)).
				Msg("resource unavailable, continuing without it")
			errs = append(errs, err)
		}
	}
	return errs
}

func (g *ResourceGuard) acquire(ctx context.Context, kind ResourceKind) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return &ResourceAcquisitionError{Kind: kind, Err: ErrGuardClosed}
	}
	l := g.leases[kind]
	if l.acquired {
		g.mu.Unlock()
		return nil
	}
	provider := g.providers[kind]
	g.mu.Unlock()

	if provider == nil {
		return &ResourceAcquisitionError{Kind: kind, Err: ErrUnsupported}
	}

	release, err := provider.Acquire(ctx)
	if err != nil {
		return &ResourceAcquisitionError{Kind: kind, Err: err}
	}
	if release == nil {
		release = func() error { return nil }
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		// The session ended while we were waiting on the provider.
		if rerr := release(); rerr != nil {
			g.logger.Warn().Err(rerr).Str("resource", string(kind)).Msg("late lease release failed")
		}
		return &ResourceAcquisitionError{Kind: kind, Err: ErrGuardClosed}
	}
	l.acquired = true
	l.release = release
	g.mu.Unlock()

	g.logger.Debug().Str("resource", string(kind)).Msg("resource acquired")
	return nil
}

// ReleaseAll releases every acquired lease exactly once and closes the
// guard. It returns the number of release calls made; repeat calls make none.
func (g *ResourceGuard) ReleaseAll() int {
	g.mu.Lock()
	g.closed = true

	var pending []*lease
	for i := len(resourceOrder) - 1; i >= 0; i-- {
		l := g.leases[resourceOrder[i]]
		if l.acquired && !l.released {
			l.released = true
			pending = append(pending, l)
		}
	}
	g.mu.Unlock()

	for _, l := range pending {
		if err := l.release(); err != nil {
			g.logger.Warn().
				Err(fmt.Errorf("release %s: %w", l.kind, err)).
				Msg("lease release failed")
			continue
		}
		g.logger.Debug().Str("resource", string(l.kind)).Msg("resource released")
	}
	return len(pending)
}

func (g *ResourceGuard) Leases() []LeaseInfo {
	g.mu.Lock()
	defer g.mu.Unlock()

	infos := make([]LeaseInfo, 0, len(resourceOrder))
	for _, kind := range resourceOrder {
		l := g.leases[kind]
		infos = append(infos, LeaseInfo{Kind: kind, Acquired: l.acquired, Released: l.released})
	}
	return infos
}

// Holding reports whether kind is currently held.
func (g *ResourceGuard) Holding(kind ResourceKind) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.leases[kind]
	return ok && l.acquired && !l.released
}
