package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Fetcher retrieves the bytes of one media item.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (*Media, error)
}

type windowEntry struct {
	id     string
	status ItemStatus
	media  *Media
	err    error
	done   chan struct{} // closed once status leaves Pending
}

// WindowEntry is a point-in-time view of one prefetch slot.
type WindowEntry struct {
	ID     string     `json:"id"`
	Status ItemStatus `json:"status"`
}

// PrefetchCache keeps a bounded lookahead window over the session's
// ordered identifier list. Window size never exceeds capacity and the
// current entry is never evicted.
type PrefetchCache struct {
	fetcher  Fetcher
	capacity int
	loop     bool
	logger   zerolog.Logger

	mu      sync.Mutex
	order   []string
	cursor  int // next position in order to enqueue
	window  []*windowEntry
	index   map[string]*windowEntry
	current string
	closed  bool

	flight singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPrefetchCache(ctx context.Context, fetcher Fetcher, order []string, capacity int, loop bool, logger zerolog.Logger) *PrefetchCache {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	cctx, cancel := context.WithCancel(ctx)

	return &PrefetchCache{
		fetcher:  fetcher,
		capacity: capacity,
		loop:     loop,
		logger:   logger.With().Str("component", "prefetch").Logger(),
		order:    append([]string(nil), order...),
		index:    make(map[string]*windowEntry),
		ctx:      cctx,
		cancel:   cancel,
	}
}

// Fill enqueues the first window and waits until every initial fetch has
// settled. Individual failures leave Failed entries; only cancellation
// fails the fill.
func (c *PrefetchCache) Fill(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionStopped
	}
	var initial []*windowEntry
	for len(c.window) < c.capacity {
		e := c.enqueueLocked()
		if e == nil {
			break
		}
		initial = append(initial, e)
	}
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range initial {
		g.Go(func() error {
			c.load(gctx, e)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	failed := 0
	for _, e := range initial {
		if e.status == StatusFailed {
			failed++
		}
	}
	c.logger.Info().
		Int("window", len(initial)).
		Int("failed", failed).
		Int("capacity", c.capacity).
		Msg("initial window filled")
	return nil
}

// Get resolves id. A Loaded window entry is a hit; a Pending one is
// awaited. Missing or Failed entries fall back to a direct fetch that
// does not touch the window.
func (c *PrefetchCache) Get(ctx context.Context, id string) (*Media, bool, error) {
	c.mu.Lock()
	e, ok := c.index[id]
	c.mu.Unlock()

	if ok {
		select {
		case <-e.done:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}

		c.mu.Lock()
		status, media := e.status, e.media
		c.mu.Unlock()
		if status == StatusLoaded {
			return media, true, nil
		}
	}

	c.logger.Debug().Str("id", id).Msg("window miss, fetching directly")
	media, err := c.fetch(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return media, false, nil
}

// Advance marks id as displayed, evicts consumed entries ahead of it and
// schedules one replacement fetch per freed slot.
func (c *PrefetchCache) Advance(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.current = id

	pos := -1
	for i, e := range c.window {
		if e.id == id {
			pos = i
			break
		}
	}

	evict := pos
	if pos < 0 && len(c.window) > 0 {
		// Displayed outside the window: count the oldest entry as consumed.
		evict = 1
	}
	for _, e := range c.window[:max(evict, 0)] {
		if c.index[e.id] == e {
			delete(c.index, e.id)
		}
	}
	if evict > 0 {
		c.window = append(c.window[:0:0], c.window[evict:]...)
	}

	c.topUpLocked()
}

// Skip drops id after it failed to display. The entry on screen stays
// current and in the window; only the failed slot is refilled.
func (c *PrefetchCache) Skip(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || id == c.current {
		return
	}
	for i, e := range c.window {
		if e.id == id {
			if c.index[id] == e {
				delete(c.index, id)
			}
			c.window = append(c.window[:i:i], c.window[i+1:]...)
			break
		}
	}
	c.topUpLocked()
}

// topUpLocked schedules one background fetch per free slot.
func (c *PrefetchCache) topUpLocked() {
	for len(c.window) < c.capacity {
		e := c.enqueueLocked()
		if e == nil {
			break
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.load(c.ctx, e)
		}()
	}
}

// Close cancels background fetches and waits for them.
func (c *PrefetchCache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *PrefetchCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.window)
}

func (c *PrefetchCache) Capacity() int {
	return c.capacity
}

// Current returns the id last passed to Advance.
func (c *PrefetchCache) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *PrefetchCache) Snapshot() []WindowEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]WindowEntry, 0, len(c.window))
	for _, e := range c.window {
		out = append(out, WindowEntry{ID: e.id, Status: e.status})
	}
	return out
}

// enqueueLocked appends the next id from the order as a Pending entry.
// It returns nil when the order is exhausted or, in loop mode, when the
// next id is already in the window.
func (c *PrefetchCache) enqueueLocked() *windowEntry {
	if len(c.order) == 0 {
		return nil
	}
	if c.cursor >= len(c.order) && !c.loop {
		return nil
	}

	id := c.order[c.cursor%len(c.order)]
	if _, exists := c.index[id]; exists {
		return nil
	}
	c.cursor++

	e := &windowEntry{id: id, status: StatusPending, done: make(chan struct{})}
	c.window = append(c.window, e)
	c.index[id] = e
	return e
}

func (c *PrefetchCache) load(ctx context.Context, e *windowEntry) {
	media, err := c.fetch(ctx, e.id)

	c.mu.Lock()
	if err != nil {
		e.status = StatusFailed
		e.err = err
	} else {
		e.status = StatusLoaded
		e.media = media
	}
	close(e.done)
	c.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		c.logger.Warn().Err(err).Str("id", e.id).Msg("prefetch failed")
	}
}

// fetch deduplicates concurrent requests for the same id. The shared
// fetch runs under the cache lifetime so one waiter giving up does not
// cancel it for the others. Close waits for every flight to settle.
func (c *PrefetchCache) fetch(ctx context.Context, id string) (*Media, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrSessionStopped
	}
	c.wg.Add(1)
	c.mu.Unlock()

	ch := c.flight.DoChan(id, func() (any, error) {
		return c.fetcher.Fetch(c.ctx, id)
	})
	out := make(chan singleflight.Result, 1)
	go func() {
		defer c.wg.Done()
		out <- <-ch
	}()

	select {
	case res := <-out:
		if res.Err != nil {
			return nil, res.Err
		}
		media, ok := res.Val.(*Media)
		if !ok || media == nil {
			return nil, fmt.Errorf("fetch %s: empty result", id)
		}
		return media, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
