package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var errBoom = errors.New("boom")

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// fakeSource serves a fixed list. Next is a pure function of seq.
type fakeSource struct {
	mu         sync.Mutex
	ids        []string
	kinds      map[string]MediaKind
	durations  map[string]time.Duration
	failFetch  map[string]bool
	fetchDelay time.Duration
	listErr    error
	resetErr   error
	nextErr    int // number of Next calls that fail before succeeding

	fetches   map[string]int
	nextCalls []uint64
	resets    int
	inFlight  int32
	maxFlight int32
}

func newFakeSource(ids ...string) *fakeSource {
	return &fakeSource{
		ids:       ids,
		kinds:     map[string]MediaKind{},
		durations: map[string]time.Duration{},
		failFetch: map[string]bool{},
		fetches:   map[string]int{},
	}
}

func (f *fakeSource) ResetSession(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.resetErr
}

func (f *fakeSource) List(ctx context.Context, sel Selection) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.ids...), nil
}

func (f *fakeSource) Next(ctx context.Context, sel Selection, seq uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCalls = append(f.nextCalls, seq)
	if f.nextErr > 0 {
		f.nextErr--
		return "", errBoom
	}
	if len(f.ids) == 0 {
		return "", ErrEndOfSequence
	}
	pos := int(seq - 1)
	if pos >= len(f.ids) {
		if !sel.Loop {
			return "", ErrEndOfSequence
		}
		pos %= len(f.ids)
	}
	return f.ids[pos], nil
}

func (f *fakeSource) Fetch(ctx context.Context, id string) (*Media, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		old := atomic.LoadInt32(&f.maxFlight)
		if n <= old || atomic.CompareAndSwapInt32(&f.maxFlight, old, n) {
			break
		}
	}

	f.mu.Lock()
	f.fetches[id]++
	fail := f.failFetch[id]
	delay := f.fetchDelay
	kind := f.kinds[id]
	dur := f.durations[id]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, fmt.Errorf("fetch %s: %w", id, errBoom)
	}
	if kind == "" {
		kind = KindImage
	}
	return &Media{ID: id, Kind: kind, ContentType: "image/jpeg", Data: []byte(id), Duration: dur}, nil
}

func (f *fakeSource) fetchCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

// recordingPresenter remembers what was shown.
type recordingPresenter struct {
	mu    sync.Mutex
	shown []string
}

func (p *recordingPresenter) Present(ctx context.Context, m *Media) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, m.ID)
	return nil
}

func (p *recordingPresenter) Shown() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.shown...)
}

// countingProvider counts acquisitions and releases.
type countingProvider struct {
	deny     bool
	acquires int32
	releases int32
}

func (p *countingProvider) Acquire(ctx context.Context) (func() error, error) {
	if p.deny {
		return nil, errors.New("permission denied")
	}
	atomic.AddInt32(&p.acquires, 1)
	return func() error {
		atomic.AddInt32(&p.releases, 1)
		return nil
	}, nil
}

func (p *countingProvider) Releases() int { return int(atomic.LoadInt32(&p.releases)) }
func (p *countingProvider) Acquires() int { return int(atomic.LoadInt32(&p.acquires)) }

// fakeAudio records track lifecycle calls.
type fakeAudio struct {
	mu      sync.Mutex
	fail    map[string]bool
	loaded  []string
	tracks  []*fakeTrack
	loadErr error
}

func (a *fakeAudio) Load(ctx context.Context, name string) (Track, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loaded = append(a.loaded, name)
	if a.fail[name] || a.loadErr != nil {
		return nil, fmt.Errorf("load %s: %w", name, errBoom)
	}
	t := &fakeTrack{name: name}
	a.tracks = append(a.tracks, t)
	return t, nil
}

func (a *fakeAudio) Loaded() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.loaded...)
}

func (a *fakeAudio) last() *fakeTrack {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.tracks) == 0 {
		return nil
	}
	return a.tracks[len(a.tracks)-1]
}

type fakeTrack struct {
	mu      sync.Mutex
	name    string
	playing bool
	paused  bool
	stopped bool
	muted   bool
	onDone  func()
}

func (t *fakeTrack) Play(onDone func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = true
	t.onDone = onDone
	return nil
}

func (t *fakeTrack) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = true
}

func (t *fakeTrack) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = false
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.playing = false
}

func (t *fakeTrack) SetMuted(m bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.muted = m
}

func (t *fakeTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *fakeTrack) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

func (t *fakeTrack) Muted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

// finish simulates the end of the track, asynchronously like a real backend.
func (t *fakeTrack) finish() {
	t.mu.Lock()
	done := t.onDone
	t.mu.Unlock()
	if done != nil {
		go done()
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// collect drains events until one of type until arrives.
func collect(t *testing.T, ch <-chan Event, until EventType, timeout time.Duration) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(timeout)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
			if e.Type == until {
				return events
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s; got %d events", until, len(events))
			return nil
		}
	}
}

func ofType(events []Event, typ EventType) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func displayedIDs(events []Event) []string {
	var ids []string
	for _, e := range ofType(events, EventItemDisplayed) {
		ids = append(ids, e.Payload.(ItemDisplayedPayload).ID)
	}
	return ids
}
