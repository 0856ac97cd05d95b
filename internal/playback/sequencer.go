package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Source is the remote media source the engine plays from.
type Source interface {
	Fetcher
	// ResetSession clears any playback pointer left by a previous session.
	ResetSession(ctx context.Context) error
	// List resolves the selection into its display order. Shuffling, if
	// any, happens here and only here.
	List(ctx context.Context, sel Selection) ([]string, error)
	// Next advances the pointer to position seq (1-based) and returns the
	// id there. Repeating a seq returns the same id. ErrEndOfSequence
	// signals exhaustion.
	Next(ctx context.Context, sel Selection, seq uint64) (string, error)
}

// Presenter renders one item. It is the display side of the engine.
type Presenter interface {
	Present(ctx context.Context, m *Media) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, m *Media) error

func (f PresenterFunc) Present(ctx context.Context, m *Media) error {
	return f(ctx, m)
}

type sequencerHooks struct {
	emit        func(t EventType, payload any)
	onDisplayed func(m *Media)
	onExhausted func()
}

// sequencer owns the display pointer. Only its loop goroutine mutates
// seq and current; other goroutines read them under mu.
type sequencer struct {
	source    Source
	cache     *PrefetchCache
	presenter Presenter
	selection Selection
	cadence   time.Duration
	hooks     sequencerHooks
	logger    zerolog.Logger

	mu        sync.Mutex
	seq       uint64
	current   string
	displayed int
	paused    bool

	// displayMu is held from the pause check to the end of a display, so
	// pause returns only after any in-flight display has landed.
	displayMu sync.Mutex

	resumeCh chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

func newSequencer(source Source, cache *PrefetchCache, presenter Presenter, sel Selection, cadence time.Duration, hooks sequencerHooks, logger zerolog.Logger) *sequencer {
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	return &sequencer{
		source:    source,
		cache:     cache,
		presenter: presenter,
		selection: sel,
		cadence:   cadence,
		hooks:     hooks,
		logger:    logger.With().Str("component", "sequencer").Logger(),
		resumeCh:  make(chan struct{}, 1),
	}
}

func (s *sequencer) start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

// stop cancels the loop and waits for it to exit, so no tick can fire
// after stop returns.
func (s *sequencer) stop() {
	s.mu.Lock()
	done, cancel := s.done, s.cancel
	s.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done
}

func (s *sequencer) pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()

	s.displayMu.Lock()
	s.displayMu.Unlock()
}

func (s *sequencer) resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()

	select {
	case s.resumeCh <- struct{}{}:
	default:
	}
}

func (s *sequencer) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *sequencer) stats() (displayed int, current string, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayed, s.current, s.seq
}

func (s *sequencer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	delay, ok := s.tick(ctx)
	if !ok {
		return
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.resumeCh:
			timer.Stop()
			timer.Reset(s.cadence)

		case <-timer.C:
			if ctx.Err() != nil {
				return
			}
			if s.isPaused() {
				// Resume re-arms the timer.
				continue
			}
			delay, ok := s.tick(ctx)
			if !ok {
				return
			}
			timer.Reset(delay)
		}
	}
}

// tick performs one display advance. It returns the delay until the next
// tick, or false when the loop must end.
func (s *sequencer) tick(ctx context.Context) (time.Duration, bool) {
	s.mu.Lock()
	seq := s.seq + 1
	s.mu.Unlock()

	id, err := s.source.Next(ctx, s.selection, seq)
	if ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, ErrEndOfSequence) {
		s.logger.Info().Uint64("seq", seq).Msg("source exhausted")
		if s.hooks.onExhausted != nil {
			go s.hooks.onExhausted()
		}
		return 0, false
	}
	if err != nil {
		// seq is not consumed, the retry asks for the same position.
		s.skip(&FetchError{Err: err})
		return s.cadence, true
	}

	media, hit, err := s.cache.Get(ctx, id)
	if ctx.Err() != nil {
		return 0, false
	}
	if err != nil {
		s.consume(seq)
		s.cache.Skip(id)
		s.skip(&FetchError{ID: id, Err: err})
		return s.cadence, true
	}

	s.displayMu.Lock()
	defer s.displayMu.Unlock()

	if s.isPaused() {
		// seq stays unconsumed; the first tick after resume shows id.
		return s.cadence, true
	}

	if err := s.presenter.Present(ctx, media); err != nil {
		if ctx.Err() != nil {
			return 0, false
		}
		s.consume(seq)
		s.cache.Skip(id)
		s.skip(&FetchError{ID: id, Err: fmt.Errorf("present: %w", err)})
		return s.cadence, true
	}
	if ctx.Err() != nil {
		return 0, false
	}

	s.mu.Lock()
	s.seq = seq
	s.current = id
	s.displayed++
	s.mu.Unlock()

	s.logger.Debug().
		Str("id", id).
		Uint64("seq", seq).
		Bool("cache_hit", hit).
		Msg("item displayed")

	s.emit(EventItemDisplayed, ItemDisplayedPayload{ID: id, Kind: media.Kind, Seq: seq, Hit: hit})
	if s.hooks.onDisplayed != nil {
		s.hooks.onDisplayed(media)
	}
	s.cache.Advance(id)

	delay := s.cadence
	if media.Kind == KindVideo && media.Duration > delay {
		delay = media.Duration
	}
	return delay, true
}

func (s *sequencer) consume(seq uint64) {
	s.mu.Lock()
	s.seq = seq
	s.mu.Unlock()
}

func (s *sequencer) skip(err *FetchError) {
	s.logger.Warn().Err(err).Str("id", err.ID).Msg("tick skipped")
	s.emit(EventError, newErrorPayload(err))
}

func (s *sequencer) emit(t EventType, payload any) {
	if s.hooks.emit != nil {
		s.hooks.emit(t, payload)
	}
}
