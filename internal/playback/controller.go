package playback

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	ReasonStopped   = "stopped"
	ReasonExhausted = "exhausted"
	ReasonReplaced  = "replaced"
	ReasonFailed    = "failed"
)

// Dependencies are the collaborators a Controller drives. Audio,
// Presenter and Resources are optional.
type Dependencies struct {
	Source    Source
	Presenter Presenter
	Audio     AudioBackend
	Resources map[ResourceKind]ResourceProvider
	Rand      *rand.Rand
}

// Controller runs at most one playback session at a time. It is the only
// entry point for callers and the only place user-visible errors surface.
type Controller struct {
	deps   Dependencies
	logger zerolog.Logger
	hub    *hub

	startMu sync.Mutex // serializes Start
	mu      sync.Mutex
	current *Session
}

func NewController(deps Dependencies, logger zerolog.Logger) *Controller {
	if deps.Presenter == nil {
		deps.Presenter = PresenterFunc(func(context.Context, *Media) error { return nil })
	}
	return &Controller{
		deps:   deps,
		logger: logger.With().Str("component", "controller").Logger(),
		hub:    newHub(),
	}
}

// Subscribe returns a channel of session events and a function that
// cancels the subscription. Slow subscribers lose events rather than
// stall playback.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	return c.hub.subscribe(buffer)
}

// Start validates cfg, replaces any active session and blocks until the
// new session reaches Playing or fails.
func (c *Controller) Start(ctx context.Context, cfg Config) (*Session, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		c.logger.Warn().Err(err).Msg("session rejected")
		c.publish("", EventError, newErrorPayload(err))
		return nil, err
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	prev := c.current
	c.mu.Unlock()
	if prev != nil {
		prev.stop(ReasonReplaced, nil)
	}

	s := c.newSession(cfg)
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()

	if err := s.initialize(ctx); err != nil {
		return s, err
	}
	return s, nil
}

func (c *Controller) Pause() error {
	s := c.active()
	if s == nil {
		return ErrNoActiveSession
	}
	return s.pause()
}

func (c *Controller) Resume() error {
	s := c.active()
	if s == nil {
		return ErrNoActiveSession
	}
	return s.resume()
}

// Stop terminates the active session, if any. It returns once every
// lease is released; calling it again is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s != nil {
		s.stop(ReasonStopped, nil)
	}
}

// Close stops the active session and closes every subscription.
func (c *Controller) Close() {
	c.Stop()
	c.hub.close()
}

// Current returns the most recent session, active or not.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) Status() Status {
	s := c.Current()
	if s == nil {
		return Status{State: StateIdle}
	}
	return s.Status()
}

func (c *Controller) active() *Session {
	s := c.Current()
	if s == nil || !s.State().Active() {
		return nil
	}
	return s
}

func (c *Controller) publish(sessionID string, t EventType, payload any) {
	c.hub.publish(Event{Type: t, SessionID: sessionID, At: time.Now(), Payload: payload})
}

func (c *Controller) newSession(cfg Config) *Session {
	id := uuid.New().String()
	logger := c.logger.With().Str("session", id).Logger()

	s := &Session{
		id:        id,
		config:    cfg,
		createdAt: time.Now(),
		ctrl:      c,
		logger:    logger,
		state:     StateIdle,
		done:      make(chan struct{}),
	}
	s.guard = NewResourceGuard(c.deps.Resources, logger)
	s.audio = NewAudioSynchronizer(c.deps.Audio, cfg.SelectedMusic, cfg.RandomizeMusic, cfg.MuteMusicDuringVideo, c.deps.Rand, logger)
	return s
}

// Session is one run of the engine. Its state changes only through the
// Controller.
type Session struct {
	id        string
	config    Config
	createdAt time.Time
	ctrl      *Controller
	logger    zerolog.Logger

	guard *ResourceGuard
	audio *AudioSynchronizer

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	cache  *PrefetchCache
	seq    *sequencer
	reason string
	err    error
	done   chan struct{}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Config() Config       { return s.config }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Done is closed once the session is Terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Leases reports the session's resource leases.
func (s *Session) Leases() []LeaseInfo {
	return s.guard.Leases()
}

// Playlist returns the resolved audio order.
func (s *Session) Playlist() []string {
	return s.audio.Playlist()
}

// Status is a snapshot of a session for status endpoints.
type Status struct {
	SessionID string        `json:"session_id,omitempty"`
	State     State         `json:"state"`
	CreatedAt time.Time     `json:"created_at,omitempty"`
	Displayed int           `json:"displayed"`
	Current   string        `json:"current,omitempty"`
	Seq       uint64        `json:"seq"`
	Window    []WindowEntry `json:"window,omitempty"`
	Leases    []LeaseInfo   `json:"leases,omitempty"`
	Audio     AudioState    `json:"audio"`
	Muted     bool          `json:"muted"`
	Reason    string        `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func (s *Session) Status() Status {
	s.mu.Lock()
	st := Status{
		SessionID: s.id,
		State:     s.state,
		CreatedAt: s.createdAt,
		Reason:    s.reason,
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	seq, cache := s.seq, s.cache
	s.mu.Unlock()

	if seq != nil {
		st.Displayed, st.Current, st.Seq = seq.stats()
	}
	if cache != nil && st.State.Active() {
		st.Window = cache.Snapshot()
	}
	st.Leases = s.guard.Leases()
	st.Audio = s.audio.State()
	st.Muted = s.audio.Muted()
	return st
}

func (s *Session) emit(t EventType, payload any) {
	s.ctrl.publish(s.id, t, payload)
}

// transition moves from one of the allowed states to next.
func (s *Session) transition(next State, from ...State) bool {
	s.mu.Lock()
	prev := s.state
	ok := false
	for _, f := range from {
		if prev == f {
			ok = true
			break
		}
	}
	if ok {
		s.state = next
	}
	s.mu.Unlock()

	if ok {
		s.logger.Debug().Str("from", string(prev)).Str("to", string(next)).Msg("state changed")
		s.emit(EventStateChanged, StateChangedPayload{From: prev, To: next})
	}
	return ok
}

// initialize runs the Initializing phase. The session outlives parent;
// only values are taken from it.
func (s *Session) initialize(parent context.Context) error {
	deps := s.ctrl.deps

	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if !s.transition(StateInitializing, StateIdle) {
		return ErrSessionStopped
	}
	s.logger.Info().
		Strs("folders", s.config.SelectedFolders).
		Int("cadence_ms", s.config.CadenceMs).
		Int("window", s.config.WindowSize).
		Msg("session initializing")

	sel := s.config.Selection()

	if err := deps.Source.ResetSession(ctx); err != nil {
		return s.abort(ctx, &TerminalError{Reason: "reset remote pointer", Err: err})
	}

	ids, err := deps.Source.List(ctx, sel)
	if err != nil {
		return s.abort(ctx, &TerminalError{Reason: "list media", Err: err})
	}
	if len(ids) == 0 {
		return s.abort(ctx, &TerminalError{Reason: "selection contains no media"})
	}

	for _, err := range s.guard.AcquireAll(ctx) {
		// An unconfigured resource is not a failure, and a closed guard
		// means stop already ran.
		if errors.Is(err, ErrUnsupported) || errors.Is(err, ErrGuardClosed) {
			continue
		}
		s.emit(EventError, newErrorPayload(err))
	}

	cache := NewPrefetchCache(ctx, deps.Source, ids, s.config.WindowSize, s.config.Loop, s.logger)
	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()

	// Stop may interrupt the fill; it owns cleanup in that case.
	if err := cache.Fill(ctx); err != nil {
		cache.Close()
		return ErrSessionStopped
	}

	seq := newSequencer(deps.Source, cache, deps.Presenter, sel, s.config.Cadence(), sequencerHooks{
		emit:        s.emit,
		onDisplayed: func(m *Media) { s.audio.OnItemDisplayed(m.Kind) },
		onExhausted: func() { s.stop(ReasonExhausted, nil) },
	}, s.logger)

	// The state check and the goroutine launches happen under one lock so
	// a concurrent stop either prevents them or sees them started.
	s.mu.Lock()
	if s.state != StateInitializing {
		s.mu.Unlock()
		return ErrSessionStopped
	}
	s.state = StatePlaying
	s.seq = seq
	s.audio.Start(ctx)
	seq.start(ctx)
	s.mu.Unlock()

	s.emit(EventStateChanged, StateChangedPayload{From: StateInitializing, To: StatePlaying})
	s.logger.Info().Int("items", len(ids)).Msg("session playing")
	return nil
}

// abort ends a session that cannot start. Cleanup completes before the
// error is surfaced.
func (s *Session) abort(ctx context.Context, err *TerminalError) error {
	if ctx.Err() != nil {
		// A concurrent stop already ran; report that instead.
		return ErrSessionStopped
	}
	s.logger.Error().Err(err).Msg("session failed to start")
	s.stop(ReasonFailed, err)
	return err
}

func (s *Session) pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StatePaused:
		return nil
	case StatePlaying:
	default:
		return ErrInvalidState
	}

	s.state = StatePaused
	s.seq.pause()
	s.audio.Pause()
	s.emit(EventStateChanged, StateChangedPayload{From: StatePlaying, To: StatePaused})
	s.logger.Info().Msg("session paused")
	return nil
}

func (s *Session) resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StatePlaying:
		return nil
	case StatePaused:
	default:
		return ErrInvalidState
	}

	s.state = StatePlaying
	s.seq.resume()
	s.audio.Resume()
	s.emit(EventStateChanged, StateChangedPayload{From: StatePaused, To: StatePlaying})
	s.logger.Info().Msg("session resumed")
	return nil
}

// stop tears the session down: sequencer, audio, prefetch, then leases.
// Concurrent and repeated calls wait for the first one to finish.
func (s *Session) stop(reason string, cause error) {
	s.mu.Lock()
	if s.state == StateTerminating || s.state == StateTerminated {
		s.mu.Unlock()
		<-s.done
		return
	}
	prev := s.state
	s.state = StateTerminating
	if s.cancel != nil {
		s.cancel()
	}
	seq, cache := s.seq, s.cache
	s.mu.Unlock()

	s.emit(EventStateChanged, StateChangedPayload{From: prev, To: StateTerminating})

	if seq != nil {
		seq.stop()
	}
	s.audio.Stop()
	if cache != nil {
		cache.Close()
	}
	released := s.guard.ReleaseAll()

	var displayed int
	if seq != nil {
		displayed, _, _ = seq.stats()
	}

	s.mu.Lock()
	s.state = StateTerminated
	s.reason = reason
	s.err = cause
	s.mu.Unlock()

	s.logger.Info().
		Str("reason", reason).
		Int("displayed", displayed).
		Int("released", released).
		Msg("session terminated")

	s.emit(EventStateChanged, StateChangedPayload{From: StateTerminating, To: StateTerminated})
	ended := SessionEndedPayload{
		Reason:    reason,
		Displayed: displayed,
		Folders:   append([]string(nil), s.config.SelectedFolders...),
		StartedAt: s.createdAt,
	}
	if cause != nil {
		s.emit(EventError, newErrorPayload(cause))
		ended.Error = cause.Error()
	}
	s.emit(EventSessionEnded, ended)
	close(s.done)
}

// Wait blocks until the session is Terminated or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
