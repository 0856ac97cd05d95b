package playback

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/rs/zerolog"
)

// AudioBackend loads tracks for playback.
type AudioBackend interface {
	Load(ctx context.Context, track string) (Track, error)
}

// Track is a loaded, playable audio track. Play must return before
// onDone runs; onDone is never invoked from inside Play.
type Track interface {
	Play(onDone func()) error
	Pause()
	Resume()
	Stop()
	SetMuted(muted bool)
}

type AudioState string

const (
	AudioStopped AudioState = "stopped"
	AudioPlaying AudioState = "playing"
	AudioPaused  AudioState = "paused"
)

// AudioSynchronizer plays the session playlist independently of the
// slide cadence. The playlist order is fixed at construction.
type AudioSynchronizer struct {
	backend         AudioBackend
	playlist        []string
	shuffled        bool
	muteDuringVideo bool
	logger          zerolog.Logger

	mu         sync.Mutex
	state      AudioState
	index      int
	muted      bool
	current    Track
	generation uint64 // bumped on every track change, stale callbacks compare against it
	cancel     context.CancelFunc
	ctx        context.Context
	wg         sync.WaitGroup
}

// NewAudioSynchronizer builds the playlist. With shuffle the tracks are
// permuted once using rng (math/rand/v2's global source when nil).
func NewAudioSynchronizer(backend AudioBackend, tracks []string, shuffle, muteDuringVideo bool, rng *rand.Rand, logger zerolog.Logger) *AudioSynchronizer {
	playlist := make([]string, len(tracks))
	copy(playlist, tracks)

	if shuffle {
		swap := func(i, j int) { playlist[i], playlist[j] = playlist[j], playlist[i] }
		if rng != nil {
			rng.Shuffle(len(playlist), swap)
		} else {
			rand.Shuffle(len(playlist), swap)
		}
	}

	return &AudioSynchronizer{
		backend:         backend,
		playlist:        playlist,
		shuffled:        shuffle,
		muteDuringVideo: muteDuringVideo,
		logger:          logger.With().Str("component", "audio").Logger(),
		state:           AudioStopped,
		index:           -1,
	}
}

// Playlist returns the resolved playback order.
func (a *AudioSynchronizer) Playlist() []string {
	out := make([]string, len(a.playlist))
	copy(out, a.playlist)
	return out
}

// Start begins playback from the first track. Loading happens in the
// background; Start never blocks on the backend.
func (a *AudioSynchronizer) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.playlist) == 0 || a.backend == nil || a.state != AudioStopped || a.ctx != nil {
		return
	}

	a.ctx, a.cancel = context.WithCancel(ctx)
	a.state = AudioPlaying
	a.generation++
	gen := a.generation

	a.logger.Info().
		Int("tracks", len(a.playlist)).
		Bool("shuffled", a.shuffled).
		Msg("starting playlist")

	a.wg.Add(1)
	go a.playFrom(gen, 0)
}

// playFrom loads tracks starting at index until one plays. A full pass
// of failures stops the synchronizer.
func (a *AudioSynchronizer) playFrom(gen uint64, index int) {
	defer a.wg.Done()

	n := len(a.playlist)
	for attempt := 0; attempt < n; attempt++ {
		i := (index + attempt) % n
		name := a.playlist[i]

		track, err := a.backend.Load(a.ctx, name)

		a.mu.Lock()
		if gen != a.generation || a.state == AudioStopped {
			a.mu.Unlock()
			if track != nil {
				track.Stop()
			}
			return
		}
		if err != nil {
			a.mu.Unlock()
			a.logger.Warn().Err(err).Str("track", name).Msg("track load failed, skipping")
			continue
		}

		track.SetMuted(a.muted)
		if err := track.Play(func() { a.onTrackFinished(gen, i) }); err != nil {
			a.mu.Unlock()
			track.Stop()
			a.logger.Warn().Err(err).Str("track", name).Msg("track playback failed, skipping")
			continue
		}
		if a.state == AudioPaused {
			track.Pause()
		}
		a.current = track
		a.index = i
		a.mu.Unlock()

		a.logger.Debug().Str("track", name).Int("index", i).Msg("track started")
		return
	}

	a.mu.Lock()
	if gen == a.generation {
		a.state = AudioStopped
		a.current = nil
	}
	a.mu.Unlock()
	a.logger.Error().Int("tracks", n).Msg("no playable track in playlist, audio stopped")
}

func (a *AudioSynchronizer) onTrackFinished(gen uint64, index int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.generation || a.state == AudioStopped {
		return
	}

	a.generation++
	a.current = nil
	a.wg.Add(1)
	go a.playFrom(a.generation, (index+1)%len(a.playlist))
}

// OnItemDisplayed applies the mute-during-video policy for the item now
// on screen. The mute lasts until a still image replaces the video.
func (a *AudioSynchronizer) OnItemDisplayed(kind MediaKind) {
	if !a.muteDuringVideo {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	muted := kind == KindVideo
	if muted == a.muted {
		return
	}
	a.muted = muted
	if a.current != nil {
		a.current.SetMuted(muted)
	}
	a.logger.Debug().Bool("muted", muted).Msg("audio mute changed")
}

func (a *AudioSynchronizer) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != AudioPlaying {
		return
	}
	a.state = AudioPaused
	if a.current != nil {
		a.current.Pause()
	}
}

func (a *AudioSynchronizer) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != AudioPaused {
		return
	}
	a.state = AudioPlaying
	if a.current != nil {
		a.current.Resume()
	}
}

// Stop halts playback and waits for in-flight loads to finish.
func (a *AudioSynchronizer) Stop() {
	a.mu.Lock()
	a.state = AudioStopped
	a.generation++
	current := a.current
	a.current = nil
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	if current != nil {
		current.Stop()
	}
	a.wg.Wait()
}

func (a *AudioSynchronizer) State() AudioState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *AudioSynchronizer) Muted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.muted
}

// Index returns the playlist position of the current track, -1 if none.
func (a *AudioSynchronizer) Index() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.index
}
