//go:build (linux && cgo) || windows || darwin

package audio

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

// Available indicates whether audio playback is supported in this build.
const Available = true

// output owns the process-wide speaker.
type output struct {
	mu          sync.Mutex
	initialized bool
	sampleRate  beep.SampleRate
}

func newOutput() *output {
	return &output{sampleRate: beep.SampleRate(44100)}
}

func (o *output) init() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.initialized {
		return nil
	}
	if err := speaker.Init(o.sampleRate, o.sampleRate.N(time.Second/10)); err != nil {
		return err
	}
	o.initialized = true
	return nil
}

func (o *output) decode(name, format string, data []byte) (*track, error) {
	var (
		streamer beep.StreamSeekCloser
		f        beep.Format
		err      error
	)
	switch format {
	case "mp3":
		streamer, f, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	default:
		streamer, f, err = wav.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}
	return &track{name: name, out: o, streamer: streamer, format: f}, nil
}

// track is one decoded song. Pause, mute and stop go through the speaker
// lock because the mixer reads ctrl and volume concurrently.
type track struct {
	name     string
	out      *output
	streamer beep.StreamSeekCloser
	format   beep.Format

	mu      sync.Mutex
	ctrl    *beep.Ctrl
	volume  *effects.Volume
	muted   bool
	stopped atomic.Bool // read by the mixer callback, which holds the speaker lock
}

func (t *track) Play(onDone func()) error {
	if err := t.out.init(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	resampled := beep.Resample(4, t.format.SampleRate, t.out.sampleRate, t.streamer)
	t.ctrl = &beep.Ctrl{Streamer: resampled}
	t.volume = &effects.Volume{Streamer: t.ctrl, Base: 2, Silent: t.muted}

	speaker.Play(beep.Seq(t.volume, beep.Callback(func() {
		if !t.stopped.Load() && onDone != nil {
			// Run callback in separate goroutine to avoid deadlock
			// when the callback starts the next track
			go onDone()
		}
	})))
	return nil
}

func (t *track) Pause() {
	t.setPaused(true)
}

func (t *track) Resume() {
	t.setPaused(false)
}

func (t *track) setPaused(paused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ctrl == nil {
		return
	}
	speaker.Lock()
	t.ctrl.Paused = paused
	speaker.Unlock()
}

func (t *track) SetMuted(muted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.muted = muted
	if t.volume == nil {
		return
	}
	speaker.Lock()
	t.volume.Silent = muted
	speaker.Unlock()
}

func (t *track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.stopped.CompareAndSwap(false, true) {
		return
	}
	if t.ctrl != nil {
		speaker.Lock()
		// A nil streamer ends the sequence so the mixer drops it.
		t.ctrl.Streamer = nil
		speaker.Unlock()
	}
	t.streamer.Close()
}
