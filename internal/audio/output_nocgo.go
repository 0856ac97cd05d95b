//go:build !((linux && cgo) || windows || darwin)

package audio

import "errors"

// Available indicates whether audio playback is supported in this build.
// Audio requires CGO for native sound libraries.
const Available = false

var errNoAudio = errors.New("audio output not available in this build")

type output struct{}

func newOutput() *output {
	return &output{}
}

// decode always fails, so the playlist stops after one pass and the
// slideshow runs silently.
func (o *output) decode(name, format string, data []byte) (*track, error) {
	return nil, errNoAudio
}

type track struct{}

func (t *track) Play(onDone func()) error { return errNoAudio }
func (t *track) Pause()                   {}
func (t *track) Resume()                  {}
func (t *track) Stop()                    {}
func (t *track) SetMuted(muted bool)      {}
