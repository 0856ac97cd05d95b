// Package audio loads and plays music tracks for the playback engine.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"rvslideshow/internal/playback"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Backend resolves track names against a music directory and decodes
// them for the speaker.
type Backend struct {
	dir    string
	out    *output
	logger zerolog.Logger
}

var _ playback.AudioBackend = (*Backend)(nil)

// NewBackend returns a backend rooted at dir. Relative track names are
// resolved against it.
func NewBackend(dir string, logger zerolog.Logger) *Backend {
	return &Backend{
		dir:    dir,
		out:    newOutput(),
		logger: logger.With().Str("component", "audio_backend").Logger(),
	}
}

// Available reports whether this build can produce sound.
func (b *Backend) Available() bool {
	return Available
}

func (b *Backend) Load(ctx context.Context, track string) (playback.Track, error) {
	path := b.resolve(track)

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format != "mp3" && format != "wav" {
		return nil, fmt.Errorf("%s: %w", track, ErrUnsupportedFormat)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read track: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := b.out.decode(track, format, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", track, err)
	}
	b.logger.Debug().Str("track", track).Int("bytes", len(data)).Msg("track loaded")
	return t, nil
}

func (b *Backend) resolve(track string) string {
	if filepath.IsAbs(track) || b.dir == "" {
		return track
	}
	return filepath.Join(b.dir, track)
}
