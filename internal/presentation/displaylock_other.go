//go:build !unix

package presentation

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"rvslideshow/internal/playback"
)

var ErrDisplayBusy = errors.New("display is held by another process")

// DisplayLock is unsupported on this platform; the session runs without it.
type DisplayLock struct{}

func NewDisplayLock(path string, logger zerolog.Logger) *DisplayLock {
	return &DisplayLock{}
}

func (l *DisplayLock) Acquire(ctx context.Context) (func() error, error) {
	return nil, playback.ErrUnsupported
}
