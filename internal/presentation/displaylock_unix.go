//go:build unix

package presentation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"rvslideshow/internal/playback"
)

// ErrDisplayBusy means another process holds the display.
var ErrDisplayBusy = errors.New("display is held by another process")

// DisplayLock grants exclusive use of the presentation surface through an
// advisory lock on a file.
type DisplayLock struct {
	path   string
	logger zerolog.Logger
}

var _ playback.ResourceProvider = (*DisplayLock)(nil)

func NewDisplayLock(path string, logger zerolog.Logger) *DisplayLock {
	return &DisplayLock{
		path:   path,
		logger: logger.With().Str("component", "display_lock").Logger(),
	}
}

func (l *DisplayLock) Acquire(ctx context.Context) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrDisplayBusy
		}
		return nil, fmt.Errorf("flock %s: %w", l.path, err)
	}

	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	l.logger.Debug().Str("path", l.path).Msg("display locked")

	return func() error {
		uerr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
		cerr := f.Close()
		l.logger.Debug().Str("path", l.path).Msg("display unlocked")
		return errors.Join(uerr, cerr)
	}, nil
}
