package presentation

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"rvslideshow/internal/playback"
)

const (
	screenSaverDest  = "org.freedesktop.ScreenSaver"
	screenSaverPath  = dbus.ObjectPath("/org/freedesktop/ScreenSaver")
	screenSaverIface = "org.freedesktop.ScreenSaver"
)

// busConn is the part of *dbus.Conn the wake lock uses.
type busConn interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	Close() error
}

// WakeLock keeps the display awake by inhibiting the desktop screensaver
// over the session bus.
type WakeLock struct {
	app     string
	reason  string
	connect func() (busConn, error)
	logger  zerolog.Logger
}

var _ playback.ResourceProvider = (*WakeLock)(nil)

func NewWakeLock(app string, logger zerolog.Logger) *WakeLock {
	return &WakeLock{
		app:    app,
		reason: "slideshow playing",
		connect: func() (busConn, error) {
			return dbus.ConnectSessionBus()
		},
		logger: logger.With().Str("component", "wake_lock").Logger(),
	}
}

func (w *WakeLock) Acquire(ctx context.Context) (func() error, error) {
	conn, err := w.connect()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	obj := conn.Object(screenSaverDest, screenSaverPath)
	var cookie uint32
	if err := obj.CallWithContext(ctx, screenSaverIface+".Inhibit", 0, w.app, w.reason).Store(&cookie); err != nil {
		conn.Close()
		return nil, fmt.Errorf("inhibit screensaver: %w", err)
	}
	w.logger.Debug().Uint32("cookie", cookie).Msg("screensaver inhibited")

	return func() error {
		defer conn.Close()
		if err := obj.Call(screenSaverIface+".UnInhibit", 0, cookie).Err; err != nil {
			return fmt.Errorf("uninhibit screensaver: %w", err)
		}
		w.logger.Debug().Uint32("cookie", cookie).Msg("screensaver released")
		return nil
	}, nil
}
