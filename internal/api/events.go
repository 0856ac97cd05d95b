package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"rvslideshow/internal/playback"
)

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second

	// eventSnapshot carries the current status as the first message.
	eventSnapshot playback.EventType = "snapshot"
)

// SessionEvents streams controller events over a websocket. Clients that
// fall behind lose events rather than slow the engine.
func (h *Handler) SessionEvents(w http.ResponseWriter, r *http.Request) {
	if !h.requirePlayer(w) {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := h.player.Subscribe(eventBuffer)
	defer cancel()

	// The read side only has to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("event subscriber connected")
	defer h.logger.Debug().Str("remote", r.RemoteAddr).Msg("event subscriber disconnected")

	snapshot := playback.Event{Type: eventSnapshot, At: time.Now(), Payload: h.player.Status()}
	if err := writeEvent(conn, snapshot); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeTimeout))
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				h.logger.Debug().Err(err).Msg("event write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev playback.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}
