package slideshow

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"rvslideshow/internal/playback"
	"rvslideshow/internal/storage"
)

// Recorder persists a record of every session the controller ends.
type Recorder struct {
	store  *storage.SQLiteStorage
	logger zerolog.Logger
}

func NewRecorder(store *storage.SQLiteStorage, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Run consumes events until ctx is done or the channel closes.
func (r *Recorder) Run(ctx context.Context, events <-chan playback.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != playback.EventSessionEnded {
				continue
			}
			ended, ok := ev.Payload.(playback.SessionEndedPayload)
			if !ok {
				continue
			}
			r.record(ev.SessionID, ev.At, ended)
		}
	}
}

func (r *Recorder) record(id string, at time.Time, ended playback.SessionEndedPayload) {
	rec := &storage.SessionRecord{
		ID:        id,
		Folders:   ended.Folders,
		CreatedAt: ended.StartedAt,
		EndedAt:   at,
		Reason:    ended.Reason,
		Displayed: ended.Displayed,
		Error:     ended.Error,
	}
	if err := r.store.SaveSession(rec); err != nil {
		r.logger.Error().Err(err).Str("session", id).Msg("failed to record session")
		return
	}
	r.logger.Debug().
		Str("session", id).
		Str("reason", ended.Reason).
		Int("displayed", ended.Displayed).
		Msg("session recorded")
}
