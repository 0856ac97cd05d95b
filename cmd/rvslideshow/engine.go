package main

import (
	"context"

	"github.com/rs/zerolog"

	"rvslideshow/internal/audio"
	"rvslideshow/internal/cache"
	"rvslideshow/internal/config"
	"rvslideshow/internal/media"
	"rvslideshow/internal/playback"
	"rvslideshow/internal/presentation"
	"rvslideshow/internal/slideshow"
	"rvslideshow/internal/storage"
)

// newEngine wires the playback collaborators shared by serve and play.
func newEngine(cfg *config.Config, source playback.Source, logger zerolog.Logger) (*playback.Controller, *presentation.FilePresenter, error) {
	presenter, err := presentation.NewFilePresenter(cfg.Playback.OutputDir, logger)
	if err != nil {
		return nil, nil, err
	}

	resources := map[playback.ResourceKind]playback.ResourceProvider{
		playback.ResourcePresentation: presentation.NewDisplayLock(cfg.Playback.LockFile, logger),
	}
	if cfg.Playback.WakeLock {
		resources[playback.ResourceWakeLock] = presentation.NewWakeLock("rvslideshow", logger)
	}

	deps := playback.Dependencies{
		Source:    source,
		Presenter: presenter,
		Resources: resources,
	}

	if cfg.Audio.Enabled {
		backend := audio.NewBackend(cfg.Audio.MusicDir, logger)
		if backend.Available() {
			deps.Audio = backend
		} else {
			logger.Warn().Msg("audio output not available in this build, music disabled")
		}
	}

	return playback.NewController(deps, logger), presenter, nil
}

// library is the local media stack: database, byte cache, source and
// indexer.
type library struct {
	store   *storage.SQLiteStorage
	source  *slideshow.Service
	indexer *media.Indexer
	posters *media.PosterGenerator
}

func openLibrary(cfg *config.Config, logger zerolog.Logger) (*library, error) {
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	byteCache, err := cache.NewLRUCache(cfg.Cache.Capacity, cfg.Cache.MaxSize)
	if err != nil {
		store.Close()
		return nil, err
	}

	scanner := media.NewScanner(store, logger)
	extractor := media.NewMetadataExtractor(logger)
	if extractor.IsAvailable() {
		logger.Info().Msg("ffprobe available - video metadata enabled")
	} else {
		logger.Warn().Msg("ffprobe not found - video durations disabled")
	}

	return &library{
		store:   store,
		source:  slideshow.NewService(store, byteCache, nil, logger),
		indexer: media.NewIndexer(scanner, media.NewMetadataService(store, extractor, logger), cfg.Library.Path, cfg.Library.Name, logger),
		posters: media.NewPosterGenerator(cfg.Library.PosterDir, byteCache, logger),
	}, nil
}

func (l *library) Close() error {
	return l.store.Close()
}

// record stores history for every session player ends. The returned
// channel closes once the player is closed and the last record is
// written.
func (l *library) record(player *playback.Controller, logger zerolog.Logger) <-chan struct{} {
	events, _ := player.Subscribe(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		slideshow.NewRecorder(l.store, logger).Run(context.Background(), events)
	}()
	return done
}
