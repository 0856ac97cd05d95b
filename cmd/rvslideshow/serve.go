package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rvslideshow/internal/api"
	"rvslideshow/internal/media"
	"rvslideshow/internal/server"
)

func serveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Index the library and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	logger.Info().
		Str("version", api.Version).
		Msg("starting RVSlideshow server")

	lib, err := openLibrary(cfg, logger)
	if err != nil {
		return err
	}
	defer lib.Close()

	player, presenter, err := newEngine(cfg, lib.source, logger)
	if err != nil {
		return err
	}
	recorded := lib.record(player, logger)
	defer func() {
		player.Close()
		<-recorded
	}()

	srv := server.New(cfg, logger, lib.store)
	srv.SetIndexer(lib.indexer)
	srv.SetSource(lib.source)
	srv.SetPosterGenerator(lib.posters)
	srv.SetController(player)
	srv.SetSlideSource(presenter)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Library.Path != "" {
		g.Go(func() error {
			logger.Info().
				Str("path", cfg.Library.Path).
				Str("name", cfg.Library.Name).
				Msg("starting initial library scan")
			if _, err := lib.indexer.Index(gctx); err != nil {
				logger.Error().Err(err).Msg("initial scan failed")
			}
			return nil
		})

		if cfg.Library.Watch {
			watcher := media.NewWatcher(cfg.Library.Path, cfg.Library.WatchDebounce, func() {
				if _, err := lib.indexer.Index(gctx); err != nil && !errors.Is(err, media.ErrScanInProgress) {
					logger.Error().Err(err).Msg("rescan failed")
				}
			}, logger)
			g.Go(func() error {
				if err := watcher.Run(gctx); err != nil {
					logger.Warn().Err(err).Msg("library watch disabled")
				}
				return nil
			})
		}
	} else {
		logger.Warn().Msg("no library path configured")
	}

	g.Go(srv.Start)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("received shutdown signal")
		player.Stop()
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
