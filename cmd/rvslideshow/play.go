package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"rvslideshow/internal/playback"
	"rvslideshow/internal/remote"
)

type playOptions struct {
	folders        []string
	start          string
	cadence        time.Duration
	randomize      bool
	shuffle        bool
	music          []string
	randomizeMusic bool
	muteVideo      bool
	loop           bool
	window         int
	remote         string
}

func playCmd(a *app) *cobra.Command {
	opts := &playOptions{}

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Run a slideshow on this device until it ends or is interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.play(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&opts.folders, "folder", "f", nil, "folder id or name to include (repeatable)")
	f.StringVar(&opts.start, "start", "", "folder to show first")
	f.DurationVar(&opts.cadence, "cadence", playback.DefaultCadence, "time each image stays on screen")
	f.BoolVar(&opts.randomize, "randomize", false, "shuffle images within each folder")
	f.BoolVar(&opts.shuffle, "shuffle", false, "shuffle the whole selection")
	f.StringSliceVarP(&opts.music, "music", "m", nil, "music track to play (repeatable)")
	f.BoolVar(&opts.randomizeMusic, "randomize-music", false, "shuffle the music playlist")
	f.BoolVar(&opts.muteVideo, "mute-video", true, "mute music while a video is shown")
	f.BoolVar(&opts.loop, "loop", false, "start over when the selection is exhausted")
	f.IntVar(&opts.window, "window", playback.DefaultWindowSize, "number of items to prefetch")
	f.StringVar(&opts.remote, "remote", "", "server URL to use as media source instead of the local library")

	return cmd
}

// sessionConfig applies the flags the user set over the configured
// session defaults.
func (o *playOptions) sessionConfig(cmd *cobra.Command, base playback.Config) playback.Config {
	cfg := base
	changed := cmd.Flags().Changed

	if changed("folder") {
		cfg.SelectedFolders = o.folders
	}
	if changed("start") {
		cfg.StartFolder = o.start
	}
	if changed("cadence") {
		cfg.CadenceMs = int(o.cadence / time.Millisecond)
	}
	if changed("randomize") {
		cfg.RandomizeImages = o.randomize
	}
	if changed("shuffle") {
		cfg.ShuffleAll = o.shuffle
	}
	if changed("music") {
		cfg.SelectedMusic = o.music
	}
	if changed("randomize-music") {
		cfg.RandomizeMusic = o.randomizeMusic
	}
	if changed("mute-video") {
		cfg.MuteMusicDuringVideo = o.muteVideo
	}
	if changed("loop") {
		cfg.Loop = o.loop
	}
	if changed("window") {
		cfg.WindowSize = o.window
	}
	return cfg
}

func (a *app) play(cmd *cobra.Command, opts *playOptions) error {
	ctx := cmd.Context()
	cfg, logger := a.cfg, a.logger
	sessionCfg := opts.sessionConfig(cmd, cfg.Playback.Session)

	remoteURL := cfg.Playback.SourceURL
	if opts.remote != "" {
		remoteURL = opts.remote
	}

	var (
		source   playback.Source
		recorded <-chan struct{}
		player   *playback.Controller
		err      error
	)
	if remoteURL != "" {
		logger.Info().Str("url", remoteURL).Msg("using remote media source")
		source = remote.NewClient(remoteURL, cfg.Playback.SourceTimeout, logger)
		if player, _, err = newEngine(cfg, source, logger); err != nil {
			return err
		}
	} else {
		lib, err := openLibrary(cfg, logger)
		if err != nil {
			return err
		}
		defer lib.Close()
		if player, _, err = newEngine(cfg, lib.source, logger); err != nil {
			return err
		}
		recorded = lib.record(player, logger)
	}

	events, cancel := player.Subscribe(64)
	defer cancel()
	go logEvents(events, logger)

	defer func() {
		player.Close()
		if recorded != nil {
			<-recorded
		}
	}()

	session, err := player.Start(ctx, sessionCfg)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("interrupted, stopping slideshow")
		player.Stop()
	case <-session.Done():
	}

	st := session.Status()
	fmt.Fprintf(cmd.OutOrStdout(), "slideshow ended (%s) after %d items\n", st.Reason, st.Displayed)
	return session.Err()
}

func logEvents(events <-chan playback.Event, logger zerolog.Logger) {
	for ev := range events {
		switch p := ev.Payload.(type) {
		case playback.ItemDisplayedPayload:
			logger.Info().
				Str("id", p.ID).
				Str("kind", string(p.Kind)).
				Uint64("seq", p.Seq).
				Bool("cache_hit", p.Hit).
				Msg("showing")
		case playback.ErrorPayload:
			logger.Warn().
				Str("kind", p.Kind).
				Str("item", p.ItemID).
				Msg(p.Message)
		case playback.StateChangedPayload:
			logger.Debug().
				Str("from", string(p.From)).
				Str("to", string(p.To)).
				Msg("state changed")
		}
	}
}

