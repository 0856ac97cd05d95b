package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func scanCmd(a *app) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Index the library once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path != "" {
				a.cfg.Library.Path = path
			}

			lib, err := openLibrary(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer lib.Close()

			stats, err := lib.indexer.Index(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d folders: %d images, %d videos, %d audio (%s)\n",
				stats.Folders, stats.Images, stats.Videos, stats.Audio, humanize.Bytes(stats.Bytes))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "library path (overrides library.path)")
	return cmd
}
