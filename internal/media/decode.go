package media

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"rvslideshow/internal/storage"
)

// ImageDimensions reads only the image header.
func ImageDimensions(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode %s header: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("%s image %s has no dimensions", format, path)
	}
	return cfg.Width, cfg.Height, nil
}

// MetadataService fills in dimensions and video durations for items the
// scanner stored without them.
type MetadataService struct {
	storage   *storage.SQLiteStorage
	extractor *MetadataExtractor
	logger    zerolog.Logger
	batch     int
}

func NewMetadataService(store *storage.SQLiteStorage, extractor *MetadataExtractor, logger zerolog.Logger) *MetadataService {
	return &MetadataService{
		storage:   store,
		extractor: extractor,
		logger:    logger.With().Str("component", "metadata").Logger(),
		batch:     100,
	}
}

// Process probes pending items in batches until none are left. Items
// that cannot be probed are stored with zero dimensions so they are not
// retried on every pass.
func (s *MetadataService) Process(ctx context.Context) (int, error) {
	probeVideos := s.extractor != nil && s.extractor.IsAvailable()
	if !probeVideos {
		s.logger.Warn().Msg("ffprobe not found, video durations unavailable")
	}

	processed := 0
	for {
		items, err := s.storage.GetMediaItemsWithoutMetadata(s.batch)
		if err != nil {
			return processed, err
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return processed, err
			}

			var durationMs int64
			var width, height int

			switch item.Kind {
			case storage.KindImage:
				width, height, err = ImageDimensions(item.Path)
			case storage.KindVideo:
				if probeVideos {
					var meta *Metadata
					meta, err = s.extractor.Extract(ctx, item.Path)
					if err == nil {
						durationMs, width, height = meta.DurationMs, meta.Width, meta.Height
					}
				}
			}
			if err != nil {
				s.logger.Debug().Err(err).Str("id", item.ID).Msg("probe failed")
			}

			if err := s.storage.UpdateMediaMetadata(item.ID, durationMs, width, height); err != nil {
				return processed, err
			}
			processed++
		}
	}

	if processed > 0 {
		s.logger.Info().Int("items", processed).Msg("metadata extracted")
	}
	return processed, nil
}
