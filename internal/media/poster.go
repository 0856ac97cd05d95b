package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"rvslideshow/internal/cache"
	"rvslideshow/internal/storage"
)

var (
	ErrFFmpegUnavailable = errors.New("ffmpeg not available")
	ErrNotVideo          = errors.New("media is not a video")
)

// PosterGenerator extracts a still frame from videos so clients have
// something to show while the video loads. Frames are kept on disk and
// in the byte cache.
type PosterGenerator struct {
	ffmpegPath string
	outputDir  string
	cache      *cache.LRUCache
	logger     zerolog.Logger
}

func NewPosterGenerator(outputDir string, c *cache.LRUCache, logger zerolog.Logger) *PosterGenerator {
	ffmpegPath := "ffmpeg"
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		ffmpegPath = path
	}

	return &PosterGenerator{
		ffmpegPath: ffmpegPath,
		outputDir:  outputDir,
		cache:      c,
		logger:     logger.With().Str("component", "poster").Logger(),
	}
}

func (p *PosterGenerator) IsAvailable() bool {
	_, err := exec.LookPath(p.ffmpegPath)
	return err == nil
}

func (p *PosterGenerator) path(mediaID string) string {
	return filepath.Join(p.outputDir, mediaID+".jpg")
}

// Poster returns the JPEG poster frame of a video, generating it on first
// use.
func (p *PosterGenerator) Poster(ctx context.Context, item *storage.MediaItem) ([]byte, error) {
	if item.Kind != storage.KindVideo {
		return nil, fmt.Errorf("%s: %w", item.ID, ErrNotVideo)
	}

	load := func() ([]byte, error) {
		if data, err := os.ReadFile(p.path(item.ID)); err == nil {
			return data, nil
		}
		if err := p.generate(ctx, item); err != nil {
			return nil, err
		}
		return os.ReadFile(p.path(item.ID))
	}

	if p.cache == nil {
		return load()
	}
	data, _, err := p.cache.GetOrLoad("poster:"+item.ID, load)
	return data, err
}

func (p *PosterGenerator) generate(ctx context.Context, item *storage.MediaItem) error {
	if !p.IsAvailable() {
		return ErrFFmpegUnavailable
	}
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return err
	}

	var durationMs int64
	if item.Duration != nil {
		durationMs = *item.Duration
	}
	outputPath := p.path(item.ID)

	args := []string{
		"-ss", strconv.FormatFloat(posterOffset(durationMs).Seconds(), 'f', 3, 64),
		"-i", item.Path,
		"-vframes", "1",
		"-vf", "scale='min(1280,iw)':-2",
		"-q:v", "3",
		"-y",
		outputPath,
	}

	output, err := exec.CommandContext(ctx, p.ffmpegPath, args...).CombinedOutput()
	if err != nil {
		p.logger.Debug().
			Err(err).
			Str("video", item.Path).
			Str("output", string(output)).
			Msg("ffmpeg poster extraction failed")
		return fmt.Errorf("ffmpeg failed: %w", err)
	}

	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("poster file not created")
	}

	p.logger.Debug().Str("id", item.ID).Str("poster", outputPath).Msg("poster generated")
	return nil
}

// Delete removes a stored poster.
func (p *PosterGenerator) Delete(mediaID string) error {
	if p.cache != nil {
		p.cache.Delete("poster:" + mediaID)
	}
	err := os.Remove(p.path(mediaID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// posterOffset picks the frame: 10% into the video, at most 5 seconds.
func posterOffset(durationMs int64) time.Duration {
	offset := 5 * time.Second
	if durationMs <= 0 {
		return offset
	}
	duration := time.Duration(durationMs) * time.Millisecond
	if tenth := duration / 10; tenth < offset {
		offset = tenth
	}
	return offset
}
