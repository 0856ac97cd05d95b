package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"
)

type Metadata struct {
	DurationMs int64
	Width      int
	Height     int
	VideoCodec string
}

// MetadataExtractor probes videos with ffprobe.
type MetadataExtractor struct {
	ffprobePath string
	logger      zerolog.Logger
}

func NewMetadataExtractor(logger zerolog.Logger) *MetadataExtractor {
	// Try to find ffprobe in PATH
	ffprobePath := "ffprobe"
	if path, err := exec.LookPath("ffprobe"); err == nil {
		ffprobePath = path
	}

	return &MetadataExtractor{
		ffprobePath: ffprobePath,
		logger:      logger.With().Str("component", "ffprobe").Logger(),
	}
}

func (m *MetadataExtractor) IsAvailable() bool {
	_, err := exec.LookPath(m.ffprobePath)
	return err == nil
}

func (m *MetadataExtractor) Extract(ctx context.Context, filePath string) (*Metadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	output, err := exec.CommandContext(ctx, m.ffprobePath, args...).Output()
	if err != nil {
		m.logger.Debug().Err(err).Str("file", filePath).Msg("ffprobe failed")
		return nil, fmt.Errorf("ffprobe %s: %w", filePath, err)
	}

	return parseProbeOutput(output)
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

func parseProbeOutput(output []byte) (*Metadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}

	meta := &Metadata{}
	if probe.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			meta.DurationMs = int64(dur * 1000)
		}
	}

	for _, stream := range probe.Streams {
		if stream.CodecType == "video" && meta.VideoCodec == "" {
			meta.VideoCodec = stream.CodecName
			meta.Width = stream.Width
			meta.Height = stream.Height
		}
	}

	return meta, nil
}
