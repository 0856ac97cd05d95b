// Package presentation renders slides and provides the device leases a
// playback session holds.
package presentation

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"rvslideshow/internal/playback"
)

// Slide describes what is on screen. It is written next to the media file
// so external viewers can follow the slideshow.
type Slide struct {
	ID          string             `json:"id"`
	Kind        playback.MediaKind `json:"kind"`
	ContentType string             `json:"content_type"`
	File        string             `json:"file"`
	Width       int                `json:"width,omitempty"`
	Height      int                `json:"height,omitempty"`
	DurationMs  int64              `json:"duration_ms,omitempty"`
	ShownAt     time.Time          `json:"shown_at"`
}

// FilePresenter displays items by atomically replacing a file in an
// output directory.
type FilePresenter struct {
	dir    string
	logger zerolog.Logger

	mu      sync.Mutex
	last    string
	current *Slide
}

var _ playback.Presenter = (*FilePresenter)(nil)

func NewFilePresenter(dir string, logger zerolog.Logger) (*FilePresenter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &FilePresenter{
		dir:    dir,
		logger: logger.With().Str("component", "presenter").Logger(),
	}, nil
}

func (p *FilePresenter) Present(ctx context.Context, m *playback.Media) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	name := "current" + extensionFor(m.ContentType)
	if err := writeAtomic(filepath.Join(p.dir, name), m.Data); err != nil {
		return err
	}

	slide := &Slide{
		ID:          m.ID,
		Kind:        m.Kind,
		ContentType: m.ContentType,
		File:        name,
		Width:       m.Width,
		Height:      m.Height,
		DurationMs:  m.Duration.Milliseconds(),
		ShownAt:     time.Now(),
	}
	manifest, err := json.MarshalIndent(slide, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(p.dir, "current.json"), manifest); err != nil {
		return err
	}

	// Drop the previous file when the extension changed.
	if p.last != "" && p.last != name {
		_ = os.Remove(filepath.Join(p.dir, p.last))
	}
	p.last = name
	p.current = slide

	p.logger.Debug().
		Str("id", m.ID).
		Str("kind", string(m.Kind)).
		Str("size", humanize.Bytes(uint64(len(m.Data)))).
		Msg("slide presented")
	return nil
}

// Current returns the slide on screen, nil before the first one.
func (p *FilePresenter) Current() *Slide {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	s := *p.current
	return &s
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "video/mp4":
		return ".mp4"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".slide-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
