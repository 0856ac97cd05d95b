package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestBackendRejectsUnsupportedFormat(t *testing.T) {
	b := NewBackend(t.TempDir(), zerolog.Nop())
	if _, err := b.Load(context.Background(), "song.flac"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Load(flac) = %v, want ErrUnsupportedFormat", err)
	}
}

func TestBackendMissingTrack(t *testing.T) {
	b := NewBackend(t.TempDir(), zerolog.Nop())
	_, err := b.Load(context.Background(), "missing.mp3")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) = %v, want not-exist", err)
	}
}

func TestBackendCorruptTrack(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.wav"), []byte("not a wav file"), 0644); err != nil {
		t.Fatal(err)
	}
	b := NewBackend(dir, zerolog.Nop())
	if _, err := b.Load(context.Background(), "bad.wav"); err == nil {
		t.Error("Load() accepted a corrupt file")
	}
}

func TestBackendCancelledContext(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.mp3"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBackend(dir, zerolog.Nop())
	if _, err := b.Load(ctx, "a.mp3"); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() = %v, want context.Canceled", err)
	}
}

func TestResolve(t *testing.T) {
	b := NewBackend("/music", zerolog.Nop())
	if got := b.resolve("a/b.mp3"); got != filepath.Join("/music", "a/b.mp3") {
		t.Errorf("resolve(relative) = %q", got)
	}
	if got := b.resolve("/abs/c.mp3"); got != "/abs/c.mp3" {
		t.Errorf("resolve(absolute) = %q", got)
	}
}
