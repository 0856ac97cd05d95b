package streaming

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestServeBytesRange(t *testing.T) {
	h := NewHandler()
	data := []byte("0123456789")

	req := httptest.NewRequest(http.MethodGet, "/content", nil)
	req.Header.Set("Range", "bytes=2-5")
	rec := httptest.NewRecorder()
	h.ServeBytes(rec, req, "a.jpg", "image/jpeg", time.Now(), data)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Body.String(); got != "2345" {
		t.Errorf("body = %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}

	rec = httptest.NewRecorder()
	h.ServeBytes(rec, httptest.NewRequest(http.MethodGet, "/content", nil), "clip.mp4", "", time.Now(), data)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "video/mp4" {
		t.Errorf("full response = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestServeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	if err := os.WriteFile(path, []byte("id3data"), 0644); err != nil {
		t.Fatal(err)
	}
	h := NewHandler()

	rec := httptest.NewRecorder()
	h.ServeFile(rec, httptest.NewRequest(http.MethodGet, "/", nil), path)
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusOK || string(body) != "id3data" || rec.Header().Get("Content-Type") != "audio/mpeg" {
		t.Errorf("ServeFile() = %d %q %q", rec.Code, body, rec.Header().Get("Content-Type"))
	}

	rec = httptest.NewRecorder()
	h.ServeFile(rec, httptest.NewRequest(http.MethodGet, "/", nil), filepath.Join(t.TempDir(), "gone.mp3"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d", rec.Code)
	}
}
