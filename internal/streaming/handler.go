package streaming

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"rvslideshow/internal/media"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// ServeFile streams a file from disk with range support.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) {
	file, err := os.Open(filePath)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		http.Error(w, "Cannot read file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", media.GetContentType(filePath))
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, filepath.Base(filePath), stat.ModTime(), file)
}

// ServeBytes serves content already held in memory, honouring Range and
// If-Modified-Since like ServeFile.
func (h *Handler) ServeBytes(w http.ResponseWriter, r *http.Request, name, contentType string, modTime time.Time, data []byte) {
	if contentType == "" {
		contentType = media.GetContentType(name)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, name, modTime, bytes.NewReader(data))
}
