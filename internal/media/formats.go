package media

import (
	"path/filepath"
	"strings"

	"rvslideshow/internal/storage"
)

var contentTypes = map[string]string{
	// images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",

	// videos
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",

	// audio
	".mp3": "audio/mpeg",
	".wav": "audio/wav",
}

// KindOf classifies filename by extension. ok is false for unsupported files.
func KindOf(filename string) (kind storage.MediaKind, ok bool) {
	ct, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return "", false
	}
	switch {
	case strings.HasPrefix(ct, "image/"):
		return storage.KindImage, true
	case strings.HasPrefix(ct, "video/"):
		return storage.KindVideo, true
	default:
		return storage.KindAudio, true
	}
}

func IsSupportedImage(filename string) bool {
	kind, ok := KindOf(filename)
	return ok && kind == storage.KindImage
}

func IsSupportedVideo(filename string) bool {
	kind, ok := KindOf(filename)
	return ok && kind == storage.KindVideo
}

func IsSupportedAudio(filename string) bool {
	kind, ok := KindOf(filename)
	return ok && kind == storage.KindAudio
}

func GetContentType(filename string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}
