package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"rvslideshow/internal/media"
	"rvslideshow/internal/playback"
	"rvslideshow/internal/presentation"
	"rvslideshow/internal/remote"
	"rvslideshow/internal/slideshow"
	"rvslideshow/internal/storage"
	"rvslideshow/internal/streaming"
)

const Version = "0.2.0"

type Handler struct {
	storage     *storage.SQLiteStorage
	logger      zerolog.Logger
	indexer     IndexerInterface
	streamer    *streaming.Handler
	source      *slideshow.Service
	posters     *media.PosterGenerator
	player      *playback.Controller
	slides      SlideSource
	defaults    playback.Config
	libraryName string
	upgrader    websocket.Upgrader
}

type IndexerInterface interface {
	Index(ctx context.Context) (*media.ScanStats, error)
	IsScanning() bool
}

// SlideSource reports what the presenter currently shows.
type SlideSource interface {
	Current() *presentation.Slide
}

func NewHandler(store *storage.SQLiteStorage, logger zerolog.Logger, libraryName string) *Handler {
	return &Handler{
		storage:     store,
		logger:      logger.With().Str("component", "api").Logger(),
		streamer:    streaming.NewHandler(),
		libraryName: libraryName,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// CORS is open for the REST endpoints too.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) SetIndexer(indexer IndexerInterface) {
	h.indexer = indexer
}

func (h *Handler) SetSource(source *slideshow.Service) {
	h.source = source
}

func (h *Handler) SetPosterGenerator(posters *media.PosterGenerator) {
	h.posters = posters
}

func (h *Handler) SetController(player *playback.Controller) {
	h.player = player
}

func (h *Handler) SetSlideSource(slides SlideSource) {
	h.slides = slides
}

// SetDefaults sets the session configuration start requests are merged
// over.
func (h *Handler) SetDefaults(cfg playback.Config) {
	h.defaults = cfg
}

// Routes registers every endpoint on r. The server mounts it under
// /api/v1.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Get("/library/tree", h.GetLibraryTree)
	r.Get("/library/stats", h.GetLibraryStats)
	r.Post("/library/scan", h.ScanLibrary)

	r.Get("/media/{id}", h.GetMedia)
	r.Get("/media/{id}/content", h.GetMediaContent)
	r.Get("/media/{id}/poster", h.GetPoster)

	// Remote source protocol
	r.Post("/source/reset", h.ResetSource)
	r.Post("/source/list", h.ListSource)
	r.Post("/source/next", h.NextSource)

	// Engine session control
	r.Get("/session", h.GetSession)
	r.Post("/session/start", h.StartSession)
	r.Post("/session/pause", h.PauseSession)
	r.Post("/session/resume", h.ResumeSession)
	r.Post("/session/stop", h.StopSession)
	r.Get("/session/events", h.SessionEvents)
	r.Get("/sessions", h.GetSessions)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: Version,
		Session: playback.StateIdle,
	}
	if h.player != nil {
		resp.Session = h.player.Status().State
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ScanLibrary(w http.ResponseWriter, r *http.Request) {
	if h.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Scanner not initialized")
		return
	}

	if h.indexer.IsScanning() {
		writeJSON(w, http.StatusOK, ScanResponse{
			Status:  "in_progress",
			Message: "Scan already in progress",
		})
		return
	}

	// The scan outlives the request.
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if _, err := h.indexer.Index(ctx); err != nil && !errors.Is(err, media.ErrScanInProgress) {
			h.logger.Error().Err(err).Msg("scan failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, ScanResponse{
		Status:  "started",
		Message: "Library scan started",
	})
}

func (h *Handler) GetLibraryStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.storage.CountMedia()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to count media")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to count media")
		return
	}
	writeJSON(w, http.StatusOK, LibraryStatsResponse{
		Counts: counts,
		Total:  lo.Sum(lo.Values(counts)),
	})
}

func (h *Handler) GetMedia(w http.ResponseWriter, r *http.Request) {
	mediaID := chi.URLParam(r, "id")

	item, ok := h.lookupMedia(w, mediaID)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, MediaResponse{
		Media:      item,
		ContentURL: "/api/v1/media/" + mediaID + "/content",
	})
}

// GetMediaContent serves item bytes with the metadata the remote source
// client needs in headers. Images and videos go through the byte cache;
// audio streams from disk.
func (h *Handler) GetMediaContent(w http.ResponseWriter, r *http.Request) {
	mediaID := chi.URLParam(r, "id")

	item, ok := h.lookupMedia(w, mediaID)
	if !ok {
		return
	}

	hdr := w.Header()
	hdr.Set(remote.HeaderMediaKind, string(item.Kind))
	if item.Duration != nil {
		hdr.Set(remote.HeaderMediaDuration, strconv.FormatInt(*item.Duration, 10))
	}
	if item.Width != nil && item.Height != nil && *item.Width > 0 {
		hdr.Set(remote.HeaderMediaWidth, strconv.Itoa(*item.Width))
		hdr.Set(remote.HeaderMediaHeight, strconv.Itoa(*item.Height))
	}

	if h.source == nil || item.Kind == storage.KindAudio {
		h.streamer.ServeFile(w, r, item.Path)
		return
	}

	data, hit, err := h.source.ReadContent(item)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "FILE_NOT_FOUND", "Media file missing")
			return
		}
		h.logger.Error().Err(err).Str("id", mediaID).Msg("failed to read media")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read media")
		return
	}
	hdr.Set("X-Cache", lo.Ternary(hit, "HIT", "MISS"))

	h.streamer.ServeBytes(w, r, filepath.Base(item.Path), item.ContentType, item.ModifiedAt, data)
}

func (h *Handler) GetPoster(w http.ResponseWriter, r *http.Request) {
	mediaID := chi.URLParam(r, "id")

	if h.posters == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Poster generation not available")
		return
	}

	item, ok := h.lookupMedia(w, mediaID)
	if !ok {
		return
	}

	data, err := h.posters.Poster(r.Context(), item)
	switch {
	case errors.Is(err, media.ErrNotVideo):
		writeError(w, http.StatusBadRequest, "NOT_A_VIDEO", "Posters exist only for videos")
		return
	case errors.Is(err, media.ErrFFmpegUnavailable):
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "ffmpeg not available")
		return
	case err != nil:
		h.logger.Warn().Err(err).Str("id", mediaID).Msg("failed to get poster")
		writeError(w, http.StatusNotFound, "POSTER_NOT_FOUND", "Poster not available")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400") // Cache for 24 hours
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) lookupMedia(w http.ResponseWriter, id string) (*storage.MediaItem, bool) {
	item, err := h.storage.GetMediaItem(id)
	if err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("failed to get media")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get media")
		return nil, false
	}

	if item == nil {
		writeError(w, http.StatusNotFound, "MEDIA_NOT_FOUND", "Media not found")
		return nil, false
	}
	return item, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// GetLibraryTree returns the complete library structure in one response
func (h *Handler) GetLibraryTree(w http.ResponseWriter, r *http.Request) {
	// Get all root folders
	rootFolders, err := h.storage.GetRootFolders()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get root folders")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get library")
		return
	}

	// Get root-level media (media in the library root directory)
	rootMedia, err := h.storage.GetRootMedia()
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to get root media")
		rootMedia = []storage.MediaItem{}
	}

	folderNodes := lo.Map(rootFolders, func(f storage.Folder, _ int) FolderNode {
		return h.buildFolderNode(f)
	})

	writeJSON(w, http.StatusOK, LibraryTreeResponse{
		Name:    h.libraryName,
		Folders: folderNodes,
		Media:   rootMedia,
	})
}

func (h *Handler) buildFolderNode(folder storage.Folder) FolderNode {
	node := FolderNode{
		ID:   folder.ID,
		Name: folder.Name,
	}

	subFolders, err := h.storage.GetSubFolders(folder.ID)
	if err == nil {
		for _, sub := range subFolders {
			node.SubFolders = append(node.SubFolders, h.buildFolderNode(sub))
		}
	}

	mediaItems, err := h.storage.GetMediaItemsByFolder(folder.ID)
	if err == nil && len(mediaItems) > 0 {
		node.Media = mediaItems
		node.Images = lo.CountBy(mediaItems, func(m storage.MediaItem) bool { return m.Kind == storage.KindImage })
		node.Videos = lo.CountBy(mediaItems, func(m storage.MediaItem) bool { return m.Kind == storage.KindVideo })
	}

	return node
}
