package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"rvslideshow/internal/api"
	"rvslideshow/internal/config"
	"rvslideshow/internal/media"
	"rvslideshow/internal/playback"
	"rvslideshow/internal/slideshow"
	"rvslideshow/internal/storage"
)

type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	httpServer *http.Server
	router     *chi.Mux
	storage    *storage.SQLiteStorage
	handler    *api.Handler
}

func New(cfg *config.Config, logger zerolog.Logger, store *storage.SQLiteStorage) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger.With().Str("component", "server").Logger(),
		storage: store,
	}

	s.router = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(CORSMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
}

func (s *Server) setupRoutes() {
	s.handler = api.NewHandler(s.storage, s.logger, s.cfg.Library.Name)
	s.handler.SetDefaults(s.cfg.Playback.Session)

	s.router.Route("/api/v1", s.handler.Routes)
}

func (s *Server) SetIndexer(indexer api.IndexerInterface) {
	s.handler.SetIndexer(indexer)
}

func (s *Server) SetSource(source *slideshow.Service) {
	s.handler.SetSource(source)
}

func (s *Server) SetPosterGenerator(posters *media.PosterGenerator) {
	s.handler.SetPosterGenerator(posters)
}

func (s *Server) SetController(player *playback.Controller) {
	s.handler.SetController(player)
}

func (s *Server) SetSlideSource(slides api.SlideSource) {
	s.handler.SetSlideSource(slides)
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}
