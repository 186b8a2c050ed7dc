package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/media-archiver/internal/archive"
	"github.com/JakeFAU/media-archiver/internal/broadcast"
	"github.com/JakeFAU/media-archiver/internal/gateway"
	"github.com/JakeFAU/media-archiver/internal/metrics"
)

const readyTimeout = 2 * time.Second

// Service accepts user intents.
type Service interface {
	Submit(ctx context.Context, sub gateway.SubmitRequest) (string, error)
	Delete(ctx context.Context, key string) error
}

// StatusSource attaches observers and serves the artifact listing.
type StatusSource interface {
	Connect(ctx context.Context, obs broadcast.Observer) error
	Disconnect(ctx context.Context, id string) error
	Snapshot(ctx context.Context) ([]archive.ArtifactRecord, error)
}

// Config controls routing details.
type Config struct {
	// RequestTimeout bounds REST handlers. The websocket route is exempt.
	RequestTimeout time.Duration
	// DownloadDir is served read-only under DownloadPrefix when set.
	DownloadDir    string
	DownloadPrefix string
	Conn           broadcast.ConnConfig
}

// Server wires HTTP handlers to the gateway and coordinator.
type Server struct {
	router   chi.Router
	service  Service
	status   StatusSource
	upgrader websocket.Upgrader
	cfg      Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service Service, status StatusSource, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.DownloadPrefix == "" {
		cfg.DownloadPrefix = "/downloads"
	}
	cfg.DownloadPrefix = "/" + strings.Trim(cfg.DownloadPrefix, "/")
	if cfg.Conn.Logger == nil {
		cfg.Conn.Logger = logger.Named("observer")
	}
	s := &Server{
		service: service,
		status:  status,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Observers are browsers on any origin; there is no auth to protect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		cfg:    cfg,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.streamStatus)
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(cfg.RequestTimeout))
			r.Post("/download", s.submitDownload)
			r.Delete("/remove", s.removeArtifact)
			r.Get("/downloads", s.listDownloads)
		})
	})

	if cfg.DownloadDir != "" {
		files := http.StripPrefix(cfg.DownloadPrefix, http.FileServer(http.Dir(cfg.DownloadDir)))
		r.Handle(cfg.DownloadPrefix+"/*", hideDotfiles(files))
	}

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports ready while the event loop answers commands.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if _, err := s.status.Snapshot(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "event loop unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
