// Package server builds the archiver's dependencies from configuration and
// runs them until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/media-archiver/internal/api"
	"github.com/JakeFAU/media-archiver/internal/broadcast"
	"github.com/JakeFAU/media-archiver/internal/config"
	"github.com/JakeFAU/media-archiver/internal/coordinator"
	"github.com/JakeFAU/media-archiver/internal/dispatcher"
	"github.com/JakeFAU/media-archiver/internal/gateway"
	"github.com/JakeFAU/media-archiver/internal/progress"
	localstorage "github.com/JakeFAU/media-archiver/internal/storage/local"
	pgstore "github.com/JakeFAU/media-archiver/internal/storage/postgres"
)

const jobDrainGrace = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	registerer prometheus.Registerer

	apiServer   *api.Server
	bridge      *progress.Bridge
	observers   *broadcast.Hub
	coordinator *coordinator.Coordinator
	sinkHub     *progress.Hub
	dispatch    *dispatcher.Dispatcher
	gateway     *gateway.Gateway
	cancelJobs  context.CancelFunc
	library     *localstorage.Library

	historyStore *pgstore.HistoryStore
	pubsubClient *pubsub.Client
	redisClient  *redis.Client
	storage      *storage.Client
}

// Option customizes Build.
type Option func(*App)

// WithRegisterer registers job collectors somewhere other than the default
// Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// NewApp creates an empty App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// Only non-sensitive fields; DSNs and passwords stay out of the log.
	type sanitizedConfig struct {
		ServerPort     int    `json:"server_port"`
		DownloadDir    string `json:"download_dir"`
		DownloadPrefix string `json:"download_prefix"`
		Mirror         bool   `json:"mirror"`
		History        bool   `json:"history"`
	}
	logger.Info("creating application", zap.Any("config", sanitizedConfig{
		ServerPort:     cfg.Server.Port,
		DownloadDir:    cfg.Storage.DownloadDir,
		DownloadPrefix: cfg.Storage.DownloadPrefix,
		Mirror:         cfg.Storage.GCSBucket != "" || cfg.Storage.MirrorDir != "",
		History:        cfg.DB.DSN != "",
	}))
	a := &App{cfg: cfg, logger: logger, registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Handler exposes the HTTP routes, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Gateway exposes the submission entry point, mainly for tests.
func (a *App) Gateway() *gateway.Gateway {
	return a.gateway
}

// Start launches the event loop. Run calls it; tests that drive Handler
// directly call it themselves.
func (a *App) Start(ctx context.Context) {
	go a.coordinator.Run(ctx)
}

// Run serves HTTP and the event loop until ctx is cancelled, then shuts
// everything down in dependency order.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	loopCtx, stopLoop := context.WithCancel(context.WithoutCancel(ctx))
	defer stopLoop()
	a.Start(loopCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		a.logger.Error("http server error", zap.Error(runErr))
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.drainJobs(shutdownCtx)
	stopLoop()
	<-a.coordinator.Done()

	return errors.Join(runErr, a.Close(shutdownCtx))
}

// drainJobs lets running retrievals finish so their terminal events reach
// the loop. Jobs still running at the deadline are interrupted.
func (a *App) drainJobs(ctx context.Context) {
	err := a.dispatch.Wait(ctx)
	if err == nil {
		return
	}
	a.logger.Warn("interrupting running jobs", zap.Int("jobs", a.dispatch.InFlight()), zap.Error(err))
	a.cancelJobs()
	graceCtx, cancel := context.WithTimeout(context.Background(), jobDrainGrace)
	defer cancel()
	if err := a.dispatch.Wait(graceCtx); err != nil {
		a.logger.Error("jobs did not stop", zap.Error(err))
	}
}

// Close releases infrastructure. The event loop must already be stopped.
func (a *App) Close(ctx context.Context) error {
	if a.cancelJobs != nil {
		a.cancelJobs()
	}
	if a.bridge != nil {
		a.bridge.Close()
	}
	a.closeInfrastructure(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

// closeInfrastructure closes the sink hub first; broker sinks own their
// publishers, so clients are closed after it.
func (a *App) closeInfrastructure(ctx context.Context) {
	if a.sinkHub != nil {
		if err := a.sinkHub.Close(ctx); err != nil {
			a.logger.Warn("sink hub close failed", zap.Error(err))
		}
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.historyStore != nil {
		a.historyStore.Close()
	}
	if a.library != nil {
		if err := a.library.Wait(ctx); err != nil {
			a.logger.Warn("artifact purge unfinished", zap.Error(err))
		}
	}
}
