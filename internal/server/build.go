package server

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/media-archiver/internal/api"
	"github.com/JakeFAU/media-archiver/internal/archive"
	"github.com/JakeFAU/media-archiver/internal/broadcast"
	"github.com/JakeFAU/media-archiver/internal/clock/system"
	"github.com/JakeFAU/media-archiver/internal/config"
	"github.com/JakeFAU/media-archiver/internal/coordinator"
	"github.com/JakeFAU/media-archiver/internal/dispatcher"
	"github.com/JakeFAU/media-archiver/internal/engine"
	"github.com/JakeFAU/media-archiver/internal/gateway"
	"github.com/JakeFAU/media-archiver/internal/id/uuid"
	"github.com/JakeFAU/media-archiver/internal/metrics"
	"github.com/JakeFAU/media-archiver/internal/progress"
	progresssinks "github.com/JakeFAU/media-archiver/internal/progress/sinks"
	natspublisher "github.com/JakeFAU/media-archiver/internal/publisher/nats"
	gcppublisher "github.com/JakeFAU/media-archiver/internal/publisher/pubsub"
	blobstorage "github.com/JakeFAU/media-archiver/internal/storage"
	gcsstorage "github.com/JakeFAU/media-archiver/internal/storage/gcs"
	localstorage "github.com/JakeFAU/media-archiver/internal/storage/local"
	pgstore "github.com/JakeFAU/media-archiver/internal/storage/postgres"
	"github.com/JakeFAU/media-archiver/internal/worker"
)

// Build creates the application's dependencies. The engine is optional and
// defaults to yt-dlp; tests pass a fake.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, eng engine.Engine, opts ...Option) (*App, error) {
	app, err := NewApp(cfg, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	metrics.Init()
	app.logger.Info("building application dependencies")

	library, err := localstorage.NewLibrary(cfg.Storage.DownloadDir, cfg.Storage.DownloadPrefix, app.logger.Named("library"))
	if err != nil {
		return nil, fmt.Errorf("download dir init failed: %w", err)
	}
	app.library = library
	initial, err := loadInitialArtifacts(app, library)
	if err != nil {
		return nil, err
	}

	if eng == nil {
		if eng, err = setupEngine(ctx, app); err != nil {
			return nil, err
		}
	}

	sinks, err := setupSinks(ctx, app, library)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	app.sinkHub = progress.NewHub(progress.HubConfig{
		BufferSize:     cfg.Sinks.BufferSize,
		MaxBatchEvents: cfg.Sinks.MaxBatchEvents,
		MaxBatchWait:   cfg.Sinks.MaxBatchWait,
		SinkTimeout:    cfg.Sinks.SinkTimeout,
		Logger:         app.logger.Named("sink_hub"),
		OnDrop:         metrics.ObserveSinkDrop,
	}, sinks...)
	app.logger.Info("sink hub initialized",
		zap.Int("sinks", len(sinks)),
		zap.Int("buffer_size", cfg.Sinks.BufferSize),
		zap.Duration("max_batch_wait", cfg.Sinks.MaxBatchWait))

	clock := system.New()
	ids := uuid.New()

	app.bridge = progress.NewBridge(cfg.Bridge.BufferSize)
	app.observers = broadcast.NewHub(
		broadcast.WithLogger(app.logger.Named("observers")),
		broadcast.WithSizeHook(metrics.SetObservers),
		broadcast.WithFailureHook(metrics.ObserveDeliveryFailure),
	)
	app.coordinator, err = coordinator.New(coordinator.Config{
		Events:    app.bridge,
		Observers: app.observers,
		Files:     library,
		Sinks:     app.sinkHub,
		Clock:     clock,
		Initial:   initial,
		Logger:    app.logger.Named("coordinator"),
	})
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, fmt.Errorf("coordinator init failed: %w", err)
	}

	jobsCtx, cancelJobs := context.WithCancel(context.Background())
	app.cancelJobs = cancelJobs
	wk := worker.New(eng, app.bridge, library, ids, clock, app.logger.Named("worker"))
	app.dispatch = dispatcher.New(jobsCtx, wk)

	app.gateway = gateway.New(app.bridge, app.dispatch, app.coordinator, ids, clock, gateway.Config{
		DefaultAudioQuality: cfg.Engine.AudioQuality,
	}, app.logger.Named("gateway"))

	app.apiServer = api.NewServer(app.gateway, app.coordinator, api.Config{
		RequestTimeout: cfg.Server.RequestTimeout,
		DownloadDir:    library.Root(),
		DownloadPrefix: cfg.Storage.DownloadPrefix,
		Conn: broadcast.ConnConfig{
			SendBuffer:     cfg.Broadcast.SendBuffer,
			PingInterval:   cfg.Broadcast.PingInterval,
			WriteTimeout:   cfg.Broadcast.WriteTimeout,
			MaxMessageSize: cfg.Broadcast.MaxMessageSize,
			Logger:         app.logger.Named("observer"),
		},
	}, app.logger.Named("api"))

	return app, nil
}

func loadInitialArtifacts(app *App, library *localstorage.Library) ([]archive.ArtifactRecord, error) {
	if !app.cfg.Storage.RescanOnStart {
		return nil, nil
	}
	records, err := library.Scan()
	if err != nil {
		return nil, fmt.Errorf("rescan download dir failed: %w", err)
	}
	app.logger.Info("restored artifacts from download dir", zap.Int("artifacts", len(records)))
	return records, nil
}

func setupEngine(ctx context.Context, app *App) (engine.Engine, error) {
	if app.cfg.Engine.AutoInstall {
		app.logger.Info("ensuring yt-dlp is installed")
		if err := engine.Install(ctx); err != nil {
			return nil, err
		}
	}
	eng, err := engine.NewYTDLP(engine.YTDLPConfig{
		ScratchDir:       app.cfg.ScratchDir(),
		FFmpegDir:        app.cfg.Engine.FFmpegDir,
		SubtitleLangs:    app.cfg.Engine.SubtitleLangs,
		ProgressInterval: app.cfg.Engine.ProgressInterval,
		Logger:           app.logger.Named("engine"),
	})
	if err != nil {
		return nil, fmt.Errorf("engine init failed: %w", err)
	}
	app.logger.Info("using yt-dlp engine", zap.String("scratch_dir", app.cfg.ScratchDir()))
	return eng, nil
}

func setupSinks(ctx context.Context, app *App, library *localstorage.Library) ([]progress.Sink, error) {
	sinkList := []progress.Sink{progresssinks.NewLogSink(app.logger.Named("events"))}

	promSink, err := progresssinks.NewPrometheusSink(app.registerer)
	if err != nil {
		return nil, fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)

	steps := []func(context.Context, *App, *localstorage.Library) (progress.Sink, error){
		setupHistory,
		setupPubSub,
		setupNATS,
		setupRedis,
		setupMirror,
	}
	for _, step := range steps {
		sink, err := step(ctx, app, library)
		if err != nil {
			for _, built := range sinkList {
				_ = built.Close(ctx)
			}
			return nil, err
		}
		if sink != nil {
			sinkList = append(sinkList, sink)
		}
	}
	return sinkList, nil
}

func setupHistory(ctx context.Context, app *App, _ *localstorage.Library) (progress.Sink, error) {
	if app.cfg.DB.DSN == "" {
		app.logger.Warn("No DSN specified for database, skipping job history")
		return nil, nil
	}
	var err error
	app.historyStore, err = pgstore.NewHistoryStore(ctx, pgstore.HistoryStoreConfig{
		DSN:             app.cfg.DB.DSN,
		Table:           app.cfg.DB.Table,
		MaxConns:        app.cfg.DB.MaxConns,
		MinConns:        app.cfg.DB.MinConns,
		MaxConnLifetime: app.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("history store init failed: %w", err)
	}
	if err := app.historyStore.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("history schema init failed: %w", err)
	}
	app.logger.Info("job history initialized", zap.String("table", app.cfg.DB.Table))
	return progresssinks.NewHistorySink(app.historyStore, app.logger.Named("history")), nil
}

func setupPubSub(ctx context.Context, app *App, _ *localstorage.Library) (progress.Sink, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Debug("No Pub/Sub topic configured")
		return nil, nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	sink, err := progresssinks.NewBrokerSink(gcppublisher.New(app.pubsubClient), progresssinks.BrokerConfig{
		Topic: app.cfg.PubSub.TopicName,
	})
	if err != nil {
		return nil, fmt.Errorf("pubsub sink init failed: %w", err)
	}
	app.logger.Info("Pub/Sub export initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName))
	return sink, nil
}

func setupNATS(_ context.Context, app *App, _ *localstorage.Library) (progress.Sink, error) {
	if app.cfg.NATS.URL == "" {
		app.logger.Debug("No NATS url configured")
		return nil, nil
	}
	pub, err := natspublisher.Connect(app.cfg.NATS.URL)
	if err != nil {
		return nil, fmt.Errorf("nats init failed: %w", err)
	}
	sink, err := progresssinks.NewBrokerSink(pub, progresssinks.BrokerConfig{
		Topic:     app.cfg.NATS.Subject,
		PerStatus: app.cfg.NATS.PerStatus,
	})
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("nats sink init failed: %w", err)
	}
	app.logger.Info("NATS export initialized", zap.String("subject", app.cfg.NATS.Subject))
	return sink, nil
}

func setupRedis(ctx context.Context, app *App, _ *localstorage.Library) (progress.Sink, error) {
	if app.cfg.Redis.Addr == "" {
		app.logger.Debug("No Redis address configured")
		return nil, nil
	}
	app.redisClient = redis.NewClient(&redis.Options{
		Addr:     app.cfg.Redis.Addr,
		Password: app.cfg.Redis.Password,
		DB:       app.cfg.Redis.DB,
	})
	if err := app.redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	sink, err := progresssinks.NewRedisSink(app.redisClient, app.cfg.Redis.Prefix, app.cfg.Redis.TTL)
	if err != nil {
		return nil, fmt.Errorf("redis sink init failed: %w", err)
	}
	app.logger.Info("Redis status cache initialized", zap.String("addr", app.cfg.Redis.Addr))
	return sink, nil
}

func setupMirror(ctx context.Context, app *App, library *localstorage.Library) (progress.Sink, error) {
	var blobs blobstorage.BlobStore
	switch {
	case app.cfg.Storage.GCSBucket != "":
		var err error
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobs, err = gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: app.cfg.Storage.GCSBucket,
			Prefix: app.cfg.Storage.GCSPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("mirroring artifacts to GCS", zap.String("bucket", app.cfg.Storage.GCSBucket))
	case app.cfg.Storage.MirrorDir != "":
		var err error
		blobs, err = localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.MirrorDir})
		if err != nil {
			return nil, fmt.Errorf("local mirror init failed: %w", err)
		}
		app.logger.Info("mirroring artifacts to directory", zap.String("path", app.cfg.Storage.MirrorDir))
	default:
		return nil, nil
	}
	sink, err := progresssinks.NewMirrorSink(blobs, library, progresssinks.MirrorConfig{
		QueueSize: app.cfg.Storage.MirrorQueue,
		OpTimeout: app.cfg.Storage.MirrorTimeout,
		Logger:    app.logger.Named("mirror"),
	})
	if err != nil {
		return nil, fmt.Errorf("mirror sink init failed: %w", err)
	}
	return sink, nil
}
