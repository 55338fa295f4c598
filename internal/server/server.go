// Package server builds the export backend from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/apilog-dashboard/internal/api"
	"github.com/JakeFAU/apilog-dashboard/internal/backend"
	"github.com/JakeFAU/apilog-dashboard/internal/clock/system"
	"github.com/JakeFAU/apilog-dashboard/internal/config"
	"github.com/JakeFAU/apilog-dashboard/internal/dispatcher"
	"github.com/JakeFAU/apilog-dashboard/internal/id/uuid"
	"github.com/JakeFAU/apilog-dashboard/internal/logs"
	kafkapublisher "github.com/JakeFAU/apilog-dashboard/internal/publisher/kafka"
	memorypublisher "github.com/JakeFAU/apilog-dashboard/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/apilog-dashboard/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/apilog-dashboard/internal/queue/memory"
	queueRedis "github.com/JakeFAU/apilog-dashboard/internal/queue/redis"
	gcsstorage "github.com/JakeFAU/apilog-dashboard/internal/storage/gcs"
	localstorage "github.com/JakeFAU/apilog-dashboard/internal/storage/local"
	memoryStorage "github.com/JakeFAU/apilog-dashboard/internal/storage/memory"
	pgstore "github.com/JakeFAU/apilog-dashboard/internal/storage/postgres"
	"github.com/JakeFAU/apilog-dashboard/internal/telemetry"
	"github.com/JakeFAU/apilog-dashboard/internal/worker"
)

// App holds the backend's long-lived dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	queue     backend.Queue
	closers   []namedCloser
	checks    []api.Option
}

type namedCloser struct {
	name  string
	close func() error
}

// Build creates the application's dependencies. Resources opened before a
// failure are released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeInfrastructure()
		}
	}()

	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("cloud", cfg.Cloud.Backend),
		zap.String("queue", cfg.Queue.Backend),
		zap.String("events", cfg.Events.Backend),
		zap.Bool("postgres", cfg.DB.DSN != ""),
		zap.Bool("tracing", cfg.Tracing.Enabled),
	)

	if err = app.setupTracing(ctx); err != nil {
		return nil, err
	}
	clock := system.New()

	files, err := app.setupStorage()
	if err != nil {
		return nil, err
	}
	cloud, err := app.setupCloud(ctx)
	if err != nil {
		return nil, err
	}
	jobStore, logStore, err := app.setupDatabase(ctx, clock)
	if err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	if err = app.setupQueue(ctx); err != nil {
		return nil, err
	}

	app.dispatch = app.setupDispatcher(jobStore, logStore, files, cloud, publisher, clock)
	app.apiServer = api.NewServer(
		jobStore,
		app.dispatch,
		files,
		logStore,
		uuid.New(),
		clock,
		cfg,
		logger.Named("api"),
		app.checks...,
	)
	return app, nil
}

// Handler exposes the HTTP routes, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and runs the workers until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Export.Concurrency))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	<-dispatched
	a.Close()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve http: %w", err)
	default:
		return nil
	}
}

// Close releases queue, storage, and database resources.
func (a *App) Close() {
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

func (a *App) setupTracing(ctx context.Context) error {
	if !a.cfg.Tracing.Enabled {
		a.logger.Info("tracing disabled")
		return nil
	}
	tp, err := telemetry.InitTracerProvider(ctx, a.cfg.Tracing.ServiceName)
	if err != nil {
		return fmt.Errorf("tracer provider init failed: %w", err)
	}
	a.onClose("tracing", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	})
	a.logger.Info("tracer provider initialized", zap.String("service", a.cfg.Tracing.ServiceName))
	return nil
}

func (a *App) setupStorage() (backend.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.BaseDir))
		return store, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(""), nil
	}
}

func (a *App) setupCloud(ctx context.Context) (backend.CloudStore, error) {
	switch a.cfg.Cloud.Backend {
	case "gcs":
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Cloud.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.onClose("gcs", store.Close)
		a.logger.Info("using GCS cloud backend", zap.String("bucket", a.cfg.Cloud.GCSBucket))
		return store, nil
	default:
		a.logger.Info("using in-memory cloud backend", zap.String("base_url", a.cfg.Cloud.PublicBaseURL))
		return memoryStorage.NewBlobStore(a.cfg.Cloud.PublicBaseURL), nil
	}
}

func (a *App) setupDatabase(ctx context.Context, clock backend.Clock) (backend.JobStore, logs.Store, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN specified for database, using in-memory stores",
			zap.Int("seed_logs", a.cfg.Server.SeedLogs))
		entries := memoryStorage.SampleEntries(a.cfg.Server.SeedLogs, clock.Now())
		return memoryStorage.NewJobStore(), memoryStorage.NewLogStore(entries...), nil
	}
	pool, err := pgstore.Connect(ctx, pgstore.PoolConfig{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, nil, err
	}
	a.onClose("postgres", func() error {
		pool.Close()
		return nil
	})
	if err := pgstore.EnsureSchema(ctx, pool, a.cfg.DB.Table, a.cfg.DB.JobsTable); err != nil {
		return nil, nil, err
	}
	logStore, err := pgstore.NewLogStore(pool, a.cfg.DB.Table)
	if err != nil {
		return nil, nil, fmt.Errorf("log store init failed: %w", err)
	}
	jobStore, err := pgstore.NewJobStore(pool, a.cfg.DB.JobsTable)
	if err != nil {
		return nil, nil, fmt.Errorf("job store init failed: %w", err)
	}
	a.checks = append(a.checks, api.WithReadyCheck("postgres", pool.Ping))
	a.logger.Info("postgres stores initialized",
		zap.String("logs_table", a.cfg.DB.Table),
		zap.String("jobs_table", a.cfg.DB.JobsTable),
	)
	return jobStore, logStore, nil
}

func (a *App) setupPublisher(ctx context.Context) (backend.Publisher, error) {
	switch a.cfg.Events.Backend {
	case "pubsub":
		pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.onClose("pubsub", pub.Close)
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.TopicName),
		)
		return pub, nil
	case "kafka":
		pub, err := kafkapublisher.Open(a.cfg.Kafka.Brokers)
		if err != nil {
			return nil, fmt.Errorf("kafka publisher init failed: %w", err)
		}
		a.onClose("kafka", pub.Close)
		a.logger.Info("Kafka publisher initialized",
			zap.Strings("brokers", a.cfg.Kafka.Brokers),
			zap.String("topic", a.cfg.Kafka.Topic),
		)
		return pub, nil
	case "memory":
		a.logger.Info("using in-memory publisher")
		return memorypublisher.New(), nil
	default:
		a.logger.Info("completion events disabled")
		return nil, nil
	}
}

func (a *App) setupQueue(ctx context.Context) error {
	switch a.cfg.Queue.Backend {
	case "redis":
		q, err := queueRedis.Open(ctx, queueRedis.Config{
			Addr: a.cfg.Queue.RedisAddr,
			Key:  a.cfg.Queue.RedisKey,
		})
		if err != nil {
			return fmt.Errorf("redis queue init failed: %w", err)
		}
		a.onClose("redis", q.Close)
		a.checks = append(a.checks, api.WithReadyCheck("redis", q.Ping))
		a.logger.Info("using redis queue",
			zap.String("addr", a.cfg.Queue.RedisAddr),
			zap.String("key", a.cfg.Queue.RedisKey),
		)
		a.queue = q
	default:
		q := queueMemory.NewQueue(a.cfg.Export.QueueDepth)
		a.onClose("queue", func() error {
			q.Close()
			return nil
		})
		a.logger.Info("using in-memory queue", zap.Int("depth", a.cfg.Export.QueueDepth))
		a.queue = q
	}
	return nil
}

func (a *App) setupDispatcher(
	jobStore backend.JobStore,
	logStore logs.Store,
	files backend.BlobStore,
	cloud backend.CloudStore,
	publisher backend.Publisher,
	clock backend.Clock,
) *dispatcher.Dispatcher {
	workerCfg := worker.Config{
		PageSize:       a.cfg.Export.PageSize,
		ArtifactPrefix: a.cfg.Export.ArtifactPrefix,
		SignedURLTTL:   a.cfg.Cloud.SignedURLTTL,
		Topic:          a.cfg.EventTopic(),
		PageDelay:      a.cfg.Export.PollDelay,
	}
	a.logger.Info("worker config",
		zap.Int("page_size", workerCfg.PageSize),
		zap.String("artifact_prefix", workerCfg.ArtifactPrefix),
		zap.String("topic", workerCfg.Topic),
		zap.Duration("signed_url_ttl", workerCfg.SignedURLTTL),
	)
	runners := make([]dispatcher.Runner, 0, a.cfg.Export.Concurrency)
	for i := 0; i < a.cfg.Export.Concurrency; i++ {
		runners = append(runners, worker.New(
			a.queue,
			jobStore,
			logStore,
			files,
			cloud,
			publisher,
			clock,
			workerCfg,
			a.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return dispatcher.New(a.queue, runners)
}
