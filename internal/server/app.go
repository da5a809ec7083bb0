// Package server builds the ingest service from configuration and owns its lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/api"
	"github.com/JakeFAU/realtime-news-ingest/internal/clock/system"
	"github.com/JakeFAU/realtime-news-ingest/internal/config"
	"github.com/JakeFAU/realtime-news-ingest/internal/dispatcher"
	headlessfetcher "github.com/JakeFAU/realtime-news-ingest/internal/fetcher/headless"
	"github.com/JakeFAU/realtime-news-ingest/internal/headless/detector"
	"github.com/JakeFAU/realtime-news-ingest/internal/id/uuid"
	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-news-ingest/internal/logging"
	"github.com/JakeFAU/realtime-news-ingest/internal/progress"
	progresssinks "github.com/JakeFAU/realtime-news-ingest/internal/progress/sinks"
	queuememory "github.com/JakeFAU/realtime-news-ingest/internal/queue/memory"
	"github.com/JakeFAU/realtime-news-ingest/internal/run"
	"github.com/JakeFAU/realtime-news-ingest/internal/stealth"
	"github.com/JakeFAU/realtime-news-ingest/internal/store"
	"github.com/JakeFAU/realtime-news-ingest/internal/telemetry"
	"github.com/JakeFAU/realtime-news-ingest/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	registerer   prometheus.Registerer
	orchestrator *run.Orchestrator
	runs         ingest.RunStore
	apiServer    *api.Server
	dispatch     *dispatcher.Dispatcher
	queue        *queuememory.Queue
	progressHub  *progress.Hub
	headless     *headlessfetcher.Requester
	readiness    []api.ReadyCheck
	closers      []namedCloser

	tracerShutdown func(context.Context) error
}

type namedCloser struct {
	name  string
	close func() error
}

// Option customizes Build.
type Option func(*App)

// WithLogger replaces the logger built from configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithRegisterer sets where the progress collectors are registered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// Build creates the application's dependencies. On failure every resource
// opened so far is released.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	app := &App{cfg: cfg}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		app.logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(app.logger)
	}
	if app.registerer == nil {
		app.registerer = prometheus.DefaultRegisterer
	}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.Background())
		}
	}()

	app.tracerShutdown, err = telemetry.InitTracerProvider(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.TracingEnabled,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}

	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("archive_backend", cfg.Archive.Backend),
		zap.String("notify_backend", cfg.Notify.Backend),
		zap.Strings("sources", cfg.SourceIDs()),
	)

	clock := system.New()
	ids := uuid.New()

	repo, err := setupStorage(ctx, app, ids)
	if err != nil {
		return nil, err
	}
	archiver, err := setupArchive(ctx, app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	events, err := setupProgress(ctx, app)
	if err != nil {
		return nil, err
	}

	headless, detect, err := setupHeadless(app)
	if err != nil {
		return nil, err
	}
	pipelines, err := BuildPipelines(cfg, PipelineDeps{
		Clock:    clock,
		Sleep:    clock,
		Random:   stealth.NewRandomFromRuntime(),
		Headless: headless,
		Detector: detect,
		Logger:   app.logger,
	})
	if err != nil {
		return nil, err
	}

	app.orchestrator, err = run.New(run.Deps{
		Pipelines:       pipelines,
		Persister:       store.NewGateway(repo, app.logger.Named("gateway")),
		Archiver:        archiver,
		Publisher:       publisher,
		Topic:           cfg.Notify.Topic,
		Events:          events,
		IDs:             ids,
		Clock:           clock,
		Sleeper:         clock,
		MaxReportErrors: cfg.Run.MaxReportErrors,
		Logger:          app.logger.Named("run"),
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}

	app.queue = queuememory.NewQueue(cfg.Dispatcher.QueueDepth)
	app.dispatch = setupDispatcher(app, ids, clock)
	app.apiServer = api.NewServer(
		app.dispatch,
		app.runs,
		app.orchestrator,
		cfg.Auth,
		app.logger.Named("api"),
		app.readiness...,
	)
	return app, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Orchestrator exposes the run engine for one-shot CLI runs.
func (a *App) Orchestrator() *run.Orchestrator { return a.orchestrator }

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Run starts the dispatcher and HTTP server and blocks until the context is
// canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("dispatcher did not drain before shutdown deadline")
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		a.progressHub = nil
	}
	if a.headless != nil {
		a.headless.Close()
		a.headless = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracerShutdown = nil
	}
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

func setupProgress(ctx context.Context, app *App) (progress.Emitter, error) {
	promSink, err := progresssinks.NewPrometheusSink(app.registerer)
	if err != nil {
		return nil, fmt.Errorf("progress prometheus sink init failed: %w", err)
	}
	hubCfg := progress.Config{
		BaseContext: ctx,
		Logger:      app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg,
		progresssinks.NewLogSink(app.logger.Named("progress_log")),
		promSink,
	)
	app.logger.Debug("progress hub initialized")
	return app.progressHub, nil
}

func setupHeadless(app *App) (ingest.Requester, ingest.HeadlessDetector, error) {
	if !app.cfg.Headless.Enabled {
		return nil, nil, nil
	}
	requester, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       app.cfg.Headless.MaxParallel,
		NavigationTimeout: app.cfg.Headless.NavTimeout(),
	})
	if err != nil {
		app.logger.Warn("headless fetcher init failed, promotions disabled", zap.Error(err))
		return headlessfetcher.NewNoop(), detector.NewHeuristic(app.cfg.Headless.PromotionThreshold), nil
	}
	app.headless = requester
	app.logger.Info("headless fallback enabled",
		zap.Int("max_parallel", app.cfg.Headless.MaxParallel),
		zap.Int("promotion_threshold", app.cfg.Headless.PromotionThreshold),
	)
	return requester, detector.NewHeuristic(app.cfg.Headless.PromotionThreshold), nil
}

func setupDispatcher(app *App, ids ingest.IDGenerator, clock ingest.Clock) *dispatcher.Dispatcher {
	flight := worker.NewFlight()
	workers := make([]*worker.Worker, 0, app.cfg.Dispatcher.Workers)
	for i := 0; i < app.cfg.Dispatcher.Workers; i++ {
		workers = append(workers, worker.New(
			app.queue,
			app.runs,
			app.orchestrator,
			flight,
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	schedules := Schedules(app.cfg)
	app.logger.Info("dispatcher configured",
		zap.Int("workers", len(workers)),
		zap.Int("queue_depth", app.cfg.Dispatcher.QueueDepth),
		zap.Int("schedules", len(schedules)),
	)
	return dispatcher.New(dispatcher.Config{
		Queue:     app.queue,
		Runs:      app.runs,
		IDs:       ids,
		Clock:     clock,
		Workers:   workers,
		Schedules: schedules,
		Logger:    app.logger.Named("dispatcher"),
	})
}

// Schedules lists the periodic runs implied by configuration. Nothing is
// scheduled unless dispatcher.schedule is set.
func Schedules(cfg *config.Config) []dispatcher.Schedule {
	if !cfg.Dispatcher.Schedule {
		return nil
	}
	var schedules []dispatcher.Schedule
	for _, id := range cfg.SourceIDs() {
		src := cfg.Sources[id]
		if src.ScheduleMinutes <= 0 {
			continue
		}
		schedules = append(schedules, dispatcher.Schedule{
			SourceID: id,
			Interval: time.Duration(src.ScheduleMinutes) * time.Minute,
			Target:   src.Target,
		})
	}
	return schedules
}

// RunSource executes one run synchronously, outside the queue.
func (a *App) RunSource(ctx context.Context, sourceID string, target int) *ingest.RunReport {
	return a.orchestrator.Run(ctx, sourceID, target)
}
