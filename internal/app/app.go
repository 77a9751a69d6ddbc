// Package app wires the configured services together.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/simple-qr-jobs/internal/config"
	"github.com/jdziat/simple-qr-jobs/pkg/analytics"
	"github.com/jdziat/simple-qr-jobs/pkg/batch"
	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/encoder"
	"github.com/jdziat/simple-qr-jobs/pkg/export"
	"github.com/jdziat/simple-qr-jobs/pkg/generator"
	"github.com/jdziat/simple-qr-jobs/pkg/kv"
	"github.com/jdziat/simple-qr-jobs/pkg/metrics"
	"github.com/jdziat/simple-qr-jobs/pkg/platform"
	"github.com/jdziat/simple-qr-jobs/pkg/store"
)

// App holds every service for one process.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	KV        kv.Store
	Store     *store.Store
	Generator *generator.Generator
	Scheduler *batch.Scheduler
	Bundler   *export.Bundler
	Templates *export.TemplateStore
	Analytics *analytics.Aggregator
	Metrics   *metrics.Collector
	Registry  *prometheus.Registry
	Sink      *platform.DirSink
	Notifier  platform.Notifier

	closers []func() error
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// New opens the configured backend and builds every service. It leaves
// stored jobs untouched; StartResumed picks up interrupted ones.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: NewLogger(cfg.Log, os.Stderr),
	}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	backend, analyticsDB, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	a.KV = backend

	defaults := store.DefaultSettings()
	defaults.HistoryLimit = cfg.Store.HistoryMax
	defaults.BatchConcurrency = cfg.Batch.Concurrency
	defaults.AnalyticsEnabled = cfg.Analytics.Enabled
	a.Store = store.New(backend,
		store.WithCacheTTL(cfg.Store.CacheTTL),
		store.WithDuplicateWindow(cfg.Store.DuplicateWindow),
		store.WithDefaultSettings(defaults),
		store.WithLogger(a.Logger),
	)
	a.closers = append(a.closers, func() error { a.Store.Close(); return nil })

	// The scheduler is the event hub; the generator and bundler publish
	// through it so every subscriber sees one stream.
	var sched *batch.Scheduler
	hub := core.EventSinkFunc(func(e core.Event) { sched.Emit(e) })

	a.Generator = generator.New(encoder.New(),
		generator.WithLogger(a.Logger),
		generator.WithEventSink(hub),
	)
	sched = batch.NewScheduler(a.Generator, batch.NewKVRepository(backend),
		batch.WithLogger(a.Logger),
		batch.WithHistory(a.Store),
		batch.WithLeaseTTL(cfg.Batch.LeaseTTL),
		batch.WithDefaults(cfg.Batch.Concurrency, core.JobSettings{
			RetryAttempts: cfg.Batch.RetryAttempts,
			RetryDelay:    cfg.Batch.RetryDelay,
			TaskTimeout:   cfg.Batch.TaskTimeout,
			SaveToHistory: true,
			ExportFormat:  string(export.FormatArchive),
		}),
	)
	a.Scheduler = sched
	a.closers = append(a.closers, sched.Close)

	a.Bundler = export.NewBundler(export.WithLogger(a.Logger), export.WithEventSink(hub))
	a.Templates = export.NewTemplateStore(backend)

	if a.Sink, err = platform.NewDirSink(cfg.OutputDir, a.Logger); err != nil {
		return err
	}
	a.Notifier = platform.Notifier{Sink: a.Sink, Logger: a.Logger}
	sched.OnJobFinish(func(ctx context.Context, job *core.BatchJob) {
		c := job.Counts()
		a.Notifier.Notify(ctx, "Batch "+string(job.Status),
			fmt.Sprintf("%s: %d generated, %d failed", job.Name, c.Completed, c.Failed))
	})

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.NewCollector(a.Registry)

	analyticsStorage := analytics.NewGormStorage(analyticsDB)
	if err := analyticsStorage.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate analytics: %w", err)
	}
	settings, err := a.Store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	a.Analytics = analytics.New(analyticsStorage,
		analytics.WithEnabled(settings.AnalyticsEnabled),
		analytics.WithRetention(cfg.Analytics.Retention),
		analytics.WithLogger(a.Logger),
	)

	a.startBackground()
	return nil
}

// openBackend returns the kv store plus the database analytics uses.
func (a *App) openBackend(ctx context.Context) (kv.Store, *gorm.DB, error) {
	cfg := a.Config.KV
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	openSQLite := func(path string) (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open(path), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", path, err)
		}
		if err := kv.SingleConn.Apply(db); err != nil {
			return nil, err
		}
		a.closeDB(db)
		return db, nil
	}

	switch cfg.Backend {
	case config.BackendSQLite, config.BackendPostgres:
		var db *gorm.DB
		var err error
		pool := kv.SingleConn
		if cfg.Backend == config.BackendSQLite {
			if db, err = openSQLite(cfg.SQLitePath); err != nil {
				return nil, nil, err
			}
		} else {
			if db, err = gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg); err != nil {
				return nil, nil, fmt.Errorf("open postgres: %w", err)
			}
			a.closeDB(db)
			pool = kv.ServerPool
			if cfg.MaxOpenConns > 0 {
				pool.MaxOpen = cfg.MaxOpenConns
			}
			if cfg.MaxIdleConns > 0 {
				pool.MaxIdle = cfg.MaxIdleConns
			}
			if cfg.ConnMaxLifetime > 0 {
				pool.MaxLifetime = cfg.ConnMaxLifetime
			}
		}
		s, err := kv.OpenGormStore(ctx, db, cfg.QuotaBytes, pool)
		if err != nil {
			return nil, nil, fmt.Errorf("open kv: %w", err)
		}
		return s, db, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		s := kv.NewRedisStore(rdb,
			kv.WithRedisKey(cfg.RedisKey),
			kv.WithRedisQuota(cfg.QuotaBytes),
			kv.WithRedisLogger(a.Logger),
		)
		a.closers = append(a.closers, rdb.Close, s.Close)
		db, err := openSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, db, nil
	}

	db, err := openSQLite(":memory:")
	if err != nil {
		return nil, nil, err
	}
	return kv.NewMemory(cfg.QuotaBytes), db, nil
}

func (a *App) closeDB(db *gorm.DB) {
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
}

// startBackground runs the event consumers until Close.
func (a *App) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	a.cancel = cancel
	a.group = g

	metricsEvents := a.Scheduler.Events()
	analyticsEvents := a.Scheduler.Events()

	g.Go(func() error {
		a.Metrics.Observe(ctx, metricsEvents)
		return nil
	})
	g.Go(func() error {
		a.Analytics.Observe(ctx, analyticsEvents)
		return nil
	})
	g.Go(func() error {
		a.Analytics.Start(ctx)
		return nil
	})

	// Keep the analytics switch in step with the stored setting.
	unsubscribe := a.KV.Subscribe(func(c kv.Change) {
		if !c.Cleared && !c.Has(store.SettingsKey) {
			return
		}
		go a.syncAnalytics(ctx)
	})
	a.closers = append(a.closers, func() error { unsubscribe(); return nil })
}

func (a *App) syncAnalytics(ctx context.Context) {
	settings, err := a.Store.GetSettings(ctx)
	if err != nil {
		a.Logger.Warn("failed to reload settings", "error", err)
		return
	}
	if settings.AnalyticsEnabled != a.Analytics.Enabled() {
		a.Analytics.SetEnabled(settings.AnalyticsEnabled)
		a.Logger.Info("analytics toggled", "enabled", settings.AnalyticsEnabled)
	}
}

// StartResumed resets jobs left processing by a process whose lease has
// expired and restarts them. It returns the ids that were started.
func (a *App) StartResumed(ctx context.Context) []string {
	resumed, err := a.Scheduler.Resume(ctx)
	if err != nil {
		a.Logger.Error("failed to resume interrupted jobs", "error", err)
	}
	var started []string
	for _, id := range resumed {
		if err := a.Scheduler.StartJob(ctx, id); err != nil {
			a.Logger.Warn("failed to restart job", "job_id", id, "error", err)
			continue
		}
		started = append(started, id)
	}
	return started
}

// ServeMetrics serves /metrics on addr until ctx is done.
func (a *App) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.Registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close stops background work and releases every resource, newest first.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
		_ = a.group.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
