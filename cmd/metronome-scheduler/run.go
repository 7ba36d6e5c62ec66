package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Metronome/internal/api"
	"github.com/shaiso/Metronome/internal/backend"
	"github.com/shaiso/Metronome/internal/config"
	"github.com/shaiso/Metronome/internal/lease"
	"github.com/shaiso/Metronome/internal/queue"
	"github.com/shaiso/Metronome/internal/registry"
	"github.com/shaiso/Metronome/internal/scheduler"
	"github.com/shaiso/Metronome/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Инициализируем structured logging
	logger := telemetry.WithInstance(telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format), cfg.InstanceID)
	logger.Info("starting metronome-scheduler",
		"version", version,
		"config", cfg.Path(),
		"lease_backend", cfg.Lease.Backend,
		"registry_backend", cfg.Registry.Backend,
		"queue_backend", cfg.Queue.Backend,
	)

	backends, err := backend.Open(ctx, cfg, cfg.Topics(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backends.Close(); err != nil {
			logger.Warn("failed to close backends", "error", err)
		}
	}()

	leaseStore, err := backends.LeaseStore(cfg)
	if err != nil {
		return err
	}
	stateStore, err := backends.StateStore(cfg)
	if err != nil {
		return err
	}
	broker, err := backends.Broker(cfg)
	if err != nil {
		return err
	}

	// Реестр job
	reg := registry.New(registry.Config{Store: stateStore, Logger: logger})
	defs, err := cfg.JobDefinitions()
	if err != nil {
		logger.Error("some jobs are excluded from the registry", "error", err)
	}
	for _, def := range defs {
		if _, err := reg.Register(def); err != nil {
			// Job без имени или дубль не попадает в реестр, битый cadence — выключается
			logger.Error("job registration failed", "job", def.Name, "error", err)
		}
	}
	logger.Info("jobs registered", "count", reg.Len())

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	guard := lease.NewGuard(leaseStore, lease.GuardConfig{
		Key:         cfg.Lease.Key,
		InstanceID:  cfg.InstanceID,
		TTL:         cfg.Lease.TTL,
		CallTimeout: cfg.Lease.RenewTimeout,
		Logger:      logger,
	})

	sched := scheduler.New(scheduler.Config{
		Registry: reg,
		Guard:    guard,
		Queue: queue.NewClient(queue.ClientConfig{
			Broker:         broker,
			DefaultTopic:   cfg.Queue.DefaultTopic,
			PublishTimeout: cfg.Queue.PublishTimeout,
			Logger:         logger,
		}),
		Metrics:      metrics,
		TickPeriod:   cfg.Tick.Period,
		RenewPeriod:  cfg.Lease.RenewPeriod,
		ElectionPoll: cfg.Lease.ElectionPoll,
		MaxBackoff:   cfg.Lease.MaxBackoff,
		Logger:       logger,
	})

	handler := api.NewHandler(api.Config{
		Status:   sched,
		Registry: reg,
		Checks:   backends.Checks,
		Logger:   logger,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.NewMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Watch && cfg.Path() != "" {
		watcher, err := config.NewWatcher(config.WatcherConfig{
			Path:     cfg.Path(),
			OnReload: reloadJobs(reg, backends, logger),
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	err = g.Wait()
	logger.Info("metronome-scheduler stopped")
	return err
}

// reloadJobs применяет job из перечитанного конфига.
// Параметры процесса (backends, lease, tick) без рестарта не меняются.
func reloadJobs(reg *registry.Registry, backends *backend.Set, logger *slog.Logger) config.ReloadFunc {
	return func(ctx context.Context, cfg *config.Config) error {
		defs, err := cfg.JobDefinitions()
		if err != nil {
			logger.Error("some jobs are excluded from the registry", "error", err)
		}

		if err := backends.UpdateTopology(ctx, cfg.Topics()); err != nil {
			return errors.Wrap(err, "update topology")
		}

		if err := reg.Sync(ctx, defs); err != nil {
			// Sync применяет корректные job, ошибки — по отдельным job
			logger.Error("job sync finished with errors", "error", err)
		}
		logger.Info("jobs reloaded", "count", reg.Len())
		return nil
	}
}
