package main

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Metronome/internal/api"
	"github.com/shaiso/Metronome/internal/backend"
	"github.com/shaiso/Metronome/internal/config"
	"github.com/shaiso/Metronome/internal/queue"
	"github.com/shaiso/Metronome/internal/redisstore"
	"github.com/shaiso/Metronome/internal/telemetry"
	"github.com/shaiso/Metronome/internal/worker"
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

	logger := telemetry.WithInstance(telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format), cfg.InstanceID)

	topics := cfg.WorkerTopics()
	logger.Info("starting metronome-worker",
		"version", version,
		"config", cfg.Path(),
		"queue_backend", cfg.Queue.Backend,
		"topics", topics,
	)

	// Топология: потребляемые топики и топик отчётов
	declared := slices.Clone(topics)
	if cfg.Worker.CompletionTopic != "" {
		declared = append(declared, cfg.Worker.CompletionTopic)
	}

	backends, err := backend.Open(ctx, cfg, declared, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backends.Close(); err != nil {
			logger.Warn("failed to close backends", "error", err)
		}
	}()

	registry, err := newHandlerRegistry(cfg, logger)
	if err != nil {
		return err
	}

	wcfg := worker.Config{
		Topics:   topics,
		Registry: registry,
		Metrics:  telemetry.NewWorkerMetrics(prometheus.DefaultRegisterer),
		Prefetch: cfg.Worker.Prefetch,
		Logger:   logger,
	}
	switch cfg.Queue.Backend {
	case config.BackendRabbitMQ:
		wcfg.Conn = backends.RabbitMQ
	case config.BackendRedis:
		wcfg.List = redisstore.NewQueue(backends.Redis)
	default:
		return errors.WithHint(
			errors.Mark(errors.Newf("queue backend %q cannot be consumed by a separate process", cfg.Queue.Backend), config.ErrInvalidConfig),
			"set queue.backend to rabbitmq or redis",
		)
	}

	if cfg.Worker.CompletionTopic != "" {
		broker, err := backends.Broker(cfg)
		if err != nil {
			return err
		}
		wcfg.Completions = queue.NewClient(queue.ClientConfig{
			Broker:         broker,
			PublishTimeout: cfg.Queue.PublishTimeout,
			Logger:         logger,
		})
		wcfg.CompletionTopic = cfg.Worker.CompletionTopic
		logger.Info("completion reports enabled", "topic", cfg.Worker.CompletionTopic)
	}

	w := worker.New(wcfg)

	handler := api.NewHandler(api.Config{
		Checks: backends.Checks,
		Logger: logger,
	})
	srv := &http.Server{
		Addr:              cfg.Worker.HTTPAddr,
		Handler:           handler.NewMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := w.Start(ctx); err != nil {
		return errors.Wrap(err, "start worker")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		w.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("metronome-worker stopped")
	return err
}

// newHandlerRegistry собирает обработчики: webhooks из конфига,
// остальные job логируются.
func newHandlerRegistry(cfg *config.Config, logger *slog.Logger) (*worker.Registry, error) {
	registry := worker.NewRegistry(worker.LogHandler(logger))

	for _, wh := range cfg.Worker.Webhooks {
		h, err := worker.NewWebhookHandler(worker.WebhookConfig{
			URL:     wh.URL,
			Method:  wh.Method,
			Headers: wh.Headers,
			Timeout: wh.Timeout,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "webhook for job %q", wh.Job)
		}
		registry.Register(wh.Job, h)
		logger.Info("webhook registered", "job", wh.Job, "url", wh.URL)
	}

	return registry, nil
}
