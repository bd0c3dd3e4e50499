package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/capturelab/scoopd/config"
	"github.com/capturelab/scoopd/internal/adapters/capturerunner"
	"github.com/capturelab/scoopd/internal/adapters/janitor"
	"github.com/capturelab/scoopd/internal/adapters/reaper"
	"github.com/capturelab/scoopd/internal/adapters/scooprun"
	"github.com/capturelab/scoopd/internal/core"
	"github.com/capturelab/scoopd/internal/data"
	"github.com/capturelab/scoopd/internal/engine"
	"github.com/capturelab/scoopd/internal/finalizer"
	"github.com/capturelab/scoopd/internal/observability/notify"
	"github.com/capturelab/scoopd/internal/observability/notify/email"
	"github.com/capturelab/scoopd/internal/observability/statsd"
	"github.com/capturelab/scoopd/internal/taskq"
	"github.com/capturelab/scoopd/internal/webhook"
)

// taskQueuePrefix namespaces this application's Redis keys.
const taskQueuePrefix = "scoopd"

// ServiceDeps carries the shared infrastructure every service builds on.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Store       core.ObjectStore
	Logger      *slog.Logger
}

// Services holds the constructed service runners, keyed by what they do.
// Only the runners enabled in configuration are started.
type Services struct {
	CaptureRunner *capturerunner.Runner
	Deliverer     *webhook.Deliverer
	Reaper        *reaper.Runner
	Janitor       *janitor.Runner
}

// NewServices wires repositories, the engine, and the service runners.
func NewServices(deps *ServiceDeps) (*Services, error) {
	cfg := deps.Config
	logger := deps.Logger

	metricsSink, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Observability.Metrics.IsEnabled(),
		Address: cfg.Observability.Metrics.StatsdAddress,
		Prefix:  cfg.Observability.Metrics.StatsdPrefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create metrics sink: %w", err)
	}

	notifier, err := buildNotifier(cfg.Observability.Alerts, logger)
	if err != nil {
		return nil, err
	}

	repoCfg := data.RepoConfig{Logger: logger}
	jobs := data.NewCaptureJobRepo(deps.DB, repoCfg)
	archives := data.NewArchiveRepo(deps.DB, repoCfg)
	subscriptions := data.NewWebhookSubscriptionRepo(deps.DB, repoCfg)

	queue := taskq.NewRedisQueue(deps.RedisClient, taskQueuePrefix)

	fin := finalizer.New(finalizer.Options{
		Jobs:     jobs,
		Archives: archives,
		Store:    deps.Store,
		Config:   &cfg.Storage,
		Logger:   logger,
	})
	dispatcher := webhook.NewDispatcher(subscriptions, queue, &cfg.Webhook, logger)

	eng := engine.New(engine.Options{
		Jobs:      jobs,
		Runtime:   scooprun.New(),
		Finalizer: fin,
		Observer:  dispatcher,
		Config:    &cfg.Capture,
		Logger:    logger,
		Metrics:   metricsSink,
		Notifier:  notifier,
	})

	captureRunner, err := capturerunner.New(capturerunner.Options{
		Jobs:   jobs,
		Engine: eng,
		Config: cfg.Capture,
		Reaper: cfg.Reaper,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	deliverer := webhook.NewDeliverer(webhook.DelivererOptions{
		Subscriptions: subscriptions,
		Jobs:          jobs,
		Archives:      archives,
		Queue:         queue,
		Config:        &cfg.Webhook,
		Logger:        logger,
		Metrics:       metricsSink,
		Notifier:      notifier,
	})

	reaperRunner, err := reaper.New(reaper.Options{
		Jobs:    jobs,
		Config:  cfg.Reaper,
		Logger:  logger,
		Metrics: metricsSink,
	})
	if err != nil {
		return nil, err
	}

	janitorRunner, err := janitor.New(janitor.Options{
		Archives: archives,
		Store:    deps.Store,
		Queue:    queue,
		Config:   cfg.Janitor,
		Logger:   logger,
		Metrics:  metricsSink,
	})
	if err != nil {
		return nil, err
	}

	return &Services{
		CaptureRunner: captureRunner,
		Deliverer:     deliverer,
		Reaper:        reaperRunner,
		Janitor:       janitorRunner,
	}, nil
}

//nolint:ireturn // the sink is selected by configuration.
func buildNotifier(cfg config.AlertEmailConfig, logger *slog.Logger) (notify.Sink, error) {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("alert email disabled, failures are logged only")
		}
		return notify.NopSink{}, nil
	}
	sink, err := email.NewSink(email.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		Username:    cfg.Username,
		Password:    cfg.Password,
		From:        cfg.From,
		AppName:     cfg.AppName,
		AdminEmails: cfg.AdminEmails,
	})
	if err != nil {
		return nil, fmt.Errorf("create email alert sink: %w", err)
	}
	return sink, nil
}

// RunServicesWithShutdown starts every enabled service and blocks until a
// shutdown signal arrives or a service fails. SIGINT/SIGTERM cancel the
// shared context; runners treat that as a graceful stop.
func RunServicesWithShutdown(ctx context.Context, cfg *config.AppConfig, services *Services, logger *slog.Logger) error {
	enabled, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if enabled[config.ServiceModeCaptureRunner] {
		g.Go(func() error { return services.CaptureRunner.Run(ctx) })
	}
	if enabled[config.ServiceModeWebhookRunner] {
		g.Go(func() error {
			if err := services.Deliverer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if enabled[config.ServiceModeReaper] {
		g.Go(func() error { return services.Reaper.Run(ctx) })
	}
	if enabled[config.ServiceModeJanitor] {
		g.Go(func() error { return services.Janitor.Run(ctx) })
	}

	logger.InfoContext(ctx, "services started", "enabled", EnabledServiceNames(cfg))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("all services stopped")
	return nil
}
