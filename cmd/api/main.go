package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/community-services/internal/api/http"
	"github.com/spec-kit/community-services/internal/api/http/handlers"
	"github.com/spec-kit/community-services/internal/auth"
	"github.com/spec-kit/community-services/internal/config"
	"github.com/spec-kit/community-services/internal/domain"
	"github.com/spec-kit/community-services/internal/events"
	"github.com/spec-kit/community-services/internal/notify"
	"github.com/spec-kit/community-services/internal/observability"
	"github.com/spec-kit/community-services/internal/persistence"
	"github.com/spec-kit/community-services/internal/service"
	"github.com/spec-kit/community-services/internal/worker"
)

const shutdownTimeout = 15 * time.Second

// seedActor owns workflows loaded from the seed file.
var seedActor = domain.Principal{Email: "system@community-services", DisplayName: "System", Role: domain.RoleAdmin}

func main() {
	envFile := pflag.String("env-file", "", "dotenv file to load before reading the environment")
	workflowFile := pflag.String("workflows", "", "YAML file of workflow definitions to seed at startup")
	directoryFile := pflag.String("directory", "", "YAML principal directory (defaults to the demo accounts)")
	pflag.Parse()

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *workflowFile != "" {
		cfg.Lifecycle.WorkflowFile = *workflowFile
	}
	if *directoryFile != "" {
		cfg.Auth.DirectoryFile = *directoryFile
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing := observability.SetupTracing(ctx, cfg.Telemetry, cfg.App, logger)
	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(cfg.Postgres.DSN, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	stores := persistence.NewStores(pg, redis, logger)

	directory, err := loadDirectory(cfg.Auth)
	if err != nil {
		logger.Fatal("failed to load principal directory", zap.Error(err))
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	pool := worker.NewPool(cfg.Notification.Workers, cfg.Notification.QueueSize, logger)
	dispatcher := events.NewAsyncDispatcher(pool, cfg.Notification.WebhookTimeout(), logger, metrics)
	notifier := service.NewNotificationService(dispatcher, logger)
	closeSinks := registerSinks(notifier, cfg.Notification, redis, logger)
	defer closeSinks()

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   stores.Tickets,
		WorkflowRepo: stores.Workflows,
		Sequencer:    stores.Sequencer,
		Notifier:     notifier,
		Logger:       logger,
	})
	lifecycleDeps := service.LifecycleDependencies{
		TicketRepo:   stores.Tickets,
		WorkflowRepo: stores.Workflows,
		Notifier:     notifier,
		Logger:       logger,
		Metrics:      metrics,
	}
	lifecycle := service.NewLifecycleService(lifecycleDeps)
	escalation := service.NewEscalationService(lifecycleDeps)
	workflowService := service.NewWorkflowService(service.WorkflowDependencies{
		WorkflowRepo: stores.Workflows,
		Sequencer:    stores.Sequencer,
		Logger:       logger,
	})
	authService := service.NewAuthService(directory, tokens, logger)

	if cfg.Lifecycle.WorkflowFile != "" {
		seeds, err := service.LoadWorkflowFile(cfg.Lifecycle.WorkflowFile)
		if err != nil {
			logger.Fatal("failed to read workflow seed file", zap.Error(err))
		}
		if err := workflowService.Seed(ctx, seedActor, seeds); err != nil {
			logger.Fatal("failed to seed workflows", zap.Error(err))
		}
	}

	sweepDone := worker.StartEscalationWorker(ctx, escalation, cfg.Lifecycle.SweepInterval(), logger)

	app := httptransport.NewApp(cfg.App.Name, logger, metrics, cfg.App.RequestTimeout(), httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService, lifecycle),
		Workflows:      handlers.NewWorkflowsHandler(workflowService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, directory),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	<-sweepDone
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Warn("notification pool shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown", zap.Error(err))
	}
}

func loadDirectory(cfg config.AuthConfig) (auth.Directory, error) {
	entries := auth.DemoEntries()
	if cfg.DirectoryFile != "" {
		loaded, err := auth.LoadDirectoryFile(cfg.DirectoryFile)
		if err != nil {
			return nil, err
		}
		entries = loaded
	}
	return auth.NewMemoryDirectory(entries, cfg.BcryptCost)
}

// registerSinks attaches the log sink plus every configured external sink.
// The returned func releases broker connections.
func registerSinks(notifier *service.NotificationService, cfg config.NotificationConfig, redis *persistence.Redis, logger *zap.Logger) func() {
	sinks := []events.Sink{notify.NewLogSink(logger)}
	closers := []func(){}

	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.WebhookURL, cfg.WebhookTimeout()))
	}
	if cfg.AMQPURL != "" {
		amqpSink, err := notify.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Warn("amqp sink unavailable", zap.Error(err))
		} else {
			sinks = append(sinks, amqpSink)
			closers = append(closers, amqpSink.Close)
		}
	}
	if redis.Enabled() {
		sinks = append(sinks, notify.NewRedisSink(redis.Client, cfg.RedisChannel))
	}

	notifier.RegisterSinks(sinks...)
	return func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
