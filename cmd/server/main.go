package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/app"
	"github.com/Freeeeeet/tutoring_backend/internal/config"
	"github.com/Freeeeeet/tutoring_backend/internal/controller"
	"github.com/Freeeeeet/tutoring_backend/internal/controller/api"
	"github.com/Freeeeeet/tutoring_backend/internal/lock"
	"github.com/Freeeeeet/tutoring_backend/internal/notify"
	"github.com/Freeeeeet/tutoring_backend/internal/observability"
	"github.com/Freeeeeet/tutoring_backend/internal/repository"
	"github.com/Freeeeeet/tutoring_backend/internal/repository/memory"
	"github.com/Freeeeeet/tutoring_backend/internal/service"
	"github.com/Freeeeeet/tutoring_backend/migrations"
	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	lockTTL         = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

// contactStore привязки Telegram для бота и уведомлений
type contactStore interface {
	notify.ContactResolver
	controller.Contacts
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogFile)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting tutoring backend",
		zap.String("environment", cfg.Environment),
		zap.String("storage", cfg.StorageDriver),
		zap.String("addr", cfg.HTTPAddr),
	)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.TracingEnabled,
		SampleRatio: cfg.TracingSampleRatio,
		Writer:      os.Stdout,
	}, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownTracing(context.Background(), shutdownTracing, logger)

	// Хранилище
	var (
		store    service.Store
		contacts contactStore
	)
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := pgxpool.New(ctx, cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}

		if err := migrate(ctx, pool, logger); err != nil {
			return err
		}

		store = repository.NewStore(pool)
		contacts = repository.NewContactRepository(pool)
	default:
		logger.Warn("⚠️  Using in-memory storage, data is lost on restart")
		store = memory.New()
		contacts = memory.NewContacts()
	}

	// Метрики
	registry := prometheus.NewRegistry()
	collector, err := observability.NewCollector(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	httpMetrics, err := observability.NewHTTPMetrics(registry)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	// Telegram
	var telegram *bot.Bot
	if cfg.TelegramToken != "" {
		telegram, err = bot.New(cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
	} else {
		logger.Warn("⚠️  TELEGRAM_TOKEN is empty, telegram notifications are disabled")
	}

	// Уведомления
	hub := notify.NewHub(logger)
	defer hub.Close()

	sinks := []notify.Sink{notify.NewLogSink(logger), hub}
	if telegram != nil {
		sinks = append(sinks, notify.NewTelegramSink(telegram, contacts, logger))
	}
	dispatcher := notify.NewDispatcher(notify.Config{
		Workers: cfg.NotifyWorkers,
		Buffer:  cfg.NotifyBuffer,
	}, logger, collector, sinks...)
	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	// Сервисы
	opts := []service.Option{
		service.WithNotifier(dispatcher),
		service.WithMetrics(collector),
		service.WithRescheduleMinNotice(cfg.RescheduleMinNotice),
	}
	if cfg.RedisURL != "" {
		locker, err := lock.NewRedis(cfg.RedisURL, lockTTL, logger)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer locker.Close()
		opts = append(opts, service.WithLocker(locker))
		logger.Info("✅ Using redis participant locks")
	}

	sessions := service.NewSessionService(store, logger, opts...)
	requests := service.NewSessionRequestService(store, sessions, logger, opts...)
	availability := service.NewAvailabilityChecker(store, opts...)
	slots := service.NewSlotFinder(store, opts...)
	sweeper := service.NewSweeper(store, logger, service.SweepConfig{
		ReminderLeads: cfg.ReminderLeads,
		NoShowGrace:   cfg.NoShowGrace,
		AutoStart:     cfg.AutoStart,
	}, opts...)

	// HTTP
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Sessions:     sessions,
		Requests:     requests,
		Availability: availability,
		Slots:        slots,
		Hub:          hub,
		HTTPMetrics:  httpMetrics,
		Gatherer:     collector.Gatherer(),
		Logger:       logger,
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Бот
	if telegram != nil {
		botController := controller.NewBotController(telegram, requests, sessions, contacts, logger)
		if err := botController.RegisterHandlers(ctx); err != nil {
			logger.Warn("Failed to register bot commands", zap.Error(err))
		}
		go botController.Start(ctx)
	}

	// Фоновые задачи
	scheduler := app.NewScheduler(sweeper, cfg.SweepInterval, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err, ok := <-serverErr:
		if ok && err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	logger.Info("👋 Server stopped")
	return nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	migrator, err := app.NewMigrator(pool, migrations.FS, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Run(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
