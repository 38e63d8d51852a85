package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Dosada05/pyramid-ladder/config"
	"github.com/Dosada05/pyramid-ladder/db"
	"github.com/Dosada05/pyramid-ladder/handlers"
	"github.com/Dosada05/pyramid-ladder/metrics"
	"github.com/Dosada05/pyramid-ladder/middleware"
	"github.com/Dosada05/pyramid-ladder/notifications"
	"github.com/Dosada05/pyramid-ladder/pyramid"
	"github.com/Dosada05/pyramid-ladder/repositories"
	api "github.com/Dosada05/pyramid-ladder/routes"
	"github.com/Dosada05/pyramid-ladder/services"
	"github.com/Dosada05/pyramid-ladder/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.String("cellar_rule", string(cfg.Ladder.CellarRule)),
		slog.Duration("expiry_window", cfg.Ladder.ExpiryWindow))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	if err := db.Migrate(ctx, dbConn); err != nil {
		logger.Error("failed to apply schema", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database connection established")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ladderMetrics := metrics.New(registry)

	// Инициализация WebSocket Hub
	wsHub := pyramid.NewHub(logger)
	go wsHub.Run(ctx)
	logger.Info("WebSocket Hub started")

	// Транспорты уведомлений
	dispatcher := notifications.NewDispatcher(logger, ladderMetrics)
	dispatcher.Register("live", notifications.NewLiveNotifier(wsHub))
	if cfg.SMTPEnabled() {
		emailNotifier, err := notifications.NewEmailNotifier(notifications.SMTPConfig{
			Host: cfg.SMTP.Host,
			Port: cfg.SMTP.Port,
			User: cfg.SMTP.User,
			Pass: cfg.SMTP.Pass,
			From: cfg.SMTP.From,
		}, int(cfg.Ladder.ExpiryWindow.Hours()))
		if err != nil {
			logger.Error("failed to initialize email notifier", slog.Any("error", err))
			os.Exit(1)
		}
		dispatcher.Register("email", emailNotifier)
	}
	if cfg.KafkaEnabled() {
		publisher, err := notifications.NewKafkaPublisher(notifications.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: 5 * time.Second,
		})
		if err != nil {
			logger.Error("failed to initialize kafka publisher", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("failed to close kafka publisher", slog.Any("error", err))
			}
		}()
		dispatcher.Register("kafka", publisher)
	}
	logger.Info("notification transports ready", slog.String("transports", strings.Join(dispatcher.Transports(), ",")))

	// Инициализация загрузчика файлов (Cloudflare R2); без него экспорт снимков отключён
	var uploader storage.FileUploader
	if cfg.R2Enabled() {
		uploader, err = storage.NewCloudflareR2Uploader(ctx, storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			SecretAccessKey: cfg.R2.SecretAccessKey,
			BucketName:      cfg.R2.BucketName,
			PublicBaseURL:   cfg.R2.PublicBaseURL,
		}, logger)
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	}

	// Инициализация репозиториев
	store := services.Store{
		Tx:        repositories.NewPostgresTransactor(dbConn, logger),
		Pyramids:  repositories.NewPostgresPyramidRepository(dbConn),
		Teams:     repositories.NewPostgresTeamRepository(dbConn),
		Positions: repositories.NewPostgresPositionRepository(dbConn),
		Matches:   repositories.NewPostgresMatchRepository(dbConn),
		History:   repositories.NewPostgresHistoryRepository(dbConn),
		Scores:    repositories.NewPostgresScoreRepository(dbConn),
	}

	// Инициализация сервисов
	engine := services.NewEngine(store, cfg.Ladder, ladderMetrics, dispatcher, logger)
	matchService := services.NewMatchService(engine)
	expirationService := services.NewExpirationService(engine)
	riskyService := services.NewRiskyService(engine)
	positionService := services.NewPositionService(engine)
	scoreService := services.NewScoreService(engine)
	pyramidService := services.NewPyramidService(store)
	snapshotService := services.NewSnapshotService(pyramidService, uploader, logger)
	logger.Info("Services initialized")

	// Планировщик отметки неактивных команд
	go runRiskyScheduler(ctx, riskyService, cfg.Ladder.RiskyInterval, logger)

	// Инициализация обработчиков HTTP
	router := chi.NewRouter()
	api.SetupRoutes(router, api.Deps{
		JWTSecret:      []byte(cfg.JWTSecretKey),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:    middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Metrics:        ladderMetrics,
		Logger:         logger,
		Matches:        handlers.NewMatchHandler(matchService, expirationService, logger),
		Scores:         handlers.NewScoreHandler(scoreService, logger),
		Pyramids:       handlers.NewPyramidHandler(pyramidService, logger),
		Admin:          handlers.NewAdminHandler(positionService, riskyService, snapshotService, logger),
		WebSocket:      handlers.NewWebSocketHandler(wsHub, cfg.CORSAllowedOrigins, logger),
	})
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stop()
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}

// runRiskyScheduler marks inactive teams once at startup and then on every tick.
func runRiskyScheduler(ctx context.Context, risky services.RiskyService, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("risky-team scheduler started", slog.Duration("interval", interval))

	pass := func() {
		reports, err := risky.MarkAllActive(ctx)
		if err != nil {
			logger.Error("scheduler: risky pass failed", slog.Any("error", err))
			return
		}
		marked := 0
		for _, r := range reports {
			marked += len(r.Marked)
		}
		logger.Info("scheduler: risky pass done", slog.Int("pyramids", len(reports)), slog.Int("marked", marked))
	}

	pass()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass()
		}
	}
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}
