package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coldwatch-data/internal/config"
	"coldwatch-data/internal/database"
	httpapi "coldwatch-data/internal/http"
	"coldwatch-data/internal/logger"
	"coldwatch-data/internal/milesight"
	"coldwatch-data/internal/notify"
	"coldwatch-data/internal/repository"
	"coldwatch-data/internal/service"
	"coldwatch-data/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "coldwatch-data")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	latestCache := store.NewLatestReadingCache(store.NewRedisKV(redisClient))

	devicesRepo := repository.NewPostgresDevicesRepo(db, log)
	telemetryRepo := repository.NewPostgresTelemetryRepo(db, log)
	alertConfigsRepo := repository.NewPostgresAlertConfigsRepo(db, log)
	authSettingsRepo := repository.NewPostgresAuthSettingsRepo(db, log)
	criticalRepo := repository.NewPostgresCriticalDevicesRepo(db, log)
	usersRepo := repository.NewPostgresUsersRepo(db, log)

	msClient := milesight.NewClient(log)
	tokens := milesight.NewTokenManager(authSettingsRepo, msClient, log)
	sender := notify.NewSMTPSender(&cfg.SMTP, log)

	alertSvc := service.NewAlertService(alertConfigsRepo, sender, log)
	telemetrySvc := service.NewTelemetryService(
		telemetryRepo, devicesRepo, alertSvc, latestCache,
		tokens, msClient, cfg.BackfillLimit, log,
	)
	syncSvc := service.NewSyncService(devicesRepo, tokens, msClient, latestCache, log)
	monitorSvc := service.NewMonitorService(
		criticalRepo, devicesRepo, telemetryRepo,
		tokens, msClient, telemetrySvc, sender,
		cfg.OpsRecipients, cfg.OfflineThreshold, cfg.BackfillLimit, log,
	)
	exportSvc := service.NewExportService(telemetryRepo, devicesRepo, log)
	userSvc := service.NewUserService(usersRepo, log)

	sessions := httpapi.NewSessionStore()
	router := httpapi.NewRouter(sessions, log)
	router.RegisterHealthRoute()
	router.RegisterWebhookRoutes(httpapi.NewWebhookHandler(telemetrySvc, cfg.WebhookToken, log))
	router.RegisterAuthRoutes(httpapi.NewAuthHandler(userSvc, sessions, log))

	deviceHandler := httpapi.NewDeviceHandler(devicesRepo, syncSvc, log)
	router.RegisterDeviceRoutes(
		deviceHandler,
		httpapi.NewTelemetryHandler(telemetrySvc, exportSvc, log),
		httpapi.NewAlertConfigHandler(alertSvc, log),
	)
	router.RegisterCriticalDeviceRoutes(httpapi.NewCriticalDeviceHandler(monitorSvc, log))
	router.RegisterMilesightRoutes(httpapi.NewAuthSettingsHandler(authSettingsRepo, tokens, log), deviceHandler)
	router.RegisterUserRoutes(httpapi.NewUserHandler(userSvc, log))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := service.NewScheduler(tokens, syncSvc, monitorSvc, telemetrySvc,
		service.SchedulerIntervals{
			TokenRefresh: cfg.TokenRefreshInterval,
			DeviceSync:   cfg.DeviceSyncInterval,
			Monitor:      cfg.MonitorInterval,
			ConfigPoll:   cfg.ConfigPollInterval,
		}, log)
	scheduler.Start(ctx)

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server exited", zap.Error(err))
		}
	}
	cancel()

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}
