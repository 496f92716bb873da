package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"collicasa-bot/internal/backend"
	"collicasa-bot/internal/bot"
	"collicasa-bot/internal/config"
	"collicasa-bot/internal/logger"
	"collicasa-bot/internal/repository"
	"collicasa-bot/internal/service"
	"collicasa-bot/internal/session"
)

func main() {
	envFile := flag.String("env", ".env", "path to the .env file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envFound, err := config.LoadEnvFile(*envFile)
	if err != nil {
		log.Fatalf("env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, flush := logger.New(logger.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogFileMaxSize,
		MaxBackups: cfg.LogFileMaxBackups,
		MaxAgeDays: cfg.LogFileMaxAge,
	})
	defer flush()

	if !envFound {
		zlog.Warn("no .env file found, using process environment", zap.String("path", *envFile))
	}
	for _, w := range cfg.Warnings {
		zlog.Warn("config", zap.String("warning", w))
	}
	zlog.Info("starting ColliCasa bot",
		zap.String("backend", cfg.BackendBaseURL),
		zap.String("tenant_id", cfg.TenantID))

	db, err := repository.NewDB(cfg.DatabaseURL, zlog)
	if err != nil {
		zlog.Fatal("db", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	eventRepo := repository.NewEventRepository(db)

	client := backend.NewClient(backend.Config{
		BaseURL:      cfg.BackendBaseURL,
		ServiceToken: cfg.ServiceToken,
		TenantID:     cfg.TenantID,
		Timeout:      cfg.BackendTimeout,
	}, zlog)

	accessSvc := service.NewAccessService(client, session.NewStore(cfg.SessionTTL), userRepo, eventRepo,
		service.RateLimit{PerMinute: cfg.UserCommandsPerMinute, Burst: cfg.UserCommandBurst}, zlog)
	historySvc := service.NewHistoryService(eventRepo, cfg.HistoryLimit)

	telegramBot, err := bot.New(cfg.TelegramToken, accessSvc, historySvc, cfg.TenantID, zlog)
	if err != nil {
		zlog.Fatal("bot", zap.Error(err))
	}

	scheduler := service.NewSchedulerService(time.Local, zlog)
	if err := service.ScheduleMaintenance(scheduler, accessSvc, service.MaintenanceConfig{
		HealthCheckInterval: cfg.HealthCheckInterval,
		EventRetention:      cfg.EventRetention,
	}, zlog); err != nil {
		zlog.Fatal("schedule maintenance", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		zlog.Error("bot stopped with error", zap.Error(err))
		return
	}
	zlog.Info("shutdown complete")
}
