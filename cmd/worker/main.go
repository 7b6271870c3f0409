// Package main runs the background email worker (confirmations, payment reminders).
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ai-bootcamp/backend/config"
	"github.com/ai-bootcamp/backend/internal/emaillogs"
	"github.com/ai-bootcamp/backend/internal/events"
	"github.com/ai-bootcamp/backend/internal/metrics"
	"github.com/ai-bootcamp/backend/internal/notifications"
	"github.com/ai-bootcamp/backend/internal/registrations"
	"github.com/ai-bootcamp/backend/internal/worker"
	"github.com/ai-bootcamp/backend/pkg/database"
	"github.com/ai-bootcamp/backend/pkg/queue"
	"github.com/ai-bootcamp/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}

	var mailer notifications.Mailer = notifications.NewNoopMailer(logger)
	if cfg.Email.Enabled() {
		mailer = notifications.NewSMTPMailer(notifications.SMTPConfig{
			Host:        cfg.Email.SMTPHost,
			Port:        cfg.Email.SMTPPort,
			Username:    cfg.Email.SMTPUser,
			Password:    cfg.Email.SMTPPass,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
		})
	}

	registrationRepo := registrations.NewRepository(pool)
	dispatcher := notifications.NewDispatcher(mailer, registrationRepo, emaillogs.NewRepository(pool), m, notifications.Config{
		AdminEmail: cfg.Email.AdminEmail,
		BaseURL:    cfg.App.BaseURL,
	}, logger)
	processor := worker.NewEmailProcessor(registrationRepo, events.NewRepository(pool), dispatcher,
		queue.NewQueue(rdb.Client, logger), logger)

	if err := processor.Run(ctx); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
		return
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
