// Package main runs the bootcamp registration and payment HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/ai-bootcamp/backend/config"
	"github.com/ai-bootcamp/backend/internal/analytics"
	"github.com/ai-bootcamp/backend/internal/auth"
	"github.com/ai-bootcamp/backend/internal/checkout"
	"github.com/ai-bootcamp/backend/internal/emaillogs"
	"github.com/ai-bootcamp/backend/internal/events"
	"github.com/ai-bootcamp/backend/internal/metrics"
	"github.com/ai-bootcamp/backend/internal/middleware"
	"github.com/ai-bootcamp/backend/internal/models"
	"github.com/ai-bootcamp/backend/internal/notifications"
	"github.com/ai-bootcamp/backend/internal/payments"
	"github.com/ai-bootcamp/backend/internal/registrations"
	"github.com/ai-bootcamp/backend/internal/webhooks"
	"github.com/ai-bootcamp/backend/internal/worker"
	"github.com/ai-bootcamp/backend/pkg/database"
	"github.com/ai-bootcamp/backend/pkg/queue"
	"github.com/ai-bootcamp/backend/pkg/redis"
	"github.com/ai-bootcamp/backend/pkg/response"
	"github.com/ai-bootcamp/backend/pkg/storage"
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

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var images events.ImageStore
	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ImagesBucket:         cfg.AWS.ImagesBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			images = s3Client
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}

	var fallbackEventID uuid.UUID
	if cfg.App.FallbackEventID != "" {
		if fallbackEventID, err = uuid.Parse(cfg.App.FallbackEventID); err != nil {
			logger.Fatal("invalid FALLBACK_EVENT_ID", zap.Error(err))
		}
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	tokens := auth.NewTokenValidator(cfg.Auth.JWTSecret)

	// Stores
	accountRepo := auth.NewAccountRepository(pool)
	eventRepo := events.NewRepository(pool)
	registrationRepo := registrations.NewRepository(pool)
	emailLogRepo := emaillogs.NewRepository(pool)

	// Notifications
	dispatcher := notifications.NewDispatcher(newMailer(cfg.Email, logger), registrationRepo, emailLogRepo, m, notifications.Config{
		AdminEmail: cfg.Email.AdminEmail,
		BaseURL:    cfg.App.BaseURL,
	}, logger)

	// Payments
	gateway := payments.NewStripeGateway(cfg.Stripe.SecretKey, nil, logger)
	initiator := checkout.NewInitiator(gateway, registrationRepo, eventRepo, m, checkout.Config{
		BaseURL:  cfg.App.BaseURL,
		Currency: cfg.Stripe.Currency,
	}, logger)
	reconciler := webhooks.NewReconciler(registrationRepo, accountRepo, webhooks.NewQueueNotifier(jobQueue),
		webhooks.Config{FallbackEventID: fallbackEventID}, logger)
	dedup := webhooks.NewRedisDeduper(rdb.Client, time.Duration(cfg.Stripe.DedupTTLHours)*time.Hour)

	// Handlers
	authHandler := auth.NewHandler(accountRepo, logger)
	eventHandler := events.NewHandler(eventRepo, images, cfg.Stripe.Currency, logger)
	registrationHandler := registrations.NewHandler(registrationRepo, eventRepo, dispatcher, logger)
	checkoutHandler := checkout.NewHandler(initiator)
	webhookHandler := webhooks.NewHandler(webhooks.NewVerifier(cfg.Stripe.WebhookSecret), reconciler, dedup, m, logger)
	emailLogsHandler := emaillogs.NewHandler(emailLogRepo, registrationRepo, jobQueue, logger)
	analyticsHandler := analytics.NewHandler(analytics.NewRepository(pool), eventRepo)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(metrics.Handler(registry)))

	// Webhooks (no JWT; the payload signature is verified in the handler)
	router.POST("/webhooks/stripe", webhookHandler.Stripe)

	// Public, identity attached when a token is present
	public := router.Group("")
	public.Use(middleware.OptionalJWT(tokens))
	{
		public.GET("/events", eventHandler.List)
		public.GET("/events/:id", eventHandler.GetByID)
		public.POST("/events/:id/register", registrationHandler.Register)
		public.GET("/registrations/:id", registrationHandler.Get)
		public.POST("/registrations/:id/confirmation-email", registrationHandler.ConfirmationEmail)
		public.POST("/checkout/sessions", checkoutHandler.CreateSession)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(tokens))
	{
		api.GET("/me", authHandler.Me)
		api.PUT("/me", authHandler.UpdateMe)
		api.GET("/me/registrations", registrationHandler.MyRegistrations)

		admin := api.Group("")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		admin.POST("/events", eventHandler.Create)
		admin.POST("/events/:id/image/upload-url", eventHandler.ImageUploadURL)
		admin.POST("/events/:id/image", eventHandler.UploadImage)
		admin.GET("/events/:id/analytics", analyticsHandler.GetByEvent)
		admin.GET("/events/:id/emails", emailLogsHandler.ListByEvent)
		admin.POST("/events/:id/emails/resend", emailLogsHandler.Resend)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Worker.Inline {
		processor := worker.NewEmailProcessor(registrationRepo, eventRepo, dispatcher, jobQueue, logger)
		g.Go(func() error { return processor.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newMailer(cfg config.EmailConfig, logger *zap.Logger) notifications.Mailer {
	if !cfg.Enabled() {
		logger.Warn("SMTP not configured, emails are logged only")
		return notifications.NewNoopMailer(logger)
	}
	return notifications.NewSMTPMailer(notifications.SMTPConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUser,
		Password:    cfg.SMTPPass,
		FromAddress: cfg.FromAddress,
		FromName:    cfg.FromName,
	})
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
