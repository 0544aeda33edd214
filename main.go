package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shop-service/cache"
	"shop-service/config"
	"shop-service/controllers"
	"shop-service/database"
	"shop-service/logger"
	"shop-service/middleware"
	"shop-service/notify"
	aws_pkg "shop-service/pkg/aws"
	"shop-service/repository"
	"shop-service/routes"
	"shop-service/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "shop-service"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// AWS clients are optional outside production.
	awsCfg, awsErr := aws_pkg.LoadAWSConfig(ctx)

	var logSink io.Writer
	if cfg.LogsEnabled && awsErr == nil {
		w, err := aws_pkg.NewLogsWriter(ctx, awsCfg, cfg.LogGroup, serviceName)
		if err != nil {
			log.Printf("CloudWatch Logs unavailable: %v", err)
		} else {
			logSink = w
		}
	}

	zapLogger, err := logger.NewWithWriter(cfg.Environment, logSink)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	var (
		publisher     aws_pkg.MessagePublisher
		eventTarget   string
		metricsClient *aws_pkg.MetricsClient
	)
	if awsErr != nil {
		zapLogger.Warn("AWS config unavailable, notifications and metrics disabled", zap.Error(awsErr))
	} else {
		switch {
		case cfg.NotificationsTopicARN != "":
			publisher, eventTarget = aws_pkg.NewSNSClient(awsCfg), cfg.NotificationsTopicARN
		case cfg.NotificationsQueueURL != "":
			publisher, eventTarget = aws_pkg.NewSQSClient(awsCfg), cfg.NotificationsQueueURL
		}
		metricsClient = aws_pkg.NewMetricsClient(awsCfg, cfg.MetricsNamespace, cfg.MetricsEnabled)
	}

	if cfg.UseSecretsManager {
		if awsErr != nil {
			zapLogger.Fatal("AWS_USE_SECRETS set but AWS config failed", zap.Error(awsErr))
		}
		if err := cfg.ApplySecrets(ctx, aws_pkg.NewSecretsClient(awsCfg, aws_pkg.DefaultSecretTTL)); err != nil {
			zapLogger.Fatal("Failed to load database secret", zap.Error(err))
		}
		zapLogger.Info("Database credentials loaded from Secrets Manager", zap.String("secret", cfg.DBSecretName))
	}

	db, err := database.ConnectPostgres(cfg.DSN(), zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db) //nolint:errcheck

	var deduper services.EventDeduper
	if cfg.RedisURL != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			zapLogger.Warn("Redis unavailable, webhook dedupe disabled", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
			deduper = cache.NewEventDeduper(redisClient, cache.DefaultEventTTL)
		}
	}

	dispatcher := notify.NewDispatcher(publisher, eventTarget, 0, zapLogger)
	dispatcher.Start(ctx)

	if cfg.StripeWebhookKey == "" {
		zapLogger.Warn("STRIPE_WEBHOOK_SECRET not set, webhooks will be rejected")
	}

	// DI chain
	store := repository.NewGormStore(db)
	ledger := services.NewInventoryLedger()
	gateway := services.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookKey)

	cartService := services.NewCartService(store, ledger, zapLogger)
	orderService := services.NewOrderService(store, ledger, gateway, dispatcher, cfg.Currency, zapLogger)
	webhookService := services.NewWebhookReconciler(store, gateway, deduper, dispatcher, zapLogger)

	if err := controllers.RegisterValidators(); err != nil {
		zapLogger.Fatal("Failed to register validators", zap.Error(err))
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, 5*time.Minute)
	go limiter.RunSweeper(ctx)

	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(zapLogger),
		middleware.Metrics(metricsClient, serviceName),
		cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
			ExposeHeaders:    []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		middleware.SecurityHeaders(),
		middleware.Timeout(30*time.Second),
	)

	routes.RegisterRoutes(r, routes.Controllers{
		Cart:    controllers.NewCartController(cartService, zapLogger),
		Order:   controllers.NewOrderController(orderService, zapLogger),
		Webhook: controllers.NewWebhookController(webhookService, zapLogger),
	}, cfg.JWTSecret, limiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	zapLogger.Info("Shop service started", zap.String("port", cfg.Port))
	<-quit
	zapLogger.Info("Shutting down shop service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	stop()
	dispatcher.Stop()
	zapLogger.Info("Server exited cleanly")
}
