package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/clearance-api/api/swagger"
	"github.com/noah-isme/clearance-api/internal/handler"
	"github.com/noah-isme/clearance-api/internal/middleware"
	"github.com/noah-isme/clearance-api/internal/repository"
	"github.com/noah-isme/clearance-api/internal/service"
	"github.com/noah-isme/clearance-api/pkg/cache"
	"github.com/noah-isme/clearance-api/pkg/config"
	"github.com/noah-isme/clearance-api/pkg/database"
	"github.com/noah-isme/clearance-api/pkg/events"
	"github.com/noah-isme/clearance-api/pkg/export"
	"github.com/noah-isme/clearance-api/pkg/gemini"
	"github.com/noah-isme/clearance-api/pkg/imaging"
	"github.com/noah-isme/clearance-api/pkg/jobs"
	"github.com/noah-isme/clearance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/clearance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/clearance-api/pkg/middleware/requestid"
	"github.com/noah-isme/clearance-api/pkg/storage"
)

// @title Campus Clearance API
// @version 1.0.0
// @description Clearance requests, office signatories, receipt checks and registrar document fulfillment
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, receipt cache disabled", zap.Error(err))
	}

	metrics := service.NewMetricsService()

	accounts := repository.NewAccountRepository(db)
	clearances := repository.NewClearanceRepository(db)
	documents := repository.NewDocumentRepository(db)
	notificationsRepo := repository.NewNotificationRepository(db)
	transfers := repository.NewTransferRepository(db)

	var receiptCache *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer redisClient.Close() //nolint:errcheck
		receiptCache = service.NewCacheService(cacheRepo, metrics, cfg.Receipt.CacheTTL, logr, true)
	}

	var publisher interface {
		Publish(ctx context.Context, key, value []byte) error
	}
	if cfg.Kafka.Enabled {
		producer, err := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.NotificationTopic)
		if err != nil {
			return fmt.Errorf("init kafka producer: %w", err)
		}
		defer producer.Close() //nolint:errcheck
		publisher = producer
	}

	notifications := service.NewNotificationService(notificationsRepo, publisher, metrics, logr)
	queue := jobs.NewQueue("notifications", notifications.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notifications.UseQueue(queue)
	queue.Start(ctx)
	defer queue.Stop(10 * time.Second)

	var uploader *storage.CloudinaryStore
	if cfg.Cloudinary.URL != "" {
		uploader, err = storage.NewCloudinaryStore(cfg.Cloudinary.URL, cfg.Cloudinary.Folder)
		if err != nil {
			logr.Warn("cloudinary unavailable, receipts stored inline", zap.Error(err))
		}
	}
	var receiptStore *service.ReceiptStore
	if uploader != nil {
		receiptStore = service.NewReceiptStore(uploader, logr)
	} else {
		receiptStore = service.NewReceiptStore(nil, logr)
	}

	model := gemini.NewClient(gemini.Config{
		APIKey:            cfg.Gemini.APIKey,
		BaseURL:           cfg.Gemini.BaseURL,
		Model:             cfg.Gemini.Model,
		Timeout:           cfg.Gemini.Timeout,
		MaxRetries:        cfg.Gemini.MaxRetries,
		ConnectRetryDelay: cfg.Gemini.ConnectRetryDelay,
		OverloadDelay:     cfg.Gemini.OverloadDelay,
	})
	extractor := service.NewReceiptExtractor(model, service.ReceiptExtractorOptions{
		Prober:   gemini.Prober{Host: cfg.Gemini.HealthHost, Timeout: cfg.Gemini.HealthTimeout},
		Cache:    receiptCache,
		Metrics:  metrics,
		Logger:   logr,
		CacheTTL: cfg.Receipt.CacheTTL,
		Disabled: !cfg.Receipt.ExtractionEnabled || cfg.Gemini.APIKey == "",
	})
	guard := service.NewImageGuard(cfg.Receipt.MaxFileSizeBytes, imaging.Options{
		MaxWidth:  cfg.Receipt.MaxWidth,
		MaxHeight: cfg.Receipt.MaxHeight,
		Quality:   cfg.Receipt.JPEGQuality,
	})

	transferSvc := service.NewTransferService(transfers, clearances, metrics, logr)
	signatorySvc := service.NewSignatoryService(clearances, accounts, transferSvc, notifications, metrics, logr)
	clearanceSvc := service.NewClearanceService(clearances, accounts, service.ClearanceServiceOptions{
		Guard:                 guard,
		Receipts:              receiptStore,
		Extractor:             extractor,
		Duplicates:            service.NewDuplicateDetector(clearances, cfg.Duplicate.Window, cfg.Duplicate.Limit),
		ExpectedAmount:        cfg.Receipt.ExpectedAmount,
		RequireReferenceMatch: cfg.Receipt.RequireReferenceMatch,
		Logger:                logr,
	})
	registrarSvc := service.NewRegistrarService(clearances, documents, signatorySvc, transferSvc, notifications, logr)

	files, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		return fmt.Errorf("init document storage: %w", err)
	}
	documentSvc := service.NewDocumentService(
		documents,
		clearances,
		accounts,
		files,
		storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL),
		export.NewClaimSlipRenderer(""),
		notifications,
		service.DocumentServiceOptions{
			MaxFileSize:  cfg.Documents.MaxFileSize,
			DownloadPath: cfg.APIPrefix + "/documents/files",
			Metrics:      metrics,
			Logger:       logr,
		},
	)

	var invalidator interface {
		Invalidate(ctx context.Context, pattern string) (int, error)
	}
	if receiptCache != nil {
		invalidator = receiptCache
	}
	maintenanceSvc := service.NewMaintenanceService(clearances, documents, transferSvc, invalidator, logr)

	authSvc := service.NewAuthService(accounts, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = 32 << 20
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/ready", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.Routes{
		Tokens:        authSvc,
		AuditLog:      accounts,
		Logger:        logr,
		Auth:          handler.NewAuthHandler(authSvc),
		Clearances:    handler.NewClearanceHandler(clearanceSvc, signatorySvc),
		Signatories:   handler.NewSignatoryHandler(signatorySvc),
		Registrar:     handler.NewRegistrarHandler(registrarSvc),
		Documents:     handler.NewDocumentHandler(documentSvc),
		Receipts:      handler.NewReceiptHandler(service.NewReceiptService(guard, extractor, cfg.Receipt.ExpectedAmount)),
		Maintenance:   handler.NewMaintenanceHandler(maintenanceSvc),
		Notifications: handler.NewNotificationHandler(notifications),
		Metrics:       handler.NewMetricsHandler(metrics),
	}.Register(r.Group(cfg.APIPrefix))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
