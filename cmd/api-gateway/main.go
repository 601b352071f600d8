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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/equiloan-api/api/swagger"
	"github.com/noah-isme/equiloan-api/internal/handler"
	"github.com/noah-isme/equiloan-api/internal/middleware"
	"github.com/noah-isme/equiloan-api/internal/models"
	"github.com/noah-isme/equiloan-api/internal/notify"
	"github.com/noah-isme/equiloan-api/internal/repository"
	"github.com/noah-isme/equiloan-api/internal/service"
	"github.com/noah-isme/equiloan-api/internal/sweeper"
	"github.com/noah-isme/equiloan-api/pkg/cache"
	"github.com/noah-isme/equiloan-api/pkg/config"
	"github.com/noah-isme/equiloan-api/pkg/database"
	"github.com/noah-isme/equiloan-api/pkg/jobs"
	"github.com/noah-isme/equiloan-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/equiloan-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/equiloan-api/pkg/middleware/requestid"
	"github.com/noah-isme/equiloan-api/pkg/storage"
)

// @title Equipment Loan API
// @version 1.0.0
// @description Borrow-request lifecycle and cross-building allocation service
// @BasePath /
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, aggregation cache disabled", "error", err)
		redisClient = nil
	}

	metrics := service.NewMetricsService()

	// Repositories.
	requestRepo := repository.NewRequestRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	responseRepo := repository.NewResponseRepository(db)
	allocationRepo := repository.NewAllocationRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()

	// Outbound notification fan-out.
	channels := make([]notify.Channel, 0, 2)
	if cfg.Notifications.EmailEnabled {
		channels = append(channels, notify.NewEmailChannel(
			cfg.Notifications.SendgridAPIKey, cfg.Notifications.SenderEmail, cfg.Notifications.SenderName))
	}
	if cfg.Notifications.LineEnabled {
		channels = append(channels, notify.NewLineChannel(
			cfg.Notifications.LineChannelToken, cfg.Notifications.LinePushEndpoint))
	}
	dispatcher := notify.NewDispatcher(notify.Config{
		FormBaseURL: cfg.Notifications.FormBaseURL,
		SlipBaseURL: cfg.Notifications.SlipBaseURL,
	}, channels, metrics, logr, jobs.QueueConfig{
		Workers:    cfg.Notifications.WorkerConcurrency,
		MaxRetries: cfg.Notifications.WorkerRetries,
	})
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	dispatcher.Start(rootCtx)
	defer dispatcher.Stop()

	// Slip storage and signing.
	slipStore, err := storage.NewLocalStorage(cfg.Slips.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare slip storage", "error", err)
	}
	slipSigner := storage.NewSignedURLSigner(cfg.Slips.SignedURLSecret, cfg.Slips.SignedURLTTL)

	// Services.
	cacheService := service.NewCacheService(cacheRepo, metrics, cfg.Aggregation.CacheTTL, logr, redisClient != nil)
	authService := service.NewAuthService(userRepo, logr, service.AuthConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
	})
	tokenService := service.NewTokenService(tokenRepo, cfg.Workflow.ResponseFormValidity(), logr)
	aggregationService := service.NewAggregationService(
		requestRepo, tokenRepo, responseRepo, catalogRepo, cacheService, cfg.Aggregation.CacheTTL, metrics, logr)
	requestService := service.NewRequestService(service.RequestServiceParams{
		Requests:    requestRepo,
		Tokens:      tokenService,
		Catalog:     catalogRepo,
		Users:       userRepo,
		Responses:   responseRepo,
		Allocations: allocationRepo,
		Projector:   aggregationService,
		Notifier:    dispatcher,
		Audit:       auditRepo,
		Validate:    validate,
		Logger:      logr,
		Config: service.RequestWorkflowConfig{
			RequestExpiry: cfg.Workflow.RequestExpiry(),
			MaxItems:      cfg.Workflow.MaxItemsPerRequest,
		},
	})
	slipService := service.NewSlipService(requestRepo, allocationRepo, userRepo, slipStore, slipSigner, dispatcher, logr)
	allocationService := service.NewAllocationService(
		requestRepo, allocationRepo, aggregationService, slipService, auditRepo, validate, logr)
	responseFormService := service.NewResponseFormService(service.ResponseFormServiceParams{
		Tokens:    tokenService,
		Requests:  requestRepo,
		Catalog:   catalogRepo,
		Responses: responseRepo,
		Projector: aggregationService,
		Lifecycle: requestService,
		Users:     userRepo,
		Notifier:  dispatcher,
		Audit:     auditRepo,
		Validate:  validate,
		Logger:    logr,
	})
	catalogService := service.NewCatalogService(catalogRepo)

	// Background expiry sweep.
	if cfg.Sweeper.Enabled {
		sweep := sweeper.New(requestRepo, requestService, metrics, cfg.Sweeper.Interval, logr)
		if err := sweep.Start(); err != nil {
			logr.Sugar().Fatalw("failed to start expiry sweeper", "error", err)
		}
		defer sweep.Stop()
	}

	// Handlers.
	requestHandler := handler.NewRequestHandler(requestService, allocationService)
	responseFormHandler := handler.NewResponseFormHandler(responseFormService)
	catalogHandler := handler.NewCatalogHandler(catalogService)
	slipHandler := handler.NewSlipHandler(slipService)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staff := middleware.RequireRoles(models.RoleAcademicStaff, models.RoleSystemAdmin)

	api := r.Group(cfg.APIPrefix)
	{
		// No-login surfaces: the token in the URL is the credential.
		api.GET("/response-forms/:secret", responseFormHandler.Fetch)
		api.POST("/response-forms/:secret", responseFormHandler.Submit)
		api.GET("/slips/:token", slipHandler.Download)

		authed := api.Group("")
		authed.Use(middleware.JWT(authService))
		{
			authed.GET("/buildings", catalogHandler.Buildings)
			authed.GET("/equipment", catalogHandler.Equipment)

			authed.POST("/requests", requestHandler.Create)
			authed.GET("/requests", requestHandler.List)
			authed.GET("/requests/export", staff, requestHandler.Export)
			authed.GET("/requests/:id", requestHandler.Get)
			authed.POST("/requests/:id/approve", staff, requestHandler.Approve)
			authed.POST("/requests/:id/reject", staff, requestHandler.Reject)
			authed.POST("/requests/:id/close", requestHandler.Close)
			authed.POST("/requests/:id/allocations", staff, requestHandler.Finalize)
			authed.GET("/requests/:id/responses", staff, requestHandler.Responses)
			authed.GET("/requests/:id/slip", slipHandler.Stream)
			authed.POST("/requests/:id/resend-email", staff,
				middleware.Audit(auditRepo, models.AuditActionResendEmail, "request"), slipHandler.Resend)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
