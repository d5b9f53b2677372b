package main

import (
	"context"
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

	_ "github.com/civicdesk/urbanism-api/api/swagger"
	"github.com/civicdesk/urbanism-api/internal/handler"
	"github.com/civicdesk/urbanism-api/internal/middleware"
	"github.com/civicdesk/urbanism-api/internal/models"
	"github.com/civicdesk/urbanism-api/internal/repository"
	"github.com/civicdesk/urbanism-api/internal/service"
	"github.com/civicdesk/urbanism-api/pkg/cache"
	"github.com/civicdesk/urbanism-api/pkg/config"
	"github.com/civicdesk/urbanism-api/pkg/database"
	"github.com/civicdesk/urbanism-api/pkg/logger"
	corsmiddleware "github.com/civicdesk/urbanism-api/pkg/middleware/cors"
	reqidmiddleware "github.com/civicdesk/urbanism-api/pkg/middleware/requestid"
	"github.com/civicdesk/urbanism-api/pkg/storage"
)

// @title CivicDesk Urbanism API
// @version 1.0.0
// @description Citizen services portal for urbanism permit requests
// @BasePath /api/v1
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

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer rdb.Close() //nolint:errcheck

	exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	exportSigner := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	assistantRepo := repository.NewAssistantRepository(db)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "urbanism-api",
	})
	userSvc := service.NewUserService(userRepo, auditRepo, validate, logr)
	requestSvc := service.NewRequestService(requestRepo, auditRepo, validate, logr)
	auditSvc := service.NewAuditService(auditRepo, logr)
	prioritySvc := service.NewPriorityService(requestRepo, time.Now, logr)
	assignmentSvc := service.NewAssignmentService(requestRepo, userRepo, auditRepo, metricsSvc, logr)
	dashboardSvc := service.NewDashboardService(requestRepo, rdb, cfg.Dashboard.CacheTTL, logr)
	exportSvc := service.NewExportService(prioritySvc, exportStorage, exportSigner, auditRepo, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr)
	assistantSvc := service.NewAssistantService(assistantRepo, nil, service.AssistantConfig{
		BaseURL: cfg.Assistant.BaseURL,
		APIKey:  cfg.Assistant.APIKey,
		Model:   cfg.Assistant.Model,
		Timeout: cfg.Assistant.Timeout,
	}, logr)
	schedulerSvc := service.NewSchedulerService(assignmentSvc, dashboardSvc, metricsSvc, service.SchedulerConfig{
		Interval: cfg.Scheduler.Interval,
		Workers:  cfg.Scheduler.Workers,
	}, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	requestHandler := handler.NewRequestHandler(requestSvc)
	queueHandler := handler.NewQueueHandler(prioritySvc, assignmentSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	assistantHandler := handler.NewAssistantHandler(assistantSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db.DB)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	// The signed token carries the authorization for export downloads.
	api.GET("/queue/export/:token",
		middleware.Audit(auditRepo, models.AuditActionQueueExport, "export_download"),
		exportHandler.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.POST("/auth/logout", authHandler.Logout)
		authed.POST("/auth/change-password", authHandler.ChangePassword)
		authed.GET("/auth/me", authHandler.Me)

		authed.GET("/requests", requestHandler.List)
		authed.GET("/requests/:id", requestHandler.Get)
		authed.POST("/requests", middleware.RequireRoles(models.RoleCitizen), requestHandler.Create)
		authed.PUT("/requests/:id", middleware.RequireRoles(models.RoleCitizen), requestHandler.Update)
		authed.POST("/requests/:id/submit", middleware.RequireRoles(models.RoleCitizen), requestHandler.Submit)
		authed.POST("/requests/:id/review", middleware.RequireRoles(models.RoleClerk), requestHandler.StartReview)
		authed.POST("/requests/:id/decision", middleware.RequireRoles(models.RoleClerk), requestHandler.Decide)

		staff := authed.Group("")
		staff.Use(middleware.RequireRoles(models.RoleClerk, models.RoleAdmin))
		{
			staff.GET("/queue", queueHandler.List)
			staff.POST("/queue/export", exportHandler.Generate)
			staff.GET("/dashboard/stats", dashboardHandler.Stats)
		}
		authed.POST("/queue/:id/claim", middleware.RequireRoles(models.RoleClerk), queueHandler.Claim)
		authed.POST("/queue/auto-assign", middleware.RequireRoles(models.RoleAdmin), queueHandler.AutoAssign)

		admin := authed.Group("")
		admin.Use(middleware.RequireRoles(models.RoleAdmin))
		{
			admin.GET("/users", userHandler.List)
			admin.GET("/users/:id", userHandler.Get)
			admin.POST("/users", userHandler.Create)
			admin.DELETE("/users/:id", userHandler.Deactivate)
			admin.GET("/audit", auditHandler.List)
		}

		if cfg.Assistant.Enabled {
			authed.POST("/assistant/chat", assistantHandler.Chat)
			authed.GET("/assistant/conversations/:id", assistantHandler.History)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Scheduler.Enabled {
		schedulerSvc.Start(ctx)
		defer schedulerSvc.Stop()
	}

	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		ticker := time.NewTicker(cfg.Exports.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				exportSvc.Cleanup()
			}
		}
	}()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	<-cleanupDone
}
