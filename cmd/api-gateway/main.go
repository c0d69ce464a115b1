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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/internhub/internhub-api/api/swagger"
	"github.com/internhub/internhub-api/internal/handler"
	"github.com/internhub/internhub-api/internal/middleware"
	"github.com/internhub/internhub-api/internal/models"
	"github.com/internhub/internhub-api/internal/repository"
	"github.com/internhub/internhub-api/internal/service"
	"github.com/internhub/internhub-api/pkg/cache"
	"github.com/internhub/internhub-api/pkg/config"
	"github.com/internhub/internhub-api/pkg/database"
	"github.com/internhub/internhub-api/pkg/logger"
	corsmiddleware "github.com/internhub/internhub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/internhub/internhub-api/pkg/middleware/requestid"
	"github.com/internhub/internhub-api/pkg/storage"
)

// @title InternHub API
// @version 1.0.0
// @description Application lifecycle and document submission API for internship and NYSC programs
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// catalog caching degrades to direct reads
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	}

	fileStorage, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare document storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	programRepo := repository.NewProgramRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr).WithMetrics(metricsSvc)
	defer cacheRepo.Close() //nolint:errcheck

	notifier := service.NewNotificationService(logr, service.NotificationServiceConfig{Workers: 2})
	notifier.Start(context.Background())
	defer notifier.Stop()

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		ResetTokenExpiry:   cfg.PasswordReset.TokenTTL,
		Issuer:             "internhub-api",
	}).WithNotifier(notifier)
	userSvc := service.NewUserService(userRepo, nil, logr)
	programSvc := service.NewProgramService(programRepo, cacheRepo, userRepo, nil, logr, service.ProgramServiceConfig{
		CacheTTL: cfg.Catalog.CacheTTL,
	})
	applicationSvc := service.NewApplicationService(applicationRepo, programRepo, userRepo, nil, logr, service.ApplicationServiceConfig{
		AllowReopen: cfg.Review.AllowReopen,
	}).WithMetrics(metricsSvc).WithNotifier(notifier)
	documentSvc := service.NewDocumentService(documentRepo, applicationRepo, fileStorage, signer, cacheRepo, userRepo, logr, service.DocumentServiceConfig{
		CatalogCacheTTL: cfg.Catalog.CacheTTL,
	}).WithMetrics(metricsSvc)
	exportSvc := service.NewExportService(applicationRepo, nil, nil, logr)

	authHandler := handler.NewAuthHandler(authSvc, userSvc)
	userHandler := handler.NewUserHandler(userSvc)
	programHandler := handler.NewProgramHandler(programSvc)
	applicationHandler := handler.NewApplicationHandler(applicationSvc, exportSvc)
	documentHandler := handler.NewDocumentHandler(documentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

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

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)

		session := auth.Group("", middleware.JWT(authSvc))
		session.POST("/logout", authHandler.Logout)
		session.POST("/change-password", authHandler.ChangePassword)
	}

	programs := api.Group("/programs")
	{
		programs.GET("", middleware.OptionalJWT(authSvc), middleware.WithResponseMeta(), programHandler.List)
		programs.GET("/:id", programHandler.Get)

		manage := programs.Group("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
		manage.POST("", programHandler.Create)
		manage.PUT("/:id", programHandler.Update)
		manage.DELETE("/:id", programHandler.Delete)
	}

	api.GET("/documents/types", documentHandler.ListTypes)

	authed := api.Group("", middleware.JWT(authSvc))
	{
		authed.GET("/users/me", userHandler.Me)
		authed.PUT("/users/me", userHandler.UpdateMe)
		authed.GET("/users/:id", middleware.RBAC("ADMIN", "SELF"), userHandler.Get)
		authed.GET("/users", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
		authed.DELETE("/users/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Deactivate)

		authed.POST("/applications", applicationHandler.Create)
		authed.GET("/applications", applicationHandler.List)
		authed.GET("/applications/mine", applicationHandler.Mine)
		authed.GET("/applications/:id", applicationHandler.Get)
		authed.PUT("/applications/:id", applicationHandler.Update)
		authed.POST("/applications/:id/documents", documentHandler.Upload)

		review := authed.Group("", middleware.RequireRoles(models.RoleAdmin))
		review.PATCH("/applications/:id/review", applicationHandler.Review)
		review.POST("/applications/:id/approve", applicationHandler.Approve)
		review.POST("/applications/:id/reject", applicationHandler.Reject)
		review.DELETE("/applications/:id", applicationHandler.Delete)
		review.GET("/applications/export", middleware.Audit(userRepo, "APPLICATION_EXPORT", "applications"), applicationHandler.ExportRegister)
		review.GET("/metrics/snapshot", metricsHandler.Snapshot)

		authed.POST("/documents", documentHandler.Upload)
		authed.GET("/documents", documentHandler.List)
		authed.GET("/documents/:id", documentHandler.Get)
		authed.DELETE("/documents/:id", documentHandler.Delete)
		authed.GET("/documents/:id/download-url", documentHandler.DownloadURL)
		authed.GET("/documents/:id/download", documentHandler.Download)

		verify := authed.Group("", middleware.RequireRoles(models.RoleAdmin))
		verify.POST("/documents/:id/verify", documentHandler.Verify)
		verify.POST("/documents/:id/unverify", documentHandler.Unverify)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("forced shutdown", "error", err)
	}
}
