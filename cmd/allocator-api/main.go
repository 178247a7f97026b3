package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/AnjithKrishna7/exam-seat-allocator/internal/handler"
	"github.com/AnjithKrishna7/exam-seat-allocator/internal/middleware"
	"github.com/AnjithKrishna7/exam-seat-allocator/internal/repository"
	"github.com/AnjithKrishna7/exam-seat-allocator/internal/service"
	"github.com/AnjithKrishna7/exam-seat-allocator/pkg/cache"
	"github.com/AnjithKrishna7/exam-seat-allocator/pkg/config"
	"github.com/AnjithKrishna7/exam-seat-allocator/pkg/database"
	"github.com/AnjithKrishna7/exam-seat-allocator/pkg/logger"
	corsmiddleware "github.com/AnjithKrishna7/exam-seat-allocator/pkg/middleware/cors"
	reqidmiddleware "github.com/AnjithKrishna7/exam-seat-allocator/pkg/middleware/requestid"
	"github.com/AnjithKrishna7/exam-seat-allocator/pkg/storage"
)

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

	allocRepo := repository.NewAllocationRepository(db)

	var datasetCache *repository.CacheRepository
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		datasetCache = repository.NewCacheRepository(redisClient)
	}

	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	validate := validator.New()
	rosterSvc := service.NewRosterService(logr)
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(validate, logr, service.AuthConfig{
		AdminEmail:        cfg.Admin.Email,
		AdminPasswordHash: cfg.Admin.PasswordHash,
		Secret:            cfg.JWT.Secret,
		Expiration:        cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	var allocSvc *service.AllocationService
	allocCfg := service.AllocationConfig{
		FillBuffer: cfg.Allocator.FillBuffer,
		RunTTL:     cfg.Allocator.RunTTL,
		DatasetTTL: cfg.Allocator.DatasetTTL,
	}
	if datasetCache != nil {
		allocSvc = service.NewAllocationService(allocRepo, db, datasetCache, logr, allocCfg)
	} else {
		allocSvc = service.NewAllocationService(allocRepo, db, nil, logr, allocCfg)
	}

	exportSvc := service.NewExportService(allocSvc, store, signer, service.ExportConfig{
		APIPrefix:   cfg.APIPrefix,
		GridColumns: cfg.Allocator.GridColumns,
	}, logr)

	allocationHandler := handler.NewAllocationHandler(rosterSvc, allocSvc, exportSvc, metricsSvc, validate, logr)
	authHandler := handler.NewAuthHandler(authSvc)
	exportHandler := handler.NewExportHandler(store, signer, logr)

	go cleanupExports(store, cfg.Exports, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = cfg.Allocator.MaxUploadMB << 20
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/exports/download", exportHandler.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	protected.POST("/allocations/generate", allocationHandler.Generate)
	protected.GET("/allocations", allocationHandler.List)
	protected.POST("/allocations/:id/save", allocationHandler.Save)
	protected.GET("/allocations/:id/assignments", allocationHandler.Assignments)
	protected.POST("/allocations/:id/export", allocationHandler.Export)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// cleanupExports drops rendered plans once their signed links can no
// longer be valid.
func cleanupExports(store *storage.LocalStorage, cfg config.ExportsConfig, logr *zap.Logger) {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		removed, err := store.CleanupOlderThan(cfg.SignedURLTTL)
		if err != nil {
			logr.Warn("export cleanup failed", zap.Error(err))
			continue
		}
		if len(removed) > 0 {
			logr.Info("expired exports removed", zap.Int("count", len(removed)))
		}
	}
}
