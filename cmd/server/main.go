package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	experimentapp "github.com/marketplace/backend/internal/application/experiment"
	"github.com/marketplace/backend/internal/infrastructure/cache"
	"github.com/marketplace/backend/internal/infrastructure/config"
	"github.com/marketplace/backend/internal/infrastructure/event"
	"github.com/marketplace/backend/internal/infrastructure/logger"
	"github.com/marketplace/backend/internal/infrastructure/persistence"
	"github.com/marketplace/backend/internal/interfaces/http/handler"
	"github.com/marketplace/backend/internal/interfaces/http/middleware"
	"github.com/marketplace/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

// @title           Marketplace Experiments API
// @version         1.0
// @description     Experimentation engine for the marketplace: experiment registry, variant assignment, result tracking and statistical analysis.
// @BasePath        /api/v1
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting marketplace experiments server",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database with a GORM logger bridged to zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	// Run schema migrations
	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	log.Info("Database migrations completed")

	// Initialize repositories
	experimentRepo := persistence.NewGormExperimentRepository(db.DB)
	assignmentRepo := persistence.NewGormAssignmentRepository(db.DB)
	resultRepo := persistence.NewGormResultRepository(db.DB)

	// Initialize event bus and register handlers
	eventBus := event.NewInMemoryEventBus(log)
	lifecycleHandler := experimentapp.NewLifecycleAuditHandler(log)
	eventBus.Subscribe(lifecycleHandler)
	log.Info("Event handlers registered",
		zap.Strings("lifecycle_events", lifecycleHandler.EventTypes()),
	)

	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Running experiment cache shared by assignment and registry services
	runningCache := cache.NewInMemoryRunningExperimentCache(cache.WithCacheLogger(log))
	defer func() {
		if err := runningCache.Close(); err != nil {
			log.Error("Error closing running experiment cache", zap.Error(err))
		}
	}()

	// Initialize application services
	trackingService := experimentapp.NewTrackingService(assignmentRepo, resultRepo, log)
	assignmentService := experimentapp.NewAssignmentService(
		experimentRepo,
		assignmentRepo,
		runningCache,
		trackingService,
		cfg.Experiment.RunningCacheTTL,
		log,
	)
	registryService := experimentapp.NewRegistryService(
		experimentRepo,
		assignmentRepo,
		resultRepo,
		runningCache,
		eventBus,
		log,
	)
	analysisService := experimentapp.NewAnalysisService(
		experimentRepo,
		resultRepo,
		cfg.Experiment.ExactSampleSize,
		log,
	)

	// Initialize HTTP handlers
	experimentHandler := handler.NewExperimentHandler(registryService)
	trackingHandler := handler.NewTrackingHandler(assignmentService, trackingService)
	analysisHandler := handler.NewAnalysisHandler(analysisService)
	systemHandler := handler.NewSystemHandler(db)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	// 6. BodyLimit - Limit request body size
	// 7. SubjectIdentity - Extract subject identity headers
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.SubjectIdentity())

	// Health check endpoint (outside API versioning)
	engine.GET("/health", systemHandler.Health)

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Experiment registry and analysis
	experimentRoutes := router.NewDomainGroup("experiments", "/experiments")
	experimentRoutes.POST("", experimentHandler.CreateExperiment)
	experimentRoutes.GET("", experimentHandler.ListExperiments)
	experimentRoutes.GET("/active", trackingHandler.GetActiveExperiments)
	experimentRoutes.GET("/configuration", trackingHandler.GetVariantConfiguration)
	experimentRoutes.GET("/:id", experimentHandler.GetExperiment)
	experimentRoutes.PUT("/:id", experimentHandler.UpdateExperiment)
	experimentRoutes.DELETE("/:id", experimentHandler.DeleteExperiment)
	experimentRoutes.POST("/:id/start", experimentHandler.StartExperiment)
	experimentRoutes.POST("/:id/pause", experimentHandler.PauseExperiment)
	experimentRoutes.POST("/:id/complete", experimentHandler.CompleteExperiment)
	experimentRoutes.POST("/:id/archive", experimentHandler.ArchiveExperiment)
	experimentRoutes.POST("/:id/winner", experimentHandler.DeclareWinner)
	experimentRoutes.GET("/:id/results", experimentHandler.GetExperimentResults)
	experimentRoutes.GET("/:id/significance", analysisHandler.GetSignificance)
	experimentRoutes.GET("/:id/completion-estimate", analysisHandler.EstimateCompletion)
	experimentRoutes.GET("/:id/metrics", analysisHandler.GetMetricsOverTime)
	r.Register(experimentRoutes)

	// Subject assignment and result tracking
	assignmentRoutes := router.NewDomainGroup("assignments", "/assignments")
	assignmentRoutes.POST("", trackingHandler.Assign)
	assignmentRoutes.GET("", trackingHandler.ListSubjectAssignments)
	assignmentRoutes.POST("/:id/impression", trackingHandler.TrackImpression)
	assignmentRoutes.POST("/:id/interaction", trackingHandler.TrackInteraction)
	assignmentRoutes.POST("/:id/conversion", trackingHandler.TrackConversion)
	assignmentRoutes.POST("/:id/events", trackingHandler.TrackCustomEvent)
	r.Register(assignmentRoutes)

	// Planning endpoints that are not bound to a single experiment
	analysisRoutes := router.NewDomainGroup("analysis", "/analysis")
	analysisRoutes.POST("/sample-size", analysisHandler.CalculateSampleSize)
	r.Register(analysisRoutes)

	// System routes
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)
	systemRoutes.GET("/health", systemHandler.Health)
	r.Register(systemRoutes)

	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
