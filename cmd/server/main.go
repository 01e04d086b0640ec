package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/scholarai/citecheck/internal/config"
	"github.com/scholarai/citecheck/internal/controllers"
	"github.com/scholarai/citecheck/internal/db"
	"github.com/scholarai/citecheck/internal/logger"
	"github.com/scholarai/citecheck/internal/metrics"
	"github.com/scholarai/citecheck/internal/middleware"
	"github.com/scholarai/citecheck/internal/routes"
	"github.com/scholarai/citecheck/internal/services"
	"github.com/scholarai/citecheck/internal/store"
)

func corsMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

func main() {
	logger.Initialize()

	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables", nil)
	}

	cfg := config.Load()

	database, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal("Database connection failed", map[string]interface{}{"error": err.Error()})
	}
	if err := db.AutoMigrate(database); err != nil {
		logger.Fatal("Database migration failed", map[string]interface{}{"error": err.Error()})
	}

	checkMetrics := metrics.NewCheckMetrics()
	checkStore := store.New(database)
	sourceProvider := store.NewSourceProvider(database)
	engine := services.NewHTTPAnalysisEngine(cfg.EngineURL)

	checkService := services.NewCheckService(checkStore, sourceProvider, engine, checkMetrics, services.CheckServiceConfig{
		WorkerCount:     cfg.WorkerCount,
		QueueSize:       cfg.QueueSize,
		FreshnessWindow: cfg.FreshnessWindow,
		AnalysisTimeout: cfg.AnalysisTimeout,
	})
	checkController := controllers.NewCheckController(checkService)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.RedirectTrailingSlash = false
	r.Use(middleware.RequestLogger())
	r.Use(corsMiddleware(cfg.CORSOrigin))
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		dbStatus := "ok"
		statusCode := http.StatusOK

		sqlDB, err := database.DB()
		if err != nil || sqlDB.Ping() != nil {
			dbStatus = "error"
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, gin.H{
			"status":    dbStatus,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"services": gin.H{
				"database": dbStatus,
			},
		})
	})
	r.GET("/metrics", gin.WrapH(checkMetrics.Handler()))

	routes.SetupRoutes(r, checkController, cfg.JWTSecret)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	logger.Info("Starting citecheck server", map[string]interface{}{
		"port":     cfg.Port,
		"gin_mode": gin.Mode(),
		"workers":  cfg.WorkerCount,
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", map[string]interface{}{"error": err.Error()})
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	logger.Info("Shutting down server gracefully...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", map[string]interface{}{"error": err.Error()})
	}

	checkService.Stop()
	logger.Info("Server exited", nil)
}
