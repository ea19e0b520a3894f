package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/tk0miya/roadside-station-maps/internal/cleanup"
	"github.com/tk0miya/roadside-station-maps/internal/config"
	"github.com/tk0miya/roadside-station-maps/internal/database"
	"github.com/tk0miya/roadside-station-maps/internal/handlers"
	"github.com/tk0miya/roadside-station-maps/internal/metrics"
	"github.com/tk0miya/roadside-station-maps/internal/ratelimit"
	"github.com/tk0miya/roadside-station-maps/internal/scheduler"
	"github.com/tk0miya/roadside-station-maps/internal/scraper"
	"github.com/tk0miya/roadside-station-maps/internal/search"
	"github.com/tk0miya/roadside-station-maps/internal/snapshot"
	"github.com/tk0miya/roadside-station-maps/internal/station"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded, using process environment")
	}

	// Load configuration
	configPath := getEnv("CONFIG_PATH", "config/config.yaml")
	appConfig, err := config.LoadConfig(configPath)
	if err != nil {
		log.Printf("Warning: Failed to load config from %s: %v. Using defaults.", configPath, err)
		appConfig = config.DefaultConfig()
	} else {
		log.Printf("Loaded configuration from %s", configPath)
	}
	applyEnvOverrides(appConfig)

	if appConfig.Timezone != "" {
		loc, err := time.LoadLocation(appConfig.Timezone)
		if err != nil {
			log.Printf("Warning: Unknown timezone %q: %v", appConfig.Timezone, err)
		} else {
			time.Local = loc
		}
	}
	if appConfig.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := database.Open(ctx, appConfig.Database)
	if err != nil {
		log.Fatalf("Failed to open %s storage: %v", appConfig.Database.Type, err)
	}
	defer handle.Close()
	log.Printf("Using %s style storage", handle.Type)

	catalog := station.NewCatalog()
	if fc, checksum, err := station.LoadGeoJSON(appConfig.Dataset.GeoJSONPath); err != nil {
		log.Printf("Warning: No station dataset loaded: %v", err)
	} else {
		catalog.Replace(fc, checksum)
		log.Printf("Loaded %d stations from %s", len(fc.Features), appConfig.Dataset.GeoJSONPath)
	}

	// Search is optional; without it searches scan the loaded dataset
	var (
		searcher handlers.Searcher
		indexer  scheduler.Indexer
	)
	if appConfig.Search.Enabled {
		searchClient := search.NewSearchClient(appConfig.Search.Meilisearch.Host, appConfig.Search.Meilisearch.APIKey)
		if err := searchClient.InitIndex(); err != nil {
			log.Printf("Warning: Failed to initialize search index: %v", err)
		} else {
			fc, _ := catalog.Current()
			if err := searchClient.IndexStations(fc); err != nil {
				log.Printf("Warning: Failed to index stations: %v", err)
			}
		}
		searcher = searchClient
		indexer = searchClient
	}

	// Snapshot history and delete logs (MySQL only)
	var (
		snapshotService *snapshot.Service
		recorder        scheduler.SnapshotRecorder
		deletions       cleanup.DeletionRecorder
		deleteLogs      handlers.DeleteLogReader
	)
	if handle.Gorm != nil {
		snapshotService = snapshot.NewService(handle.Gorm.DB())
		recorder = snapshotService
		deletions = handle.Gorm
		deleteLogs = handle.Gorm
		log.Println("Snapshot service initialized")
	}

	sc, err := scraper.NewFromConfig(appConfig)
	if err != nil {
		log.Fatalf("Failed to create scraper: %v", err)
	}
	appScheduler := scheduler.NewScheduler(appConfig, catalog, sc.Run, recorder, indexer)
	if err := appScheduler.Start(); err != nil {
		log.Printf("Warning: Failed to start scheduler: %v", err)
	}
	defer appScheduler.Stop()

	rateLimiter := ratelimit.NewRateLimiter(
		appConfig.RateLimit.RequestsPerMinute,
		appConfig.RateLimit.RequestsPerHour,
		appConfig.RateLimit.RequestsPerDay,
		appConfig.RateLimit.Enabled,
	)
	log.Printf("Rate limiter initialized: %d req/min, %d req/hour, %d req/day (enabled: %v)",
		appConfig.RateLimit.RequestsPerMinute,
		appConfig.RateLimit.RequestsPerHour,
		appConfig.RateLimit.RequestsPerDay,
		appConfig.RateLimit.Enabled,
	)
	go sweepRateLimiter(ctx, rateLimiter)

	styleHandler := handlers.NewStyleHandler(handle.Backend, catalog, appConfig)
	stationHandler := handlers.NewStationHandler(catalog, searcher)
	adminHandler := handlers.NewAdminHandler(
		catalog,
		appScheduler,
		snapshotService,
		cleanup.NewService(handle.Backend, deletions),
		deleteLogs,
		rateLimiter,
		appConfig.Cleanup.MaxDeletionCount,
	)

	// Setup Gin router
	var r *gin.Engine
	if appConfig.Logging.LogRequests {
		r = gin.Default()
	} else {
		r = gin.New()
		r.Use(gin.Recovery())
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:     appConfig.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "If-None-Match"},
		ExposeHeaders:    []string{"ETag"},
		AllowCredentials: true,
	}))

	// Routes
	r.GET("/health", healthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/api/stations", stationHandler.GetStations)
	r.GET("/api/stations/search", stationHandler.SearchStations)

	limited := handlers.RateLimit(rateLimiter)
	r.POST("/api/profiles", limited, styleHandler.CreateProfile)
	r.GET("/api/styles", styleHandler.GetStyles)
	r.GET("/api/styles/:stationId", styleHandler.GetStyle)
	r.POST("/api/styles/:stationId/change", limited, styleHandler.ChangeStyle)
	r.DELETE("/api/styles/:stationId", limited, styleHandler.ResetStyle)
	r.GET("/api/counts", styleHandler.GetCounts)
	r.GET("/api/share", styleHandler.GetShareLink)

	// Admin API routes (requires authentication in production)
	admin := r.Group("/api/admin")
	{
		admin.GET("/stats", adminHandler.GetStats)
		admin.GET("/ratelimit/stats", adminHandler.GetRateLimitStats)

		// Dataset refresh
		admin.POST("/refresh", adminHandler.TriggerRefresh)
		admin.GET("/refresh/status", adminHandler.GetRefreshStatus)

		// Cleanup operations
		admin.POST("/cleanup", adminHandler.RunCleanup)
		admin.GET("/cleanup/logs", adminHandler.GetDeleteLogs)

		// Dataset history
		admin.GET("/snapshots", adminHandler.GetSnapshots)
		admin.GET("/snapshots/:id/changes", adminHandler.GetSnapshotChanges)
		admin.GET("/stations/:stationId/history", adminHandler.GetStationHistory)
	}
	log.Println("Admin API routes registered at /api/admin/*")

	srv := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", appConfig.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now(),
	})
}

func sweepRateLimiter(ctx context.Context, rl *ratelimit.RateLimiter) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Sweep(); n > 0 {
				log.Printf("Rate limiter: dropped %d idle clients", n)
			}
		}
	}
}

// applyEnvOverrides lets deployment environments override the config file
func applyEnvOverrides(cfg *config.Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Database.Type = getEnv("DB_TYPE", cfg.Database.Type)
	cfg.Database.SQLite.Path = getEnv("SQLITE_DATABASE", cfg.Database.SQLite.Path)

	switch cfg.Database.Type {
	case "mysql":
		m := &cfg.Database.MySQL
		m.Host = getEnvOrConfig(m.Host, "DB_HOST", "mysql")
		m.Port = getEnvIntOrConfig(m.Port, "DB_PORT", 3306)
		m.User = getEnvOrConfig(m.User, "DB_USER", "roadstation")
		m.Password = getEnvOrConfig(m.Password, "DB_PASSWORD", "")
		m.Database = getEnvOrConfig(m.Database, "DB_NAME", "roadstation")
	case "postgres":
		p := &cfg.Database.Postgres
		p.Host = getEnvOrConfig(p.Host, "DB_HOST", "db")
		p.Port = getEnvIntOrConfig(p.Port, "DB_PORT", 5432)
		p.User = getEnvOrConfig(p.User, "DB_USER", "roadstation")
		p.Password = getEnvOrConfig(p.Password, "DB_PASSWORD", "")
		p.Database = getEnvOrConfig(p.Database, "DB_NAME", "roadstation")
		p.SSLMode = getEnvOrConfig(p.SSLMode, "DB_SSLMODE", "disable")
	}

	cfg.Database.Redis.Addr = getEnv("REDIS_ADDR", cfg.Database.Redis.Addr)
	cfg.Database.Redis.Password = getEnvOrConfig(cfg.Database.Redis.Password, "REDIS_PASSWORD", "")

	if host := os.Getenv("MEILISEARCH_HOST"); host != "" {
		cfg.Search.Enabled = true
		cfg.Search.Meilisearch.Host = host
	}
	cfg.Search.Meilisearch.APIKey = getEnvOrConfig(cfg.Search.Meilisearch.APIKey, "MEILISEARCH_KEY", "")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrConfig returns config value if set, otherwise falls back to environment variable, then default
func getEnvOrConfig(configValue, envKey, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	return getEnv(envKey, defaultValue)
}

func getEnvIntOrConfig(configValue int, envKey string, defaultValue int) int {
	if configValue > 0 {
		return configValue
	}
	if v, err := strconv.Atoi(os.Getenv(envKey)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}
