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

	"github.com/georgescold/epsbot1/config"
	"github.com/georgescold/epsbot1/internal/analyzer"
	"github.com/georgescold/epsbot1/internal/handlers"
	"github.com/georgescold/epsbot1/internal/middleware"
	"github.com/georgescold/epsbot1/internal/repositories"
	"github.com/georgescold/epsbot1/internal/services"
	"github.com/georgescold/epsbot1/pkg/memorydb"
	"github.com/georgescold/epsbot1/pkg/postgres"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	envPaths := []string{
		"../../.env", // From cmd/api/ to repo root
		".env",       // Current directory
	}

	envLoaded := false
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			log.Printf("Loaded .env from: %s", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.LoadConfig()
	ctx := context.Background()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connection established successfully")

	// Initialize repositories and schema
	repos := repositories.NewRepositories(db)
	if err := repos.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// Initialize Redis (optional fingerprint cache)
	var redisClient *memorydb.RedisClient
	if cfg.RedisURL != "" {
		redisClient, err = memorydb.NewRedisClient(ctx, cfg)
		if err != nil {
			log.Printf("Failed to initialize Redis client: %v. Fingerprint cache disabled.", err)
			redisClient = nil
		} else {
			log.Println("Redis client initialized successfully")
			defer redisClient.Close()
		}
	} else {
		log.Println("REDIS_URL not set. Fingerprint cache disabled.")
	}

	// Initialize the AI analyzer
	an, err := analyzer.NewOpenAIAnalyzer(cfg.OpenAIModel, cfg.Workers.ChunkTokenBudget)
	if err != nil {
		log.Fatalf("Failed to initialize analyzer: %v", err)
	}

	// Initialize services (starts the analysis workers)
	svcs := services.NewServices(db, redisClient, repos, an, services.ServicesConfig{
		WorkerCount: cfg.Workers.Count,
		JobGrace:    time.Duration(cfg.Workers.JobGraceMinutes) * time.Minute,
		StoragePath: cfg.StoragePath,
	})
	defer svcs.Close()

	// Initialize handlers
	h := handlers.NewHandlers(svcs)

	router := setupRouter(cfg, h)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func setupRouter(cfg *config.Config, h *handlers.Handlers) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(middleware.ErrorMiddleware())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
	}))

	router.GET("/health", h.Health.Health())

	v1 := router.Group("/api/v1")
	{
		documents := v1.Group("/documents")
		{
			documents.POST("", h.Document.UploadDocument())
			documents.GET("", h.Document.GetDocuments())
			documents.POST("/refresh", h.Document.RefreshAnalysis())
			documents.GET("/:document_id", h.Document.GetDocument())
			documents.DELETE("/:document_id", h.Document.DeleteDocument())
			documents.POST("/:document_id/retry", h.Document.RetryDocument())
		}

		jobs := v1.Group("/jobs")
		{
			jobs.GET("", h.Jobs.GetActiveJobs())
			jobs.GET("/watch", h.Jobs.WatchJobs())
			jobs.GET("/:job_id", h.Jobs.GetJobStatus())
			jobs.POST("/:job_id/cancel", h.Jobs.CancelJob())
		}
	}

	return router
}
