package internal

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tok-ingest/pkg/cache"
	"tok-ingest/pkg/config"
	"tok-ingest/pkg/database"
	"tok-ingest/pkg/logger"
	"tok-ingest/pkg/middleware"
	"tok-ingest/pkg/queue"
	"tok-ingest/pkg/s3"
	ingestHTTP "tok-ingest/services/ingest/internal/controller/http"
	"tok-ingest/services/ingest/internal/entity"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	_ "tok-ingest/services/ingest/docs" // Swagger docs
)

func Run(cfg *config.Config, log *logger.Logger, db *gorm.DB, s3Client *s3.Client, queueClient *queue.Client, redisClient *redis.Client) {
	queryCache := cache.NewQueryCache(redisClient, log)
	useCases := NewUseCases(cfg, log, db, s3Client, queryCache, queueClient)

	var jobs ingestHTTP.JobPublisher
	if queueClient != nil {
		jobs = queueClient
	}
	ingestHandler := ingestHTTP.NewIngestHandler(useCases.Sync, useCases.Assets, jobs, queryCache, log)

	// Setup router
	r := gin.Default()

	// CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * 3600,
	}))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(redisClient, 60, time.Minute))
	ingestHTTP.RegisterRoutes(api, ingestHandler)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if queueClient != nil {
		err := queueClient.ConsumeSyncJobs(workerCtx, func(ctx context.Context, job *queue.SyncJob) error {
			_, err := useCases.Sync.SyncProfile(ctx, job.Handle, entity.SyncOptions{
				ForceRecache: job.ForceRecache,
				MaxPages:     job.MaxPages,
			})
			return err
		})
		if err != nil {
			log.Error("Failed to start sync job consumer: %v", err)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Ingest service starting on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Failed to start server: %v", err)
			panic(err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down ingest service...")
	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown server
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}

	// Close RabbitMQ connection
	if queueClient != nil {
		queueClient.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing Redis: %v", err)
		}
	}

	// Close database connection
	if err := database.Close(db); err != nil {
		log.Error("Error closing database: %v", err)
	}

	log.Info("Ingest service exited")
}
