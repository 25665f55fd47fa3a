package main

import (
	"tok-ingest/pkg/cache"
	"tok-ingest/pkg/config"
	"tok-ingest/pkg/database"
	"tok-ingest/pkg/logger"
	"tok-ingest/pkg/queue"
	"tok-ingest/pkg/s3"
	ingestApp "tok-ingest/services/ingest/internal/app"

	"github.com/gin-gonic/gin"
)

// @title           Ingest Service API
// @version         1.0
// @description     Administrative API of the TikTok ingestion and media cache service

// @host      localhost:8080
// @BasePath  /api/v1

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New()

	if err := cfg.RequireScrapeAPIKey(); err != nil {
		log.Warn("Syncs will fail until the key is set: %v", err)
	}

	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Error("Failed to connect to database: %v", err)
		panic(err)
	}

	// Migrations are handled by goose - see cmd/migrate/main.go

	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		log.Error("Failed to connect to redis: %v", err)
		panic(err)
	}

	s3Client, err := s3.NewClient(cfg)
	if err != nil {
		log.Error("Failed to create S3 client: %v", err)
		panic(err)
	}

	// The service still serves syncs without RabbitMQ; async jobs and failure reports are disabled.
	queueClient, err := queue.NewRabbitMQClient(cfg, log)
	if err != nil {
		log.Warn("RabbitMQ unavailable, running without job queue: %v", err)
		queueClient = nil
	}

	ingestApp.Run(cfg, log, db, s3Client, queueClient, redisClient)
}
