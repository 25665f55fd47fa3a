// Command ingest runs one profile sync from the command line, without the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tok-ingest/pkg/cache"
	"tok-ingest/pkg/config"
	"tok-ingest/pkg/database"
	"tok-ingest/pkg/logger"
	"tok-ingest/pkg/s3"
	ingestApp "tok-ingest/services/ingest/internal/app"
	"tok-ingest/services/ingest/internal/entity"
)

func main() {
	var (
		handle   = flag.String("handle", "", "profile handle to sync")
		force    = flag.Bool("force-recache", false, "re-fetch media of posts that are already stored")
		maxPages = flag.Int("max-pages", 0, "stop after this many pages (0 = all)")
		noCache  = flag.Bool("no-cache", false, "bypass the Redis lookaside cache")
	)
	flag.Parse()

	if *handle == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest -handle <handle> [-force-recache] [-max-pages N] [-no-cache]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New()

	if err := cfg.RequireScrapeAPIKey(); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}

	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Error("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	defer database.Close(db)

	s3Client, err := s3.NewClient(cfg)
	if err != nil {
		log.Error("Failed to create S3 client: %v", err)
		os.Exit(1)
	}

	var queryCache *cache.QueryCache
	if !*noCache {
		redisClient, err := cache.NewRedisClient(cfg)
		if err != nil {
			log.Warn("Redis unavailable, fetching without lookaside cache: %v", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.NewQueryCache(redisClient, log)
		}
	}

	// Ctrl-C stops feeding pages; pages already stored stay stored.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	useCases := ingestApp.NewUseCases(cfg, log, db, s3Client, queryCache, nil)
	result, err := useCases.Sync.SyncProfile(ctx, *handle, entity.SyncOptions{ForceRecache: *force, MaxPages: *maxPages})

	if result != nil {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
	}
	if err != nil {
		log.Error("Sync failed (%s): %v", entity.KindOf(err), err)
		stop()
		database.Close(db)
		os.Exit(1)
	}
}
