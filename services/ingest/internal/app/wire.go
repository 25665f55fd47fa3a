package internal

import (
	"tok-ingest/pkg/cache"
	"tok-ingest/pkg/config"
	"tok-ingest/pkg/fetcher"
	"tok-ingest/pkg/logger"
	"tok-ingest/pkg/queue"
	"tok-ingest/pkg/scraper"
	"tok-ingest/services/ingest/internal/repo/persistent"
	"tok-ingest/services/ingest/internal/usecase"

	"gorm.io/gorm"
)

// UseCases is the ingestion core wired against its stores.
type UseCases struct {
	IngestRepo persistent.IngestRepository
	Assets     usecase.CacheAssetUseCase
	Media      usecase.MediaCacheUseCase
	Upsert     usecase.BulkUpsertUseCase
	Sync       usecase.SyncUseCase
}

// NewUseCases wires the core. queryCache and queueClient may be nil; without
// a queue, persistence failures are only logged.
func NewUseCases(cfg *config.Config, log *logger.Logger, db *gorm.DB, blobs usecase.BlobStore, queryCache *cache.QueryCache, queueClient *queue.Client) *UseCases {
	assetRepo := persistent.NewCacheAssetRepository(db)
	ingestRepo := persistent.NewIngestRepository(db)

	mediaFetcher := fetcher.NewClient(cfg.MediaFetchTimeout)
	assets := usecase.NewCacheAssetUseCase(assetRepo, blobs, mediaFetcher, log, cfg.S3PresignTTL, cfg.MediaFetchWorkers)
	media := usecase.NewMediaCacheUseCase(assets, log)

	var reporter usecase.FailureReporter
	if queueClient != nil {
		reporter = queueClient
	}
	upsert := usecase.NewBulkUpsertUseCase(ingestRepo, media, reporter, log, cfg.IngestBatchSize, cfg.IngestBatchPause)

	scrapeClient := scraper.NewClient(cfg, queryCache, log)
	sync := usecase.NewSyncUseCase(scrapeClient, upsert, ingestRepo, log)

	return &UseCases{
		IngestRepo: ingestRepo,
		Assets:     assets,
		Media:      media,
		Upsert:     upsert,
		Sync:       sync,
	}
}
