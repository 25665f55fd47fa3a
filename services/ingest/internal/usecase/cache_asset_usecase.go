package usecase

import (
	"context"
	"errors"
	"time"

	"tok-ingest/pkg/fetcher"
	"tok-ingest/pkg/logger"
	"tok-ingest/services/ingest/internal/entity"
	"tok-ingest/services/ingest/internal/repo/persistent"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// BlobStore is the durable storage behind cached assets.
type BlobStore interface {
	ObjectKey(folder, name string) string
	Upload(ctx context.Context, key string, body []byte, contentType string) error
	PresignURL(key string, ttl time.Duration) (string, error)
	PublicURL(key string) string
}

type MediaFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Media, error)
}

type CacheAssetUseCase interface {
	CreateCacheAsset(ctx context.Context, url, folder string) (*entity.CacheAsset, error)
	CreateBulkCacheAssets(ctx context.Context, urls []string, folder string) []*entity.CacheAsset
	RecacheAsset(ctx context.Context, id, url string) (*entity.CacheAsset, error)
	GetAsset(ctx context.Context, idOrKey string) (*entity.CacheAsset, error)
	GetURL(ctx context.Context, idOrKey, fallbackURL string) string
	GetURLs(ctx context.Context, idsOrKeys, fallbackURLs []string) []string
}

type cacheAssetUseCase struct {
	assetRepo  persistent.CacheAssetRepository
	blobs      BlobStore
	fetcher    MediaFetcher
	logger     *logger.Logger
	presignTTL time.Duration
	workers    int
	inflight   singleflight.Group
}

func NewCacheAssetUseCase(
	assetRepo persistent.CacheAssetRepository,
	blobs BlobStore,
	fetcher MediaFetcher,
	logger *logger.Logger,
	presignTTL time.Duration,
	workers int,
) CacheAssetUseCase {
	if workers <= 0 {
		workers = 8
	}
	if presignTTL <= 0 {
		presignTTL = time.Hour
	}
	return &cacheAssetUseCase{
		assetRepo:  assetRepo,
		blobs:      blobs,
		fetcher:    fetcher,
		logger:     logger,
		presignTTL: presignTTL,
		workers:    workers,
	}
}

// CreateCacheAsset fetches url into the blob store under folder. Fetch and
// upload failures come back as a FAILED asset with a nil error; only a failure
// to persist the asset row itself is returned as an error. Concurrent calls
// for the same url and folder share one asset, and the shared work runs to
// completion even if the caller that started it is cancelled.
func (uc *cacheAssetUseCase) CreateCacheAsset(ctx context.Context, url, folder string) (*entity.CacheAsset, error) {
	if url == "" {
		return nil, nil
	}

	// Callers joining the flight must not inherit the first caller's cancellation.
	v, err, _ := uc.inflight.Do(folder+"|"+url, func() (interface{}, error) {
		return uc.createCacheAsset(context.WithoutCancel(ctx), url, folder)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entity.CacheAsset), nil
}

func (uc *cacheAssetUseCase) createCacheAsset(ctx context.Context, url, folder string) (*entity.CacheAsset, error) {
	asset := &entity.CacheAsset{
		OriginalURL: url,
		Folder:      folder,
		Status:      entity.CacheStatusPending,
	}
	if err := uc.assetRepo.Create(ctx, asset); err != nil {
		return nil, &entity.IngestError{Kind: entity.ErrKindPersistence, Op: "create cache asset", Subject: url, Err: err}
	}

	key, media, err := uc.store(ctx, url, folder)
	if err != nil {
		uc.logger.Warn("[CACHE] Failed to cache %s into %s: %v", url, folder, err)
		failed, markErr := uc.assetRepo.MarkFailed(ctx, asset.ID, err.Error())
		if markErr != nil {
			return nil, &entity.IngestError{Kind: entity.ErrKindPersistence, Op: "mark cache asset failed", Subject: asset.ID, Err: markErr}
		}
		return failed, nil
	}

	cached, err := uc.assetRepo.MarkCached(ctx, asset.ID, key, media.ContentType, int64(len(media.Body)))
	if err != nil {
		return nil, &entity.IngestError{Kind: entity.ErrKindPersistence, Op: "mark cache asset cached", Subject: asset.ID, Err: err}
	}
	return cached, nil
}

// store downloads url and writes it under a fresh key in folder.
func (uc *cacheAssetUseCase) store(ctx context.Context, url, folder string) (string, *fetcher.Media, error) {
	media, err := uc.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", nil, err
	}

	key := uc.blobs.ObjectKey(folder, uuid.New().String()+media.Extension)
	if err := uc.blobs.Upload(ctx, key, media.Body, media.ContentType); err != nil {
		return "", nil, err
	}
	return key, media, nil
}

// CreateBulkCacheAssets caches every distinct non-empty url concurrently. A
// failing url never aborts its siblings; the result holds one asset per url
// that produced an asset row, in first-seen input order.
func (uc *cacheAssetUseCase) CreateBulkCacheAssets(ctx context.Context, urls []string, folder string) []*entity.CacheAsset {
	unique := make([]string, 0, len(urls))
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		unique = append(unique, u)
	}

	results := make([]*entity.CacheAsset, len(unique))
	g := new(errgroup.Group)
	g.SetLimit(uc.workers)
	for i, u := range unique {
		i, u := i, u
		g.Go(func() error {
			asset, err := uc.CreateCacheAsset(ctx, u, folder)
			if err != nil {
				uc.logger.Error("[CACHE] Bulk cache of %s into %s failed: %v", u, folder, err)
				return nil
			}
			results[i] = asset
			return nil
		})
	}
	_ = g.Wait()

	assets := make([]*entity.CacheAsset, 0, len(results))
	for _, a := range results {
		if a != nil {
			assets = append(assets, a)
		}
	}
	return assets
}

// RecacheAsset re-fetches an existing asset from url (or its original url)
// and moves it to a fresh storage key. When the re-fetch fails a previously
// cached copy stays CACHED and the failure is returned as a transient error.
func (uc *cacheAssetUseCase) RecacheAsset(ctx context.Context, id, url string) (*entity.CacheAsset, error) {
	asset, err := uc.assetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if url == "" {
		url = asset.OriginalURL
	}

	key, media, err := uc.store(ctx, url, asset.Folder)
	if err != nil {
		uc.logger.Warn("[CACHE] Failed to re-cache asset %s from %s: %v", id, url, err)
		if asset.IsCached() {
			return asset, &entity.IngestError{Kind: entity.ErrKindTransientFetch, Op: "recache asset", Subject: id, Err: err}
		}
		failed, markErr := uc.assetRepo.MarkFailed(ctx, id, err.Error())
		if markErr != nil {
			return nil, &entity.IngestError{Kind: entity.ErrKindPersistence, Op: "mark cache asset failed", Subject: id, Err: markErr}
		}
		return failed, nil
	}

	cached, err := uc.assetRepo.MarkCached(ctx, id, key, media.ContentType, int64(len(media.Body)))
	if err != nil {
		return nil, &entity.IngestError{Kind: entity.ErrKindPersistence, Op: "mark cache asset cached", Subject: id, Err: err}
	}
	uc.logger.Info("[CACHE] Re-cached asset %s as %s", id, key)
	return cached, nil
}

func (uc *cacheAssetUseCase) GetAsset(ctx context.Context, idOrKey string) (*entity.CacheAsset, error) {
	return uc.assetRepo.GetByIDOrKey(ctx, idOrKey)
}

// GetURL resolves a cached asset to a presigned URL, then its public URL,
// and finally fallbackURL when the asset is unknown or not cached.
func (uc *cacheAssetUseCase) GetURL(ctx context.Context, idOrKey, fallbackURL string) string {
	if idOrKey == "" {
		return fallbackURL
	}

	asset, err := uc.assetRepo.GetByIDOrKey(ctx, idOrKey)
	if err != nil {
		if !errors.Is(err, entity.ErrNotFound) {
			uc.logger.Warn("[CACHE] Failed to look up asset %s: %v", idOrKey, err)
		}
		return fallbackURL
	}
	return uc.resolve(asset, fallbackURL)
}

// GetURLs resolves every id with one lookup; the result is index-aligned with idsOrKeys.
func (uc *cacheAssetUseCase) GetURLs(ctx context.Context, idsOrKeys, fallbackURLs []string) []string {
	urls := make([]string, len(idsOrKeys))
	fallbackAt := func(i int) string {
		if i < len(fallbackURLs) {
			return fallbackURLs[i]
		}
		return ""
	}

	found, err := uc.assetRepo.GetByIDsOrKeys(ctx, idsOrKeys)
	if err != nil {
		uc.logger.Warn("[CACHE] Failed to look up %d assets: %v", len(idsOrKeys), err)
		found = nil
	}

	for i, idOrKey := range idsOrKeys {
		asset, ok := found[idOrKey]
		if !ok {
			urls[i] = fallbackAt(i)
			continue
		}
		urls[i] = uc.resolve(asset, fallbackAt(i))
	}
	return urls
}

func (uc *cacheAssetUseCase) resolve(asset *entity.CacheAsset, fallbackURL string) string {
	if !asset.IsCached() {
		return fallbackURL
	}

	signed, err := uc.blobs.PresignURL(asset.CacheKey, uc.presignTTL)
	if err == nil && signed != "" {
		return signed
	}
	uc.logger.Warn("[CACHE] Presign failed for %s, using public URL: %v", asset.CacheKey, err)

	if public := uc.blobs.PublicURL(asset.CacheKey); public != "" {
		return public
	}
	return fallbackURL
}
