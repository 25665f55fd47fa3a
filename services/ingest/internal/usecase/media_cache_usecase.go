package usecase

import (
	"context"
	"errors"

	"tok-ingest/pkg/logger"
	"tok-ingest/services/ingest/internal/entity"

	"golang.org/x/sync/errgroup"
)

const (
	FolderVideos  = "tiktok/videos"
	FolderCovers  = "tiktok/covers"
	FolderMusic   = "tiktok/music"
	FolderImages  = "tiktok/images"
	FolderAvatars = "tiktok/avatars"
)

type MediaCacheUseCase interface {
	CacheTikTokPostMedia(ctx context.Context, input entity.PostMediaInput, forceRecache bool) entity.CachedMedia
	CacheAvatar(ctx context.Context, url string, existingID *string, forceRecache bool) entity.FieldResult
}

type mediaCacheUseCase struct {
	store  CacheAssetUseCase
	logger *logger.Logger
}

func NewMediaCacheUseCase(store CacheAssetUseCase, logger *logger.Logger) MediaCacheUseCase {
	return &mediaCacheUseCase{store: store, logger: logger}
}

// CacheTikTokPostMedia caches every media field of one post concurrently. A
// field that cannot be cached resolves to a nil id and a CacheError in the
// result; it never fails the call. With forceRecache, fields that already
// have an asset in input.Existing are re-fetched into that same asset.
func (uc *mediaCacheUseCase) CacheTikTokPostMedia(ctx context.Context, input entity.PostMediaInput, forceRecache bool) entity.CachedMedia {
	var existing entity.CachedMedia
	if input.Existing != nil {
		existing = *input.Existing
	}

	result := entity.CachedMedia{Images: make([]entity.CachedImage, len(input.Images))}
	g := new(errgroup.Group)

	g.Go(func() error {
		result.Video = uc.cacheField(ctx, entity.MediaFieldVideo, 0, input.VideoURL, FolderVideos, existing.VideoID(), forceRecache)
		return nil
	})
	g.Go(func() error {
		result.Cover = uc.cacheField(ctx, entity.MediaFieldCover, 0, input.CoverURL, FolderCovers, existing.CoverID(), forceRecache)
		return nil
	})
	g.Go(func() error {
		result.Music = uc.cacheField(ctx, entity.MediaFieldMusic, 0, input.MusicURL, FolderMusic, existing.MusicID(), forceRecache)
		return nil
	})
	g.Go(func() error {
		result.AuthorAvatar = uc.cacheField(ctx, entity.MediaFieldAuthorAvatar, 0, input.AuthorAvatarURL, FolderAvatars, existing.AuthorAvatarID(), forceRecache)
		return nil
	})
	for i, img := range input.Images {
		i, img := i, img
		var existingID *string
		if i < len(existing.Images) {
			existingID = existing.Images[i].AssetID
		}
		g.Go(func() error {
			field := uc.cacheField(ctx, entity.MediaFieldImage, i, img.URL, FolderImages, existingID, forceRecache)
			result.Images[i] = entity.CachedImage{AssetID: field.AssetID, Width: img.Width, Height: img.Height, Err: field.Err}
			return nil
		})
	}
	_ = g.Wait()

	for _, field := range []entity.FieldResult{result.Video, result.Cover, result.Music, result.AuthorAvatar} {
		if field.Err != nil {
			result.Errors = append(result.Errors, field.Err)
		}
	}
	for _, img := range result.Images {
		if img.Err != nil {
			result.Errors = append(result.Errors, img.Err)
		}
	}

	if len(result.Errors) > 0 {
		uc.logger.Warn("[MEDIA] Post %s cached with %d media errors", input.TikTokID, len(result.Errors))
	}
	return result
}

// CacheAvatar caches a profile avatar. A stored avatar for the same source
// URL is reused unless forceRecache is set.
func (uc *mediaCacheUseCase) CacheAvatar(ctx context.Context, url string, existingID *string, forceRecache bool) entity.FieldResult {
	if url == "" {
		return entity.FieldResult{AssetID: existingID}
	}

	if existingID != nil && !forceRecache {
		asset, err := uc.store.GetAsset(ctx, *existingID)
		if err == nil && asset.IsCached() && asset.OriginalURL == url {
			return entity.FieldResult{AssetID: existingID}
		}
		// A different source URL gets its own asset rather than overwriting the old one.
		existingID = nil
	}
	return uc.cacheField(ctx, entity.MediaFieldAvatar, 0, url, FolderAvatars, existingID, forceRecache)
}

func (uc *mediaCacheUseCase) cacheField(ctx context.Context, field entity.MediaField, index int, url, folder string, existingID *string, forceRecache bool) entity.FieldResult {
	if url == "" {
		return entity.FieldResult{AssetID: existingID}
	}

	fail := func(reason string) *entity.CacheError {
		return &entity.CacheError{Field: field, Index: index, URL: url, Reason: reason}
	}

	if forceRecache && existingID != nil {
		// A changed source gets its own asset; original_url must keep describing the stored bytes.
		if current, err := uc.store.GetAsset(ctx, *existingID); err == nil && current.OriginalURL != url {
			existingID = nil
		}
	}

	if forceRecache && existingID != nil {
		asset, err := uc.store.RecacheAsset(ctx, *existingID, url)
		switch {
		case err == nil && asset.IsCached():
			return entity.FieldResult{AssetID: &asset.ID}
		case asset.IsCached():
			return entity.FieldResult{AssetID: &asset.ID, Err: fail(err.Error())}
		case errors.Is(err, entity.ErrNotFound):
			// The stored asset is gone; cache the url as a new asset.
		case err != nil:
			return entity.FieldResult{Err: fail(err.Error())}
		default:
			return entity.FieldResult{Err: fail(asset.ErrorMessage)}
		}
	}

	asset, err := uc.store.CreateCacheAsset(ctx, url, folder)
	if err != nil {
		uc.logger.Error("[MEDIA] Failed to record %s asset for %s: %v", field, url, err)
		return entity.FieldResult{Err: fail(err.Error())}
	}
	if !asset.IsCached() {
		return entity.FieldResult{Err: fail(asset.ErrorMessage)}
	}
	return entity.FieldResult{AssetID: &asset.ID}
}
