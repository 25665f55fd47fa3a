package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tok-ingest/pkg/config"
	"tok-ingest/pkg/logger"
	"tok-ingest/pkg/models"
	"tok-ingest/services/ingest/internal/entity"
	"tok-ingest/services/ingest/internal/repo/persistent"
)

// ProfileScraper is the upstream source of profiles and post pages. *scraper.Client implements it.
type ProfileScraper interface {
	GetProfile(ctx context.Context, handle string) (*models.ProfileData, error)
	GetPosts(ctx context.Context, handle, cursor string) (*models.PostsPage, error)
}

type SyncUseCase interface {
	SyncProfile(ctx context.Context, handle string, opts entity.SyncOptions) (*entity.SyncResult, error)
}

type syncUseCase struct {
	scraper    ProfileScraper
	upserter   BulkUpsertUseCase
	ingestRepo persistent.IngestRepository
	logger     *logger.Logger
}

func NewSyncUseCase(scraper ProfileScraper, upserter BulkUpsertUseCase, ingestRepo persistent.IngestRepository, logger *logger.Logger) SyncUseCase {
	return &syncUseCase{
		scraper:    scraper,
		upserter:   upserter,
		ingestRepo: ingestRepo,
		logger:     logger,
	}
}

// SyncProfile walks the post pages of handle and reconciles each one. It
// stops when the scraper reports no more pages, when MaxPages is reached,
// when the cursor stops advancing, or when ctx is done. Pages reconciled
// before a failure stay stored.
func (uc *syncUseCase) SyncProfile(ctx context.Context, handle string, opts entity.SyncOptions) (*entity.SyncResult, error) {
	handle = NormalizeHandle(handle)
	if handle == "" {
		return nil, &entity.IngestError{Kind: entity.ErrKindMalformedPayload, Op: "sync profile", Reasons: []string{"handle: failed required"}}
	}

	profile, err := uc.scraper.GetProfile(ctx, handle)
	if err != nil {
		return nil, classifyScrapeError("fetch profile", handle, err)
	}

	result := &entity.SyncResult{Handle: handle}
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			uc.logger.Warn("[SYNC] %s stopped after %d pages: %v", handle, result.Pages, err)
			return result, err
		}

		page, err := uc.scraper.GetPosts(ctx, handle, cursor)
		if err != nil {
			return result, classifyScrapeError(fmt.Sprintf("fetch posts page %d", result.Pages+1), handle, err)
		}

		upserted, err := uc.upserter.BulkUpsert(ctx, *profile, page.Posts, entity.UpsertOptions{ForceRecache: opts.ForceRecache})
		if err != nil {
			return result, fmt.Errorf("sync %s page %d: %w", handle, result.Pages+1, err)
		}

		result.Pages++
		result.ProfileID = upserted.ProfileID
		result.PostsCreated += upserted.Stats.PostsCreated
		result.PostsUpdated += upserted.Stats.PostsUpdated
		result.TotalPosts += upserted.Stats.TotalPosts
		result.MediaErrors += upserted.Stats.MediaErrors

		uc.logger.Info("[SYNC] %s page %d: %d posts (%d created, %d updated), has_more=%t",
			handle, result.Pages, len(page.Posts), upserted.Stats.PostsCreated, upserted.Stats.PostsUpdated, page.HasMore)

		if !page.HasMore || page.MaxCursor == "" {
			break
		}
		if page.MaxCursor == cursor {
			uc.logger.Warn("[SYNC] %s cursor %s did not advance, stopping", handle, cursor)
			break
		}
		cursor = page.MaxCursor
		result.LastCursor = cursor
		if opts.MaxPages > 0 && result.Pages >= opts.MaxPages {
			break
		}
	}

	stored, err := uc.ingestRepo.GetProfileByHandle(ctx, handle)
	if err != nil {
		uc.logger.Warn("[SYNC] Failed to reload profile %s: %v", handle, err)
	} else {
		result.Profile = stored
	}

	uc.logger.Info("[SYNC] %s done: %d pages, %d created, %d updated, %d media errors",
		handle, result.Pages, result.PostsCreated, result.PostsUpdated, result.MediaErrors)
	return result, nil
}

func NormalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

func classifyScrapeError(op, handle string, err error) error {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return &entity.IngestError{Kind: entity.ErrKindMalformedPayload, Op: op, Subject: handle, Reasons: verr.Reasons}
	}
	if errors.Is(err, config.ErrMissingScrapeAPIKey) {
		return &entity.IngestError{Kind: entity.ErrKindConfig, Op: op, Subject: handle, Err: err}
	}
	if entity.KindOf(err) != "" {
		return err
	}
	return &entity.IngestError{Kind: entity.ErrKindTransientFetch, Op: op, Subject: handle, Err: err}
}
