package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tok-ingest/pkg/logger"
	"tok-ingest/pkg/models"
	"tok-ingest/pkg/queue"
	"tok-ingest/pkg/sanitize"
	"tok-ingest/services/ingest/internal/entity"
	"tok-ingest/services/ingest/internal/repo/persistent"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize  = 10
	DefaultBatchPause = 100 * time.Millisecond

	hashtagURLPrefix = "https://www.tiktok.com/tag/"

	// SQLSTATE for statements sent after an earlier one failed the transaction.
	pgTxAborted = "25P02"
)

// FailureReporter receives posts that could not be persisted. *queue.Client implements it.
type FailureReporter interface {
	PublishFailureReport(ctx context.Context, report *queue.FailureReport) error
}

type BulkUpsertUseCase interface {
	BulkUpsert(ctx context.Context, profile models.ProfileData, posts []models.PostData, opts entity.UpsertOptions) (*entity.UpsertResult, error)
}

type bulkUpsertUseCase struct {
	ingestRepo persistent.IngestRepository
	media      MediaCacheUseCase
	reporter   FailureReporter
	logger     *logger.Logger
	batchSize  int
	batchPause time.Duration
}

func NewBulkUpsertUseCase(
	ingestRepo persistent.IngestRepository,
	media MediaCacheUseCase,
	reporter FailureReporter,
	logger *logger.Logger,
	batchSize int,
	batchPause time.Duration,
) BulkUpsertUseCase {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchPause < 0 {
		batchPause = DefaultBatchPause
	}
	return &bulkUpsertUseCase{
		ingestRepo: ingestRepo,
		media:      media,
		reporter:   reporter,
		logger:     logger,
		batchSize:  batchSize,
		batchPause: batchPause,
	}
}

// pendingPost is one incoming post on its way to storage.
type pendingPost struct {
	data  models.PostData
	known *entity.Post
	media entity.CachedMedia
	post  *entity.Post
}

// BulkUpsert reconciles one scraped page into storage. Posts are written in
// batches, one transaction each; a failed batch is rolled back and returned
// as an error while earlier batches stay committed. Profile aggregates are
// recomputed from stored rows before returning, on failure too.
func (uc *bulkUpsertUseCase) BulkUpsert(ctx context.Context, profileData models.ProfileData, posts []models.PostData, opts entity.UpsertOptions) (*entity.UpsertResult, error) {
	if err := validatePage(profileData, posts); err != nil {
		return nil, err
	}

	stored, err := uc.ingestRepo.GetProfileByHandle(ctx, profileData.Handle)
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		return nil, &entity.IngestError{Kind: entity.ErrKindPersistence, Op: "load profile", Subject: profileData.Handle, Err: err}
	}

	stats := entity.UpsertStats{TotalPosts: len(posts)}

	// Cached before any transaction opens so a slow avatar never holds one.
	var storedAvatarID *string
	if stored != nil {
		storedAvatarID = stored.AvatarID
	}
	avatar := uc.media.CacheAvatar(ctx, profileData.Avatar, storedAvatarID, opts.ForceRecache)
	if avatar.Err != nil {
		stats.MediaErrors++
		uc.logger.Warn("[INGEST] Avatar for %s not cached: %v", profileData.Handle, avatar.Err)
	}

	tiktokIDs := make([]string, len(posts))
	for i := range posts {
		tiktokIDs[i] = posts[i].TikTokID
	}
	known, err := uc.ingestRepo.FindPostsByTikTokIDs(ctx, tiktokIDs)
	if err != nil {
		return nil, &entity.IngestError{Kind: entity.ErrKindPersistence, Op: "probe posts", Subject: profileData.Handle, Err: err}
	}

	profile, err := uc.ingestRepo.UpsertProfile(ctx, &entity.Profile{
		Handle:   profileData.Handle,
		Nickname: sanitize.String(profileData.Nickname),
		Bio:      sanitize.String(profileData.Bio),
		Verified: profileData.Verified,
		AvatarID: avatar.AssetID,
	})
	if err != nil {
		return nil, &entity.IngestError{Kind: entity.ErrKindPersistence, Op: "upsert profile", Subject: profileData.Handle, Err: err}
	}

	pending := make([]*pendingPost, len(posts))
	for i := range posts {
		pending[i] = &pendingPost{data: posts[i], known: known[posts[i].TikTokID]}
	}

	batches := chunk(pending, uc.batchSize)
	uc.logger.Info("[INGEST] Upserting %d posts for %s in %d batches (%d already stored, force_recache=%t)",
		len(posts), profileData.Handle, len(batches), len(known), opts.ForceRecache)

	var runErr error
	for i, batch := range batches {
		if i > 0 {
			if runErr = uc.pause(ctx); runErr != nil {
				break
			}
		}

		stats.MediaErrors += uc.cacheBatchMedia(ctx, batch, profileData, avatar.AssetID, opts.ForceRecache)
		for _, p := range batch {
			p.post = buildPost(profile.ID, p)
		}

		if runErr = uc.commitBatch(ctx, profile, batch, i+1, len(batches)); runErr != nil {
			runErr = fmt.Errorf("batch %d/%d: %w", i+1, len(batches), runErr)
			break
		}
		for _, p := range batch {
			if p.known != nil {
				stats.PostsUpdated++
			} else {
				stats.PostsCreated++
			}
		}
	}

	// Committed batches count even when a later one failed. Posts that moved
	// here from another profile change that profile's totals too.
	for _, profileID := range affectedProfiles(profile.ID, known) {
		if _, err := uc.ingestRepo.RecomputeProfileAggregates(context.WithoutCancel(ctx), profileID); err != nil {
			aggErr := &entity.IngestError{Kind: entity.ErrKindPersistence, Op: "recompute aggregates", Subject: profileID, Err: err}
			if runErr == nil {
				runErr = aggErr
				continue
			}
			uc.logger.Error("[INGEST] %v", aggErr)
		}
	}
	if runErr != nil {
		uc.logger.Error("[INGEST] Ingestion of %s stopped after %d created, %d updated: %v",
			profileData.Handle, stats.PostsCreated, stats.PostsUpdated, runErr)
		return nil, runErr
	}

	uc.logger.Info("[INGEST] %s: %d created, %d updated, %d media errors",
		profileData.Handle, stats.PostsCreated, stats.PostsUpdated, stats.MediaErrors)

	return &entity.UpsertResult{Stats: stats, ProfileID: profile.ID}, nil
}

// affectedProfiles lists profileID followed by every other profile that
// owned one of the known posts before this run.
func affectedProfiles(profileID string, known map[string]*entity.Post) []string {
	ids := []string{profileID}
	seen := map[string]bool{profileID: true}
	for _, p := range known {
		if p.ProfileID == "" || seen[p.ProfileID] {
			continue
		}
		seen[p.ProfileID] = true
		ids = append(ids, p.ProfileID)
	}
	return ids
}

func (uc *bulkUpsertUseCase) pause(ctx context.Context) error {
	if uc.batchPause == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(uc.batchPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// cacheBatchMedia resolves the media of every post in the batch. New posts
// are always cached; stored posts reuse their asset ids unless forceRecache.
func (uc *bulkUpsertUseCase) cacheBatchMedia(ctx context.Context, batch []*pendingPost, profile models.ProfileData, avatarID *string, forceRecache bool) int {
	g := new(errgroup.Group)
	for _, p := range batch {
		p := p
		if p.known != nil && !forceRecache {
			p.media = p.known.MediaRefs()
			continue
		}

		input := entity.PostMediaInput{
			TikTokID:        p.data.TikTokID,
			VideoURL:        p.data.VideoURL,
			CoverURL:        p.data.CoverURL,
			MusicURL:        p.data.MusicURL,
			AuthorAvatarURL: p.data.AuthorAvatar,
			Images:          p.data.Images,
		}
		if p.known != nil {
			refs := p.known.MediaRefs()
			input.Existing = &refs
		}
		sharesAvatar := avatarID != nil && p.data.AuthorAvatar != "" && p.data.AuthorAvatar == profile.Avatar
		if sharesAvatar {
			input.AuthorAvatarURL = ""
		}

		g.Go(func() error {
			p.media = uc.media.CacheTikTokPostMedia(ctx, input, forceRecache)
			if sharesAvatar {
				p.media.AuthorAvatar = entity.FieldResult{AssetID: avatarID}
			}
			return nil
		})
	}
	_ = g.Wait()

	errs := 0
	for _, p := range batch {
		errs += len(p.media.Errors)
	}
	return errs
}

func (uc *bulkUpsertUseCase) commitBatch(ctx context.Context, profile *entity.Profile, batch []*pendingPost, n, total int) error {
	return uc.ingestRepo.InTransaction(ctx, func(tx persistent.PostWriter) error {
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range batch {
			p := p
			g.Go(func() error {
				if err := tx.UpsertPost(gctx, p.post); err != nil {
					if failedBySibling(gctx, err) {
						return &entity.IngestError{Kind: entity.ErrKindPersistence, Op: "upsert post (batch aborted)", Subject: p.data.TikTokID, Err: err}
					}
					uc.reportFailure(ctx, profile, p, n, total, err)
					return &entity.IngestError{Kind: entity.ErrKindPersistence, Op: "upsert post", Subject: p.data.TikTokID, Err: err}
				}
				return nil
			})
		}
		return g.Wait()
	})
}

// failedBySibling reports whether err only reflects an earlier failure of
// another post in the same batch transaction.
func failedBySibling(gctx context.Context, err error) bool {
	if gctx.Err() != nil && errors.Is(err, context.Canceled) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgTxAborted
}

func (uc *bulkUpsertUseCase) reportFailure(ctx context.Context, profile *entity.Profile, p *pendingPost, n, total int, cause error) {
	input, _ := json.Marshal(p.data)
	sanitized := map[string]string{
		"title":           p.post.Title,
		"description":     p.post.Description,
		"author_nickname": p.post.AuthorNickname,
		"hashtags":        string(sanitize.JSON(p.post.Hashtags)),
		"mentions":        string(sanitize.JSON(p.post.Mentions)),
	}

	uc.logger.Error("[INGEST] Failed to upsert post %s (profile=%s batch=%d/%d): %v input=%s sanitized=%v",
		p.data.TikTokID, profile.Handle, n, total, cause, input, sanitized)

	if uc.reporter == nil {
		return
	}
	report := &queue.FailureReport{
		Kind:       string(entity.ErrKindPersistence),
		Op:         "upsert post",
		Handle:     profile.Handle,
		ProfileID:  profile.ID,
		TikTokID:   p.data.TikTokID,
		Batch:      n,
		Batches:    total,
		Error:      cause.Error(),
		Input:      input,
		Sanitized:  sanitized,
		OccurredAt: time.Now().UTC(),
	}
	if err := uc.reporter.PublishFailureReport(context.WithoutCancel(ctx), report); err != nil {
		uc.logger.Warn("[INGEST] Failed to report post %s failure: %v", p.data.TikTokID, err)
	}
}

func validatePage(profile models.ProfileData, posts []models.PostData) error {
	var reasons []string
	var verr *models.ValidationError

	if err := profile.Validate(); err != nil {
		if !errors.As(err, &verr) {
			return err
		}
		for _, r := range verr.Reasons {
			reasons = append(reasons, "profile."+r)
		}
	}
	page := models.PostsPage{Posts: posts}
	if err := page.Validate(); err != nil {
		if !errors.As(err, &verr) {
			return err
		}
		reasons = append(reasons, verr.Reasons...)
	}

	if len(reasons) == 0 {
		return nil
	}
	return &entity.IngestError{Kind: entity.ErrKindMalformedPayload, Op: "validate page", Subject: profile.Handle, Reasons: reasons}
}

func buildPost(profileID string, p *pendingPost) *entity.Post {
	d := p.data
	post := &entity.Post{
		TikTokID:       d.TikTokID,
		ProfileID:      profileID,
		TikTokURL:      d.TikTokURL,
		ContentType:    d.ContentType,
		Title:          sanitize.String(d.Title),
		Description:    sanitize.String(d.Description),
		AuthorNickname: sanitize.String(d.AuthorNickname),
		AuthorHandle:   sanitize.String(d.AuthorHandle),
		Hashtags:       mergeHashtags(d.Hashtags, d.Description),
		Mentions:       mergeMentions(d.Mentions, d.Description),
		ViewCount:      d.ViewCount,
		LikeCount:      d.LikeCount,
		ShareCount:     d.ShareCount,
		CommentCount:   d.CommentCount,
		SaveCount:      d.SaveCount,
		Duration:       d.Duration,
		VideoID:        p.media.VideoID(),
		CoverID:        p.media.CoverID(),
		MusicID:        p.media.MusicID(),
		AuthorAvatarID: p.media.AuthorAvatarID(),
		Images:         p.media.PostImages(),
		PublishedAt:    d.PublishedAt,
	}
	if p.known != nil {
		post.ID = p.known.ID
	}
	return post
}

// mergeHashtags combines the supplied tags with the ones written in text, deduplicated case-insensitively.
func mergeHashtags(supplied []models.Hashtag, text string) []models.Hashtag {
	out := make([]models.Hashtag, 0, len(supplied))
	seen := make(map[string]bool, len(supplied))
	add := func(tag, url string) {
		tag = strings.TrimPrefix(strings.TrimSpace(sanitize.String(tag)), "#")
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			return
		}
		seen[key] = true
		if url == "" {
			url = hashtagURLPrefix + key
		}
		out = append(out, models.Hashtag{Text: tag, URL: sanitize.String(url)})
	}

	for _, h := range supplied {
		add(h.Text, h.URL)
	}
	for _, tag := range sanitize.ExtractHashtags(sanitize.String(text)) {
		add(tag, "")
	}
	return out
}

func mergeMentions(supplied []string, text string) []string {
	out := make([]string, 0, len(supplied))
	seen := make(map[string]bool, len(supplied))
	add := func(handle string) {
		handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
		key := strings.ToLower(handle)
		if handle == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, handle)
	}

	for _, m := range sanitize.Strings(supplied) {
		add(m)
	}
	for _, m := range sanitize.ExtractMentions(sanitize.String(text)) {
		add(m)
	}
	return out
}

func chunk(posts []*pendingPost, size int) [][]*pendingPost {
	var batches [][]*pendingPost
	for size < len(posts) {
		posts, batches = posts[size:], append(batches, posts[:size])
	}
	if len(posts) > 0 {
		batches = append(batches, posts)
	}
	return batches
}
