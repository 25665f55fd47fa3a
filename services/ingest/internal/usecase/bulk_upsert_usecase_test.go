package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tok-ingest/pkg/models"
	"tok-ingest/pkg/queue"
	"tok-ingest/services/ingest/internal/entity"
	"tok-ingest/services/ingest/internal/model"
	"tok-ingest/services/ingest/internal/repo/persistent"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingReporter struct {
	mu      sync.Mutex
	reports []*queue.FailureReport
}

func (r *recordingReporter) PublishFailureReport(_ context.Context, report *queue.FailureReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

func testProfile() models.ProfileData {
	return models.ProfileData{
		Handle:   "creator",
		Nickname: "The Creator",
		Avatar:   "https://cdn.example/avatar.jpg",
		Bio:      "makes things",
		Verified: true,
	}
}

func testPost(id string, views int64) models.PostData {
	return models.PostData{
		TikTokID:     id,
		TikTokURL:    "https://www.tiktok.com/@creator/video/" + id,
		ContentType:  models.ContentTypeVideo,
		Title:        "post " + id,
		AuthorHandle: "creator",
		AuthorAvatar: "https://cdn.example/avatar.jpg",
		ViewCount:    views,
		LikeCount:    views / 10,
		ShareCount:   1,
		CommentCount: 2,
		SaveCount:    3,
		VideoURL:     "https://cdn.example/" + id + "/v.mp4",
		CoverURL:     "https://cdn.example/" + id + "/c.jpg",
		PublishedAt:  time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testPosts(from, n int) []models.PostData {
	posts := make([]models.PostData, n)
	for i := range posts {
		posts[i] = testPost(fmt.Sprintf("%d", 7300000+from+i), int64(100*(from+i+1)))
	}
	return posts
}

func newReconciler(s *testStack, reporter FailureReporter, batchSize int) BulkUpsertUseCase {
	return NewBulkUpsertUseCase(s.ingest, s.media, reporter, quietLogger(), batchSize, 0)
}

func storedPosts(t *testing.T, s *testStack, handle string) []*entity.Post {
	t.Helper()
	profile, err := s.ingest.GetProfileByHandle(context.Background(), handle)
	require.NoError(t, err)
	posts, err := s.ingest.GetPostsByProfileID(context.Background(), profile.ID)
	require.NoError(t, err)
	return posts
}

func TestBulkUpsert_IdempotentReingestion(t *testing.T) {
	s := newTestStack(t)
	uc := newReconciler(s, nil, 2)
	ctx := context.Background()
	posts := testPosts(0, 3)

	first, err := uc.BulkUpsert(ctx, testProfile(), posts, entity.UpsertOptions{})
	require.NoError(t, err)
	assert.Equal(t, entity.UpsertStats{PostsCreated: 3, PostsUpdated: 0, TotalPosts: 3}, first.Stats)
	fetches := s.fetcher.totalCalls()
	before := storedPosts(t, s, "creator")

	second, err := uc.BulkUpsert(ctx, testProfile(), posts, entity.UpsertOptions{})
	require.NoError(t, err)
	assert.Equal(t, entity.UpsertStats{PostsCreated: 0, PostsUpdated: 3, TotalPosts: 3}, second.Stats)
	assert.Equal(t, first.ProfileID, second.ProfileID)
	assert.Equal(t, fetches, s.fetcher.totalCalls(), "second run must not fetch media")

	after := storedPosts(t, s, "creator")
	require.Len(t, after, 3)
	byID := make(map[string]*entity.Post)
	for _, p := range before {
		byID[p.TikTokID] = p
	}
	for _, p := range after {
		prev := byID[p.TikTokID]
		require.NotNil(t, prev)
		assert.Equal(t, prev.ID, p.ID)
		assert.Equal(t, *prev.VideoID, *p.VideoID)
		assert.Equal(t, *prev.CoverID, *p.CoverID)
		assert.Equal(t, *prev.AuthorAvatarID, *p.AuthorAvatarID)
	}
}

func TestBulkUpsert_PartialMediaFailureIsolated(t *testing.T) {
	post := testPost("7301", 10)
	post.MusicURL = "https://cdn.example/7301/m.mp3"
	post.AuthorAvatar = "https://cdn.example/someone-else.jpg"
	post.Images = []models.ImageData{{URL: "https://cdn.example/7301/i0.jpg", Width: 1080, Height: 1350}}
	s := newTestStack(t, post.MusicURL)
	uc := newReconciler(s, nil, 10)

	result, err := uc.BulkUpsert(context.Background(), testProfile(), []models.PostData{post}, entity.UpsertOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.PostsCreated)
	assert.Equal(t, 1, result.Stats.MediaErrors)

	stored := storedPosts(t, s, "creator")
	require.Len(t, stored, 1)
	assert.Nil(t, stored[0].MusicID)
	assert.NotNil(t, stored[0].VideoID)
	assert.NotNil(t, stored[0].CoverID)
	assert.NotNil(t, stored[0].AuthorAvatarID)
	require.Len(t, stored[0].Images, 1)
	assert.Equal(t, 1350, stored[0].Images[0].Height)
}

func TestBulkUpsert_AggregatesRecomputedFromStoredRows(t *testing.T) {
	s := newTestStack(t)
	uc := newReconciler(s, nil, 2)
	ctx := context.Background()

	_, err := uc.BulkUpsert(ctx, testProfile(), testPosts(0, 4), entity.UpsertOptions{})
	require.NoError(t, err)

	// A re-scrape of two posts with new metrics must not double count.
	updated := testPosts(0, 2)
	updated[0].ViewCount = 5000
	_, err = uc.BulkUpsert(ctx, testProfile(), updated, entity.UpsertOptions{})
	require.NoError(t, err)

	posts := storedPosts(t, s, "creator")
	var views, likes, saves int64
	for _, p := range posts {
		views += p.ViewCount
		likes += p.LikeCount
		saves += p.SaveCount
	}

	profile, err := s.ingest.GetProfileByHandle(ctx, "creator")
	require.NoError(t, err)
	assert.Equal(t, int64(4), profile.TotalPosts)
	assert.Equal(t, views, profile.TotalViews)
	assert.Equal(t, int64(5000+200+300+400), profile.TotalViews)
	assert.Equal(t, likes, profile.TotalLikes)
	assert.Equal(t, saves, profile.TotalSaves)
}

func TestBulkUpsert_MovedPostsRecomputePreviousOwner(t *testing.T) {
	s := newTestStack(t)
	uc := newReconciler(s, nil, 10)
	ctx := context.Background()
	posts := testPosts(0, 3)

	_, err := uc.BulkUpsert(ctx, testProfile(), posts, entity.UpsertOptions{})
	require.NoError(t, err)

	renamed := testProfile()
	renamed.Handle = "creator_new"
	_, err = uc.BulkUpsert(ctx, renamed, posts[:2], entity.UpsertOptions{})
	require.NoError(t, err)

	previous, err := s.ingest.GetProfileByHandle(ctx, "creator")
	require.NoError(t, err)
	assert.Len(t, storedPosts(t, s, "creator"), 1)
	assert.Equal(t, int64(1), previous.TotalPosts)
	assert.Equal(t, int64(300), previous.TotalViews)

	current, err := s.ingest.GetProfileByHandle(ctx, "creator_new")
	require.NoError(t, err)
	assert.Len(t, storedPosts(t, s, "creator_new"), 2)
	assert.Equal(t, int64(2), current.TotalPosts)
	assert.Equal(t, int64(100+200), current.TotalViews)
}

func TestAffectedProfiles(t *testing.T) {
	known := map[string]*entity.Post{
		"1": {ProfileID: "p1"},
		"2": {ProfileID: "p2"},
		"3": {ProfileID: "p2"},
		"4": {ProfileID: ""},
	}

	ids := affectedProfiles("p1", known)

	assert.Equal(t, "p1", ids[0])
	assert.ElementsMatch(t, []string{"p1", "p2"}, ids)
	assert.Equal(t, []string{"p1"}, affectedProfiles("p1", nil))
}

func TestBulkUpsert_PaginationNonOverlap(t *testing.T) {
	s := newTestStack(t)
	uc := newReconciler(s, nil, 4)
	ctx := context.Background()

	created := 0
	distinct := make(map[string]bool)
	for page := 0; page < 3; page++ {
		posts := testPosts(page*5, 5)
		for _, p := range posts {
			distinct[p.TikTokID] = true
		}
		result, err := uc.BulkUpsert(ctx, testProfile(), posts, entity.UpsertOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, result.Stats.PostsUpdated)
		created += result.Stats.PostsCreated
	}

	assert.Equal(t, len(distinct), created)
	assert.Len(t, storedPosts(t, s, "creator"), 15)
}

func TestBulkUpsert_BatchIsUnitOfAtomicity(t *testing.T) {
	s := newTestStack(t)
	reporter := &recordingReporter{}
	uc := newReconciler(s, reporter, 5)
	posts := testPosts(0, 10)
	failing := posts[7].TikTokID

	require.NoError(t, s.db.Callback().Create().Before("gorm:create").Register("test:fail_post", func(tx *gorm.DB) {
		if post, ok := tx.Statement.Dest.(*model.PostModel); ok && post.TikTokID == failing {
			tx.AddError(errors.New("constraint violation"))
		}
	}))

	result, err := uc.BulkUpsert(context.Background(), testProfile(), posts, entity.UpsertOptions{})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, entity.ErrKindPersistence, entity.KindOf(err))
	assert.Contains(t, err.Error(), "batch 2/2")

	stored := storedPosts(t, s, "creator")
	require.Len(t, stored, 5)
	storedIDs := make(map[string]bool)
	for _, p := range stored {
		storedIDs[p.TikTokID] = true
	}
	for _, p := range posts[:5] {
		assert.True(t, storedIDs[p.TikTokID], "first batch post %s must stay committed", p.TikTokID)
	}
	for _, p := range posts[5:] {
		assert.False(t, storedIDs[p.TikTokID], "failed batch post %s must be rolled back", p.TikTokID)
	}

	profile, err := s.ingest.GetProfileByHandle(context.Background(), "creator")
	require.NoError(t, err)
	assert.Equal(t, int64(5), profile.TotalPosts)

	require.Len(t, reporter.reports, 1)
	report := reporter.reports[0]
	assert.Equal(t, failing, report.TikTokID)
	assert.Equal(t, "persistence", report.Kind)
	assert.Equal(t, 2, report.Batch)
	assert.Equal(t, "post "+failing, report.Sanitized["title"])
	assert.Contains(t, string(report.Input), failing)
}

func TestBulkUpsert_AbortedSiblingsAreNotReported(t *testing.T) {
	s := newTestStack(t)
	reporter := &recordingReporter{}
	uc := newReconciler(s, reporter, 5)
	posts := testPosts(0, 5)
	failing, sibling := posts[3].TikTokID, posts[1].TikTokID
	failed := make(chan struct{})

	require.NoError(t, s.db.Callback().Create().Before("gorm:create").Register("test:abort_batch", func(tx *gorm.DB) {
		post, ok := tx.Statement.Dest.(*model.PostModel)
		if !ok {
			return
		}
		switch post.TikTokID {
		case failing:
			tx.AddError(errors.New("constraint violation"))
			close(failed)
		case sibling:
			select {
			case <-failed:
			case <-time.After(2 * time.Second):
			}
			tx.AddError(fmt.Errorf("upsert: %w", &pgconn.PgError{Code: "25P02", Message: "current transaction is aborted"}))
		}
	}))

	_, err := uc.BulkUpsert(context.Background(), testProfile(), posts, entity.UpsertOptions{})
	require.Error(t, err)
	assert.Equal(t, entity.ErrKindPersistence, entity.KindOf(err))
	assert.Empty(t, storedPosts(t, s, "creator"))

	require.Len(t, reporter.reports, 1)
	assert.Equal(t, failing, reporter.reports[0].TikTokID)
}

func TestFailedBySibling(t *testing.T) {
	aborted := fmt.Errorf("upsert: %w", &pgconn.PgError{Code: "25P02"})
	unique := &pgconn.PgError{Code: "23505"}

	assert.True(t, failedBySibling(context.Background(), aborted))
	assert.False(t, failedBySibling(context.Background(), unique))
	assert.False(t, failedBySibling(context.Background(), errBoom))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, failedBySibling(cancelled, fmt.Errorf("exec: %w", context.Canceled)))
	assert.False(t, failedBySibling(cancelled, errBoom))
	assert.False(t, failedBySibling(context.Background(), context.Canceled))
}

func TestBulkUpsert_MalformedPayload(t *testing.T) {
	s := newTestStack(t)
	uc := newReconciler(s, nil, 10)

	posts := testPosts(0, 2)
	posts[1].TikTokID = "not-numeric"
	posts[1].ContentType = "story"
	profile := testProfile()
	profile.Handle = ""

	_, err := uc.BulkUpsert(context.Background(), profile, posts, entity.UpsertOptions{})
	require.Error(t, err)
	assert.Equal(t, entity.ErrKindMalformedPayload, entity.KindOf(err))

	var ie *entity.IngestError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, ie.Reasons, "profile.Handle: failed required")
	assert.Contains(t, ie.Reasons, "posts[1].TikTokID: failed numeric")
	assert.Contains(t, ie.Reasons, "posts[1].ContentType: failed oneof=video photo")
	assert.Equal(t, 0, s.fetcher.totalCalls())
}

func TestBulkUpsert_ForceRecacheRefetchesKnownPosts(t *testing.T) {
	s := newTestStack(t)
	uc := newReconciler(s, nil, 10)
	ctx := context.Background()
	posts := testPosts(0, 2)

	_, err := uc.BulkUpsert(ctx, testProfile(), posts, entity.UpsertOptions{})
	require.NoError(t, err)
	before := storedPosts(t, s, "creator")
	video := posts[0].VideoURL
	require.Equal(t, 1, s.fetcher.callsFor(video))

	result, err := uc.BulkUpsert(ctx, testProfile(), posts, entity.UpsertOptions{ForceRecache: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stats.PostsUpdated)
	assert.Equal(t, 2, s.fetcher.callsFor(video))
	assert.Equal(t, 2, s.fetcher.callsFor(testProfile().Avatar))

	videoIDs := make(map[string]string)
	for _, p := range before {
		videoIDs[p.TikTokID] = *p.VideoID
	}
	after := storedPosts(t, s, "creator")
	require.Len(t, after, 2)
	for _, p := range after {
		assert.Equal(t, videoIDs[p.TikTokID], *p.VideoID)
	}
}

func TestBulkUpsert_SanitizesAndDerivesTags(t *testing.T) {
	s := newTestStack(t)
	uc := newReconciler(s, nil, 10)

	post := testPost("7301", 1)
	post.Title = "hello\x00 world\\u"
	post.Description = "summer #Beach #fyp with @friend\x07"
	post.Hashtags = []models.Hashtag{{Text: "#fyp", URL: "https://www.tiktok.com/tag/fyp"}}
	post.Mentions = []string{"@Friend", " "}
	profile := testProfile()
	profile.Nickname = "Nick\x1b"

	_, err := uc.BulkUpsert(context.Background(), profile, []models.PostData{post}, entity.UpsertOptions{})
	require.NoError(t, err)

	stored := storedPosts(t, s, "creator")
	require.Len(t, stored, 1)
	assert.Equal(t, "hello world", stored[0].Title)
	assert.Equal(t, "summer #Beach #fyp with @friend", stored[0].Description)
	assert.Equal(t, []models.Hashtag{
		{Text: "fyp", URL: "https://www.tiktok.com/tag/fyp"},
		{Text: "beach", URL: "https://www.tiktok.com/tag/beach"},
	}, stored[0].Hashtags)
	assert.Equal(t, []string{"Friend"}, stored[0].Mentions)

	p, err := s.ingest.GetProfileByHandle(context.Background(), "creator")
	require.NoError(t, err)
	assert.Equal(t, "Nick", p.Nickname)
}

func TestBulkUpsert_AuthorAvatarSharesProfileAvatar(t *testing.T) {
	s := newTestStack(t)
	uc := newReconciler(s, nil, 10)

	_, err := uc.BulkUpsert(context.Background(), testProfile(), testPosts(0, 3), entity.UpsertOptions{})
	require.NoError(t, err)

	profile, err := s.ingest.GetProfileByHandle(context.Background(), "creator")
	require.NoError(t, err)
	require.NotNil(t, profile.AvatarID)
	assert.Equal(t, 1, s.fetcher.callsFor(testProfile().Avatar))
	for _, p := range storedPosts(t, s, "creator") {
		require.NotNil(t, p.AuthorAvatarID)
		assert.Equal(t, *profile.AvatarID, *p.AuthorAvatarID)
	}
}

// cancelAfterCommit cancels the run once the first batch transaction has committed.
type cancelAfterCommit struct {
	persistent.IngestRepository
	cancel context.CancelFunc
}

func (r *cancelAfterCommit) InTransaction(ctx context.Context, fn func(tx persistent.PostWriter) error) error {
	err := r.IngestRepository.InTransaction(ctx, fn)
	r.cancel()
	return err
}

func TestBulkUpsert_CancelBetweenBatchesKeepsCommitted(t *testing.T) {
	s := newTestStack(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := &cancelAfterCommit{IngestRepository: s.ingest, cancel: cancel}
	uc := NewBulkUpsertUseCase(repo, s.media, nil, quietLogger(), 2, time.Second)

	_, err := uc.BulkUpsert(ctx, testProfile(), testPosts(0, 6), entity.UpsertOptions{})
	require.ErrorIs(t, err, context.Canceled)

	assert.Len(t, storedPosts(t, s, "creator"), 2)
	profile, err := s.ingest.GetProfileByHandle(context.Background(), "creator")
	require.NoError(t, err)
	assert.Equal(t, int64(2), profile.TotalPosts)
}

func TestChunk(t *testing.T) {
	posts := make([]*pendingPost, 7)
	batches := chunk(posts, 3)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[2], 1)
	assert.Empty(t, chunk(nil, 3))
}
