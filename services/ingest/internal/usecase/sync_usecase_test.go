package usecase

import (
	"context"
	"fmt"
	"testing"

	"tok-ingest/pkg/config"
	"tok-ingest/pkg/models"
	"tok-ingest/services/ingest/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProfileScraper struct {
	mock.Mock
}

func (m *MockProfileScraper) GetProfile(ctx context.Context, handle string) (*models.ProfileData, error) {
	args := m.Called(handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProfileData), args.Error(1)
}

func (m *MockProfileScraper) GetPosts(ctx context.Context, handle, cursor string) (*models.PostsPage, error) {
	args := m.Called(handle, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PostsPage), args.Error(1)
}

var _ ProfileScraper = (*MockProfileScraper)(nil)

func newSyncStack(t *testing.T) (*testStack, *MockProfileScraper, SyncUseCase) {
	s := newTestStack(t)
	scraper := new(MockProfileScraper)
	profile := testProfile()
	scraper.On("GetProfile", "creator").Return(&profile, nil)
	return s, scraper, NewSyncUseCase(scraper, newReconciler(s, nil, 3), s.ingest, quietLogger())
}

func TestSyncProfile_WalksAllPages(t *testing.T) {
	s, scraper, uc := newSyncStack(t)
	scraper.On("GetPosts", "creator", "").Return(&models.PostsPage{Posts: testPosts(0, 4), HasMore: true, MaxCursor: "c1"}, nil)
	scraper.On("GetPosts", "creator", "c1").Return(&models.PostsPage{Posts: testPosts(4, 4), HasMore: true, MaxCursor: "c2"}, nil)
	scraper.On("GetPosts", "creator", "c2").Return(&models.PostsPage{Posts: testPosts(8, 2), HasMore: false}, nil)

	result, err := uc.SyncProfile(context.Background(), "@creator", entity.SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, 10, result.PostsCreated)
	assert.Equal(t, 0, result.PostsUpdated)
	assert.Equal(t, 10, result.TotalPosts)
	assert.Equal(t, "c2", result.LastCursor)
	require.NotNil(t, result.Profile)
	assert.Equal(t, int64(10), result.Profile.TotalPosts)
	assert.Equal(t, result.ProfileID, result.Profile.ID)
	assert.Len(t, storedPosts(t, s, "creator"), 10)
	scraper.AssertExpectations(t)
}

func TestSyncProfile_MaxPages(t *testing.T) {
	_, scraper, uc := newSyncStack(t)
	scraper.On("GetPosts", "creator", "").Return(&models.PostsPage{Posts: testPosts(0, 2), HasMore: true, MaxCursor: "c1"}, nil)
	scraper.On("GetPosts", "creator", "c1").Return(&models.PostsPage{Posts: testPosts(2, 2), HasMore: true, MaxCursor: "c2"}, nil)

	result, err := uc.SyncProfile(context.Background(), "creator", entity.SyncOptions{MaxPages: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 4, result.PostsCreated)
	scraper.AssertNotCalled(t, "GetPosts", "creator", "c2")
}

func TestSyncProfile_StopsWhenCursorDoesNotAdvance(t *testing.T) {
	_, scraper, uc := newSyncStack(t)
	scraper.On("GetPosts", "creator", "").Return(&models.PostsPage{Posts: testPosts(0, 1), HasMore: true, MaxCursor: "c1"}, nil)
	scraper.On("GetPosts", "creator", "c1").Return(&models.PostsPage{Posts: testPosts(1, 1), HasMore: true, MaxCursor: "c1"}, nil).Once()

	result, err := uc.SyncProfile(context.Background(), "creator", entity.SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 2, result.PostsCreated)
	scraper.AssertExpectations(t)
}

func TestSyncProfile_ResyncUpdates(t *testing.T) {
	_, scraper, uc := newSyncStack(t)
	scraper.On("GetPosts", "creator", "").Return(&models.PostsPage{Posts: testPosts(0, 3)}, nil)

	_, err := uc.SyncProfile(context.Background(), "creator", entity.SyncOptions{})
	require.NoError(t, err)
	result, err := uc.SyncProfile(context.Background(), "creator", entity.SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.PostsCreated)
	assert.Equal(t, 3, result.PostsUpdated)
}

func TestSyncProfile_MalformedPageStopsSync(t *testing.T) {
	s, scraper, uc := newSyncStack(t)
	scraper.On("GetPosts", "creator", "").Return(&models.PostsPage{Posts: testPosts(0, 2), HasMore: true, MaxCursor: "c1"}, nil)
	scraper.On("GetPosts", "creator", "c1").Return(nil, &models.ValidationError{Subject: "posts page", Reasons: []string{"posts[0].TikTokID: failed required"}})

	result, err := uc.SyncProfile(context.Background(), "creator", entity.SyncOptions{})
	require.Error(t, err)
	assert.Equal(t, entity.ErrKindMalformedPayload, entity.KindOf(err))
	assert.Contains(t, err.Error(), "posts[0].TikTokID: failed required")
	assert.Equal(t, 1, result.Pages)
	assert.Len(t, storedPosts(t, s, "creator"), 2)
}

func TestSyncProfile_ScraperErrors(t *testing.T) {
	s := newTestStack(t)
	scraper := new(MockProfileScraper)
	scraper.On("GetProfile", "nokey").Return(nil, fmt.Errorf("scraper: %w", config.ErrMissingScrapeAPIKey))
	scraper.On("GetProfile", "down").Return(nil, fmt.Errorf("scraper: status 502"))
	uc := NewSyncUseCase(scraper, newReconciler(s, nil, 3), s.ingest, quietLogger())

	_, err := uc.SyncProfile(context.Background(), "nokey", entity.SyncOptions{})
	assert.Equal(t, entity.ErrKindConfig, entity.KindOf(err))
	assert.ErrorIs(t, err, config.ErrMissingScrapeAPIKey)

	_, err = uc.SyncProfile(context.Background(), "down", entity.SyncOptions{})
	assert.Equal(t, entity.ErrKindTransientFetch, entity.KindOf(err))

	_, err = uc.SyncProfile(context.Background(), " @ ", entity.SyncOptions{})
	assert.Equal(t, entity.ErrKindMalformedPayload, entity.KindOf(err))
}
