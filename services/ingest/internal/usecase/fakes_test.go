package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"tok-ingest/pkg/fetcher"
	"tok-ingest/pkg/logger"
	"tok-ingest/services/ingest/internal/repo/persistent"
	"tok-ingest/services/ingest/internal/repo/persistent/persistenttest"

	"gorm.io/gorm"
)

type fakeBlobStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	presignErr error
	uploadErr  error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (s *fakeBlobStore) ObjectKey(folder, name string) string {
	return "test/" + folder + "/" + name
}

func (s *fakeBlobStore) Upload(_ context.Context, key string, body []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.objects[key] = body
	return nil
}

func (s *fakeBlobStore) PresignURL(key string, ttl time.Duration) (string, error) {
	if s.presignErr != nil {
		return "", s.presignErr
	}
	return fmt.Sprintf("https://signed.example/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (s *fakeBlobStore) PublicURL(key string) string {
	return "https://public.example/" + key
}

func (s *fakeBlobStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// fakeFetcher serves every url except the ones marked as failing and counts fetches.
type fakeFetcher struct {
	mu      sync.Mutex
	failing map[string]bool
	calls   map[string]int
	delay   time.Duration
}

func newFakeFetcher(failing ...string) *fakeFetcher {
	f := &fakeFetcher{failing: make(map[string]bool), calls: make(map[string]int)}
	for _, u := range failing {
		f.failing[u] = true
	}
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (*fetcher.Media, error) {
	f.mu.Lock()
	f.calls[rawURL]++
	failing := f.failing[rawURL]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if failing {
		return nil, &fetcher.StatusError{URL: rawURL, StatusCode: 404}
	}
	return &fetcher.Media{Body: []byte("bytes of " + rawURL), ContentType: "image/jpeg", Extension: ".jpg"}, nil
}

func (f *fakeFetcher) fail(rawURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[rawURL] = true
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeFetcher) callsFor(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

var errBoom = errors.New("boom")

func quietLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, io.Discard)
}

type testStack struct {
	db      *gorm.DB
	assets  persistent.CacheAssetRepository
	ingest  persistent.IngestRepository
	blobs   *fakeBlobStore
	fetcher *fakeFetcher
	store   CacheAssetUseCase
	media   MediaCacheUseCase
}

func newTestStack(t *testing.T, failing ...string) *testStack {
	t.Helper()

	db := persistenttest.NewDB(t)
	s := &testStack{
		db:      db,
		assets:  persistent.NewCacheAssetRepository(db),
		ingest:  persistent.NewIngestRepository(db),
		blobs:   newFakeBlobStore(),
		fetcher: newFakeFetcher(failing...),
	}
	s.store = NewCacheAssetUseCase(s.assets, s.blobs, s.fetcher, quietLogger(), time.Hour, 4)
	s.media = NewMediaCacheUseCase(s.store, quietLogger())
	return s
}
