// Package scraper talks to the upstream TikTok scraping API and returns
// validated profile and post pages.
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"tok-ingest/pkg/cache"
	"tok-ingest/pkg/config"
	"tok-ingest/pkg/logger"
	"tok-ingest/pkg/models"
)

const (
	ProfileEndpoint = "/v1/tiktok/profile"
	VideosEndpoint  = "/v3/tiktok/profile/videos"

	DefaultProfileTTL = time.Hour
	DefaultPostsTTL   = 15 * time.Minute

	maxTitleRunes = 100
	maxBodyBytes  = 16 << 20
)

var (
	ErrRateLimited = errors.New("scraper: rate limited")
	ErrNotFound    = errors.New("scraper: not found")
)

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scraper: %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cache      *cache.QueryCache
	logger     *logger.Logger
	profileTTL time.Duration
	postsTTL   time.Duration
}

func defaultTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
}

// NewClient builds a client from cfg. queryCache may be nil to disable the lookaside cache.
func NewClient(cfg *config.Config, queryCache *cache.QueryCache, log *logger.Logger) *Client {
	timeout := cfg.ScrapeAPITimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: defaultTransport(),
		},
		baseURL:    strings.TrimRight(cfg.ScrapeAPIBaseURL, "/"),
		apiKey:     cfg.ScrapeAPIKey,
		cache:      queryCache,
		logger:     log,
		profileTTL: DefaultProfileTTL,
		postsTTL:   DefaultPostsTTL,
	}
}

// GetProfile returns the profile of handle, served from the lookaside cache when fresh.
func (c *Client) GetProfile(ctx context.Context, handle string) (*models.ProfileData, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("scraper: get profile %s: %w", handle, config.ErrMissingScrapeAPIKey)
	}

	params := map[string]string{"handle": handle}
	var cached models.ProfileData
	if c.cache.Get(ctx, ProfileEndpoint, params, &cached) {
		return &cached, nil
	}

	var raw profileResponse
	if err := c.get(ctx, ProfileEndpoint, params, &raw); err != nil {
		return nil, err
	}

	profile := toProfile(handle, raw.User)
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	c.cache.Put(ctx, ProfileEndpoint, profile, c.profileTTL, params)
	return profile, nil
}

// GetPosts returns one page of handle's posts starting at cursor ("" for the newest).
func (c *Client) GetPosts(ctx context.Context, handle, cursor string) (*models.PostsPage, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("scraper: get posts %s: %w", handle, config.ErrMissingScrapeAPIKey)
	}

	params := map[string]string{"handle": handle}
	if cursor != "" {
		params["max_cursor"] = cursor
	}
	var cached models.PostsPage
	if c.cache.Get(ctx, VideosEndpoint, params, &cached) {
		return &cached, nil
	}

	var raw videosResponse
	if err := c.get(ctx, VideosEndpoint, params, &raw); err != nil {
		return nil, err
	}

	page := &models.PostsPage{
		Posts:     make([]models.PostData, 0, len(raw.AwemeList)),
		HasMore:   bool(raw.HasMore),
		MaxCursor: string(raw.MaxCursor),
	}
	for i := range raw.AwemeList {
		page.Posts = append(page.Posts, toPost(handle, &raw.AwemeList[i]))
	}
	if err := page.Validate(); err != nil {
		return nil, err
	}

	c.cache.Put(ctx, VideosEndpoint, page, c.postsTTL, params)
	return page, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params map[string]string, dest interface{}) error {
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("scraper: build request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("scraper: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("scraper: read %s: %w", endpoint, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, endpoint)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %v", ErrNotFound, endpoint, params)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return &models.ValidationError{Subject: endpoint + " response", Reasons: []string{"body: " + err.Error()}}
	}

	c.logger.Info("[SCRAPER] GET %s %v in %s", endpoint, params, time.Since(start).Round(time.Millisecond))
	return nil
}

func toProfile(handle string, u rawUser) *models.ProfileData {
	profile := &models.ProfileData{
		Handle:   u.UniqueID,
		Nickname: u.Nickname,
		Avatar:   u.AvatarLarger,
		Bio:      u.Signature,
		Verified: u.Verified,
	}
	if profile.Handle == "" {
		profile.Handle = handle
	}
	if profile.Avatar == "" {
		profile.Avatar = u.AvatarMedium
	}
	return profile
}

func toPost(handle string, a *rawAweme) models.PostData {
	author := a.Author.UniqueID
	if author == "" {
		author = handle
	}

	post := models.PostData{
		TikTokID:       a.AwemeID,
		TikTokURL:      a.ShareURL,
		ContentType:    models.ContentTypeVideo,
		Title:          titleOf(a.Desc),
		Description:    a.Desc,
		AuthorNickname: a.Author.Nickname,
		AuthorHandle:   author,
		AuthorAvatar:   a.Author.AvatarMedium.first(),
		Hashtags:       []models.Hashtag{},
		Mentions:       []string{},
		ViewCount:      a.Statistics.PlayCount,
		LikeCount:      a.Statistics.DiggCount,
		ShareCount:     a.Statistics.ShareCount,
		CommentCount:   a.Statistics.CommentCount,
		SaveCount:      a.Statistics.CollectCount,
		CoverURL:       a.Video.Cover.first(),
		MusicURL:       a.Music.PlayURL.first(),
		Images:         []models.ImageData{},
		PublishedAt:    time.Unix(a.CreateTime, 0).UTC(),
	}
	if post.AuthorAvatar == "" {
		post.AuthorAvatar = a.Author.AvatarThumb.first()
	}

	kind := "video"
	if a.ImagePostInfo != nil && len(a.ImagePostInfo.Images) > 0 {
		kind = "photo"
		post.ContentType = models.ContentTypePhoto
		for _, img := range a.ImagePostInfo.Images {
			post.Images = append(post.Images, models.ImageData{
				URL:    img.DisplayImage.first(),
				Width:  img.DisplayImage.Width,
				Height: img.DisplayImage.Height,
			})
		}
	} else {
		post.VideoURL = a.Video.PlayAddr.first()
		// The API reports milliseconds.
		post.Duration = a.Video.Duration / 1000
	}
	if post.TikTokURL == "" || strings.Contains(post.TikTokURL, "?") {
		post.TikTokURL = fmt.Sprintf("https://www.tiktok.com/@%s/%s/%s", author, kind, a.AwemeID)
	}

	for _, extra := range a.TextExtra {
		switch {
		case extra.HashtagName != "":
			post.Hashtags = append(post.Hashtags, models.Hashtag{
				Text: extra.HashtagName,
				URL:  "https://www.tiktok.com/tag/" + url.PathEscape(extra.HashtagName),
			})
		case extra.UserUniqueID != "":
			post.Mentions = append(post.Mentions, extra.UserUniqueID)
		}
	}
	return post
}

// titleOf is the first line of desc, cut to maxTitleRunes.
func titleOf(desc string) string {
	title := strings.TrimSpace(strings.SplitN(desc, "\n", 2)[0])
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	return string([]rune(title)[:maxTitleRunes])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
