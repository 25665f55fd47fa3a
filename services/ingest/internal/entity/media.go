package entity

import "tok-ingest/pkg/models"

type MediaField string

const (
	MediaFieldVideo        MediaField = "video"
	MediaFieldCover        MediaField = "cover"
	MediaFieldMusic        MediaField = "music"
	MediaFieldImage        MediaField = "image"
	MediaFieldAuthorAvatar MediaField = "author_avatar"
	MediaFieldAvatar       MediaField = "avatar"
)

// PostMediaInput carries the raw media URLs of one post. Existing, when set,
// holds the post's stored asset ids so a forced re-cache rewrites them in place.
type PostMediaInput struct {
	TikTokID        string
	VideoURL        string
	CoverURL        string
	MusicURL        string
	AuthorAvatarURL string
	Images          []models.ImageData
	Existing        *CachedMedia
}

// FieldResult is the outcome of caching one media field. AssetID is nil when
// nothing usable was cached. Both are set when a re-cache failed and the
// previous copy was kept.
type FieldResult struct {
	AssetID *string     `json:"asset_id,omitempty"`
	Err     *CacheError `json:"error,omitempty"`
}

func (r FieldResult) OK() bool {
	return r.Err == nil && r.AssetID != nil
}

type CachedImage struct {
	AssetID *string     `json:"asset_id,omitempty"`
	Width   int         `json:"width"`
	Height  int         `json:"height"`
	Err     *CacheError `json:"error,omitempty"`
}

type CachedMedia struct {
	Video        FieldResult   `json:"video"`
	Cover        FieldResult   `json:"cover"`
	Music        FieldResult   `json:"music"`
	AuthorAvatar FieldResult   `json:"author_avatar"`
	Images       []CachedImage `json:"images"`
	Errors       []*CacheError `json:"errors,omitempty"`
}

func (m CachedMedia) VideoID() *string        { return m.Video.AssetID }
func (m CachedMedia) CoverID() *string        { return m.Cover.AssetID }
func (m CachedMedia) MusicID() *string        { return m.Music.AssetID }
func (m CachedMedia) AuthorAvatarID() *string { return m.AuthorAvatar.AssetID }

// PostImages keeps the slides that were cached, in their original order.
func (m CachedMedia) PostImages() []PostImage {
	out := make([]PostImage, 0, len(m.Images))
	for _, img := range m.Images {
		if img.AssetID == nil {
			continue
		}
		out = append(out, PostImage{CacheAssetID: *img.AssetID, Width: img.Width, Height: img.Height})
	}
	return out
}
