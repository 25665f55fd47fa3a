package entity

import (
	"time"

	"tok-ingest/pkg/models"
)

type Post struct {
	ID             string             `json:"id"`
	TikTokID       string             `json:"tiktok_id"`
	ProfileID      string             `json:"profile_id"`
	TikTokURL      string             `json:"tiktok_url"`
	ContentType    models.ContentType `json:"content_type"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	AuthorNickname string             `json:"author_nickname"`
	AuthorHandle   string             `json:"author_handle"`
	Hashtags       []models.Hashtag   `json:"hashtags"`
	Mentions       []string           `json:"mentions"`
	ViewCount      int64              `json:"view_count"`
	LikeCount      int64              `json:"like_count"`
	ShareCount     int64              `json:"share_count"`
	CommentCount   int64              `json:"comment_count"`
	SaveCount      int64              `json:"save_count"`
	Duration       int                `json:"duration"`
	VideoID        *string            `json:"video_id,omitempty"`
	CoverID        *string            `json:"cover_id,omitempty"`
	MusicID        *string            `json:"music_id,omitempty"`
	AuthorAvatarID *string            `json:"author_avatar_id,omitempty"`
	Images         []PostImage        `json:"images"`
	PublishedAt    time.Time          `json:"published_at"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// PostImage is one carousel slide; order is the slice order.
type PostImage struct {
	CacheAssetID string `json:"cache_asset_id" validate:"required"`
	Width        int    `json:"width" validate:"gte=0"`
	Height       int    `json:"height" validate:"gte=0"`
}

// MediaRefs returns the stored media identifiers of the post as a cached-media result.
func (p *Post) MediaRefs() CachedMedia {
	images := make([]CachedImage, 0, len(p.Images))
	for _, img := range p.Images {
		id := img.CacheAssetID
		images = append(images, CachedImage{AssetID: &id, Width: img.Width, Height: img.Height})
	}
	return CachedMedia{
		Video:        FieldResult{AssetID: p.VideoID},
		Cover:        FieldResult{AssetID: p.CoverID},
		Music:        FieldResult{AssetID: p.MusicID},
		AuthorAvatar: FieldResult{AssetID: p.AuthorAvatarID},
		Images:       images,
	}
}
