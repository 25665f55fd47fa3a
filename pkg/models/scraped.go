package models

import "time"

type ContentType string

const (
	ContentTypeVideo ContentType = "video"
	ContentTypePhoto ContentType = "photo"
)

// ProfileData is one account as returned by the scraping API.
type ProfileData struct {
	Handle   string `json:"handle" validate:"required,max=100"`
	Nickname string `json:"nickname,omitempty" validate:"max=200"`
	Avatar   string `json:"avatar,omitempty" validate:"omitempty,url"`
	Bio      string `json:"bio,omitempty"`
	Verified bool   `json:"verified,omitempty"`
}

type Hashtag struct {
	Text string `json:"text" validate:"required"`
	URL  string `json:"url,omitempty"`
}

type ImageData struct {
	URL    string `json:"url" validate:"required,url"`
	Width  int    `json:"width" validate:"gte=0"`
	Height int    `json:"height" validate:"gte=0"`
}

// PostData is one post as returned by the scraping API.
type PostData struct {
	TikTokID       string      `json:"tiktok_id" validate:"required,numeric"`
	TikTokURL      string      `json:"tiktok_url" validate:"required,url"`
	ContentType    ContentType `json:"content_type" validate:"required,oneof=video photo"`
	Title          string      `json:"title,omitempty"`
	Description    string      `json:"description,omitempty"`
	AuthorNickname string      `json:"author_nickname,omitempty"`
	AuthorHandle   string      `json:"author_handle" validate:"required"`
	AuthorAvatar   string      `json:"author_avatar,omitempty" validate:"omitempty,url"`
	Hashtags       []Hashtag   `json:"hashtags" validate:"dive"`
	Mentions       []string    `json:"mentions"`
	ViewCount      int64       `json:"view_count" validate:"gte=0"`
	LikeCount      int64       `json:"like_count" validate:"gte=0"`
	ShareCount     int64       `json:"share_count" validate:"gte=0"`
	CommentCount   int64       `json:"comment_count" validate:"gte=0"`
	SaveCount      int64       `json:"save_count" validate:"gte=0"`
	Duration       int         `json:"duration,omitempty" validate:"gte=0"`
	VideoURL       string      `json:"video_url,omitempty" validate:"omitempty,url"`
	CoverURL       string      `json:"cover_url,omitempty" validate:"omitempty,url"`
	MusicURL       string      `json:"music_url,omitempty" validate:"omitempty,url"`
	Images         []ImageData `json:"images" validate:"dive"`
	PublishedAt    time.Time   `json:"published_at" validate:"required"`
}

// PostsPage is one cursor page of a profile's posts.
type PostsPage struct {
	Posts     []PostData `json:"posts"`
	HasMore   bool       `json:"has_more"`
	MaxCursor string     `json:"max_cursor,omitempty"`
}
