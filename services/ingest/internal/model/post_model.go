package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PostModel struct {
	ID             string         `gorm:"type:uuid;primary_key" json:"id"`
	TikTokID       string         `gorm:"column:tiktok_id;type:varchar(64);uniqueIndex;not null" json:"tiktok_id"`
	ProfileID      string         `gorm:"type:uuid;not null;index" json:"profile_id"`
	TikTokURL      string         `gorm:"column:tiktok_url;type:varchar(500);not null" json:"tiktok_url"`
	ContentType    string         `gorm:"type:varchar(10);not null" json:"content_type"`
	Title          string         `gorm:"type:text" json:"title"`
	Description    string         `gorm:"type:text" json:"description"`
	AuthorNickname string         `gorm:"type:varchar(255)" json:"author_nickname"`
	AuthorHandle   string         `gorm:"type:varchar(100)" json:"author_handle"`
	Hashtags       datatypes.JSON `json:"hashtags"`
	Mentions       datatypes.JSON `json:"mentions"`
	ViewCount      int64          `gorm:"default:0" json:"view_count"`
	LikeCount      int64          `gorm:"default:0" json:"like_count"`
	ShareCount     int64          `gorm:"default:0" json:"share_count"`
	CommentCount   int64          `gorm:"default:0" json:"comment_count"`
	SaveCount      int64          `gorm:"default:0" json:"save_count"`
	Duration       int            `gorm:"default:0" json:"duration"`
	VideoID        *string        `gorm:"type:uuid" json:"video_id"`
	CoverID        *string        `gorm:"type:uuid" json:"cover_id"`
	MusicID        *string        `gorm:"type:uuid" json:"music_id"`
	AuthorAvatarID *string        `gorm:"type:uuid" json:"author_avatar_id"`
	Images         datatypes.JSON `json:"images"`
	PublishedAt    time.Time      `gorm:"index" json:"published_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (PostModel) TableName() string {
	return "posts"
}

func (p *PostModel) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
