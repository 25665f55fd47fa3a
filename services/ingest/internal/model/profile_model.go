package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProfileModel struct {
	ID            string    `gorm:"type:uuid;primary_key" json:"id"`
	Handle        string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"handle"`
	Nickname      string    `gorm:"type:varchar(255)" json:"nickname"`
	Bio           string    `gorm:"type:text" json:"bio"`
	Verified      bool      `gorm:"default:false" json:"verified"`
	AvatarID      *string   `gorm:"type:uuid" json:"avatar_id"`
	TotalPosts    int64     `gorm:"default:0" json:"total_posts"`
	TotalViews    int64     `gorm:"default:0" json:"total_views"`
	TotalLikes    int64     `gorm:"default:0" json:"total_likes"`
	TotalShares   int64     `gorm:"default:0" json:"total_shares"`
	TotalComments int64     `gorm:"default:0" json:"total_comments"`
	TotalSaves    int64     `gorm:"default:0" json:"total_saves"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (ProfileModel) TableName() string {
	return "profiles"
}

func (p *ProfileModel) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
