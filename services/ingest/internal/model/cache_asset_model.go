package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CacheAssetModel struct {
	ID           string    `gorm:"type:uuid;primary_key" json:"id"`
	OriginalURL  string    `gorm:"type:text;not null;index" json:"original_url"`
	Folder       string    `gorm:"type:varchar(255);not null" json:"folder"`
	CacheKey     *string   `gorm:"type:varchar(1024);uniqueIndex" json:"cache_key"`
	Status       string    `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	ContentType  string    `gorm:"type:varchar(255)" json:"content_type"`
	FileSize     int64     `gorm:"default:0" json:"file_size"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (CacheAssetModel) TableName() string {
	return "cache_assets"
}

func (a *CacheAssetModel) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}
