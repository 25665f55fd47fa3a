package entity

import "time"

type CacheAssetStatus string

const (
	CacheStatusPending CacheAssetStatus = "PENDING"
	CacheStatusCached  CacheAssetStatus = "CACHED"
	CacheStatusFailed  CacheAssetStatus = "FAILED"
)

// CacheAsset is one durable copy of one external URL.
type CacheAsset struct {
	ID           string           `json:"id"`
	OriginalURL  string           `json:"original_url"`
	Folder       string           `json:"folder"`
	CacheKey     string           `json:"cache_key,omitempty"`
	Status       CacheAssetStatus `json:"status"`
	ContentType  string           `json:"content_type,omitempty"`
	FileSize     int64            `json:"file_size,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (a *CacheAsset) IsCached() bool {
	return a != nil && a.Status == CacheStatusCached && a.CacheKey != ""
}
