package persistent

import (
	"bytes"
	"encoding/json"

	"tok-ingest/pkg/models"
	"tok-ingest/pkg/sanitize"
	"tok-ingest/services/ingest/internal/entity"
	"tok-ingest/services/ingest/internal/model"

	"gorm.io/datatypes"
)

func ToCacheAssetEntity(m *model.CacheAssetModel) *entity.CacheAsset {
	if m == nil {
		return nil
	}

	asset := &entity.CacheAsset{
		ID:           m.ID,
		OriginalURL:  m.OriginalURL,
		Folder:       m.Folder,
		Status:       entity.CacheAssetStatus(m.Status),
		ContentType:  m.ContentType,
		FileSize:     m.FileSize,
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.CacheKey != nil {
		asset.CacheKey = *m.CacheKey
	}
	return asset
}

func ToCacheAssetModel(e *entity.CacheAsset) *model.CacheAssetModel {
	if e == nil {
		return nil
	}

	m := &model.CacheAssetModel{
		ID:           e.ID,
		OriginalURL:  e.OriginalURL,
		Folder:       e.Folder,
		Status:       string(e.Status),
		ContentType:  e.ContentType,
		FileSize:     e.FileSize,
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
	if e.CacheKey != "" {
		key := e.CacheKey
		m.CacheKey = &key
	}
	return m
}

func ToProfileEntity(m *model.ProfileModel) *entity.Profile {
	if m == nil {
		return nil
	}

	return &entity.Profile{
		ID:            m.ID,
		Handle:        m.Handle,
		Nickname:      m.Nickname,
		Bio:           m.Bio,
		Verified:      m.Verified,
		AvatarID:      m.AvatarID,
		TotalPosts:    m.TotalPosts,
		TotalViews:    m.TotalViews,
		TotalLikes:    m.TotalLikes,
		TotalShares:   m.TotalShares,
		TotalComments: m.TotalComments,
		TotalSaves:    m.TotalSaves,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func ToProfileModel(e *entity.Profile) *model.ProfileModel {
	if e == nil {
		return nil
	}

	return &model.ProfileModel{
		ID:            e.ID,
		Handle:        e.Handle,
		Nickname:      e.Nickname,
		Bio:           e.Bio,
		Verified:      e.Verified,
		AvatarID:      e.AvatarID,
		TotalPosts:    e.TotalPosts,
		TotalViews:    e.TotalViews,
		TotalLikes:    e.TotalLikes,
		TotalShares:   e.TotalShares,
		TotalComments: e.TotalComments,
		TotalSaves:    e.TotalSaves,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func ToPostEntity(m *model.PostModel) *entity.Post {
	if m == nil {
		return nil
	}

	return &entity.Post{
		ID:             m.ID,
		TikTokID:       m.TikTokID,
		ProfileID:      m.ProfileID,
		TikTokURL:      m.TikTokURL,
		ContentType:    models.ContentType(m.ContentType),
		Title:          m.Title,
		Description:    m.Description,
		AuthorNickname: m.AuthorNickname,
		AuthorHandle:   m.AuthorHandle,
		Hashtags:       DecodeHashtags(m.Hashtags),
		Mentions:       DecodeMentions(m.Mentions),
		ViewCount:      m.ViewCount,
		LikeCount:      m.LikeCount,
		ShareCount:     m.ShareCount,
		CommentCount:   m.CommentCount,
		SaveCount:      m.SaveCount,
		Duration:       m.Duration,
		VideoID:        m.VideoID,
		CoverID:        m.CoverID,
		MusicID:        m.MusicID,
		AuthorAvatarID: m.AuthorAvatarID,
		Images:         DecodeImages(m.Images),
		PublishedAt:    m.PublishedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func ToPostModel(e *entity.Post) *model.PostModel {
	if e == nil {
		return nil
	}

	return &model.PostModel{
		ID:             e.ID,
		TikTokID:       e.TikTokID,
		ProfileID:      e.ProfileID,
		TikTokURL:      e.TikTokURL,
		ContentType:    string(e.ContentType),
		Title:          e.Title,
		Description:    e.Description,
		AuthorNickname: e.AuthorNickname,
		AuthorHandle:   e.AuthorHandle,
		Hashtags:       EncodeList(e.Hashtags),
		Mentions:       EncodeList(e.Mentions),
		ViewCount:      e.ViewCount,
		LikeCount:      e.LikeCount,
		ShareCount:     e.ShareCount,
		CommentCount:   e.CommentCount,
		SaveCount:      e.SaveCount,
		Duration:       e.Duration,
		VideoID:        e.VideoID,
		CoverID:        e.CoverID,
		MusicID:        e.MusicID,
		AuthorAvatarID: e.AuthorAvatarID,
		Images:         EncodeList(e.Images),
		PublishedAt:    e.PublishedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// EncodeList is the write boundary of the JSON list columns; it never fails.
func EncodeList(v interface{}) datatypes.JSON {
	return datatypes.JSON(sanitize.JSON(v))
}

// DecodeHashtags is the read boundary of posts.hashtags. Malformed columns and
// entries without text decode to nothing.
func DecodeHashtags(raw datatypes.JSON) []models.Hashtag {
	var tags []models.Hashtag
	if !decodeStrict(raw, &tags) {
		return []models.Hashtag{}
	}
	out := make([]models.Hashtag, 0, len(tags))
	for _, tag := range tags {
		if tag.Text != "" {
			out = append(out, tag)
		}
	}
	return out
}

func DecodeMentions(raw datatypes.JSON) []string {
	var mentions []string
	if !decodeStrict(raw, &mentions) || mentions == nil {
		return []string{}
	}
	return mentions
}

// DecodeImages is the read boundary of posts.images. Entries without an asset
// id or with negative dimensions are dropped.
func DecodeImages(raw datatypes.JSON) []entity.PostImage {
	var images []entity.PostImage
	if !decodeStrict(raw, &images) {
		return []entity.PostImage{}
	}
	out := make([]entity.PostImage, 0, len(images))
	for _, img := range images {
		if img.CacheAssetID == "" || img.Width < 0 || img.Height < 0 {
			continue
		}
		out = append(out, img)
	}
	return out
}

func decodeStrict(raw datatypes.JSON, dest interface{}) bool {
	if len(raw) == 0 {
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dest) == nil
}
