package persistent

import (
	"context"
	"errors"
	"fmt"

	"tok-ingest/services/ingest/internal/entity"
	"tok-ingest/services/ingest/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CacheAssetRepository interface {
	Create(ctx context.Context, asset *entity.CacheAsset) error
	MarkCached(ctx context.Context, id, cacheKey, contentType string, fileSize int64) (*entity.CacheAsset, error)
	MarkFailed(ctx context.Context, id, reason string) (*entity.CacheAsset, error)
	GetByID(ctx context.Context, id string) (*entity.CacheAsset, error)
	GetByIDOrKey(ctx context.Context, idOrKey string) (*entity.CacheAsset, error)
	GetByIDsOrKeys(ctx context.Context, idsOrKeys []string) (map[string]*entity.CacheAsset, error)
}

type cacheAssetRepository struct {
	db *gorm.DB
}

func NewCacheAssetRepository(db *gorm.DB) CacheAssetRepository {
	return &cacheAssetRepository{db: db}
}

func (r *cacheAssetRepository) Create(ctx context.Context, asset *entity.CacheAsset) error {
	assetModel := ToCacheAssetModel(asset)
	if err := r.db.WithContext(ctx).Create(assetModel).Error; err != nil {
		return err
	}
	*asset = *ToCacheAssetEntity(assetModel)
	return nil
}

// MarkCached is the only write path for cache_key.
func (r *cacheAssetRepository) MarkCached(ctx context.Context, id, cacheKey, contentType string, fileSize int64) (*entity.CacheAsset, error) {
	return r.transition(ctx, id, map[string]interface{}{
		"status":        string(entity.CacheStatusCached),
		"cache_key":     cacheKey,
		"content_type":  contentType,
		"file_size":     fileSize,
		"error_message": "",
	})
}

// MarkFailed keeps an existing cache_key so a failed re-cache still resolves to the previous copy.
func (r *cacheAssetRepository) MarkFailed(ctx context.Context, id, reason string) (*entity.CacheAsset, error) {
	return r.transition(ctx, id, map[string]interface{}{
		"status":        string(entity.CacheStatusFailed),
		"error_message": reason,
	})
}

func (r *cacheAssetRepository) transition(ctx context.Context, id string, updates map[string]interface{}) (*entity.CacheAsset, error) {
	var assetModel model.CacheAssetModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.CacheAssetModel{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("cache asset %s: %w", id, entity.ErrNotFound)
		}
		return tx.Where("id = ?", id).First(&assetModel).Error
	})
	if err != nil {
		return nil, err
	}
	return ToCacheAssetEntity(&assetModel), nil
}

func (r *cacheAssetRepository) GetByID(ctx context.Context, id string) (*entity.CacheAsset, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("cache asset %s: %w", id, entity.ErrNotFound)
	}

	var assetModel model.CacheAssetModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&assetModel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("cache asset %s: %w", id, entity.ErrNotFound)
		}
		return nil, err
	}
	return ToCacheAssetEntity(&assetModel), nil
}

// GetByIDOrKey accepts either an asset id or a storage key.
func (r *cacheAssetRepository) GetByIDOrKey(ctx context.Context, idOrKey string) (*entity.CacheAsset, error) {
	found, err := r.GetByIDsOrKeys(ctx, []string{idOrKey})
	if err != nil {
		return nil, err
	}
	asset, ok := found[idOrKey]
	if !ok {
		return nil, fmt.Errorf("cache asset %s: %w", idOrKey, entity.ErrNotFound)
	}
	return asset, nil
}

// GetByIDsOrKeys resolves every input with at most two queries and indexes
// the result by the input string that matched.
func (r *cacheAssetRepository) GetByIDsOrKeys(ctx context.Context, idsOrKeys []string) (map[string]*entity.CacheAsset, error) {
	var ids, keys []string
	for _, v := range idsOrKeys {
		if v == "" {
			continue
		}
		// Postgres rejects non-uuid literals against a uuid column.
		if _, err := uuid.Parse(v); err == nil {
			ids = append(ids, v)
		} else {
			keys = append(keys, v)
		}
	}

	found := make(map[string]*entity.CacheAsset, len(idsOrKeys))
	if len(ids) > 0 {
		var byID []model.CacheAssetModel
		if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&byID).Error; err != nil {
			return nil, err
		}
		for i := range byID {
			found[byID[i].ID] = ToCacheAssetEntity(&byID[i])
		}
	}
	if len(keys) > 0 {
		var byKey []model.CacheAssetModel
		if err := r.db.WithContext(ctx).Where("cache_key IN ?", keys).Find(&byKey).Error; err != nil {
			return nil, err
		}
		for i := range byKey {
			if byKey[i].CacheKey != nil {
				found[*byKey[i].CacheKey] = ToCacheAssetEntity(&byKey[i])
			}
		}
	}
	return found, nil
}
