package persistent

import (
	"context"
	"errors"
	"fmt"

	"tok-ingest/services/ingest/internal/entity"
	"tok-ingest/services/ingest/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostWriter upserts posts inside one open transaction.
type PostWriter interface {
	UpsertPost(ctx context.Context, post *entity.Post) error
}

type IngestRepository interface {
	GetProfileByHandle(ctx context.Context, handle string) (*entity.Profile, error)
	UpsertProfile(ctx context.Context, profile *entity.Profile) (*entity.Profile, error)
	FindPostsByTikTokIDs(ctx context.Context, tiktokIDs []string) (map[string]*entity.Post, error)
	GetPostsByProfileID(ctx context.Context, profileID string) ([]*entity.Post, error)
	InTransaction(ctx context.Context, fn func(tx PostWriter) error) error
	RecomputeProfileAggregates(ctx context.Context, profileID string) (*entity.ProfileAggregates, error)
}

type ingestRepository struct {
	db *gorm.DB
}

func NewIngestRepository(db *gorm.DB) IngestRepository {
	return &ingestRepository{db: db}
}

var postUpdateColumns = []string{
	"profile_id",
	"tiktok_url",
	"content_type",
	"title",
	"description",
	"author_nickname",
	"author_handle",
	"hashtags",
	"mentions",
	"view_count",
	"like_count",
	"share_count",
	"comment_count",
	"save_count",
	"duration",
	"video_id",
	"cover_id",
	"music_id",
	"author_avatar_id",
	"images",
	"published_at",
	"updated_at",
}

func (r *ingestRepository) GetProfileByHandle(ctx context.Context, handle string) (*entity.Profile, error) {
	var profileModel model.ProfileModel
	if err := r.db.WithContext(ctx).Where("handle = ?", handle).First(&profileModel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("profile %s: %w", handle, entity.ErrNotFound)
		}
		return nil, err
	}
	return ToProfileEntity(&profileModel), nil
}

// UpsertProfile creates or updates the profile by handle in its own transaction.
// A nil avatar id leaves the stored avatar untouched. Aggregates are never written here.
func (r *ingestRepository) UpsertProfile(ctx context.Context, profile *entity.Profile) (*entity.Profile, error) {
	profileModel := ToProfileModel(profile)
	profileModel.TotalPosts, profileModel.TotalViews, profileModel.TotalLikes = 0, 0, 0
	profileModel.TotalShares, profileModel.TotalComments, profileModel.TotalSaves = 0, 0, 0

	updateColumns := []string{"nickname", "bio", "verified", "updated_at"}
	if profileModel.AvatarID != nil {
		updateColumns = append(updateColumns, "avatar_id")
	}

	var stored model.ProfileModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "handle"}},
			DoUpdates: clause.AssignmentColumns(updateColumns),
		}).Create(profileModel).Error; err != nil {
			return err
		}
		return tx.Where("handle = ?", profileModel.Handle).First(&stored).Error
	})
	if err != nil {
		return nil, err
	}
	return ToProfileEntity(&stored), nil
}

// FindPostsByTikTokIDs probes storage for every natural key in one query.
func (r *ingestRepository) FindPostsByTikTokIDs(ctx context.Context, tiktokIDs []string) (map[string]*entity.Post, error) {
	found := make(map[string]*entity.Post, len(tiktokIDs))
	if len(tiktokIDs) == 0 {
		return found, nil
	}

	var postModels []model.PostModel
	if err := r.db.WithContext(ctx).Where("tiktok_id IN ?", tiktokIDs).Find(&postModels).Error; err != nil {
		return nil, err
	}
	for i := range postModels {
		found[postModels[i].TikTokID] = ToPostEntity(&postModels[i])
	}
	return found, nil
}

func (r *ingestRepository) GetPostsByProfileID(ctx context.Context, profileID string) ([]*entity.Post, error) {
	var postModels []model.PostModel
	if err := r.db.WithContext(ctx).Where("profile_id = ?", profileID).Order("published_at DESC").Find(&postModels).Error; err != nil {
		return nil, err
	}

	posts := make([]*entity.Post, len(postModels))
	for i := range postModels {
		posts[i] = ToPostEntity(&postModels[i])
	}
	return posts, nil
}

// InTransaction runs fn in one transaction; any error from fn rolls back every write made through tx.
func (r *ingestRepository) InTransaction(ctx context.Context, fn func(tx PostWriter) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txPostWriter{tx: tx})
	})
}

// RecomputeProfileAggregates sums the stored posts of the profile and writes
// the totals onto the profile row.
func (r *ingestRepository) RecomputeProfileAggregates(ctx context.Context, profileID string) (*entity.ProfileAggregates, error) {
	var agg entity.ProfileAggregates
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.PostModel{}).
			Where("profile_id = ?", profileID).
			Select(`COUNT(*) AS total_posts,
				COALESCE(SUM(view_count), 0) AS total_views,
				COALESCE(SUM(like_count), 0) AS total_likes,
				COALESCE(SUM(share_count), 0) AS total_shares,
				COALESCE(SUM(comment_count), 0) AS total_comments,
				COALESCE(SUM(save_count), 0) AS total_saves`).
			Scan(&agg).Error; err != nil {
			return err
		}

		res := tx.Model(&model.ProfileModel{}).Where("id = ?", profileID).Updates(map[string]interface{}{
			"total_posts":    agg.TotalPosts,
			"total_views":    agg.TotalViews,
			"total_likes":    agg.TotalLikes,
			"total_shares":   agg.TotalShares,
			"total_comments": agg.TotalComments,
			"total_saves":    agg.TotalSaves,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("profile %s: %w", profileID, entity.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

type txPostWriter struct {
	tx *gorm.DB
}

func (w *txPostWriter) UpsertPost(ctx context.Context, post *entity.Post) error {
	postModel := ToPostModel(post)
	if err := w.tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tiktok_id"}},
		DoUpdates: clause.AssignmentColumns(postUpdateColumns),
	}).Create(postModel).Error; err != nil {
		return err
	}
	if post.ID == "" {
		post.ID = postModel.ID
	}
	return nil
}
