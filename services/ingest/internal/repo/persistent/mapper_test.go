package persistent

import (
	"testing"

	"tok-ingest/pkg/models"
	"tok-ingest/services/ingest/internal/entity"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestDecodeImages(t *testing.T) {
	raw := datatypes.JSON(`[{"cache_asset_id":"a","width":1,"height":2},{"cache_asset_id":"","width":1,"height":1},{"cache_asset_id":"b","width":-1,"height":1}]`)
	assert.Equal(t, []entity.PostImage{{CacheAssetID: "a", Width: 1, Height: 2}}, DecodeImages(raw))
}

func TestDecodeRejectsUnexpectedShapes(t *testing.T) {
	assert.Equal(t, []entity.PostImage{}, DecodeImages(datatypes.JSON(`"not a list"`)))
	assert.Equal(t, []entity.PostImage{}, DecodeImages(datatypes.JSON(`[{"url":"x"}]`)))
	assert.Equal(t, []entity.PostImage{}, DecodeImages(nil))
	assert.Equal(t, []models.Hashtag{}, DecodeHashtags(datatypes.JSON(`{"text":"x"}`)))
	assert.Equal(t, []string{}, DecodeMentions(datatypes.JSON(`null`)))
}

func TestDecodeHashtagsDropsEmpty(t *testing.T) {
	raw := datatypes.JSON(`[{"text":"fyp","url":"https://www.tiktok.com/tag/fyp"},{"text":""}]`)
	assert.Equal(t, []models.Hashtag{{Text: "fyp", URL: "https://www.tiktok.com/tag/fyp"}}, DecodeHashtags(raw))
}

func TestEncodeListFallsBackToEmpty(t *testing.T) {
	assert.Equal(t, datatypes.JSON("[]"), EncodeList([]string(nil)))
	assert.JSONEq(t, `["a"]`, string(EncodeList([]string{"a"})))
}

func TestPostMapperRoundTrip(t *testing.T) {
	cover := "cover-id"
	post := &entity.Post{
		ID:          "p1",
		TikTokID:    "7301",
		ContentType: models.ContentTypePhoto,
		CoverID:     &cover,
		Hashtags:    []models.Hashtag{{Text: "art"}},
		Mentions:    []string{"carol"},
		Images:      []entity.PostImage{{CacheAssetID: "i1", Width: 10, Height: 20}},
	}
	back := ToPostEntity(ToPostModel(post))
	assert.Equal(t, post.TikTokID, back.TikTokID)
	assert.Equal(t, post.ContentType, back.ContentType)
	assert.Equal(t, post.CoverID, back.CoverID)
	assert.Equal(t, post.Hashtags, back.Hashtags)
	assert.Equal(t, post.Mentions, back.Mentions)
	assert.Equal(t, post.Images, back.Images)
}

func TestCacheAssetMapperKey(t *testing.T) {
	m := ToCacheAssetModel(&entity.CacheAsset{ID: "a"})
	assert.Nil(t, m.CacheKey)

	m = ToCacheAssetModel(&entity.CacheAsset{ID: "a", CacheKey: "k"})
	assert.Equal(t, "k", *m.CacheKey)
	assert.Equal(t, "k", ToCacheAssetEntity(m).CacheKey)
}
