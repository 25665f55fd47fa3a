package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"tok-ingest/pkg/logger"
	"tok-ingest/pkg/queue"
	"tok-ingest/pkg/scraper"
	"tok-ingest/services/ingest/internal/entity"
	"tok-ingest/services/ingest/internal/usecase"

	"github.com/gin-gonic/gin"
)

// JobPublisher enqueues background syncs. *queue.Client implements it.
type JobPublisher interface {
	PublishSyncJob(ctx context.Context, job *queue.SyncJob) error
	GetQueueLength() (int, error)
}

// LookasideCache is the administrative surface of the query cache.
type LookasideCache interface {
	ClearAll(ctx context.Context) int64
}

type IngestHandler struct {
	syncUseCase  usecase.SyncUseCase
	assetUseCase usecase.CacheAssetUseCase
	jobs         JobPublisher
	queryCache   LookasideCache
	logger       *logger.Logger
}

func NewIngestHandler(
	syncUseCase usecase.SyncUseCase,
	assetUseCase usecase.CacheAssetUseCase,
	jobs JobPublisher,
	queryCache LookasideCache,
	logger *logger.Logger,
) *IngestHandler {
	return &IngestHandler{
		syncUseCase:  syncUseCase,
		assetUseCase: assetUseCase,
		jobs:         jobs,
		queryCache:   queryCache,
		logger:       logger,
	}
}

type SyncRequest struct {
	ForceRecache bool `json:"force_recache"`
	MaxPages     int  `json:"max_pages" binding:"gte=0,lte=500"`
}

type AssetURLsRequest struct {
	IDs       []string `json:"ids" binding:"required,max=500"`
	Fallbacks []string `json:"fallbacks"`
}

func (h *IngestHandler) bindSync(c *gin.Context) (*SyncRequest, string, bool) {
	handle := usecase.NormalizeHandle(c.Param("handle"))
	if handle == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "handle is required"})
		return nil, "", false
	}

	var req SyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, "", false
		}
	}
	return &req, handle, true
}

// SyncProfile godoc
// @Summary      Sync a profile now
// @Description  Fetches every post page of the profile from the scraping API and reconciles it into storage. Media of new posts is cached; stored posts keep their media unless force_recache is set.
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        handle   path      string       true   "Profile handle, with or without @"
// @Param        request  body      SyncRequest  false  "Sync options"
// @Success      200  {object}  entity.SyncResult
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      422  {object}  map[string]interface{}
// @Failure      502  {object}  map[string]string
// @Router       /profiles/{handle}/sync [post]
func (h *IngestHandler) SyncProfile(c *gin.Context) {
	req, handle, ok := h.bindSync(c)
	if !ok {
		return
	}

	result, err := h.syncUseCase.SyncProfile(c.Request.Context(), handle, entity.SyncOptions{
		ForceRecache: req.ForceRecache,
		MaxPages:     req.MaxPages,
	})
	if err != nil {
		h.logger.Error("[HTTP] Sync of %s failed: %v", handle, err)
		h.writeError(c, err, result)
		return
	}

	c.JSON(http.StatusOK, result)
}

// EnqueueSync godoc
// @Summary      Queue a profile sync
// @Description  Publishes a sync job for the ingest worker and returns immediately.
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        handle   path      string       true   "Profile handle, with or without @"
// @Param        request  body      SyncRequest  false  "Sync options"
// @Success      202  {object}  queue.SyncJob
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /profiles/{handle}/sync/async [post]
func (h *IngestHandler) EnqueueSync(c *gin.Context) {
	req, handle, ok := h.bindSync(c)
	if !ok {
		return
	}
	if h.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job queue is not configured"})
		return
	}

	job := &queue.SyncJob{Handle: handle, ForceRecache: req.ForceRecache, MaxPages: req.MaxPages, Priority: 5}
	if err := h.jobs.PublishSyncJob(c.Request.Context(), job); err != nil {
		h.logger.Error("[HTTP] Failed to queue sync of %s: %v", handle, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to queue sync job"})
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// ServeAsset routes GET /assets/<ref> and GET /assets/<ref>/url. Storage keys
// contain slashes, so both forms share one catch-all route.
func (h *IngestHandler) ServeAsset(c *gin.Context) {
	ref := strings.TrimPrefix(c.Param("ref"), "/")
	if idOrKey, ok := strings.CutSuffix(ref, "/url"); ok {
		h.GetAssetURL(c, idOrKey)
		return
	}
	h.GetAsset(c, ref)
}

// QueueStatus godoc
// @Summary      Sync job queue depth
// @Tags         jobs
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      502  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /jobs [get]
func (h *IngestHandler) QueueStatus(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job queue is not configured"})
		return
	}

	pending, err := h.jobs.GetQueueLength()
	if err != nil {
		h.logger.Error("[HTTP] Failed to inspect job queue: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to inspect job queue"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": queue.SyncJobQueueName, "pending": pending})
}

// GetAsset godoc
// @Summary      Get a cached asset
// @Tags         assets
// @Produce      json
// @Param        id   path      string  true  "Asset id or storage key (slashes allowed)"
// @Success      200  {object}  entity.CacheAsset
// @Failure      404  {object}  map[string]string
// @Router       /assets/{id} [get]
func (h *IngestHandler) GetAsset(c *gin.Context, idOrKey string) {
	if idOrKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset id or storage key is required"})
		return
	}
	asset, err := h.assetUseCase.GetAsset(c.Request.Context(), idOrKey)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
			return
		}
		h.logger.Error("[HTTP] Failed to load asset %s: %v", idOrKey, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load asset"})
		return
	}
	c.JSON(http.StatusOK, asset)
}

// GetAssetURL godoc
// @Summary      Resolve an asset to a fetchable URL
// @Description  Returns a presigned URL for a cached asset, its public URL when presigning fails, or the fallback URL unchanged.
// @Tags         assets
// @Produce      json
// @Param        id        path   string  true   "Asset id or storage key (slashes allowed)"
// @Param        fallback  query  string  false  "Original URL returned when the asset is not cached"
// @Success      200  {object}  map[string]string
// @Router       /assets/{id}/url [get]
func (h *IngestHandler) GetAssetURL(c *gin.Context, idOrKey string) {
	url := h.assetUseCase.GetURL(c.Request.Context(), idOrKey, c.Query("fallback"))
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// GetAssetURLs godoc
// @Summary      Resolve many assets to fetchable URLs
// @Description  Batched form of GET /assets/{id}/url. The result is index-aligned with ids.
// @Tags         assets
// @Accept       json
// @Produce      json
// @Param        request  body      AssetURLsRequest  true  "Asset ids and fallback URLs"
// @Success      200  {object}  map[string][]string
// @Failure      400  {object}  map[string]string
// @Router       /assets/urls [post]
func (h *IngestHandler) GetAssetURLs(c *gin.Context) {
	var req AssetURLsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	urls := h.assetUseCase.GetURLs(c.Request.Context(), req.IDs, req.Fallbacks)
	c.JSON(http.StatusOK, gin.H{"urls": urls})
}

// ClearCache godoc
// @Summary      Clear the upstream response cache
// @Tags         admin
// @Produce      json
// @Success      200  {object}  map[string]int64
// @Router       /cache [delete]
func (h *IngestHandler) ClearCache(c *gin.Context) {
	if h.queryCache == nil {
		c.JSON(http.StatusOK, gin.H{"deleted": 0})
		return
	}
	deleted := h.queryCache.ClearAll(c.Request.Context())
	h.logger.Info("[HTTP] Cleared %d cached upstream responses", deleted)
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *IngestHandler) writeError(c *gin.Context, err error, partial *entity.SyncResult) {
	body := gin.H{"error": err.Error(), "kind": entity.KindOf(err)}
	var ie *entity.IngestError
	if errors.As(err, &ie) && len(ie.Reasons) > 0 {
		body["reasons"] = ie.Reasons
	}
	if partial != nil && partial.Pages > 0 {
		body["partial"] = partial
	}

	switch {
	case errors.Is(err, scraper.ErrNotFound):
		c.JSON(http.StatusNotFound, body)
	case errors.Is(err, scraper.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, body)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, body)
	default:
		c.JSON(statusForKind(entity.KindOf(err)), body)
	}
}

func statusForKind(kind entity.ErrorKind) int {
	switch kind {
	case entity.ErrKindMalformedPayload:
		return http.StatusUnprocessableEntity
	case entity.ErrKindTransientFetch:
		return http.StatusBadGateway
	case entity.ErrKindConfig:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
