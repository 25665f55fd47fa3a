package http

import "github.com/gin-gonic/gin"

func RegisterRoutes(api *gin.RouterGroup, h *IngestHandler) {
	api.POST("/profiles/:handle/sync", h.SyncProfile)
	api.POST("/profiles/:handle/sync/async", h.EnqueueSync)
	api.GET("/jobs", h.QueueStatus)
	api.GET("/assets/*ref", h.ServeAsset)
	api.POST("/assets/urls", h.GetAssetURLs)
	api.DELETE("/cache", h.ClearCache)
}
