package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func setupTestRouter(redisClient *redis.Client, limit int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(redisClient, limit, time.Minute))
	router.GET("/assets/:id/url", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func get(router *gin.Engine, path string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitMiddleware_BlocksOverLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	router := setupTestRouter(client, 2)

	// Distinct ids share one route bucket.
	assert.Equal(t, http.StatusOK, get(router, "/assets/a/url"))
	assert.Equal(t, http.StatusOK, get(router, "/assets/b/url"))
	assert.Equal(t, http.StatusTooManyRequests, get(router, "/assets/c/url"))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, get(router, "/assets/a/url"))
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	router := setupTestRouter(nil, 1)
	assert.Equal(t, http.StatusOK, get(router, "/assets/a/url"))
	assert.Equal(t, http.StatusOK, get(router, "/assets/a/url"))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()
	router = setupTestRouter(client, 1)
	assert.Equal(t, http.StatusOK, get(router, "/assets/a/url"))
}
