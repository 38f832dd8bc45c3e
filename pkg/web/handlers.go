package web

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/terrycain/blob-config-sync/pkg/cache"
	"github.com/terrycain/blob-config-sync/pkg/s"
	"github.com/terrycain/blob-config-sync/pkg/syncer"
)

const (
	maxCacheValueBytes = 1 << 20
	defaultCacheTTL    = time.Hour
)

type StatusSource interface {
	Status() syncer.Status
}

type HealthCache interface {
	cache.Cache
	Health() cache.Health
}

type Handlers struct {
	Sync     StatusSource
	Cache    HealthCache
	Location s.RemoteLocation
	Target   s.LocalTarget

	// PUT and DELETE on /cache/:key are only routed when set.
	AllowCacheWrites bool
}

type SourceInfo struct {
	Backend   string `json:"backend"`
	Container string `json:"container"`
	Blob      string `json:"blob"`
	LivePath  string `json:"live_path"`
}

type StatusResponse struct {
	Sync   syncer.Status `json:"sync"`
	Cache  cache.Health  `json:"cache"`
	Source SourceInfo    `json:"source"`
}

func (h *Handlers) StatusEndpoint(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Sync:  h.Sync.Status(),
		Cache: h.Cache.Health(),
		Source: SourceInfo{
			Backend:   h.Location.Backend,
			Container: h.Location.Container,
			Blob:      h.Location.BlobPath,
			LivePath:  h.Target.LivePath,
		},
	})
}

type CacheEntryResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (h *Handlers) GetCacheEntry(c *gin.Context) {
	key := c.Param("key")
	value, found := h.Cache.Get(c.Request.Context(), key)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}
	c.JSON(http.StatusOK, CacheEntryResponse{Key: key, Value: value})
}

// PutCacheEntry stores the raw request body under key. The ttl query parameter takes a Go duration, it
// defaults to an hour and 0s stores without expiry.
func (h *Handlers) PutCacheEntry(c *gin.Context) {
	ttl := defaultCacheTTL
	if raw, ok := c.GetQuery("ttl"); ok {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ttl must be a non-negative duration e.g. 30s"})
			return
		}
		ttl = parsed
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxCacheValueBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "value too large"})
			return
		}
		log.Warn().Err(err).Msg("Failed to read cache value")
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	h.Cache.Set(c.Request.Context(), c.Param("key"), string(body), ttl)
	c.Data(http.StatusNoContent, gin.MIMEJSON, nil)
}

func (h *Handlers) DeleteCacheEntry(c *gin.Context) {
	h.Cache.Delete(c.Request.Context(), c.Param("key"))
	c.Data(http.StatusNoContent, gin.MIMEJSON, nil)
}
