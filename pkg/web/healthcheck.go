package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheckEndpoint reports liveness only, the process is up.
func HealthCheckEndpoint(c *gin.Context) {
	c.Data(http.StatusNoContent, gin.MIMEJSON, nil)
}

func PingEndpoint(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

// ReadyEndpoint returns 503 until a valid config has been written at least once.
func (h *Handlers) ReadyEndpoint(c *gin.Context) {
	if !h.Sync.Status().Synced {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "config not synced yet"})
		return
	}
	c.Data(http.StatusNoContent, gin.MIMEJSON, nil)
}
