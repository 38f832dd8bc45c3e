package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/terrycain/blob-config-sync/pkg/metrics"
)

func GetRouter(webHandler *Handlers, withMetrics bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), GinLogger())
	if withMetrics {
		router.Use(metrics.PromReqMiddleware())
	}

	router.GET("/healthz", HealthCheckEndpoint)
	router.GET("/ping", PingEndpoint)
	router.GET("/readyz", webHandler.ReadyEndpoint)
	router.GET("/status", webHandler.StatusEndpoint)

	cacheGroup := router.Group("/cache")
	cacheGroup.GET("/:key", webHandler.GetCacheEntry)
	if webHandler.AllowCacheWrites {
		cacheGroup.PUT("/:key", webHandler.PutCacheEntry)
		cacheGroup.DELETE("/:key", webHandler.DeleteCacheEntry)
	}

	return router
}

// Serve runs the status server until ctx is cancelled, then drains in-flight requests.
func Serve(ctx context.Context, listenAddr string, handler http.Handler) error {
	srv := &http.Server{Addr: listenAddr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Status server did not shut down cleanly")
		}
	}()

	log.Info().Msgf("Listening on %s", listenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
