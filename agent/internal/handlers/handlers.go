package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mint-sentry/agent/internal/registry"
	"mint-sentry/shared/logger"
)

// RegisterRoutes wires the public status page and the Prometheus scrape
// endpoint.
func RegisterRoutes(router *gin.Engine, appLogger *logger.Logger) {
	startedAt := time.Now()

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": StatusMessage,
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	appLogger.Info("Status and metrics routes registered")
}

// RegisterAPIRoutes wires the keep-alive and monitoring surface under
// /api/v1. The monitor endpoint reads registry counts live; everything else
// is static.
func RegisterAPIRoutes(router *gin.Engine, appLogger *logger.Logger, nfts *registry.NFTRegistry, collections *registry.CollectionRegistry) {
	startedAt := time.Now()

	apiGroup := router.Group("/api/v1")
	{
		apiGroup.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "message": HealthMessage})
		})

		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": PongMessage})
		})

		apiGroup.GET("/monitor", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":             "ok",
				"trackedNFTs":        nfts.Len(),
				"trackedCollections": collections.Len(),
				"uptimeSeconds":      int64(time.Since(startedAt).Seconds()),
				"goroutines":         runtime.NumGoroutine(),
			})
		})

		// Free-tier hosts idle the process out; uptime pingers hit this.
		apiGroup.GET("/wake", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "awake", "message": AwakeMessage})
		})
	}
	appLogger.Info("API routes registered under /api/v1")
}
