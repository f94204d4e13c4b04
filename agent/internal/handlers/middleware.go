package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"mint-sentry/shared/logger"
)

// RequestLogger logs every HTTP request through the shared zap logger.
func RequestLogger(appLogger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)

		switch {
		case status >= 500:
			appLogger.Error("HTTP request failed", "method", c.Request.Method, "path", path, "status", status, "latency", latency, "clientIP", c.ClientIP())
		case status >= 400:
			appLogger.Warn("HTTP request rejected", "method", c.Request.Method, "path", path, "status", status, "latency", latency, "clientIP", c.ClientIP())
		default:
			appLogger.Debug("HTTP request served", "method", c.Request.Method, "path", path, "status", status, "latency", latency)
		}
	}
}
