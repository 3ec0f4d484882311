// Package middleware 提供 gin 中间件
package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/next-datakit/internal/observability"
)

// LoggingMiddleware 日志中间件，metrics 可以为 nil
func LoggingMiddleware(logger *slog.Logger, metrics *observability.Metrics) gin.HandlerFunc {
	logger = logger.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		// 使用路由模板作为指标标签，未匹配的路由统一归类
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if metrics != nil {
			metrics.HTTPRequestDuration.
				WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).
				Observe(latency.Seconds())
		}

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", status,
			"latency", latency,
			"client_ip", c.ClientIP(),
		)
	}
}
