// Package router 注册 HTTP 路由
package router

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/next-datakit/internal/handler"
	"github.com/ashwinyue/next-datakit/internal/middleware"
	"github.com/ashwinyue/next-datakit/internal/observability"
)

// SetupRouter 设置路由，metrics 为 nil 时不暴露 /metrics
func SetupRouter(h *handler.Handlers, logger *slog.Logger, metrics *observability.Metrics) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(middleware.RecoveryMiddleware(logger))
	r.Use(middleware.LoggingMiddleware(logger, metrics))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	// API v1
	v1 := r.Group("/api/v1")
	{
		// Dataset 数据集
		v1.GET("/dataset", h.Dataset.GetDataset)
		v1.GET("/dataset/summary", h.Dataset.GetDatasetSummary)

		// Artifacts 产物
		artifacts := v1.Group("/artifacts")
		{
			artifacts.GET("/:dir", h.Dataset.ListArtifacts)
			artifacts.GET("/:dir/:name", h.Dataset.GetArtifact)
		}

		// Runs 流水线运行
		runs := v1.Group("/runs")
		{
			runs.POST("", h.Run.StartRun)
			runs.GET("", h.Run.ListRuns)
			runs.GET("/:id", h.Run.GetRun)
		}

		// System 系统
		v1.GET("/system/info", h.System.GetSystemInfo)
		v1.GET("/tools", h.System.ListTools)
	}

	return r
}
