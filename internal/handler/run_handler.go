package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/next-datakit/internal/service/run"
)

// RunHandler 流水线运行处理器
type RunHandler struct {
	runs *run.Registry
}

// NewRunHandler 创建运行处理器
func NewRunHandler(runs *run.Registry) *RunHandler {
	return &RunHandler{runs: runs}
}

// StartRun 触发一次流水线运行，已有运行时返回 409
// POST /api/v1/runs
func (h *RunHandler) StartRun(c *gin.Context) {
	r, err := h.runs.Start(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}

	c.Header("Location", "/api/v1/runs/"+r.ID)
	Accepted(c, r)
}

// ListRuns 列出运行记录
// GET /api/v1/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	Success(c, h.runs.List())
}

// GetRun 获取运行状态
// GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	r, err := h.runs.Get(c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, r)
}
