package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/next-datakit/internal/config"
	"github.com/ashwinyue/next-datakit/internal/model"
)

// SystemHandler 系统处理器
type SystemHandler struct {
	cfg      *config.Config
	toolDefs []model.ToolDefinition
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(cfg *config.Config, toolDefs []model.ToolDefinition) *SystemHandler {
	return &SystemHandler{cfg: cfg, toolDefs: toolDefs}
}

// SystemInfo 系统信息
type SystemInfo struct {
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	Environment  string         `json:"environment"`
	Provider     string         `json:"provider"`
	Generation   map[string]any `json:"generation"`
	Threshold    float64        `json:"curate_threshold"`
	ToolUse      bool           `json:"tool_use_enabled"`
	ResultSource string         `json:"tool_result_source"`
	PerDocument  bool           `json:"per_document"`
}

// GetSystemInfo 获取系统信息
// GET /api/v1/system/info
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	Success(c, SystemInfo{
		Name:         h.cfg.App.Name,
		Version:      h.cfg.App.Version,
		Environment:  h.cfg.App.Environment,
		Provider:     h.cfg.LLM.Provider,
		Generation:   h.cfg.GenerationSnapshot(),
		Threshold:    h.cfg.Curate.Threshold,
		ToolUse:      h.cfg.ToolUse.Enabled,
		ResultSource: h.cfg.ToolUse.ResultSource,
		PerDocument:  h.cfg.Pipeline.PerDocument,
	})
}

// ListTools 获取工具定义
// GET /api/v1/tools
func (h *SystemHandler) ListTools(c *gin.Context) {
	Success(c, h.toolDefs)
}
