// Package handler 提供 HTTP 处理器
package handler

import (
	"github.com/ashwinyue/next-datakit/internal/config"
	"github.com/ashwinyue/next-datakit/internal/model"
	"github.com/ashwinyue/next-datakit/internal/service/export"
	"github.com/ashwinyue/next-datakit/internal/service/run"
)

// Handlers 处理器集合
type Handlers struct {
	Dataset *DatasetHandler
	Run     *RunHandler
	System  *SystemHandler
}

// NewHandlers 创建所有处理器
func NewHandlers(cfg *config.Config, writer *export.Writer, runs *run.Registry, toolDefs []model.ToolDefinition) *Handlers {
	return &Handlers{
		Dataset: NewDatasetHandler(writer),
		Run:     NewRunHandler(runs),
		System:  NewSystemHandler(cfg, toolDefs),
	}
}
