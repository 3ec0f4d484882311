package handler

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/next-datakit/internal/model"
	"github.com/ashwinyue/next-datakit/internal/service/export"
)

// artifactDirs 可通过 API 访问的产物目录
var artifactDirs = map[string]bool{
	export.DirParsed:    true,
	export.DirGenerated: true,
	export.DirCurated:   true,
}

// DatasetHandler 数据集处理器
type DatasetHandler struct {
	writer *export.Writer
}

// NewDatasetHandler 创建数据集处理器
func NewDatasetHandler(writer *export.Writer) *DatasetHandler {
	return &DatasetHandler{writer: writer}
}

// DatasetSummary 数据集概要
type DatasetSummary struct {
	QAPairs              int                   `json:"qa_pairs"`
	CoTPairs             int                   `json:"cot_pairs"`
	ToolUseConversations int                   `json:"tool_use_conversations"`
	TotalExamples        int                   `json:"total_examples"`
	Metadata             model.DatasetMetadata `json:"metadata"`
}

// GetDataset 获取最终数据集
// GET /api/v1/dataset
func (h *DatasetHandler) GetDataset(c *gin.Context) {
	d, err := h.writer.ReadDataset("")
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, d)
}

// GetDatasetSummary 获取数据集概要与筛选指标
// GET /api/v1/dataset/summary
func (h *DatasetHandler) GetDatasetSummary(c *gin.Context) {
	d, err := h.writer.ReadDataset("")
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, DatasetSummary{
		QAPairs:              len(d.QAPairs),
		CoTPairs:             len(d.CoTPairs),
		ToolUseConversations: len(d.ToolUseConversations),
		TotalExamples:        d.TotalExamples(),
		Metadata:             d.Metadata,
	})
}

// ListArtifacts 列出产物文件
// GET /api/v1/artifacts/:dir
func (h *DatasetHandler) ListArtifacts(c *gin.Context) {
	dir := c.Param("dir")
	if !artifactDirs[dir] {
		NotFound(c, "unknown artifact directory: "+dir)
		return
	}

	names, err := h.writer.List(dir)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{"dir": dir, "files": names})
}

// GetArtifact 获取产物内容
// GET /api/v1/artifacts/:dir/:name
func (h *DatasetHandler) GetArtifact(c *gin.Context) {
	dir := c.Param("dir")
	name := c.Param("name")
	if !artifactDirs[dir] {
		NotFound(c, "unknown artifact directory: "+dir)
		return
	}
	if strings.ContainsAny(name, `/\`) || name == ".." {
		BadRequest(c, "invalid artifact name")
		return
	}

	data, err := h.writer.Read(path.Join(dir, name))
	if err != nil {
		Error(c, err)
		return
	}

	switch path.Ext(name) {
	case ".json":
		c.Data(http.StatusOK, "application/json; charset=utf-8", data)
	case ".jsonl":
		c.Data(http.StatusOK, "application/x-ndjson; charset=utf-8", data)
	default:
		c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
	}
}
