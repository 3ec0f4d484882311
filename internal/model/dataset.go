package model

import (
	"time"
)

// Dataset 最终训练数据集
type Dataset struct {
	QAPairs              []Pair             `json:"qa_pairs"`
	CoTPairs             []Pair             `json:"cot_pairs"`
	ToolUseConversations []ToolConversation `json:"tool_use_conversations"`
	Metadata             DatasetMetadata    `json:"metadata"`
}

// DatasetMetadata 数据集元数据
type DatasetMetadata struct {
	RunID            string          `json:"run_id"`
	CreatedAt        time.Time       `json:"created_at"`
	SourceDocuments  []string        `json:"source_documents"` // 源文件名
	TotalChunks      int             `json:"total_chunks"`
	GenerationConfig map[string]any  `json:"generation_config"`
	QAMetrics        CurationMetrics `json:"qa_metrics"`
	CoTMetrics       CurationMetrics `json:"cot_metrics"`
}

// TotalExamples 返回训练样本总数
func (d *Dataset) TotalExamples() int {
	return len(d.QAPairs) + len(d.CoTPairs) + len(d.ToolUseConversations)
}
