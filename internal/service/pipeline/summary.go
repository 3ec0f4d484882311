package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashwinyue/next-datakit/internal/model"
)

// StepResult 单个步骤的执行结果
type StepResult struct {
	Name     string        `json:"name"`
	Document string        `json:"document,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Summary 一次运行的汇总
type Summary struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"` // success, error, canceled
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Documents       []string `json:"documents"`
	FailedDocuments []string `json:"failed_documents,omitempty"`
	Chunks          int      `json:"chunks"`

	QAGenerated       int `json:"qa_generated"`
	CoTGenerated      int `json:"cot_generated"`
	ToolConversations int `json:"tool_conversations"`
	QAKept            int `json:"qa_kept"`
	CoTKept           int `json:"cot_kept"`

	QAMetrics  model.CurationMetrics `json:"qa_metrics"`
	CoTMetrics model.CurationMetrics `json:"cot_metrics"`

	DatasetPath string       `json:"dataset_path,omitempty"`
	Steps       []StepResult `json:"steps"`
}

// TotalExamples 最终数据集中的样本总数
func (s *Summary) TotalExamples() int {
	return s.QAKept + s.CoTKept + s.ToolConversations
}

// FailedSteps 失败的步骤
func (s *Summary) FailedSteps() []StepResult {
	var failed []StepResult
	for _, st := range s.Steps {
		if st.Error != "" {
			failed = append(failed, st)
		}
	}
	return failed
}

// Log 输出运行汇总
func (s *Summary) Log(ctx context.Context, logger *slog.Logger) {
	logger.InfoContext(ctx, "pipeline complete",
		"run_id", s.RunID,
		"status", s.Status,
		"documents", len(s.Documents),
		"failed_documents", len(s.FailedDocuments),
		"chunks", s.Chunks,
		"qa_generated", s.QAGenerated,
		"qa_kept", s.QAKept,
		"cot_generated", s.CoTGenerated,
		"cot_kept", s.CoTKept,
		"tool_conversations", s.ToolConversations,
		"total_examples", s.TotalExamples(),
		"failed_steps", len(s.FailedSteps()),
		"duration", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond),
	)
}
