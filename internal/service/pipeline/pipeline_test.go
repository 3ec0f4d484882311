package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ashwinyue/next-datakit/internal/config"
	"github.com/ashwinyue/next-datakit/internal/observability"
	"github.com/ashwinyue/next-datakit/internal/testutil"
)

func pairsReply(prefix string, n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"question":"%s question %d","answer":"answer %d"}`, prefix, i, i)
	}
	return "```json\n[" + strings.Join(items, ",") + "]\n```"
}

func ratingsReply(scores ...float64) string {
	items := make([]string, len(scores))
	for i, s := range scores {
		items[i] = fmt.Sprintf(`{"accuracy":%g,"relevance":%g,"clarity":%g,"usefulness":%g,"combined_score":%g}`,
			s/4, s/4, s/4, s/4, s)
	}
	return "[" + strings.Join(items, ",") + "]"
}

// scriptedPipelineProvider QA 每次返回 2 条，CoT 每次返回 1 条，评分固定为 [9,4,7,2,10]
func scriptedPipelineProvider() *testutil.ScriptedProvider {
	return testutil.NewScriptedProvider(
		testutil.Reply{Match: "QA-GEN", Text: pairsReply("qa", 2), Repeat: true},
		testutil.Reply{Match: "COT-GEN", Text: pairsReply("cot", 1), Repeat: true},
		testutil.Reply{Match: "TOOL-QUERIES", Text: `["What recent research papers discuss synthetic data?", "short?"]`, Repeat: true},
		testutil.Reply{Match: "SEARCH-TERMS", Text: "synthetic data", Repeat: true},
		testutil.Reply{Match: "ARXIV-RESULT", Text: "1. Paper A (2024.0001)", Repeat: true},
		testutil.Reply{Match: "WEB-RESULT", Text: "Example.com: report", Repeat: true},
		testutil.Reply{Match: "TOOL-ANSWER", Text: "Here is what I found.", Repeat: true},
		testutil.Reply{Match: "RATE", Text: ratingsReply(9, 4, 7, 2, 10), Repeat: true},
	)
}

func newTestPipeline(t *testing.T, cfg *config.Config, provider *testutil.ScriptedProvider) (*Pipeline, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics()
	p, err := New(context.Background(), cfg, provider, observability.Discard(),
		WithMetrics(metrics),
		WithTracer(observability.NoopTracer()),
		WithRunIDFunc(func() string { return "run-test" }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p, metrics
}

func assertExists(t *testing.T, base string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		if _, err := os.Stat(filepath.Join(base, r)); err != nil {
			t.Errorf("expected artifact %s: %v", r, err)
		}
	}
}

// ========== 合并模式测试 ==========

func TestRun_Combined(t *testing.T) {
	cfg := testutil.Config(t)
	testutil.WriteFile(t, cfg.Data.InputDir, "guide.txt", testutil.SampleText)
	testutil.WriteFile(t, cfg.Data.InputDir, "notes.md", "Short notes about curation thresholds and dataset quality.")
	testutil.WriteFile(t, cfg.Data.InputDir, "ignored.csv", "a,b")

	provider := scriptedPipelineProvider()
	p, metrics := newTestPipeline(t, cfg, provider)

	s, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if s.RunID != "run-test" || s.Status != "success" {
		t.Errorf("RunID = %q, Status = %q", s.RunID, s.Status)
	}
	if len(s.Documents) != 2 || s.Documents[0] != "guide.txt" || s.Documents[1] != "notes.md" {
		t.Errorf("Documents = %v", s.Documents)
	}
	if s.Chunks == 0 {
		t.Error("Chunks = 0")
	}
	if s.QAGenerated != 4 || s.CoTGenerated != 2 {
		t.Errorf("generated qa = %d, cot = %d", s.QAGenerated, s.CoTGenerated)
	}
	// 评分 [9,4,7,2,...]，阈值 5
	if s.QAKept != 2 || s.CoTKept != 1 {
		t.Errorf("kept qa = %d, cot = %d", s.QAKept, s.CoTKept)
	}
	if s.ToolConversations != 1 {
		t.Errorf("ToolConversations = %d, want 1", s.ToolConversations)
	}
	if s.QAMetrics.Considered != 4 || s.QAMetrics.AvgCombinedScore != 5.5 {
		t.Errorf("QAMetrics = %+v", s.QAMetrics)
	}
	if len(s.FailedSteps()) != 0 {
		t.Errorf("FailedSteps = %+v", s.FailedSteps())
	}

	wantSteps := []string{StepIngest, StepQA, StepCoT, StepToolUse, StepCurate, StepCompile}
	if len(s.Steps) != len(wantSteps) {
		t.Fatalf("steps = %+v", s.Steps)
	}
	for i, name := range wantSteps {
		if s.Steps[i].Name != name {
			t.Errorf("Steps[%d] = %q, want %q", i, s.Steps[i].Name, name)
		}
	}

	out := cfg.Data.OutputDir
	assertExists(t, out,
		"parsed/guide.txt",
		"parsed/notes.txt",
		"generated/combined_qa.json",
		"generated/combined_cot.json",
		"generated/combined_tool_use.jsonl",
		"generated/combined_tool_use.json",
		"curated/combined_qa_curated.json",
		"curated/combined_cot_curated.json",
		"final_training_dataset.json",
	)

	d, err := p.Writer().ReadDataset("")
	if err != nil {
		t.Fatalf("ReadDataset() error = %v", err)
	}
	if d.TotalExamples() != s.TotalExamples() || d.TotalExamples() != 4 {
		t.Errorf("dataset examples = %d, summary = %d", d.TotalExamples(), s.TotalExamples())
	}
	if d.Metadata.RunID != "run-test" || d.Metadata.TotalChunks != s.Chunks {
		t.Errorf("metadata = %+v", d.Metadata)
	}
	if d.Metadata.GenerationConfig["chunk_size"] != float64(100) {
		t.Errorf("generation_config = %v", d.Metadata.GenerationConfig)
	}
	if _, ok := d.QAPairs[0].Evaluation(); !ok {
		t.Error("curated pair should carry evaluation")
	}

	if got := promtest.ToFloat64(metrics.PipelineRuns.WithLabelValues("success")); got != 1 {
		t.Errorf("pipeline runs = %v", got)
	}
	if got := promtest.ToFloat64(metrics.PairsKept.WithLabelValues("qa")); got != 2 {
		t.Errorf("qa kept metric = %v", got)
	}
}

// ========== 按文档模式测试 ==========

func TestRun_PerDocument(t *testing.T) {
	cfg := testutil.Config(t)
	cfg.Pipeline.PerDocument = true
	cfg.ToolUse.Enabled = false
	testutil.WriteFile(t, cfg.Data.InputDir, "guide.txt", testutil.SampleText)
	testutil.WriteFile(t, cfg.Data.InputDir, "notes.md", "Short notes about curation thresholds and dataset quality.")

	p, _ := newTestPipeline(t, cfg, scriptedPipelineProvider())
	s, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// guide: 4 条 QA；notes 只有一个 chunk，单次请求返回 2 条
	if s.QAGenerated != 6 || s.QAKept != 3 {
		t.Errorf("qa generated = %d, kept = %d", s.QAGenerated, s.QAKept)
	}
	if s.QAMetrics.Considered != 6 || s.QAMetrics.Total != 6 {
		t.Errorf("QAMetrics = %+v", s.QAMetrics)
	}
	if s.ToolConversations != 0 {
		t.Errorf("ToolConversations = %d", s.ToolConversations)
	}

	out := cfg.Data.OutputDir
	assertExists(t, out,
		"generated/guide_qa.json",
		"generated/notes_qa.json",
		"curated/guide_cot_curated.json",
		"curated/notes_cot_curated.json",
		"final_training_dataset.json",
	)
	if _, err := os.Stat(filepath.Join(out, "generated", "guide_tool_use.jsonl")); err == nil {
		t.Error("tool-use artifact written while disabled")
	}
}

// ========== 批量采样测试 ==========

func TestRun_SampledBatches(t *testing.T) {
	cfg := testutil.Config(t)
	cfg.Generation.BatchSize = 2
	cfg.ToolUse.Enabled = false
	testutil.WriteFile(t, cfg.Data.InputDir, "guide.txt", testutil.SampleText)

	provider := scriptedPipelineProvider()
	p, _ := newTestPipeline(t, cfg, provider)
	s, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if s.QAGenerated != 4 || s.CoTGenerated != 2 {
		t.Errorf("generated qa = %d, cot = %d", s.QAGenerated, s.CoTGenerated)
	}
}

// ========== 失败降级测试 ==========

func TestRun_GenerationFailureDegrades(t *testing.T) {
	cfg := testutil.Config(t)
	cfg.ToolUse.Enabled = false
	testutil.WriteFile(t, cfg.Data.InputDir, "guide.txt", testutil.SampleText)

	provider := testutil.NewScriptedProvider(
		testutil.Reply{Match: "QA-GEN", Text: "I cannot produce JSON today.", Repeat: true},
		testutil.Reply{Match: "COT-GEN", Err: errors.New("throttled"), Repeat: true},
		testutil.Reply{Match: "RATE", Text: ratingsReply(9), Repeat: true},
	)
	p, _ := newTestPipeline(t, cfg, provider)

	s, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if s.QAGenerated != 0 || s.CoTGenerated != 0 || s.TotalExamples() != 0 {
		t.Errorf("summary = %+v", s)
	}
	if s.DatasetPath == "" {
		t.Error("dataset should still be written")
	}
	for _, c := range provider.Calls() {
		if strings.HasPrefix(c.Prompt, "RATE") {
			t.Error("curator should not be called without pairs")
		}
	}
}

func TestRun_SkipsFailedDocument(t *testing.T) {
	cfg := testutil.Config(t)
	cfg.ToolUse.Enabled = false
	testutil.WriteFile(t, cfg.Data.InputDir, "blank.txt", "   \n ")
	testutil.WriteFile(t, cfg.Data.InputDir, "guide.txt", testutil.SampleText)

	p, _ := newTestPipeline(t, cfg, scriptedPipelineProvider())
	s, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(s.Documents) != 1 || len(s.FailedDocuments) != 1 {
		t.Errorf("documents = %v, failed = %v", s.Documents, s.FailedDocuments)
	}
}

// ========== 初始化错误测试 ==========

func TestRun_NoDocuments(t *testing.T) {
	cfg := testutil.Config(t)
	if err := os.MkdirAll(cfg.Data.InputDir, 0o755); err != nil {
		t.Fatal(err)
	}

	p, metrics := newTestPipeline(t, cfg, scriptedPipelineProvider())
	s, err := p.Run(context.Background())
	if !errors.Is(err, ErrNoDocuments) {
		t.Errorf("error = %v, want ErrNoDocuments", err)
	}
	if s == nil || s.Status != "error" {
		t.Errorf("summary = %+v", s)
	}
	if got := promtest.ToFloat64(metrics.PipelineRuns.WithLabelValues("error")); got != 1 {
		t.Errorf("error runs = %v", got)
	}
}

func TestRun_MissingInputDir(t *testing.T) {
	cfg := testutil.Config(t)
	p, _ := newTestPipeline(t, cfg, scriptedPipelineProvider())
	if _, err := p.Run(context.Background()); err == nil || errors.Is(err, ErrNoDocuments) {
		t.Errorf("error = %v, want read error", err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testutil.Config(t)
	cfg.Generation.ChunkOverlap = cfg.Generation.ChunkSize
	if _, err := New(context.Background(), cfg, testutil.Texts(), observability.Discard()); err == nil {
		t.Error("expected error for invalid chunk window")
	}

	cfg = testutil.Config(t)
	cfg.Curate.BatchSize = 0
	if _, err := New(context.Background(), cfg, testutil.Texts(), observability.Discard()); err == nil {
		t.Error("expected error for zero curate batch size")
	}
}

// ========== 单文件测试 ==========

func TestIngestFile(t *testing.T) {
	cfg := testutil.Config(t)
	path := testutil.WriteFile(t, cfg.Data.InputDir, "notes.txt", strings.Repeat("word ", 50))
	p, _ := newTestPipeline(t, cfg, scriptedPipelineProvider())

	doc, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile() error = %v", err)
	}
	if doc.Stem != "notes" || len(doc.Chunks) != 3 {
		t.Errorf("doc = %s, chunks = %d, want notes, 3", doc.Stem, len(doc.Chunks))
	}
	assertExists(t, cfg.Data.OutputDir, filepath.Join("parsed", "notes.txt"))

	if _, err := p.IngestFile(context.Background(), filepath.Join(cfg.Data.InputDir, "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
