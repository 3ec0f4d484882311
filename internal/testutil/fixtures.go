package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ashwinyue/next-datakit/internal/config"
	"github.com/ashwinyue/next-datakit/internal/prompt"
)

// SampleText 测试用文档正文
const SampleText = `Synthetic data generation turns unstructured documents into training examples.
A chunker splits each document into overlapping windows so that no sentence is lost at a boundary.
Each window is sent to a language model that writes question and answer pairs grounded in the text.
A second model rates every pair for accuracy, relevance, clarity and usefulness.
Only pairs whose combined score reaches the threshold are kept for fine-tuning.`

// Config 测试配置，prompt 使用简短模板以便断言
func Config(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		App: config.AppConfig{Name: "next-datakit-test", Environment: "test"},
		Log: config.LogConfig{Level: "debug", Format: "text"},
		LLM: config.LLMConfig{Provider: "scripted"},
		Generation: config.GenerationConfig{
			ChunkSize:    100,
			ChunkOverlap: 20,
			Temperature:  0.7,
			MaxTokens:    1024,
			NumQAPairs:   4,
			NumCoTPairs:  2,
			SampleChunks: 2,
		},
		Curate: config.CurateConfig{
			Threshold:   5,
			BatchSize:   5,
			Temperature: 0.2,
			MaxTokens:   4096,
		},
		ToolUse: config.ToolUseConfig{
			Enabled:         true,
			QueriesPerChunk: 2,
			MaxChunks:       1,
			ResultSource:    config.ResultSourceSynthetic,
		},
		Data: config.DataConfig{
			InputDir:   filepath.Join(dir, "input"),
			OutputDir:  filepath.Join(dir, "out"),
			Extensions: []string{".txt", ".md"},
		},
		Ingest:  config.IngestConfig{PDFBackend: config.PDFBackendEino},
		Prompts: Prompts(),
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: 0, Mode: "test"},
	}
}

// Prompts 带有可识别前缀的简短模板
func Prompts() map[string]string {
	return map[string]string{
		prompt.QAGeneration:  "QA-GEN n={num_pairs}\n{text}",
		prompt.CoTGeneration: "COT-GEN n={num_pairs}\n{text}",
		prompt.QARating:      "RATE\n{pairs}",
		prompt.ToolQueries:   "TOOL-QUERIES n={num_queries}\n{context}",
		prompt.SearchTerms:   "SEARCH-TERMS {tool_name} {search_kind}: {query}",
		prompt.ArxivResult:   "ARXIV-RESULT {query} | {context}",
		prompt.WebResult:     "WEB-RESULT {query} | {context}",
		prompt.ToolAnswer:    "TOOL-ANSWER {query} | {tool_result} | {context}",
	}
}

// PromptSet 解析 Prompts
func PromptSet(t *testing.T) *prompt.Set {
	t.Helper()
	set, err := prompt.NewSet(Prompts())
	if err != nil {
		t.Fatalf("prompt.NewSet() error = %v", err)
	}
	return set
}

// WriteFile 在 dir 下写入文件并返回路径
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
