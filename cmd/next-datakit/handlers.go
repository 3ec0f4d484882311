package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ashwinyue/next-datakit/internal/config"
	"github.com/ashwinyue/next-datakit/internal/llm"
	"github.com/ashwinyue/next-datakit/internal/model"
	"github.com/ashwinyue/next-datakit/internal/observability"
	"github.com/ashwinyue/next-datakit/internal/service/export"
	"github.com/ashwinyue/next-datakit/internal/service/pipeline"
	"github.com/ashwinyue/next-datakit/internal/service/watch"
)

// defaultConfigPath 未指定配置时尝试的路径
const defaultConfigPath = "./configs/config.yaml"

// resolveConfigPath 依次取参数、环境变量与默认路径
func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := strings.TrimSpace(os.Getenv("NEXT_DATAKIT_CONFIG")); env != "" {
		return env
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// app 命令共享的运行环境
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	shutdown func(context.Context) error
}

func loadApp(ctx context.Context, mutate func(*config.Config)) (*app, error) {
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if debug {
		cfg.Log.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(logger)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	tracer, shutdown, err := observability.NewTracer(ctx, observability.TraceConfig{
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		Endpoint:       cfg.Observability.TraceEndpoint,
		Insecure:       cfg.Observability.TraceInsecure,
		SamplingRate:   cfg.Observability.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	return &app{cfg: cfg, logger: logger, metrics: metrics, tracer: tracer, shutdown: shutdown}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("tracer shutdown failed", "error", err)
	}
}

// newProvider 创建带日志、指标与追踪的模型提供方
func (a *app) newProvider(ctx context.Context) (llm.Provider, error) {
	p, err := llm.New(ctx, a.cfg.LLM, observability.NewCallbackLogger(a.logger))
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(a.cfg.LLM.Timeout) * time.Second
	return llm.Instrument(p, a.logger, a.metrics, a.tracer, timeout), nil
}

// newPipeline 创建流水线，withProvider 为 false 时不连接模型
func (a *app) newPipeline(ctx context.Context, withProvider bool) (*pipeline.Pipeline, error) {
	var provider llm.Provider
	if withProvider {
		p, err := a.newProvider(ctx)
		if err != nil {
			return nil, err
		}
		provider = p
	}
	return pipeline.New(ctx, a.cfg, provider, a.logger,
		pipeline.WithMetrics(a.metrics),
		pipeline.WithTracer(a.tracer),
	)
}

// =============================================================================
// Pipeline Handlers
// =============================================================================

type runOptions struct {
	input          string
	output         string
	perDocument    bool
	perDocumentSet bool
	jsonOutput     bool
}

func runPipeline(cmd *cobra.Command, opts runOptions) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, func(c *config.Config) {
		if opts.input != "" {
			c.Data.InputDir = opts.input
		}
		if opts.output != "" {
			c.Data.OutputDir = opts.output
		}
		if opts.perDocumentSet {
			c.Pipeline.PerDocument = opts.perDocument
		}
	})
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.newPipeline(ctx, true)
	if err != nil {
		return err
	}

	summary, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return printJSON(cmd.OutOrStdout(), summary)
	}
	printSummary(cmd.OutOrStdout(), summary)
	return nil
}

func printSummary(w io.Writer, s *pipeline.Summary) {
	fmt.Fprintf(w, "Run %s (%s) in %s\n", s.RunID, s.Status, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "  documents:   %d (%d failed), %d chunks\n", len(s.Documents), len(s.FailedDocuments), s.Chunks)
	fmt.Fprintf(w, "  qa pairs:    %d kept of %d (avg score %.2f)\n", s.QAKept, s.QAGenerated, s.QAMetrics.AvgCombinedScore)
	fmt.Fprintf(w, "  cot pairs:   %d kept of %d (avg score %.2f)\n", s.CoTKept, s.CoTGenerated, s.CoTMetrics.AvgCombinedScore)
	fmt.Fprintf(w, "  tool use:    %d conversations\n", s.ToolConversations)
	fmt.Fprintf(w, "  total:       %d examples\n", s.TotalExamples())
	if s.DatasetPath != "" {
		fmt.Fprintf(w, "  dataset:     %s\n", s.DatasetPath)
	}
	for _, st := range s.FailedSteps() {
		fmt.Fprintf(w, "  failed step: %s %s: %s\n", st.Name, st.Document, st.Error)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runIngest(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.newPipeline(ctx, false)
	if err != nil {
		return err
	}

	doc, err := p.IngestFile(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d characters, %d chunks -> %s\n",
		doc.Name, doc.Chars, len(doc.Chunks),
		filepath.Join(p.Writer().BasePath(), export.DirParsed, doc.Stem+".txt"))
	return nil
}

func runCreate(cmd *cobra.Command, path string, kind model.Kind, numPairs int) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	if numPairs <= 0 {
		numPairs = a.cfg.Generation.NumQAPairs
		if kind == model.KindCoT {
			numPairs = a.cfg.Generation.NumCoTPairs
		}
	}

	p, err := a.newPipeline(ctx, true)
	if err != nil {
		return err
	}
	doc, err := p.IngestFile(ctx, path)
	if err != nil {
		return err
	}

	pairs := p.Generate(ctx, model.ChunkTexts(doc.Chunks), numPairs, kind)
	out, err := p.Writer().WritePairs(doc.Stem, kind, pairs)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d %s pairs -> %s\n", len(pairs), kind, out)
	return nil
}

func runCurate(cmd *cobra.Command, path string, kind model.Kind, threshold float64) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, func(c *config.Config) {
		if threshold >= 0 {
			c.Curate.Threshold = threshold
		}
	})
	if err != nil {
		return err
	}
	defer a.close()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read generated pairs: %w", err)
	}
	pairs, err := export.DecodePairs(data)
	if err != nil {
		return err
	}

	p, err := a.newPipeline(ctx, true)
	if err != nil {
		return err
	}

	name := curatedName(path, kind)
	kept, m, err := p.Curate(ctx, name, kind, pairs)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d pairs kept (threshold %.1f, avg score %.2f, unrated %d)\n",
		len(kept), m.Total, a.cfg.Curate.Threshold, m.AvgCombinedScore, m.Unrated)
	return nil
}

// curatedName 由生成文件名推出文档名，去掉 _qa/_cot 后缀
func curatedName(path string, kind model.Kind) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.TrimSuffix(base, "_"+string(kind))
}

func runToolUse(cmd *cobra.Command, path string, queries int) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, func(c *config.Config) {
		c.ToolUse.Enabled = true
		if queries > 0 {
			c.ToolUse.QueriesPerChunk = queries
		}
	})
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.newPipeline(ctx, true)
	if err != nil {
		return err
	}
	doc, err := p.IngestFile(ctx, path)
	if err != nil {
		return err
	}

	convs, err := p.ToolUse(ctx, doc.Stem, model.ChunkTexts(doc.Chunks))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d tool-use conversations -> %s\n", len(convs),
		filepath.Join(p.Writer().BasePath(), export.DirGenerated, doc.Stem+"_tool_use.jsonl"))
	return nil
}

func runWatch(cmd *cobra.Command, debounce time.Duration, runFirst bool) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.newPipeline(ctx, true)
	if err != nil {
		return err
	}

	trigger := func(ctx context.Context, files []string) error {
		a.logger.InfoContext(ctx, "running pipeline", "changed", files)
		_, err := p.Run(ctx)
		return err
	}

	w, err := watch.New(watch.Config{
		Dir:        a.cfg.Data.InputDir,
		Extensions: a.cfg.Data.Extensions,
		Debounce:   debounce,
	}, trigger, a.logger)
	if err != nil {
		return err
	}
	defer w.Close()

	if runFirst {
		if err := trigger(ctx, nil); err != nil && !errors.Is(err, pipeline.ErrNoDocuments) {
			a.logger.ErrorContext(ctx, "initial run failed", "error", err)
		}
	}
	return w.Run(ctx)
}

// =============================================================================
// Config Handlers
// =============================================================================

const masked = "********"

func mask(s string) string {
	if s == "" {
		return ""
	}
	return masked
}

// maskSecrets 返回隐藏密钥后的配置副本
func maskSecrets(cfg config.Config) config.Config {
	cfg.LLM.OpenAI.APIKey = mask(cfg.LLM.OpenAI.APIKey)
	cfg.LLM.DeepSeek.APIKey = mask(cfg.LLM.DeepSeek.APIKey)
	cfg.LLM.Alibaba.APIKey = mask(cfg.LLM.Alibaba.APIKey)
	cfg.LLM.Anthropic.APIKey = mask(cfg.LLM.Anthropic.APIKey)
	cfg.LLM.Bedrock.AccessKeyID = mask(cfg.LLM.Bedrock.AccessKeyID)
	cfg.LLM.Bedrock.SecretAccessKey = mask(cfg.LLM.Bedrock.SecretAccessKey)
	cfg.LLM.Bedrock.SessionToken = mask(cfg.LLM.Bedrock.SessionToken)
	return cfg
}

func runConfigPrint(cmd *cobra.Command) error {
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(maskSecrets(*cfg))
}

func runConfigSchema(cmd *cobra.Command) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
	return err
}
