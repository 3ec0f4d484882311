// Package pipeline 编排解析、生成、工具对话、筛选与数据集导出
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ashwinyue/next-datakit/internal/config"
	"github.com/ashwinyue/next-datakit/internal/llm"
	"github.com/ashwinyue/next-datakit/internal/model"
	"github.com/ashwinyue/next-datakit/internal/observability"
	"github.com/ashwinyue/next-datakit/internal/service/chunk"
	"github.com/ashwinyue/next-datakit/internal/service/curate"
	"github.com/ashwinyue/next-datakit/internal/service/export"
	"github.com/ashwinyue/next-datakit/internal/service/generate"
	"github.com/ashwinyue/next-datakit/internal/service/ingest"
	"github.com/ashwinyue/next-datakit/internal/service/tools"
	"github.com/ashwinyue/next-datakit/internal/service/tooluse"
)

// CombinedName 合并模式下产物的文档名
const CombinedName = "combined"

// 步骤名称
const (
	StepIngest  = "ingest"
	StepQA      = "generate_qa"
	StepCoT     = "generate_cot"
	StepToolUse = "tool_use"
	StepCurate  = "curate"
	StepCompile = "compile"
)

// ErrNoDocuments 输入目录中没有可解析的文档
var ErrNoDocuments = errors.New("no documents to process")

// Pipeline 数据生成流水线
type Pipeline struct {
	cfg       *config.Config
	ingest    *ingest.Service
	chunker   *chunk.Chunker
	generator *generate.Generator
	curator   *curate.Curator
	builder   *tooluse.Builder // 未启用工具对话时为 nil
	writer    *export.Writer
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	newRunID  func() string
}

type options struct {
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	executor   *tools.Executor
	httpClient *http.Client
	runID      func() string
}

// Option 流水线选项
type Option func(*options)

// WithMetrics 记录指标
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer 记录链路
func WithTracer(t *observability.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithToolExecutor 指定真实工具执行器，仅在 result_source 为 live 时使用
func WithToolExecutor(e *tools.Executor) Option {
	return func(o *options) { o.executor = e }
}

// WithHTTPClient 真实工具使用的 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRunIDFunc 自定义运行 ID
func WithRunIDFunc(f func() string) Option {
	return func(o *options) { o.runID = f }
}

// New 按配置组装流水线
func New(ctx context.Context, cfg *config.Config, provider llm.Provider, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	o := options{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		runID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}

	templates, err := cfg.Templates()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	chunker, err := chunk.New(chunk.Config{Size: cfg.Generation.ChunkSize, Overlap: cfg.Generation.ChunkOverlap})
	if err != nil {
		return nil, err
	}

	curator, err := curate.NewCurator(provider, templates, curate.Config{
		Threshold:   cfg.Curate.Threshold,
		BatchSize:   cfg.Curate.BatchSize,
		Temperature: cfg.Curate.Temperature,
		MaxTokens:   cfg.Curate.MaxTokens,
	}, logger, o.metrics)
	if err != nil {
		return nil, err
	}

	writer, err := export.NewWriter(cfg.Data.OutputDir, logger)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:     cfg,
		ingest:  ingest.NewService(cfg.Ingest.PDFBackend, logger, o.metrics),
		chunker: chunker,
		generator: generate.NewGenerator(provider, templates, chunker, generate.Config{
			Temperature: cfg.Generation.Temperature,
			MaxTokens:   cfg.Generation.MaxTokens,
		}, logger, o.metrics),
		curator:  curator,
		writer:   writer,
		logger:   logger.With("component", "pipeline"),
		metrics:  o.metrics,
		tracer:   o.tracer,
		newRunID: o.runID,
	}

	if cfg.ToolUse.Enabled {
		validator, err := tools.NewValidator()
		if err != nil {
			return nil, err
		}
		builderOpts := []tooluse.Option{tooluse.WithMetrics(o.metrics)}
		if cfg.ToolUse.ResultSource == config.ResultSourceLive {
			executor := o.executor
			if executor == nil {
				executor = tools.NewLiveExecutor(ctx, o.httpClient, logger, o.metrics)
			}
			builderOpts = append(builderOpts, tooluse.WithExecutor(executor))
		}
		p.builder = tooluse.NewBuilder(provider, templates, validator, logger, builderOpts...)
	}

	return p, nil
}

// Writer 产物写入器
func (p *Pipeline) Writer() *export.Writer {
	return p.writer
}

// unit 一组共同生成的 chunk，合并模式下只有一个
type unit struct {
	name   string
	chunks []string
}

// Run 执行完整流水线
// 生成与筛选中的失败只会被记录；仅输入目录不可读或没有文档时返回错误
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	return p.RunWithID(ctx, p.newRunID())
}

// RunWithID 使用指定运行 ID 执行流水线
func (p *Pipeline) RunWithID(ctx context.Context, runID string) (*Summary, error) {
	s := &Summary{RunID: runID, StartedAt: time.Now()}
	ctx, span := p.tracer.Start(ctx, "pipeline.run", attribute.String("run_id", s.RunID))
	defer span.End()

	p.logger.InfoContext(ctx, "pipeline started",
		"run_id", s.RunID, "input_dir", p.cfg.Data.InputDir, "per_document", p.cfg.Pipeline.PerDocument)

	docs, err := p.Ingest(ctx, s)
	if err == nil && len(docs) == 0 {
		err = fmt.Errorf("%w in %s", ErrNoDocuments, p.cfg.Data.InputDir)
	}
	if err != nil {
		observability.RecordError(span, err)
		p.finish(ctx, s, "error")
		return s, err
	}

	var units []unit
	if p.cfg.Pipeline.PerDocument {
		for _, d := range docs {
			units = append(units, unit{name: d.Stem, chunks: model.ChunkTexts(d.Chunks)})
		}
	} else {
		var all []string
		for _, d := range docs {
			all = append(all, model.ChunkTexts(d.Chunks)...)
		}
		p.logger.InfoContext(ctx, "chunks combined", "documents", len(docs), "chunks", len(all))
		units = []unit{{name: CombinedName, chunks: all}}
	}

	dataset := &model.Dataset{
		QAPairs:              []model.Pair{},
		CoTPairs:             []model.Pair{},
		ToolUseConversations: []model.ToolConversation{},
	}
	for _, u := range units {
		if ctx.Err() != nil {
			break
		}
		p.runUnit(ctx, s, u, dataset)
	}

	p.step(ctx, s, StepCompile, "", func(ctx context.Context) error {
		dataset.Metadata = model.DatasetMetadata{
			RunID:            s.RunID,
			CreatedAt:        time.Now().UTC(),
			SourceDocuments:  s.Documents,
			TotalChunks:      s.Chunks,
			GenerationConfig: p.cfg.GenerationSnapshot(),
			QAMetrics:        s.QAMetrics,
			CoTMetrics:       s.CoTMetrics,
		}
		path, err := p.writer.WriteDataset("", dataset)
		if err != nil {
			return err
		}
		s.DatasetPath = path
		p.logger.InfoContext(ctx, "final training dataset saved", "path", path)
		return nil
	})

	status := "success"
	if ctx.Err() != nil {
		status = "canceled"
	}
	p.finish(ctx, s, status)
	return s, nil
}

func (p *Pipeline) finish(ctx context.Context, s *Summary, status string) {
	s.FinishedAt = time.Now()
	s.Status = status
	if p.metrics != nil {
		p.metrics.PipelineRuns.WithLabelValues(status).Inc()
	}
	s.Log(ctx, p.logger)
}

// Ingest 解析输入目录中的文档、分块并保存解析文本
func (p *Pipeline) Ingest(ctx context.Context, s *Summary) ([]*model.Document, error) {
	var docs []*model.Document
	err := p.step(ctx, s, StepIngest, "", func(ctx context.Context) error {
		loaded, failures, err := p.ingest.LoadDir(ctx, p.cfg.Data.InputDir, p.cfg.Data.Extensions)
		if err != nil {
			return err
		}
		for _, f := range failures {
			s.FailedDocuments = append(s.FailedDocuments, f.Path)
		}

		for _, d := range loaded {
			d.Chunks = p.chunker.Chunks(d.Name, d.Text)
			if p.metrics != nil {
				p.metrics.ChunksProduced.Add(float64(len(d.Chunks)))
			}
			p.logger.InfoContext(ctx, "document chunked", "file", d.Name, "characters", d.Chars, "chunks", len(d.Chunks))

			if _, err := p.writer.WriteParsedText(d.Stem, d.Text); err != nil {
				p.logger.ErrorContext(ctx, "failed to save parsed text", "file", d.Name, "error", err)
			}
			s.Documents = append(s.Documents, d.Name)
			s.Chunks += len(d.Chunks)
		}
		docs = loaded
		return nil
	})
	return docs, err
}

// IngestFile 解析单个文件、分块并保存解析文本
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*model.Document, error) {
	d, err := p.ingest.ParseFile(ctx, path)
	if err != nil {
		return nil, err
	}
	d.Chunks = p.chunker.Chunks(d.Name, d.Text)
	if p.metrics != nil {
		p.metrics.ChunksProduced.Add(float64(len(d.Chunks)))
	}
	if _, err := p.writer.WriteParsedText(d.Stem, d.Text); err != nil {
		return d, fmt.Errorf("save parsed text: %w", err)
	}
	return d, nil
}

// runUnit 对一组 chunk 执行生成、工具对话与筛选，结果追加到 dataset
func (p *Pipeline) runUnit(ctx context.Context, s *Summary, u unit, dataset *model.Dataset) {
	var qa, cot []model.Pair

	p.step(ctx, s, StepQA, u.name, func(ctx context.Context) error {
		qa = p.Generate(ctx, u.chunks, p.cfg.Generation.NumQAPairs, model.KindQA)
		s.QAGenerated += len(qa)
		_, err := p.writer.WritePairs(u.name, model.KindQA, qa)
		return err
	})

	p.step(ctx, s, StepCoT, u.name, func(ctx context.Context) error {
		cot = p.Generate(ctx, u.chunks, p.cfg.Generation.NumCoTPairs, model.KindCoT)
		s.CoTGenerated += len(cot)
		_, err := p.writer.WritePairs(u.name, model.KindCoT, cot)
		return err
	})

	if p.builder != nil {
		p.step(ctx, s, StepToolUse, u.name, func(ctx context.Context) error {
			convs, err := p.ToolUse(ctx, u.name, u.chunks)
			s.ToolConversations += len(convs)
			dataset.ToolUseConversations = append(dataset.ToolUseConversations, convs...)
			return err
		})
	} else {
		p.logger.InfoContext(ctx, "tool-use generation skipped (disabled in config)")
	}

	p.step(ctx, s, StepCurate, u.name, func(ctx context.Context) error {
		keptQA, qaMetrics, errQA := p.Curate(ctx, u.name, model.KindQA, qa)
		keptCoT, cotMetrics, errCoT := p.Curate(ctx, u.name, model.KindCoT, cot)

		dataset.QAPairs = append(dataset.QAPairs, keptQA...)
		dataset.CoTPairs = append(dataset.CoTPairs, keptCoT...)
		s.QAKept += len(keptQA)
		s.CoTKept += len(keptCoT)
		s.QAMetrics = s.QAMetrics.Merge(qaMetrics)
		s.CoTMetrics = s.CoTMetrics.Merge(cotMetrics)
		return errors.Join(errQA, errCoT)
	})
}

// Generate 按配置生成指定类型的样本
// generation.batch_size > 0 时从轮换的 chunk 样本中分轮生成，否则将 chunk 拼接后按配额生成
func (p *Pipeline) Generate(ctx context.Context, chunks []string, numPairs int, kind model.Kind) []model.Pair {
	var (
		pairs []model.Pair
		stats generate.Stats
	)
	if p.cfg.Generation.BatchSize > 0 {
		pairs, stats = p.generator.ProcessChunksSampled(ctx, chunks, numPairs,
			p.cfg.Generation.BatchSize, p.cfg.Generation.SampleChunks, kind)
	} else {
		pairs, stats = p.generator.ProcessDocument(ctx, strings.Join(chunks, "\n"), numPairs, kind)
	}
	p.logger.InfoContext(ctx, "pairs generated",
		"kind", kind, "pairs", len(pairs), "requested", numPairs,
		"requests", stats.Requests, "failures", stats.Failures)
	return pairs
}

// ToolUse 为前 tool_use.max_chunks 个 chunk 构建工具对话并保存
// 未启用时返回空结果
func (p *Pipeline) ToolUse(ctx context.Context, name string, chunks []string) ([]model.ToolConversation, error) {
	if p.builder == nil {
		return []model.ToolConversation{}, nil
	}
	selected := chunks
	if limit := p.cfg.ToolUse.MaxChunks; limit > 0 && len(selected) > limit {
		selected = selected[:limit]
	}

	convs, stats := p.builder.Build(ctx, selected, p.cfg.ToolUse.QueriesPerChunk)
	for _, e := range stats.Errors {
		p.logger.WarnContext(ctx, "tool-use chunk skipped", "chunk", e.Chunk, "error", e.Err)
	}

	path, err := p.writer.WriteToolUse(name, convs)
	if err != nil {
		return convs, err
	}
	p.logger.InfoContext(ctx, "tool-use examples saved", "conversations", len(convs), "path", path)
	return convs, nil
}

// Curate 筛选样本并保存
func (p *Pipeline) Curate(ctx context.Context, name string, kind model.Kind, pairs []model.Pair) ([]model.Pair, model.CurationMetrics, error) {
	kept, m := p.curator.Curate(ctx, pairs)
	if p.metrics != nil {
		p.metrics.PairsKept.WithLabelValues(string(kind)).Add(float64(len(kept)))
	}
	curate.LogMetrics(ctx, p.logger, fmt.Sprintf("%s_%s", name, kind), m)

	_, err := p.writer.WriteCurated(name, kind, kept)
	return kept, m, err
}

// step 执行一个步骤并记录耗时、span 与结果
func (p *Pipeline) step(ctx context.Context, s *Summary, name, doc string, fn func(ctx context.Context) error) error {
	attrs := []attribute.KeyValue{attribute.String("step", name)}
	if doc != "" {
		attrs = append(attrs, attribute.String("document", doc))
	}
	ctx, span := p.tracer.Start(ctx, "pipeline."+name, attrs...)
	defer span.End()

	p.logger.InfoContext(ctx, "step started", "step", name, "document", doc)
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if p.metrics != nil {
		p.metrics.StepDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
	res := StepResult{Name: name, Document: doc, Duration: elapsed}
	if err != nil {
		observability.RecordError(span, err)
		res.Error = err.Error()
		p.logger.ErrorContext(ctx, "step failed", "step", name, "document", doc, "error", err)
	}
	s.Steps = append(s.Steps, res)
	return err
}
