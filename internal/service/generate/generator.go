// Package generate 提供 QA / CoT 样本生成
package generate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ashwinyue/next-datakit/internal/llm"
	"github.com/ashwinyue/next-datakit/internal/model"
	"github.com/ashwinyue/next-datakit/internal/observability"
	"github.com/ashwinyue/next-datakit/internal/prompt"
	"github.com/ashwinyue/next-datakit/internal/service/chunk"
	"github.com/ashwinyue/next-datakit/internal/service/jsonfix"
)

// Config 生成配置
type Config struct {
	Temperature float64
	MaxTokens   int
}

// Result 单次生成结果
// Err 非空时 Pairs 为空，调用方记录后继续
type Result struct {
	Pairs []model.Pair
	Err   error
}

// Stats 文档级生成统计
type Stats struct {
	Chunks   int
	Requests int
	Failures int
	Pairs    int
}

// Generator 样本生成器
type Generator struct {
	provider  llm.Provider
	templates *prompt.Set
	chunker   *chunk.Chunker
	cfg       Config
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewGenerator 创建样本生成器，metrics 可以为 nil
func NewGenerator(provider llm.Provider, templates *prompt.Set, chunker *chunk.Chunker, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Generator {
	return &Generator{
		provider:  provider,
		templates: templates,
		chunker:   chunker,
		cfg:       cfg,
		logger:    logger.With("component", "generator"),
		metrics:   metrics,
	}
}

func templateFor(kind model.Kind) string {
	if kind == model.KindCoT {
		return prompt.CoTGeneration
	}
	return prompt.QAGeneration
}

// GeneratePairs 从单个 chunk 生成 n 条样本
func (g *Generator) GeneratePairs(ctx context.Context, text string, n int, kind model.Kind) Result {
	p, err := g.templates.Render(templateFor(kind), map[string]any{
		"text":      text,
		"num_pairs": n,
	})
	if err != nil {
		return Result{Err: err}
	}

	resp, err := g.provider.Generate(ctx, p, llm.GenerateOptions{
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		g.logger.ErrorContext(ctx, "generation request failed", "kind", kind, "error", err)
		return Result{Err: err}
	}

	pairs, err := jsonfix.ParsePairs(resp.FirstText())
	if err != nil {
		g.logger.WarnContext(ctx, "failed to parse generated pairs", "kind", kind, "error", err)
		if g.metrics != nil {
			g.metrics.ParseFailures.WithLabelValues("generate").Inc()
		}
		return Result{Err: err}
	}

	if g.metrics != nil {
		g.metrics.PairsGenerated.WithLabelValues(string(kind)).Add(float64(len(pairs)))
	}
	return Result{Pairs: pairs}
}

// ProcessDocument 切分文档并按 chunk 分配配额生成样本
// 每个 chunk 请求 max(1, n/len(chunks)) 条，最后一个 chunk 补足剩余数量，结果截断到 n
func (g *Generator) ProcessDocument(ctx context.Context, text string, numPairs int, kind model.Kind) ([]model.Pair, Stats) {
	chunks := g.chunker.Split(text)
	stats := Stats{Chunks: len(chunks)}
	if len(chunks) == 0 || numPairs <= 0 {
		return []model.Pair{}, stats
	}

	per := max(1, numPairs/len(chunks))
	acc := make([]model.Pair, 0, numPairs)
	for i, c := range chunks {
		if ctx.Err() != nil {
			break
		}

		want := per
		if i == len(chunks)-1 {
			want = max(per, numPairs-len(acc))
		}

		stats.Requests++
		res := g.GeneratePairs(ctx, c, want, kind)
		if res.Err != nil {
			stats.Failures++
		}
		acc = append(acc, res.Pairs...)
		g.logger.DebugContext(ctx, "chunk processed",
			"kind", kind, "chunk", i+1, "of", len(chunks), "requested", want, "got", len(res.Pairs))

		if len(acc) >= numPairs {
			break
		}
	}

	if len(acc) > numPairs {
		acc = acc[:numPairs]
	}
	stats.Pairs = len(acc)
	return acc, stats
}

// ProcessChunksSampled 分轮次从轮换的 chunk 样本中生成
// 每轮取 sampleSize 个 chunk 拼接后调用 ProcessDocument，请求 min(batch, 剩余) 条
func (g *Generator) ProcessChunksSampled(ctx context.Context, chunks []string, numPairs, batch, sampleSize int, kind model.Kind) ([]model.Pair, Stats) {
	var stats Stats
	if len(chunks) == 0 || numPairs <= 0 {
		return []model.Pair{}, stats
	}
	if batch <= 0 {
		batch = numPairs
	}
	sampleSize = min(max(1, sampleSize), len(chunks))

	rounds := (numPairs + batch - 1) / batch
	acc := make([]model.Pair, 0, numPairs)
	for r := 0; r < rounds && len(acc) < numPairs; r++ {
		if ctx.Err() != nil {
			break
		}

		sample := make([]string, sampleSize)
		for i := range sample {
			sample[i] = chunks[(r*sampleSize+i)%len(chunks)]
		}

		want := min(batch, numPairs-len(acc))
		pairs, s := g.ProcessDocument(ctx, strings.Join(sample, "\n"), want, kind)
		stats.Chunks += s.Chunks
		stats.Requests += s.Requests
		stats.Failures += s.Failures
		acc = append(acc, pairs...)

		g.logger.InfoContext(ctx, "sampled round done",
			"kind", kind, "round", r+1, "of", rounds, "got", len(pairs), "total", len(acc))
	}

	if len(acc) > numPairs {
		acc = acc[:numPairs]
	}
	stats.Pairs = len(acc)
	return acc, stats
}
