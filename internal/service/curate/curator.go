// Package curate 提供基于 LLM 评分的样本筛选
package curate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ashwinyue/next-datakit/internal/llm"
	"github.com/ashwinyue/next-datakit/internal/model"
	"github.com/ashwinyue/next-datakit/internal/observability"
	"github.com/ashwinyue/next-datakit/internal/prompt"
	"github.com/ashwinyue/next-datakit/internal/service/jsonfix"
)

// Config 筛选配置
type Config struct {
	Threshold   float64
	BatchSize   int
	Temperature float64
	MaxTokens   int
}

// BatchResult 单批评分结果
type BatchResult struct {
	// Ratings[i] 对应批次中第 i 个 pair，nil 表示该 pair 未评分
	Ratings []*model.Evaluation
	// Unrated 没有对应评分的 pair 数量
	Unrated int
	Err     error
}

// Curator 样本筛选器
type Curator struct {
	provider  llm.Provider
	templates *prompt.Set
	cfg       Config
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewCurator 创建筛选器，metrics 可以为 nil
func NewCurator(provider llm.Provider, templates *prompt.Set, cfg Config, logger *slog.Logger, metrics *observability.Metrics) (*Curator, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("curate batch size must be positive, got %d", cfg.BatchSize)
	}
	return &Curator{
		provider:  provider,
		templates: templates,
		cfg:       cfg,
		logger:    logger.With("component", "curator"),
		metrics:   metrics,
	}, nil
}

// RateBatch 对一批 pair 评分
// 缺少评分或评分不是对象的 pair 计入 Unrated，其余 pair 的评分位置不变
func (c *Curator) RateBatch(ctx context.Context, batch []model.Pair) BatchResult {
	projections := make([]map[string]any, len(batch))
	for i, p := range batch {
		projections[i] = p.Projection()
	}
	payload, err := json.MarshalIndent(projections, "", "  ")
	if err != nil {
		return BatchResult{Unrated: len(batch), Err: fmt.Errorf("encode pairs: %w", err)}
	}

	p, err := c.templates.Render(prompt.QARating, map[string]any{"pairs": string(payload)})
	if err != nil {
		return BatchResult{Unrated: len(batch), Err: err}
	}

	resp, err := c.provider.Generate(ctx, p, llm.GenerateOptions{
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "rating request failed", "error", err)
		return BatchResult{Unrated: len(batch), Err: err}
	}

	raw, err := jsonfix.ParseRatings(resp.FirstText())
	if err == nil && !slices.ContainsFunc(raw, func(r map[string]any) bool { return r != nil }) && len(batch) > 0 {
		err = &jsonfix.ParseError{Stage: jsonfix.StageShape, Preview: jsonfix.Preview(resp.FirstText()), Err: errors.New("no ratings in response")}
	}
	if err != nil {
		c.logger.WarnContext(ctx, "failed to parse ratings", "error", err)
		if c.metrics != nil {
			c.metrics.ParseFailures.WithLabelValues("rate").Inc()
		}
		return BatchResult{Unrated: len(batch), Err: err}
	}

	if len(raw) != len(batch) {
		c.logger.WarnContext(ctx, "rating count mismatch", "pairs", len(batch), "ratings", len(raw))
	}

	res := BatchResult{Ratings: make([]*model.Evaluation, len(batch))}
	for i := range batch {
		if i >= len(raw) || raw[i] == nil {
			res.Unrated++
			continue
		}
		e := model.EvaluationFromRating(raw[i])
		res.Ratings[i] = &e
	}
	if res.Unrated > 0 {
		c.logger.WarnContext(ctx, "pairs left unrated", "pairs", len(batch), "unrated", res.Unrated)
	}
	return res
}

// Curate 分批评分并按阈值筛选
// 保留 combined_score >= threshold 的 pair，顺序不变，均值覆盖所有参与评分的 pair
func (c *Curator) Curate(ctx context.Context, pairs []model.Pair) ([]model.Pair, model.CurationMetrics) {
	metrics := model.CurationMetrics{Total: len(pairs)}
	kept := make([]model.Pair, 0, len(pairs))
	var acc model.ScoreAccumulator

	for start := 0; start < len(pairs); start += c.cfg.BatchSize {
		if ctx.Err() != nil {
			metrics.Unrated += len(pairs) - start
			break
		}
		end := min(start+c.cfg.BatchSize, len(pairs))
		batch := pairs[start:end]

		res := c.RateBatch(ctx, batch)
		metrics.Unrated += res.Unrated
		for i, e := range res.Ratings {
			if e == nil {
				continue
			}
			acc.Add(*e)
			if e.CombinedScore >= c.cfg.Threshold {
				kept = append(kept, batch[i].WithEvaluation(*e))
			}
		}
		c.logger.DebugContext(ctx, "batch rated",
			"batch", start/c.cfg.BatchSize+1, "size", len(batch), "unrated", res.Unrated)
	}

	acc.Fill(&metrics)
	metrics.Kept = len(kept)
	return kept, metrics
}

// LogMetrics 输出筛选指标
func LogMetrics(ctx context.Context, logger *slog.Logger, name string, m model.CurationMetrics) {
	logger.InfoContext(ctx, "curation metrics",
		"dataset", name,
		"total", m.Total,
		"considered", m.Considered,
		"kept", m.Kept,
		"unrated", m.Unrated,
		"avg_accuracy", m.AvgAccuracy,
		"avg_relevance", m.AvgRelevance,
		"avg_clarity", m.AvgClarity,
		"avg_usefulness", m.AvgUsefulness,
		"avg_combined_score", m.AvgCombinedScore,
	)
}
