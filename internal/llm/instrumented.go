package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashwinyue/next-datakit/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

// Instrumented 为提供方增加超时、日志、指标与追踪
type Instrumented struct {
	next    Provider
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	timeout time.Duration
}

// Instrument 包装提供方，metrics 与 tracer 可以为 nil
func Instrument(next Provider, logger *slog.Logger, metrics *observability.Metrics, tracer *observability.Tracer, timeout time.Duration) *Instrumented {
	return &Instrumented{
		next:    next,
		logger:  logger.With("component", "llm", "provider", next.Name()),
		metrics: metrics,
		tracer:  tracer,
		timeout: timeout,
	}
}

// Name 提供方名称
func (p *Instrumented) Name() string {
	return p.next.Name()
}

// Generate 单轮生成
func (p *Instrumented) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Response, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	ctx, span := p.tracer.Start(ctx, "llm.generate",
		attribute.String("llm.provider", p.next.Name()),
		attribute.Float64("llm.temperature", opts.Temperature),
		attribute.Int("llm.max_tokens", opts.MaxTokens),
		attribute.Int("llm.prompt_chars", len(prompt)),
	)
	defer span.End()

	start := time.Now()
	resp, err := p.next.Generate(ctx, prompt, opts)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		observability.RecordError(span, err)
		p.logger.WarnContext(ctx, "generate failed", "error", err, "elapsed", elapsed)
	} else {
		span.SetAttributes(
			attribute.Int("llm.input_tokens", resp.Usage.InputTokens),
			attribute.Int("llm.output_tokens", resp.Usage.OutputTokens),
		)
		p.logger.DebugContext(ctx, "generate done",
			"elapsed", elapsed,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
			"stop_reason", resp.StopReason)
	}

	if p.metrics != nil {
		var in, out int
		if resp != nil {
			in, out = resp.Usage.InputTokens, resp.Usage.OutputTokens
		}
		p.metrics.RecordLLMRequest(p.next.Name(), status, elapsed.Seconds(), in, out)
	}
	return resp, err
}
