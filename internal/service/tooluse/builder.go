// Package tooluse 构建工具调用训练对话
package tooluse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ashwinyue/next-datakit/internal/config"
	"github.com/ashwinyue/next-datakit/internal/llm"
	"github.com/ashwinyue/next-datakit/internal/model"
	"github.com/ashwinyue/next-datakit/internal/observability"
	"github.com/ashwinyue/next-datakit/internal/prompt"
	"github.com/ashwinyue/next-datakit/internal/service/jsonfix"
	"github.com/ashwinyue/next-datakit/internal/service/tools"
	"github.com/google/uuid"
)

// MinQueryLen 字符数不超过该值的问题会被丢弃
const MinQueryLen = 10

// 各步骤的生成参数
var (
	queriesOpts = llm.GenerateOptions{Temperature: 0.8, MaxTokens: 800}
	termsOpts   = llm.GenerateOptions{Temperature: 0.3, MaxTokens: 100}
	resultOpts  = llm.GenerateOptions{Temperature: 0.7, MaxTokens: 600}
	answerOpts  = llm.GenerateOptions{Temperature: 0.7, MaxTokens: 400}
)

// 上下文截断长度
const (
	resultContextLen = 500
	answerContextLen = 800
	sourceContextLen = 200
)

var academicKeywords = []string{
	"research", "papers", "academic", "study", "studies", "journal", "publication", "scholar",
}

// ChunkError 单个 chunk 的失败
type ChunkError struct {
	Chunk int
	Err   error
}

// Stats 构建统计
type Stats struct {
	Chunks        int
	Queries       int
	Skipped       int
	Conversations int
	Errors        []ChunkError
}

// Builder 工具调用对话构建器
type Builder struct {
	provider  llm.Provider
	templates *prompt.Set
	validator *tools.Validator
	executor  *tools.Executor
	logger    *slog.Logger
	metrics   *observability.Metrics
	newCallID func() string
}

// Option 构建器选项
type Option func(*Builder)

// WithExecutor 使用真实工具执行结果，执行失败时回退到合成结果
func WithExecutor(e *tools.Executor) Option {
	return func(b *Builder) {
		b.executor = e
	}
}

// WithMetrics 记录指标
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

// WithCallIDFunc 自定义调用 ID 生成
func WithCallIDFunc(f func() string) Option {
	return func(b *Builder) {
		b.newCallID = f
	}
}

// NewBuilder 创建构建器
func NewBuilder(provider llm.Provider, templates *prompt.Set, validator *tools.Validator, logger *slog.Logger, opts ...Option) *Builder {
	b := &Builder{
		provider:  provider,
		templates: templates,
		validator: validator,
		logger:    logger.With("component", "tooluse"),
		newCallID: newCallID,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// SelectTool 按关键词选择工具，大小写不敏感
func SelectTool(query string) string {
	q := strings.ToLower(query)
	for _, kw := range academicKeywords {
		if strings.Contains(q, kw) {
			return tools.ArxivSearch
		}
	}
	return tools.WebSearch
}

// Build 为每个 chunk 生成问题并构建对话
// 单个 chunk 出错时记录并放弃该 chunk 剩余的问题，继续处理后续 chunk
func (b *Builder) Build(ctx context.Context, chunks []string, queriesPerChunk int) ([]model.ToolConversation, Stats) {
	stats := Stats{Chunks: len(chunks)}
	convs := make([]model.ToolConversation, 0, len(chunks)*queriesPerChunk)

	for i, c := range chunks {
		if ctx.Err() != nil {
			break
		}
		b.logger.InfoContext(ctx, "generating tool-use examples", "chunk", i+1, "of", len(chunks))

		if err := b.buildChunk(ctx, c, queriesPerChunk, &convs, &stats); err != nil {
			b.logger.ErrorContext(ctx, "tool-use chunk failed", "chunk", i+1, "error", err)
			stats.Errors = append(stats.Errors, ChunkError{Chunk: i, Err: err})
		}
	}

	stats.Conversations = len(convs)
	b.logger.InfoContext(ctx, "tool-use generation done", "conversations", len(convs), "failed_chunks", len(stats.Errors))
	return convs, stats
}

func (b *Builder) buildChunk(ctx context.Context, chunkText string, n int, convs *[]model.ToolConversation, stats *Stats) error {
	queries, err := b.GenerateQueries(ctx, chunkText, n)
	if err != nil {
		return err
	}

	for _, q := range queries {
		if utf8.RuneCountInString(strings.TrimSpace(q)) <= MinQueryLen {
			stats.Skipped++
			continue
		}
		stats.Queries++

		conv, err := b.BuildConversation(ctx, q, chunkText)
		if err != nil {
			return err
		}
		*convs = append(*convs, conv)
		if b.metrics != nil {
			b.metrics.ToolConversations.WithLabelValues(conv.Metadata.ToolUsed).Inc()
		}
		b.logger.DebugContext(ctx, "tool-use example created", "query", truncate(q, 60), "tool", conv.Metadata.ToolUsed)
	}
	return nil
}

// GenerateQueries 生成需要外部工具才能回答的问题
// JSON 数组截断到 n；合法 JSON 但不是数组时整段文本作为一个问题；解析失败时提取含问号的行
func (b *Builder) GenerateQueries(ctx context.Context, contextText string, n int) ([]string, error) {
	text, err := b.complete(ctx, prompt.ToolQueries, map[string]any{
		"context":     contextText,
		"num_queries": n,
	}, queriesOpts)
	if err != nil {
		return nil, err
	}

	items, isArray, err := jsonfix.ParseStringArray(text)
	switch {
	case err != nil:
		b.logger.WarnContext(ctx, "failed to parse queries JSON, extracting manually", "error", err)
		if b.metrics != nil {
			b.metrics.ParseFailures.WithLabelValues("queries").Inc()
		}
		return extractQuestions(jsonfix.StripFences(text), n), nil
	case !isArray:
		return []string{jsonfix.StripFences(text)}, nil
	default:
		if len(items) > n {
			items = items[:n]
		}
		return items, nil
	}
}

func extractQuestions(text string, n int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" || !strings.Contains(line, "?") {
			continue
		}
		out = append(out, strings.Trim(line, ` "[],-`))
		if len(out) == n {
			break
		}
	}
	return out
}

// ExtractSearchTerms 提取检索关键词
func (b *Builder) ExtractSearchTerms(ctx context.Context, query, toolName string) (string, error) {
	kind := "web search"
	if toolName == tools.ArxivSearch {
		kind = "academic paper search"
	}
	text, err := b.complete(ctx, prompt.SearchTerms, map[string]any{
		"tool_name":   toolName,
		"query":       query,
		"search_kind": kind,
	}, termsOpts)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(text), `"`), nil
}

// SyntheticResult 生成模拟的工具返回
func (b *Builder) SyntheticResult(ctx context.Context, toolName, terms, contextText string) (string, error) {
	name := prompt.WebResult
	if toolName == tools.ArxivSearch {
		name = prompt.ArxivResult
	}
	text, err := b.complete(ctx, name, map[string]any{
		"query":   terms,
		"context": truncate(contextText, resultContextLen),
	}, resultOpts)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// FinalAnswer 基于工具结果生成最终回答
func (b *Builder) FinalAnswer(ctx context.Context, query, toolResult, contextText string) (string, error) {
	text, err := b.complete(ctx, prompt.ToolAnswer, map[string]any{
		"query":       query,
		"tool_result": toolResult,
		"context":     truncate(contextText, answerContextLen),
	}, answerOpts)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// toolResult 获取工具结果，真实执行失败时回退到合成结果
func (b *Builder) toolResult(ctx context.Context, toolName, terms, argsJSON, contextText string) (string, string, error) {
	if b.executor != nil {
		out, err := b.executor.Execute(ctx, toolName, argsJSON)
		if err == nil {
			return out, config.ResultSourceLive, nil
		}
		b.logger.WarnContext(ctx, "live tool failed, using synthetic result", "tool", toolName, "error", err)
	}
	out, err := b.SyntheticResult(ctx, toolName, terms, contextText)
	return out, config.ResultSourceSynthetic, err
}

// BuildConversation 构建单个四轮对话
func (b *Builder) BuildConversation(ctx context.Context, query, contextText string) (model.ToolConversation, error) {
	toolName := SelectTool(query)

	terms, err := b.ExtractSearchTerms(ctx, query, toolName)
	if err != nil {
		return model.ToolConversation{}, fmt.Errorf("extract search terms: %w", err)
	}

	var args any
	intent := "current information"
	if toolName == tools.ArxivSearch {
		args = tools.ArxivSearchInput{Query: terms, MaxResults: tools.DefaultMaxResults}
		intent = "recent academic papers"
	} else {
		args = tools.WebSearchInput{Query: terms}
	}
	if err := b.validator.Validate(toolName, args); err != nil {
		return model.ToolConversation{}, err
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return model.ToolConversation{}, fmt.Errorf("encode tool arguments: %w", err)
	}

	result, source, err := b.toolResult(ctx, toolName, terms, string(argsJSON), contextText)
	if err != nil {
		return model.ToolConversation{}, fmt.Errorf("tool result: %w", err)
	}

	answer, err := b.FinalAnswer(ctx, query, result, contextText)
	if err != nil {
		return model.ToolConversation{}, fmt.Errorf("final answer: %w", err)
	}

	var defs []model.ToolDefinition
	for _, d := range b.validator.Definitions() {
		if d.Function.Name == toolName {
			defs = append(defs, d)
		}
	}

	callID := b.newCallID()
	return model.ToolConversation{
		Messages: []model.Message{
			{Role: model.RoleUser, Content: query},
			{
				Role:    model.RoleAssistant,
				Content: fmt.Sprintf("I'll help you find information about that. Let me search for %s on this topic.", intent),
				ToolCalls: []model.ToolCall{{
					ID:   callID,
					Type: "function",
					Function: model.FunctionCall{
						Name:      toolName,
						Arguments: string(argsJSON),
					},
				}},
			},
			{Role: model.RoleTool, ToolCallID: callID, Name: toolName, Content: result},
			{Role: model.RoleAssistant, Content: answer},
		},
		Tools: defs,
		Metadata: model.ConversationMetadata{
			SourceContext: truncate(contextText, sourceContextLen) + "...",
			ToolUsed:      toolName,
			SearchQuery:   terms,
			ResultSource:  source,
		},
	}, nil
}

func (b *Builder) complete(ctx context.Context, name string, params map[string]any, opts llm.GenerateOptions) (string, error) {
	p, err := b.templates.Render(name, params)
	if err != nil {
		return "", err
	}
	resp, err := b.provider.Generate(ctx, p, opts)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
