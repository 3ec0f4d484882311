package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashwinyue/next-datakit/internal/observability"
	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

// Executor 执行真实工具调用
type Executor struct {
	tools   map[string]tool.InvokableTool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewExecutor 使用给定工具创建执行器
func NewExecutor(tools map[string]tool.InvokableTool, logger *slog.Logger, metrics *observability.Metrics) *Executor {
	return &Executor{
		tools:   tools,
		logger:  logger.With("component", "tool_executor"),
		metrics: metrics,
	}
}

// NewLiveExecutor 创建访问 arXiv 与 DuckDuckGo 的执行器
func NewLiveExecutor(ctx context.Context, httpClient *http.Client, logger *slog.Logger, metrics *observability.Metrics) *Executor {
	arxiv := NewArxivClient(httpClient, "")
	return NewExecutor(map[string]tool.InvokableTool{
		ArxivSearch: NewArxivTool(arxiv),
		WebSearch:   newWebSearchTool(ctx, logger),
	}, logger, metrics)
}

// Execute 执行工具，argumentsJSON 为 JSON 编码的参数
func (e *Executor) Execute(ctx context.Context, name, argumentsJSON string) (string, error) {
	t, ok := e.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	start := time.Now()
	out, err := t.InvokableRun(ctx, argumentsJSON)
	status := "success"
	if err != nil {
		status = "error"
	}
	if e.metrics != nil {
		e.metrics.ToolExecutionDuration.WithLabelValues(name, status).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		e.logger.WarnContext(ctx, "tool execution failed", "tool", name, "error", err)
		return "", fmt.Errorf("execute %s: %w", name, err)
	}
	return out, nil
}

// NewArxivTool 将 arXiv 检索包装为 Eino 工具
func NewArxivTool(client *ArxivClient) tool.InvokableTool {
	t, err := utils.InferTool(ArxivSearch, arxivDesc,
		func(ctx context.Context, input *ArxivSearchInput) (string, error) {
			papers, err := client.Search(ctx, input.Query, input.MaxResults)
			if err != nil {
				return "", err
			}
			b, err := json.Marshal(papers)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
	)
	if err != nil {
		return &stubTool{name: ArxivSearch}
	}
	return t
}

// newWebSearchTool 创建网络搜索工具
func newWebSearchTool(ctx context.Context, logger *slog.Logger) tool.InvokableTool {
	searchTool, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   WebSearch,
		ToolDesc:   webDesc,
		MaxResults: DefaultMaxResults,
	})
	if err != nil {
		logger.Warn("failed to create web search tool", "error", err)
		return &stubTool{name: WebSearch}
	}
	return searchTool
}

// stubTool 占位工具，执行时返回错误
type stubTool struct {
	name string
}

func (t *stubTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.name,
		Desc: t.name + " (unavailable)",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "The query string",
				Required: true,
			},
		}),
	}, nil
}

func (t *stubTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	return "", fmt.Errorf("%s is not available", t.name)
}
