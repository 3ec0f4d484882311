package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 流水线指标
// 每个实例持有独立的 Registry，测试中可以重复创建
type Metrics struct {
	registry *prometheus.Registry

	// LLMRequestDuration 模型调用耗时
	// Labels: provider, status (success|error)
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter 模型调用次数
	// Labels: provider, status
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed token 消耗
	// Labels: provider, type (input|output)
	LLMTokensUsed *prometheus.CounterVec

	// ChunksProduced 产生的分块数
	ChunksProduced prometheus.Counter

	// DocumentsIngested 解析的文档数
	// Labels: status (success|error)
	DocumentsIngested *prometheus.CounterVec

	// PairsGenerated 生成的样本数
	// Labels: kind (qa|cot)
	PairsGenerated *prometheus.CounterVec

	// PairsKept 通过筛选的样本数
	// Labels: kind
	PairsKept *prometheus.CounterVec

	// ParseFailures 模型输出解析失败次数
	// Labels: stage (generate|rate|queries)
	ParseFailures *prometheus.CounterVec

	// ToolConversations 工具调用对话数
	// Labels: tool
	ToolConversations *prometheus.CounterVec

	// ToolExecutionDuration 真实工具执行耗时
	// Labels: tool, status
	ToolExecutionDuration *prometheus.HistogramVec

	// StepDuration 流水线步骤耗时
	// Labels: step
	StepDuration *prometheus.HistogramVec

	// PipelineRuns 流水线运行次数
	// Labels: status (success|error)
	PipelineRuns *prometheus.CounterVec

	// HTTPRequestDuration HTTP 请求耗时
	// Labels: method, path, status
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics 创建并注册指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LLMRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datakit_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "status"},
		),
		LLMRequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datakit_llm_requests_total",
				Help: "Total number of LLM requests",
			},
			[]string{"provider", "status"},
		),
		LLMTokensUsed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datakit_llm_tokens_total",
				Help: "Total number of tokens used",
			},
			[]string{"provider", "type"},
		),
		ChunksProduced: f.NewCounter(
			prometheus.CounterOpts{
				Name: "datakit_chunks_total",
				Help: "Total number of text chunks produced",
			},
		),
		DocumentsIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datakit_documents_ingested_total",
				Help: "Total number of documents ingested",
			},
			[]string{"status"},
		),
		PairsGenerated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datakit_pairs_generated_total",
				Help: "Total number of generated pairs",
			},
			[]string{"kind"},
		),
		PairsKept: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datakit_pairs_kept_total",
				Help: "Total number of pairs kept after curation",
			},
			[]string{"kind"},
		),
		ParseFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datakit_parse_failures_total",
				Help: "Total number of unparseable model outputs",
			},
			[]string{"stage"},
		),
		ToolConversations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datakit_tool_conversations_total",
				Help: "Total number of tool-use conversations built",
			},
			[]string{"tool"},
		),
		ToolExecutionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datakit_tool_execution_duration_seconds",
				Help:    "Duration of live tool executions in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool", "status"},
		),
		StepDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datakit_pipeline_step_duration_seconds",
				Help:    "Duration of pipeline steps in seconds",
				Buckets: []float64{0.1, 1, 5, 30, 60, 300, 900, 1800},
			},
			[]string{"step"},
		),
		PipelineRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datakit_pipeline_runs_total",
				Help: "Total number of pipeline runs",
			},
			[]string{"status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datakit_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status"},
		),
	}
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordLLMRequest 记录一次模型调用
func (m *Metrics) RecordLLMRequest(provider, status string, seconds float64, inputTokens, outputTokens int) {
	m.LLMRequestDuration.WithLabelValues(provider, status).Observe(seconds)
	m.LLMRequestCounter.WithLabelValues(provider, status).Inc()
	if inputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}
