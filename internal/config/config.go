package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashwinyue/next-datakit/internal/prompt"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App           AppConfig           `mapstructure:"app" yaml:"app"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
	LLM           LLMConfig           `mapstructure:"llm" yaml:"llm"`
	Generation    GenerationConfig    `mapstructure:"generation" yaml:"generation"`
	Curate        CurateConfig        `mapstructure:"curate" yaml:"curate"`
	ToolUse       ToolUseConfig       `mapstructure:"tool_use" yaml:"tool_use"`
	Data          DataConfig          `mapstructure:"data" yaml:"data"`
	Ingest        IngestConfig        `mapstructure:"ingest" yaml:"ingest"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline" yaml:"pipeline"`
	Prompts       map[string]string   `mapstructure:"prompts" yaml:"prompts"`
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
	Version     string `mapstructure:"version" yaml:"version"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// LLMConfig 模型提供方配置
type LLMConfig struct {
	Provider  string          `mapstructure:"provider" yaml:"provider"`
	Timeout   int             `mapstructure:"timeout" yaml:"timeout"` // 秒
	OpenAI    OpenAIConfig    `mapstructure:"openai" yaml:"openai"`
	DeepSeek  OpenAIConfig    `mapstructure:"deepseek" yaml:"deepseek"`
	Alibaba   OpenAIConfig    `mapstructure:"alibaba" yaml:"alibaba"`
	Bedrock   BedrockConfig   `mapstructure:"bedrock" yaml:"bedrock"`
	Anthropic AnthropicConfig `mapstructure:"anthropic" yaml:"anthropic"`
	Ollama    OllamaConfig    `mapstructure:"ollama" yaml:"ollama"`
}

// OpenAIConfig OpenAI 兼容接口配置
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`
}

// BedrockConfig AWS Bedrock 配置
type BedrockConfig struct {
	Region          string `mapstructure:"region" yaml:"region"`
	Model           string `mapstructure:"model" yaml:"model"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token" yaml:"session_token"`
}

// AnthropicConfig Anthropic API 配置
type AnthropicConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`
}

// OllamaConfig Ollama 配置
type OllamaConfig struct {
	Host  string `mapstructure:"host" yaml:"host"`
	Model string `mapstructure:"model" yaml:"model"`
}

// GenerationConfig QA/CoT 生成配置
type GenerationConfig struct {
	ChunkSize    int     `mapstructure:"chunk_size" yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int     `mapstructure:"chunk_overlap" yaml:"chunk_overlap" json:"chunk_overlap"`
	Temperature  float64 `mapstructure:"temperature" yaml:"temperature" json:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens" yaml:"max_tokens" json:"max_tokens"`
	NumQAPairs   int     `mapstructure:"num_qa_pairs" yaml:"num_qa_pairs" json:"num_qa_pairs"`
	NumCoTPairs  int     `mapstructure:"num_cot_pairs" yaml:"num_cot_pairs" json:"num_cot_pairs"`
	// BatchSize > 0 时按轮次从轮换的 chunk 样本中生成
	BatchSize    int `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size"`
	SampleChunks int `mapstructure:"sample_chunks" yaml:"sample_chunks" json:"sample_chunks"`
}

// CurateConfig 质量筛选配置
type CurateConfig struct {
	Threshold   float64 `mapstructure:"threshold" yaml:"threshold"`
	BatchSize   int     `mapstructure:"batch_size" yaml:"batch_size"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ToolUseConfig 工具调用样本配置
type ToolUseConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	QueriesPerChunk int    `mapstructure:"queries_per_chunk" yaml:"queries_per_chunk"`
	MaxChunks       int    `mapstructure:"max_chunks" yaml:"max_chunks"`
	ResultSource    string `mapstructure:"result_source" yaml:"result_source"` // synthetic, live
}

// DataConfig 输入输出目录
type DataConfig struct {
	InputDir   string   `mapstructure:"input_dir" yaml:"input_dir"`
	OutputDir  string   `mapstructure:"output_dir" yaml:"output_dir"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
}

// IngestConfig 文档解析配置
type IngestConfig struct {
	PDFBackend string `mapstructure:"pdf_backend" yaml:"pdf_backend"` // eino, plain
}

// PipelineConfig 流水线配置
type PipelineConfig struct {
	PerDocument bool `mapstructure:"per_document" yaml:"per_document"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	Mode         string `mapstructure:"mode" yaml:"mode"`
	ReadTimeout  int    `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// ObservabilityConfig 指标与追踪配置
type ObservabilityConfig struct {
	MetricsEnabled bool    `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	TraceEndpoint  string  `mapstructure:"trace_endpoint" yaml:"trace_endpoint"`
	TraceInsecure  bool    `mapstructure:"trace_insecure" yaml:"trace_insecure"`
	SamplingRate   float64 `mapstructure:"sampling_rate" yaml:"sampling_rate"`
}

// 结果来源
const (
	ResultSourceSynthetic = "synthetic"
	ResultSourceLive      = "live"
)

// PDF 解析后端
const (
	PDFBackendEino  = "eino"
	PDFBackendPlain = "plain"
)

// Load 加载配置
// path 为空时只使用默认值与环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// 环境变量
	v.SetEnvPrefix("NEXT_DATAKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// 必需的提示词模板及其参数
var requiredPrompts = map[string][]string{
	prompt.QAGeneration:  {"text", "num_pairs"},
	prompt.CoTGeneration: {"text", "num_pairs"},
	prompt.QARating:      {"pairs"},
}

// Validate 校验配置，配置错误在启动时直接失败
func (c *Config) Validate() error {
	var errs []error

	g := c.Generation
	if g.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("generation.chunk_size must be positive, got %d", g.ChunkSize))
	}
	if g.ChunkOverlap < 0 || g.ChunkOverlap >= g.ChunkSize {
		errs = append(errs, fmt.Errorf("generation.chunk_overlap must be in [0, chunk_size), got %d", g.ChunkOverlap))
	}
	if g.NumQAPairs < 0 || g.NumCoTPairs < 0 {
		errs = append(errs, errors.New("generation.num_qa_pairs and num_cot_pairs must not be negative"))
	}
	if c.Curate.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("curate.batch_size must be positive, got %d", c.Curate.BatchSize))
	}
	if c.ToolUse.Enabled && c.ToolUse.QueriesPerChunk <= 0 {
		errs = append(errs, fmt.Errorf("tool_use.queries_per_chunk must be positive, got %d", c.ToolUse.QueriesPerChunk))
	}
	switch c.ToolUse.ResultSource {
	case ResultSourceSynthetic, ResultSourceLive:
	default:
		errs = append(errs, fmt.Errorf("tool_use.result_source must be %q or %q, got %q",
			ResultSourceSynthetic, ResultSourceLive, c.ToolUse.ResultSource))
	}
	switch c.Ingest.PDFBackend {
	case PDFBackendEino, PDFBackendPlain:
	default:
		errs = append(errs, fmt.Errorf("ingest.pdf_backend must be %q or %q, got %q",
			PDFBackendEino, PDFBackendPlain, c.Ingest.PDFBackend))
	}

	for name, params := range requiredPrompts {
		raw, ok := c.Prompts[name]
		if !ok || strings.TrimSpace(raw) == "" {
			errs = append(errs, fmt.Errorf("prompts.%s is required", name))
			continue
		}
		tmpl, err := prompt.Parse(name, raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := tmpl.Accepts(params...); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Templates 解析全部提示词模板
func (c *Config) Templates() (*prompt.Set, error) {
	return prompt.NewSet(c.Prompts)
}

// GetAddr 获取服务器地址
func (c *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GenerationSnapshot 生成配置快照，写入数据集元数据
func (c *Config) GenerationSnapshot() map[string]any {
	g := c.Generation
	return map[string]any{
		"chunk_size":    g.ChunkSize,
		"chunk_overlap": g.ChunkOverlap,
		"temperature":   g.Temperature,
		"num_qa_pairs":  g.NumQAPairs,
		"num_cot_pairs": g.NumCoTPairs,
		"batch_size":    g.BatchSize,
		"provider":      c.LLM.Provider,
	}
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "next-datakit")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// LLM
	v.SetDefault("llm.provider", "bedrock")
	v.SetDefault("llm.timeout", 120)
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.deepseek.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("llm.deepseek.model", "deepseek-chat")
	v.SetDefault("llm.alibaba.base_url", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("llm.alibaba.model", "qwen-plus")
	v.SetDefault("llm.bedrock.region", "us-east-1")
	v.SetDefault("llm.bedrock.model", "global.anthropic.claude-sonnet-4-20250514-v1:0")
	v.SetDefault("llm.anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.ollama.host", "http://localhost:11434")
	v.SetDefault("llm.ollama.model", "llama3.1")
	// 密钥默认为空，使 NEXT_DATAKIT_LLM_*_API_KEY 等环境变量生效
	for _, key := range []string{
		"llm.openai.api_key", "llm.deepseek.api_key", "llm.alibaba.api_key", "llm.anthropic.api_key",
		"llm.anthropic.base_url", "llm.bedrock.access_key_id", "llm.bedrock.secret_access_key",
		"llm.bedrock.session_token", "observability.trace_endpoint",
	} {
		v.SetDefault(key, "")
	}

	// Generation
	v.SetDefault("generation.chunk_size", 4000)
	v.SetDefault("generation.chunk_overlap", 200)
	v.SetDefault("generation.temperature", 0.7)
	v.SetDefault("generation.max_tokens", 8192)
	v.SetDefault("generation.num_qa_pairs", 25)
	v.SetDefault("generation.num_cot_pairs", 10)
	v.SetDefault("generation.batch_size", 0)
	v.SetDefault("generation.sample_chunks", 5)

	// Curate
	v.SetDefault("curate.threshold", 7.0)
	v.SetDefault("curate.batch_size", 5)
	v.SetDefault("curate.temperature", 0.2)
	v.SetDefault("curate.max_tokens", 4096)

	// Tool use
	v.SetDefault("tool_use.enabled", false)
	v.SetDefault("tool_use.queries_per_chunk", 3)
	v.SetDefault("tool_use.max_chunks", 5)
	v.SetDefault("tool_use.result_source", ResultSourceSynthetic)

	// Data
	v.SetDefault("data.input_dir", "data/input")
	v.SetDefault("data.output_dir", "data")
	v.SetDefault("data.extensions", []string{".pdf"})

	v.SetDefault("ingest.pdf_backend", PDFBackendEino)
	v.SetDefault("pipeline.per_document", false)

	// Prompts
	for name, text := range prompt.Defaults() {
		v.SetDefault("prompts."+name, text)
	}

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	// Observability
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.sampling_rate", 1.0)
}
