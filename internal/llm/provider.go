// Package llm 提供统一的文本生成接口
// 支持 OpenAI 兼容接口（openai/deepseek/dashscope）、AWS Bedrock、Anthropic 与 Ollama
package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyResponse 模型没有返回内容
var ErrEmptyResponse = errors.New("empty model response")

// ErrUnknownProvider 不支持的模型提供方
var ErrUnknownProvider = errors.New("unknown llm provider")

// Provider 文本生成接口
type Provider interface {
	// Name 提供方名称，用于日志与指标
	Name() string
	// Generate 单轮生成
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Response, error)
}

// GenerateOptions 生成参数
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// ContentBlock 响应内容块
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Usage token 用量
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response 模型响应
type Response struct {
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason,omitempty"`
	Usage      Usage          `json:"usage"`
}

// FirstText 第一个内容块的文本，没有内容时返回空串
func (r *Response) FirstText() string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}

// Text 拼接全部文本块
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == "" || b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// TextResponse 构造单个文本块的响应
func TextResponse(text string) *Response {
	return &Response{Content: []ContentBlock{{Type: "text", Text: text}}}
}
