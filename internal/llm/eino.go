package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ashwinyue/next-datakit/internal/config"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModelProvider 基于 Eino ChatModel 的提供方
type ChatModelProvider struct {
	name     string
	cm       einomodel.BaseChatModel
	handlers []callbacks.Handler
}

// NewChatModelProvider 包装任意 Eino ChatModel
func NewChatModelProvider(name string, cm einomodel.BaseChatModel, handlers ...callbacks.Handler) *ChatModelProvider {
	return &ChatModelProvider{name: name, cm: cm, handlers: handlers}
}

// Name 提供方名称
func (p *ChatModelProvider) Name() string {
	return p.name
}

// Generate 单轮生成
func (p *ChatModelProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Response, error) {
	if len(p.handlers) > 0 {
		ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
			Name:      p.name,
			Type:      "ChatModel",
			Component: components.ComponentOfChatModel,
		}, p.handlers...)
	}

	var options []einomodel.Option
	options = append(options, einomodel.WithTemperature(float32(opts.Temperature)))
	if opts.MaxTokens > 0 {
		options = append(options, einomodel.WithMaxTokens(opts.MaxTokens))
	}

	msg, err := p.cm.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)}, options...)
	if err != nil {
		return nil, fmt.Errorf("%s generate: %w", p.name, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%s generate: %w", p.name, ErrEmptyResponse)
	}

	resp := TextResponse(msg.Content)
	if meta := msg.ResponseMeta; meta != nil {
		resp.StopReason = meta.FinishReason
		if meta.Usage != nil {
			resp.Usage = Usage{
				InputTokens:  meta.Usage.PromptTokens,
				OutputTokens: meta.Usage.CompletionTokens,
			}
		}
	}
	return resp, nil
}

// newChatModel 创建 OpenAI 兼容的 ChatModel
func newChatModel(ctx context.Context, cfg config.LLMConfig) (einomodel.BaseChatModel, error) {
	var c config.OpenAIConfig

	switch cfg.Provider {
	case "openai":
		c = cfg.OpenAI
	case "alibaba", "qwen", "dashscope":
		c = cfg.Alibaba
		if c.BaseURL == "" {
			c.BaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
		}
	case "deepseek":
		c = cfg.DeepSeek
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}

	if c.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for provider: %s", cfg.Provider)
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}

	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  c.APIKey,
		BaseURL: c.BaseURL,
		Model:   c.Model,
		Timeout: time.Duration(cfg.Timeout) * time.Second,
	})
}
