package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ashwinyue/next-datakit/internal/config"
	"github.com/cloudwego/eino/callbacks"
)

// New 按配置创建提供方
func New(ctx context.Context, cfg config.LLMConfig, handlers ...callbacks.Handler) (Provider, error) {
	switch cfg.Provider {
	case "openai", "deepseek", "alibaba", "qwen", "dashscope":
		cm, err := newChatModel(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return NewChatModelProvider(cfg.Provider, cm, handlers...), nil
	case "bedrock":
		return NewBedrockProvider(ctx, cfg.Bedrock)
	case "anthropic":
		return NewAnthropicProvider(cfg.Anthropic)
	case "ollama":
		client := &http.Client{}
		if cfg.Timeout > 0 {
			client.Timeout = time.Duration(cfg.Timeout) * time.Second
		}
		return NewOllamaProvider(cfg.Ollama, client)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}
