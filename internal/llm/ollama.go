package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ashwinyue/next-datakit/internal/config"
	"github.com/ollama/ollama/api"
)

// OllamaProvider 调用本地 Ollama 服务
type OllamaProvider struct {
	client *api.Client
	model  string
}

// NewOllamaProvider 创建 Ollama 提供方
func NewOllamaProvider(cfg config.OllamaConfig, httpClient *http.Client) (*OllamaProvider, error) {
	host := cfg.Host
	if host == "" {
		host = "http://localhost:11434"
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid host %q: %w", host, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}

	return &OllamaProvider{
		client: api.NewClient(base, httpClient),
		model:  cfg.Model,
	}, nil
}

// Name 提供方名称
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// Generate 单轮生成
func (p *OllamaProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Response, error) {
	stream := false
	options := map[string]any{"temperature": opts.Temperature}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	req := api.GenerateRequest{
		Model:   p.model,
		Prompt:  prompt,
		Stream:  &stream,
		Options: options,
	}

	var sb strings.Builder
	resp := &Response{}
	err := p.client.Generate(ctx, &req, func(r api.GenerateResponse) error {
		sb.WriteString(r.Response)
		if r.Done {
			resp.StopReason = r.DoneReason
			resp.Usage = Usage{InputTokens: r.PromptEvalCount, OutputTokens: r.EvalCount}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: generate: %w", err)
	}

	resp.Content = []ContentBlock{{Type: "text", Text: sb.String()}}
	return resp, nil
}
