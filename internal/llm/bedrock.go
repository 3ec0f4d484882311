package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ashwinyue/next-datakit/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// modelInvoker bedrockruntime.Client 的子集
type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider 通过 InvokeModel 调用 Bedrock 上的 Claude 模型
type BedrockProvider struct {
	client  modelInvoker
	modelID string
}

// NewBedrockProvider 创建 Bedrock 提供方
// 未配置 access key 时使用默认凭证链（环境变量、IAM 角色等）
func NewBedrockProvider(ctx context.Context, cfg config.BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("bedrock: model is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: cfg.Model,
	}, nil
}

// Name 提供方名称
func (p *BedrockProvider) Name() string {
	return "bedrock"
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	Messages         []bedrockMessage `json:"messages"`
	MaxTokens        int              `json:"max_tokens"`
	Temperature      float64          `json:"temperature"`
}

// Generate 单轮生成
func (p *BedrockProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Response, error) {
	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		Messages:         []bedrockMessage{{Role: "user", Content: prompt}},
		MaxTokens:        opts.MaxTokens,
		Temperature:      opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to encode request: %w", err)
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: invoke model: %w", err)
	}
	if out == nil || len(out.Body) == 0 {
		return nil, fmt.Errorf("bedrock: %w", ErrEmptyResponse)
	}

	var resp Response
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("bedrock: failed to decode response: %w", err)
	}
	return &resp, nil
}
