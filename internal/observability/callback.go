package observability

import (
	"context"
	"log/slog"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// CallbackLogger Eino 回调日志处理器
// 实现 callbacks.Handler 接口，记录 ChatModel 的调用事件
type CallbackLogger struct {
	logger *slog.Logger
}

// NewCallbackLogger 创建回调日志处理器
func NewCallbackLogger(logger *slog.Logger) *CallbackLogger {
	return &CallbackLogger{logger: logger.With("component", "eino")}
}

// OnStart 组件执行开始时调用
func (l *CallbackLogger) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	attrs := []any{"name", info.Name, "type", info.Type, "component", info.Component}
	if in := model.ConvCallbackInput(input); in != nil {
		attrs = append(attrs, "messages", len(in.Messages))
	}
	l.logger.DebugContext(ctx, "component start", attrs...)
	return ctx
}

// OnEnd 组件执行成功结束时调用
func (l *CallbackLogger) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	attrs := []any{"name", info.Name, "type", info.Type, "component", info.Component}
	if out := model.ConvCallbackOutput(output); out != nil {
		if out.Message != nil {
			attrs = append(attrs, "output_chars", len(out.Message.Content))
		}
		if out.TokenUsage != nil {
			attrs = append(attrs,
				"prompt_tokens", out.TokenUsage.PromptTokens,
				"completion_tokens", out.TokenUsage.CompletionTokens)
		}
	}
	l.logger.DebugContext(ctx, "component end", attrs...)
	return ctx
}

// OnError 组件执行出错时调用
func (l *CallbackLogger) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	l.logger.WarnContext(ctx, "component error",
		"name", info.Name, "type", info.Type, "component", info.Component, "error", err)
	return ctx
}

// OnStartWithStreamInput 流式输入开始时调用
func (l *CallbackLogger) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	l.logger.DebugContext(ctx, "component stream start", "name", info.Name, "component", info.Component)
	return ctx
}

// OnEndWithStreamOutput 流式输出结束时调用
func (l *CallbackLogger) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	l.logger.DebugContext(ctx, "component stream end", "name", info.Name, "component", info.Component)
	return ctx
}
