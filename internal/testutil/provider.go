// Package testutil 提供测试辅助工具
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/ashwinyue/next-datakit/internal/llm"
)

// Call 一次记录下来的调用
type Call struct {
	Prompt string
	Opts   llm.GenerateOptions
}

// Reply 脚本中的一条回复
type Reply struct {
	// Match 非空时只回复包含该子串的提示词
	Match string
	Text  string
	Err   error
	// Repeat 为 true 时回复不会被消耗
	Repeat bool
}

// ScriptedProvider 按脚本回复的 llm.Provider
// 每次调用取第一条匹配的回复；没有匹配时返回 Fallback
type ScriptedProvider struct {
	mu       sync.Mutex
	replies  []Reply
	calls    []Call
	Fallback string
}

// NewScriptedProvider 创建脚本提供方
func NewScriptedProvider(replies ...Reply) *ScriptedProvider {
	return &ScriptedProvider{replies: replies}
}

// Texts 按顺序依次返回给定文本
func Texts(texts ...string) *ScriptedProvider {
	replies := make([]Reply, len(texts))
	for i, t := range texts {
		replies[i] = Reply{Text: t}
	}
	return NewScriptedProvider(replies...)
}

// Name 提供方名称
func (p *ScriptedProvider) Name() string {
	return "scripted"
}

// Add 追加回复
func (p *ScriptedProvider) Add(replies ...Reply) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, replies...)
	return p
}

// Generate 返回第一条匹配的回复
func (p *ScriptedProvider) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{Prompt: prompt, Opts: opts})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, r := range p.replies {
		if r.Match != "" && !strings.Contains(prompt, r.Match) {
			continue
		}
		if !r.Repeat {
			p.replies = append(p.replies[:i:i], p.replies[i+1:]...)
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return llm.TextResponse(r.Text), nil
	}
	return llm.TextResponse(p.Fallback), nil
}

// Calls 已记录的调用
func (p *ScriptedProvider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount 调用次数
func (p *ScriptedProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
