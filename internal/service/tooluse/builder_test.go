package tooluse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashwinyue/next-datakit/internal/config"
	"github.com/ashwinyue/next-datakit/internal/model"
	"github.com/ashwinyue/next-datakit/internal/observability"
	"github.com/ashwinyue/next-datakit/internal/service/tools"
	"github.com/ashwinyue/next-datakit/internal/testutil"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

func newTestBuilder(t *testing.T, provider *testutil.ScriptedProvider, opts ...Option) *Builder {
	t.Helper()
	v, err := tools.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	seq := 0
	opts = append([]Option{WithCallIDFunc(func() string {
		seq++
		return fmt.Sprintf("call_%04d", seq)
	})}, opts...)
	return NewBuilder(provider, testutil.PromptSet(t), v, observability.Discard(), opts...)
}

// pipelineReplies 除问题生成外的固定回复
func pipelineReplies() []testutil.Reply {
	return []testutil.Reply{
		{Match: "SEARCH-TERMS", Text: "\"synthetic data\"\n", Repeat: true},
		{Match: "ARXIV-RESULT", Text: "1. Paper A (2024.0001)", Repeat: true},
		{Match: "WEB-RESULT", Text: "Example.com: market report", Repeat: true},
		{Match: "TOOL-ANSWER", Text: "  Here is what I found.  ", Repeat: true},
	}
}

// ========== SelectTool 测试 ==========

func TestSelectTool(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"What recent RESEARCH covers this?", tools.ArxivSearch},
		{"Which papers discuss chunking?", tools.ArxivSearch},
		{"Are there academic reviews?", tools.ArxivSearch},
		{"Is there a study on this?", tools.ArxivSearch},
		{"What do studies say?", tools.ArxivSearch},
		{"Which journal published it?", tools.ArxivSearch},
		{"Any publication dates?", tools.ArxivSearch},
		{"Ask a Scholar about it", tools.ArxivSearch},
		{"What is the current market cap of ACME?", tools.WebSearch},
		{"Latest news on fine-tuning?", tools.WebSearch},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := SelectTool(tt.query); got != tt.want {
				t.Errorf("SelectTool(%q) = %q, want %q", tt.query, got, tt.want)
			}
			// 同一输入结果稳定
			if SelectTool(tt.query) != SelectTool(tt.query) {
				t.Error("SelectTool is not deterministic")
			}
		})
	}
}

// ========== GenerateQueries 测试 ==========

func TestGenerateQueries(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		n     int
		want  []string
	}{
		{
			name:  "fenced array truncated",
			reply: "```json\n[\"Q one?\", \"Q two?\", \"Q three?\"]\n```",
			n:     2,
			want:  []string{"Q one?", "Q two?"},
		},
		{
			name:  "non-array JSON becomes single query",
			reply: `"What is the latest funding round?"`,
			n:     3,
			want:  []string{`"What is the latest funding round?"`},
		},
		{
			name:  "heuristic extraction",
			reply: "Here are questions:\n- \"What recent papers exist?\",\n- \"How big is the market?\"\nThanks",
			n:     3,
			want:  []string{"What recent papers exist?", "How big is the market?"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := testutil.Texts(tt.reply)
			b := newTestBuilder(t, provider)

			got, err := b.GenerateQueries(context.Background(), "ctx", tt.n)
			if err != nil {
				t.Fatalf("GenerateQueries() error = %v", err)
			}
			if fmt.Sprintf("%q", got) != fmt.Sprintf("%q", tt.want) {
				t.Errorf("GenerateQueries() = %q, want %q", got, tt.want)
			}

			call := provider.Calls()[0]
			if call.Opts != queriesOpts {
				t.Errorf("opts = %+v, want %+v", call.Opts, queriesOpts)
			}
		})
	}
}

// ========== BuildConversation 测试 ==========

func TestBuildConversation_Arxiv(t *testing.T) {
	provider := testutil.NewScriptedProvider(pipelineReplies()...)
	b := newTestBuilder(t, provider)
	contextText := strings.Repeat("x", 1000)

	conv, err := b.BuildConversation(context.Background(), "What recent research covers synthetic data?", contextText)
	if err != nil {
		t.Fatalf("BuildConversation() error = %v", err)
	}

	if len(conv.Messages) != 4 {
		t.Fatalf("len(Messages) = %d, want 4", len(conv.Messages))
	}
	roles := []string{model.RoleUser, model.RoleAssistant, model.RoleTool, model.RoleAssistant}
	for i, r := range roles {
		if conv.Messages[i].Role != r {
			t.Errorf("Messages[%d].Role = %q, want %q", i, conv.Messages[i].Role, r)
		}
	}

	call := conv.Messages[1].ToolCalls[0]
	if call.ID != "call_0001" || conv.Messages[2].ToolCallID != call.ID {
		t.Errorf("call id mismatch: %q vs %q", call.ID, conv.Messages[2].ToolCallID)
	}
	if call.Function.Name != tools.ArxivSearch || call.Type != "function" {
		t.Errorf("call = %+v", call)
	}
	if call.Function.Arguments != `{"query":"synthetic data","max_results":5}` {
		t.Errorf("Arguments = %s", call.Function.Arguments)
	}
	if !strings.Contains(conv.Messages[1].Content, "recent academic papers") {
		t.Errorf("intent = %q", conv.Messages[1].Content)
	}
	if conv.Messages[2].Content != "1. Paper A (2024.0001)" || conv.Messages[3].Content != "Here is what I found." {
		t.Errorf("tool/answer content = %q / %q", conv.Messages[2].Content, conv.Messages[3].Content)
	}

	if len(conv.Tools) != 1 || conv.Tools[0].Function.Name != tools.ArxivSearch {
		t.Errorf("Tools = %+v", conv.Tools)
	}
	md := conv.Metadata
	if md.SourceContext != strings.Repeat("x", 200)+"..." || md.SearchQuery != "synthetic data" || md.ResultSource != config.ResultSourceSynthetic {
		t.Errorf("Metadata = %+v", md)
	}

	// 合成结果与最终回答的上下文截断
	for _, c := range provider.Calls() {
		switch {
		case strings.HasPrefix(c.Prompt, "ARXIV-RESULT"):
			if strings.Count(c.Prompt, "x") != 500 {
				t.Errorf("result context has %d chars, want 500", strings.Count(c.Prompt, "x"))
			}
			if c.Opts != resultOpts {
				t.Errorf("result opts = %+v", c.Opts)
			}
		case strings.HasPrefix(c.Prompt, "TOOL-ANSWER"):
			if strings.Count(c.Prompt, "x") != 800 {
				t.Errorf("answer context has %d chars, want 800", strings.Count(c.Prompt, "x"))
			}
		case strings.HasPrefix(c.Prompt, "SEARCH-TERMS"):
			if !strings.Contains(c.Prompt, "academic paper search") || c.Opts != termsOpts {
				t.Errorf("terms call = %+v", c)
			}
		}
	}
}

func TestBuildConversation_Web(t *testing.T) {
	b := newTestBuilder(t, testutil.NewScriptedProvider(pipelineReplies()...))

	conv, err := b.BuildConversation(context.Background(), "What is the current market size?", "ctx")
	if err != nil {
		t.Fatalf("BuildConversation() error = %v", err)
	}
	call := conv.Messages[1].ToolCalls[0]
	if call.Function.Name != tools.WebSearch || call.Function.Arguments != `{"query":"synthetic data"}` {
		t.Errorf("call = %+v", call)
	}
	if conv.Messages[2].Content != "Example.com: market report" {
		t.Errorf("tool result = %q", conv.Messages[2].Content)
	}
	if !strings.Contains(conv.Messages[1].Content, "current information") {
		t.Errorf("intent = %q", conv.Messages[1].Content)
	}
}

// ========== Build 测试 ==========

func TestBuild_SkipsShortQueriesAndContinues(t *testing.T) {
	provider := testutil.NewScriptedProvider(
		testutil.Reply{Match: "TOOL-QUERIES", Text: `["short?", "What is the current market size?"]`},
		testutil.Reply{Match: "TOOL-QUERIES", Err: errors.New("throttled")},
		testutil.Reply{Match: "TOOL-QUERIES", Text: `["Which papers study chunk overlap?"]`},
	).Add(pipelineReplies()...)
	b := newTestBuilder(t, provider, WithMetrics(observability.NewMetrics()))

	convs, stats := b.Build(context.Background(), []string{"chunk one", "chunk two", "chunk three"}, 2)
	if len(convs) != 2 {
		t.Fatalf("len(convs) = %d, want 2", len(convs))
	}
	if stats.Skipped != 1 || stats.Queries != 2 || stats.Conversations != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if len(stats.Errors) != 1 || stats.Errors[0].Chunk != 1 {
		t.Errorf("Errors = %+v", stats.Errors)
	}
	if convs[0].Metadata.ToolUsed != tools.WebSearch || convs[1].Metadata.ToolUsed != tools.ArxivSearch {
		t.Errorf("tools = %s, %s", convs[0].Metadata.ToolUsed, convs[1].Metadata.ToolUsed)
	}
	if convs[0].Messages[1].ToolCalls[0].ID == convs[1].Messages[1].ToolCalls[0].ID {
		t.Error("call ids should be unique within a run")
	}
}

func TestBuild_QueryLengthCountsCharacters(t *testing.T) {
	provider := testutil.NewScriptedProvider(
		// 8 个字符（24 字节）应被丢弃，14 个字符保留
		testutil.Reply{Match: "TOOL-QUERIES", Text: `["最新研究进展如何", "哪些论文研究了分块重叠问题？"]`},
	).Add(pipelineReplies()...)
	b := newTestBuilder(t, provider)

	convs, stats := b.Build(context.Background(), []string{"chunk"}, 2)
	if stats.Skipped != 1 || stats.Queries != 1 || len(convs) != 1 {
		t.Fatalf("stats = %+v, convs = %d", stats, len(convs))
	}
	if got := convs[0].Messages[0].Content; got != "哪些论文研究了分块重叠问题？" {
		t.Errorf("kept query = %q", got)
	}
}

func TestBuild_AbandonsChunkOnQueryFailure(t *testing.T) {
	provider := testutil.NewScriptedProvider(
		testutil.Reply{Match: "TOOL-QUERIES", Text: `["What is the current market size?", "What are the latest industry trends?"]`},
		testutil.Reply{Match: "SEARCH-TERMS", Text: "market size"},
		testutil.Reply{Match: "WEB-RESULT", Text: "result"},
		testutil.Reply{Match: "TOOL-ANSWER", Text: "answer"},
		testutil.Reply{Match: "SEARCH-TERMS", Err: errors.New("timeout")},
	)
	b := newTestBuilder(t, provider)

	convs, stats := b.Build(context.Background(), []string{"chunk"}, 2)
	if len(convs) != 1 {
		t.Errorf("len(convs) = %d, want 1 (earlier conversation kept)", len(convs))
	}
	if len(stats.Errors) != 1 {
		t.Errorf("Errors = %+v", stats.Errors)
	}
}

func TestBuild_DefaultCallIDs(t *testing.T) {
	v, _ := tools.NewValidator()
	provider := testutil.NewScriptedProvider(
		testutil.Reply{Match: "TOOL-QUERIES", Text: `["What is the current market size?", "What are the latest industry trends?"]`},
	).Add(pipelineReplies()...)
	b := NewBuilder(provider, testutil.PromptSet(t), v, observability.Discard())

	convs, _ := b.Build(context.Background(), []string{"chunk"}, 2)
	if len(convs) != 2 {
		t.Fatalf("len(convs) = %d, want 2", len(convs))
	}
	a, c := convs[0].Messages[1].ToolCalls[0].ID, convs[1].Messages[1].ToolCalls[0].ID
	if !strings.HasPrefix(a, "call_") || a == c {
		t.Errorf("call ids = %q, %q", a, c)
	}
}

// ========== 真实工具 测试 ==========

type fakeTool struct {
	out  string
	err  error
	args string
}

func (f *fakeTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: "fake"}, nil
}

func (f *fakeTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	f.args = argumentsInJSON
	return f.out, f.err
}

func TestBuildConversation_LiveResult(t *testing.T) {
	live := &fakeTool{out: `[{"title":"Live result"}]`}
	exec := tools.NewExecutor(map[string]tool.InvokableTool{tools.WebSearch: live}, observability.Discard(), nil)
	b := newTestBuilder(t, testutil.NewScriptedProvider(pipelineReplies()...), WithExecutor(exec))

	conv, err := b.BuildConversation(context.Background(), "What is the current market size?", "ctx")
	if err != nil {
		t.Fatalf("BuildConversation() error = %v", err)
	}
	if conv.Messages[2].Content != live.out || conv.Metadata.ResultSource != config.ResultSourceLive {
		t.Errorf("tool turn = %q, source = %q", conv.Messages[2].Content, conv.Metadata.ResultSource)
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(live.args), &args); err != nil || args["query"] != "synthetic data" {
		t.Errorf("live args = %s", live.args)
	}
}

func TestBuildConversation_LiveFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := tools.NewExecutor(map[string]tool.InvokableTool{
		tools.ArxivSearch: tools.NewArxivTool(tools.NewArxivClient(srv.Client(), srv.URL)),
	}, observability.Discard(), nil)
	b := newTestBuilder(t, testutil.NewScriptedProvider(pipelineReplies()...), WithExecutor(exec))

	conv, err := b.BuildConversation(context.Background(), "Which papers study this?", "ctx")
	if err != nil {
		t.Fatalf("BuildConversation() error = %v", err)
	}
	if conv.Metadata.ResultSource != config.ResultSourceSynthetic {
		t.Errorf("ResultSource = %q, want synthetic fallback", conv.Metadata.ResultSource)
	}
}
