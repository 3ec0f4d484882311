package model

// 会话角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolConversation 一条工具调用训练样本
type ToolConversation struct {
	Messages []Message            `json:"messages"`
	Tools    []ToolDefinition     `json:"tools"`
	Metadata ConversationMetadata `json:"metadata"`
}

// Message 会话中的一轮
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall 助手发起的工具调用
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall 工具名与 JSON 编码的参数
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition OpenAI function 风格的工具定义
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec 工具的名称、描述与参数 schema
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ConversationMetadata 样本来源信息
type ConversationMetadata struct {
	SourceContext string `json:"source_context"`
	ToolUsed      string `json:"tool_used"`
	SearchQuery   string `json:"search_query"`
	ResultSource  string `json:"result_source,omitempty"` // synthetic | live
}
