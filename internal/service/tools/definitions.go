// Package tools 提供工具定义、参数校验与真实工具执行
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/ashwinyue/next-datakit/internal/model"
	"github.com/invopop/jsonschema"
)

// 工具名称
const (
	ArxivSearch = "arxiv_search"
	WebSearch   = "duckduckgo_search"
)

// 工具描述
const (
	arxivDesc = "Search for academic papers on ArXiv. Use this when you need to find research papers, scientific articles, or academic publications on a specific topic."
	webDesc   = "Search the web using DuckDuckGo. Use this for general information, news, current events, or any topic not requiring academic papers."
)

// DefaultMaxResults 默认返回条数
const DefaultMaxResults = 5

// ArxivSearchInput arxiv_search 参数
type ArxivSearchInput struct {
	Query      string `json:"query" jsonschema_description:"The search query for finding papers. Be specific about the research topic."`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=10,default=5" jsonschema_description:"Maximum number of papers to return (default: 5, max: 10)"`
}

// WebSearchInput duckduckgo_search 参数
type WebSearchInput struct {
	Query      string `json:"query" jsonschema_description:"The search query. Be specific about what information you're looking for."`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=10,default=5" jsonschema_description:"Maximum number of results to return (default: 5, max: 10)"`
}

// reflectParams 反射参数结构体为 JSON Schema
func reflectParams(v any) (map[string]any, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := r.Reflect(v)
	schema.Version = ""

	b, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var params map[string]any
	if err := json.Unmarshal(b, &params); err != nil {
		return nil, err
	}
	return params, nil
}

// Definitions 全部工具定义，顺序固定
func Definitions() ([]model.ToolDefinition, error) {
	specs := []struct {
		name  string
		desc  string
		input any
	}{
		{ArxivSearch, arxivDesc, &ArxivSearchInput{}},
		{WebSearch, webDesc, &WebSearchInput{}},
	}

	defs := make([]model.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		params, err := reflectParams(s.input)
		if err != nil {
			return nil, fmt.Errorf("reflect %s parameters: %w", s.name, err)
		}
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionSpec{
				Name:        s.name,
				Description: s.desc,
				Parameters:  params,
			},
		})
	}
	return defs, nil
}
