// Package prompt 提供命名参数的提示词模板
//
// 模板使用 {name} 占位符，{{ 与 }} 表示字面量花括号。
package prompt

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrMissingParam 渲染时缺少参数
var ErrMissingParam = errors.New("missing template parameter")

// 模板名称
const (
	QAGeneration  = "qa_generation"
	CoTGeneration = "cot_generation"
	QARating      = "qa_rating"
	ToolQueries   = "tool_queries"
	SearchTerms   = "search_terms"
	ArxivResult   = "arxiv_result"
	WebResult     = "web_result"
	ToolAnswer    = "tool_answer"
)

type segment struct {
	text  string
	param bool
}

// Template 已解析的模板
type Template struct {
	name     string
	segments []segment
	params   []string
}

// Parse 解析模板文本
func Parse(name, raw string) (*Template, error) {
	t := &Template{name: name}
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '{' && i+1 < len(raw) && raw[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(raw) && raw[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(raw[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("prompt %s: unclosed placeholder at offset %d", name, i)
			}
			param := raw[i+1 : i+1+end]
			if !validName(param) {
				return nil, fmt.Errorf("prompt %s: invalid placeholder %q at offset %d", name, param, i)
			}
			flush()
			t.segments = append(t.segments, segment{text: param, param: true})
			if !slices.Contains(t.params, param) {
				t.params = append(t.params, param)
			}
			i += end + 1
		case c == '}':
			return nil, fmt.Errorf("prompt %s: single '}' at offset %d", name, i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return t, nil
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Name 模板名称
func (t *Template) Name() string {
	return t.name
}

// Params 模板引用的参数，按首次出现顺序
func (t *Template) Params() []string {
	return slices.Clone(t.params)
}

// Accepts 确认模板引用的参数都在 available 中
func (t *Template) Accepts(available ...string) error {
	for _, p := range t.params {
		if !slices.Contains(available, p) {
			return fmt.Errorf("prompt %s: %w %q (available: %s)", t.name, ErrMissingParam, p, strings.Join(available, ", "))
		}
	}
	return nil
}

// Render 渲染模板
func (t *Template) Render(params map[string]any) (string, error) {
	var sb strings.Builder
	for _, seg := range t.segments {
		if !seg.param {
			sb.WriteString(seg.text)
			continue
		}
		v, ok := params[seg.text]
		if !ok {
			return "", fmt.Errorf("prompt %s: %w %q", t.name, ErrMissingParam, seg.text)
		}
		fmt.Fprint(&sb, v)
	}
	return sb.String(), nil
}

// Set 一组命名模板
type Set struct {
	templates map[string]*Template
}

// NewSet 解析全部模板，缺失的内置模板使用默认文本
func NewSet(raw map[string]string) (*Set, error) {
	s := &Set{templates: make(map[string]*Template)}
	for name, text := range Defaults() {
		if custom, ok := raw[name]; ok && strings.TrimSpace(custom) != "" {
			text = custom
		}
		t, err := Parse(name, text)
		if err != nil {
			return nil, err
		}
		s.templates[name] = t
	}
	for name, text := range raw {
		if _, ok := s.templates[name]; ok {
			continue
		}
		t, err := Parse(name, text)
		if err != nil {
			return nil, err
		}
		s.templates[name] = t
	}
	return s, nil
}

// Get 按名称获取模板
func (s *Set) Get(name string) (*Template, error) {
	t, ok := s.templates[name]
	if !ok {
		return nil, fmt.Errorf("prompt %s not configured", name)
	}
	return t, nil
}

// Render 按名称渲染模板
func (s *Set) Render(name string, params map[string]any) (string, error) {
	t, err := s.Get(name)
	if err != nil {
		return "", err
	}
	return t.Render(params)
}
