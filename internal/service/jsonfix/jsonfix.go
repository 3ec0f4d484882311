// Package jsonfix 解析模型输出中的 JSON
// 依次尝试：去除代码块围栏、标准解析、去除尾部逗号、json5 宽松解析、jsonrepair 修复
package jsonfix

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashwinyue/next-datakit/internal/model"
	"github.com/kaptinlin/jsonrepair"
	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// PreviewLen 错误预览的最大字符数
const PreviewLen = 300

// 解析阶段
const (
	StageStrict = "strict"
	StageTrim   = "trim"
	StageJSON5  = "json5"
	StageRepair = "repair"
	StageShape  = "shape"
)

// ParseError 模型输出无法解析
type ParseError struct {
	Stage   string // 最后一次尝试的阶段
	Preview string // 截断后的原始输出
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model output (%s): %v; preview: %q", e.Stage, e.Err, e.Preview)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

const fence = "```"

// StripFences 移除首尾的 markdown 代码块围栏并裁剪空白
// 只处理开头的围栏行（含语言标记）与结尾的围栏，内容中的 ``` 保持不变
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, fence); ok {
		line, body, found := strings.Cut(rest, "\n")
		if found && strings.TrimLeftFunc(strings.TrimSpace(line), isLangTag) == "" {
			rest = body
		} else {
			rest = strings.TrimLeftFunc(rest, isLangTag)
		}
		s = strings.TrimSpace(rest)
	}
	if rest, ok := strings.CutSuffix(s, fence); ok {
		s = strings.TrimSpace(rest)
	}
	return s
}

func isLangTag(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}

// Preview 截断到 PreviewLen 个字符
func Preview(s string) string {
	r := []rune(s)
	if len(r) <= PreviewLen {
		return s
	}
	return string(r[:PreviewLen]) + "..."
}

// Strict 去除围栏后直接解析，不做修复
func Strict(raw string) (any, error) {
	s := StripFences(raw)
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, &ParseError{Stage: StageStrict, Preview: Preview(raw), Err: err}
	}
	return v, nil
}

// Lenient 逐级放宽解析
func Lenient(raw string) (any, error) {
	s := StripFences(raw)

	// 快速路径：已经是有效 JSON
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v, nil
	}

	// 去除尾部的逗号与空白
	s = strings.TrimRight(s, ", \n")
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v, nil
	}

	// json5 允许对象与数组内部的尾随逗号
	if err := json5.Unmarshal([]byte(s), &v); err == nil {
		return v, nil
	}

	// 使用 jsonrepair 进行强力修复
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil, &ParseError{Stage: StageRepair, Preview: Preview(raw), Err: err}
	}
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, &ParseError{Stage: StageRepair, Preview: Preview(raw), Err: err}
	}
	return v, nil
}

// ParsePairs 解析生成结果，单个对象视为一条
func ParsePairs(raw string) ([]model.Pair, error) {
	v, err := Strict(raw)
	if err != nil {
		return nil, err
	}
	pairs := model.PairsFromValue(v)
	if pairs == nil {
		return nil, &ParseError{Stage: StageShape, Preview: Preview(raw), Err: fmt.Errorf("expected object or array, got %T", v)}
	}
	return pairs, nil
}

// ParseRatings 解析评分结果，只接受对象数组或单个对象
// 数组中的每个元素占一个位置，非对象元素对应 nil，保证第 i 个评分对应第 i 个 pair
func ParseRatings(raw string) ([]map[string]any, error) {
	v, err := Lenient(raw)
	if err != nil {
		return nil, err
	}

	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}, nil
	case []any:
		ratings := make([]map[string]any, len(t))
		for i, item := range t {
			if m, ok := item.(map[string]any); ok {
				ratings[i] = m
			}
		}
		return ratings, nil
	default:
		return nil, &ParseError{Stage: StageShape, Preview: Preview(raw), Err: fmt.Errorf("expected object or array, got %T", v)}
	}
}

// ParseStringArray 解析字符串数组
// 值是合法 JSON 但不是数组时 isArray 为 false
func ParseStringArray(raw string) (items []string, isArray bool, err error) {
	v, err := Strict(raw)
	if err != nil {
		return nil, false, err
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, false, nil
	}
	items = make([]string, 0, len(arr))
	for _, item := range arr {
		switch s := item.(type) {
		case string:
			items = append(items, s)
		case nil:
		default:
			b, _ := json.Marshal(s)
			items = append(items, string(b))
		}
	}
	return items, true, nil
}
