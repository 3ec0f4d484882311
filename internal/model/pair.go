package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownKind 未知生成类型
var ErrUnknownKind = errors.New("generation kind must be 'qa' or 'cot'")

// Kind 生成类型
type Kind string

const (
	KindQA  Kind = "qa"  // 问答对
	KindCoT Kind = "cot" // 思维链
)

// ParseKind 解析生成类型
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindQA:
		return KindQA, nil
	case KindCoT:
		return KindCoT, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Pair 模型生成的样本，字段由模型决定
// 已知字段: question, answer, reasoning, evaluation
type Pair map[string]any

// Pair 字段名
const (
	FieldQuestion   = "question"
	FieldAnswer     = "answer"
	FieldReasoning  = "reasoning"
	FieldEvaluation = "evaluation"
)

// String 读取字符串字段，非字符串值按 JSON 编码返回
func (p Pair) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// Question 返回问题
func (p Pair) Question() string { return p.String(FieldQuestion) }

// Answer 返回答案
func (p Pair) Answer() string { return p.String(FieldAnswer) }

// Projection 返回评分时使用的 {question, answer} 投影
// 缺失字段保留为 null
func (p Pair) Projection() map[string]any {
	return map[string]any{
		FieldQuestion: p[FieldQuestion],
		FieldAnswer:   p[FieldAnswer],
	}
}

// WithEvaluation 返回附带评分的浅拷贝，不修改原 pair
func (p Pair) WithEvaluation(e Evaluation) Pair {
	out := make(Pair, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[FieldEvaluation] = e
	return out
}

// Evaluation 读取已附加的评分
func (p Pair) Evaluation() (Evaluation, bool) {
	switch v := p[FieldEvaluation].(type) {
	case Evaluation:
		return v, true
	case *Evaluation:
		if v == nil {
			return Evaluation{}, false
		}
		return *v, true
	case map[string]any:
		return EvaluationFromRating(v), true
	default:
		return Evaluation{}, false
	}
}

// PairsFromValue 将解析后的 JSON 值规范化为 pair 列表
// 单个对象视为一个元素；非对象元素被丢弃
func PairsFromValue(v any) []Pair {
	switch t := v.(type) {
	case map[string]any:
		return []Pair{Pair(t)}
	case []any:
		pairs := make([]Pair, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				pairs = append(pairs, Pair(m))
			}
		}
		return pairs
	default:
		return nil
	}
}

// Number 宽松地把评分值转为 float64
// 支持 JSON 数字与数字字符串，其它类型返回 0
func Number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
