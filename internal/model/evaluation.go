// Package model 提供数据生成与评估相关的数据模型
package model

import "math"

// 评分字段名
const (
	ScoreAccuracy   = "accuracy"
	ScoreRelevance  = "relevance"
	ScoreClarity    = "clarity"
	ScoreUsefulness = "usefulness"
	ScoreCombined   = "combined_score"
)

// Evaluation 单个 pair 的质量评分
type Evaluation struct {
	Accuracy      float64 `json:"accuracy"`
	Relevance     float64 `json:"relevance"`
	Clarity       float64 `json:"clarity"`
	Usefulness    float64 `json:"usefulness"`
	CombinedScore float64 `json:"combined_score"`
}

// EvaluationFromRating 从模型返回的评分记录构造 Evaluation
// 缺失的子分数按 0 处理；combined_score 缺失时取四项之和
func EvaluationFromRating(rating map[string]any) Evaluation {
	e := Evaluation{
		Accuracy:   Number(rating[ScoreAccuracy]),
		Relevance:  Number(rating[ScoreRelevance]),
		Clarity:    Number(rating[ScoreClarity]),
		Usefulness: Number(rating[ScoreUsefulness]),
	}
	if v, ok := rating[ScoreCombined]; ok && v != nil {
		e.CombinedScore = Number(v)
	} else {
		e.CombinedScore = e.Accuracy + e.Relevance + e.Clarity + e.Usefulness
	}
	return e
}

// CurationMetrics 一次 (文档, 生成类型) 筛选的汇总指标
type CurationMetrics struct {
	Total            int     `json:"total"`
	Considered       int     `json:"considered"`
	Kept             int     `json:"kept"`
	Unrated          int     `json:"unrated"`
	AvgAccuracy      float64 `json:"avg_accuracy"`
	AvgRelevance     float64 `json:"avg_relevance"`
	AvgClarity       float64 `json:"avg_clarity"`
	AvgUsefulness    float64 `json:"avg_usefulness"`
	AvgCombinedScore float64 `json:"avg_combined_score"`

	// 未取整的分数累计，合并时据此重新求均值
	sums ScoreAccumulator
}

// ScoreAccumulator 累积所有参与评分的 Evaluation
type ScoreAccumulator struct {
	count                                    int
	accuracy, relevance, clarity, usefulness float64
	combined                                 float64
}

// Add 累加一条评分
func (a *ScoreAccumulator) Add(e Evaluation) {
	a.count++
	a.accuracy += e.Accuracy
	a.relevance += e.Relevance
	a.clarity += e.Clarity
	a.usefulness += e.Usefulness
	a.combined += e.CombinedScore
}

// Count 返回已累加的条数
func (a *ScoreAccumulator) Count() int {
	return a.count
}

// Fill 将平均值写入 metrics，空集合时均为 0
func (a *ScoreAccumulator) Fill(m *CurationMetrics) {
	m.sums = *a
	m.Considered = a.count
	m.AvgAccuracy = a.mean(a.accuracy)
	m.AvgRelevance = a.mean(a.relevance)
	m.AvgClarity = a.mean(a.clarity)
	m.AvgUsefulness = a.mean(a.usefulness)
	m.AvgCombinedScore = a.mean(a.combined)
}

func (a *ScoreAccumulator) mean(sum float64) float64 {
	if a.count == 0 {
		return 0
	}
	return Round2(sum / float64(a.count))
}

// Round2 四舍五入到两位小数
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (a *ScoreAccumulator) merge(o ScoreAccumulator) {
	a.count += o.count
	a.accuracy += o.accuracy
	a.relevance += o.relevance
	a.clarity += o.clarity
	a.usefulness += o.usefulness
	a.combined += o.combined
}

// Merge 合并两组指标，均值由两侧未取整的累计值重新计算，只取整一次
func (m CurationMetrics) Merge(o CurationMetrics) CurationMetrics {
	out := CurationMetrics{
		Total:   m.Total + o.Total,
		Kept:    m.Kept + o.Kept,
		Unrated: m.Unrated + o.Unrated,
	}
	acc := m.accumulated()
	acc.merge(o.accumulated())
	acc.Fill(&out)
	return out
}

// accumulated 返回指标对应的分数累计
// 未经 Fill 构造的指标（如反序列化得到的）以均值乘 Considered 还原
func (m CurationMetrics) accumulated() ScoreAccumulator {
	if m.sums.count == m.Considered {
		return m.sums
	}
	n := float64(m.Considered)
	return ScoreAccumulator{
		count:      m.Considered,
		accuracy:   m.AvgAccuracy * n,
		relevance:  m.AvgRelevance * n,
		clarity:    m.AvgClarity * n,
		usefulness: m.AvgUsefulness * n,
		combined:   m.AvgCombinedScore * n,
	}
}
