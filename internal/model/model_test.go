package model

import (
	"encoding/json"
	"errors"
	"testing"
)

// ========== Kind 测试 ==========

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"qa", KindQA, false},
		{" CoT ", KindCoT, false},
		{"QA", KindQA, false},
		{"summary", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnknownKind) {
				t.Errorf("error should wrap ErrUnknownKind, got %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// ========== Number 测试 ==========

func TestNumber(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
	}{
		{"float", 2.5, 2.5},
		{"int", 3, 3},
		{"int64", int64(4), 4},
		{"json number", json.Number("1.5"), 1.5},
		{"numeric string", " 2 ", 2},
		{"bad string", "high", 0},
		{"nil", nil, 0},
		{"bool", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Number(tt.in); got != tt.want {
				t.Errorf("Number(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// ========== Evaluation 测试 ==========

func TestEvaluationFromRating(t *testing.T) {
	tests := []struct {
		name   string
		rating map[string]any
		want   Evaluation
	}{
		{
			name:   "explicit combined",
			rating: map[string]any{"accuracy": 2.0, "relevance": 2.0, "clarity": 1.0, "usefulness": 2.0, "combined_score": 9.0},
			want:   Evaluation{Accuracy: 2, Relevance: 2, Clarity: 1, Usefulness: 2, CombinedScore: 9},
		},
		{
			name:   "derived combined",
			rating: map[string]any{"accuracy": 3.0, "relevance": 2.0, "clarity": 2.0, "usefulness": 1.0},
			want:   Evaluation{Accuracy: 3, Relevance: 2, Clarity: 2, Usefulness: 1, CombinedScore: 8},
		},
		{
			name:   "missing fields",
			rating: map[string]any{"accuracy": "2"},
			want:   Evaluation{Accuracy: 2, CombinedScore: 2},
		},
		{
			name:   "null combined",
			rating: map[string]any{"clarity": 1.0, "combined_score": nil},
			want:   Evaluation{Clarity: 1, CombinedScore: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvaluationFromRating(tt.rating); got != tt.want {
				t.Errorf("EvaluationFromRating() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestScoreAccumulator(t *testing.T) {
	var acc ScoreAccumulator
	var m CurationMetrics
	acc.Fill(&m)
	if m.Considered != 0 || m.AvgCombinedScore != 0 {
		t.Errorf("empty accumulator = %+v", m)
	}

	acc.Add(Evaluation{Accuracy: 1, CombinedScore: 5})
	acc.Add(Evaluation{Accuracy: 2, CombinedScore: 6})
	acc.Add(Evaluation{Accuracy: 2, CombinedScore: 6})
	acc.Fill(&m)
	if acc.Count() != 3 || m.Considered != 3 {
		t.Errorf("count = %d, considered = %d", acc.Count(), m.Considered)
	}
	if m.AvgAccuracy != 1.67 || m.AvgCombinedScore != 5.67 {
		t.Errorf("averages = %v, %v, want 1.67, 5.67", m.AvgAccuracy, m.AvgCombinedScore)
	}
}

func TestCurationMetrics_Merge(t *testing.T) {
	a := CurationMetrics{Total: 4, Considered: 4, Kept: 2, AvgCombinedScore: 6, AvgAccuracy: 2}
	b := CurationMetrics{Total: 3, Considered: 2, Kept: 1, Unrated: 1, AvgCombinedScore: 9, AvgAccuracy: 1}

	got := a.Merge(b)
	if got.Total != 7 || got.Considered != 6 || got.Kept != 3 || got.Unrated != 1 {
		t.Errorf("counts = %+v", got)
	}
	if got.AvgCombinedScore != 7 || got.AvgAccuracy != 1.67 {
		t.Errorf("averages = %v, %v, want 7, 1.67", got.AvgCombinedScore, got.AvgAccuracy)
	}

	empty := CurationMetrics{}.Merge(CurationMetrics{Total: 2, Unrated: 2})
	if empty.AvgCombinedScore != 0 || empty.Total != 2 {
		t.Errorf("merge without ratings = %+v", empty)
	}
}

func TestCurationMetrics_MergeRoundsOnce(t *testing.T) {
	var accA, accB ScoreAccumulator
	accA.Add(Evaluation{Accuracy: 0, CombinedScore: 0})
	accB.Add(Evaluation{Accuracy: 1, CombinedScore: 1})
	for range 5 {
		accB.Add(Evaluation{Accuracy: 0, CombinedScore: 0})
	}

	var a, b CurationMetrics
	accA.Fill(&a)
	accB.Fill(&b)
	if b.AvgAccuracy != 0.17 {
		t.Fatalf("b.AvgAccuracy = %v, want 0.17", b.AvgAccuracy)
	}

	// 1/7 = 0.1428...，按已取整的 0.17 加权会得到 0.15
	got := a.Merge(b)
	if got.Considered != 7 || got.AvgAccuracy != 0.14 || got.AvgCombinedScore != 0.14 {
		t.Errorf("merged = %+v, want considered 7 and averages 0.14", got)
	}

	// 连续合并仍基于原始累计
	got = CurationMetrics{}.Merge(a).Merge(b)
	if got.AvgAccuracy != 0.14 {
		t.Errorf("chained merge AvgAccuracy = %v, want 0.14", got.AvgAccuracy)
	}
}

// ========== Pair 测试 ==========

func TestPair_WithEvaluation(t *testing.T) {
	p := Pair{"question": "Q?", "answer": "A."}
	e := Evaluation{Accuracy: 2, CombinedScore: 7}

	out := p.WithEvaluation(e)
	if _, ok := p[FieldEvaluation]; ok {
		t.Error("WithEvaluation() mutated the original pair")
	}
	got, ok := out.Evaluation()
	if !ok || got != e {
		t.Errorf("Evaluation() = %+v, %v", got, ok)
	}
	if out.Question() != "Q?" || out.Answer() != "A." {
		t.Errorf("fields lost: %v", out)
	}
}

func TestPair_EvaluationFromJSON(t *testing.T) {
	var p Pair
	if err := json.Unmarshal([]byte(`{"question":"Q","evaluation":{"accuracy":2,"combined_score":8}}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	e, ok := p.Evaluation()
	if !ok || e.Accuracy != 2 || e.CombinedScore != 8 {
		t.Errorf("Evaluation() = %+v, %v", e, ok)
	}
	if _, ok := (Pair{"question": "Q"}).Evaluation(); ok {
		t.Error("pair without evaluation reported one")
	}
}

func TestPair_String(t *testing.T) {
	p := Pair{"question": "Q", "answer": []any{"a", "b"}, "n": 3.0}
	if got := p.Answer(); got != `["a","b"]` {
		t.Errorf("Answer() = %q", got)
	}
	if got := p.String("n"); got != "3" {
		t.Errorf("String(n) = %q", got)
	}
	if got := p.String("missing"); got != "" {
		t.Errorf("String(missing) = %q", got)
	}
}

func TestPair_Projection(t *testing.T) {
	p := Pair{"question": "Q", "reasoning": "R"}
	proj := p.Projection()
	if len(proj) != 2 || proj["question"] != "Q" || proj["answer"] != nil {
		t.Errorf("Projection() = %v", proj)
	}
}

func TestPairsFromValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int
	}{
		{"object", map[string]any{"question": "Q"}, 1},
		{"array", []any{map[string]any{"question": "Q1"}, map[string]any{"question": "Q2"}}, 2},
		{"mixed array", []any{map[string]any{"question": "Q"}, "noise", 3.0}, 1},
		{"scalar", "text", 0},
		{"nil", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PairsFromValue(tt.in); len(got) != tt.want {
				t.Errorf("PairsFromValue() len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

// ========== Dataset 测试 ==========

func TestDataset_TotalExamples(t *testing.T) {
	d := Dataset{
		QAPairs:              []Pair{{}, {}},
		CoTPairs:             []Pair{{}},
		ToolUseConversations: []ToolConversation{{}},
	}
	if got := d.TotalExamples(); got != 4 {
		t.Errorf("TotalExamples() = %d, want 4", got)
	}
}

func TestChunkTexts(t *testing.T) {
	chunks := []Chunk{{Text: "a", Index: 0}, {Text: "b", Index: 1}}
	got := ChunkTexts(chunks)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("ChunkTexts() = %v", got)
	}
}
