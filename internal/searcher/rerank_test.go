package searcher

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/docsearch/internal/cache"
	"github.com/dshills/docsearch/internal/llm"
)

// fakeGenerator answers from a function and counts calls
type fakeGenerator struct {
	calls  int
	answer func(prompt string) (*llm.GenerateResponse, error)
}

func (g *fakeGenerator) Generate(_ context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	g.calls++
	return g.answer(req.Prompt)
}

func reply(text string, p float64) *llm.GenerateResponse {
	return &llm.GenerateResponse{Text: text, Logprobs: []llm.TokenLogprob{{Token: text, Logprob: math.Log(p)}}}
}

// documentOf extracts the judged document text from a prompt
func documentOf(prompt string) string {
	_, doc, _ := strings.Cut(prompt, "<Document>: ")
	doc, _, _ = strings.Cut(doc, "<|im_end|>")
	return doc
}

func TestReranker_NegativeNeverBeatsPositive(t *testing.T) {
	gen := &fakeGenerator{answer: func(prompt string) (*llm.GenerateResponse, error) {
		if strings.HasPrefix(documentOf(prompt), "good") {
			return reply("yes", 0.8), nil
		}
		return reply("no", 0.8), nil
	}}
	r := NewReranker(gen, "judge", DefaultNegativeFactor, nil, zaptest.NewLogger(t))

	results, err := r.Rerank(context.Background(), "q", []RerankCandidate{
		{ID: "bad", Text: "bad text"},
		{ID: "good", Text: "good text"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "good", results[0].ID)
	assert.True(t, results[0].Relevant)
	assert.InDelta(t, 0.8, results[0].Score, 1e-9)
	assert.Equal(t, 1, results[0].Index)

	assert.Equal(t, "bad", results[1].ID)
	assert.False(t, results[1].Relevant)
	assert.InDelta(t, 0.8, results[1].Confidence, 1e-9)
	assert.InDelta(t, 0.24, results[1].Score, 1e-9)
	assert.Less(t, results[1].Score, results[0].Score)
}

func TestReranker_OrdersNegativesByConfidence(t *testing.T) {
	probs := map[string]float64{"a": 0.5, "b": 0.9, "c": 0.7}
	gen := &fakeGenerator{answer: func(prompt string) (*llm.GenerateResponse, error) {
		return reply("no", probs[documentOf(prompt)]), nil
	}}
	r := NewReranker(gen, "judge", 0.3, nil, nil)

	results, err := r.Rerank(context.Background(), "q", []RerankCandidate{
		{ID: "a", Text: "a"}, {ID: "b", Text: "b"}, {ID: "c", Text: "c"},
	})
	require.NoError(t, err)
	ids := []string{results[0].ID, results[1].ID, results[2].ID}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
	for _, res := range results {
		assert.Greater(t, res.Score, 0.0)
	}
}

func TestReranker_CachesJudgments(t *testing.T) {
	gen := &fakeGenerator{answer: func(string) (*llm.GenerateResponse, error) {
		return reply("yes", 0.6), nil
	}}
	store := cache.NewMemory(100)
	r := NewReranker(gen, "judge", 0.3, store, zaptest.NewLogger(t))
	ctx := context.Background()
	input := []RerankCandidate{{ID: "x", Text: "x"}, {ID: "y", Text: "y"}}

	first, err := r.Rerank(ctx, "q", input)
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)

	second, err := r.Rerank(ctx, "q", input)
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls, "identical query, candidate and model make no new calls")
	assert.Equal(t, first, second)

	_, err = r.Rerank(ctx, "another query", input[:1])
	require.NoError(t, err)
	assert.Equal(t, 3, gen.calls)

	// A different model is a different judgment
	other := NewReranker(gen, "judge-2", 0.3, store, nil)
	_, err = other.Rerank(ctx, "q", input[:1])
	require.NoError(t, err)
	assert.Equal(t, 4, gen.calls)
}

func TestReranker_FactorAppliesToCachedJudgments(t *testing.T) {
	gen := &fakeGenerator{answer: func(string) (*llm.GenerateResponse, error) {
		return reply("no", 0.5), nil
	}}
	store := cache.NewMemory(10)
	input := []RerankCandidate{{ID: "x", Text: "x"}}

	results, err := NewReranker(gen, "judge", 0.3, store, nil).Rerank(context.Background(), "q", input)
	require.NoError(t, err)
	assert.InDelta(t, 0.15, results[0].Score, 1e-9)

	results, err = NewReranker(gen, "judge", 0.5, store, nil).Rerank(context.Background(), "q", input)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, results[0].Score, 1e-9)
	assert.Equal(t, 1, gen.calls)
}

func TestReranker_EmptyInput(t *testing.T) {
	gen := &fakeGenerator{answer: func(string) (*llm.GenerateResponse, error) {
		t.Fatal("no model call expected")
		return nil, nil
	}}
	results, err := NewReranker(gen, "judge", 0.3, nil, nil).Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, gen.calls)
}

func TestReranker_TiesKeepInputOrder(t *testing.T) {
	gen := &fakeGenerator{answer: func(string) (*llm.GenerateResponse, error) {
		return &llm.GenerateResponse{Text: "Yes"}, nil // no logprobs: confidence 1
	}}
	results, err := NewReranker(gen, "judge", 0.3, nil, nil).Rerank(context.Background(), "q", []RerankCandidate{
		{ID: "3", Text: "c"}, {ID: "1", Text: "a"}, {ID: "2", Text: "b"},
	})
	require.NoError(t, err)
	for i, want := range []string{"3", "1", "2"} {
		assert.Equal(t, want, results[i].ID)
		assert.Equal(t, 1.0, results[i].Score)
	}
}

func TestReranker_ErrorAborts(t *testing.T) {
	gen := &fakeGenerator{answer: func(string) (*llm.GenerateResponse, error) {
		return nil, llm.ErrModelUnavailable
	}}
	_, err := NewReranker(gen, "judge", 0.3, nil, nil).Rerank(context.Background(), "q", []RerankCandidate{
		{ID: "a", Text: "a"}, {ID: "b", Text: "b"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrModelUnavailable))
	assert.Equal(t, 1, gen.calls)
}

func TestReranker_InvalidFactorUsesDefault(t *testing.T) {
	for _, f := range []float64{0, -1, 1.5} {
		r := NewReranker(&fakeGenerator{}, "judge", f, nil, nil)
		assert.Equal(t, DefaultNegativeFactor, r.negativeFactor)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		resp       *llm.GenerateResponse
		relevant   bool
		confidence float64
	}{
		{"yes", reply("yes", 0.9), true, 0.9},
		{"capitalised", reply("Yes", 0.9), true, 0.9},
		{"leading space", reply(" true", 0.7), true, 0.7},
		{"no", reply("no", 0.6), false, 0.6},
		{"yes as a prefix", reply("yesterday", 0.9), false, 0.9},
		{"empty", &llm.GenerateResponse{}, false, 1},
		{"positive logprob clamps", &llm.GenerateResponse{Text: "yes", Logprobs: []llm.TokenLogprob{{Logprob: 0.2}}}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := classify(tt.resp)
			assert.Equal(t, tt.relevant, j.Relevant)
			assert.InDelta(t, tt.confidence, j.Confidence, 1e-9)
		})
	}

	j := classify(&llm.GenerateResponse{Text: "no", Logprobs: []llm.TokenLogprob{{Logprob: math.Inf(-1)}}})
	assert.Greater(t, j.Confidence, 0.0, "confidence stays in (0, 1]")
}
