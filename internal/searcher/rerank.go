package searcher

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"

	"go.uber.org/zap"

	"github.com/dshills/docsearch/internal/cache"
	"github.com/dshills/docsearch/internal/llm"
	"github.com/dshills/docsearch/internal/logging"
)

// DefaultNegativeFactor scales the confidence of a "no" judgment
const DefaultNegativeFactor = 0.3

// judgePrompt is a raw chat-formatted prompt for yes/no relevance judgments
const judgePrompt = `<|im_start|>system
Judge whether the Document meets the requirements based on the Query and the Instruct provided. Note that the answer can only be "yes" or "no".<|im_end|>
<|im_start|>user
<Instruct>: Given a search query, decide whether the document is relevant to it
<Query>: %s
<Document>: %s<|im_end|>
<|im_start|>assistant
<think>

</think>

`

var affirmative = regexp.MustCompile(`(?i)^\s*(yes|true)\b`)

// Generator produces completions
type Generator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error)
}

// RerankCandidate is a text to judge. ID must identify the text: judgments
// are cached by query, ID and model.
type RerankCandidate struct {
	ID   string
	Text string
}

// RerankResult is a judged candidate
type RerankResult struct {
	ID         string
	Index      int // Position in the input
	Relevant   bool
	Confidence float64
	Score      float64
}

// judgment is the cached part of a result. The score is derived on read so a
// changed negative factor applies to cached judgments too.
type judgment struct {
	Relevant   bool    `json:"relevant"`
	Confidence float64 `json:"confidence"`
}

// Reranker scores candidates with a model's relevance judgment
type Reranker struct {
	generator      Generator
	model          string
	negativeFactor float64
	cache          cache.Store
	logger         *zap.Logger
}

// NewReranker creates a Reranker. A negative factor outside (0, 1] uses
// DefaultNegativeFactor; a nil store disables judgment caching.
func NewReranker(generator Generator, model string, negativeFactor float64, store cache.Store, logger *zap.Logger) *Reranker {
	if negativeFactor <= 0 || negativeFactor > 1 {
		negativeFactor = DefaultNegativeFactor
	}
	return &Reranker{
		generator:      generator,
		model:          model,
		negativeFactor: negativeFactor,
		cache:          store,
		logger:         logging.OrNop(logger).With(zap.String("component", "reranker")),
	}
}

// Rerank judges each candidate in order and returns them by descending score.
// Equal scores keep their input order. The first failed judgment aborts the
// call.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]RerankResult, error) {
	results := make([]RerankResult, 0, len(candidates))
	for i, c := range candidates {
		j, err := r.judge(ctx, query, c)
		if err != nil {
			return nil, fmt.Errorf("rerank %s: %w", c.ID, err)
		}
		results = append(results, RerankResult{
			ID:         c.ID,
			Index:      i,
			Relevant:   j.Relevant,
			Confidence: j.Confidence,
			Score:      r.score(j),
		})
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	return results, nil
}

// score applies the decision rule: confidence for "yes", confidence times
// the negative factor for anything else
func (r *Reranker) score(j judgment) float64 {
	if j.Relevant {
		return j.Confidence
	}
	return j.Confidence * r.negativeFactor
}

func (r *Reranker) judge(ctx context.Context, query string, c RerankCandidate) (judgment, error) {
	key := cache.Key("rerank", r.model, query, c.ID)
	if r.cache != nil {
		raw, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.Warn("cache read failed", zap.Error(err))
		}
		var j judgment
		if ok && json.Unmarshal(raw, &j) == nil {
			return j, nil
		}
	}

	resp, err := r.generator.Generate(ctx, llm.GenerateRequest{
		Model:     r.model,
		Prompt:    fmt.Sprintf(judgePrompt, query, c.Text),
		Raw:       true,
		Logprobs:  true,
		MaxTokens: 1,
	})
	if err != nil {
		return judgment{}, err
	}
	j := classify(resp)
	r.logger.Debug("judged", zap.String("candidate", c.ID), zap.Bool("relevant", j.Relevant),
		zap.Float64("confidence", j.Confidence))

	if r.cache != nil {
		raw, _ := json.Marshal(j)
		if err := r.cache.Put(ctx, key, raw); err != nil {
			r.logger.Warn("cache write failed", zap.Error(err))
		}
	}
	return j, nil
}

// classify turns a completion into a judgment. Confidence is the probability
// of the first generated token, clamped to (0, 1]; without logprobs it is 1.
func classify(resp *llm.GenerateResponse) judgment {
	j := judgment{
		Relevant:   affirmative.MatchString(resp.Text),
		Confidence: 1,
	}
	if len(resp.Logprobs) > 0 {
		j.Confidence = clampConfidence(math.Exp(resp.Logprobs[0].Logprob))
	}
	return j
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c) || c <= 0:
		return math.SmallestNonzeroFloat64
	case c > 1:
		return 1
	}
	return c
}
