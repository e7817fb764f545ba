package adjudicate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/contractlens/conflictengine/internal/clause"
	"github.com/contractlens/conflictengine/internal/clausefunc"
	"github.com/contractlens/conflictengine/internal/llm"
	"github.com/contractlens/conflictengine/internal/llmjson"
	"github.com/contractlens/conflictengine/internal/llmretry"
	"github.com/contractlens/conflictengine/internal/pairset"
)

// consistencyVariants are independently worded re-phrasings of the
// classification instruction, used for the K-1 extra consistency-pass
// calls (spec.md §4.6).
var consistencyVariants = []string{
	"Re-evaluate independently, phrasing your reasoning differently than a typical first pass would.",
	"Consider this pair afresh, as if seeing it for the first time, and judge strictly on the text given.",
	"Double-check for any overlooked nuance before classifying.",
}

// runConsistency re-submits each candidate pair opts.ConsistencyVotes-1
// more times and keeps the verdict iff a strict majority of all votes
// (including the original classification) agree the pair is
// TRUE_CONFLICT or AMBIGUITY. The retained confidence is the mean of the
// agreeing calls' confidences.
func runConsistency(ctx context.Context, provider llm.Provider, clauses map[string]clause.Clause, candidates []item, opts Opts, result *Result) []item {
	extraVotes := opts.ConsistencyVotes - 1
	if extraVotes <= 0 {
		for i := range candidates {
			candidates[i].State = StateAgreed
		}
		return candidates
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	agreed := make([]item, 0, len(candidates))

	for _, cand := range candidates {
		wg.Add(1)
		go func(it item) {
			defer wg.Done()

			confidences := []float64{it.Verdict.Confidence}
			agreeCount := 1 // the original classification counts as one vote

			for v := 0; v < extraVotes; v++ {
				variant := consistencyVariants[v%len(consistencyVariants)]
				rv, tokens, err := classifySinglePair(ctx, provider, clauses, it.Pair, opts.Model, variant, opts.FunctionCache, opts.RetryPolicy)

				mu.Lock()
				result.TotalTokens += tokens
				mu.Unlock()

				if err != nil {
					mu.Lock()
					result.Errors = append(result.Errors, fmt.Errorf("consistency vote: %w", err))
					mu.Unlock()
					continue
				}
				classification, ok := validClassifications[strings.ToUpper(strings.TrimSpace(rv.Classification))]
				if ok && classification.Emittable() {
					agreeCount++
					confidences = append(confidences, rv.Confidence)
				}
			}

			majorityNeeded := opts.ConsistencyVotes/2 + 1
			mu.Lock()
			defer mu.Unlock()
			if agreeCount < majorityNeeded {
				result.Discarded = append(result.Discarded, PairResult{Pair: it.Pair, State: StateDiscarded, DiscardedReason: "consistency disagreement"})
				return
			}
			it.Verdict.Confidence = mean(confidences)
			it.State = StateAgreed
			agreed = append(agreed, it)
		}(cand)
	}
	wg.Wait()
	return agreed
}

func classifySinglePair(ctx context.Context, provider llm.Provider, clauses map[string]clause.Clause, pair pairset.Pair, model, variant string, cache *clausefunc.Cache, retry llmretry.Policy) (rawVerdict, int, error) {
	prompt := buildBatchPrompt(clauses, []pairset.Pair{pair}, variant, cache)
	raw, metrics, err := llmretry.Do(ctx, retry, func(ctx context.Context) (string, llm.Metrics, error) {
		return provider.Generate(ctx, prompt, llm.StructuredOptions(model))
	})
	if err != nil {
		return rawVerdict{}, 0, fmt.Errorf("generate: %w", err)
	}
	var rawVerdicts []rawVerdict
	if err := llmjson.DecodeArray(raw, &rawVerdicts); err != nil {
		return rawVerdict{}, metrics.TotalTokens, fmt.Errorf("parse: %w", err)
	}
	if len(rawVerdicts) == 0 {
		return rawVerdict{}, metrics.TotalTokens, fmt.Errorf("empty response")
	}
	return rawVerdicts[0], metrics.TotalTokens, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
