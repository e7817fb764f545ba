package adjudicate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/contractlens/conflictengine/internal/clause"
	"github.com/contractlens/conflictengine/internal/llm"
	"github.com/contractlens/conflictengine/internal/llmjson"
	"github.com/contractlens/conflictengine/internal/llmretry"
	"github.com/contractlens/conflictengine/internal/promptlib"
	"github.com/contractlens/conflictengine/internal/promptschema"
)

// runVerification issues one final single-pair LLM call per surviving
// verdict, asking "is this truly a conflict?" with the elevated
// verification threshold; failures are discarded (spec.md §4.6).
func runVerification(ctx context.Context, provider llm.Provider, clauses map[string]clause.Clause, agreed []item, opts Opts, result *Result) []item {
	var wg sync.WaitGroup
	var mu sync.Mutex
	verified := make([]item, 0, len(agreed))

	for _, cand := range agreed {
		wg.Add(1)
		go func(it item) {
			defer wg.Done()

			prompt := buildVerificationPrompt(clauses, it)
			raw, metrics, err := llmretry.Do(ctx, opts.RetryPolicy, func(ctx context.Context) (string, llm.Metrics, error) {
				return provider.Generate(ctx, prompt, llm.StructuredOptions(opts.Model))
			})

			mu.Lock()
			defer mu.Unlock()
			result.TotalTokens += metrics.TotalTokens

			if err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("verification: %w", err))
				result.Discarded = append(result.Discarded, PairResult{Pair: it.Pair, State: StateDiscarded, DiscardedReason: "verification call failed"})
				return
			}

			var v struct {
				HasConflict bool    `json:"has_conflict"`
				Confidence  float64 `json:"confidence"`
			}
			if err := llmjson.DecodeObject(raw, &v); err != nil {
				result.Discarded = append(result.Discarded, PairResult{Pair: it.Pair, State: StateDiscarded, DiscardedReason: "verification parse failure"})
				return
			}

			if !v.HasConflict || v.Confidence < opts.VerificationThreshold {
				result.Discarded = append(result.Discarded, PairResult{Pair: it.Pair, State: StateDiscarded, DiscardedReason: "verification below threshold"})
				return
			}

			it.State = StateVerified
			verified = append(verified, it)
		}(cand)
	}
	wg.Wait()
	return verified
}

func buildVerificationPrompt(clauses map[string]clause.Clause, it item) string {
	left := clauses[it.Pair.LeftID]
	right := clauses[it.Pair.RightID]

	claimA := fmt.Sprintf("%s\nQuoted span: %q", left.Text, it.Verdict.LeftEvidence.Quote)
	claimB := fmt.Sprintf("%s\nQuoted span: %q", right.Text, it.Verdict.RightEvidence.Quote)

	tmpl, err := promptlib.Get("pair_verification", "")
	if err != nil {
		tmpl = promptlib.BuiltinTemplates["pair_verification"]
	}
	body := tmpl.Render(map[string]string{
		"clause_a":       fmt.Sprintf("(%s) %s", left.Number, claimA),
		"clause_b":       fmt.Sprintf("(%s) %s", right.Number, claimB),
		"classification": fmt.Sprintf("%s (%s)", it.Verdict.Classification, it.Verdict.ConflictType),
	})

	schema, err := promptschema.For(struct {
		HasConflict bool    `json:"has_conflict" jsonschema:"required"`
		Confidence  float64 `json:"confidence" jsonschema:"required,minimum=0,maximum=1"`
	}{})
	if err != nil {
		schema = ""
	}

	var b strings.Builder
	b.WriteString(tmpl.System)
	b.WriteString("\n\n")
	b.WriteString(body)
	if schema != "" {
		b.WriteString("\n\nRespond with a single JSON object matching this schema:\n")
		b.WriteString(schema)
	}
	return b.String()
}
