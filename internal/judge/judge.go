// Package judge is the Conflict Judge: one focused LLM call per candidate
// claim pair, deciding whether a true conflict holds and producing a
// Conflict record or a rejection. Grounded on the teacher's
// internal/observe/resolve_llm.go (single-pair LLM adjudication loop,
// per-call timeout, confidence-threshold gate) generalized from a
// winner/loser resolution to a has_conflict/confidence verdict.
package judge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/contractlens/conflictengine/internal/claim"
	"github.com/contractlens/conflictengine/internal/claimgraph"
	"github.com/contractlens/conflictengine/internal/clause"
	"github.com/contractlens/conflictengine/internal/clausefunc"
	"github.com/contractlens/conflictengine/internal/conflict"
	"github.com/contractlens/conflictengine/internal/llm"
	"github.com/contractlens/conflictengine/internal/llmjson"
	"github.com/contractlens/conflictengine/internal/llmretry"
	"github.com/contractlens/conflictengine/internal/promptlib"
	"github.com/contractlens/conflictengine/internal/promptschema"
)

// DefaultConcurrency is B in spec.md §4.4 / §5.
const DefaultConcurrency = 10

// Opts configures a JudgeAll invocation.
type Opts struct {
	Model               string
	Concurrency         int
	ConfidenceThreshold float64
	FunctionCache       *clausefunc.Cache // optional; nil falls back to uncached clause.ClassifyFunction
	RetryPolicy         llmretry.Policy   // zero value disables retry
}

// DefaultOpts returns the spec's default judging options.
func DefaultOpts(model string) Opts {
	return Opts{Model: model, Concurrency: DefaultConcurrency, ConfidenceThreshold: conflict.MinConfidence, RetryPolicy: llmretry.DefaultPolicy()}
}

// Result is the per-run diagnostics surface for judging.
type Result struct {
	Conflicts      []conflict.Conflict
	PairsRejected  int // has_conflict=false, below threshold, or evidence not repairable
	PairsFailed    int // transport/parse failure, absorbed
	TotalTokens    int
	Errors         []error
}

type rawVerdict struct {
	HasConflict bool     `json:"has_conflict"`
	Confidence  float64  `json:"confidence"`
	ConflictType string  `json:"conflict_type"`
	Why         string   `json:"why"`
	Resolution  string   `json:"resolution"`
	Evidence    []string `json:"evidence"`
}

// JudgeAll runs the Conflict Judge over every candidate claim pair,
// bounded to opts.Concurrency concurrent LLM calls. No cross-pair
// context is shared (spec.md §4.4).
func JudgeAll(ctx context.Context, provider llm.Provider, claims []claim.Claim, clauses map[string]clause.Clause, pairs []claimgraph.Pair, opts Opts) Result {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	threshold := opts.ConfidenceThreshold
	if threshold <= 0 {
		threshold = conflict.MinConfidence
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	result := Result{}

	for _, pair := range pairs {
		wg.Add(1)
		sem <- struct{}{}
		go func(p claimgraph.Pair) {
			defer wg.Done()
			defer func() { <-sem }()

			left := claims[p.LeftIndex]
			right := claims[p.RightIndex]
			leftClause, leftOK := clauses[left.ClauseID]
			rightClause, rightOK := clauses[right.ClauseID]
			if !leftOK || !rightOK {
				mu.Lock()
				result.PairsFailed++
				result.Errors = append(result.Errors, fmt.Errorf("judge: missing clause for pair %s/%s", left.ClauseID, right.ClauseID))
				mu.Unlock()
				return
			}

			c, tokens, rejected, err := judgeOne(ctx, provider, opts.Model, left, right, leftClause, rightClause, threshold, opts.FunctionCache, opts.RetryPolicy)

			mu.Lock()
			defer mu.Unlock()
			result.TotalTokens += tokens
			if err != nil {
				result.PairsFailed++
				result.Errors = append(result.Errors, err)
				return
			}
			if rejected {
				result.PairsRejected++
				return
			}
			result.Conflicts = append(result.Conflicts, c)
		}(pair)
	}
	wg.Wait()
	return result
}

func judgeOne(ctx context.Context, provider llm.Provider, model string, left, right claim.Claim, leftClause, rightClause clause.Clause, threshold float64, cache *clausefunc.Cache, retry llmretry.Policy) (conflict.Conflict, int, bool, error) {
	prompt := buildJudgePrompt(left, right, leftClause, rightClause)
	raw, metrics, err := llmretry.Do(ctx, retry, func(ctx context.Context) (string, llm.Metrics, error) {
		return provider.Generate(ctx, prompt, llm.StructuredOptions(model))
	})
	if err != nil {
		return conflict.Conflict{}, 0, false, fmt.Errorf("judge: generate: %w", err)
	}

	var verdict rawVerdict
	if err := llmjson.DecodeObject(raw, &verdict); err != nil {
		return conflict.Conflict{}, metrics.TotalTokens, false, fmt.Errorf("judge: parse: %w", err)
	}

	if !verdict.HasConflict || verdict.Confidence < threshold {
		return conflict.Conflict{}, metrics.TotalTokens, true, nil
	}

	leftEvidence, leftOK := evidenceFromVerdict(verdict.Evidence, 0, leftClause.Text)
	rightEvidence, rightOK := evidenceFromVerdict(verdict.Evidence, 1, rightClause.Text)
	if !leftOK || !rightOK {
		// Evidence doesn't survive repair against the clause text — a
		// testable-property-2 violation if emitted, so the pair is
		// rejected rather than surfaced with meaningless offsets.
		return conflict.Conflict{}, metrics.TotalTokens, true, nil
	}

	c := conflict.Conflict{
		ID:             uuid.NewString(),
		LeftClauseID:   leftClause.ID,
		RightClauseID:  rightClause.ID,
		Classification: conflict.ClassificationTrueConflict,
		ConflictType:   verdict.ConflictType,
		Confidence:     verdict.Confidence,
		Materiality:    materialityFromClauseFunctions(leftClause, rightClause, cache),
		Summary:        verdict.Why,
		Explanation:    verdict.Resolution,
		LeftEvidence:   leftEvidence,
		RightEvidence:  rightEvidence,
	}
	c.Severity = conflict.SeverityFor(c, clausefunc.Classify(cache, leftClause), clausefunc.Classify(cache, rightClause))
	return c, metrics.TotalTokens, false, nil
}

// evidenceFromVerdict pulls the idx'th evidence quote (0=left, 1=right)
// and repairs it against text via conflict.RepairEvidence, the same
// substring-repair the Pair Adjudicator applies — the Conflict Judge
// shares that repair step rather than emitting meaningless offsets when
// an LLM-supplied quote isn't an exact substring.
func evidenceFromVerdict(evidence []string, idx int, text string) (conflict.Evidence, bool) {
	if idx >= len(evidence) {
		return conflict.Evidence{}, false
	}
	return conflict.RepairEvidence(evidence[idx], text)
}

func materialityFromClauseFunctions(left, right clause.Clause, cache *clausefunc.Cache) conflict.Materiality {
	lf := clausefunc.Classify(cache, left)
	rf := clausefunc.Classify(cache, right)
	switch {
	case lf == clause.FuncGoverningLawJurisdict || rf == clause.FuncGoverningLawJurisdict:
		return conflict.MaterialityHigh
	case lf == clause.FuncIndemnityLiability || rf == clause.FuncIndemnityLiability:
		return conflict.MaterialityHigh
	case lf == clause.FuncPayment || rf == clause.FuncPayment:
		return conflict.MaterialityMedium
	default:
		return conflict.MaterialityMedium
	}
}

func buildJudgePrompt(left, right claim.Claim, leftClause, rightClause clause.Clause) string {
	claimA := fmt.Sprintf("(clause %s) subject=%q action=%q modality=%s value_type=%s normalized_value=%q source_quote=%q",
		leftClause.Number, left.Subject, left.Action, left.Modality, left.ValueType, left.NormalizedValue, left.SourceQuote)
	claimB := fmt.Sprintf("(clause %s) subject=%q action=%q modality=%s value_type=%s normalized_value=%q source_quote=%q",
		rightClause.Number, right.Subject, right.Action, right.Modality, right.ValueType, right.NormalizedValue, right.SourceQuote)
	if left.IsOverride {
		claimA += fmt.Sprintf(" [declares an override targeting clause %s]", left.OverridesClause)
	}
	if right.IsOverride {
		claimB += fmt.Sprintf(" [declares an override targeting clause %s]", right.OverridesClause)
	}

	tmpl, err := promptlib.Get("conflict_judge", "")
	if err != nil {
		tmpl = promptlib.BuiltinTemplates["conflict_judge"]
	}
	body := tmpl.Render(map[string]string{"claim_a": claimA, "claim_b": claimB})

	schema, err := promptschema.JudgeSchema()
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
