// Package adjudicate is the Pair Adjudicator (spec.md §4.6): batched LLM
// classification of candidate clause pairs into the six-valued
// Classification taxonomy, with evidence validation/repair, optional
// self-consistency voting, optional verification pass, severity mapping,
// and an explicit per-pair state machine. Grounded on the teacher's
// internal/extract/resolve.go (ResolveConflictsLLM's batch-building,
// semaphore-bounded concurrent batches) and
// internal/observe/resolve_llm.go (single-call verification pattern).
package adjudicate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/contractlens/conflictengine/internal/clause"
	"github.com/contractlens/conflictengine/internal/clausefunc"
	"github.com/contractlens/conflictengine/internal/conflict"
	"github.com/contractlens/conflictengine/internal/llm"
	"github.com/contractlens/conflictengine/internal/llmjson"
	"github.com/contractlens/conflictengine/internal/llmretry"
	"github.com/contractlens/conflictengine/internal/pairset"
	"github.com/contractlens/conflictengine/internal/promptlib"
	"github.com/contractlens/conflictengine/internal/promptschema"
)

// DefaultPairBatch is P in spec.md §4.6.
const DefaultPairBatch = 50

// DefaultConcurrentBatches is B_batch in spec.md §5.
const DefaultConcurrentBatches = 2

// DefaultConsistencyVotes is K in spec.md §4.6 "accurate" mode.
const DefaultConsistencyVotes = 3

// State is a pair's position in the state machine of spec.md §4.6.
type State string

const (
	StateNew        State = "NEW"
	StateClassified State = "CLASSIFIED"
	StateCandidate  State = "CANDIDATE"
	StateAgreed     State = "AGREED"
	StateVerified   State = "VERIFIED"
	StateEmitted    State = "EMITTED"
	StateDiscarded  State = "DISCARDED"
)

// Opts configures a single Run invocation.
type Opts struct {
	Model                 string
	PairBatch             int
	ConcurrentBatches     int
	ConfidenceThreshold   float64
	ConsistencyVotes      int  // 1 disables the consistency pass
	VerificationEnabled   bool
	VerificationThreshold float64
	FunctionCache         *clausefunc.Cache // optional; nil falls back to uncached clause.ClassifyFunction
	RetryPolicy           llmretry.Policy   // zero value disables retry
}

// DefaultOpts returns the "hybrid" (non-accurate) defaults: consistency
// off (votes=1), verification off.
func DefaultOpts(model string) Opts {
	return Opts{
		Model:               model,
		PairBatch:           DefaultPairBatch,
		ConcurrentBatches:   1,
		ConfidenceThreshold: conflict.MinConfidence,
		ConsistencyVotes:    1,
		VerificationEnabled: false,
		RetryPolicy:         llmretry.DefaultPolicy(),
	}
}

// AccurateOpts returns the "accurate" strategy defaults: K=3 consistency
// voting and a 0.90-threshold verification pass both on.
func AccurateOpts(model string) Opts {
	o := DefaultOpts(model)
	o.ConcurrentBatches = DefaultConcurrentBatches
	o.ConsistencyVotes = DefaultConsistencyVotes
	o.VerificationEnabled = true
	o.VerificationThreshold = conflict.DefaultVerificationConfidence
	return o
}

// PairResult is the final disposition of one candidate pair, including
// its terminal State for diagnostics.
type PairResult struct {
	Pair       pairset.Pair
	State      State
	Conflict   *conflict.Conflict // non-nil only when State == StateEmitted
	DiscardedReason string
}

// Result is the per-run diagnostics surface for adjudication.
type Result struct {
	Conflicts       []conflict.Conflict
	Discarded       []PairResult
	ClassCounts     map[conflict.Classification]int
	BatchesFailed   int
	TotalTokens     int
	Errors          []error
}

func newResult() Result {
	return Result{ClassCounts: make(map[conflict.Classification]int)}
}

// Run adjudicates every pair in pairs against clauses (keyed by id),
// batching PairBatch pairs per LLM call with up to ConcurrentBatches
// concurrent batches, then running the optional consistency and
// verification passes on survivors.
func Run(ctx context.Context, provider llm.Provider, clauses map[string]clause.Clause, pairs []pairset.Pair, opts Opts) Result {
	opts = normalizeOpts(opts)
	result := newResult()

	batches := chunkPairs(pairs, opts.PairBatch)
	classified := classifyBatches(ctx, provider, clauses, batches, opts, &result)

	candidates := filterSurvivors(classified, opts, &result)

	agreed := candidates
	if opts.ConsistencyVotes > 1 {
		agreed = runConsistency(ctx, provider, clauses, candidates, opts, &result)
	} else {
		for i := range agreed {
			agreed[i].State = StateAgreed
		}
	}

	verified := agreed
	if opts.VerificationEnabled {
		verified = runVerification(ctx, provider, clauses, agreed, opts, &result)
	} else {
		for i := range verified {
			verified[i].State = StateVerified
		}
	}

	for _, item := range verified {
		c := item.toConflict(clauses, opts.FunctionCache)
		item.State = StateEmitted
		result.Conflicts = append(result.Conflicts, c)
		result.ClassCounts[item.Verdict.Classification]++
	}

	return result
}

func normalizeOpts(o Opts) Opts {
	if o.PairBatch <= 0 {
		o.PairBatch = DefaultPairBatch
	}
	if o.ConcurrentBatches <= 0 {
		o.ConcurrentBatches = 1
	}
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = conflict.MinConfidence
	}
	if o.ConsistencyVotes <= 0 {
		o.ConsistencyVotes = 1
	}
	if o.VerificationThreshold <= 0 {
		o.VerificationThreshold = conflict.DefaultVerificationConfidence
	}
	return o
}

func chunkPairs(pairs []pairset.Pair, size int) [][]pairset.Pair {
	var out [][]pairset.Pair
	for i := 0; i < len(pairs); i += size {
		end := i + size
		if end > len(pairs) {
			end = len(pairs)
		}
		out = append(out, pairs[i:end])
	}
	return out
}

// item carries one pair through classification, consistency, and
// verification, tracking state and the evolving verdict.
type item struct {
	Pair   pairset.Pair
	State  State
	Verdict verdict
	// agreementVotes is the list of confidences from consistency-pass
	// calls that agreed with the original classification.
	agreementVotes []float64
}

func (it item) toConflict(clauses map[string]clause.Clause, cache *clausefunc.Cache) conflict.Conflict {
	leftClause := clauses[it.Pair.LeftID]
	rightClause := clauses[it.Pair.RightID]
	c := conflict.Conflict{
		ID:             uuid.NewString(),
		LeftClauseID:   it.Pair.LeftID,
		RightClauseID:  it.Pair.RightID,
		Classification: it.Verdict.Classification,
		ConflictType:   it.Verdict.ConflictType,
		Confidence:     it.Verdict.Confidence,
		Materiality:    it.Verdict.Materiality,
		Summary:        it.Verdict.Summary,
		LeftEvidence:   it.Verdict.LeftEvidence,
		RightEvidence:  it.Verdict.RightEvidence,
	}
	c.Severity = conflict.SeverityFor(c, clausefunc.Classify(cache, leftClause), clausefunc.Classify(cache, rightClause))
	return c
}

// verdict mirrors the LLM's per-pair JSON entry shape (spec.md §4.6).
type verdict struct {
	PairIndex      int                `json:"pair_index"`
	Classification conflict.Classification `json:"classification"`
	Confidence     float64            `json:"confidence"`
	ConflictType   string             `json:"conflict_type"`
	Summary        string             `json:"summary"`
	LeftEvidence   conflict.Evidence
	RightEvidence  conflict.Evidence
	Materiality    conflict.Materiality `json:"materiality"`
}

type rawVerdict struct {
	PairIndex      int     `json:"pair_index"`
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
	ConflictType   string  `json:"conflict_type"`
	Summary        string  `json:"summary"`
	LeftEvidence   rawEvidence `json:"left_evidence"`
	RightEvidence  rawEvidence `json:"right_evidence"`
	Materiality    string  `json:"materiality"`
}

type rawEvidence struct {
	Quote     string `json:"quote"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
}

var validClassifications = map[string]conflict.Classification{
	"TRUE_CONFLICT":  conflict.ClassificationTrueConflict,
	"VALID_OVERRIDE": conflict.ClassificationValidOverride,
	"EXCEPTION":      conflict.ClassificationException,
	"COMPLEMENTARY":  conflict.ClassificationComplementary,
	"AMBIGUITY":      conflict.ClassificationAmbiguity,
	"NOT_RELATED":    conflict.ClassificationNotRelated,
}

func classifyBatches(ctx context.Context, provider llm.Provider, clauses map[string]clause.Clause, batches [][]pairset.Pair, opts Opts, result *Result) []item {
	sem := make(chan struct{}, opts.ConcurrentBatches)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var items []item

	for batchIdx, batch := range batches {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, pairs []pairset.Pair) {
			defer wg.Done()
			defer func() { <-sem }()

			batchItems, tokens, err := classifyOneBatch(ctx, provider, clauses, pairs, opts.Model, opts.FunctionCache, opts.RetryPolicy)

			mu.Lock()
			defer mu.Unlock()
			result.TotalTokens += tokens
			if err != nil {
				result.BatchesFailed++
				result.Errors = append(result.Errors, fmt.Errorf("batch %d: %w", idx, err))
				for _, p := range pairs {
					items = append(items, item{Pair: p, State: StateDiscarded})
				}
				return
			}
			items = append(items, batchItems...)
		}(batchIdx, batch)
	}
	wg.Wait()
	return items
}

func classifyOneBatch(ctx context.Context, provider llm.Provider, clauses map[string]clause.Clause, pairs []pairset.Pair, model string, cache *clausefunc.Cache, retry llmretry.Policy) ([]item, int, error) {
	prompt := buildBatchPrompt(clauses, pairs, "", cache)
	raw, metrics, err := llmretry.Do(ctx, retry, func(ctx context.Context) (string, llm.Metrics, error) {
		return provider.Generate(ctx, prompt, llm.StructuredOptions(model))
	})
	if err != nil {
		return nil, 0, fmt.Errorf("generate: %w", err)
	}

	var rawVerdicts []rawVerdict
	if err := llmjson.DecodeArray(raw, &rawVerdicts); err != nil {
		return nil, metrics.TotalTokens, fmt.Errorf("parse: %w", err)
	}

	byIndex := make(map[int]rawVerdict, len(rawVerdicts))
	for _, rv := range rawVerdicts {
		byIndex[rv.PairIndex] = rv
	}

	items := make([]item, 0, len(pairs))
	for i, p := range pairs {
		rv, ok := byIndex[i]
		if !ok {
			items = append(items, item{Pair: p, State: StateDiscarded})
			continue
		}
		items = append(items, buildItem(p, rv, clauses))
	}
	return items, metrics.TotalTokens, nil
}

func buildItem(p pairset.Pair, rv rawVerdict, clauses map[string]clause.Clause) item {
	classification, ok := validClassifications[strings.ToUpper(strings.TrimSpace(rv.Classification))]
	if !ok {
		return item{Pair: p, State: StateDiscarded}
	}

	leftClause := clauses[p.LeftID]
	rightClause := clauses[p.RightID]

	leftEvidence, leftOK := conflict.RepairEvidence(rv.LeftEvidence.Quote, leftClause.Text)
	rightEvidence, rightOK := conflict.RepairEvidence(rv.RightEvidence.Quote, rightClause.Text)

	if !leftOK || !rightOK {
		if classification == conflict.ClassificationAmbiguity {
			return item{Pair: p, State: StateDiscarded}
		}
		// Evidence didn't survive repair: demote to AMBIGUITY rather than
		// discard outright, but leave Quote empty on the failing side —
		// storing the raw, non-substring quote would violate the
		// quote-is-a-substring property the same as emitting it straight.
		classification = conflict.ClassificationAmbiguity
		if !leftOK {
			leftEvidence = conflict.Evidence{}
		}
		if !rightOK {
			rightEvidence = conflict.Evidence{}
		}
	}

	v := verdict{
		PairIndex:      rv.PairIndex,
		Classification: classification,
		Confidence:     rv.Confidence,
		ConflictType:   rv.ConflictType,
		Summary:        rv.Summary,
		LeftEvidence:   leftEvidence,
		RightEvidence:  rightEvidence,
		Materiality:    conflict.Materiality(strings.ToUpper(strings.TrimSpace(rv.Materiality))),
	}
	if v.Materiality != conflict.MaterialityHigh && v.Materiality != conflict.MaterialityMedium && v.Materiality != conflict.MaterialityLow {
		v.Materiality = conflict.MaterialityMedium
	}

	return item{Pair: p, State: StateClassified, Verdict: v}
}

// filterSurvivors applies the storage filter (spec.md §4.6): only
// classification in {TRUE_CONFLICT, AMBIGUITY} and confidence >=
// threshold survive to CANDIDATE state.
func filterSurvivors(items []item, opts Opts, result *Result) []item {
	var survivors []item
	for _, it := range items {
		if it.State == StateDiscarded {
			result.Discarded = append(result.Discarded, PairResult{Pair: it.Pair, State: StateDiscarded, DiscardedReason: "schema parse error or bad evidence"})
			continue
		}
		if !it.Verdict.Classification.Emittable() || it.Verdict.Confidence < opts.ConfidenceThreshold {
			result.Discarded = append(result.Discarded, PairResult{Pair: it.Pair, State: StateDiscarded, DiscardedReason: "below threshold or not emittable"})
			continue
		}
		it.State = StateCandidate
		survivors = append(survivors, it)
	}
	return survivors
}

func buildBatchPrompt(clauses map[string]clause.Clause, pairs []pairset.Pair, variant string, cache *clausefunc.Cache) string {
	const truncateAt = 1000
	var pairsB strings.Builder
	for i, p := range pairs {
		left := clauses[p.LeftID]
		right := clauses[p.RightID]
		fmt.Fprintf(&pairsB, "Pair %d:\n", i)
		fmt.Fprintf(&pairsB, "  A (clause %s, %s, function %s): %s\n", left.Number, left.Heading, clausefunc.Classify(cache, left), truncate(left.Text, truncateAt))
		fmt.Fprintf(&pairsB, "  B (clause %s, %s, function %s): %s\n", right.Number, right.Heading, clausefunc.Classify(cache, right), truncate(right.Text, truncateAt))
	}

	tmpl, err := promptlib.Get("pair_adjudication", "")
	if err != nil {
		tmpl = promptlib.BuiltinTemplates["pair_adjudication"]
	}
	variantText := ""
	if variant != "" {
		variantText = fmt.Sprintf(" (%s)", variant)
	}
	body := tmpl.Render(map[string]string{"variant": variantText, "pairs": pairsB.String()})

	schema, err := promptschema.AdjudicatorEntrySchema()
	if err != nil {
		schema = ""
	}

	var b strings.Builder
	b.WriteString(tmpl.System)
	b.WriteString("\n\n")
	b.WriteString(body)
	b.WriteString("\n\nClassification must be one of: TRUE_CONFLICT, VALID_OVERRIDE, EXCEPTION, COMPLEMENTARY, AMBIGUITY, NOT_RELATED.\n")
	b.WriteString("TRUE_CONFLICT requires same topic, same scenario, same obligated party, and mutual exclusion.\n")
	b.WriteString("VALID_OVERRIDE when one clause explicitly subordinates the other.\n")
	b.WriteString("EXCEPTION when one carves out a subset the other governs.\n")
	b.WriteString("COMPLEMENTARY when the clauses act sequentially or on disjoint subjects.\n")
	b.WriteString("AMBIGUITY when the relationship is unclear due to vague wording.\n")
	b.WriteString("NOT_RELATED otherwise.\n")
	if schema != "" {
		b.WriteString("\nRespond with a JSON array whose entries match this schema:\n")
		b.WriteString(schema)
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...[truncated]"
}
