// Extractor turns a Clause's prose into 0–N Claims: a deterministic
// pre-filter followed by one JSON-mode LLM call per substantive clause,
// then validation and auto-fix. Grounded on the teacher's
// internal/extract/llm_client.go (Extract call shape, per-clause failure
// absorption) and internal/extract/governor.go (validation/auto-fix
// idiom), batched B=10 concurrent the way
// internal/extract/resolve.go.ResolveConflictsLLM batches.
package claim

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/contractlens/conflictengine/internal/clause"
	"github.com/contractlens/conflictengine/internal/llm"
	"github.com/contractlens/conflictengine/internal/llmjson"
	"github.com/contractlens/conflictengine/internal/llmretry"
	"github.com/contractlens/conflictengine/internal/promptlib"
	"github.com/contractlens/conflictengine/internal/promptschema"
)

// DefaultConcurrency is B in spec.md §4.2 / §5.
const DefaultConcurrency = 10

// Opts configures a single ExtractAll invocation, following the teacher's
// Opts-struct-with-Default*Opts convention
// (internal/extract.DefaultResolveOpts et al.).
type Opts struct {
	Model       string
	Concurrency int
	RetryPolicy llmretry.Policy
}

// DefaultOpts returns the spec's default extraction options.
func DefaultOpts(model string) Opts {
	return Opts{Model: model, Concurrency: DefaultConcurrency, RetryPolicy: llmretry.DefaultPolicy()}
}

// Result is the per-run diagnostics surface for extraction — the
// teacher's Report/Result-struct-as-diagnostics convention (no logging
// library), matching PhaseStats' per-phase shape (spec.md §4.7).
type Result struct {
	Claims         []Claim
	ClausesSkipped int // non-substantive, no LLM call made
	ClausesFailed  int // LLM call failed or output unsalvageable; absorbed
	ClaimsDropped  int // individual claims dropped by validation
	TotalTokens    int
	Errors         []error
}

// ExtractAll runs the Claim Extractor over every clause in clauses,
// bounded to opts.Concurrency concurrent LLM calls. Per-clause failure
// is absorbed; it never fails the run (spec.md §7).
func ExtractAll(ctx context.Context, provider llm.Provider, clauses []clause.Clause, opts Opts) (Result, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	result := Result{}
	perClauseClaims := make(map[int][]Claim, len(clauses))

	for i, cl := range clauses {
		if !clause.IsSubstantive(cl) {
			mu.Lock()
			result.ClausesSkipped++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, c clause.Clause) {
			defer wg.Done()
			defer func() { <-sem }()

			claims, dropped, tokens, err := extractOne(ctx, provider, c, opts.Model, opts.RetryPolicy)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.ClausesFailed++
				result.Errors = append(result.Errors, fmt.Errorf("clause %s: %w", c.ID, err))
				return
			}
			result.TotalTokens += tokens
			result.ClaimsDropped += dropped
			perClauseClaims[idx] = claims
		}(i, cl)
	}
	wg.Wait()

	// Deterministic ordering: by clause order_index, then LLM emission
	// order within that clause (spec.md §4.2).
	indices := make([]int, 0, len(perClauseClaims))
	for idx := range perClauseClaims {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(a, b int) bool {
		return clauses[indices[a]].OrderIndex < clauses[indices[b]].OrderIndex
	})
	for _, idx := range indices {
		claims := perClauseClaims[idx]
		for seq := range claims {
			claims[seq].OrderIndex = clauses[idx].OrderIndex
			claims[seq].SeqInClause = seq
		}
		result.Claims = append(result.Claims, claims...)
	}

	return result, nil
}

// rawClaim mirrors the LLM's JSON response shape before validation.
type rawClaim struct {
	Subject         string   `json:"subject"`
	Action          string   `json:"action"`
	Modality        string   `json:"modality"`
	Object          string   `json:"object"`
	ValueType       string   `json:"value_type"`
	NormalizedValue string   `json:"normalized_value"`
	OriginalValue   string   `json:"original_value"`
	Conditions      []string `json:"conditions"`
	Exceptions      []string `json:"exceptions"`
	SourceQuote     string   `json:"source_quote"`
	Topic           string   `json:"topic"`
	IsOverride      bool     `json:"is_override"`
	OverridesClause string   `json:"overrides_clause"`
}

func extractOne(ctx context.Context, provider llm.Provider, c clause.Clause, model string, retry llmretry.Policy) ([]Claim, int, int, error) {
	prompt := buildExtractionPrompt(c)
	raw, metrics, err := llmretry.Do(ctx, retry, func(ctx context.Context) (string, llm.Metrics, error) {
		return provider.Generate(ctx, prompt, llm.StructuredOptions(model))
	})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("generate: %w", err)
	}

	var rawClaims []rawClaim
	if err := llmjson.DecodeArray(raw, &rawClaims); err != nil {
		return nil, 0, metrics.TotalTokens, fmt.Errorf("parse: %w", err)
	}

	claims := make([]Claim, 0, len(rawClaims))
	dropped := 0
	for _, rc := range rawClaims {
		claim, ok := validateAndFix(rc, c)
		if !ok {
			dropped++
			continue
		}
		claims = append(claims, claim)
	}
	return claims, dropped, metrics.TotalTokens, nil
}

// validateAndFix applies spec.md §4.2's validation + auto-fix rules.
func validateAndFix(rc rawClaim, c clause.Clause) (Claim, bool) {
	if rc.Subject == "" || rc.Action == "" || rc.Modality == "" || rc.SourceQuote == "" || rc.Topic == "" {
		return Claim{}, false
	}

	modality := Modality(strings.ToUpper(strings.TrimSpace(rc.Modality)))
	if !ValidModality(modality) {
		modality = ModalityIs
	}

	valueType := ValueType(strings.ToUpper(strings.TrimSpace(rc.ValueType)))
	if !ValidValueType(valueType) {
		valueType = ValueTypeNone
	}

	topic := Topic(strings.ToUpper(strings.TrimSpace(rc.Topic)))
	if !ValidTopic(topic) {
		topic = TopicGeneral
	}

	normalizedValue := rc.NormalizedValue
	if valueType == ValueTypeNone {
		normalizedValue = ""
	}

	sourceQuote, ok := repairSourceQuote(rc.SourceQuote, c.Text)
	if !ok {
		return Claim{}, false
	}

	return Claim{
		ClauseID:        c.ID,
		Subject:         strings.TrimSpace(rc.Subject),
		Action:          strings.TrimSpace(rc.Action),
		Modality:        modality,
		Object:          rc.Object,
		ValueType:       valueType,
		NormalizedValue: normalizedValue,
		OriginalValue:   rc.OriginalValue,
		Conditions:      rc.Conditions,
		Exceptions:      rc.Exceptions,
		SourceQuote:     sourceQuote,
		Topic:           topic,
		IsOverride:      rc.IsOverride,
		OverridesClause: rc.OverridesClause,
	}, true
}

// minSourceQuoteMatch is the shortest substring match accepted when
// repairing a bad source_quote (spec.md §4.2).
const minSourceQuoteMatch = 8

// repairSourceQuote returns quote unchanged if it is already a substring
// of text. Otherwise it searches for the longest substring of quote
// that does match; if none of length >= minSourceQuoteMatch exists, the
// claim is dropped.
func repairSourceQuote(quote, text string) (string, bool) {
	if quote == "" {
		return "", false
	}
	if strings.Contains(text, quote) {
		return quote, true
	}

	best := ""
	for length := len(quote); length >= minSourceQuoteMatch; length-- {
		for start := 0; start+length <= len(quote); start++ {
			candidate := quote[start : start+length]
			if strings.Contains(text, candidate) && len(candidate) > len(best) {
				best = candidate
			}
		}
		if best != "" {
			return best, true
		}
	}
	return "", false
}

func buildExtractionPrompt(c clause.Clause) string {
	tmpl, err := promptlib.Get("claim_extraction", "")
	if err != nil {
		tmpl = promptlib.BuiltinTemplates["claim_extraction"]
	}
	body := tmpl.Render(map[string]string{
		"clause_number": c.Number,
		"clause_text":   fmt.Sprintf("%s: %s", c.Heading, c.Text),
	})

	var b strings.Builder
	b.WriteString(tmpl.System)
	b.WriteString("\n\n")
	b.WriteString(body)
	b.WriteString("\n\n")
	b.WriteString("Each claim object must have: subject, action, modality, object, value_type, ")
	b.WriteString("normalized_value, original_value, conditions, exceptions, source_quote, topic, ")
	b.WriteString("is_override, overrides_clause.\n\n")
	b.WriteString("modality must be one of: MUST, SHALL, MAY, MUST_NOT, SHALL_NOT, PROHIBITED, PERMITTED, IS, DEFINES.\n")
	b.WriteString("value_type must be one of: DURATION, AMOUNT, JURISDICTION, DATE, PERCENTAGE, PARTY, NONE.\n")
	b.WriteString("topic must be one of: PAYMENT, TERMINATION, JURISDICTION, INDEMNIFICATION, CONFIDENTIALITY, LOCK_UP, OBLIGATIONS, DEFINITIONS, GENERAL.\n\n")
	b.WriteString("Normalization rules: dates as ISO-8601; durations as \"<N> <unit>\" with unit in {days, months, years}; ")
	b.WriteString("amounts as \"<ISO-currency> <decimal>\"; percentages as \"<N>%\"; jurisdictions as a short code (UAE, UK, US, NY, EU, ...).\n")
	b.WriteString("Set is_override=true and overrides_clause to the target clause number when the text contains ")
	b.WriteString("\"notwithstanding\", \"shall prevail\", or \"takes precedence\".\n")
	b.WriteString("source_quote must be an exact substring of the clause text.\n")

	if schema, err := promptschema.ClaimExtractionSchema(); err == nil {
		b.WriteString("\nRespond with a JSON array of objects matching this schema:\n")
		b.WriteString(schema)
	} else {
		b.WriteString("Respond with a JSON array only.\n")
	}
	return b.String()
}
