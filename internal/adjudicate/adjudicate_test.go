package adjudicate

import (
	"context"
	"testing"

	"github.com/contractlens/conflictengine/internal/clause"
	"github.com/contractlens/conflictengine/internal/conflict"
	"github.com/contractlens/conflictengine/internal/llm"
	"github.com/contractlens/conflictengine/internal/pairset"
)

type scriptedProvider struct {
	responses []string
	calls     int
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string, opts llm.Options) (string, llm.Metrics, error) {
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	return p.responses[idx], llm.Metrics{TotalTokens: 5}, nil
}

func (p *scriptedProvider) Stream(ctx context.Context, prompt string, opts llm.Options) <-chan llm.StreamEvent {
	ch := make(chan llm.StreamEvent)
	close(ch)
	return ch
}

func makeClauses() map[string]clause.Clause {
	return map[string]clause.Clause{
		"c1": {ID: "c1", Number: "3.1", Text: "Payment shall be made within 30 days of invoice."},
		"c2": {ID: "c2", Number: "9.5", Text: "The Company must pay within 60 days."},
	}
}

func TestRun_EmitsTrueConflictAboveThreshold(t *testing.T) {
	clauses := makeClauses()
	pairs := []pairset.Pair{{LeftID: "c1", RightID: "c2", Provenances: map[pairset.Provenance]bool{pairset.ProvenanceSection: true}}}

	resp := `[{"pair_index":0,"classification":"TRUE_CONFLICT","confidence":0.92,"conflict_type":"PaymentTiming","summary":"differing payment windows","left_evidence":{"quote":"30 days"},"right_evidence":{"quote":"60 days"},"materiality":"HIGH"}]`
	provider := &scriptedProvider{responses: []string{resp}}

	result := Run(context.Background(), provider, clauses, pairs, DefaultOpts("llama3"))
	if len(result.Conflicts) != 1 {
		t.Fatalf("Conflicts = %v, want 1", result.Conflicts)
	}
	c := result.Conflicts[0]
	if c.Classification != conflict.ClassificationTrueConflict {
		t.Fatalf("Classification = %v", c.Classification)
	}
	if c.Confidence < conflict.MinConfidence {
		t.Fatalf("Confidence = %v, want >= %v", c.Confidence, conflict.MinConfidence)
	}
}

func TestRun_DiscardsBelowThreshold(t *testing.T) {
	clauses := makeClauses()
	pairs := []pairset.Pair{{LeftID: "c1", RightID: "c2", Provenances: map[pairset.Provenance]bool{}}}

	resp := `[{"pair_index":0,"classification":"TRUE_CONFLICT","confidence":0.5,"materiality":"LOW","left_evidence":{"quote":"30 days"},"right_evidence":{"quote":"60 days"}}]`
	provider := &scriptedProvider{responses: []string{resp}}

	result := Run(context.Background(), provider, clauses, pairs, DefaultOpts("llama3"))
	if len(result.Conflicts) != 0 {
		t.Fatalf("Conflicts = %v, want 0", result.Conflicts)
	}
	if len(result.Discarded) != 1 {
		t.Fatalf("Discarded = %v, want 1", result.Discarded)
	}
}

func TestRun_DiscardsNotRelated(t *testing.T) {
	clauses := makeClauses()
	pairs := []pairset.Pair{{LeftID: "c1", RightID: "c2", Provenances: map[pairset.Provenance]bool{}}}

	resp := `[{"pair_index":0,"classification":"NOT_RELATED","confidence":0.99,"left_evidence":{"quote":"30 days"},"right_evidence":{"quote":"60 days"}}]`
	provider := &scriptedProvider{responses: []string{resp}}

	result := Run(context.Background(), provider, clauses, pairs, DefaultOpts("llama3"))
	if len(result.Conflicts) != 0 {
		t.Fatalf("Conflicts = %v, want 0 for NOT_RELATED", result.Conflicts)
	}
}

func TestRun_RepairsEvidence(t *testing.T) {
	clauses := makeClauses()
	pairs := []pairset.Pair{{LeftID: "c1", RightID: "c2", Provenances: map[pairset.Provenance]bool{}}}

	// quote is slightly wrong but shares a long substring with clause text.
	resp := `[{"pair_index":0,"classification":"TRUE_CONFLICT","confidence":0.9,"materiality":"HIGH","left_evidence":{"quote":"within 30 dayz of invoice"},"right_evidence":{"quote":"60 days"}}]`
	provider := &scriptedProvider{responses: []string{resp}}

	result := Run(context.Background(), provider, clauses, pairs, DefaultOpts("llama3"))
	if len(result.Conflicts) != 1 {
		t.Fatalf("Conflicts = %v, want 1", result.Conflicts)
	}
	q := result.Conflicts[0].LeftEvidence.Quote
	if q == "" || q == "within 30 dayz of invoice" {
		t.Fatalf("expected repaired evidence quote, got %q", q)
	}
}

func TestRun_AssignsConflictID(t *testing.T) {
	clauses := makeClauses()
	pairs := []pairset.Pair{{LeftID: "c1", RightID: "c2", Provenances: map[pairset.Provenance]bool{pairset.ProvenanceSection: true}}}

	resp := `[{"pair_index":0,"classification":"TRUE_CONFLICT","confidence":0.92,"materiality":"HIGH","left_evidence":{"quote":"30 days"},"right_evidence":{"quote":"60 days"}}]`
	provider := &scriptedProvider{responses: []string{resp}}

	result := Run(context.Background(), provider, clauses, pairs, DefaultOpts("llama3"))
	if len(result.Conflicts) != 1 {
		t.Fatalf("Conflicts = %v, want 1", result.Conflicts)
	}
	if result.Conflicts[0].ID == "" {
		t.Fatal("expected a non-empty Conflict.ID")
	}
}

func TestRun_DemotesToAmbiguityWithEmptyQuoteOnUnrepairableEvidence(t *testing.T) {
	clauses := makeClauses()
	pairs := []pairset.Pair{{LeftID: "c1", RightID: "c2", Provenances: map[pairset.Provenance]bool{}}}

	// left_evidence's quote has no substantial overlap with c1's text, so
	// repair fails on the left side only; classification should demote to
	// AMBIGUITY rather than discard, with the left quote left empty.
	resp := `[{"pair_index":0,"classification":"TRUE_CONFLICT","confidence":0.92,"materiality":"HIGH","left_evidence":{"quote":"zzz totally unrelated text zzz"},"right_evidence":{"quote":"60 days"}}]`
	provider := &scriptedProvider{responses: []string{resp}}

	result := Run(context.Background(), provider, clauses, pairs, DefaultOpts("llama3"))
	if len(result.Conflicts) != 1 {
		t.Fatalf("Conflicts = %v, want 1 (AMBIGUITY is emittable)", result.Conflicts)
	}
	c := result.Conflicts[0]
	if c.Classification != conflict.ClassificationAmbiguity {
		t.Fatalf("Classification = %v, want AMBIGUITY", c.Classification)
	}
	if c.LeftEvidence.Quote != "" {
		t.Fatalf("LeftEvidence.Quote = %q, want empty rather than the raw unrepaired quote", c.LeftEvidence.Quote)
	}
	if c.LeftEvidence.StartChar != 0 || c.LeftEvidence.EndChar != 0 {
		t.Fatalf("LeftEvidence = %+v, want zero-value Evidence", c.LeftEvidence)
	}
	if c.RightEvidence.Quote == "" {
		t.Fatal("RightEvidence.Quote should still be populated; only the left side failed repair")
	}
}

func TestRun_ConsistencyMajorityRejectsDisagreement(t *testing.T) {
	clauses := makeClauses()
	pairs := []pairset.Pair{{LeftID: "c1", RightID: "c2", Provenances: map[pairset.Provenance]bool{}}}

	initial := `[{"pair_index":0,"classification":"TRUE_CONFLICT","confidence":0.9,"materiality":"HIGH","left_evidence":{"quote":"30 days"},"right_evidence":{"quote":"60 days"}}]`
	vote1 := `[{"pair_index":0,"classification":"NOT_RELATED","confidence":0.8,"left_evidence":{"quote":"30 days"},"right_evidence":{"quote":"60 days"}}]`
	vote2 := `[{"pair_index":0,"classification":"COMPLEMENTARY","confidence":0.7,"left_evidence":{"quote":"30 days"},"right_evidence":{"quote":"60 days"}}]`
	provider := &scriptedProvider{responses: []string{initial, vote1, vote2}}

	opts := AccurateOpts("llama3")
	opts.VerificationEnabled = false
	result := Run(context.Background(), provider, clauses, pairs, opts)

	if len(result.Conflicts) != 0 {
		t.Fatalf("Conflicts = %v, want 0 (2 of 3 votes disagree)", result.Conflicts)
	}
}

func TestRun_VerificationRejectsBelowElevatedThreshold(t *testing.T) {
	clauses := makeClauses()
	pairs := []pairset.Pair{{LeftID: "c1", RightID: "c2", Provenances: map[pairset.Provenance]bool{}}}

	initial := `[{"pair_index":0,"classification":"TRUE_CONFLICT","confidence":0.9,"materiality":"HIGH","left_evidence":{"quote":"30 days"},"right_evidence":{"quote":"60 days"}}]`
	verification := `{"has_conflict":true,"confidence":0.8}`
	provider := &scriptedProvider{responses: []string{initial, verification}}

	opts := DefaultOpts("llama3")
	opts.VerificationEnabled = true
	opts.VerificationThreshold = conflict.DefaultVerificationConfidence
	result := Run(context.Background(), provider, clauses, pairs, opts)

	if len(result.Conflicts) != 0 {
		t.Fatalf("Conflicts = %v, want 0 (0.8 < 0.90 verification threshold)", result.Conflicts)
	}
}
