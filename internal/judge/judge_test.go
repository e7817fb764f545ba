package judge

import (
	"context"
	"strings"
	"testing"

	"github.com/contractlens/conflictengine/internal/claim"
	"github.com/contractlens/conflictengine/internal/claimgraph"
	"github.com/contractlens/conflictengine/internal/clause"
	"github.com/contractlens/conflictengine/internal/llm"
)

type mockProvider struct {
	response string
	err      error
}

func (m *mockProvider) Generate(ctx context.Context, prompt string, opts llm.Options) (string, llm.Metrics, error) {
	if m.err != nil {
		return "", llm.Metrics{}, m.err
	}
	return m.response, llm.Metrics{TotalTokens: 5}, nil
}

func (m *mockProvider) Stream(ctx context.Context, prompt string, opts llm.Options) <-chan llm.StreamEvent {
	ch := make(chan llm.StreamEvent)
	close(ch)
	return ch
}

func TestJudgeAll_EmitsConflictAboveThreshold(t *testing.T) {
	claims := []claim.Claim{
		{ClauseID: "c1", Subject: "Payment", NormalizedValue: "30 days", SourceQuote: "30 days"},
		{ClauseID: "c2", Subject: "Payment", NormalizedValue: "60 days", SourceQuote: "60 days"},
	}
	clauses := map[string]clause.Clause{
		"c1": {ID: "c1", Number: "3.1", Text: "Payment shall be made within 30 days of invoice."},
		"c2": {ID: "c2", Number: "9.5", Text: "The Company must pay within 60 days."},
	}
	pairs := []claimgraph.Pair{{LeftIndex: 0, RightIndex: 1, Rule: "payment_timing"}}

	provider := &mockProvider{response: `{"has_conflict":true,"confidence":0.9,"conflict_type":"PaymentTiming","why":"differing terms","resolution":"n/a","evidence":["30 days","60 days"]}`}
	result := JudgeAll(context.Background(), provider, claims, clauses, pairs, DefaultOpts("llama3"))

	if len(result.Conflicts) != 1 {
		t.Fatalf("Conflicts = %v, want 1", result.Conflicts)
	}
	c := result.Conflicts[0]
	if c.Confidence < 0.85 {
		t.Fatalf("Confidence = %v, want >= 0.85", c.Confidence)
	}
	if c.LeftClauseID != "c1" || c.RightClauseID != "c2" {
		t.Fatalf("unexpected clause ids: %+v", c)
	}
	if !strings.Contains(c.LeftEvidence.Quote, "30 days") {
		t.Fatalf("LeftEvidence = %+v", c.LeftEvidence)
	}
	if c.Severity != "HIGH" && c.Severity != "MEDIUM" {
		t.Fatalf("Severity = %v", c.Severity)
	}
}

func TestJudgeAll_AssignsConflictID(t *testing.T) {
	claims := []claim.Claim{
		{ClauseID: "c1", Subject: "Payment", NormalizedValue: "30 days", SourceQuote: "30 days"},
		{ClauseID: "c2", Subject: "Payment", NormalizedValue: "60 days", SourceQuote: "60 days"},
	}
	clauses := map[string]clause.Clause{
		"c1": {ID: "c1", Number: "3.1", Text: "Payment shall be made within 30 days of invoice."},
		"c2": {ID: "c2", Number: "9.5", Text: "The Company must pay within 60 days."},
	}
	pairs := []claimgraph.Pair{{LeftIndex: 0, RightIndex: 1, Rule: "payment_timing"}}

	provider := &mockProvider{response: `{"has_conflict":true,"confidence":0.9,"conflict_type":"PaymentTiming","why":"differing terms","resolution":"n/a","evidence":["30 days","60 days"]}`}
	result := JudgeAll(context.Background(), provider, claims, clauses, pairs, DefaultOpts("llama3"))

	if len(result.Conflicts) != 1 {
		t.Fatalf("Conflicts = %v, want 1", result.Conflicts)
	}
	if result.Conflicts[0].ID == "" {
		t.Fatal("expected a non-empty Conflict.ID")
	}
}

func TestJudgeAll_DropsPairWhenEvidenceUnrepairable(t *testing.T) {
	claims := []claim.Claim{
		{ClauseID: "c1", Subject: "Payment"},
		{ClauseID: "c2", Subject: "Payment"},
	}
	clauses := map[string]clause.Clause{
		"c1": {ID: "c1", Text: "Payment shall be made within 30 days of invoice."},
		"c2": {ID: "c2", Text: "The Company must pay within 60 days."},
	}
	pairs := []claimgraph.Pair{{LeftIndex: 0, RightIndex: 1}}

	// Neither evidence string nor any long-enough substring of it appears
	// in either clause's text, so repair should fail on both sides.
	provider := &mockProvider{response: `{"has_conflict":true,"confidence":0.95,"conflict_type":"PaymentTiming","evidence":["zzz completely unrelated text zzz","qqq also unrelated qqq"]}`}
	result := JudgeAll(context.Background(), provider, claims, clauses, pairs, DefaultOpts("llama3"))

	if len(result.Conflicts) != 0 {
		t.Fatalf("Conflicts = %v, want 0 (unrepairable evidence should drop the pair)", result.Conflicts)
	}
	if result.PairsRejected != 1 {
		t.Fatalf("PairsRejected = %d, want 1", result.PairsRejected)
	}
}

func TestJudgeAll_RejectsBelowThreshold(t *testing.T) {
	claims := []claim.Claim{
		{ClauseID: "c1"}, {ClauseID: "c2"},
	}
	clauses := map[string]clause.Clause{
		"c1": {ID: "c1", Text: "some clause text"},
		"c2": {ID: "c2", Text: "other clause text"},
	}
	pairs := []claimgraph.Pair{{LeftIndex: 0, RightIndex: 1}}

	provider := &mockProvider{response: `{"has_conflict":true,"confidence":0.5}`}
	result := JudgeAll(context.Background(), provider, claims, clauses, pairs, DefaultOpts("llama3"))

	if len(result.Conflicts) != 0 {
		t.Fatalf("Conflicts = %v, want 0", result.Conflicts)
	}
	if result.PairsRejected != 1 {
		t.Fatalf("PairsRejected = %d, want 1", result.PairsRejected)
	}
}

func TestJudgeAll_AbsorbsTransportFailure(t *testing.T) {
	claims := []claim.Claim{{ClauseID: "c1"}, {ClauseID: "c2"}}
	clauses := map[string]clause.Clause{
		"c1": {ID: "c1", Text: "x"},
		"c2": {ID: "c2", Text: "y"},
	}
	pairs := []claimgraph.Pair{{LeftIndex: 0, RightIndex: 1}}

	provider := &mockProvider{err: &llm.HTTPError{StatusCode: 503, Message: "busy"}}
	result := JudgeAll(context.Background(), provider, claims, clauses, pairs, DefaultOpts("llama3"))

	if result.PairsFailed != 1 {
		t.Fatalf("PairsFailed = %d, want 1", result.PairsFailed)
	}
	if len(result.Conflicts) != 0 {
		t.Fatalf("Conflicts = %v, want 0", result.Conflicts)
	}
}
