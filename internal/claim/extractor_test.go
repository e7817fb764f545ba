package claim

import (
	"context"
	"testing"

	"github.com/contractlens/conflictengine/internal/clause"
	"github.com/contractlens/conflictengine/internal/llm"
)

// mockProvider is a hand-rolled llm.Provider fake, in the teacher's no-mocking-library
// test style (internal/extract/classify_test.go's mockClassifyProvider).
type mockProvider struct {
	responses map[string]string // keyed by substring of the prompt's clause text
	err       error
}

func (m *mockProvider) Generate(ctx context.Context, prompt string, opts llm.Options) (string, llm.Metrics, error) {
	if m.err != nil {
		return "", llm.Metrics{}, m.err
	}
	for needle, resp := range m.responses {
		if contains(prompt, needle) {
			return resp, llm.Metrics{TotalTokens: 10}, nil
		}
	}
	return "[]", llm.Metrics{}, nil
}

func (m *mockProvider) Stream(ctx context.Context, prompt string, opts llm.Options) <-chan llm.StreamEvent {
	ch := make(chan llm.StreamEvent)
	close(ch)
	return ch
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestExtractAll_SkipsNonSubstantive(t *testing.T) {
	clauses := []clause.Clause{
		{ID: "c1", Text: "3.1", OrderIndex: 0},
	}
	provider := &mockProvider{}
	result, err := ExtractAll(context.Background(), provider, clauses, DefaultOpts("llama3"))
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if result.ClausesSkipped != 1 {
		t.Fatalf("ClausesSkipped = %d, want 1", result.ClausesSkipped)
	}
	if len(result.Claims) != 0 {
		t.Fatalf("Claims = %v, want empty", result.Claims)
	}
}

func TestExtractAll_ValidatesAndOrders(t *testing.T) {
	clauses := []clause.Clause{
		{ID: "c2", Text: "The Company must pay within 60 days of invoice receipt.", OrderIndex: 1},
		{ID: "c1", Text: "Payment shall be made within 30 days of invoice.", OrderIndex: 0},
	}
	provider := &mockProvider{
		responses: map[string]string{
			"30 days": `[{"subject":"Payment","action":"shall be made","modality":"SHALL","value_type":"DURATION","normalized_value":"30 days","original_value":"30 days","source_quote":"30 days","topic":"PAYMENT"}]`,
			"60 days": `[{"subject":"Company","action":"must pay","modality":"MUST","value_type":"DURATION","normalized_value":"60 days","original_value":"60 days","source_quote":"60 days","topic":"PAYMENT"}]`,
		},
	}

	result, err := ExtractAll(context.Background(), provider, clauses, DefaultOpts("llama3"))
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if len(result.Claims) != 2 {
		t.Fatalf("Claims = %d, want 2", len(result.Claims))
	}
	// ordering by clause order_index: c1 (order 0) before c2 (order 1)
	if result.Claims[0].ClauseID != "c1" {
		t.Fatalf("Claims[0].ClauseID = %q, want c1", result.Claims[0].ClauseID)
	}
	if result.Claims[1].ClauseID != "c2" {
		t.Fatalf("Claims[1].ClauseID = %q, want c2", result.Claims[1].ClauseID)
	}
}

func TestExtractAll_AbsorbsPerClauseFailure(t *testing.T) {
	clauses := []clause.Clause{
		{ID: "c1", Text: "Payment shall be made within 30 days of invoice.", OrderIndex: 0},
	}
	provider := &mockProvider{err: &llm.HTTPError{StatusCode: 500, Message: "down"}}
	result, err := ExtractAll(context.Background(), provider, clauses, DefaultOpts("llama3"))
	if err != nil {
		t.Fatalf("ExtractAll should not fail the run: %v", err)
	}
	if result.ClausesFailed != 1 {
		t.Fatalf("ClausesFailed = %d, want 1", result.ClausesFailed)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("Errors = %v, want 1 entry", result.Errors)
	}
}

func TestValidateAndFix_DropsMissingRequiredFields(t *testing.T) {
	c := clause.Clause{Text: "Payment shall be made within 30 days of invoice."}
	_, ok := validateAndFix(rawClaim{Subject: "Payment"}, c)
	if ok {
		t.Fatal("expected claim to be dropped for missing required fields")
	}
}

func TestValidateAndFix_CoercesInvalidEnums(t *testing.T) {
	c := clause.Clause{Text: "Payment shall be made within 30 days of invoice."}
	rc := rawClaim{
		Subject: "Payment", Action: "shall be made", Modality: "BOGUS",
		ValueType: "BOGUS", Topic: "PAYMENT", SourceQuote: "30 days",
	}
	claim, ok := validateAndFix(rc, c)
	if !ok {
		t.Fatal("expected claim to survive with coerced fields")
	}
	if claim.Modality != ModalityIs {
		t.Fatalf("Modality = %v, want IS", claim.Modality)
	}
	if claim.ValueType != ValueTypeNone {
		t.Fatalf("ValueType = %v, want NONE", claim.ValueType)
	}
	if claim.NormalizedValue != "" {
		t.Fatalf("NormalizedValue = %q, want empty when ValueType=NONE", claim.NormalizedValue)
	}
}

func TestValidateAndFix_RepairsSourceQuote(t *testing.T) {
	c := clause.Clause{Text: "Payment shall be made within 30 days of invoice receipt."}
	rc := rawClaim{
		Subject: "Payment", Action: "shall be made", Modality: "SHALL",
		ValueType: "DURATION", Topic: "PAYMENT",
		SourceQuote: "within 30 dayz of invoice", // slightly wrong, shares a long substring
	}
	claim, ok := validateAndFix(rc, c)
	if !ok {
		t.Fatal("expected claim to survive with repaired source_quote")
	}
	if claim.SourceQuote == rc.SourceQuote {
		t.Fatal("expected source_quote to be repaired, not passed through verbatim")
	}
	if !contains(c.Text, claim.SourceQuote) {
		t.Fatalf("repaired source_quote %q is not a substring of clause text", claim.SourceQuote)
	}
}

func TestValidateAndFix_DropsUnrepairableSourceQuote(t *testing.T) {
	c := clause.Clause{Text: "Payment shall be made within 30 days of invoice."}
	rc := rawClaim{
		Subject: "Payment", Action: "shall be made", Modality: "SHALL",
		ValueType: "DURATION", Topic: "PAYMENT",
		SourceQuote: "completely unrelated text",
	}
	_, ok := validateAndFix(rc, c)
	if ok {
		t.Fatal("expected claim to be dropped when no substring match of length >= 8 exists")
	}
}
