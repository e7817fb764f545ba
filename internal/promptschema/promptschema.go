// Package promptschema reflects the engine's LLM response-struct shapes
// into JSON Schema, embedded in prompts so the model is shown the exact
// contract it must satisfy (spec.md §9 "validated against a schema with
// named variants"). Grounded on the teacher's indirect
// github.com/invopop/jsonschema dependency, pulled in transitively via
// mcp-go's tool-schema generation and never used in-tree — given a
// concrete home here.
package promptschema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ClaimExtractionResponse mirrors the Claim Extractor's per-clause JSON
// array entry shape (spec.md §4.2).
type ClaimExtractionResponse struct {
	Subject         string   `json:"subject" jsonschema:"required,description=the obligated or benefiting party"`
	Action          string   `json:"action" jsonschema:"required"`
	Modality        string   `json:"modality" jsonschema:"required,enum=MUST|SHALL|MAY|MUST_NOT|SHALL_NOT|PROHIBITED|PERMITTED|IS|DEFINES"`
	Object          string   `json:"object,omitempty"`
	ValueType       string   `json:"value_type" jsonschema:"required,enum=DURATION|AMOUNT|JURISDICTION|DATE|PERCENTAGE|PARTY|NONE"`
	NormalizedValue string   `json:"normalized_value,omitempty"`
	OriginalValue   string   `json:"original_value,omitempty"`
	Conditions      []string `json:"conditions,omitempty"`
	Exceptions      []string `json:"exceptions,omitempty"`
	SourceQuote     string   `json:"source_quote" jsonschema:"required,description=exact substring of the clause text"`
	Topic           string   `json:"topic" jsonschema:"required"`
	IsOverride      bool     `json:"is_override,omitempty"`
	OverridesClause string   `json:"overrides_clause,omitempty"`
}

// JudgeResponse mirrors the Conflict Judge's single-object response shape
// (spec.md §4.4).
type JudgeResponse struct {
	HasConflict  bool     `json:"has_conflict" jsonschema:"required"`
	Confidence   float64  `json:"confidence" jsonschema:"required,minimum=0,maximum=1"`
	ConflictType string   `json:"conflict_type,omitempty"`
	Why          string   `json:"why,omitempty"`
	Resolution   string   `json:"resolution,omitempty"`
	Evidence     []string `json:"evidence" jsonschema:"required,description=[quote_a\\, quote_b]"`
}

// AdjudicatorEntry mirrors one element of the Pair Adjudicator's batched
// response array (spec.md §4.6).
type AdjudicatorEntry struct {
	PairIndex      int             `json:"pair_index" jsonschema:"required"`
	Classification string          `json:"classification" jsonschema:"required,enum=TRUE_CONFLICT|VALID_OVERRIDE|EXCEPTION|COMPLEMENTARY|AMBIGUITY|NOT_RELATED"`
	Confidence     float64         `json:"confidence" jsonschema:"required,minimum=0,maximum=1"`
	ConflictType   string          `json:"conflict_type,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	LeftEvidence   EvidenceSchema  `json:"left_evidence" jsonschema:"required"`
	RightEvidence  EvidenceSchema  `json:"right_evidence" jsonschema:"required"`
	Materiality    string          `json:"materiality" jsonschema:"required,enum=HIGH|MEDIUM|LOW"`
}

// EvidenceSchema mirrors the {quote, start_char, end_char} evidence shape.
type EvidenceSchema struct {
	Quote     string `json:"quote" jsonschema:"required"`
	StartChar int    `json:"start_char,omitempty"`
	EndChar   int    `json:"end_char,omitempty"`
}

var reflector = &jsonschema.Reflector{
	ExpandedStruct: true,
	DoNotReference: true,
}

// For generates the JSON Schema document for v, suitable for embedding
// directly in a prompt's "respond matching this schema" instruction.
func For(v interface{}) (string, error) {
	schema := reflector.Reflect(v)
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("promptschema: marshaling schema: %w", err)
	}
	return string(b), nil
}

// ClaimExtractionSchema returns the JSON Schema for a single
// ClaimExtractionResponse entry (the array element shape).
func ClaimExtractionSchema() (string, error) { return For(ClaimExtractionResponse{}) }

// JudgeSchema returns the JSON Schema for a JudgeResponse.
func JudgeSchema() (string, error) { return For(JudgeResponse{}) }

// AdjudicatorEntrySchema returns the JSON Schema for a single
// AdjudicatorEntry (the array element shape).
func AdjudicatorEntrySchema() (string, error) { return For(AdjudicatorEntry{}) }
