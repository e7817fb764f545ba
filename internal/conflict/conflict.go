// Package conflict defines the engine's sole output type, Conflict, and
// the shared enumerations (Classification, Severity, Materiality) used by
// both the claim-based Conflict Judge and the hybrid Pair Adjudicator —
// spec.md §3 "Conflict (output)" and "Classification Verdict".
package conflict

import "strings"

// Classification is the six-valued internal verdict taxonomy. Only
// TrueConflict and Ambiguity ever survive to an emitted Conflict.
type Classification string

const (
	ClassificationTrueConflict  Classification = "TRUE_CONFLICT"
	ClassificationValidOverride Classification = "VALID_OVERRIDE"
	ClassificationException     Classification = "EXCEPTION"
	ClassificationComplementary Classification = "COMPLEMENTARY"
	ClassificationAmbiguity     Classification = "AMBIGUITY"
	ClassificationNotRelated    Classification = "NOT_RELATED"
)

// Emittable reports whether c is one of the two classifications that may
// ever become a Conflict record.
func (c Classification) Emittable() bool {
	return c == ClassificationTrueConflict || c == ClassificationAmbiguity
}

// Severity is the closed four-valued severity enumeration.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Materiality is the closed three-valued materiality enumeration reported
// by the LLM alongside each verdict.
type Materiality string

const (
	MaterialityHigh   Materiality = "HIGH"
	MaterialityMedium Materiality = "MEDIUM"
	MaterialityLow    Materiality = "LOW"
)

// MinConfidence is the floor below which a verdict is discarded
// regardless of classification (spec.md §3, §4.4, §4.6).
const MinConfidence = 0.85

// DefaultVerificationConfidence is the elevated threshold used by the
// Pair Adjudicator's optional verification pass (spec.md §4.6).
const DefaultVerificationConfidence = 0.90

// Evidence is a quoted span from one side of a pair; StartChar:EndChar
// must equal Quote within the corresponding clause's text.
type Evidence struct {
	Quote     string
	StartChar int
	EndChar   int
}

// Conflict is the engine's emitted record: a validated, evidence-backed
// disagreement between two clauses.
type Conflict struct {
	ID             string
	LeftClauseID   string
	RightClauseID  string
	Classification Classification
	ConflictType   string
	Severity       Severity
	Confidence     float64
	Materiality    Materiality
	Summary        string
	Explanation    string
	LeftEvidence   Evidence
	RightEvidence  Evidence
}

// CanonicalKey returns the unordered-pair key used for run-level
// uniqueness (spec.md §3 "pair-uniqueness"), with the smaller id first.
func (c Conflict) CanonicalKey() [2]string {
	if c.LeftClauseID <= c.RightClauseID {
		return [2]string{c.LeftClauseID, c.RightClauseID}
	}
	return [2]string{c.RightClauseID, c.LeftClauseID}
}

// MinEvidenceMatch is the shortest substring RepairEvidence will accept
// as a repaired quote; below this length a near-miss is too weak to trust.
const MinEvidenceMatch = 8

// RepairEvidence finds quote verbatim in text and returns its span. If
// quote isn't a substring (the LLM paraphrased or mangled whitespace), it
// searches for the longest substring of quote that does appear in text,
// preferring the longest match and, among ties, the earliest. It reports
// false when no match of at least MinEvidenceMatch survives, meaning the
// evidence cannot be trusted to back an emitted Conflict.
func RepairEvidence(quote, text string) (Evidence, bool) {
	if quote == "" {
		return Evidence{}, false
	}
	if idx := strings.Index(text, quote); idx >= 0 {
		return Evidence{Quote: quote, StartChar: idx, EndChar: idx + len(quote)}, true
	}

	best := ""
	bestStart := 0
	for length := len(quote); length >= MinEvidenceMatch; length-- {
		for start := 0; start+length <= len(quote); start++ {
			candidate := quote[start : start+length]
			if idx := strings.Index(text, candidate); idx >= 0 && len(candidate) > len(best) {
				best = candidate
				bestStart = idx
			}
		}
		if best != "" {
			return Evidence{Quote: best, StartChar: bestStart, EndChar: bestStart + len(best)}, true
		}
	}
	return Evidence{}, false
}
