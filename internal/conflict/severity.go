package conflict

import (
	"strings"

	"github.com/contractlens/conflictengine/internal/clause"
)

// severityRank orders severities for the "at least HIGH" upgrade rule.
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

func materialitySeverity(m Materiality) Severity {
	switch m {
	case MaterialityHigh:
		return SeverityHigh
	case MaterialityMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// functionRequiresAtLeastHigh is the clause-function set from spec.md
// §4.6's severity upgrade rule.
var functionRequiresAtLeastHigh = map[clause.Function]bool{
	clause.FuncGoverningLawJurisdict: true,
	clause.FuncIndemnityLiability:    true,
	clause.FuncPayment:               true,
	clause.FuncTermination:           true,
}

// SeverityFor maps a Conflict's materiality to a starting Severity, then
// applies the upgrade rules of spec.md §4.6: JurisdictionMismatch is
// always CRITICAL; a TRUE_CONFLICT touching a high-stakes ClauseFunction
// is raised to at least HIGH; an AMBIGUITY is always MEDIUM.
func SeverityFor(c Conflict, leftFunc, rightFunc clause.Function) Severity {
	severity := materialitySeverity(c.Materiality)

	if strings.Contains(strings.ToLower(c.ConflictType), "jurisdiction") {
		return SeverityCritical
	}

	if c.Classification == ClassificationTrueConflict &&
		(functionRequiresAtLeastHigh[leftFunc] || functionRequiresAtLeastHigh[rightFunc]) {
		if severityRank[severity] < severityRank[SeverityHigh] {
			severity = SeverityHigh
		}
	}

	if c.Classification == ClassificationAmbiguity {
		severity = SeverityMedium
	}

	return severity
}
