// Package clause defines the immutable Clause type the engine ingests and
// the deterministic ClauseFunction tagger (Multi-Tier Tier 0).
//
// Clauses are owned by an external producer (document parsing, clause
// extraction) and are never mutated by the engine — see spec.md §3.
package clause

import "strings"

// Clause is an immutable unit of contract prose. The engine never mutates
// Text; identifier-equality, not number-equality, is authoritative.
type Clause struct {
	ID            string
	Number        string
	Heading       string
	Text          string
	OrderIndex    int
	IsBilingual   bool
	SecondaryText string
}

// Function is a deterministic tag placing a clause into one of twelve
// disjoint domains, used by the compatibility gate (spec.md §4.5).
type Function string

const (
	FuncPayment               Function = "PAYMENT"
	FuncTermination           Function = "TERMINATION"
	FuncGoverningLawJurisdict Function = "GOVERNING_LAW_JURISDICTION"
	FuncConfidentiality       Function = "CONFIDENTIALITY"
	FuncIndemnityLiability    Function = "INDEMNITY_LIABILITY"
	FuncForceMajeure          Function = "FORCE_MAJEURE"
	FuncNotices               Function = "NOTICES"
	FuncAmendments            Function = "AMENDMENTS"
	FuncDefinitions           Function = "DEFINITIONS"
	FuncScopeServices         Function = "SCOPE_SERVICES"
	FuncExecutionSignatures   Function = "EXECUTION_SIGNATURES"
	FuncMiscAdmin             Function = "MISC_ADMIN"
)

// functionRule pairs a ClauseFunction with the keywords (lowercased,
// substring match over text+heading) that trigger it. Rules are evaluated
// in order; the first match wins. Ordering reflects specificity: narrower,
// higher-signal domains (jurisdiction, indemnity) are checked before the
// broad catch-all MISC_ADMIN.
var functionRules = []struct {
	fn       Function
	keywords []string
}{
	{FuncGoverningLawJurisdict, []string{"governing law", "governed by the laws", "jurisdiction", "courts of", "venue"}},
	{FuncIndemnityLiability, []string{"indemnif", "liabilit", "hold harmless", "limitation of liability"}},
	{FuncConfidentiality, []string{"confidential", "non-disclosure", "nda"}},
	{FuncForceMajeure, []string{"force majeure", "act of god"}},
	{FuncAmendments, []string{"notwithstanding", "amendment", "amended", "modification of this agreement"}},
	{FuncTermination, []string{"terminat", "expir", "wind down"}},
	{FuncNotices, []string{"notice", "serve", "notification shall"}},
	{FuncPayment, []string{"payment", "invoice", "fee", "compensation", "net 30", "net 60"}},
	{FuncDefinitions, []string{"means", "shall mean", "as used herein", "definitions"}},
	{FuncExecutionSignatures, []string{"signature", "executed", "counterpart", "witness whereof"}},
	{FuncScopeServices, []string{"scope of services", "scope of work", "deliverable", "services to be provided"}},
}

// ClassifyFunction assigns a deterministic ClauseFunction from text+heading.
// Falls back to MISC_ADMIN when no keyword rule matches — see spec.md §3
// "Computed deterministically from text+heading".
func ClassifyFunction(c Clause) Function {
	haystack := strings.ToLower(c.Heading + "\n" + c.Text)
	for _, rule := range functionRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.fn
			}
		}
	}
	return FuncMiscAdmin
}

// IsSubstantive reports whether a clause carries enough signal to be worth
// claim extraction — the Claim Extractor's deterministic pre-filter
// (spec.md §4.2). Non-substantive clauses yield zero claims without an LLM
// call.
func IsSubstantive(c Clause) bool {
	text := strings.TrimSpace(c.Text)
	if len(text) < 30 {
		return false
	}
	if isBareLabel(text) {
		return false
	}
	if looksLikeTOCEntry(text) {
		return false
	}
	if !hasVerb(text) {
		return false
	}
	return true
}

// isBareLabel detects text of at most four fields that is solely numeric
// clause numbering (e.g. "3.1", "4.2.1", "(12)"). Only digits, dots and
// hyphens count as label characters, so lettered labels such as "(a)" or
// "APPENDIX 1" are not detected here.
func isBareLabel(text string) bool {
	fields := strings.Fields(text)
	if len(fields) > 4 {
		return false
	}
	hasLetterWord := false
	for _, f := range fields {
		trimmed := strings.Trim(f, "().,:;")
		if trimmed == "" {
			continue
		}
		if isNumberingToken(trimmed) {
			continue
		}
		hasLetterWord = true
	}
	return !hasLetterWord
}

func isNumberingToken(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9') && r != '.' && r != '-' {
			return false
		}
	}
	return true
}

// looksLikeTOCEntry detects table-of-contents heuristics: heavy dotted
// leaders followed by a trailing page number.
func looksLikeTOCEntry(text string) bool {
	dotRun := strings.Count(text, "....")
	if dotRun == 0 {
		dotRun = strings.Count(text, "· · ·")
	}
	if dotRun == 0 {
		return false
	}
	trimmed := strings.TrimSpace(text)
	last := lastField(trimmed)
	return isAllDigits(last)
}

func lastField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// commonVerbForms is a deliberately small set — this is a pre-filter, not
// a parser. Forms are matched as substrings, so short ones such as "is"
// also match inside longer words and the check errs toward keeping a
// clause. A false positive costs one extraction call, whose claims are
// validated anyway; a false negative skips a substantive clause.
var commonVerbForms = []string{
	"shall", "must", "will", "may", "is", "are", "was", "were",
	"agrees", "agreed", "means", "includes", "terminates", "expires",
	"provides", "requires", "permits", "prohibits",
}

func hasVerb(text string) bool {
	lower := strings.ToLower(text)
	for _, v := range commonVerbForms {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}
