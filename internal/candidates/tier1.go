package candidates

import (
	"regexp"
	"strings"

	"github.com/contractlens/conflictengine/internal/clause"
)

// overrideKeywords triggers a scan for clause-number cross-references
// (spec.md §4.5 Tier 1).
var overrideKeywords = []string{
	"notwithstanding", "subject to", "except as provided", "provided that",
	"unless otherwise", "save as", "however",
}

// clauseReferenceRe matches "clause 3.1", "Section 9", "Article 2.4",
// "paragraph 5" case-insensitively.
var clauseReferenceRe = regexp.MustCompile(`(?i)(?:clause|section|article|paragraph)\s+(\d+(?:\.\d+)*)`)

// contradictoryTermPairs is the closed set of term pairs spec.md §4.5
// flags as contradictory when both appear in same-section clauses.
var contradictoryTermPairs = [][2]string{
	{"shall", "shall not"},
	{"must", "must not"},
	{"mandatory", "optional"},
	{"required", "not required"},
	{"permitted", "prohibited"},
	{"allowed", "forbidden"},
}

type idPair struct{ left, right string }

// tier1Pairs implements spec.md §4.5 Tier 1: override-keyword clauses
// paired with any referenced clause present in the run, plus same-section
// clauses whose texts contain opposing term pairs.
func tier1Pairs(clauses []clause.Clause) []idPair {
	var out []idPair

	byNumber := make(map[string]clause.Clause)
	for _, c := range clauses {
		if c.Number != "" {
			byNumber[c.Number] = c
		}
	}

	for _, c := range clauses {
		lower := strings.ToLower(c.Text)
		if !containsAny(lower, overrideKeywords) {
			continue
		}
		for _, m := range clauseReferenceRe.FindAllStringSubmatch(c.Text, -1) {
			target, ok := byNumber[m[1]]
			if !ok || target.ID == c.ID {
				continue
			}
			out = append(out, idPair{left: c.ID, right: target.ID})
		}
	}

	bySection := make(map[string][]clause.Clause)
	for _, c := range clauses {
		bySection[c.Heading] = append(bySection[c.Heading], c)
	}
	for _, group := range bySection {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if hasContradictoryTerms(group[i].Text, group[j].Text) {
					out = append(out, idPair{left: group[i].ID, right: group[j].ID})
				}
			}
		}
	}

	return out
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

var termBoundaryRe = map[string]*regexp.Regexp{}

// termBoundary returns a cached \bterm\b regexp for term, so repeated
// lookups across many clause pairs don't recompile it each time.
func termBoundary(term string) *regexp.Regexp {
	if re, ok := termBoundaryRe[term]; ok {
		return re
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`)
	termBoundaryRe[term] = re
	return re
}

// hasTerm reports whether text contains term at a word boundary, not
// merely as a substring — "shall" must not match inside "shall not".
func hasTerm(text, term string) bool {
	return termBoundary(term).MatchString(text)
}

// termSide reports which of a pair's two phrases text carries: the
// longer phrase is checked first, so a text containing only "shall not"
// is never also credited with the shorter "shall" it happens to contain.
// Returns 1 for the longer phrase, -1 for the shorter, 0 for neither.
func termSide(text, longer, shorter string) int {
	if hasTerm(text, longer) {
		return 1
	}
	if hasTerm(text, shorter) {
		return -1
	}
	return 0
}

// hasContradictoryTerms checks each pair's two phrases at word boundaries
// (not mere substrings — "shall" must not match inside "shall not"),
// flagging a contradiction only when the two texts resolve to opposite
// non-zero sides of the pair.
func hasContradictoryTerms(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	for _, pair := range contradictoryTermPairs {
		longer, shorter := pair[0], pair[1]
		if len(shorter) > len(longer) {
			longer, shorter = shorter, longer
		}
		sideA := termSide(la, longer, shorter)
		sideB := termSide(lb, longer, shorter)
		if sideA != 0 && sideB != 0 && sideA != sideB {
			return true
		}
	}
	return false
}
