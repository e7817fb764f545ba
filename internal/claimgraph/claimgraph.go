// Package claimgraph is the deterministic Conflict Graph Builder: it
// applies the seven rules of spec.md §4.3 over a run's full claim set and
// emits candidate claim pairs, with override suppression and canonical
// deduplication. Grounded on the teacher's pure-function rule-engine
// style (internal/extract/cluster.go's deterministic connected-components
// pass is the closest analog for "bucket, then compare within bucket").
package claimgraph

import (
	"sort"
	"strings"

	"github.com/contractlens/conflictengine/internal/claim"
)

// Pair is an unordered candidate pair of claims, canonicalized so that
// LeftIndex < RightIndex within the input claim slice.
type Pair struct {
	LeftIndex  int
	RightIndex int
	Rule       string
}

var oppositeModalityPairs = map[[2]claim.Modality]bool{
	{claim.ModalityMust, claim.ModalityMustNot}:    true,
	{claim.ModalityMustNot, claim.ModalityMust}:    true,
	{claim.ModalityShall, claim.ModalityShallNot}:  true,
	{claim.ModalityShallNot, claim.ModalityShall}:  true,
	{claim.ModalityMust, claim.ModalityProhibited}: true,
	{claim.ModalityProhibited, claim.ModalityMust}: true,
	{claim.ModalityPermitted, claim.ModalityProhibited}: true,
	{claim.ModalityProhibited, claim.ModalityPermitted}: true,
}

// Build applies the seven rules over claims, bucketed by topic for
// pruning, and returns a canonicalized, deduplicated candidate set.
// Running Build twice on the same claims yields a byte-identical result
// (spec.md §8 property 6).
func Build(claims []claim.Claim) []Pair {
	buckets := bucketByTopic(claims)

	seen := make(map[[2]int]string)
	for _, idxs := range buckets {
		for ai := 0; ai < len(idxs); ai++ {
			for bi := ai + 1; bi < len(idxs); bi++ {
				i, j := idxs[ai], idxs[bi]
				rule := matchRule(claims[i], claims[j])
				if rule == "" {
					continue
				}
				if isOverrideSuppressed(claims[i], claims[j]) {
					continue
				}
				key := canonicalKey(i, j)
				if _, ok := seen[key]; !ok {
					seen[key] = rule
				}
			}
		}
	}

	pairs := make([]Pair, 0, len(seen))
	for key, rule := range seen {
		pairs = append(pairs, Pair{LeftIndex: key[0], RightIndex: key[1], Rule: rule})
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].LeftIndex != pairs[b].LeftIndex {
			return pairs[a].LeftIndex < pairs[b].LeftIndex
		}
		return pairs[a].RightIndex < pairs[b].RightIndex
	})
	return pairs
}

func canonicalKey(i, j int) [2]int {
	if i < j {
		return [2]int{i, j}
	}
	return [2]int{j, i}
}

// bucketByTopic groups claim indices by topic, the O(N) first pass that
// bounds pairwise comparison to the square of the largest bucket
// (spec.md §4.3 complexity note).
func bucketByTopic(claims []claim.Claim) map[claim.Topic][]int {
	buckets := make(map[claim.Topic][]int)
	for i, c := range claims {
		buckets[c.Topic] = append(buckets[c.Topic], i)
	}
	return buckets
}

// matchRule returns the name of the first rule (1 through 7) that fires
// for the pair (a, b), or "" if none does.
func matchRule(a, b claim.Claim) string {
	sameSubject := normalizeSubject(a.Subject) == normalizeSubject(b.Subject)

	if sameSubject && oppositeModalityPairs[[2]claim.Modality{a.Modality, b.Modality}] {
		return "opposite_modality"
	}
	if sameSubject && a.ValueType != claim.ValueTypeNone && a.ValueType == b.ValueType && a.NormalizedValue != b.NormalizedValue {
		return "value_mismatch"
	}
	if a.ValueType == claim.ValueTypeJurisdiction && b.ValueType == claim.ValueTypeJurisdiction && a.NormalizedValue != b.NormalizedValue {
		return "jurisdiction_conflict"
	}
	if a.Topic == claim.TopicPayment && b.Topic == claim.TopicPayment &&
		a.ValueType == claim.ValueTypeDuration && b.ValueType == claim.ValueTypeDuration && a.NormalizedValue != b.NormalizedValue {
		return "payment_timing"
	}
	if strings.Contains(string(a.Topic), "LOCK") && strings.Contains(string(b.Topic), "LOCK") &&
		a.ValueType == claim.ValueTypeDuration && b.ValueType == claim.ValueTypeDuration && a.NormalizedValue != b.NormalizedValue {
		return "lockup_duration"
	}
	if a.Topic == claim.TopicConfidentiality && b.Topic == claim.TopicConfidentiality &&
		a.ValueType == claim.ValueTypeDuration && b.ValueType == claim.ValueTypeDuration && a.NormalizedValue != b.NormalizedValue {
		return "confidentiality_duration"
	}
	if a.Topic == claim.TopicIndemnification && b.Topic == claim.TopicIndemnification &&
		a.ValueType == claim.ValueTypeAmount && b.ValueType == claim.ValueTypeAmount && a.NormalizedValue != b.NormalizedValue {
		return "liability_cap"
	}
	return ""
}

func normalizeSubject(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// isOverrideSuppressed implements spec.md §4.3's override suppression:
// if either claim declares is_override=true referencing the other's
// clause number, the pair never enters the candidate set.
func isOverrideSuppressed(a, b claim.Claim) bool {
	if a.IsOverride && a.OverridesClause != "" {
		// OverridesClause is authored as a clause number; callers compare
		// against the claim's own clause number via the clauseNumbers map
		// supplied to BuildWithClauseNumbers for exact matching. Build
		// alone only has ClauseIDs, so an id-based match covers the
		// common case where OverridesClause was already resolved to an id
		// by the caller.
		if a.OverridesClause == b.ClauseID {
			return true
		}
	}
	if b.IsOverride && b.OverridesClause != "" {
		if b.OverridesClause == a.ClauseID {
			return true
		}
	}
	return false
}

// BuildWithClauseNumbers is Build, but resolves OverridesClause (a
// clause *number* per spec.md §3) against a number→id map before
// checking override suppression — the precise form of the rule when
// claims carry clause numbers rather than ids in OverridesClause.
func BuildWithClauseNumbers(claims []claim.Claim, numberToID map[string]string) []Pair {
	resolved := make([]claim.Claim, len(claims))
	copy(resolved, claims)
	for i, c := range resolved {
		if c.IsOverride && c.OverridesClause != "" {
			if id, ok := numberToID[c.OverridesClause]; ok {
				resolved[i].OverridesClause = id
			}
		}
	}
	return Build(resolved)
}
