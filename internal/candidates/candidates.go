// Package candidates is the Multi-Tier Candidate Generator (spec.md
// §4.5): Tier 0 clause-function tagging, Tier 1 override/contradiction
// detection, Tier 2 section-wise all-pairs, Tier 3 topical clustering,
// unioned and filtered by a clause-function compatibility gate with a
// Tier-1 bypass. Runs independent of Claims, in the hybrid pipeline.
package candidates

import (
	"sort"

	"github.com/contractlens/conflictengine/internal/clause"
	"github.com/contractlens/conflictengine/internal/clausefunc"
	"github.com/contractlens/conflictengine/internal/pairset"
)

// Tier2SectionCap and Tier3ClusterCap are the per-group truncation
// limits from spec.md §4.5.
const (
	Tier2SectionCap = 50
	Tier3ClusterCap = 30
)

// Stats instruments what each tier produced and what the cap/gate
// dropped, per SPEC_FULL.md's "cap-drop instrumentation" supplement —
// drops are recorded, never silent.
type Stats struct {
	Tier0Tagged       int
	Tier1Pairs        int
	Tier2Pairs        int
	Tier3Pairs        int
	DroppedByCap      int
	DroppedByGate     int
	FinalCandidates   int
}

// Opts configures a single Generate invocation.
type Opts struct {
	Tier3Clusterer TopicClusterer   // defaults to KeywordClusterer if nil
	FunctionCache  *clausefunc.Cache // optional; nil falls back to uncached clause.ClassifyFunction
}

// Generate runs all four tiers over clauses and returns the unioned,
// gated, canonicalized candidate set plus generation stats.
func Generate(clauses []clause.Clause, opts Opts) ([]pairset.Pair, Stats) {
	stats := Stats{}
	functions := make(map[string]clause.Function, len(clauses))
	byID := make(map[string]clause.Clause, len(clauses))
	for _, c := range clauses {
		functions[c.ID] = clausefunc.Classify(opts.FunctionCache, c)
		byID[c.ID] = c
	}
	stats.Tier0Tagged = len(functions)

	set := pairset.New()

	tier1Pairs := tier1Pairs(clauses)
	stats.Tier1Pairs = len(tier1Pairs)
	for _, p := range tier1Pairs {
		_ = set.Add(p.left, p.right, pairset.ProvenanceOverrideReference)
	}

	tier2Pairs, tier2Dropped := tier2Pairs(clauses)
	stats.Tier2Pairs = len(tier2Pairs)
	stats.DroppedByCap += tier2Dropped
	for _, p := range tier2Pairs {
		_ = set.Add(p.left, p.right, pairset.ProvenanceSection)
	}

	clusterer := opts.Tier3Clusterer
	if clusterer == nil {
		clusterer = KeywordClusterer{}
	}
	tier3Pairs, tier3Dropped := tier3Pairs(clauses, clusterer)
	stats.Tier3Pairs = len(tier3Pairs)
	stats.DroppedByCap += tier3Dropped
	for _, p := range tier3Pairs {
		_ = set.Add(p.left, p.right, pairset.ProvenanceCluster)
	}

	allPairs := set.Pairs()
	gated := make([]pairset.Pair, 0, len(allPairs))
	for _, p := range allPairs {
		if p.HasProvenance(pairset.ProvenanceOverrideReference) {
			// Tier-1 bypass: an authorial cross-reference justifies
			// cross-function examination (spec.md §4.5).
			gated = append(gated, p)
			continue
		}
		if compatible(functions[p.LeftID], functions[p.RightID]) {
			gated = append(gated, p)
		} else {
			stats.DroppedByGate++
		}
	}

	sort.Slice(gated, func(i, j int) bool {
		if gated[i].LeftID != gated[j].LeftID {
			return gated[i].LeftID < gated[j].LeftID
		}
		return gated[i].RightID < gated[j].RightID
	})
	stats.FinalCandidates = len(gated)

	return gated, stats
}
