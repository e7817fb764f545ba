package candidates

import (
	"sort"

	"github.com/contractlens/conflictengine/internal/clause"
)

// tier2Pairs implements spec.md §4.5 Tier 2: group clauses by heading;
// within each group, cap at Tier2SectionCap (truncating by order_index)
// and emit all unordered pairs. Returns the pairs and a count of clauses
// dropped by the cap.
func tier2Pairs(clauses []clause.Clause) ([]idPair, int) {
	groups := make(map[string][]clause.Clause)
	for _, c := range clauses {
		groups[c.Heading] = append(groups[c.Heading], c)
	}

	var out []idPair
	dropped := 0

	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool { return group[i].OrderIndex < group[j].OrderIndex })
		if len(group) > Tier2SectionCap {
			dropped += len(group) - Tier2SectionCap
			group = group[:Tier2SectionCap]
		}
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				out = append(out, idPair{left: group[i].ID, right: group[j].ID})
			}
		}
	}

	return out, dropped
}
