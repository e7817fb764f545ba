package candidates

import (
	"sort"
	"strings"

	"github.com/contractlens/conflictengine/internal/clause"
)

// Tier3Topic is one of the seven topical buckets Tier 3 clusters on
// (spec.md §4.5), distinct from claim.Topic's nine-valued enumeration.
type Tier3Topic string

const (
	Tier3Payment             Tier3Topic = "payment"
	Tier3Termination         Tier3Topic = "termination"
	Tier3Liability           Tier3Topic = "liability"
	Tier3Confidentiality     Tier3Topic = "confidentiality"
	Tier3IntellectualProperty Tier3Topic = "intellectual_property"
	Tier3Warranty            Tier3Topic = "warranty"
	Tier3Dispute             Tier3Topic = "dispute"
)

// TopicClusterer assigns each clause to zero or more Tier3Topics. Two
// implementations satisfy this interface with an identical contract:
// KeywordClusterer (deterministic, always available) and
// internal/embedcluster's embedding-based clusterer — spec.md §9's
// "allowed substitution with identical interface".
type TopicClusterer interface {
	Cluster(clauses []clause.Clause) map[Tier3Topic][]clause.Clause
}

// KeywordClusterer assigns clauses to topics by keyword matching over
// text+heading — the default, always-available Tier 3 implementation.
type KeywordClusterer struct{}

var tier3Keywords = map[Tier3Topic][]string{
	Tier3Payment:              {"payment", "invoice", "fee", "compensation"},
	Tier3Termination:          {"terminat", "expir", "wind down"},
	Tier3Liability:            {"liabilit", "indemnif", "hold harmless"},
	Tier3Confidentiality:      {"confidential", "non-disclosure", "nda"},
	Tier3IntellectualProperty: {"intellectual property", "copyright", "patent", "trademark", "trade secret"},
	Tier3Warranty:             {"warrant", "represents and warrants", "fitness for purpose"},
	Tier3Dispute:              {"dispute", "arbitrat", "mediation", "litigation"},
}

// Cluster assigns every clause to the Tier3Topics whose keywords appear
// in its text+heading; a clause may belong to zero or more topics.
func (KeywordClusterer) Cluster(clauses []clause.Clause) map[Tier3Topic][]clause.Clause {
	out := make(map[Tier3Topic][]clause.Clause)
	for _, c := range clauses {
		haystack := strings.ToLower(c.Heading + "\n" + c.Text)
		for topic, keywords := range tier3Keywords {
			for _, kw := range keywords {
				if strings.Contains(haystack, kw) {
					out[topic] = append(out[topic], c)
					break
				}
			}
		}
	}
	return out
}

// tier3Pairs implements spec.md §4.5 Tier 3: cluster via clusterer, cap
// each cluster at Tier3ClusterCap (truncating by order_index), emit all
// unordered pairs. Returns the pairs and a count of clauses dropped by
// the cap.
func tier3Pairs(clauses []clause.Clause, clusterer TopicClusterer) ([]idPair, int) {
	clusters := clusterer.Cluster(clauses)

	var out []idPair
	dropped := 0

	// Deterministic iteration: sort topic keys first.
	topics := make([]Tier3Topic, 0, len(clusters))
	for t := range clusters {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })

	for _, topic := range topics {
		group := clusters[topic]
		sort.Slice(group, func(i, j int) bool { return group[i].OrderIndex < group[j].OrderIndex })
		if len(group) > Tier3ClusterCap {
			dropped += len(group) - Tier3ClusterCap
			group = group[:Tier3ClusterCap]
		}
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				out = append(out, idPair{left: group[i].ID, right: group[j].ID})
			}
		}
	}

	return out, dropped
}
