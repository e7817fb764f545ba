package embedcluster

import (
	"strings"
	"testing"

	"github.com/contractlens/conflictengine/internal/candidates"
	"github.com/contractlens/conflictengine/internal/clause"
)

// hashEmbed is a deterministic stand-in for a real sentence embedding: two
// texts sharing a token get a vector close to identical, so the HNSW
// lookups in Cluster exercise the same code path a real model would.
func hashEmbed(text string) ([]float32, error) {
	v := make([]float32, 8)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := 0
		for _, r := range tok {
			h = h*31 + int(r)
		}
		v[h%len(v)] += 1
	}
	return v, nil
}

func newTestClusterer() *Clusterer {
	c := &Clusterer{
		cfg: Config{Dims: 8, TopK: 4, NeighborRadius: 0.5},
	}
	c.embedFn = hashEmbed
	return c
}

func TestCluster_KeepsKeywordSeedMembers(t *testing.T) {
	clauses := []clause.Clause{
		{ID: "c1", OrderIndex: 0, Heading: "Payment Terms", Text: "Invoice payment is due within 30 days."},
		{ID: "c2", OrderIndex: 1, Heading: "Consideration", Text: "Invoice payment consideration follows the same schedule."},
		{ID: "c3", OrderIndex: 2, Heading: "Governing Law", Text: "This agreement is governed by the laws of Delaware."},
	}

	c := newTestClusterer()
	clusters := c.Cluster(clauses)

	payment, ok := clusters[candidates.Tier3Payment]
	if !ok {
		t.Fatalf("expected a payment cluster from keyword seeding")
	}
	ids := make(map[string]bool, len(payment))
	for _, cl := range payment {
		ids[cl.ID] = true
	}
	if !ids["c1"] {
		t.Errorf("expected c1 (keyword match) in payment cluster, got %v", payment)
	}
}

func TestCluster_FallsBackToSeedOnEmbeddingError(t *testing.T) {
	clauses := []clause.Clause{
		{ID: "c1", Heading: "Payment Terms", Text: "Invoice payment is due within 30 days."},
	}
	c := &Clusterer{cfg: Config{Dims: 8, TopK: 4, NeighborRadius: 0.5}}
	c.embedFn = func(string) ([]float32, error) { return nil, errTest }

	clusters := c.Cluster(clauses)
	payment, ok := clusters[candidates.Tier3Payment]
	if !ok || len(payment) != 1 {
		t.Fatalf("expected keyword-only fallback cluster, got %v", clusters)
	}
}

func TestCluster_EmptyInput(t *testing.T) {
	c := newTestClusterer()
	if got := c.Cluster(nil); len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestMeanPool_AveragesNonPaddingTokensAndNormalizes(t *testing.T) {
	hidden := []float32{1, 0, 0, 1, 99, 99} // third token is padding, should be ignored
	mask := []int64{1, 1, 0}
	got := meanPool(hidden, mask, 3, 2)

	var norm float32
	for _, v := range got {
		norm += v * v
	}
	if norm < 0.99 || norm > 1.01 {
		t.Errorf("expected unit-normalized vector, got norm=%f", norm)
	}
}

func TestSqrt32(t *testing.T) {
	got := sqrt32(4)
	if got < 1.99 || got > 2.01 {
		t.Errorf("sqrt32(4) = %f, want ~2", got)
	}
}

var errTest = testErr("boom")

type testErr string

func (e testErr) Error() string { return string(e) }
