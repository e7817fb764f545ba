// Package pairset provides a canonical, deduplicated, deterministically
// ordered set of candidate clause pairs, backed by a tree set instead of
// a bare map+sort — grounded on the teacher's indirect
// github.com/emirpasic/gods dependency (pulled in transitively via
// mcp-go, never used in-tree), given a concrete home here per
// spec.md §3 "candidate set is deduplicated by canonicalized pair".
package pairset

import (
	"fmt"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/emirpasic/gods/utils"
)

// Provenance is a tag recording which generator tier produced a pair.
type Provenance string

const (
	ProvenanceOverrideReference Provenance = "OVERRIDE_REFERENCE"
	ProvenanceSection           Provenance = "SECTION"
	ProvenanceCluster           Provenance = "CLUSTER"
	ProvenanceClaimRule         Provenance = "CLAIM_RULE"
	ProvenanceCategoryLLM       Provenance = "CATEGORY_LLM"
)

// Pair is an unordered candidate pair of clause ids, canonicalized so
// that LeftID <= RightID, carrying the set of tiers that proposed it.
type Pair struct {
	LeftID      string
	RightID     string
	Provenances map[Provenance]bool
}

// HasProvenance reports whether tag is among the tiers that proposed p.
func (p Pair) HasProvenance(tag Provenance) bool {
	return p.Provenances[tag]
}

func canonicalize(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

func comparePairs(x, y interface{}) int {
	a := x.(Pair)
	b := y.(Pair)
	if c := utils.StringComparator(a.LeftID, b.LeftID); c != 0 {
		return c
	}
	return utils.StringComparator(a.RightID, b.RightID)
}

// Set is a canonical, deduplicated collection of Pair values kept in
// (LeftID, RightID) sorted order, backed by
// github.com/emirpasic/gods/sets/treeset.
type Set struct {
	tree  *treeset.Set
	index map[[2]string]int // canonical key -> position for provenance merge
	slots []*Pair
}

// New constructs an empty Set.
func New() *Set {
	return &Set{
		tree:  treeset.NewWith(comparePairs),
		index: make(map[[2]string]int),
	}
}

// Add inserts clause ids (a, b) with the given provenance tag, merging
// provenance tags if the canonicalized pair already exists. a == b is
// rejected (no self-pairs, spec.md §8 property 5).
func (s *Set) Add(a, b string, tag Provenance) error {
	if a == b {
		return fmt.Errorf("pairset: refusing self-pair for clause %q", a)
	}
	left, right := canonicalize(a, b)
	key := [2]string{left, right}

	if pos, ok := s.index[key]; ok {
		s.slots[pos].Provenances[tag] = true
		return nil
	}

	p := &Pair{LeftID: left, RightID: right, Provenances: map[Provenance]bool{tag: true}}
	s.slots = append(s.slots, p)
	s.index[key] = len(s.slots) - 1
	s.tree.Add(*p)
	return nil
}

// Pairs returns the deduplicated pairs in canonical (LeftID, RightID)
// ascending order. Provenances reflect every Add call merged so far,
// since the map stored in each Pair is shared between the tree and
// Set.slots.
func (s *Set) Pairs() []Pair {
	values := s.tree.Values()
	out := make([]Pair, 0, len(values))
	for _, v := range values {
		out = append(out, v.(Pair))
	}
	return out
}

// Len reports the number of distinct pairs in the set.
func (s *Set) Len() int { return len(s.slots) }

// Contains reports whether the canonicalized pair (a, b) is present.
func (s *Set) Contains(a, b string) bool {
	left, right := canonicalize(a, b)
	_, ok := s.index[[2]string{left, right}]
	return ok
}
