// Package ann provides Approximate Nearest Neighbor search using HNSW
// (Hierarchical Navigable Small World graphs), following the algorithm
// from Malkov & Yashunin (2018): "Efficient and robust approximate
// nearest neighbor using Hierarchical Navigable Small World graphs" —
// https://arxiv.org/abs/1603.09320
//
// Adapted from the teacher's memory-embedding index: nodes are keyed by
// clause ID rather than a numeric memory ID, since internal/embedcluster
// indexes a contract's clauses, not a growing memory store. At the low
// hundreds of clauses a real filing runs to, brute force would do just as
// well, but the graph costs nothing to keep and scales past that without
// a rewrite.
package ann

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/contractlens/conflictengine/internal/clause"
)

// Index is an in-memory HNSW index for approximate nearest neighbor search.
type Index struct {
	mu         sync.RWMutex
	nodes      []node
	idToIdx    map[string]int // clause ID → node index
	entryPoint int             // index of entry point node (-1 if empty)
	maxLevel   int             // current max level in the graph
	dims       int             // vector dimensionality

	M              int     // max connections per layer (default: 16)
	Mmax0          int     // max connections for layer 0 (default: 2*M)
	EfConstruction int     // build-time beam width (default: 200)
	EfSearch       int     // search-time beam width (default: 50)
	LevelMult      float64 // level generation multiplier: 1/ln(M)

	rng *rand.Rand
}

type node struct {
	id      string
	vector  []float32
	friends [][]int
	level   int
}

// Result represents a search result with distance.
type Result struct {
	ID       string
	Distance float32 // cosine distance (1 - similarity); lower = more similar
}

type candidate struct {
	idx  int
	dist float32
}

const (
	DefaultM              = 16
	DefaultEfConstruction = 200
	DefaultEfSearch       = 50
)

// New creates a new HNSW index with the given vector dimensionality.
func New(dims int) *Index {
	return NewWithParams(dims, DefaultM, DefaultEfConstruction, DefaultEfSearch)
}

// NewWithParams creates a new HNSW index with custom parameters.
func NewWithParams(dims, m, efConstruction, efSearch int) *Index {
	if m < 2 {
		m = 2
	}
	return &Index{
		dims:           dims,
		M:              m,
		Mmax0:          2 * m,
		EfConstruction: efConstruction,
		EfSearch:       efSearch,
		LevelMult:      1.0 / math.Log(float64(m)),
		entryPoint:     -1,
		maxLevel:       -1,
		idToIdx:        make(map[string]int),
		rng:            rand.New(rand.NewSource(42)),
	}
}

// Len returns the number of vectors in the index.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}

// Insert adds a vector to the index under the given clause ID. If the ID
// already exists, it's a no-op.
func (idx *Index) Insert(id string, vector []float32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.idToIdx[id]; exists {
		return
	}

	nodeIdx := len(idx.nodes)
	level := idx.randomLevel()

	n := node{
		id:      id,
		vector:  vector,
		friends: make([][]int, level+1),
		level:   level,
	}

	idx.nodes = append(idx.nodes, n)
	idx.idToIdx[id] = nodeIdx

	if idx.entryPoint == -1 {
		idx.entryPoint = nodeIdx
		idx.maxLevel = level
		return
	}

	ep := idx.entryPoint
	for l := idx.maxLevel; l > level; l-- {
		ep = idx.greedyClosest(vector, ep, l)
	}

	topLayer := level
	if topLayer > idx.maxLevel {
		topLayer = idx.maxLevel
	}

	for l := topLayer; l >= 0; l-- {
		candidates := idx.searchLayer(vector, ep, idx.EfConstruction, l)

		maxConn := idx.M
		if l == 0 {
			maxConn = idx.Mmax0
		}
		neighbors := idx.selectNeighbors(candidates, maxConn)

		idx.nodes[nodeIdx].friends[l] = neighbors

		for _, neighborIdx := range neighbors {
			idx.nodes[neighborIdx].friends[l] = append(idx.nodes[neighborIdx].friends[l], nodeIdx)

			if len(idx.nodes[neighborIdx].friends[l]) > maxConn {
				idx.nodes[neighborIdx].friends[l] = idx.shrinkNeighbors(
					neighborIdx, idx.nodes[neighborIdx].friends[l], maxConn,
				)
			}
		}

		if len(candidates) > 0 {
			ep = candidates[0].idx
		}
	}

	if level > idx.maxLevel {
		idx.entryPoint = nodeIdx
		idx.maxLevel = level
	}
}

// Search finds the K nearest neighbors to the query vector, sorted by
// distance ascending (closest first).
func (idx *Index) Search(query []float32, k int) []Result {
	return idx.SearchEf(query, k, idx.EfSearch)
}

// SearchEf finds the K nearest neighbors with a custom ef (beam width).
func (idx *Index) SearchEf(query []float32, k, ef int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.nodes) == 0 || idx.entryPoint == -1 {
		return nil
	}

	if ef < k {
		ef = k
	}

	ep := idx.entryPoint
	for l := idx.maxLevel; l > 0; l-- {
		ep = idx.greedyClosest(query, ep, l)
	}

	candidates := idx.searchLayer(query, ep, ef, 0)

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{
			ID:       idx.nodes[c.idx].id,
			Distance: c.dist,
		}
	}
	return results
}

// BuildFromClauses constructs an Index over a clause set given a
// precomputed embedding per clause ID, skipping any clause with no
// vector rather than failing the whole build — a clause an embedder
// couldn't process just never gets pulled into a cluster by proximity.
func BuildFromClauses(dims int, clauses []clause.Clause, vectors map[string][]float32) *Index {
	idx := New(dims)
	for _, c := range clauses {
		vec, ok := vectors[c.ID]
		if !ok {
			continue
		}
		idx.Insert(c.ID, vec)
	}
	return idx
}

// Has returns true if the given clause ID is in the index.
func (idx *Index) Has(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, exists := idx.idToIdx[id]
	return exists
}

func (idx *Index) randomLevel() int {
	r := idx.rng.Float64()
	if r == 0 {
		r = 1e-10
	}
	return int(math.Floor(-math.Log(r) * idx.LevelMult))
}

func (idx *Index) greedyClosest(query []float32, ep int, layer int) int {
	dist := cosineDistance(query, idx.nodes[ep].vector)

	for {
		improved := false
		if layer < len(idx.nodes[ep].friends) {
			for _, friendIdx := range idx.nodes[ep].friends[layer] {
				friendDist := cosineDistance(query, idx.nodes[friendIdx].vector)
				if friendDist < dist {
					ep = friendIdx
					dist = friendDist
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return ep
}

func (idx *Index) searchLayer(query []float32, ep int, ef int, layer int) []candidate {
	visited := make(map[int]bool)
	visited[ep] = true

	epDist := cosineDistance(query, idx.nodes[ep].vector)
	candidates := []candidate{{idx: ep, dist: epDist}}
	results := []candidate{{idx: ep, dist: epDist}}

	for len(candidates) > 0 {
		closest := candidates[0]
		candidates = candidates[1:]

		farthest := results[len(results)-1]

		if closest.dist > farthest.dist && len(results) >= ef {
			break
		}

		if layer < len(idx.nodes[closest.idx].friends) {
			for _, neighborIdx := range idx.nodes[closest.idx].friends[layer] {
				if visited[neighborIdx] {
					continue
				}
				visited[neighborIdx] = true

				neighborDist := cosineDistance(query, idx.nodes[neighborIdx].vector)

				if neighborDist < results[len(results)-1].dist || len(results) < ef {
					candidates = insertSorted(candidates, candidate{idx: neighborIdx, dist: neighborDist})
					results = insertSorted(results, candidate{idx: neighborIdx, dist: neighborDist})

					if len(results) > ef {
						results = results[:ef]
					}
				}
			}
		}
	}

	return results
}

func (idx *Index) selectNeighbors(candidates []candidate, maxConn int) []int {
	if len(candidates) <= maxConn {
		neighbors := make([]int, len(candidates))
		for i, c := range candidates {
			neighbors[i] = c.idx
		}
		return neighbors
	}

	neighbors := make([]int, maxConn)
	for i := 0; i < maxConn; i++ {
		neighbors[i] = candidates[i].idx
	}
	return neighbors
}

func (idx *Index) shrinkNeighbors(nodeIdx int, neighbors []int, maxConn int) []int {
	if len(neighbors) <= maxConn {
		return neighbors
	}

	type scored struct {
		idx  int
		dist float32
	}

	scoredNeighbors := make([]scored, len(neighbors))
	vec := idx.nodes[nodeIdx].vector
	for i, nIdx := range neighbors {
		scoredNeighbors[i] = scored{idx: nIdx, dist: cosineDistance(vec, idx.nodes[nIdx].vector)}
	}

	sort.Slice(scoredNeighbors, func(i, j int) bool {
		return scoredNeighbors[i].dist < scoredNeighbors[j].dist
	})

	result := make([]int, maxConn)
	for i := 0; i < maxConn; i++ {
		result[i] = scoredNeighbors[i].idx
	}
	return result
}

func insertSorted(s []candidate, c candidate) []candidate {
	i := sort.Search(len(s), func(i int) bool { return s[i].dist >= c.dist })
	s = append(s, candidate{})
	copy(s[i+1:], s[i:])
	s[i] = c
	return s
}

// cosineDistance returns 1 - cosine_similarity. Range: [0, 2], lower = more similar.
func cosineDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 2.0
	}

	sim := dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
	return 1.0 - sim
}
