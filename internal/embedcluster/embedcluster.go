// Package embedcluster is the optional embedding-based substitute for
// candidates.KeywordClusterer (spec.md §9: Tier 3 topic clustering "may be
// swapped for a local embedding model behind the same interface"). It
// tokenizes clause text with a local WordPiece tokenizer, runs a local
// ONNX sentence-embedding model, and uses those embeddings to pull in
// clauses a pure keyword match misses — a clause that says "consideration
// payable under this agreement" never contains the word "payment", but
// sits right next to the payment cluster in embedding space.
//
// Grounded on the teacher's declared-but-unwired sugarme/tokenizer and
// yalue/onnxruntime_go dependencies (local embedding inference, no network
// call) and internal/ann's HNSW index (adapted here from memory-id to
// clause-id nodes) for the nearest-neighbor lookups that do the pulling in.
package embedcluster

import (
	"fmt"
	"os"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/contractlens/conflictengine/internal/ann"
	"github.com/contractlens/conflictengine/internal/candidates"
	"github.com/contractlens/conflictengine/internal/clause"
)

// Config points at the on-disk model and tunes the embedding search.
type Config struct {
	ModelPath      string // ONNX sentence-embedding model
	TokenizerPath  string // tokenizer.json (WordPiece/BPE config)
	SharedLibPath  string // path to the onnxruntime shared library, if not on the default search path
	Dims           int    // output embedding dimensionality
	MaxSeqLen      int    // tokens per clause, truncated beyond this
	NeighborRadius float32 // cosine distance below which a clause is pulled into a cluster
	TopK           int     // neighbors considered per seed clause
}

// DefaultConfig returns sane defaults for a 384-dim MiniLM-class model.
func DefaultConfig(modelPath, tokenizerPath string) Config {
	return Config{
		ModelPath:      modelPath,
		TokenizerPath:  tokenizerPath,
		Dims:           384,
		MaxSeqLen:      256,
		NeighborRadius: 0.25,
		TopK:           8,
	}
}

var (
	envOnce sync.Once
	envErr  error
)

// Clusterer implements candidates.TopicClusterer by extending
// candidates.KeywordClusterer's seed clusters with embedding-adjacent
// clauses. It owns an ONNX Runtime session and must be closed.
type Clusterer struct {
	cfg     Config
	tk      *tokenizer.Tokenizer
	session *ort.AdvancedSession
	seed    candidates.KeywordClusterer

	// Bound to the session at construction; Run() reads whatever is
	// currently written into inputIDs/attentionMask and overwrites hidden.
	mu            sync.Mutex
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	hidden        *ort.Tensor[float32]

	// embedFn defaults to c.onnxEmbed; overridable in tests so Cluster's
	// expansion logic can be exercised without a real model on disk.
	embedFn func(text string) ([]float32, error)
}

var _ candidates.TopicClusterer = (*Clusterer)(nil)

// New loads the tokenizer and ONNX model and initializes the shared ONNX
// Runtime environment (process-wide, safe to call more than once). Returns
// an error if the model files are missing — callers should fall back to
// candidates.KeywordClusterer in that case rather than failing the run.
func New(cfg Config) (*Clusterer, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("embedcluster: model path %q: %w", cfg.ModelPath, err)
	}
	if _, err := os.Stat(cfg.TokenizerPath); err != nil {
		return nil, fmt.Errorf("embedcluster: tokenizer path %q: %w", cfg.TokenizerPath, err)
	}

	envOnce.Do(func() {
		if cfg.SharedLibPath != "" {
			ort.SetSharedLibraryPath(cfg.SharedLibPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	if envErr != nil {
		return nil, fmt.Errorf("embedcluster: initializing onnxruntime environment: %w", envErr)
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("embedcluster: loading tokenizer: %w", err)
	}

	inputShape := ort.NewShape(1, int64(cfg.MaxSeqLen))
	outputShape := ort.NewShape(1, int64(cfg.MaxSeqLen), int64(cfg.Dims))

	inputIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("embedcluster: allocating input_ids tensor: %w", err)
	}
	attentionMask, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("embedcluster: allocating attention_mask tensor: %w", err)
	}
	hidden, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, fmt.Errorf("embedcluster: allocating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"last_hidden_state"},
		[]ort.ArbitraryTensor{inputIDs, attentionMask},
		[]ort.ArbitraryTensor{hidden},
		nil)
	if err != nil {
		return nil, fmt.Errorf("embedcluster: creating onnx session: %w", err)
	}

	c := &Clusterer{
		cfg:           cfg,
		tk:            tk,
		session:       session,
		inputIDs:      inputIDs,
		attentionMask: attentionMask,
		hidden:        hidden,
	}
	c.embedFn = c.onnxEmbed
	return c, nil
}

// Close releases the ONNX session. The shared environment is left running
// for the lifetime of the process, matching onnxruntime_go's single
// teardown convention.
func (c *Clusterer) Close() error {
	if c.session != nil {
		return c.session.Destroy()
	}
	return nil
}

// Cluster assigns clauses to Tier3Topics by keyword seed, then expands
// each seed cluster with clauses whose embedding lies within
// NeighborRadius of a member — the keyword clusterer's exact output, plus
// whatever synonymous phrasing keyword matching alone would miss.
func (c *Clusterer) Cluster(clauses []clause.Clause) map[candidates.Tier3Topic][]clause.Clause {
	seedClusters := c.seed.Cluster(clauses)
	if len(clauses) == 0 {
		return seedClusters
	}

	vectors, err := c.embedAll(clauses)
	if err != nil {
		return seedClusters
	}

	index := ann.BuildFromClauses(c.cfg.Dims, clauses, vectors)
	byID := make(map[string]clause.Clause, len(clauses))
	for _, cl := range clauses {
		byID[cl.ID] = cl
	}

	out := make(map[candidates.Tier3Topic][]clause.Clause, len(seedClusters))
	for topic, members := range seedClusters {
		present := make(map[string]bool, len(members))
		expanded := append([]clause.Clause(nil), members...)
		for _, m := range members {
			present[m.ID] = true
		}

		for _, m := range members {
			vec, ok := vectors[m.ID]
			if !ok {
				continue
			}
			for _, n := range index.SearchEf(vec, c.cfg.TopK, c.cfg.TopK*4) {
				if n.Distance > c.cfg.NeighborRadius || present[n.ID] {
					continue
				}
				present[n.ID] = true
				expanded = append(expanded, byID[n.ID])
			}
		}
		out[topic] = expanded
	}
	return out
}

// embedAll runs the embedding model over every clause's heading+text and
// returns an L2-normalized, mean-pooled sentence vector per clause ID.
func (c *Clusterer) embedAll(clauses []clause.Clause) (map[string][]float32, error) {
	out := make(map[string][]float32, len(clauses))
	for _, cl := range clauses {
		vec, err := c.embedFn(cl.Heading + "\n" + cl.Text)
		if err != nil {
			return nil, fmt.Errorf("embedcluster: embedding clause %s: %w", cl.ID, err)
		}
		out[cl.ID] = vec
	}
	return out, nil
}

// onnxEmbed is the default embedFn: tokenize, run the bound ONNX session,
// mean-pool the last hidden state over non-padding positions.
func (c *Clusterer) onnxEmbed(text string) ([]float32, error) {
	encoding, err := c.tk.Encode(tokenizer.NewSingleEncodeInput(tokenizer.NewInputSequence(text)), true)
	if err != nil {
		return nil, fmt.Errorf("tokenizing: %w", err)
	}

	ids := encoding.Ids
	mask := encoding.AttentionMask
	if len(ids) > c.cfg.MaxSeqLen {
		ids = ids[:c.cfg.MaxSeqLen]
		mask = mask[:c.cfg.MaxSeqLen]
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	inputData := c.inputIDs.GetData()
	maskData := c.attentionMask.GetData()
	for i := range inputData {
		inputData[i] = 0
		maskData[i] = 0
	}
	attentionMask := make([]int64, c.cfg.MaxSeqLen)
	for i := range ids {
		inputData[i] = int64(ids[i])
		maskData[i] = int64(mask[i])
		attentionMask[i] = int64(mask[i])
	}

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("running session: %w", err)
	}

	return meanPool(c.hidden.GetData(), attentionMask, c.cfg.MaxSeqLen, c.cfg.Dims), nil
}

// meanPool averages token embeddings over the non-padding positions and
// L2-normalizes the result, the standard sentence-embedding pooling for
// BERT-family encoders.
func meanPool(hidden []float32, mask []int64, seqLen, dims int) []float32 {
	sum := make([]float32, dims)
	var count float32
	for t := 0; t < seqLen; t++ {
		if mask[t] == 0 {
			continue
		}
		count++
		base := t * dims
		for d := 0; d < dims; d++ {
			sum[d] += hidden[base+d]
		}
	}
	if count == 0 {
		count = 1
	}
	var norm float32
	for d := range sum {
		sum[d] /= count
		norm += sum[d] * sum[d]
	}
	if norm == 0 {
		return sum
	}
	norm = sqrt32(norm)
	for d := range sum {
		sum[d] /= norm
	}
	return sum
}

func sqrt32(x float32) float32 {
	// Newton's method; a handful of iterations is plenty at this scale.
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 8; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
