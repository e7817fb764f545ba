// Package conflictengine is the Orchestrator (spec.md §4.7): it composes
// the claim-based and hybrid/accurate pipelines over the components built
// in the sibling internal packages, reports per-phase stats, and applies
// idempotent caching and cancellation. Grounded on the teacher's
// internal/reason/engine.go (Engine/EngineConfig struct shape, a single
// phase-timed Reason method assembling a result with per-phase
// durations and token totals — the direct template for PhaseStats).
package conflictengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/contractlens/conflictengine/internal/adjudicate"
	"github.com/contractlens/conflictengine/internal/candidates"
	"github.com/contractlens/conflictengine/internal/claim"
	"github.com/contractlens/conflictengine/internal/claimgraph"
	"github.com/contractlens/conflictengine/internal/clause"
	"github.com/contractlens/conflictengine/internal/clausefunc"
	"github.com/contractlens/conflictengine/internal/conflict"
	"github.com/contractlens/conflictengine/internal/config"
	"github.com/contractlens/conflictengine/internal/judge"
	"github.com/contractlens/conflictengine/internal/llm"
	"github.com/contractlens/conflictengine/internal/persist"
)

// Strategy selects which pipeline a run executes (spec.md §6).
type Strategy string

const (
	StrategyClaimBased Strategy = "claim_based"
	StrategyHybrid     Strategy = "hybrid"
	StrategyAccurate   Strategy = "accurate"
)

// Sentinel errors: the first three are the input-validation kind of
// spec.md §7; ErrAllLLMCallsFailed reports a run in which every LLM call
// failed.
var (
	ErrEmptyClauseSet     = errors.New("conflictengine: clause set is empty")
	ErrDuplicateClauseID  = errors.New("conflictengine: duplicate clause id")
	ErrClauseTextEmpty    = errors.New("conflictengine: clause has empty text")
	ErrAllLLMCallsFailed  = errors.New("conflictengine: every LLM call in the run failed")
)

// Options configures a single run_conflict_detection invocation.
type Options struct {
	Model                  string
	Strategy               Strategy
	ConfidenceThreshold    float64
	VerificationConfidence float64
	ConsistencyVotes       int
	ClaimBatch             int
	JudgeBatch             int
	AdjudicatorPairBatch   int
	ConcurrentBatches      int
	KeepAlive              string
	RunTimeout             time.Duration
	ConfigPath             string                    // optional YAML config file layered under env vars and these struct fields
	Store                  persist.Store             // optional; nil disables persistence/caching
	Tier3Clusterer         candidates.TopicClusterer // optional; nil defaults to candidates.KeywordClusterer
	FunctionCache          *clausefunc.Cache         // optional; nil scopes an unbounded cache to this single run
}

// PhaseStats reports, for a completed run, per-phase counts, elapsed
// time, and token totals (spec.md §4.7 "A run reports, on completion").
type PhaseStats struct {
	ClausesConsidered    int
	ClausesSkipped       int
	ClaimsExtracted      int
	ClaimsDropped        int
	CandidatesGenerated  int
	CandidatesFiltered   int // dropped by compatibility gate or caps
	VerdictCounts        map[conflict.Classification]int
	ConflictsEmitted     int
	TotalTokens          int
	FatalErrors          []string
	PhaseElapsed         map[string]time.Duration
	TotalElapsed         time.Duration
	CacheHit             bool
	ResolvedConfig       config.ResolvedConfig
}

// String renders a one-line human-readable summary, the shape a CLI
// progress footer or a log line would want rather than the raw struct.
func (s PhaseStats) String() string {
	return fmt.Sprintf(
		"%s clauses considered, %s claims extracted, %s candidates generated, %s conflicts emitted (%s tokens, %s total)",
		humanize.Comma(int64(s.ClausesConsidered)),
		humanize.Comma(int64(s.ClaimsExtracted)),
		humanize.Comma(int64(s.CandidatesGenerated)),
		humanize.Comma(int64(s.ConflictsEmitted)),
		humanize.Comma(int64(s.TotalTokens)),
		s.TotalElapsed,
	)
}

func newPhaseStats() PhaseStats {
	return PhaseStats{
		VerdictCounts: make(map[conflict.Classification]int),
		PhaseElapsed:  make(map[string]time.Duration),
	}
}

// RunResult is the return value of run_conflict_detection.
type RunResult struct {
	RunID     string
	Conflicts []conflict.Conflict
	Stats     PhaseStats
}

// normalizeOptions layers o's explicit fields over the run's config file
// and environment (config.Resolve, spec.md §6's CLI/struct > env > YAML >
// default precedence), filling in every zero-valued field. Only
// ConcurrentBatches sits outside config.Resolve's surface and keeps its
// own default fill.
func normalizeOptions(o Options) (Options, config.ResolvedConfig) {
	overrides := config.Overrides{
		Model:                  o.Model,
		Strategy:               string(o.Strategy),
		ConfidenceThreshold:    o.ConfidenceThreshold,
		VerificationConfidence: o.VerificationConfidence,
		ConsistencyVotes:       o.ConsistencyVotes,
		ClaimBatch:             o.ClaimBatch,
		JudgeBatch:             o.JudgeBatch,
		AdjudicatorPairBatch:   o.AdjudicatorPairBatch,
		KeepAlive:              o.KeepAlive,
		RunTimeoutSeconds:      int(o.RunTimeout / time.Second),
	}
	resolved, err := config.Resolve(o.ConfigPath, overrides)
	if err != nil {
		// A malformed config file shouldn't sink the run: fall back to
		// env/default resolution with no file layer.
		resolved, _ = config.Resolve("", overrides)
	}

	o.Model = resolved.Model.Value.(string)
	o.Strategy = Strategy(resolved.Strategy.Value.(string))
	o.ConfidenceThreshold = resolved.ConfidenceThreshold.Value.(float64)
	o.VerificationConfidence = resolved.VerificationConfidence.Value.(float64)
	o.ConsistencyVotes = resolved.ConsistencyVotes.Value.(int)
	o.ClaimBatch = resolved.ClaimBatch.Value.(int)
	o.JudgeBatch = resolved.JudgeBatch.Value.(int)
	o.AdjudicatorPairBatch = resolved.AdjudicatorPairBatch.Value.(int)
	o.KeepAlive = resolved.KeepAlive.Value.(string)
	if o.RunTimeout <= 0 {
		if secs := resolved.RunTimeoutSeconds.Value.(int); secs > 0 {
			o.RunTimeout = time.Duration(secs) * time.Second
		}
	}

	if o.ConcurrentBatches <= 0 {
		o.ConcurrentBatches = adjudicate.DefaultConcurrentBatches
	}
	return o, resolved
}

// validateClauses implements spec.md §7's input-validation kind: empty
// clause set, duplicate ids, empty text all fail before any LLM call.
func validateClauses(clauses []clause.Clause) error {
	if len(clauses) == 0 {
		return ErrEmptyClauseSet
	}
	seen := make(map[string]bool, len(clauses))
	for _, c := range clauses {
		if c.Text == "" {
			return fmt.Errorf("%w: clause %s", ErrClauseTextEmpty, c.ID)
		}
		if seen[c.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateClauseID, c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}

// clauseSetHash is a stable fingerprint of a clause set used for
// idempotent-run caching (spec.md §4.7 "Idempotent caching").
func clauseSetHash(clauses []clause.Clause) string {
	sorted := make([]clause.Clause, len(clauses))
	copy(sorted, clauses)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h := sha256.New()
	for _, c := range sorted {
		h.Write([]byte(c.ID))
		h.Write([]byte{0})
		h.Write([]byte(c.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RunConflictDetection runs one of the three strategies end to end
// (spec.md §4.7, §6). If opts.Store is set and a prior run over an
// identical clause set produced conflicts at or above the confidence
// threshold, those are returned without invoking the LLM.
func RunConflictDetection(ctx context.Context, provider llm.Provider, clauses []clause.Clause, opts Options) (RunResult, error) {
	runStart := time.Now()
	opts, resolvedConfig := normalizeOptions(opts)
	if opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.RunTimeout)
		defer cancel()
	}
	stats := newPhaseStats()
	stats.ClausesConsidered = len(clauses)
	stats.ResolvedConfig = resolvedConfig

	if err := validateClauses(clauses); err != nil {
		stats.FatalErrors = append(stats.FatalErrors, err.Error())
		return RunResult{Stats: stats}, err
	}

	hash := clauseSetHash(clauses)
	runID := uuid.NewString()

	if opts.Store != nil {
		cached, ok, err := opts.Store.LookupCachedConflicts(ctx, hash)
		if err == nil && ok && allAboveThreshold(cached, opts.ConfidenceThreshold) {
			stats.CacheHit = true
			stats.ConflictsEmitted = len(cached)
			stats.TotalElapsed = time.Since(runStart)
			return RunResult{RunID: runID, Conflicts: cached, Stats: stats}, nil
		}
	}

	// The clause-function cache is process-scoped per spec.md §9: a
	// caller-supplied cache's lifetime stays with the caller, but a run
	// that didn't get one owns and tears down its own.
	if opts.FunctionCache == nil {
		opts.FunctionCache = clausefunc.NewUnbounded()
		defer opts.FunctionCache.Close()
	}

	if rs, ok := opts.Store.(*persist.SQLiteStore); ok {
		_ = rs.RecordRun(ctx, runID, hash, string(opts.Strategy))
	}

	clauseByID := make(map[string]clause.Clause, len(clauses))
	for _, c := range clauses {
		clauseByID[c.ID] = c
	}

	var result RunResult
	var err error
	switch opts.Strategy {
	case StrategyHybrid, StrategyAccurate:
		result, err = runHybrid(ctx, provider, clauses, clauseByID, opts, &stats)
	default:
		result, err = runClaimBased(ctx, provider, clauses, clauseByID, opts, &stats, runID)
	}
	if err != nil {
		stats.FatalErrors = append(stats.FatalErrors, err.Error())
		stats.TotalElapsed = time.Since(runStart)
		return RunResult{RunID: runID, Stats: stats}, err
	}
	result.RunID = runID

	if opts.Store != nil {
		_ = opts.Store.SaveConflicts(ctx, runID, result.Conflicts)
	}

	stats.ConflictsEmitted = len(result.Conflicts)
	stats.TotalElapsed = time.Since(runStart)
	result.Stats = stats
	return result, nil
}

func allAboveThreshold(conflicts []conflict.Conflict, threshold float64) bool {
	for _, c := range conflicts {
		if c.Confidence < threshold {
			return false
		}
	}
	return true
}

// runClaimBased executes "pre-filter clauses → Claim Extractor (batched)
// → Conflict Graph Builder → Conflict Judge (batched) → severity mapping
// → emit" (spec.md §4.7).
func runClaimBased(ctx context.Context, provider llm.Provider, clauses []clause.Clause, clauseByID map[string]clause.Clause, opts Options, stats *PhaseStats, runID string) (RunResult, error) {
	phaseStart := time.Now()
	extractOpts := claim.DefaultOpts(opts.Model)
	extractOpts.Concurrency = opts.ClaimBatch
	extractResult, err := claim.ExtractAll(ctx, provider, clauses, extractOpts)
	stats.PhaseElapsed["claim_extraction"] = time.Since(phaseStart)
	stats.ClausesSkipped = extractResult.ClausesSkipped
	stats.ClaimsExtracted = len(extractResult.Claims)
	stats.ClaimsDropped = extractResult.ClaimsDropped
	stats.TotalTokens += extractResult.TotalTokens
	if err != nil {
		return RunResult{}, fmt.Errorf("claim extraction: %w", err)
	}
	if len(extractResult.Claims) == 0 && len(clauses) > 0 && extractResult.ClausesFailed == len(clauses)-extractResult.ClausesSkipped {
		return RunResult{}, ErrAllLLMCallsFailed
	}

	// Claims are owned by the run and persist (spec.md §3) alongside the
	// conflicts emitted from them.
	if opts.Store != nil {
		_ = opts.Store.SaveClaims(ctx, runID, extractResult.Claims)
	}

	phaseStart = time.Now()
	pairs := claimgraph.Build(extractResult.Claims)
	stats.PhaseElapsed["graph_build"] = time.Since(phaseStart)
	stats.CandidatesGenerated = len(pairs)

	phaseStart = time.Now()
	judgeOpts := judge.DefaultOpts(opts.Model)
	judgeOpts.Concurrency = opts.JudgeBatch
	judgeOpts.ConfidenceThreshold = opts.ConfidenceThreshold
	judgeOpts.FunctionCache = opts.FunctionCache
	judgeResult := judge.JudgeAll(ctx, provider, extractResult.Claims, clauseByID, pairs, judgeOpts)
	stats.PhaseElapsed["judging"] = time.Since(phaseStart)
	stats.TotalTokens += judgeResult.TotalTokens
	stats.CandidatesFiltered = judgeResult.PairsRejected
	for _, c := range judgeResult.Conflicts {
		stats.VerdictCounts[c.Classification]++
	}
	if len(pairs) > 0 && judgeResult.PairsFailed == len(pairs) {
		return RunResult{}, ErrAllLLMCallsFailed
	}

	return RunResult{Conflicts: dedupeConflicts(judgeResult.Conflicts)}, nil
}

// runHybrid executes "Clause-function tagging → Multi-Tier Candidate
// Generator → Pair Adjudicator with or without consistency+verification
// → emit" (spec.md §4.7).
func runHybrid(ctx context.Context, provider llm.Provider, clauses []clause.Clause, clauseByID map[string]clause.Clause, opts Options, stats *PhaseStats) (RunResult, error) {
	phaseStart := time.Now()
	pairs, genStats := candidates.Generate(clauses, candidates.Opts{Tier3Clusterer: opts.Tier3Clusterer, FunctionCache: opts.FunctionCache})
	stats.PhaseElapsed["candidate_generation"] = time.Since(phaseStart)
	stats.CandidatesGenerated = genStats.FinalCandidates
	stats.CandidatesFiltered = genStats.DroppedByCap + genStats.DroppedByGate

	phaseStart = time.Now()
	var adjOpts adjudicate.Opts
	if opts.Strategy == StrategyAccurate {
		adjOpts = adjudicate.AccurateOpts(opts.Model)
	} else {
		adjOpts = adjudicate.DefaultOpts(opts.Model)
	}
	adjOpts.PairBatch = opts.AdjudicatorPairBatch
	adjOpts.ConcurrentBatches = opts.ConcurrentBatches
	adjOpts.ConfidenceThreshold = opts.ConfidenceThreshold
	adjOpts.ConsistencyVotes = opts.ConsistencyVotes
	adjOpts.VerificationThreshold = opts.VerificationConfidence
	adjOpts.FunctionCache = opts.FunctionCache

	adjResult := adjudicate.Run(ctx, provider, clauseByID, pairs, adjOpts)
	stats.PhaseElapsed["adjudication"] = time.Since(phaseStart)
	stats.TotalTokens += adjResult.TotalTokens
	for class, count := range adjResult.ClassCounts {
		stats.VerdictCounts[class] += count
	}
	if len(pairs) > 0 && adjResult.BatchesFailed > 0 && len(adjResult.Conflicts) == 0 && len(adjResult.Discarded) == 0 {
		return RunResult{}, ErrAllLLMCallsFailed
	}

	return RunResult{Conflicts: dedupeConflicts(adjResult.Conflicts)}, nil
}

// dedupeConflicts enforces spec.md §8 property 3: one Conflict per
// unordered pair per run. Ties keep the first (highest-priority pipeline
// stage) occurrence.
func dedupeConflicts(conflicts []conflict.Conflict) []conflict.Conflict {
	seen := make(map[[2]string]bool, len(conflicts))
	out := make([]conflict.Conflict, 0, len(conflicts))
	for _, c := range conflicts {
		key := c.CanonicalKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
