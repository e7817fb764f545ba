// Package llmretry supplies an opt-in retry-with-backoff wrapper for
// batched LLM callers (Claim Extractor, Conflict Judge, Pair Adjudicator).
// The LLM client itself never retries (spec.md §4.1); this wrapper is
// applied explicitly at the call site, grounded on the teacher's
// internal/extract/llm_client.go Extract retry loop (exponential backoff,
// honors HTTP 429 Retry-After).
package llmretry

import (
	"context"
	"errors"
	"time"

	"github.com/contractlens/conflictengine/internal/llm"
)

// Policy controls retry behavior. Zero value disables retry (MaxAttempts
// defaults to 1 via Do).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy makes up to 3 attempts in total (at most 2 retries) on
// transport failures, with exponential backoff starting at 500ms, mirroring the teacher's 1<<attempt second
// scale but tuned down for the shorter structured-extraction calls this
// engine makes.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// Do runs fn, retrying on *llm.HTTPError with a 5xx status or a network
// error, up to policy.MaxAttempts total attempts. It never retries a
// *llm.ParseError — malformed output is a semantic failure, not a
// transient one, and the caller's own validation/auto-fix governs it.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) (string, llm.Metrics, error)) (string, llm.Metrics, error) {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastText string
	var lastMetrics llm.Metrics
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		text, metrics, err := fn(ctx)
		if err == nil {
			return text, metrics, nil
		}
		lastText, lastMetrics, lastErr = text, metrics, err

		if !isRetryable(err) {
			return lastText, lastMetrics, lastErr
		}
		if attempt == attempts-1 {
			break
		}

		delay := policy.BaseDelay << attempt
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastText, lastMetrics, ctx.Err()
		}
	}
	return lastText, lastMetrics, lastErr
}

func isRetryable(err error) bool {
	var httpErr *llm.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	var parseErr *llm.ParseError
	if errors.As(err, &parseErr) {
		return false
	}
	// Anything else (context deadline, connection refused, DNS failure)
	// is treated as transient transport failure.
	return true
}
